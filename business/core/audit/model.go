// Package audit implements the append-only audit.events log: a record of
// every block verification outcome, recorded immediately after the
// verification-status mutation it documents.
package audit

import "time"

// EventType names the kind of event recorded.
type EventType string

// Set of possible EventType values.
const (
	EventBlockVerifiedOK   EventType = "BLOCK_VERIFIED_OK"
	EventBlockVerifiedFail EventType = "BLOCK_VERIFIED_FAIL"
)

// Event is a single row in audit.events.
type Event struct {
	ID        string
	Type      EventType
	Subject   string
	Reason    string
	CreatedAt time.Time
}
