package creator

import (
	"crypto/rsa"
	"time"
)

// Creator represents a registered signer: a (creator_id, display_name,
// public_key_pem, active) record.
type Creator struct {
	ID           string
	DisplayName  string
	PublicKeyPEM string
	PublicKey    *rsa.PublicKey
	Active       bool
	CreatedAt    time.Time
}

// NewCreator is what's required to register a new creator.
type NewCreator struct {
	DisplayName  string `validate:"required,min=3,max=255,displayname"`
	PublicKeyPEM string `validate:"required"`
}

// Stats is the aggregate summary returned by GET /creators/stats/summary.
type Stats struct {
	TotalCreators  int
	AvgKeySizeBits float64
}
