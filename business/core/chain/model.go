// Package chain implements the append-only block log: warming an
// in-memory tip from the store at startup, appending validated blocks,
// and resolving forks by the longest-chain rule.
package chain

import "time"

// Block is the core entity persisted by the chain store.
type Block struct {
	ID                string
	Number            int64
	CreatorID         string
	PreviousHash      string
	Hash              string
	Nonce             uint64
	Difficulty        int
	EncryptedData     []byte
	DataIV            []byte
	EncryptedDataKey  []byte
	DataSize          int64
	Signature         []byte
	CreatedAt         time.Time
	Verified          bool
	VerifiedAt        *time.Time
	MiningDurationMs  int64
}

// Envelope is the minimal set of fields a client needs to decrypt a block
// offline, returned by GET /decrypt/blocks/{creator_id}.
type Envelope struct {
	BlockID          string
	Number           int64
	Hash             string
	CreatedAt        time.Time
	EncryptedData    []byte
	DataIV           []byte
	EncryptedDataKey []byte
	DataSize         int64
	Verified         bool
}

// AppendResult reports the outcome of an Append call.
type AppendResult int

// Set of possible AppendResult values.
const (
	Inserted AppendResult = iota
	Duplicate
	Rejected
)

func (r AppendResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Duplicate:
		return "duplicate"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ReplaceResult reports the outcome of a ReplaceChain call.
type ReplaceResult int

// Set of possible ReplaceResult values.
const (
	Accepted ReplaceResult = iota
	RejectedReplace
)

// VerifiedFilter narrows a paginated read by verification state.
type VerifiedFilter string

// Set of possible VerifiedFilter values.
const (
	FilterAll   VerifiedFilter = "all"
	FilterTrue  VerifiedFilter = "true"
	FilterFalse VerifiedFilter = "false"
)

// SortOrder controls how a paginated read is ordered.
type SortOrder string

// Set of possible SortOrder values.
const (
	SortNewest      SortOrder = "newest"
	SortOldest      SortOrder = "oldest"
	SortBlockNumber SortOrder = "block_number"
)

// PageQuery bundles the parameters behind GET /blocks.
type PageQuery struct {
	Page     int
	Limit    int
	Verified VerifiedFilter
	Sort     SortOrder
}

// Page is a single page of blocks plus the total row count.
type Page struct {
	Blocks     []Block
	Total      int
	Page       int
	Limit      int
}

// Stats is the aggregate summary returned by GET /blocks/stats/summary.
type Stats struct {
	TotalBlocks      int
	VerifiedBlocks   int
	PendingBlocks    int
	AvgMiningTimeMs  float64
}
