package gossip

import (
	"encoding/hex"
	"time"

	"github.com/ardanlabs/sealedger/business/core/chain"
)

// messageType names the two framed JSON messages peers exchange.
type messageType string

// Set of possible messageType values.
const (
	typeChain messageType = "CHAIN"
	typeBlock messageType = "BLOCK"
)

// message is the envelope framed over each peer connection.
type message struct {
	Type  messageType `json:"type"`
	Chain []wireBlock `json:"chain,omitempty"`
	Block *wireBlock  `json:"block,omitempty"`
}

// wireBlock is a chain.Block with binary fields hex-encoded for JSON
// transport, matching the "bytes as hex" convention used across the HTTP
// API.
type wireBlock struct {
	ID               string     `json:"block_id"`
	Number           int64      `json:"block_number"`
	CreatorID        string     `json:"creator_id"`
	PreviousHash     string     `json:"previous_hash"`
	Hash             string     `json:"block_hash"`
	Nonce            uint64     `json:"nonce"`
	Difficulty       int        `json:"difficulty"`
	EncryptedData    string     `json:"encrypted_data"`
	DataIV           string     `json:"data_iv"`
	EncryptedDataKey string     `json:"encrypted_data_key"`
	DataSize         int64      `json:"data_size"`
	Signature        string     `json:"signature"`
	CreatedAt        time.Time  `json:"created_at"`
	Verified         bool       `json:"verified"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	MiningDurationMs int64      `json:"mining_duration_ms"`
}

func toWire(blk chain.Block) wireBlock {
	return wireBlock{
		ID:               blk.ID,
		Number:           blk.Number,
		CreatorID:        blk.CreatorID,
		PreviousHash:     blk.PreviousHash,
		Hash:             blk.Hash,
		Nonce:            blk.Nonce,
		Difficulty:       blk.Difficulty,
		EncryptedData:    hex.EncodeToString(blk.EncryptedData),
		DataIV:           hex.EncodeToString(blk.DataIV),
		EncryptedDataKey: hex.EncodeToString(blk.EncryptedDataKey),
		DataSize:         blk.DataSize,
		Signature:        hex.EncodeToString(blk.Signature),
		CreatedAt:        blk.CreatedAt,
		Verified:         blk.Verified,
		VerifiedAt:       blk.VerifiedAt,
		MiningDurationMs: blk.MiningDurationMs,
	}
}

func fromWire(w wireBlock) (chain.Block, error) {
	encryptedData, err := hex.DecodeString(w.EncryptedData)
	if err != nil {
		return chain.Block{}, err
	}
	dataIV, err := hex.DecodeString(w.DataIV)
	if err != nil {
		return chain.Block{}, err
	}
	encryptedDataKey, err := hex.DecodeString(w.EncryptedDataKey)
	if err != nil {
		return chain.Block{}, err
	}
	signature, err := hex.DecodeString(w.Signature)
	if err != nil {
		return chain.Block{}, err
	}

	return chain.Block{
		ID:               w.ID,
		Number:           w.Number,
		CreatorID:        w.CreatorID,
		PreviousHash:     w.PreviousHash,
		Hash:             w.Hash,
		Nonce:            w.Nonce,
		Difficulty:       w.Difficulty,
		EncryptedData:    encryptedData,
		DataIV:           dataIV,
		EncryptedDataKey: encryptedDataKey,
		DataSize:         w.DataSize,
		Signature:        signature,
		CreatedAt:        w.CreatedAt,
		Verified:         w.Verified,
		VerifiedAt:       w.VerifiedAt,
		MiningDurationMs: w.MiningDurationMs,
	}, nil
}
