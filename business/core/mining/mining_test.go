package mining_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/ardanlabs/sealedger/business/core/chain"
	"github.com/ardanlabs/sealedger/business/core/creator"
	"github.com/ardanlabs/sealedger/business/core/mining"
	"github.com/ardanlabs/sealedger/internal/cryptutil"
	"go.uber.org/zap"
)

// ---- creator.Storer fake ----

type creatorStore struct {
	creators map[string]creator.Creator
}

func (s *creatorStore) Create(ctx context.Context, crt creator.Creator) error {
	s.creators[crt.ID] = crt
	return nil
}

func (s *creatorStore) QueryByID(ctx context.Context, id string) (creator.Creator, error) {
	crt, ok := s.creators[id]
	if !ok {
		return creator.Creator{}, creator.ErrNotFound
	}
	return crt, nil
}

func (s *creatorStore) QueryByDisplayName(ctx context.Context, name string) (creator.Creator, error) {
	for _, crt := range s.creators {
		if crt.DisplayName == name {
			return crt, nil
		}
	}
	return creator.Creator{}, creator.ErrNotFound
}

func (s *creatorStore) QueryActive(ctx context.Context) ([]creator.Creator, error) {
	var out []creator.Creator
	for _, crt := range s.creators {
		out = append(out, crt)
	}
	return out, nil
}

func (s *creatorStore) Stats(ctx context.Context) (creator.Stats, error) {
	return creator.Stats{TotalCreators: len(s.creators)}, nil
}

// ---- chain.Storer fake ----

type chainStore struct {
	blocks []chain.Block
}

func (s *chainStore) LoadChain(ctx context.Context) ([]chain.Block, error) { return s.blocks, nil }

func (s *chainStore) Append(ctx context.Context, blk chain.Block) (chain.AppendResult, chain.Block, error) {
	for _, existing := range s.blocks {
		if existing.Hash == blk.Hash {
			return chain.Duplicate, existing, nil
		}
	}
	if len(s.blocks) == 0 {
		blk.Number = 1
	} else {
		blk.Number = s.blocks[len(s.blocks)-1].Number + 1
	}
	s.blocks = append(s.blocks, blk)
	return chain.Inserted, blk, nil
}

func (s *chainStore) ReplaceChain(ctx context.Context, candidate []chain.Block) (chain.ReplaceResult, error) {
	return chain.RejectedReplace, nil
}

func (s *chainStore) PaginatedRead(ctx context.Context, q chain.PageQuery) (chain.Page, error) {
	return chain.Page{Blocks: s.blocks}, nil
}

func (s *chainStore) BlocksForCreator(ctx context.Context, creatorID string) ([]chain.Envelope, error) {
	return nil, nil
}

func (s *chainStore) Stats(ctx context.Context) (chain.Stats, error) { return chain.Stats{}, nil }

func (s *chainStore) PendingForVerification(ctx context.Context, limit int, minAgeSeconds int) ([]chain.Block, error) {
	return nil, nil
}

func (s *chainStore) MarkVerified(ctx context.Context, blockID string, verified bool) error {
	return nil
}

func (s *chainStore) BlockByNumber(ctx context.Context, number int64) (chain.Block, error) {
	for _, blk := range s.blocks {
		if blk.Number == number {
			return blk, nil
		}
	}
	return chain.Block{}, errors.New("not found")
}

// ---- test fixtures ----

type fixture struct {
	core     *mining.Core
	creators *creator.Core
	chain    *chain.Store
	priv     *rsa.PrivateKey
	crt      creator.Creator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("marshaling key: %v", err)
	}
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	crt := creator.Creator{
		ID:           "creator-1",
		DisplayName:  "alice_1",
		PublicKeyPEM: pubPEM,
		PublicKey:    &priv.PublicKey,
		Active:       true,
	}

	cs := &creatorStore{creators: map[string]creator.Creator{crt.ID: crt}}
	creators := creator.NewCore(zap.NewNop().Sugar(), cs)

	chn, err := chain.NewStore(context.Background(), zap.NewNop().Sugar(), &chainStore{})
	if err != nil {
		t.Fatalf("constructing chain store: %v", err)
	}

	core := mining.NewCore(mining.Config{
		Log:         zap.NewNop().Sugar(),
		Chain:       chn,
		Creators:    creators,
		Difficulty:  1,
		MaxDataSize: 1 << 20,
	})

	return &fixture{core: core, creators: creators, chain: chn, priv: priv, crt: crt}
}

// mineValidPayload builds a payload that satisfies every check up to and
// including proof-of-work, brute-forcing a nonce for the given difficulty.
func (f *fixture) mineValidPayload(t *testing.T, difficulty int, previousHash string) mining.CommitPayload {
	t.Helper()
	return f.mineValidPayloadWithIVLen(t, difficulty, previousHash, cryptutil.GCMIVSize)
}

// mineValidPayloadWithIVLen is mineValidPayload but with a caller-chosen
// data_iv length, letting shape-check tests reach a self-consistent
// signature and proof-of-work alongside an otherwise malformed field.
func (f *fixture) mineValidPayloadWithIVLen(t *testing.T, difficulty int, previousHash string, ivLen int) mining.CommitPayload {
	t.Helper()

	plaintext := []byte("hello world")
	aesKey := make([]byte, cryptutil.AESKeySize)
	iv := make([]byte, ivLen)
	rand.Read(aesKey)
	rand.Read(iv)

	var ciphertext []byte
	var err error
	if ivLen == cryptutil.GCMIVSize {
		ciphertext, err = cryptutil.SealAESGCM(aesKey, iv, plaintext)
		if err != nil {
			t.Fatalf("sealing: %v", err)
		}
	} else {
		// AES-GCM only accepts a GCMIVSize nonce; a malformed iv only needs
		// to look like ciphertext here, since sealing with the wrong iv
		// length would itself fail.
		ciphertext = make([]byte, len(plaintext)+cryptutil.GCMTagSize)
		rand.Read(ciphertext)
	}

	wrappedKey, err := cryptutil.WrapKey(&f.priv.PublicKey, aesKey)
	if err != nil {
		t.Fatalf("wrapping key: %v", err)
	}

	createdAt := time.Now().UTC().Format(time.RFC3339)

	var nonce uint64
	var hash string
	for {
		input := cryptutil.HashInput(cryptutil.HashInputFields{
			PreviousHash:     previousHash,
			EncryptedData:    ciphertext,
			DataIV:           iv,
			EncryptedDataKey: wrappedKey,
			Nonce:            nonce,
			CreatedAt:        createdAt,
			CreatorID:        f.crt.ID,
			Difficulty:       difficulty,
		})
		hash = cryptutil.BlockHash(input)
		if cryptutil.HasDifficultyPrefix(hash, difficulty) {
			break
		}
		nonce++
	}

	sig, err := cryptutil.SignBlockHash(f.priv, hash)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	return mining.CommitPayload{
		CreatorID:        f.crt.ID,
		PreviousHash:     previousHash,
		BlockHash:        hash,
		Nonce:            nonce,
		Difficulty:       difficulty,
		EncryptedData:    ciphertext,
		DataIV:           iv,
		EncryptedDataKey: wrappedKey,
		DataSize:         int64(len(ciphertext) + len(iv) + len(wrappedKey)),
		Signature:        sig,
		CreatedAt:        createdAt,
	}
}

func Test_PrepareMining(t *testing.T) {
	f := newFixture(t)

	prep, err := f.core.PrepareMining(context.Background(), f.crt.DisplayName, 11)
	if err != nil {
		t.Fatalf("prepare mining: %v", err)
	}

	if prep.CreatorID != f.crt.ID {
		t.Fatalf("expected creator_id %s, got %s", f.crt.ID, prep.CreatorID)
	}
	if prep.PreviousHash != cryptutil.GenesisSentinel {
		t.Fatalf("expected genesis sentinel on an empty chain, got %s", prep.PreviousHash)
	}
}

func Test_PrepareMining_UnknownCreator(t *testing.T) {
	f := newFixture(t)

	_, err := f.core.PrepareMining(context.Background(), "nobody", 11)
	if !errors.Is(err, mining.ErrCreatorMissing) {
		t.Fatalf("expected ErrCreatorMissing, got %v", err)
	}
}

func Test_CommitBlock_Success(t *testing.T) {
	f := newFixture(t)

	payload := f.mineValidPayload(t, 1, cryptutil.GenesisSentinel)

	blk, result, err := f.core.CommitBlock(context.Background(), payload)
	if err != nil {
		t.Fatalf("commit block: %v", err)
	}
	if result != chain.Inserted {
		t.Fatalf("expected Inserted, got %v", result)
	}
	if blk.Number != 1 {
		t.Fatalf("expected genesis block_number 1, got %d", blk.Number)
	}
}

func Test_CommitBlock_SignatureInvalid(t *testing.T) {
	f := newFixture(t)

	payload := f.mineValidPayload(t, 1, cryptutil.GenesisSentinel)
	payload.Signature[0] ^= 0xFF

	_, _, err := f.core.CommitBlock(context.Background(), payload)
	if !errors.Is(err, mining.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func Test_CommitBlock_HashMismatch(t *testing.T) {
	f := newFixture(t)

	payload := f.mineValidPayload(t, 1, cryptutil.GenesisSentinel)
	payload.Nonce++

	_, _, err := f.core.CommitBlock(context.Background(), payload)
	if !errors.Is(err, mining.ErrSignatureInvalid) && !errors.Is(err, mining.ErrHashMismatch) {
		t.Fatalf("expected a signature or hash validation failure, got %v", err)
	}
}

func Test_CommitBlock_PoWFailed(t *testing.T) {
	f := newFixture(t)

	payload := f.mineValidPayload(t, 1, cryptutil.GenesisSentinel)
	payload.Difficulty = 10
	sig, err := cryptutil.SignBlockHash(f.priv, payload.BlockHash)
	if err != nil {
		t.Fatalf("re-signing: %v", err)
	}
	payload.Signature = sig

	_, _, err = f.core.CommitBlock(context.Background(), payload)
	if !errors.Is(err, mining.ErrPoWFailed) {
		t.Fatalf("expected ErrPoWFailed, got %v", err)
	}
}

func Test_CommitBlock_TipMoved(t *testing.T) {
	f := newFixture(t)

	first := f.mineValidPayload(t, 1, cryptutil.GenesisSentinel)
	if _, _, err := f.core.CommitBlock(context.Background(), first); err != nil {
		t.Fatalf("commit first block: %v", err)
	}

	stale := f.mineValidPayload(t, 1, cryptutil.GenesisSentinel)
	_, _, err := f.core.CommitBlock(context.Background(), stale)
	if !errors.Is(err, mining.ErrTipMoved) {
		t.Fatalf("expected ErrTipMoved, got %v", err)
	}
}

func Test_CommitBlock_ShapeInvalid_BadDataIV(t *testing.T) {
	f := newFixture(t)

	payload := f.mineValidPayloadWithIVLen(t, 1, cryptutil.GenesisSentinel, 8)

	_, _, err := f.core.CommitBlock(context.Background(), payload)
	if !errors.Is(err, mining.ErrShapeInvalid) {
		t.Fatalf("expected ErrShapeInvalid, got %v", err)
	}
}
