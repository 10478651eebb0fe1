package creator_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"

	"github.com/ardanlabs/sealedger/business/core/creator"
	"go.uber.org/zap"
)

type memStore struct {
	byID   map[string]creator.Creator
	byName map[string]creator.Creator
}

func newMemStore() *memStore {
	return &memStore{
		byID:   make(map[string]creator.Creator),
		byName: make(map[string]creator.Creator),
	}
}

func (m *memStore) Create(ctx context.Context, crt creator.Creator) error {
	m.byID[crt.ID] = crt
	m.byName[crt.DisplayName] = crt
	return nil
}

func (m *memStore) QueryByID(ctx context.Context, id string) (creator.Creator, error) {
	crt, ok := m.byID[id]
	if !ok {
		return creator.Creator{}, creator.ErrNotFound
	}
	return crt, nil
}

func (m *memStore) QueryByDisplayName(ctx context.Context, name string) (creator.Creator, error) {
	crt, ok := m.byName[name]
	if !ok {
		return creator.Creator{}, creator.ErrNotFound
	}
	return crt, nil
}

func (m *memStore) QueryActive(ctx context.Context) ([]creator.Creator, error) {
	var out []creator.Creator
	for _, crt := range m.byID {
		if crt.Active {
			out = append(out, crt)
		}
	}
	return out, nil
}

func (m *memStore) Stats(ctx context.Context) (creator.Stats, error) {
	return creator.Stats{TotalCreators: len(m.byID)}, nil
}

func genPEM(t *testing.T, bits int) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshaling key: %v", err)
	}

	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block))
}

func Test_Create(t *testing.T) {
	store := newMemStore()
	core := creator.NewCore(zap.NewNop().Sugar(), store)

	pubPEM := genPEM(t, 2048)

	crt, err := core.Create(context.Background(), creator.NewCreator{
		DisplayName:  "alice_1",
		PublicKeyPEM: pubPEM,
	})
	if err != nil {
		t.Fatalf("creating creator: %v", err)
	}

	if crt.ID == "" {
		t.Fatal("expected a generated creator id")
	}
	if !crt.Active {
		t.Fatal("expected new creator to be active")
	}
}

func Test_Create_RejectsShortKey(t *testing.T) {
	store := newMemStore()
	core := creator.NewCore(zap.NewNop().Sugar(), store)

	pubPEM := genPEM(t, 1024)

	_, err := core.Create(context.Background(), creator.NewCreator{
		DisplayName:  "bob_1",
		PublicKeyPEM: pubPEM,
	})
	if !errors.Is(err, creator.ErrKeyTooSmall) {
		t.Fatalf("expected ErrKeyTooSmall, got %v", err)
	}
}

func Test_Create_RejectsDuplicateDisplayName(t *testing.T) {
	store := newMemStore()
	core := creator.NewCore(zap.NewNop().Sugar(), store)

	pubPEM := genPEM(t, 2048)

	if _, err := core.Create(context.Background(), creator.NewCreator{DisplayName: "carol_1", PublicKeyPEM: pubPEM}); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := core.Create(context.Background(), creator.NewCreator{DisplayName: "carol_1", PublicKeyPEM: genPEM(t, 2048)})
	if !errors.Is(err, creator.ErrDisplayNameTaken) {
		t.Fatalf("expected ErrDisplayNameTaken, got %v", err)
	}
}

func Test_Create_RejectsBadDisplayNameShape(t *testing.T) {
	store := newMemStore()
	core := creator.NewCore(zap.NewNop().Sugar(), store)

	_, err := core.Create(context.Background(), creator.NewCreator{
		DisplayName:  "no spaces allowed",
		PublicKeyPEM: genPEM(t, 2048),
	})
	if err == nil {
		t.Fatal("expected a validation error for a display_name containing spaces")
	}
}
