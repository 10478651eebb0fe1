// Package creator implements the business logic around registering and
// looking up the signers who are allowed to submit blocks: the display
// name, PEM-encoded RSA public key, and active flag every block references
// by creator_id.
package creator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/sealedger/internal/cryptutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Storer is the set of behaviors a persistence layer must provide for the
// core to work. The concrete implementation lives in
// business/core/creator/store/creatordb.
type Storer interface {
	Create(ctx context.Context, crt Creator) error
	QueryByID(ctx context.Context, creatorID string) (Creator, error)
	QueryByDisplayName(ctx context.Context, displayName string) (Creator, error)
	QueryActive(ctx context.Context) ([]Creator, error)
	Stats(ctx context.Context) (Stats, error)
}

// Core manages the set of API's for creator access.
type Core struct {
	log   *zap.SugaredLogger
	store Storer
}

// NewCore constructs a creator core for use.
func NewCore(log *zap.SugaredLogger, store Storer) *Core {
	return &Core{
		log:   log,
		store: store,
	}
}

// Create registers a new creator after validating shape (display_name
// charset/length) and that the supplied PEM decodes to an RSA public key
// meeting the minimum key size.
func (c *Core) Create(ctx context.Context, nc NewCreator) (Creator, error) {
	if fields := Validate(nc); fields != nil {
		return Creator{}, fmt.Errorf("validating data: %v", fields)
	}

	pub, err := cryptutil.ParsePublicKeyPEM(nc.PublicKeyPEM)
	if err != nil {
		if errors.Is(err, cryptutil.ErrKeyTooSmall) {
			return Creator{}, ErrKeyTooSmall
		}
		return Creator{}, ErrInvalidPublicKey
	}

	if cryptutil.KeySizeBytes(pub)*8 < cryptutil.MinKeyBits {
		return Creator{}, ErrKeyTooSmall
	}

	if _, err := c.store.QueryByDisplayName(ctx, nc.DisplayName); err == nil {
		return Creator{}, ErrDisplayNameTaken
	}

	crt := Creator{
		ID:           uuid.NewString(),
		DisplayName:  nc.DisplayName,
		PublicKeyPEM: nc.PublicKeyPEM,
		PublicKey:    pub,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}

	if err := c.store.Create(ctx, crt); err != nil {
		return Creator{}, fmt.Errorf("create: %w", err)
	}

	c.log.Infow("creator registered", "creator_id", crt.ID, "display_name", crt.DisplayName)

	return crt, nil
}

// QueryByID finds a creator by its unique identifier.
func (c *Core) QueryByID(ctx context.Context, creatorID string) (Creator, error) {
	crt, err := c.store.QueryByID(ctx, creatorID)
	if err != nil {
		return Creator{}, fmt.Errorf("query: creatorID[%s]: %w", creatorID, err)
	}
	return crt, nil
}

// QueryByDisplayName finds a creator by its unique display name, the form
// GET /creators/{display_name}/public-key resolves before returning the
// PEM.
func (c *Core) QueryByDisplayName(ctx context.Context, displayName string) (Creator, error) {
	if err := ValidateDisplayName(displayName); err != nil {
		return Creator{}, fmt.Errorf("validating display_name: %w", err)
	}

	crt, err := c.store.QueryByDisplayName(ctx, displayName)
	if err != nil {
		return Creator{}, fmt.Errorf("query: displayName[%s]: %w", displayName, err)
	}
	return crt, nil
}

// QueryActive returns every creator currently allowed to submit blocks.
func (c *Core) QueryActive(ctx context.Context) ([]Creator, error) {
	crts, err := c.store.QueryActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("query active: %w", err)
	}
	return crts, nil
}

// Stats returns the aggregate figures behind GET /creators/stats/summary.
func (c *Core) Stats(ctx context.Context) (Stats, error) {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}
