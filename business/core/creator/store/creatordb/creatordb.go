// Package creatordb contains the postgres implementation of the
// creator.Storer interface.
package creatordb

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/sealedger/business/core/creator"
	"github.com/ardanlabs/sealedger/internal/cryptutil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Store manages the set of API's for creator access against Postgres.
type Store struct {
	log *zap.SugaredLogger
	db  *pgxpool.Pool
}

// NewStore constructs the api for data access.
func NewStore(log *zap.SugaredLogger, db *pgxpool.Pool) *Store {
	return &Store{
		log: log,
		db:  db,
	}
}

// Create inserts a new creator record.
func (s *Store) Create(ctx context.Context, crt creator.Creator) error {
	const q = `
	INSERT INTO creators (creator_id, display_name, public_key_pem, active, created_at)
	VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.Exec(ctx, q, crt.ID, crt.DisplayName, crt.PublicKeyPEM, crt.Active, crt.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting creator: %w", err)
	}

	return nil
}

// QueryByID retrieves a single creator by its id.
func (s *Store) QueryByID(ctx context.Context, creatorID string) (creator.Creator, error) {
	const q = `
	SELECT creator_id, display_name, public_key_pem, active, created_at
	FROM creators
	WHERE creator_id = $1`

	return s.queryRow(ctx, q, creatorID)
}

// QueryByDisplayName retrieves a single creator by its unique display name.
func (s *Store) QueryByDisplayName(ctx context.Context, displayName string) (creator.Creator, error) {
	const q = `
	SELECT creator_id, display_name, public_key_pem, active, created_at
	FROM creators
	WHERE display_name = $1`

	return s.queryRow(ctx, q, displayName)
}

func (s *Store) queryRow(ctx context.Context, q string, arg any) (creator.Creator, error) {
	var crt creator.Creator

	row := s.db.QueryRow(ctx, q, arg)
	err := row.Scan(&crt.ID, &crt.DisplayName, &crt.PublicKeyPEM, &crt.Active, &crt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return creator.Creator{}, creator.ErrNotFound
		}
		return creator.Creator{}, fmt.Errorf("selecting creator: %w", err)
	}

	pub, err := cryptutil.ParsePublicKeyPEM(crt.PublicKeyPEM)
	if err != nil {
		return creator.Creator{}, fmt.Errorf("parsing stored public key: %w", err)
	}
	crt.PublicKey = pub

	return crt, nil
}

// QueryActive returns every creator with active = true.
func (s *Store) QueryActive(ctx context.Context) ([]creator.Creator, error) {
	const q = `
	SELECT creator_id, display_name, public_key_pem, active, created_at
	FROM creators
	WHERE active = true
	ORDER BY display_name`

	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("selecting active creators: %w", err)
	}
	defer rows.Close()

	var crts []creator.Creator
	for rows.Next() {
		var crt creator.Creator
		if err := rows.Scan(&crt.ID, &crt.DisplayName, &crt.PublicKeyPEM, &crt.Active, &crt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning creator: %w", err)
		}

		pub, err := cryptutil.ParsePublicKeyPEM(crt.PublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parsing stored public key: %w", err)
		}
		crt.PublicKey = pub

		crts = append(crts, crt)
	}

	return crts, rows.Err()
}

// Stats computes the aggregate figures behind GET /creators/stats/summary.
// avg_key_size_bits is derived in Go rather than SQL since Postgres has no
// built-in "bit length of a PEM-encoded RSA key" function; the modulus
// sizes are small in number (one per creator) so this is cheap.
func (s *Store) Stats(ctx context.Context) (creator.Stats, error) {
	crts, err := s.QueryActive(ctx)
	if err != nil {
		return creator.Stats{}, err
	}

	const totalQ = `SELECT count(*) FROM creators`
	var total int
	if err := s.db.QueryRow(ctx, totalQ).Scan(&total); err != nil {
		return creator.Stats{}, fmt.Errorf("counting creators: %w", err)
	}

	if len(crts) == 0 {
		return creator.Stats{TotalCreators: total}, nil
	}

	var sum int
	for _, crt := range crts {
		sum += cryptutil.KeySizeBytes(crt.PublicKey) * 8
	}

	return creator.Stats{
		TotalCreators:  total,
		AvgKeySizeBits: float64(sum) / float64(len(crts)),
	}, nil
}
