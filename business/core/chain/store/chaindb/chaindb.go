// Package chaindb contains the postgres implementation of the
// chain.Storer interface: the append-only block log plus the genesis and
// uniqueness constraints the store, not the core, is responsible for
// enforcing.
package chaindb

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/sealedger/business/core/chain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgUniqueViolation is the Postgres SQLSTATE for a unique constraint
// violation.
const pgUniqueViolation = "23505"

// blockHashConstraint is the implicit unique constraint name Postgres gives
// the blocks.block_hash column; only a violation of this specific
// constraint means "this exact block was already appended". Any other
// unique or check violation (block_number, genesis_shape, difficulty_range,
// ...) is a rejected append, not a duplicate.
const blockHashConstraint = "blocks_block_hash_key"

// Store manages the set of API's for chain access against Postgres.
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

const blockColumns = `
	block_id, block_number, creator_id, previous_hash, block_hash, nonce,
	difficulty, encrypted_data, data_iv, encrypted_data_key, data_size,
	signature, created_at, verified, verified_at, mining_duration_ms`

// LoadChain returns every block ordered by block_number ascending, used to
// warm the in-memory tip at startup.
func (s *Store) LoadChain(ctx context.Context) ([]chain.Block, error) {
	q := fmt.Sprintf(`SELECT %s FROM blocks ORDER BY block_number ASC`, blockColumns)

	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("loading chain: %w", err)
	}
	defer rows.Close()

	return scanBlocks(rows)
}

// Append inserts a single block, assigning block_number = latest + 1
// inside the same transaction so the sequence stays gapless even under
// concurrent commits.
func (s *Store) Append(ctx context.Context, blk chain.Block) (chain.AppendResult, chain.Block, error) {
	var result chain.AppendResult
	var stored chain.Block

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var existing chain.Block
		row := tx.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM blocks WHERE block_hash = $1`, blockColumns), blk.Hash)
		if err := scanBlockRow(row, &existing); err == nil {
			result = chain.Duplicate
			stored = existing
			return nil
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("checking duplicate: %w", err)
		}

		var maxNumber int64
		row = tx.QueryRow(ctx, `SELECT block_number FROM blocks ORDER BY block_number DESC LIMIT 1 FOR UPDATE`)
		if err := row.Scan(&maxNumber); err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("locking tip: %w", err)
			}
			maxNumber = 0
		}
		blk.Number = maxNumber + 1

		q := fmt.Sprintf(`
		INSERT INTO blocks (%s)
		VALUES (@block_id, @block_number, @creator_id, @previous_hash, @block_hash, @nonce,
			@difficulty, @encrypted_data, @data_iv, @encrypted_data_key, @data_size,
			@signature, @created_at, @verified, @verified_at, @mining_duration_ms)`, blockColumns)

		args := pgx.NamedArgs{
			"block_id":            blk.ID,
			"block_number":        blk.Number,
			"creator_id":          nullString(blk.CreatorID),
			"previous_hash":       nullString(blk.PreviousHash),
			"block_hash":          blk.Hash,
			"nonce":               blk.Nonce,
			"difficulty":          blk.Difficulty,
			"encrypted_data":      blk.EncryptedData,
			"data_iv":             blk.DataIV,
			"encrypted_data_key":  blk.EncryptedDataKey,
			"data_size":           blk.DataSize,
			"signature":           blk.Signature,
			"created_at":          blk.CreatedAt,
			"verified":            blk.Verified,
			"verified_at":         blk.VerifiedAt,
			"mining_duration_ms":  blk.MiningDurationMs,
		}

		if _, err := tx.Exec(ctx, q, args); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == blockHashConstraint {
				// Lost the race against a concurrent proposer for the same
				// block_hash after the pre-check above missed it; re-fetch
				// the row that won so the caller gets a real duplicate, not
				// a zero-value block. The failed insert has aborted tx, so
				// the winning row is read through the pool.
				var existing chain.Block
				row := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM blocks WHERE block_hash = $1`, blockColumns), blk.Hash)
				if scanErr := scanBlockRow(row, &existing); scanErr != nil {
					return fmt.Errorf("re-fetching duplicate block: %w", scanErr)
				}
				result = chain.Duplicate
				stored = existing
				return nil
			}
			result = chain.Rejected
			return fmt.Errorf("constraint %s", err.Error())
		}

		result = chain.Inserted
		stored = blk
		return nil
	})

	if err != nil && result != chain.Duplicate && result != chain.Rejected {
		return chain.Rejected, chain.Block{}, err
	}

	return result, stored, nil
}

// ReplaceChain performs a wholesale swap: it deletes every block and
// re-inserts the candidate sequence inside a single transaction, so a
// crash mid-swap leaves the previous chain intact (rollback). The
// append-only triggers are temporarily disabled for the duration of the
// transaction to allow the delete, then re-armed before commit.
func (s *Store) ReplaceChain(ctx context.Context, candidate []chain.Block) (chain.ReplaceResult, error) {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `ALTER TABLE blocks DISABLE TRIGGER USER`); err != nil {
			return fmt.Errorf("disabling append-only triggers: %w", err)
		}
		defer tx.Exec(ctx, `ALTER TABLE blocks ENABLE TRIGGER USER`)

		if _, err := tx.Exec(ctx, `DELETE FROM blocks`); err != nil {
			return fmt.Errorf("clearing chain: %w", err)
		}

		q := fmt.Sprintf(`
		INSERT INTO blocks (%s)
		VALUES (@block_id, @block_number, @creator_id, @previous_hash, @block_hash, @nonce,
			@difficulty, @encrypted_data, @data_iv, @encrypted_data_key, @data_size,
			@signature, @created_at, @verified, @verified_at, @mining_duration_ms)`, blockColumns)

		for _, blk := range candidate {
			args := pgx.NamedArgs{
				"block_id":            blk.ID,
				"block_number":        blk.Number,
				"creator_id":          nullString(blk.CreatorID),
				"previous_hash":       nullString(blk.PreviousHash),
				"block_hash":          blk.Hash,
				"nonce":               blk.Nonce,
				"difficulty":          blk.Difficulty,
				"encrypted_data":      blk.EncryptedData,
				"data_iv":             blk.DataIV,
				"encrypted_data_key":  blk.EncryptedDataKey,
				"data_size":           blk.DataSize,
				"signature":           blk.Signature,
				"created_at":          blk.CreatedAt,
				"verified":            blk.Verified,
				"verified_at":         blk.VerifiedAt,
				"mining_duration_ms":  blk.MiningDurationMs,
			}
			if _, err := tx.Exec(ctx, q, args); err != nil {
				return fmt.Errorf("inserting candidate block %d: %w", blk.Number, err)
			}
		}

		return nil
	})
	if err != nil {
		s.log.Warnw("replace chain rejected", "error", err)
		return chain.RejectedReplace, nil
	}

	return chain.Accepted, nil
}

// PaginatedRead serves GET /blocks.
func (s *Store) PaginatedRead(ctx context.Context, q chain.PageQuery) (chain.Page, error) {
	where := ""
	switch q.Verified {
	case chain.FilterTrue:
		where = "WHERE verified = true"
	case chain.FilterFalse:
		where = "WHERE verified = false"
	}

	order := "block_number DESC"
	switch q.Sort {
	case chain.SortOldest:
		order = "block_number ASC"
	case chain.SortBlockNumber:
		order = "block_number ASC"
	case chain.SortNewest:
		order = "block_number DESC"
	}

	var total int
	countQ := fmt.Sprintf(`SELECT count(*) FROM blocks %s`, where)
	if err := s.db.QueryRow(ctx, countQ).Scan(&total); err != nil {
		return chain.Page{}, fmt.Errorf("counting blocks: %w", err)
	}

	offset := (q.Page - 1) * q.Limit
	listQ := fmt.Sprintf(`SELECT %s FROM blocks %s ORDER BY %s LIMIT $1 OFFSET $2`, blockColumns, where, order)

	rows, err := s.db.Query(ctx, listQ, q.Limit, offset)
	if err != nil {
		return chain.Page{}, fmt.Errorf("listing blocks: %w", err)
	}
	defer rows.Close()

	blocks, err := scanBlocks(rows)
	if err != nil {
		return chain.Page{}, err
	}

	return chain.Page{
		Blocks: blocks,
		Total:  total,
		Page:   q.Page,
		Limit:  q.Limit,
	}, nil
}

// BlocksForCreator serves GET /decrypt/blocks/{creator_id}.
func (s *Store) BlocksForCreator(ctx context.Context, creatorID string) ([]chain.Envelope, error) {
	const q = `
	SELECT block_id, block_number, block_hash, created_at, encrypted_data,
		data_iv, encrypted_data_key, data_size, verified
	FROM blocks
	WHERE creator_id = $1
	ORDER BY block_number ASC`

	rows, err := s.db.Query(ctx, q, creatorID)
	if err != nil {
		return nil, fmt.Errorf("querying envelopes: %w", err)
	}
	defer rows.Close()

	var envs []chain.Envelope
	for rows.Next() {
		var e chain.Envelope
		if err := rows.Scan(&e.BlockID, &e.Number, &e.Hash, &e.CreatedAt, &e.EncryptedData,
			&e.DataIV, &e.EncryptedDataKey, &e.DataSize, &e.Verified); err != nil {
			return nil, fmt.Errorf("scanning envelope: %w", err)
		}
		envs = append(envs, e)
	}

	return envs, rows.Err()
}

// Stats serves GET /blocks/stats/summary.
func (s *Store) Stats(ctx context.Context) (chain.Stats, error) {
	const q = `
	SELECT
		count(*),
		count(*) FILTER (WHERE verified = true),
		count(*) FILTER (WHERE verified = false),
		coalesce(avg(mining_duration_ms) FILTER (WHERE mining_duration_ms > 0), 0)
	FROM blocks`

	var stats chain.Stats
	err := s.db.QueryRow(ctx, q).Scan(&stats.TotalBlocks, &stats.VerifiedBlocks, &stats.PendingBlocks, &stats.AvgMiningTimeMs)
	if err != nil {
		return chain.Stats{}, fmt.Errorf("stats: %w", err)
	}

	return stats, nil
}

// PendingForVerification returns up to limit unverified blocks, at least
// minAgeSeconds old, ascending by block_number.
func (s *Store) PendingForVerification(ctx context.Context, limit int, minAgeSeconds int) ([]chain.Block, error) {
	q := fmt.Sprintf(`
	SELECT %s FROM blocks
	WHERE verified = false AND created_at <= now() - make_interval(secs => $1)
	ORDER BY block_number ASC
	LIMIT $2`, blockColumns)

	rows, err := s.db.Query(ctx, q, minAgeSeconds, limit)
	if err != nil {
		return nil, fmt.Errorf("querying pending blocks: %w", err)
	}
	defer rows.Close()

	return scanBlocks(rows)
}

// MarkVerified is the only mutation the store allows on an appended block.
func (s *Store) MarkVerified(ctx context.Context, blockID string, verified bool) error {
	const q = `UPDATE blocks SET verified = $1, verified_at = now() WHERE block_id = $2`
	if _, err := s.db.Exec(ctx, q, verified, blockID); err != nil {
		return fmt.Errorf("marking verified: %w", err)
	}
	return nil
}

// BlockByNumber fetches a single block, used by the verifier's chain-link
// check.
func (s *Store) BlockByNumber(ctx context.Context, number int64) (chain.Block, error) {
	q := fmt.Sprintf(`SELECT %s FROM blocks WHERE block_number = $1`, blockColumns)

	var blk chain.Block
	row := s.db.QueryRow(ctx, q, number)
	if err := scanBlockRow(row, &blk); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chain.Block{}, fmt.Errorf("block %d: %w", number, pgx.ErrNoRows)
		}
		return chain.Block{}, err
	}

	return blk, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlockRow(row rowScanner, blk *chain.Block) error {
	var creatorID, previousHash *string

	err := row.Scan(&blk.ID, &blk.Number, &creatorID, &previousHash, &blk.Hash, &blk.Nonce,
		&blk.Difficulty, &blk.EncryptedData, &blk.DataIV, &blk.EncryptedDataKey, &blk.DataSize,
		&blk.Signature, &blk.CreatedAt, &blk.Verified, &blk.VerifiedAt, &blk.MiningDurationMs)
	if err != nil {
		return err
	}

	if creatorID != nil {
		blk.CreatorID = *creatorID
	}
	if previousHash != nil {
		blk.PreviousHash = *previousHash
	}

	return nil
}

func scanBlocks(rows pgx.Rows) ([]chain.Block, error) {
	var blocks []chain.Block
	for rows.Next() {
		var blk chain.Block
		if err := scanBlockRow(rows, &blk); err != nil {
			return nil, fmt.Errorf("scanning block: %w", err)
		}
		blocks = append(blocks, blk)
	}
	return blocks, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
