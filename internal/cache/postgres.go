package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/portfolio-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store on pgxpool.
type PostgresStore struct {
	pool Pool
	now  func() time.Time
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	return &PostgresStore{pool: pool, now: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS company_data_cache (
	company_id          TEXT PRIMARY KEY,
	payload             JSONB NOT NULL DEFAULT '{}',
	data_category       TEXT NOT NULL DEFAULT 'mixed',
	confidence_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_fetched_static TIMESTAMPTZ,
	last_fetched_live   TIMESTAMPTZ,
	fetch_lock          TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_company_data_cache_fetch_lock ON company_data_cache(fetch_lock);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const postgresSelectRecord = `SELECT company_id, payload, data_category, confidence_score, last_fetched_static, last_fetched_live, fetch_lock, created_at, updated_at FROM company_data_cache WHERE company_id = $1`

func (s *PostgresStore) Get(ctx context.Context, companyID string) (*Record, error) {
	row := s.pool.QueryRow(ctx, postgresSelectRecord, companyID)

	var r Record
	var payload []byte
	err := row.Scan(&r.CompanyID, &payload, &r.DataCategory, &r.Confidence,
		&r.LastFetchedStatic, &r.LastFetchedLive, &r.FetchLock, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get record %s", companyID)
	}

	if err := json.Unmarshal(payload, &r.Payload); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal payload %s", companyID)
	}
	return &r, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, companyID string, rec *model.NormalizedRecord) (*Record, error) {
	existing, err := s.Get(ctx, companyID)
	if err != nil {
		return nil, err
	}

	merged := applyUpdate(existing, companyID, rec, s.now().UTC())

	payload, err := json.Marshal(merged.Payload)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: marshal payload %s", companyID)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO company_data_cache (company_id, payload, data_category, confidence_score, last_fetched_static, last_fetched_live, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (company_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			data_category = EXCLUDED.data_category,
			confidence_score = EXCLUDED.confidence_score,
			last_fetched_static = EXCLUDED.last_fetched_static,
			last_fetched_live = EXCLUDED.last_fetched_live,
			updated_at = EXCLUDED.updated_at`,
		companyID, payload, string(merged.DataCategory), merged.Confidence,
		merged.LastFetchedStatic, merged.LastFetchedLive, merged.CreatedAt, merged.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert record %s", companyID)
	}

	return merged, nil
}

func (s *PostgresStore) TryLock(ctx context.Context, companyID string, grace time.Duration) (bool, error) {
	now := s.now().UTC()

	// The aggregate row must exist before the lock column can be claimed.
	_, err := s.pool.Exec(ctx, `
		INSERT INTO company_data_cache (company_id, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (company_id) DO NOTHING`,
		companyID, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: ensure record %s", companyID)
	}

	// Locks older than the grace cutoff are abandoned and may be stolen.
	tag, err := s.pool.Exec(ctx, `
		UPDATE company_data_cache SET fetch_lock = $2
		WHERE company_id = $1 AND (fetch_lock IS NULL OR fetch_lock < $3)`,
		companyID, now, now.Add(-grace),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: lock record %s", companyID)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Unlock(ctx context.Context, companyID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE company_data_cache SET fetch_lock = NULL WHERE company_id = $1`,
		companyID,
	)
	return eris.Wrapf(err, "postgres: unlock record %s", companyID)
}
