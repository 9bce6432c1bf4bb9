package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/portfolio-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Intended for local
// and single-node deployments.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS company_data_cache (
	company_id          TEXT PRIMARY KEY,
	payload             TEXT NOT NULL DEFAULT '{}',
	data_category       TEXT NOT NULL DEFAULT 'mixed',
	confidence_score    REAL NOT NULL DEFAULT 0,
	last_fetched_static DATETIME,
	last_fetched_live   DATETIME,
	fetch_lock          DATETIME,
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_company_data_cache_fetch_lock ON company_data_cache(fetch_lock);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, companyID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT company_id, payload, data_category, confidence_score, last_fetched_static, last_fetched_live, fetch_lock, created_at, updated_at
		 FROM company_data_cache WHERE company_id = ?`,
		companyID,
	)

	var r Record
	var payload string
	var fetchedStatic, fetchedLive, fetchLock sql.NullTime
	err := row.Scan(&r.CompanyID, &payload, &r.DataCategory, &r.Confidence,
		&fetchedStatic, &fetchedLive, &fetchLock, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get record %s", companyID)
	}

	if fetchedStatic.Valid {
		r.LastFetchedStatic = &fetchedStatic.Time
	}
	if fetchedLive.Valid {
		r.LastFetchedLive = &fetchedLive.Time
	}
	if fetchLock.Valid {
		r.FetchLock = &fetchLock.Time
	}
	if err := json.Unmarshal([]byte(payload), &r.Payload); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal payload %s", companyID)
	}
	return &r, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, companyID string, rec *model.NormalizedRecord) (*Record, error) {
	existing, err := s.Get(ctx, companyID)
	if err != nil {
		return nil, err
	}

	merged := applyUpdate(existing, companyID, rec, s.now().UTC())

	payload, err := json.Marshal(merged.Payload)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: marshal payload %s", companyID)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO company_data_cache (company_id, payload, data_category, confidence_score, last_fetched_static, last_fetched_live, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (company_id) DO UPDATE SET
			payload = excluded.payload,
			data_category = excluded.data_category,
			confidence_score = excluded.confidence_score,
			last_fetched_static = excluded.last_fetched_static,
			last_fetched_live = excluded.last_fetched_live,
			updated_at = excluded.updated_at`,
		companyID, string(payload), string(merged.DataCategory), merged.Confidence,
		nullableTime(merged.LastFetchedStatic), nullableTime(merged.LastFetchedLive),
		merged.CreatedAt, merged.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert record %s", companyID)
	}

	return merged, nil
}

func (s *SQLiteStore) TryLock(ctx context.Context, companyID string, grace time.Duration) (bool, error) {
	now := s.now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO company_data_cache (company_id, created_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (company_id) DO NOTHING`,
		companyID, now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: ensure record %s", companyID)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE company_data_cache SET fetch_lock = ?
		WHERE company_id = ? AND (fetch_lock IS NULL OR fetch_lock < ?)`,
		now, companyID, now.Add(-grace),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: lock record %s", companyID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) Unlock(ctx context.Context, companyID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE company_data_cache SET fetch_lock = NULL WHERE company_id = ?`,
		companyID,
	)
	return eris.Wrapf(err, "sqlite: unlock record %s", companyID)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
