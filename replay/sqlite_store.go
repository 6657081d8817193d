package replay

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore is a durable, file-backed ReplayStore, for teams that want
// record/replay fixtures checked into a repo or shared across CI runs.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) a SQLite database at path
// and applies pending migrations.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("replay: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("replay: goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("replay: migrate: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ExchangeSummary is a row of List's output: enough to identify and
// inspect one recorded exchange without decoding its bodies.
type ExchangeSummary struct {
	Fingerprint string
	Method      string
	URL         string
	Status      int
	RecordedAt  time.Time
}

// List returns a summary of every exchange in the store, most recently
// recorded first. Used by gracyctl to inspect a fixture file.
func (s *SQLiteStore) List(ctx context.Context) ([]ExchangeSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, method, url, status, recorded_at
		FROM exchanges ORDER BY recorded_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("replay: list exchanges: %w", err)
	}
	defer rows.Close()

	var out []ExchangeSummary
	for rows.Next() {
		var s ExchangeSummary
		if err := rows.Scan(&s.Fingerprint, &s.Method, &s.URL, &s.Status, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("replay: scan exchange summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Record(ctx context.Context, fp string, exchange Exchange) error {
	reqHeaders, err := json.Marshal(exchange.RequestHeaders)
	if err != nil {
		return fmt.Errorf("replay: marshal request headers: %w", err)
	}
	respHeaders, err := json.Marshal(exchange.ResponseHeaders)
	if err != nil {
		return fmt.Errorf("replay: marshal response headers: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO exchanges (fingerprint, method, url, request_headers, request_body,
			status, response_headers, response_body, recorded_at, discard_on_bad_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			method=excluded.method, url=excluded.url,
			request_headers=excluded.request_headers, request_body=excluded.request_body,
			status=excluded.status, response_headers=excluded.response_headers,
			response_body=excluded.response_body, recorded_at=excluded.recorded_at,
			discard_on_bad_status=excluded.discard_on_bad_status`,
		fp, exchange.Method, exchange.URL, reqHeaders, exchange.RequestBody,
		exchange.Status, respHeaders, exchange.ResponseBody, exchange.RecordedAt,
		exchange.DiscardOnBadStatus)
	if err != nil {
		return fmt.Errorf("replay: insert exchange: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, fp string, isSuccess func(status int) bool) (*Exchange, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT method, url, request_headers, request_body, status,
			response_headers, response_body, recorded_at, discard_on_bad_status
		FROM exchanges WHERE fingerprint = ?`, fp)

	var (
		exchange    Exchange
		reqHeaders  []byte
		respHeaders []byte
	)
	err := row.Scan(&exchange.Method, &exchange.URL, &reqHeaders, &exchange.RequestBody,
		&exchange.Status, &respHeaders, &exchange.ResponseBody, &exchange.RecordedAt,
		&exchange.DiscardOnBadStatus)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("replay: query exchange: %w", err)
	}

	exchange.RequestHeaders = http.Header{}
	if err := json.Unmarshal(reqHeaders, &exchange.RequestHeaders); err != nil {
		return nil, fmt.Errorf("replay: unmarshal request headers: %w", err)
	}
	exchange.ResponseHeaders = http.Header{}
	if err := json.Unmarshal(respHeaders, &exchange.ResponseHeaders); err != nil {
		return nil, fmt.Errorf("replay: unmarshal response headers: %w", err)
	}
	exchange.RecordedAt = exchange.RecordedAt.UTC()

	if exchange.DiscardOnBadStatus && isSuccess != nil && !isSuccess(exchange.Status) {
		return nil, ErrNotFound
	}
	return &exchange, nil
}
