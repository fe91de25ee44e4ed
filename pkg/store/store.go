// Package store persists claims and their audit trail in a SQL database.
// The claim JSON is stored verbatim so assertion order and signature bytes
// survive a round trip.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Nontawatt/OpenMediaTrust/pkg/canonicalize"
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

var ErrNotFound = errors.New("store: claim not found")

// stored_at is fixed width so text ordering matches time ordering.
const storedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Dialect selects placeholder syntax.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DialectFor maps a database/sql driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "pgx":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("store: unsupported driver %q", driver)
	}
}

// Record is a stored claim with its index columns.
type Record struct {
	InstanceID string
	TenantID   string
	Format     string
	Signed     bool
	ClaimHash  string
	StoredAt   time.Time
	Raw        json.RawMessage
	Claim      *manifest.Claim
}

// SQLStore keeps claims in a single table keyed by instance id.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures an SQLStore.
type Option func(*SQLStore)

func WithClock(now func() time.Time) Option { return func(s *SQLStore) { s.now = now } }

func WithLogger(l *slog.Logger) Option { return func(s *SQLStore) { s.logger = l } }

func New(db *sql.DB, dialect Dialect, opts ...Option) *SQLStore {
	s := &SQLStore{
		db:      db,
		dialect: dialect,
		now:     time.Now,
		logger:  slog.Default().With("component", "store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects with driver and dsn and creates the schema.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*SQLStore, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if dialect == DialectSQLite {
		// Each connection to an in-memory database sees its own copy.
		db.SetMaxOpenConns(1)
	}
	s := New(db, dialect, opts...)
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

// Init creates the claims and audit tables if they do not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	claims := `
	CREATE TABLE IF NOT EXISTS claims (
		instance_id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL DEFAULT '',
		format TEXT NOT NULL,
		signed BOOLEAN NOT NULL DEFAULT FALSE,
		claim_hash TEXT NOT NULL,
		stored_at TEXT NOT NULL,
		claim_json TEXT NOT NULL
	)`
	for _, query := range append([]string{claims}, auditSchema...) {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Put inserts or replaces a claim.
func (s *SQLStore) Put(ctx context.Context, c *manifest.Claim) (*Record, error) {
	if c == nil || c.InstanceID == "" {
		return nil, fmt.Errorf("%w: claim has no instance id", manifest.ErrInvalidClaim)
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("store: encode claim: %w", err)
	}
	hash, err := canonicalize.ClaimHash(c)
	if err != nil {
		return nil, fmt.Errorf("store: hash claim: %w", err)
	}
	rec := &Record{
		InstanceID: c.InstanceID,
		TenantID:   c.TenantID,
		Format:     c.Format,
		Signed:     c.Signed(),
		ClaimHash:  hash,
		StoredAt:   s.now().UTC(),
		Raw:        raw,
		Claim:      c,
	}

	query := s.rebind(`INSERT INTO claims (instance_id, tenant_id, format, signed, claim_hash, stored_at, claim_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instance_id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			format = excluded.format,
			signed = excluded.signed,
			claim_hash = excluded.claim_hash,
			stored_at = excluded.stored_at,
			claim_json = excluded.claim_json`)
	_, err = s.db.ExecContext(ctx, query,
		rec.InstanceID, rec.TenantID, rec.Format, rec.Signed, rec.ClaimHash,
		rec.StoredAt.Format(storedAtLayout), string(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("store: put %s: %w", c.InstanceID, err)
	}
	s.logger.DebugContext(ctx, "claim stored", "instance_id", rec.InstanceID, "signed", rec.Signed)
	return rec, nil
}

const selectColumns = `SELECT instance_id, tenant_id, format, signed, claim_hash, stored_at, claim_json FROM claims`

// Get loads a claim by instance id.
func (s *SQLStore) Get(ctx context.Context, instanceID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(selectColumns+` WHERE instance_id = ?`), instanceID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, instanceID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", instanceID, err)
	}
	return rec, nil
}

// List returns the most recently stored claims of a tenant. An empty tenant
// lists every claim.
func (s *SQLStore) List(ctx context.Context, tenantID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows *sql.Rows
		err  error
	)
	if tenantID == "" {
		rows, err = s.db.QueryContext(ctx, s.rebind(selectColumns+` ORDER BY stored_at DESC LIMIT ?`), limit)
	} else {
		rows, err = s.db.QueryContext(ctx, s.rebind(selectColumns+` WHERE tenant_id = ? ORDER BY stored_at DESC LIMIT ?`), tenantID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return out, nil
}

// Delete removes a claim.
func (s *SQLStore) Delete(ctx context.Context, instanceID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM claims WHERE instance_id = ?`), instanceID)
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", instanceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", instanceID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, instanceID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec      Record
		storedAt string
		raw      string
	)
	if err := row.Scan(&rec.InstanceID, &rec.TenantID, &rec.Format, &rec.Signed, &rec.ClaimHash, &storedAt, &raw); err != nil {
		return nil, err
	}
	t, err := time.Parse(storedAtLayout, storedAt)
	if err != nil {
		return nil, fmt.Errorf("parse stored_at: %w", err)
	}
	rec.StoredAt = t
	rec.Raw = json.RawMessage(raw)

	var c manifest.Claim
	if err := json.Unmarshal(rec.Raw, &c); err != nil {
		return nil, fmt.Errorf("decode claim %s: %w", rec.InstanceID, err)
	}
	rec.Claim = &c
	return &rec, nil
}
