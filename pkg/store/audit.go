package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Nontawatt/OpenMediaTrust/pkg/canonicalize"
)

var (
	ErrInvalidAuditEntry = errors.New("store: invalid audit entry")
	ErrAuditChainBroken  = errors.New("store: audit hash chain is broken")
)

// genesisHash is the previous hash of the first entry of every manifest.
const genesisHash = "genesis"

// AuditStatus is the outcome of an audited operation.
type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditFailed  AuditStatus = "failed"
	AuditError   AuditStatus = "error"
)

// Audited operations.
const (
	OpCreate     = "create"
	OpUpdate     = "update"
	OpSign       = "sign"
	OpVerify     = "verify"
	OpApprove    = "approve"
	OpCompliance = "compliance"
)

// AuditEntry records one operation on a manifest. Entries of a manifest
// form a hash chain ordered by Sequence.
type AuditEntry struct {
	ID           string         `json:"id"`
	ManifestID   string         `json:"manifest_id"`
	Sequence     int64          `json:"sequence"`
	Operation    string         `json:"operation"`
	UserID       string         `json:"user_id"`
	UserName     string         `json:"user_name,omitempty"`
	UserRole     string         `json:"user_role,omitempty"`
	Status       AuditStatus    `json:"status"`
	Details      map[string]any `json:"details,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	PreviousHash string         `json:"previous_hash"`
	EntryHash    string         `json:"entry_hash"`
}

var auditSchema = []string{
	`CREATE TABLE IF NOT EXISTS audit_log (
		entry_id TEXT PRIMARY KEY,
		manifest_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		operation TEXT NOT NULL,
		user_id TEXT NOT NULL,
		user_name TEXT NOT NULL DEFAULT '',
		user_role TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '{}',
		error_message TEXT NOT NULL DEFAULT '',
		recorded_at TEXT NOT NULL,
		previous_hash TEXT NOT NULL,
		entry_hash TEXT NOT NULL,
		UNIQUE (manifest_id, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS audit_log_user ON audit_log (user_id)`,
}

// entryHash covers every stored column except the entry id. details is the
// canonical JSON text exactly as stored.
func entryHash(e *AuditEntry, details string) (string, error) {
	return canonicalize.CanonicalHash(struct {
		ManifestID   string `json:"manifest_id"`
		Sequence     int64  `json:"sequence"`
		Operation    string `json:"operation"`
		UserID       string `json:"user_id"`
		UserName     string `json:"user_name"`
		UserRole     string `json:"user_role"`
		Status       string `json:"status"`
		Details      string `json:"details"`
		ErrorMessage string `json:"error_message"`
		RecordedAt   string `json:"recorded_at"`
		PreviousHash string `json:"previous_hash"`
	}{
		ManifestID:   e.ManifestID,
		Sequence:     e.Sequence,
		Operation:    e.Operation,
		UserID:       e.UserID,
		UserName:     e.UserName,
		UserRole:     e.UserRole,
		Status:       string(e.Status),
		Details:      details,
		ErrorMessage: e.ErrorMessage,
		RecordedAt:   e.Timestamp.Format(storedAtLayout),
		PreviousHash: e.PreviousHash,
	})
}

// AddAuditLog appends an entry to the manifest's audit trail. The id,
// sequence, timestamp and hashes are assigned here. The manifest need not
// be stored; the trail outlives claim deletion.
func (s *SQLStore) AddAuditLog(ctx context.Context, e AuditEntry) (*AuditEntry, error) {
	switch {
	case e.ManifestID == "":
		return nil, fmt.Errorf("%w: manifest id is required", ErrInvalidAuditEntry)
	case e.Operation == "":
		return nil, fmt.Errorf("%w: operation is required", ErrInvalidAuditEntry)
	case e.UserID == "":
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidAuditEntry)
	}
	switch e.Status {
	case "":
		e.Status = AuditSuccess
	case AuditSuccess, AuditFailed, AuditError:
	default:
		return nil, fmt.Errorf("%w: status %q", ErrInvalidAuditEntry, e.Status)
	}
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	details, err := canonicalize.JCSString(e.Details)
	if err != nil {
		return nil, fmt.Errorf("%w: details: %v", ErrInvalidAuditEntry, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: audit %s: %w", e.ManifestID, err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		lastSeq  int64
		lastHash = genesisHash
	)
	err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT seq, entry_hash FROM audit_log WHERE manifest_id = ? ORDER BY seq DESC LIMIT 1`),
		e.ManifestID,
	).Scan(&lastSeq, &lastHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: audit %s: chain head: %w", e.ManifestID, err)
	}

	e.ID = uuid.NewString()
	e.Sequence = lastSeq + 1
	e.Timestamp = s.now().UTC()
	e.PreviousHash = lastHash
	if e.EntryHash, err = entryHash(&e, details); err != nil {
		return nil, fmt.Errorf("store: audit %s: %w", e.ManifestID, err)
	}

	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO audit_log
		(entry_id, manifest_id, seq, operation, user_id, user_name, user_role, status, details, error_message, recorded_at, previous_hash, entry_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.ManifestID, e.Sequence, e.Operation, e.UserID, e.UserName, e.UserRole,
		string(e.Status), details, e.ErrorMessage, e.Timestamp.Format(storedAtLayout),
		e.PreviousHash, e.EntryHash,
	)
	if err != nil {
		return nil, fmt.Errorf("store: audit %s: %w", e.ManifestID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: audit %s: %w", e.ManifestID, err)
	}
	s.logger.DebugContext(ctx, "audit entry recorded",
		"manifest_id", e.ManifestID,
		"operation", e.Operation,
		"user_id", e.UserID,
		"status", e.Status,
		"seq", e.Sequence,
	)
	return &e, nil
}

const auditColumns = `SELECT entry_id, manifest_id, seq, operation, user_id, user_name, user_role, status, details, error_message, recorded_at, previous_hash, entry_hash FROM audit_log`

// AuditLogs returns up to limit entries of a manifest, newest first.
func (s *SQLStore) AuditLogs(ctx context.Context, manifestID string, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	entries, _, err := s.queryAudit(ctx,
		s.rebind(auditColumns+` WHERE manifest_id = ? ORDER BY seq DESC LIMIT ?`), manifestID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: audit logs %s: %w", manifestID, err)
	}
	return entries, nil
}

// VerifyAuditChain recomputes every entry hash of a manifest's trail and
// checks the links between them.
func (s *SQLStore) VerifyAuditChain(ctx context.Context, manifestID string) error {
	entries, details, err := s.queryAudit(ctx,
		s.rebind(auditColumns+` WHERE manifest_id = ? ORDER BY seq ASC`), manifestID)
	if err != nil {
		return fmt.Errorf("store: audit chain %s: %w", manifestID, err)
	}
	prev := genesisHash
	for i, e := range entries {
		if e.Sequence != int64(i+1) || e.PreviousHash != prev {
			return fmt.Errorf("%w: %s entry %d does not follow its predecessor", ErrAuditChainBroken, manifestID, e.Sequence)
		}
		want, err := entryHash(e, details[i])
		if err != nil {
			return fmt.Errorf("store: audit chain %s: %w", manifestID, err)
		}
		if want != e.EntryHash {
			return fmt.Errorf("%w: %s entry %d was modified", ErrAuditChainBroken, manifestID, e.Sequence)
		}
		prev = e.EntryHash
	}
	return nil
}

// queryAudit also returns the stored details text of each entry.
func (s *SQLStore) queryAudit(ctx context.Context, query string, args ...any) ([]*AuditEntry, []string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()

	var (
		entries []*AuditEntry
		details []string
	)
	for rows.Next() {
		var (
			e          AuditEntry
			status     string
			raw        string
			recordedAt string
		)
		if err := rows.Scan(&e.ID, &e.ManifestID, &e.Sequence, &e.Operation, &e.UserID, &e.UserName, &e.UserRole,
			&status, &raw, &e.ErrorMessage, &recordedAt, &e.PreviousHash, &e.EntryHash); err != nil {
			return nil, nil, err
		}
		e.Status = AuditStatus(status)
		if e.Timestamp, err = time.Parse(storedAtLayout, recordedAt); err != nil {
			return nil, nil, fmt.Errorf("parse recorded_at: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &e.Details); err != nil {
			return nil, nil, fmt.Errorf("decode details of %s: %w", e.ID, err)
		}
		entries = append(entries, &e)
		details = append(details, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return entries, details, nil
}
