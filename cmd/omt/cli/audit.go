package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Nontawatt/OpenMediaTrust/pkg/authz"
	"github.com/Nontawatt/OpenMediaTrust/pkg/store"
)

// systemActor is recorded when no --actor is given.
const systemActor = "system"

func currentActor() string {
	return orDefault(actor, systemActor)
}

// authorize checks perm for userID when access control is enabled.
func authorize(cmd *cobra.Command, userID string, perm authz.Permission) error {
	if !cfg.Access.Enabled {
		return nil
	}
	if userID == "" || userID == systemActor {
		return fmt.Errorf("%w: %s needs an identified user (--actor)", authz.ErrPermissionDenied, perm)
	}
	az, err := cfg.Authorizer()
	if err != nil {
		return err
	}
	return az.Authorize(cmd.Context(), userID, perm)
}

// auditStatus maps an operation's error to its recorded outcome. Refusals
// are failures; anything else that went wrong is an error.
func auditStatus(opErr error) store.AuditStatus {
	switch {
	case opErr == nil:
		return store.AuditSuccess
	case errors.Is(opErr, authz.ErrPermissionDenied),
		errors.Is(opErr, errNotValid),
		errors.Is(opErr, errComplianceFailed):
		return store.AuditFailed
	default:
		return store.AuditError
	}
}

// recordAudit appends e to the audit trail when auditing is enabled and
// returns opErr joined with any failure to record it.
func recordAudit(cmd *cobra.Command, e store.AuditEntry, opErr error) error {
	if !cfg.Audit.Enabled || e.ManifestID == "" {
		return opErr
	}
	e.Status = auditStatus(opErr)
	if opErr != nil {
		e.ErrorMessage = opErr.Error()
	}
	s, err := openStore(cmd)
	if err != nil {
		return errors.Join(opErr, fmt.Errorf("audit: %w", err))
	}
	defer func() { _ = s.Close() }()
	if _, err := s.AddAuditLog(cmd.Context(), e); err != nil {
		return errors.Join(opErr, fmt.Errorf("audit: %w", err))
	}
	return opErr
}
