package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/ygoldman/classdesk/internal/importer"
	"github.com/ygoldman/classdesk/internal/logging"
)

// AuditLog implements importer.AuditSink by appending one event row per
// committed batch. Emission is fire-and-forget: a failed insert is logged
// and never propagated, since the import itself already succeeded.
type AuditLog struct {
	db DBTX
}

// NewAuditLog creates an audit sink over the given connection or pool.
func NewAuditLog(db DBTX) *AuditLog {
	return &AuditLog{db: db}
}

// ImportApplied records one committed import batch.
func (a *AuditLog) ImportApplied(ctx context.Context, event importer.ImportEvent) {
	_, err := a.db.Exec(ctx, `
INSERT INTO audit_log (id, action, actor_id, actor_name, actor_role,
                       total_rows, updated_count, failed_count, created_at)
VALUES ($1::uuid, 'students_import', $2::uuid, $3, $4, $5, $6, $7, $8)`,
		uuid.New().String(),
		event.Actor.UserID.String(),
		event.Actor.UserName,
		event.Actor.Role,
		event.TotalRows,
		event.UpdatedCount,
		event.FailedCount,
		event.Actor.At,
	)
	if err != nil {
		logging.FromContext(ctx).Error("audit append failed",
			"action", "students_import", "error", err)
	}
}
