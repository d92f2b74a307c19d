package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"confreg/internal/model"
)

func insertAudit(ctx context.Context, tx *sql.Tx, actorID int64, action, entity string, entityID int64, detail map[string]any) error {
	payload, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("failed to marshal audit detail: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (actor_member_id, action, entity, entity_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, actorID, action, entity, entityID, string(payload)); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func lowerStatus(status string) string {
	return strings.ToLower(status)
}

func (r *repository) ListAuditLogs(ctx context.Context, limit int) ([]model.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, actor_member_id, action, entity, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit logs: %w", err)
	}
	defer rows.Close()

	logs := []model.AuditLog{}
	for rows.Next() {
		var (
			l      model.AuditLog
			detail []byte
		)
		if err := rows.Scan(&l.ID, &l.ActorMemberID, &l.Action, &l.Entity, &l.EntityID, &detail, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		l.Detail = json.RawMessage(detail)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
