package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Diffable is implemented by every domain entity that supports logged
// mutation. The audit wrapper operates over this capability instead of
// selecting a table from a runtime model name.
type Diffable interface {
	AuditEntity() string
	AuditRecordID() string
	AuditSnapshot() map[string]any
}

// Diff returns the fields whose values changed between two snapshots, as
// {field: {"from": x, "to": y}}. Either side may be nil for create/delete.
func Diff(before, after Diffable) map[string]any {
	var prev, next map[string]any
	if !isNil(before) {
		prev = before.AuditSnapshot()
	}
	if !isNil(after) {
		next = after.AuditSnapshot()
	}
	changes := make(map[string]any)
	for field, to := range next {
		from, had := prev[field]
		if !had || !reflect.DeepEqual(from, to) {
			changes[field] = map[string]any{"from": from, "to": to}
		}
	}
	for field, from := range prev {
		if _, still := next[field]; !still {
			changes[field] = map[string]any{"from": from, "to": nil}
		}
	}
	return changes
}

// isNil treats a typed nil pointer inside the interface the same as a plain
// nil, so create and delete callers can pass their entity pointer directly.
func isNil(d Diffable) bool {
	if d == nil {
		return true
	}
	v := reflect.ValueOf(d)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	at := log.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`, log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}

// AuditFilter narrows a List call. Zero fields are not filtered on.
type AuditFilter struct {
	Entity   string
	EntityID string
	Limit    int
}

// List returns audit entries, most recent first.
func (l *AuditLogger) List(ctx context.Context, f AuditFilter) ([]AuditLog, error) {
	if l == nil {
		return nil, errors.New("audit logger not initialised")
	}
	query := `SELECT actor_id, action, entity, entity_id, meta, occurred_at FROM audit_logs`
	args := []any{}
	if f.Entity != "" {
		args = append(args, f.Entity)
		query += ` WHERE entity = $1`
		if f.EntityID != "" {
			args = append(args, f.EntityID)
			query += ` AND entity_id = $2`
		}
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY occurred_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var entry AuditLog
		var meta []byte
		if err := rows.Scan(&entry.ActorID, &entry.Action, &entry.Entity, &entry.EntityID, &meta, &entry.At); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &entry.Meta); err != nil {
				return nil, err
			}
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// RecordChange diffs two entity states and persists the result so prior
// states remain reconstructable. Create passes a nil before, delete a nil
// after.
func (l *AuditLogger) RecordChange(ctx context.Context, actorID, action string, before, after Diffable) error {
	subject := after
	if isNil(subject) {
		subject = before
	}
	if isNil(subject) {
		return errors.New("audit change requires at least one state")
	}
	return l.Record(ctx, AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   subject.AuditEntity(),
		EntityID: subject.AuditRecordID(),
		Meta:     Diff(before, after),
	})
}
