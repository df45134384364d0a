package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRecorder inserts events into <schema>.audit_log.
type PostgresRecorder struct {
	pool   *pgxpool.Pool
	schema string
	log    *slog.Logger

	// Timeout bounds each insert; the request context may already be done.
	Timeout time.Duration
}

// NewPostgresRecorder returns a recorder writing to schema.audit_log.
func NewPostgresRecorder(pool *pgxpool.Pool, schema string, log *slog.Logger) (*PostgresRecorder, error) {
	if pool == nil {
		return nil, errors.New("audit: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "huozhong"
	}
	if log == nil {
		log = slog.Default()
	}
	return &PostgresRecorder{pool: pool, schema: schema, log: log, Timeout: 3 * time.Second}, nil
}

func (r *PostgresRecorder) Record(ctx context.Context, ev Event) {
	if err := r.insert(ctx, ev); err != nil {
		r.log.Error("audit.insert.fail", "err", err, "event_type", string(ev.Type))
	}
}

func (r *PostgresRecorder) insert(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.Timeout)
	defer cancel()

	var details *string
	if len(ev.Details) > 0 {
		b, err := json.Marshal(ev.Details)
		if err != nil {
			return err
		}
		s := string(b)
		details = &s
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO `+pgx.Identifier{r.schema, "audit_log"}.Sanitize()+` (
			id, event_type, ip, subject_id, details, occurred_at
		) VALUES ($1, $2, $3, $4, $5::jsonb, $6)
	`, ev.ID, string(ev.Type), ev.IP, ev.SubjectID, details, ev.At)
	return err
}

// Recent returns up to limit events, newest first.
func (r *PostgresRecorder) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type, ip, subject_id, details, occurred_at
		  FROM `+pgx.Identifier{r.schema, "audit_log"}.Sanitize()+`
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev      Event
			typ     string
			details []byte
		)
		if err := rows.Scan(&ev.ID, &typ, &ev.IP, &ev.SubjectID, &details, &ev.At); err != nil {
			return nil, err
		}
		ev.Type = EventType(typ)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &ev.Details); err != nil {
				return nil, err
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
