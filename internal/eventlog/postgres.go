package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/lib/pq"
)

// PostgresLog implements Log against an append-only event_log table with
// a bigserial sequence column for cursoring, grounded on
// internal/indexer.PostgresRecordRepository's *sql.DB + slog.Logger style.
type PostgresLog struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresLog creates a PostgresLog.
func NewPostgresLog(db *sql.DB, logger *slog.Logger) *PostgresLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLog{db: db, logger: logger}
}

func (l *PostgresLog) Append(ctx context.Context, tenant, messageCID, recordID string, indexes map[string]any) error {
	indexJSON, err := json.Marshal(indexes)
	if err != nil {
		return fmt.Errorf("eventlog: marshal indexes: %w", err)
	}

	const query = `
		INSERT INTO dwn_event_log (tenant, message_cid, record_id, indexes, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	if _, err := l.db.ExecContext(ctx, query, tenant, messageCID, recordID, indexJSON); err != nil {
		l.logger.Error("eventlog: append failed",
			slog.String("tenant", tenant),
			slog.String("message_cid", messageCID),
			slog.String("error", err.Error()))
		return fmt.Errorf("eventlog: append: %w", err)
	}
	return nil
}

func (l *PostgresLog) GetEvents(ctx context.Context, tenant, cursor string) ([]*Event, string, error) {
	after := int64(0)
	if cursor != "" {
		parsed, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, "", ErrNotFound
		}
		after = parsed
	}

	const query = `
		SELECT seq, message_cid, record_id, indexes, created_at
		FROM dwn_event_log
		WHERE tenant = $1 AND seq > $2
		ORDER BY seq ASC
	`
	rows, err := l.db.QueryContext(ctx, query, tenant, after)
	if err != nil {
		return nil, "", fmt.Errorf("eventlog: get events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	var last int64
	for rows.Next() {
		var seq int64
		var messageCID, recordID string
		var indexJSON []byte
		var createdAt interface{}
		if err := rows.Scan(&seq, &messageCID, &recordID, &indexJSON, &createdAt); err != nil {
			return nil, "", fmt.Errorf("eventlog: scan row: %w", err)
		}
		indexes := make(map[string]any)
		if err := json.Unmarshal(indexJSON, &indexes); err != nil {
			return nil, "", fmt.Errorf("eventlog: decode indexes: %w", err)
		}
		out = append(out, &Event{Tenant: tenant, MessageCID: messageCID, RecordID: recordID, Indexes: indexes})
		last = seq
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("eventlog: iterate rows: %w", err)
	}

	next := ""
	if len(out) > 0 {
		next = strconv.FormatInt(last, 10)
	}
	return out, next, nil
}

func (l *PostgresLog) DeleteEventsByCID(ctx context.Context, tenant string, messageCIDs []string) error {
	if len(messageCIDs) == 0 {
		return nil
	}
	const query = `DELETE FROM dwn_event_log WHERE tenant = $1 AND message_cid = ANY($2)`
	if _, err := l.db.ExecContext(ctx, query, tenant, pq.Array(messageCIDs)); err != nil {
		return fmt.Errorf("eventlog: delete events: %w", err)
	}
	return nil
}
