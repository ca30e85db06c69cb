package messagestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/onnwee/dwnd/internal/dwnmodel"
)

// PostgresStore implements Store on top of a single dwn_messages table: one
// row per (tenant, message_cid) carrying the encoded message bytes and its
// indexed properties as jsonb. Filtering, sorting, cursoring and limiting
// are done in Go by reducing the tenant's rows to []candidate and calling
// runQuery — the same algorithm InMemoryStore uses — rather than compiling
// FilterSets to SQL, since indexed properties are dynamic per protocol and
// the shape of those dynamic WHERE clauses is exactly spec §4.3's query
// engine, already implemented once and tested against spec §8's scenarios.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a PostgresStore. db must already be opened
// against a schema carrying the dwn_messages table (see
// migrations/000001_create_dwn_messages.up.sql).
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) Put(ctx context.Context, tenant, messageCID string, encoded []byte, indexes map[string]any) error {
	if len(indexes) == 0 {
		return ErrIndexMissingRequiredProperty
	}

	indexJSON, err := json.Marshal(indexes)
	if err != nil {
		return fmt.Errorf("messagestore: marshal indexes: %w", err)
	}

	const query = `
		INSERT INTO dwn_messages (tenant, message_cid, encoded, indexes, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tenant, message_cid) DO UPDATE SET
			encoded = EXCLUDED.encoded,
			indexes = EXCLUDED.indexes
	`
	if _, err := s.db.ExecContext(ctx, query, tenant, messageCID, encoded, indexJSON); err != nil {
		s.logger.Error("messagestore: put failed",
			slog.String("tenant", tenant),
			slog.String("message_cid", messageCID),
			slog.String("error", err.Error()))
		return fmt.Errorf("messagestore: put: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tenant, messageCID string) (*StoredMessage, error) {
	const query = `SELECT encoded, indexes FROM dwn_messages WHERE tenant = $1 AND message_cid = $2`

	var encoded []byte
	var indexJSON []byte
	err := s.db.QueryRowContext(ctx, query, tenant, messageCID).Scan(&encoded, &indexJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("messagestore: get: %w", err)
	}

	indexes := make(map[string]any)
	if err := json.Unmarshal(indexJSON, &indexes); err != nil {
		return nil, fmt.Errorf("messagestore: decode indexes: %w", err)
	}

	return &StoredMessage{
		Tenant:     tenant,
		MessageCID: messageCID,
		Encoded:    encoded,
		Indexes:    indexes,
	}, nil
}

func (s *PostgresStore) Query(ctx context.Context, tenant string, filters []dwnmodel.FilterSet, opts QueryOptions) ([]*StoredMessage, string, error) {
	const query = `SELECT message_cid, encoded, indexes FROM dwn_messages WHERE tenant = $1`

	rows, err := s.db.QueryContext(ctx, query, tenant)
	if err != nil {
		return nil, "", fmt.Errorf("messagestore: query: %w", err)
	}
	defer rows.Close()

	candidates := make([]candidate, 0)
	byCID := make(map[string]*StoredMessage)
	for rows.Next() {
		var cid string
		var encoded []byte
		var indexJSON []byte
		if err := rows.Scan(&cid, &encoded, &indexJSON); err != nil {
			return nil, "", fmt.Errorf("messagestore: scan row: %w", err)
		}
		indexes := make(map[string]any)
		if err := json.Unmarshal(indexJSON, &indexes); err != nil {
			return nil, "", fmt.Errorf("messagestore: decode indexes: %w", err)
		}
		candidates = append(candidates, candidate{messageCID: cid, indexes: indexes})
		byCID[cid] = &StoredMessage{Tenant: tenant, MessageCID: cid, Encoded: encoded, Indexes: indexes}
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("messagestore: iterate rows: %w", err)
	}

	matched, next := runQuery(candidates, filters, opts)

	out := make([]*StoredMessage, 0, len(matched))
	for _, c := range matched {
		out = append(out, byCID[c.messageCID])
	}
	return out, next, nil
}

func (s *PostgresStore) Delete(ctx context.Context, tenant, messageCID string) error {
	const query = `DELETE FROM dwn_messages WHERE tenant = $1 AND message_cid = $2`
	if _, err := s.db.ExecContext(ctx, query, tenant, messageCID); err != nil {
		return fmt.Errorf("messagestore: delete: %w", err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dwn_messages`); err != nil {
		return fmt.Errorf("messagestore: clear: %w", err)
	}
	return nil
}
