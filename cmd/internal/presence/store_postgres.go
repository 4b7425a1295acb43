package presence

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a MessageStore backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "pipit").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("presence: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("presence: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed MessageStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "pipit",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("presence: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Insert persists one private message. The id is assigned by the caller
// before the insert so that delivery can reference it without a round trip.
func (s *PostgresStore) Insert(ctx context.Context, msg Message) error {
	if s == nil || s.pool == nil {
		return errors.New("presence: nil store")
	}
	if err := validateMessage(msg); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	messages := pgIdent(s.schema, "conversation_messages")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+messages+` (id, sender_id, receiver_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Content, msg.CreatedAt,
	)
	return err
}

// ListConversation returns messages between exactly two users, newest first,
// paged by the ULID id cursor.
func (s *PostgresStore) ListConversation(ctx context.Context, in ListConversationInput) (ListConversationResult, error) {
	if s == nil || s.pool == nil {
		return ListConversationResult{}, errors.New("presence: nil store")
	}
	if in.UserA == "" || in.UserB == "" {
		return ListConversationResult{}, errors.New("missing user id")
	}
	if err := ctx.Err(); err != nil {
		return ListConversationResult{}, err
	}

	limit := in.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	fetch := limit + 1

	messages := pgIdent(s.schema, "conversation_messages")

	var (
		rows pgx.Rows
		err  error
	)

	if in.BeforeID == "" {
		rows, err = s.pool.Query(ctx,
			`SELECT id, sender_id, receiver_id, content, created_at
			   FROM `+messages+`
			  WHERE (sender_id = $1 AND receiver_id = $2)
			     OR (sender_id = $2 AND receiver_id = $1)
			  ORDER BY id DESC
			  LIMIT $3`,
			in.UserA, in.UserB, fetch,
		)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT id, sender_id, receiver_id, content, created_at
			   FROM `+messages+`
			  WHERE ((sender_id = $1 AND receiver_id = $2)
			     OR (sender_id = $2 AND receiver_id = $1))
			    AND id < $3
			  ORDER BY id DESC
			  LIMIT $4`,
			in.UserA, in.UserB, in.BeforeID, fetch,
		)
	}
	if err != nil {
		return ListConversationResult{}, err
	}
	defer rows.Close()

	msgs := make([]Message, 0, fetch)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.CreatedAt); err != nil {
			return ListConversationResult{}, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return ListConversationResult{}, err
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}

	return ListConversationResult{Messages: msgs, HasMore: hasMore}, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
