package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the transcript and conversation digest in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore uses an existing pool. The caller owns the pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if err := initSchema(ctx, pool); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_turns (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at TIMESTAMPTZ
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_turns_user_id ON chat_turns (user_id, id);`,
		`CREATE TABLE IF NOT EXISTS conversation_memory (
			user_id TEXT PRIMARY KEY,
			summary TEXT NOT NULL DEFAULT '',
			pinned_facts JSONB,
			watermark BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveTurn(ctx context.Context, turn Turn) (Turn, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO chat_turns (user_id, role, content, pii_redacted)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		turn.UserID,
		string(turn.Role),
		turn.Content,
		turn.PIIRedacted,
	).Scan(&turn.ID, &turn.CreatedAt)
	if err != nil {
		return Turn{}, fmt.Errorf("save turn: %w", err)
	}
	return turn, nil
}

func (s *PostgresStore) TurnsAfter(ctx context.Context, userID string, afterID int64) ([]Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, role, content, pii_redacted, created_at, deleted_at
		 FROM chat_turns WHERE user_id=$1 AND id > $2 ORDER BY id ASC`,
		userID,
		afterID,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns after watermark: %w", err)
	}
	return collectTurns(rows)
}

func (s *PostgresStore) RecentVisible(ctx context.Context, userID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 12
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, role, content, pii_redacted, created_at, deleted_at
		 FROM chat_turns WHERE user_id=$1 AND deleted_at IS NULL
		 ORDER BY id DESC LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	items, err := collectTurns(rows)
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order for prompt coherence.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func collectTurns(rows pgx.Rows) ([]Turn, error) {
	defer rows.Close()
	var items []Turn
	for rows.Next() {
		var (
			t    Turn
			role string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &role, &t.Content, &t.PIIRedacted, &t.CreatedAt, &t.DeletedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.Role = Role(role)
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SoftDeleteAll(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE chat_turns SET deleted_at = now() WHERE user_id=$1 AND deleted_at IS NULL`,
		userID,
	); err != nil {
		return fmt.Errorf("soft delete turns: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, userID string) (Conversation, bool, error) {
	conv, err := scanConversation(s.pool.QueryRow(ctx,
		`SELECT user_id, summary, pinned_facts, watermark, updated_at
		 FROM conversation_memory WHERE user_id=$1`,
		userID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, false, nil
	}
	if err != nil {
		return Conversation{}, false, fmt.Errorf("load conversation: %w", err)
	}
	return conv, true, nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, conv Conversation) (Conversation, error) {
	facts, err := encodeFacts(conv.PinnedFacts)
	if err != nil {
		return Conversation{}, err
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_memory (user_id, summary, pinned_facts, watermark)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO NOTHING`,
		conv.UserID,
		conv.Summary,
		facts,
		conv.Watermark,
	); err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	stored, _, err := s.GetConversation(ctx, conv.UserID)
	return stored, err
}

func (s *PostgresStore) AdvanceMemory(ctx context.Context, next Conversation, expected int64) error {
	if next.Watermark < expected {
		return fmt.Errorf("memory: watermark cannot move backwards (%d < %d)", next.Watermark, expected)
	}
	facts, err := encodeFacts(next.PinnedFacts)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversation_memory
		 SET summary=$2, pinned_facts=$3, watermark=$4, updated_at=now()
		 WHERE user_id=$1 AND watermark=$5`,
		next.UserID,
		next.Summary,
		facts,
		next.Watermark,
		expected,
	)
	if err != nil {
		return fmt.Errorf("advance memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleWatermark
	}
	return nil
}

func (s *PostgresStore) UsersWithPendingTurns(ctx context.Context, minPending int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT t.user_id
		 FROM chat_turns t
		 LEFT JOIN conversation_memory m ON m.user_id = t.user_id
		 WHERE t.id > COALESCE(m.watermark, 0)
		 GROUP BY t.user_id
		 HAVING COUNT(*) >= $1
		 ORDER BY t.user_id`,
		minPending,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending user: %w", err)
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending users: %w", err)
	}
	return users, nil
}

func (s *PostgresStore) Close() error { return nil }

func scanConversation(row pgx.Row) (Conversation, error) {
	var (
		conv  Conversation
		facts []byte
	)
	if err := row.Scan(&conv.UserID, &conv.Summary, &facts, &conv.Watermark, &conv.UpdatedAt); err != nil {
		return Conversation{}, err
	}
	if len(facts) > 0 {
		var pf PinnedFacts
		if err := json.Unmarshal(facts, &pf); err != nil {
			return Conversation{}, fmt.Errorf("decode pinned facts: %w", err)
		}
		if !pf.IsZero() {
			conv.PinnedFacts = &pf
		}
	}
	return conv, nil
}

func encodeFacts(pf *PinnedFacts) ([]byte, error) {
	if pf == nil || pf.IsZero() {
		return nil, nil
	}
	b, err := json.Marshal(pf)
	if err != nil {
		return nil, fmt.Errorf("encode pinned facts: %w", err)
	}
	return b, nil
}
