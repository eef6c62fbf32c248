package store

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/reverie/internal/models"
)

// AppendExchange appends msgs to their conversations in one transaction and
// returns them with ids assigned. Either every message is stored or none is.
func (s *Store) AppendExchange(ctx context.Context, msgs ...models.ChatMessage) ([]models.ChatMessage, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fail("append exchange", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO chat_messages (owner_id, conversation_id, sender, text, mode, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`))
	if err != nil {
		return nil, fail("append exchange", err)
	}
	defer stmt.Close()

	out := make([]models.ChatMessage, len(msgs))
	for i, m := range msgs {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		if err := stmt.QueryRowContext(ctx, m.OwnerID, m.ConversationID, string(m.Sender),
			m.Text, m.Mode, m.CreatedAt).Scan(&m.ID); err != nil {
			return nil, fail("append exchange", fmt.Errorf("message %d: %w", i, err))
		}
		out[i] = m
	}
	if err := tx.Commit(); err != nil {
		return nil, fail("append exchange", err)
	}
	return out, nil
}

// RecentMessages returns up to n messages of a conversation, most recent first.
func (s *Store) RecentMessages(ctx context.Context, ownerID, conversationID string, n int) ([]models.ChatMessage, error) {
	if n <= 0 {
		return []models.ChatMessage{}, nil
	}
	rows, err := s.conn.QueryContext(ctx, s.rebind(`
		SELECT id, owner_id, conversation_id, sender, text, mode, created_at
		FROM chat_messages
		WHERE owner_id = ? AND conversation_id = ?
		ORDER BY id DESC
		LIMIT ?
	`), ownerID, conversationID, n)
	if err != nil {
		return nil, fail("recent messages", err)
	}
	defer rows.Close()

	out := []models.ChatMessage{}
	for rows.Next() {
		var (
			m      models.ChatMessage
			sender string
		)
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.ConversationID, &sender, &m.Text, &m.Mode, &m.CreatedAt); err != nil {
			return nil, fail("recent messages", err)
		}
		m.Sender = models.Sender(sender)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("recent messages", err)
	}
	return out, nil
}
