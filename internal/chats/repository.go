// Package chats persists chat sessions and their ordered message logs.
package chats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"murmur/internal/models"
)

var (
	ErrNotFound        = errors.New("chat not found")
	ErrEphemeral       = errors.New("system messages are not persisted")
	ErrSlotNotReserved = errors.New("message slot was not reserved")
)

const activeChatKey = "active_chat_id"

// Repository stores chats in sqlite. Every mutating call commits before it
// returns. Reads fail soft: unreadable data is logged and skipped.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) Create(ctx context.Context) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating chat id: %w", err)
	}

	now := r.now().UnixMilli()
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO chats(id, title, created_at, updated_at, next_seq) VALUES(?, ?, ?, ?, 1)",
		id.String(),
		models.DefaultTitle,
		now,
		now,
	)
	if err != nil {
		return "", fmt.Errorf("creating chat: %w", err)
	}
	return id.String(), nil
}

// List returns chat summaries, most recently updated first.
func (r *Repository) List(ctx context.Context) ([]models.ChatSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id AND m.role = 'user')
		FROM chats c
		ORDER BY c.updated_at DESC, c.id DESC`)
	if err != nil {
		slog.Warn("listing chats failed, treating collection as empty", "error", err)
		return []models.ChatSummary{}, nil
	}
	defer rows.Close()

	items := []models.ChatSummary{}
	for rows.Next() {
		var (
			it               models.ChatSummary
			created, updated int64
		)
		if err := rows.Scan(&it.ID, &it.Title, &created, &updated, &it.UserMessages); err != nil {
			slog.Warn("skipping unreadable chat row", "error", err)
			continue
		}
		it.CreatedAt = time.UnixMilli(created)
		it.UpdatedAt = time.UnixMilli(updated)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		slog.Warn("reading chat list interrupted", "error", err)
	}
	return items, nil
}

func (r *Repository) Get(ctx context.Context, id string) (models.ChatSession, error) {
	var (
		s                models.ChatSession
		created, updated int64
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT id, title, created_at, updated_at FROM chats WHERE id = ?",
		id,
	).Scan(&s.ID, &s.Title, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatSession{}, ErrNotFound
	}
	if err != nil {
		slog.Warn("reading chat failed", "chat_id", id, "error", err)
		return models.ChatSession{}, ErrNotFound
	}
	s.CreatedAt = time.UnixMilli(created)
	s.UpdatedAt = time.UnixMilli(updated)

	s.Messages, err = r.messages(ctx, id)
	if err != nil {
		slog.Warn("reading chat messages failed", "chat_id", id, "error", err)
		s.Messages = []models.ChatMessage{}
	}
	return s, nil
}

func (r *Repository) messages(ctx context.Context, chatID string) ([]models.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT seq, role, content, created_at FROM messages WHERE chat_id = ? ORDER BY seq ASC",
		chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []models.ChatMessage{}
	for rows.Next() {
		var (
			m    models.ChatMessage
			role string
			ts   int64
		)
		if err := rows.Scan(&m.Seq, &role, &m.Content, &ts); err != nil {
			slog.Warn("skipping unreadable message row", "chat_id", chatID, "error", err)
			continue
		}
		m.Role = models.Role(role)
		if !m.Role.Persistable() {
			slog.Warn("skipping message with unknown role", "chat_id", chatID, "role", role)
			continue
		}
		m.Timestamp = time.UnixMilli(ts)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// AppendMessage stores msg in the next free slot of the chat.
func (r *Repository) AppendMessage(ctx context.Context, id string, msg models.ChatMessage) (models.ChatMessage, error) {
	if !msg.Role.Persistable() {
		return models.ChatMessage{}, ErrEphemeral
	}

	var saved models.ChatMessage
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		seq, err := takeSlot(ctx, tx, id)
		if err != nil {
			return err
		}
		saved, err = r.insert(ctx, tx, id, seq, msg)
		return err
	})
	return saved, err
}

// ReserveSlot claims the next position in the chat without writing a message.
// The slot is filled later with FillSlot, which keeps replies in the order
// their requests were made.
func (r *Repository) ReserveSlot(ctx context.Context, id string) (int64, error) {
	var seq int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		seq, err = takeSlot(ctx, tx, id)
		return err
	})
	return seq, err
}

func (r *Repository) FillSlot(ctx context.Context, id string, seq int64, msg models.ChatMessage) (models.ChatMessage, error) {
	if !msg.Role.Persistable() {
		return models.ChatMessage{}, ErrEphemeral
	}

	var saved models.ChatMessage
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var next int64
		err := tx.QueryRowContext(ctx, "SELECT next_seq FROM chats WHERE id = ?", id).Scan(&next)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if seq <= 0 || seq >= next {
			return fmt.Errorf("%w: seq %d", ErrSlotNotReserved, seq)
		}
		saved, err = r.insert(ctx, tx, id, seq, msg)
		return err
	})
	return saved, err
}

func takeSlot(ctx context.Context, tx *sql.Tx, id string) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx, "SELECT next_seq FROM chats WHERE id = ?", id).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE chats SET next_seq = ? WHERE id = ?", seq+1, id); err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *Repository) insert(ctx context.Context, tx *sql.Tx, id string, seq int64, msg models.ChatMessage) (models.ChatMessage, error) {
	now := r.now()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	msg.Seq = seq

	_, err := tx.ExecContext(ctx,
		"INSERT INTO messages(chat_id, seq, role, content, created_at) VALUES(?, ?, ?, ?, ?)",
		id,
		seq,
		string(msg.Role),
		msg.Content,
		msg.Timestamp.UnixMilli(),
	)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("inserting message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE chats SET updated_at = ? WHERE id = ?", now.UnixMilli(), id); err != nil {
		return models.ChatMessage{}, err
	}
	return msg, nil
}

// DeriveTitle sets the title from the first user message while the chat still
// carries the default title. It returns the resulting title.
func (r *Repository) DeriveTitle(ctx context.Context, id string) (string, error) {
	var title string
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, "SELECT title FROM chats WHERE id = ?", id).Scan(&title)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if title != models.DefaultTitle {
			return nil
		}

		var first string
		err = tx.QueryRowContext(ctx,
			"SELECT content FROM messages WHERE chat_id = ? AND role = 'user' ORDER BY seq ASC LIMIT 1",
			id,
		).Scan(&first)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		title = models.DeriveTitle(first)
		_, err = tx.ExecContext(ctx, "UPDATE chats SET title = ? WHERE id = ?", title, id)
		return err
	})
	return title, err
}

func (r *Repository) Rename(ctx context.Context, id, title string) error {
	title = models.DeriveTitle(title)
	res, err := r.db.ExecContext(ctx, "UPDATE chats SET title = ? WHERE id = ?", title, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE chat_id = ?", id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM chats WHERE id = ?", id)
		if err != nil {
			return err
		}
		if err := requireRow(res); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM meta WHERE key = ? AND value = ?", activeChatKey, id)
		return err
	})
}

func (r *Repository) DeleteAll(ctx context.Context) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			"DELETE FROM messages",
			"DELETE FROM chats",
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM meta WHERE key = ?", activeChatKey)
		return err
	})
}

// ActiveID returns the persisted active chat id if it still resolves.
func (r *Repository) ActiveID(ctx context.Context) (string, bool) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT m.value FROM meta m
		JOIN chats c ON c.id = m.value
		WHERE m.key = ?`,
		activeChatKey,
	).Scan(&id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("reading active chat failed", "error", err)
		}
		return "", false
	}
	return id, true
}

// SetActiveID persists the active chat id. An empty id clears it.
func (r *Repository) SetActiveID(ctx context.Context, id string) error {
	if id == "" {
		_, err := r.db.ExecContext(ctx, "DELETE FROM meta WHERE key = ?", activeChatKey)
		return err
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO meta(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		activeChatKey,
		id,
	)
	return err
}

func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
