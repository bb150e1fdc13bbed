package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/git-krishnabisht/vaatsip-sub000/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound     = errors.New("store: not found")
	ErrSelfMessage  = errors.New("store: sender and receiver are the same user")
	ErrEmptyMessage = errors.New("store: message has no body and no attachments")
)

// Store persists users, messages and attachments in sqlite. It is the sole
// source of message ids (AUTOINCREMENT, monotonically unique) and creation
// timestamps.
type Store struct {
	conn *sql.DB
}

func New(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	s := &Store{conn: conn}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id INTEGER PRIMARY KEY AUTOINCREMENT,
			sender_id INTEGER NOT NULL REFERENCES users(user_id),
			receiver_id INTEGER NOT NULL REFERENCES users(user_id),
			body TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS attachments (
			attachment_id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id INTEGER NOT NULL REFERENCES messages(message_id),
			mime_type TEXT NOT NULL,
			data BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments(message_id)`,
	}

	for _, query := range queries {
		if _, err := s.conn.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, name string) (int64, error) {
	res, err := s.conn.ExecContext(ctx, "INSERT INTO users(name) VALUES (?)", name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) UserExists(ctx context.Context, userID int64) (bool, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE user_id = ?", userID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateMessage persists a message with its attachments in one transaction
// and returns the canonical record, id and timestamp included.
func (s *Store) CreateMessage(ctx context.Context, senderID, receiverID int64, body *string, attachments []domain.Attachment) (*domain.Message, error) {
	if senderID == receiverID {
		return nil, ErrSelfMessage
	}
	if (body == nil || *body == "") && len(attachments) == 0 {
		return nil, ErrEmptyMessage
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	createdAt := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		"INSERT INTO messages(sender_id, receiver_id, body, created_at) VALUES (?, ?, ?, ?)",
		senderID, receiverID, body, createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	messageID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	saved := make([]domain.Attachment, 0, len(attachments))
	for _, att := range attachments {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO attachments(message_id, mime_type, data) VALUES (?, ?, ?)",
			messageID, att.MimeType, att.Data)
		if err != nil {
			return nil, err
		}
		attID, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		saved = append(saved, domain.Attachment{
			AttachmentID: attID,
			MimeType:     att.MimeType,
			Data:         att.Data,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &domain.Message{
		MessageID:   messageID,
		SenderID:    senderID,
		ReceiverID:  receiverID,
		Body:        body,
		CreatedAt:   createdAt,
		Attachments: saved,
	}, nil
}

func (s *Store) MessageByID(ctx context.Context, messageID int64) (*domain.Message, error) {
	var (
		msg       domain.Message
		createdAt string
	)
	err := s.conn.QueryRowContext(ctx,
		"SELECT message_id, sender_id, receiver_id, body, created_at FROM messages WHERE message_id = ?",
		messageID).Scan(&msg.MessageID, &msg.SenderID, &msg.ReceiverID, &msg.Body, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if msg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if msg.Attachments, err = s.attachmentsFor(ctx, msg.MessageID); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MessagesBetween returns the full conversation between two users in
// insertion order, which is the authoritative conversation order.
func (s *Store) MessagesBetween(ctx context.Context, userA, userB int64) ([]domain.Message, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT message_id, sender_id, receiver_id, body, created_at FROM messages
		 WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		 ORDER BY message_id ASC`,
		userA, userB, userB, userA)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var (
			msg       domain.Message
			createdAt string
		)
		if err := rows.Scan(&msg.MessageID, &msg.SenderID, &msg.ReceiverID, &msg.Body, &createdAt); err != nil {
			return nil, err
		}
		if msg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadAttachments(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// loadAttachments fills in the attachments for a batch of messages with a
// single query; history fetches would otherwise issue one query per message.
func (s *Store) loadAttachments(ctx context.Context, messages []domain.Message) error {
	if len(messages) == 0 {
		return nil
	}

	index := make(map[int64]*domain.Message, len(messages))
	placeholders := make([]string, 0, len(messages))
	args := make([]interface{}, 0, len(messages))
	for i := range messages {
		index[messages[i].MessageID] = &messages[i]
		placeholders = append(placeholders, "?")
		args = append(args, messages[i].MessageID)
	}

	rows, err := s.conn.QueryContext(ctx,
		"SELECT message_id, attachment_id, mime_type, data FROM attachments WHERE message_id IN ("+
			strings.Join(placeholders, ",")+") ORDER BY attachment_id ASC",
		args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			messageID int64
			att       domain.Attachment
		)
		if err := rows.Scan(&messageID, &att.AttachmentID, &att.MimeType, &att.Data); err != nil {
			return err
		}
		if msg, ok := index[messageID]; ok {
			msg.Attachments = append(msg.Attachments, att)
		}
	}
	return rows.Err()
}

func (s *Store) attachmentsFor(ctx context.Context, messageID int64) ([]domain.Attachment, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT attachment_id, mime_type, data FROM attachments WHERE message_id = ? ORDER BY attachment_id ASC",
		messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attachments []domain.Attachment
	for rows.Next() {
		var att domain.Attachment
		if err := rows.Scan(&att.AttachmentID, &att.MimeType, &att.Data); err != nil {
			return nil, err
		}
		attachments = append(attachments, att)
	}
	return attachments, rows.Err()
}
