package sqlstore

import (
	"database/sql"

	"github.com/pliu/palaver/internal/models"
)

func (s *SQLStore) SaveMessage(msg models.Message) error {
	var recipient sql.NullString
	if msg.Recipient != "" {
		recipient = sql.NullString{String: msg.Recipient, Valid: true}
	}

	query := s.rebind("INSERT INTO messages (id, content, sender, recipient, created_at) VALUES (?, ?, ?, ?, ?)")
	_, err := s.db.Exec(query, msg.ID, msg.Content, msg.Sender, recipient, msg.CreatedAt)
	return err
}

// GetMessages returns up to limit messages visible to username, oldest first.
// Visible means broadcasts plus privates the user sent or received. An empty
// username returns everything.
func (s *SQLStore) GetMessages(limit int, username string) ([]models.Message, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if username == "" {
		query := s.rebind(`
			SELECT id, content, sender, COALESCE(recipient, ''), created_at
			FROM messages
			ORDER BY created_at DESC
			LIMIT ?
		`)
		rows, err = s.db.Query(query, limit)
	} else {
		query := s.rebind(`
			SELECT id, content, sender, COALESCE(recipient, ''), created_at
			FROM messages
			WHERE recipient IS NULL OR recipient = ? OR sender = ?
			ORDER BY created_at DESC
			LIMIT ?
		`)
		rows, err = s.db.Query(query, username, username, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.Content, &m.Sender, &m.Recipient, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query is newest-first so LIMIT keeps the most recent; flip to chronological.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// GetConversations lists the distinct private-message counterparts of a user
// with the time of the most recent exchange, newest conversation first.
func (s *SQLStore) GetConversations(username string) ([]models.Conversation, error) {
	query := s.rebind(`
		SELECT
			CASE WHEN sender = ? THEN recipient ELSE sender END AS counterpart,
			MAX(created_at) AS last_at
		FROM messages
		WHERE recipient IS NOT NULL AND (sender = ? OR recipient = ?)
		GROUP BY counterpart
		ORDER BY last_at DESC
	`)
	rows, err := s.db.Query(query, username, username, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.Counterpart, &c.LastMessage); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}
