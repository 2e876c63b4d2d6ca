package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"amici-chat/internal/models"
)

// MessageRepository is the append-only message store.
type MessageRepository interface {
	CreateDirectMessage(ctx context.Context, senderID string, recipientID string, payload models.Payload) (models.Message, error)
	CreateChannelMessage(ctx context.Context, senderID string, channelID string, payload models.Payload) (models.Message, error)
	History(ctx context.Context, userA string, userB string) ([]models.Message, error)
	MessagesOf(ctx context.Context, channelID string) ([]models.Message, error)
	ListDirectContacts(ctx context.Context, userID string) ([]models.DirectContact, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `seq, id, sender_id, recipient_id, channel_id, message_type, content, file_url, created_at`

// CreateDirectMessage stores a message addressed to a single user.
func (r *MessageRepo) CreateDirectMessage(ctx context.Context, senderID string, recipientID string, payload models.Payload) (models.Message, error) {
	payload, err := ValidateSend(senderID, recipientID, payload)
	if err != nil {
		return models.Message{}, err
	}

	var msg models.Message
	err = r.db.QueryRowxContext(ctx, `INSERT INTO messages (id, sender_id, recipient_id, message_type, content, file_url)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+messageColumns,
		uuid.NewString(), senderID, recipientID, payload.Type, payload.Content, payload.FileURL).StructScan(&msg)
	if isInvalidID(err) {
		return models.Message{}, fmt.Errorf("%w: malformed user id", ErrValidation)
	}
	return msg, err
}

// CreateChannelMessage stores a channel message and bumps the channel's
// activity timestamp in the same transaction.
func (r *MessageRepo) CreateChannelMessage(ctx context.Context, senderID string, channelID string, payload models.Payload) (models.Message, error) {
	payload, err := ValidateSend(senderID, channelID, payload)
	if err != nil {
		return models.Message{}, err
	}

	var msg models.Message
	err = withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE channels SET updated_at=NOW() WHERE id=$1`, channelID)
		if isInvalidID(err) {
			return ErrChannelNotFound
		}
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrChannelNotFound
		}

		err = tx.QueryRowxContext(ctx, `INSERT INTO messages (id, sender_id, channel_id, message_type, content, file_url)
            VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+messageColumns,
			uuid.NewString(), senderID, channelID, payload.Type, payload.Content, payload.FileURL).StructScan(&msg)
		switch pqCode(err) {
		case pqForeignKeyViolation:
			return ErrChannelNotFound
		case pqInvalidTextRepresent:
			return fmt.Errorf("%w: malformed user id", ErrValidation)
		}
		return err
	})
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// History returns the direct conversation between two users in creation order.
func (r *MessageRepo) History(ctx context.Context, userA string, userB string) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE channel_id IS NULL
        AND ((sender_id=$1 AND recipient_id=$2) OR (sender_id=$2 AND recipient_id=$1))
        ORDER BY created_at ASC, seq ASC`, userA, userB)
	if isInvalidID(err) {
		return nil, fmt.Errorf("%w: malformed user id", ErrValidation)
	}
	return msgs, err
}

// MessagesOf returns every message of a channel in creation order.
func (r *MessageRepo) MessagesOf(ctx context.Context, channelID string) ([]models.Message, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM channels WHERE id=$1)`, channelID)
	if isInvalidID(err) {
		return nil, ErrChannelNotFound
	}
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrChannelNotFound
	}

	msgs := []models.Message{}
	err = r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages WHERE channel_id=$1 ORDER BY created_at ASC, seq ASC`, channelID)
	return msgs, err
}

// ListDirectContacts returns everyone the user exchanged direct messages
// with, most recent conversation first.
func (r *MessageRepo) ListDirectContacts(ctx context.Context, userID string) ([]models.DirectContact, error) {
	contacts := []models.DirectContact{}
	err := r.db.SelectContext(ctx, &contacts, `SELECT u.id, u.email, u.first_name, u.last_name, u.image, u.color, u.profile_setup, t.last_message_at
        FROM (
            SELECT CASE WHEN sender_id=$1 THEN recipient_id ELSE sender_id END AS contact_id, MAX(created_at) AS last_message_at
            FROM messages
            WHERE channel_id IS NULL AND (sender_id=$1 OR recipient_id=$1)
            GROUP BY contact_id
        ) t
        JOIN users u ON u.id = t.contact_id
        ORDER BY t.last_message_at DESC`, userID)
	if isInvalidID(err) {
		return contacts, nil
	}
	return contacts, err
}
