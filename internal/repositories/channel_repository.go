package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"amici-chat/internal/models"
)

// MembershipReader is the part of the channel store the delivery path reads.
type MembershipReader interface {
	MembersOf(ctx context.Context, channelID string) ([]string, error)
	IsMember(ctx context.Context, channelID string, userID string) (bool, error)
}

// ChannelRepository abstracts channel persistence.
type ChannelRepository interface {
	MembershipReader
	CreateChannel(ctx context.Context, adminID string, name string, memberIDs []string) (models.Channel, error)
	GetChannel(ctx context.Context, channelID string) (models.Channel, error)
	ListChannelsForUser(ctx context.Context, userID string) ([]models.Channel, error)
	AddMembers(ctx context.Context, channelID string, memberIDs []string) ([]string, error)
	RemoveMember(ctx context.Context, channelID string, memberID string) error
	LeaveChannel(ctx context.Context, channelID string, userID string) (models.LeaveResult, error)
	DeleteChannel(ctx context.Context, channelID string) error
}

// ChannelRepo is a sqlx implementation of ChannelRepository.
type ChannelRepo struct {
	db *sqlx.DB
}

// NewChannelRepo constructs a ChannelRepo.
func NewChannelRepo(db *sqlx.DB) *ChannelRepo {
	return &ChannelRepo{db: db}
}

const channelColumns = `id, name, admin_id, created_at, updated_at`

// CreateChannel creates a channel and its members atomically. The admin is
// never stored as a member.
func (r *ChannelRepo) CreateChannel(ctx context.Context, adminID string, name string, memberIDs []string) (models.Channel, error) {
	var channel models.Channel
	members := dedupe(memberIDs, adminID)

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, `INSERT INTO channels (id, name, admin_id) VALUES ($1, $2, $3) RETURNING `+channelColumns,
			uuid.NewString(), name, adminID).StructScan(&channel)
		if err != nil {
			if isInvalidID(err) {
				return ErrValidation
			}
			return err
		}
		for _, id := range members {
			// clock_timestamp keeps insertion order, which decides admin succession.
			if _, err := tx.ExecContext(ctx, `INSERT INTO channel_members (channel_id, user_id, added_at) VALUES ($1, $2, clock_timestamp())`, channel.ID, id); err != nil {
				if isInvalidID(err) {
					return ErrValidation
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Channel{}, err
	}
	channel.Members = members
	return channel, nil
}

// GetChannel fetches a channel with its member list.
func (r *ChannelRepo) GetChannel(ctx context.Context, channelID string) (models.Channel, error) {
	var channel models.Channel
	err := r.db.GetContext(ctx, &channel, `SELECT `+channelColumns+` FROM channels WHERE id=$1`, channelID)
	if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
		return models.Channel{}, ErrChannelNotFound
	}
	if err != nil {
		return models.Channel{}, err
	}
	members := []string{}
	if err := r.db.SelectContext(ctx, &members, `SELECT user_id FROM channel_members WHERE channel_id=$1 ORDER BY added_at ASC, user_id ASC`, channelID); err != nil {
		return models.Channel{}, err
	}
	channel.Members = members
	return channel, nil
}

// ListChannelsForUser returns channels where the user is admin or member,
// most recently active first.
func (r *ChannelRepo) ListChannelsForUser(ctx context.Context, userID string) ([]models.Channel, error) {
	channels := []models.Channel{}
	err := r.db.SelectContext(ctx, &channels, `SELECT c.id, c.name, c.admin_id, c.created_at, c.updated_at FROM channels c
        WHERE c.admin_id=$1 OR EXISTS (SELECT 1 FROM channel_members m WHERE m.channel_id=c.id AND m.user_id=$1)
        ORDER BY c.updated_at DESC`, userID)
	if isInvalidID(err) {
		return channels, nil
	}
	if err != nil || len(channels) == 0 {
		return channels, err
	}

	ids := make([]string, 0, len(channels))
	index := make(map[string]int, len(channels))
	for i, c := range channels {
		ids = append(ids, c.ID)
		index[c.ID] = i
		channels[i].Members = []string{}
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT channel_id, user_id FROM channel_members WHERE channel_id = ANY($1::uuid[]) ORDER BY added_at ASC, user_id ASC`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var channelID, userID string
		if err := rows.Scan(&channelID, &userID); err != nil {
			return nil, err
		}
		i := index[channelID]
		channels[i].Members = append(channels[i].Members, userID)
	}
	return channels, rows.Err()
}

// MembersOf returns the admin and members of a channel.
func (r *ChannelRepo) MembersOf(ctx context.Context, channelID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT admin_id FROM channels WHERE id=$1
        UNION ALL
        SELECT user_id FROM (SELECT user_id FROM channel_members WHERE channel_id=$1 ORDER BY added_at ASC) m`, channelID)
	if isInvalidID(err) {
		return nil, ErrChannelNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrChannelNotFound
	}
	return dedupe(ids, ""), nil
}

// IsMember checks whether the user is the admin or a member.
func (r *ChannelRepo) IsMember(ctx context.Context, channelID string, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM channels WHERE id=$1 AND admin_id=$2)
        OR EXISTS(SELECT 1 FROM channel_members WHERE channel_id=$1 AND user_id=$2)`, channelID, userID)
	if isInvalidID(err) {
		return false, nil
	}
	return exists, err
}

// AddMembers adds users that are not yet participants and returns them.
func (r *ChannelRepo) AddMembers(ctx context.Context, channelID string, memberIDs []string) ([]string, error) {
	var added []string
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var adminID string
		err := tx.GetContext(ctx, &adminID, `SELECT admin_id FROM channels WHERE id=$1 FOR UPDATE`, channelID)
		if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
			return ErrChannelNotFound
		}
		if err != nil {
			return err
		}
		for _, id := range dedupe(memberIDs, adminID) {
			res, err := tx.ExecContext(ctx, `INSERT INTO channel_members (channel_id, user_id, added_at) VALUES ($1, $2, clock_timestamp())
                ON CONFLICT (channel_id, user_id) DO NOTHING`, channelID, id)
			if err != nil {
				if isInvalidID(err) {
					return ErrValidation
				}
				return err
			}
			if n, _ := res.RowsAffected(); n > 0 {
				added = append(added, id)
			}
		}
		if len(added) == 0 {
			return ErrNoNewMembers
		}
		_, err = tx.ExecContext(ctx, `UPDATE channels SET updated_at=NOW() WHERE id=$1`, channelID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// RemoveMember drops a member. The admin cannot be removed this way.
func (r *ChannelRepo) RemoveMember(ctx context.Context, channelID string, memberID string) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM channel_members WHERE channel_id=$1 AND user_id=$2`, channelID, memberID)
		if isInvalidID(err) {
			return ErrMemberNotFound
		}
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM channels WHERE id=$1)`, channelID); err != nil {
				return err
			}
			if !exists {
				return ErrChannelNotFound
			}
			return ErrMemberNotFound
		}
		_, err = tx.ExecContext(ctx, `UPDATE channels SET updated_at=NOW() WHERE id=$1`, channelID)
		return err
	})
}

// LeaveChannel removes the user. An admin hands the role to the earliest
// added member, or deletes the channel when nobody is left.
func (r *ChannelRepo) LeaveChannel(ctx context.Context, channelID string, userID string) (models.LeaveResult, error) {
	var result models.LeaveResult
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var adminID string
		err := tx.GetContext(ctx, &adminID, `SELECT admin_id FROM channels WHERE id=$1 FOR UPDATE`, channelID)
		if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
			return ErrChannelNotFound
		}
		if err != nil {
			return err
		}

		if adminID != userID {
			res, err := tx.ExecContext(ctx, `DELETE FROM channel_members WHERE channel_id=$1 AND user_id=$2`, channelID, userID)
			if isInvalidID(err) {
				return ErrForbidden
			}
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return ErrForbidden
			}
			result.Outcome = models.LeaveRemoved
		} else {
			var successor string
			err := tx.GetContext(ctx, &successor, `SELECT user_id FROM channel_members WHERE channel_id=$1 ORDER BY added_at ASC, user_id ASC LIMIT 1`, channelID)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				if _, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE id=$1`, channelID); err != nil {
					return err
				}
				result.Outcome = models.LeaveChannelDeleted
				return nil
			case err != nil:
				return err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE channels SET admin_id=$2 WHERE id=$1`, channelID, successor); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM channel_members WHERE channel_id=$1 AND user_id=$2`, channelID, successor); err != nil {
				return err
			}
			result.Outcome = models.LeaveAdminTransferred
			result.NewAdmin = successor
		}

		if _, err := tx.ExecContext(ctx, `UPDATE channels SET updated_at=NOW() WHERE id=$1`, channelID); err != nil {
			return err
		}
		return tx.SelectContext(ctx, &result.Remaining, `SELECT admin_id FROM channels WHERE id=$1
            UNION ALL
            SELECT user_id FROM (SELECT user_id FROM channel_members WHERE channel_id=$1 ORDER BY added_at ASC) m`, channelID)
	})
	if err != nil {
		return models.LeaveResult{}, err
	}
	return result, nil
}

// DeleteChannel deletes a channel; members and messages cascade.
func (r *ChannelRepo) DeleteChannel(ctx context.Context, channelID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM channels WHERE id=$1`, channelID)
	if isInvalidID(err) {
		return ErrChannelNotFound
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrChannelNotFound
	}
	return nil
}
