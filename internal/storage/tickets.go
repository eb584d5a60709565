package storage

import (
	"context"
	"database/sql"
	"errors"
)

var (
	ErrNotTicket      = errors.New("channel is not a ticket")
	ErrAlreadyClaimed = errors.New("ticket already claimed")
	ErrNotClaimer     = errors.New("ticket not claimed by user")
)

type Ticket struct {
	ChannelID string
	GuildID   string
	OpenerID  string
	ClaimerID string
}

func (s *Store) OpenTicket(ctx context.Context, ticket Ticket) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets (channel_id, guild_id, opener_id, claimer_id)
		VALUES ($1, $2, $3, NULL)
	`, ticket.ChannelID, ticket.GuildID, ticket.OpenerID)
	return err
}

func (s *Store) GetTicket(ctx context.Context, channelID string) (Ticket, error) {
	var ticket Ticket
	var claimer sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT channel_id, guild_id, opener_id, claimer_id
		FROM tickets WHERE channel_id = $1
	`, channelID).Scan(&ticket.ChannelID, &ticket.GuildID, &ticket.OpenerID, &claimer)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Ticket{}, ErrNotTicket
		}
		return Ticket{}, err
	}
	ticket.ClaimerID = claimer.String
	return ticket, nil
}

func (s *Store) ClaimTicket(ctx context.Context, channelID, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET claimer_id = $2
		WHERE channel_id = $1 AND claimer_id IS NULL
	`, channelID, userID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 1 {
		return nil
	}
	if _, err := s.GetTicket(ctx, channelID); err != nil {
		return err
	}
	return ErrAlreadyClaimed
}

func (s *Store) UnclaimTicket(ctx context.Context, channelID, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET claimer_id = NULL
		WHERE channel_id = $1 AND claimer_id = $2
	`, channelID, userID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 1 {
		return nil
	}
	if _, err := s.GetTicket(ctx, channelID); err != nil {
		return err
	}
	return ErrNotClaimer
}

func (s *Store) CloseTicket(ctx context.Context, channelID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tickets WHERE channel_id = $1`, channelID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotTicket
	}
	return nil
}
