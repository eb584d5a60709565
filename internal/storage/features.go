package storage

import (
	"context"
	"fmt"
)

const (
	FeatureAIMod         = "ai_mod"
	FeatureImageSpam     = "image_spam"
	FeatureRaidDetection = "raid_detection"
	FeatureAutoRole      = "auto_role"
	FeatureTickets       = "tickets"
)

var FeatureNames = []string{FeatureAIMod, FeatureImageSpam, FeatureRaidDetection, FeatureAutoRole, FeatureTickets}

type GuildFeatures struct {
	GuildID       string
	AIMod         bool
	ImageSpam     bool
	RaidDetection bool
	AutoRole      bool
	Tickets       bool
}

func DefaultGuildFeatures(guildID string) GuildFeatures {
	return GuildFeatures{GuildID: guildID, AIMod: true, ImageSpam: true, RaidDetection: true, AutoRole: true, Tickets: true}
}

// Enabled reports the toggle for name; unknown names are disabled.
func (f GuildFeatures) Enabled(name string) bool {
	switch name {
	case FeatureAIMod:
		return f.AIMod
	case FeatureImageSpam:
		return f.ImageSpam
	case FeatureRaidDetection:
		return f.RaidDetection
	case FeatureAutoRole:
		return f.AutoRole
	case FeatureTickets:
		return f.Tickets
	default:
		return false
	}
}

// GetFeatures returns the guild toggles, creating the default row on first read.
func (s *Store) GetFeatures(ctx context.Context, guildID string) (GuildFeatures, error) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO guild_features (guild_id) VALUES ($1)
		ON CONFLICT (guild_id) DO NOTHING
	`, guildID); err != nil {
		return GuildFeatures{}, err
	}

	features := GuildFeatures{GuildID: guildID}
	err := s.db.QueryRowContext(ctx, `
		SELECT ai_mod, image_spam, raid_detection, auto_role, tickets
		FROM guild_features WHERE guild_id = $1
	`, guildID).Scan(&features.AIMod, &features.ImageSpam, &features.RaidDetection, &features.AutoRole, &features.Tickets)
	if err != nil {
		return GuildFeatures{}, err
	}
	return features, nil
}

func (s *Store) SetFeature(ctx context.Context, guildID, name string, enabled bool) error {
	if !isFeature(name) {
		return fmt.Errorf("unknown feature %q", name)
	}
	// name is whitelisted above, so it is safe to splice as a column
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guild_features (guild_id, `+name+`) VALUES ($1, $2)
		ON CONFLICT (guild_id) DO UPDATE SET `+name+` = EXCLUDED.`+name,
		guildID, enabled)
	return err
}

func isFeature(name string) bool {
	for _, feature := range FeatureNames {
		if feature == name {
			return true
		}
	}
	return false
}
