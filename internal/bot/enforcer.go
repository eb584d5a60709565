package bot

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"sentinel-moderation/internal/storage"

	"github.com/bwmarrin/discordgo"
)

const embedColor = 0x5865F2

// GuildConfigs resolves the per-guild channel and role configuration.
type GuildConfigs interface {
	GetGuildConfig(ctx context.Context, guildID string) (storage.GuildConfig, bool, error)
}

// Enforcer applies dispatch decisions through the Discord REST API.
type Enforcer struct {
	session  *discordgo.Session
	configs  GuildConfigs
	location *time.Location
}

func NewEnforcer(session *discordgo.Session, configs GuildConfigs, timezone string) (*Enforcer, error) {
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return &Enforcer{session: session, configs: configs, location: location}, nil
}

func (e *Enforcer) LogModerationEvent(ctx context.Context, guildID, title, description string) error {
	cfg, ok, err := e.configs.GetGuildConfig(ctx, guildID)
	if err != nil {
		return err
	}
	// guilds without /setup have nowhere to log
	if !ok || cfg.LogChannelID == "" {
		return nil
	}
	embed := moderationEmbed(title, description, time.Now(), e.location)
	return withContext(ctx, func() error {
		_, err := e.session.ChannelMessageSendEmbed(cfg.LogChannelID, embed)
		return err
	})
}

func (e *Enforcer) TimeoutUser(ctx context.Context, guildID, userID string, duration time.Duration) error {
	until := time.Now().Add(duration)
	return withContext(ctx, func() error {
		return e.session.GuildMemberTimeout(guildID, userID, &until)
	})
}

func (e *Enforcer) AssignRole(ctx context.Context, guildID, userID, roleID string) error {
	return withContext(ctx, func() error {
		return e.session.GuildMemberRoleAdd(guildID, userID, roleID)
	})
}

func moderationEmbed(title, description string, now time.Time, location *time.Location) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s | %s UK", title, now.In(location).Format("2006-01-02 15:04:05")),
		Description: description,
		Color:       embedColor,
	}
}

// withContext returns when fn finishes or ctx is done, whichever comes first.
// The REST client keeps its own timeout, so an abandoned call still ends.
func withContext(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
