package bot

import (
	"context"
	"sync"
	"time"

	"sentinel-moderation/internal/analytics"
	"sentinel-moderation/internal/config"
	"sentinel-moderation/internal/dispatch"
	"sentinel-moderation/internal/engine"
	"sentinel-moderation/internal/features"
	"sentinel-moderation/internal/modules/audit"
	"sentinel-moderation/internal/queue"
	"sentinel-moderation/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	cfg        config.Config
	logger     *zap.Logger
	store      *storage.Store
	engine     *engine.Engine
	gate       *features.Gate
	pool       *queue.Pool
	dispatcher *dispatch.Dispatcher
	audit      *audit.Logger
	analytics  *analytics.Service
	session    *discordgo.Session
	commands   sync.WaitGroup
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, eng *engine.Engine, gate *features.Gate, pool *queue.Pool, auditLogger *audit.Logger, analyticsService *analytics.Service) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent
	// handlers run in arrival order so pool submission preserves it
	session.SyncEvents = true

	enforcer, err := NewEnforcer(session, store, cfg.Timezone)
	if err != nil {
		return nil, err
	}
	dispatcher := dispatch.New(dispatch.Config{
		Timeout:         cfg.Dispatch.Timeout(),
		BreakerFailures: uint32(cfg.Dispatch.BreakerFailures),
		BreakerOpen:     cfg.Dispatch.BreakerOpen(),
		Workers:         cfg.Dispatch.Workers,
		Buffer:          cfg.Dispatch.Buffer,
	}, enforcer, auditLogger, logger)

	return &Bot{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		engine:     eng,
		gate:       gate,
		pool:       pool,
		dispatcher: dispatcher,
		audit:      auditLogger,
		analytics:  analyticsService,
		session:    session,
	}, nil
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	return b.registerCommands()
}

// Close stops intake, drains queued events and waits for in-flight
// enforcement until ctx expires.
func (b *Bot) Close(ctx context.Context) {
	if b.session != nil {
		_ = b.session.Close()
	}
	b.pool.Close()

	done := make(chan struct{})
	go func() {
		b.commands.Wait()
		b.dispatcher.Wait()
		b.dispatcher.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("shutdown with enforcement still in flight")
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", session.State.User.Username), zap.Int("guilds", len(event.Guilds)))
}

func (b *Bot) onGuildMemberAdd(session *discordgo.Session, event *discordgo.GuildMemberAdd) {
	join, ok := joinEvent(event, time.Now())
	if !ok {
		return
	}
	b.submit(join.GuildID, func() {
		ctx := context.Background()
		join.MemberRoleID = memberRole(ctx, b.gate, b.store, join.GuildID, b.logger)
		outcome := b.engine.HandleJoin(ctx, join)
		b.dispatcher.Dispatch(ctx, outcome.Decisions)
	})
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	message, ok := messageEvent(msg, time.Now())
	if !ok {
		return
	}
	b.submit(message.GuildID+":"+message.UserID, func() {
		ctx := context.Background()
		outcome := b.engine.HandleMessage(ctx, message)
		if outcome.Scored {
			b.logger.Debug("message scored",
				zap.String("guild_id", message.GuildID),
				zap.String("user_id", message.UserID),
				zap.Int("score", outcome.Score),
			)
		}
		b.dispatcher.Dispatch(ctx, outcome.Decisions)
	})
}

func (b *Bot) submit(key string, task func()) {
	if !b.pool.Submit(key, task) {
		b.logger.Debug("event dropped after shutdown", zap.String("key", key))
	}
}

// async runs task off the gateway reader; Close waits for it.
func (b *Bot) async(task func()) {
	b.commands.Add(1)
	go func() {
		defer b.commands.Done()
		task()
	}()
}

// memberRole resolves the auto-role for a join. Storage is only consulted when
// the guild has auto_role on.
func memberRole(ctx context.Context, gate engine.Gate, configs GuildConfigs, guildID string, logger *zap.Logger) string {
	if !gate.IsEnabled(ctx, guildID, storage.FeatureAutoRole) {
		return ""
	}
	cfg, ok, err := configs.GetGuildConfig(ctx, guildID)
	if err != nil {
		logger.Warn("guild config lookup failed", zap.String("guild_id", guildID), zap.Error(err))
		return ""
	}
	if !ok {
		return ""
	}
	return cfg.MemberRoleID
}

// joinEvent stamps a member join with its receipt time.
func joinEvent(event *discordgo.GuildMemberAdd, now time.Time) (engine.JoinEvent, bool) {
	if event == nil || event.Member == nil || event.User == nil || event.GuildID == "" {
		return engine.JoinEvent{}, false
	}
	return engine.JoinEvent{GuildID: event.GuildID, UserID: event.User.ID, Timestamp: now}, true
}

// messageEvent ignores direct messages and bot authors.
func messageEvent(msg *discordgo.MessageCreate, now time.Time) (engine.MessageEvent, bool) {
	if msg == nil || msg.Message == nil || msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return engine.MessageEvent{}, false
	}
	return engine.MessageEvent{
		GuildID:         msg.GuildID,
		UserID:          msg.Author.ID,
		Timestamp:       now,
		Text:            msg.Content,
		HasAttachment:   len(msg.Attachments) > 0,
		AttachmentCount: len(msg.Attachments),
	}, true
}
