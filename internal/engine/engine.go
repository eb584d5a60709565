// Package engine evaluates gateway events against the window store and turns
// them into moderation decisions. Evaluation never blocks on I/O: decisions are
// returned to the caller, which dispatches them after every store lock is gone.
package engine

import (
	"context"
	"time"

	"sentinel-moderation/internal/dispatch"
	"sentinel-moderation/internal/metrics"
	"sentinel-moderation/internal/raid"
	"sentinel-moderation/internal/scoring"
	"sentinel-moderation/internal/storage"
	"sentinel-moderation/internal/utils"
	"sentinel-moderation/internal/window"

	"go.uber.org/zap"
)

type JoinEvent struct {
	GuildID   string
	UserID    string
	Timestamp time.Time
	// MemberRoleID is the configured auto-role, empty when none is set.
	MemberRoleID string
}

type MessageEvent struct {
	GuildID         string
	UserID          string
	Timestamp       time.Time
	Text            string
	HasAttachment   bool
	AttachmentCount int
}

// Gate answers per-guild feature toggles.
type Gate interface {
	IsEnabled(ctx context.Context, guildID, feature string) bool
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Config struct {
	Window       window.Config
	Rules        scoring.Rules
	RaidJoins    int
	ImageLimit   int
	ImageTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Window:       window.DefaultConfig(),
		Rules:        scoring.DefaultRules(),
		RaidJoins:    5,
		ImageLimit:   5,
		ImageTimeout: 10 * time.Minute,
	}
}

type JoinOutcome struct {
	Joins     int
	Decisions []dispatch.Decision
}

type MessageOutcome struct {
	Scored    bool
	Score     int
	Images    int
	Decisions []dispatch.Decision
}

type Engine struct {
	cfg    Config
	store  *window.Store
	scorer scoring.Scorer
	raid   *raid.Machine
	gate   Gate
	clock  Clock
	logger *zap.Logger
}

func New(cfg Config, gate Gate, logger *zap.Logger) *Engine {
	if cfg.ImageLimit <= 0 {
		cfg.ImageLimit = 5
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = 10 * time.Minute
	}
	store := window.NewStore(cfg.Window)
	return &Engine{
		cfg:    cfg,
		store:  store,
		scorer: scoring.New(cfg.Rules),
		raid:   raid.NewMachine(store, cfg.RaidJoins),
		gate:   gate,
		clock:  realClock{},
		logger: logger,
	}
}

func (e *Engine) WithClock(clock Clock) {
	e.clock = clock
}

func (e *Engine) HandleJoin(ctx context.Context, event JoinEvent) JoinOutcome {
	metrics.RecordEvent("join")
	now := e.timestamp(event.Timestamp)

	var outcome JoinOutcome
	if e.gate.IsEnabled(ctx, event.GuildID, storage.FeatureRaidDetection) {
		transition := e.raid.OnJoin(event.GuildID, now)
		outcome.Joins = transition.Joins
		if transition.Activated {
			e.logger.Warn("raid mode activated", zap.String("guild_id", event.GuildID), zap.Int("joins", transition.Joins))
			outcome.Decisions = append(outcome.Decisions, dispatch.RaidModeActivated(event.GuildID, transition.Joins))
		}
	}

	if event.MemberRoleID != "" && e.gate.IsEnabled(ctx, event.GuildID, storage.FeatureAutoRole) {
		outcome.Decisions = append(outcome.Decisions, dispatch.AutoRole(event.GuildID, event.UserID, event.MemberRoleID))
	}
	return outcome
}

func (e *Engine) HandleMessage(ctx context.Context, event MessageEvent) MessageOutcome {
	metrics.RecordEvent("message")
	now := e.timestamp(event.Timestamp)

	var outcome MessageOutcome
	if e.gate.IsEnabled(ctx, event.GuildID, storage.FeatureAIMod) {
		outcome.Scored = true
		outcome.Score = e.score(event, now)
		metrics.RecordScore(outcome.Score)
		if e.scorer.Flagged(outcome.Score) {
			outcome.Decisions = append(outcome.Decisions, dispatch.AIFlag(event.GuildID, event.UserID, outcome.Score, utils.LinkHost(event.Text)))
		}
	}

	// one entry per message, however many files it carries
	if event.HasAttachment && e.gate.IsEnabled(ctx, event.GuildID, storage.FeatureImageSpam) {
		outcome.Images = e.store.RecordImage(event.GuildID, event.UserID, now)
		if outcome.Images >= e.cfg.ImageLimit {
			e.store.ClearImages(event.GuildID, event.UserID)
			outcome.Decisions = append(outcome.Decisions, dispatch.ImageSpam(event.GuildID, event.UserID, outcome.Images, e.cfg.ImageTimeout))
		}
	}
	return outcome
}

func (e *Engine) score(event MessageEvent, now time.Time) int {
	return e.scorer.Score(scoring.Signals{
		ActivityCount: e.store.RecordMessageActivity(event.GuildID, event.UserID, now),
		RepeatCount:   e.store.RecordMessageContent(event.GuildID, event.UserID, event.Text),
		HasURL:        utils.ContainsURL(event.Text),
		RaidActive:    e.store.IsRaidActive(event.GuildID),
	})
}

func (e *Engine) RaidState(guildID string) raid.State {
	return e.raid.State(guildID)
}

// ResetRaid is the operator exit from raid mode.
func (e *Engine) ResetRaid(guildID string) bool {
	return e.raid.Reset(guildID)
}

func (e *Engine) Stats() window.Stats {
	stats := e.store.Stats()
	metrics.TrackedGuilds.Set(float64(stats.Guilds))
	return stats
}

func (e *Engine) timestamp(ts time.Time) time.Time {
	if ts.IsZero() {
		return e.clock.Now()
	}
	return ts
}
