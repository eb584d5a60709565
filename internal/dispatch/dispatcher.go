// Package dispatch routes engine decisions to the enforcement collaborator.
// It holds no decision logic; calls run off the event path, are bounded by a
// timeout and are never retried.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sentinel-moderation/internal/metrics"
	"sentinel-moderation/internal/modules/audit"
	"sentinel-moderation/internal/queue"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Enforcer performs the platform-side effects of a decision.
type Enforcer interface {
	LogModerationEvent(ctx context.Context, guildID, title, description string) error
	TimeoutUser(ctx context.Context, guildID, userID string, duration time.Duration) error
	AssignRole(ctx context.Context, guildID, userID, roleID string) error
}

type Config struct {
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerOpen     time.Duration
	Workers         int
	Buffer          int
}

type Dispatcher struct {
	enforcer Enforcer
	audit    *audit.Logger
	logger   *zap.Logger
	cfg      Config
	pool     *queue.Pool
	wg       sync.WaitGroup

	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker[struct{}]
}

func New(cfg Config, enforcer Enforcer, auditLogger *audit.Logger, logger *zap.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpen <= 0 {
		cfg.BreakerOpen = 30 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}

	return &Dispatcher{
		enforcer: enforcer,
		audit:    auditLogger,
		logger:   logger,
		cfg:      cfg,
		pool:     queue.New(cfg.Workers, cfg.Buffer, logger),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// Dispatch queues decisions behind earlier ones for the same guild and
// returns immediately. A guild whose backlog is full loses the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, decisions []Decision) {
	if len(decisions) == 0 {
		return
	}
	for _, decision := range decisions {
		metrics.RecordDecision(string(decision.Kind))
	}

	ctx = context.WithoutCancel(ctx)
	guildID := decisions[0].GuildID
	d.wg.Add(1)
	accepted := d.pool.TrySubmit(guildID, func() {
		defer d.wg.Done()
		for _, decision := range decisions {
			d.apply(ctx, decision)
		}
	})
	if !accepted {
		d.wg.Done()
		d.logger.Warn("enforcement backlog full, decisions dropped", zap.String("guild_id", guildID), zap.Int("decisions", len(decisions)))
	}
}

// Wait blocks until every dispatched decision has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close drains queued decisions and stops the workers.
func (d *Dispatcher) Close() {
	d.pool.Close()
}

func (d *Dispatcher) apply(ctx context.Context, decision Decision) {
	switch decision.Kind {
	case KindAIFlag:
		description := fmt.Sprintf("<@%s> score %d", decision.UserID, decision.Score)
		if decision.Link != "" {
			description += " link " + decision.Link
		}
		d.audit.Log(ctx, audit.LevelWarn, decision.GuildID, decision.UserID, string(KindAIFlag), fmt.Sprintf("score=%d link=%s", decision.Score, decision.Link))
		d.notify(ctx, decision, "🤖 AI Flag", description)

	case KindRaidMode:
		d.audit.Log(ctx, audit.LevelCrit, decision.GuildID, "", string(KindRaidMode), fmt.Sprintf("joins=%d", decision.Count))
		d.notify(ctx, decision, "🚨 RAID MODE", "High join rate")

	case KindImageSpam:
		minutes := int(decision.Timeout / time.Minute)
		err := d.call(ctx, decision, "timeout", func(callCtx context.Context) error {
			return d.enforcer.TimeoutUser(callCtx, decision.GuildID, decision.UserID, decision.Timeout)
		})
		if err != nil {
			return
		}
		d.audit.Log(ctx, audit.LevelWarn, decision.GuildID, decision.UserID, string(KindImageSpam), fmt.Sprintf("images=%d timeout_minutes=%d", decision.Count, minutes))
		d.notify(ctx, decision, "🖼 Image spam", fmt.Sprintf("<@%s> timed out for %d minutes", decision.UserID, minutes))

	case KindAutoRole:
		_ = d.call(ctx, decision, "assign_role", func(callCtx context.Context) error {
			return d.enforcer.AssignRole(callCtx, decision.GuildID, decision.UserID, decision.RoleID)
		})

	default:
		d.logger.Warn("unknown decision", zap.String("kind", string(decision.Kind)))
	}
}

func (d *Dispatcher) notify(ctx context.Context, decision Decision, title, description string) {
	_ = d.call(ctx, decision, "log_event", func(callCtx context.Context) error {
		return d.enforcer.LogModerationEvent(callCtx, decision.GuildID, title, description)
	})
}

func (d *Dispatcher) call(ctx context.Context, decision Decision, action string, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	_, err := d.breaker(decision.GuildID).Execute(func() (struct{}, error) {
		return struct{}{}, fn(callCtx)
	})
	if err == nil {
		return nil
	}

	metrics.RecordEnforcementFailure(action)
	d.logger.Warn("enforcement failed",
		zap.String("guild_id", decision.GuildID),
		zap.String("user_id", decision.UserID),
		zap.String("action", action),
		zap.Error(err),
	)
	d.audit.Log(ctx, audit.LevelWarn, decision.GuildID, decision.UserID, "action_failed", fmt.Sprintf("action=%s error=%v", action, err))
	return err
}

// breaker returns the breaker for guildID, creating it on first use. Breakers
// are per guild: a guild missing permissions only trips its own.
func (d *Dispatcher) breaker(guildID string) *gobreaker.CircuitBreaker[struct{}] {
	d.breakersMu.Lock()
	defer d.breakersMu.Unlock()
	if breaker, ok := d.breakers[guildID]; ok {
		return breaker
	}
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "enforcement:" + guildID,
		Timeout: d.cfg.BreakerOpen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= d.cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Warn("circuit breaker state change", zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	d.breakers[guildID] = breaker
	return breaker
}
