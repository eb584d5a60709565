package engine

import (
	"context"
	"testing"
	"time"

	"sentinel-moderation/internal/dispatch"
	"sentinel-moderation/internal/raid"
	"sentinel-moderation/internal/storage"

	"go.uber.org/zap"
)

type fakeGate struct {
	disabled map[string]bool
}

func (g fakeGate) IsEnabled(_ context.Context, _ string, feature string) bool {
	return !g.disabled[feature]
}

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

func newEngine(disabled ...string) *Engine {
	gate := fakeGate{disabled: map[string]bool{}}
	for _, feature := range disabled {
		gate.disabled[feature] = true
	}
	return New(DefaultConfig(), gate, zap.NewNop())
}

func kinds(decisions []dispatch.Decision) []dispatch.Kind {
	out := make([]dispatch.Kind, 0, len(decisions))
	for _, d := range decisions {
		out = append(out, d.Kind)
	}
	return out
}

func TestRepeatedMessageScores(t *testing.T) {
	engine := newEngine()
	ctx := context.Background()
	start := time.Unix(1_000, 0)

	want := []int{0, 0, 3, 3}
	for i, expected := range want {
		outcome := engine.HandleMessage(ctx, MessageEvent{
			GuildID:   "g1",
			UserID:    "u1",
			Timestamp: start.Add(time.Duration(i) * time.Second),
			Text:      "0123456789",
		})
		if outcome.Score != expected {
			t.Fatalf("message %d: expected score %d, got %d", i+1, expected, outcome.Score)
		}
		if len(outcome.Decisions) != 0 {
			t.Fatalf("message %d: score below threshold must not flag", i+1)
		}
	}
}

func TestFloodWithLinkFlags(t *testing.T) {
	engine := newEngine()
	ctx := context.Background()
	start := time.Unix(1_000, 0)

	var last MessageOutcome
	for i := 0; i < 7; i++ {
		last = engine.HandleMessage(ctx, MessageEvent{
			GuildID:   "g1",
			UserID:    "u1",
			Timestamp: start.Add(time.Duration(i) * time.Second),
			Text:      "buy now https://Spam.example/offer",
		})
	}
	// activity 7 (+2), repeat 5 (+3), link (+2)
	if last.Score != 7 {
		t.Fatalf("expected 7, got %d", last.Score)
	}
	if len(last.Decisions) != 1 || last.Decisions[0].Kind != dispatch.KindAIFlag {
		t.Fatalf("expected ai flag, got %v", kinds(last.Decisions))
	}
	if last.Decisions[0].Link != "spam.example" {
		t.Fatalf("unexpected link host %q", last.Decisions[0].Link)
	}
}

func TestRaidAddsToScore(t *testing.T) {
	engine := newEngine()
	ctx := context.Background()
	now := time.Unix(1_000, 0)
	for i := 0; i < 5; i++ {
		engine.HandleJoin(ctx, JoinEvent{GuildID: "g1", UserID: "new", Timestamp: now})
	}

	// link (+2) and raid (+1) stay below the flag threshold
	outcome := engine.HandleMessage(ctx, MessageEvent{GuildID: "g1", UserID: "u1", Timestamp: now, Text: "http://x.y"})
	if outcome.Score != 3 || len(outcome.Decisions) != 0 {
		t.Fatalf("expected score 3 without decisions, got %d %v", outcome.Score, kinds(outcome.Decisions))
	}
}

func TestRaidScenario(t *testing.T) {
	engine := newEngine()
	ctx := context.Background()
	start := time.Unix(1_000, 0)

	for i := 1; i <= 6; i++ {
		outcome := engine.HandleJoin(ctx, JoinEvent{GuildID: "g1", UserID: "u", Timestamp: start.Add(time.Duration(i*2) * time.Second)})
		activated := len(outcome.Decisions) == 1 && outcome.Decisions[0].Kind == dispatch.KindRaidMode
		if activated != (i == 5) {
			t.Fatalf("join %d: unexpected decisions %v", i, kinds(outcome.Decisions))
		}
		if i < 5 && engine.RaidState("g1") != raid.Normal {
			t.Fatalf("join %d: raid active too early", i)
		}
	}
	if engine.RaidState("g1") != raid.Active {
		t.Fatalf("expected raid active")
	}
}

func TestImageSpamScenario(t *testing.T) {
	engine := newEngine(storage.FeatureAIMod)
	ctx := context.Background()
	start := time.Unix(0, 0)

	for i := 0; i < 5; i++ {
		outcome := engine.HandleMessage(ctx, MessageEvent{
			GuildID:         "g1",
			UserID:          "u1",
			Timestamp:       start.Add(time.Duration(i*100) * time.Second),
			HasAttachment:   true,
			AttachmentCount: 1,
		})
		if outcome.Scored {
			t.Fatalf("ai_mod disabled, message must not be scored")
		}
		if i < 4 && len(outcome.Decisions) != 0 {
			t.Fatalf("image %d: unexpected decisions %v", i+1, kinds(outcome.Decisions))
		}
		if i == 4 {
			if len(outcome.Decisions) != 1 || outcome.Decisions[0].Kind != dispatch.KindImageSpam {
				t.Fatalf("expected image spam on 5th image, got %v", kinds(outcome.Decisions))
			}
			if outcome.Decisions[0].Timeout != 10*time.Minute {
				t.Fatalf("unexpected timeout %s", outcome.Decisions[0].Timeout)
			}
		}
	}

	next := engine.HandleMessage(ctx, MessageEvent{GuildID: "g1", UserID: "u1", Timestamp: start.Add(450 * time.Second), HasAttachment: true})
	if next.Images != 1 {
		t.Fatalf("window should restart after clear, got %d", next.Images)
	}
}

func TestDisabledFeaturesSkipEvaluation(t *testing.T) {
	engine := newEngine(storage.FeatureRaidDetection, storage.FeatureImageSpam)
	ctx := context.Background()
	now := time.Unix(0, 0)

	for i := 0; i < 10; i++ {
		outcome := engine.HandleJoin(ctx, JoinEvent{GuildID: "g1", UserID: "u", Timestamp: now})
		if len(outcome.Decisions) != 0 || outcome.Joins != 0 {
			t.Fatalf("raid detection disabled, got %+v", outcome)
		}
	}
	for i := 0; i < 10; i++ {
		outcome := engine.HandleMessage(ctx, MessageEvent{GuildID: "g1", UserID: "u1", Timestamp: now, Text: "hi", HasAttachment: true})
		if outcome.Images != 0 {
			t.Fatalf("image spam disabled, got %d images", outcome.Images)
		}
	}
	if engine.RaidState("g1") != raid.Normal {
		t.Fatalf("raid must stay normal when detection is off")
	}
}

func TestAutoRoleIndependentOfRaidDetection(t *testing.T) {
	engine := newEngine(storage.FeatureRaidDetection)
	outcome := engine.HandleJoin(context.Background(), JoinEvent{GuildID: "g1", UserID: "u1", MemberRoleID: "r1"})
	if len(outcome.Decisions) != 1 || outcome.Decisions[0].Kind != dispatch.KindAutoRole || outcome.Decisions[0].RoleID != "r1" {
		t.Fatalf("expected auto role, got %+v", outcome.Decisions)
	}

	engine = newEngine(storage.FeatureAutoRole)
	outcome = engine.HandleJoin(context.Background(), JoinEvent{GuildID: "g1", UserID: "u1", MemberRoleID: "r1"})
	if len(outcome.Decisions) != 0 {
		t.Fatalf("auto role disabled, got %+v", outcome.Decisions)
	}
}

func TestZeroTimestampUsesClock(t *testing.T) {
	engine := newEngine()
	clock := fakeClock{now: time.Unix(500, 0)}
	engine.WithClock(clock)
	ctx := context.Background()

	engine.HandleMessage(ctx, MessageEvent{GuildID: "g1", UserID: "u1", Text: "a"})
	engine.WithClock(fakeClock{now: clock.now.Add(time.Hour)})
	for i := 0; i < 7; i++ {
		engine.HandleMessage(ctx, MessageEvent{GuildID: "g1", UserID: "u1", Text: "b"})
	}
	// the first message aged out and "c" has no repeats
	outcome := engine.HandleMessage(ctx, MessageEvent{GuildID: "g1", UserID: "u1", Text: "c"})
	if outcome.Score != 2 {
		t.Fatalf("expected activity-only score 2, got %d", outcome.Score)
	}
}
