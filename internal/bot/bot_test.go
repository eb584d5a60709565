package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"sentinel-moderation/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func TestModerationEmbedTitle(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	// 12:30 UTC is 13:30 BST in July
	now := time.Date(2024, 7, 1, 12, 30, 5, 0, time.UTC)

	embed := moderationEmbed("🚨 RAID MODE", "High join rate", now, london)
	if embed.Title != "🚨 RAID MODE | 2024-07-01 13:30:05 UK" {
		t.Fatalf("unexpected title %q", embed.Title)
	}
	if embed.Description != "High join rate" {
		t.Fatalf("unexpected description %q", embed.Description)
	}
}

func TestNewEnforcerRejectsUnknownTimezone(t *testing.T) {
	if _, err := NewEnforcer(nil, nil, "Mars/Olympus"); err == nil {
		t.Fatalf("expected timezone error")
	}
}

func TestMessageEventFiltering(t *testing.T) {
	now := time.Unix(100, 0)
	cases := []struct {
		name string
		msg  *discordgo.MessageCreate
		ok   bool
	}{
		{"guild message", &discordgo.MessageCreate{Message: &discordgo.Message{GuildID: "g", Author: &discordgo.User{ID: "u"}}}, true},
		{"direct message", &discordgo.MessageCreate{Message: &discordgo.Message{Author: &discordgo.User{ID: "u"}}}, false},
		{"bot author", &discordgo.MessageCreate{Message: &discordgo.Message{GuildID: "g", Author: &discordgo.User{ID: "u", Bot: true}}}, false},
		{"no author", &discordgo.MessageCreate{Message: &discordgo.Message{GuildID: "g"}}, false},
	}
	for _, tc := range cases {
		if _, ok := messageEvent(tc.msg, now); ok != tc.ok {
			t.Fatalf("%s: expected %t, got %t", tc.name, tc.ok, ok)
		}
	}
}

func TestMessageEventAttachments(t *testing.T) {
	now := time.Unix(100, 0)
	msg := &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID:     "g",
		Content:     "look",
		Author:      &discordgo.User{ID: "u"},
		Attachments: []*discordgo.MessageAttachment{{ID: "a"}, {ID: "b"}},
	}}

	event, ok := messageEvent(msg, now)
	if !ok {
		t.Fatalf("expected event")
	}
	if !event.HasAttachment || event.AttachmentCount != 2 || !event.Timestamp.Equal(now) || event.Text != "look" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestJoinEvent(t *testing.T) {
	now := time.Unix(100, 0)
	if _, ok := joinEvent(&discordgo.GuildMemberAdd{}, now); ok {
		t.Fatalf("join without member must be ignored")
	}
	event, ok := joinEvent(&discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "g", User: &discordgo.User{ID: "u"}}}, now)
	if !ok || event.GuildID != "g" || event.UserID != "u" || !event.Timestamp.Equal(now) {
		t.Fatalf("unexpected join %+v", event)
	}
}

func TestIsAdmin(t *testing.T) {
	if isAdmin(&discordgo.Member{Permissions: discordgo.PermissionManageMessages}) {
		t.Fatalf("manage messages is not admin")
	}
	if !isAdmin(&discordgo.Member{Permissions: discordgo.PermissionAdministrator | discordgo.PermissionManageMessages}) {
		t.Fatalf("expected admin")
	}
}

func TestTicketOverwrites(t *testing.T) {
	overwrites := ticketOverwrites("g", "u", "r")
	if len(overwrites) != 3 {
		t.Fatalf("expected 3 overwrites, got %d", len(overwrites))
	}
	if overwrites[0].ID != "g" || overwrites[0].Deny&discordgo.PermissionViewChannel == 0 {
		t.Fatalf("everyone role must be denied view")
	}
	for _, ow := range overwrites[1:] {
		if ow.Allow&discordgo.PermissionViewChannel == 0 {
			t.Fatalf("%s must be allowed view", ow.ID)
		}
	}
}

func TestWithContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	defer close(release)
	err := withContext(ctx, func() error {
		<-release
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	want := errors.New("boom")
	if err := withContext(context.Background(), func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected fn error, got %v", err)
	}
}

type toggles map[string]bool

func (t toggles) IsEnabled(_ context.Context, _ string, feature string) bool {
	return t[feature]
}

type countingConfigs struct {
	calls int
	cfg   storage.GuildConfig
	found bool
	err   error
}

func (c *countingConfigs) GetGuildConfig(_ context.Context, _ string) (storage.GuildConfig, bool, error) {
	c.calls++
	return c.cfg, c.found, c.err
}

func TestMemberRoleSkipsStorageWhenAutoRoleOff(t *testing.T) {
	configs := &countingConfigs{cfg: storage.GuildConfig{MemberRoleID: "r1"}, found: true}
	if role := memberRole(context.Background(), toggles{}, configs, "g1", zap.NewNop()); role != "" {
		t.Fatalf("expected no role, got %q", role)
	}
	if configs.calls != 0 {
		t.Fatalf("storage consulted %d times with auto_role off", configs.calls)
	}

	on := toggles{storage.FeatureAutoRole: true}
	if role := memberRole(context.Background(), on, configs, "g1", zap.NewNop()); role != "r1" {
		t.Fatalf("expected r1, got %q", role)
	}
	if configs.calls != 1 {
		t.Fatalf("expected one lookup, got %d", configs.calls)
	}
}

func TestMemberRoleLookupFailure(t *testing.T) {
	configs := &countingConfigs{err: errors.New("db down")}
	on := toggles{storage.FeatureAutoRole: true}
	if role := memberRole(context.Background(), on, configs, "g1", zap.NewNop()); role != "" {
		t.Fatalf("expected empty role on error, got %q", role)
	}
}

func TestAsyncDoesNotBlockCaller(t *testing.T) {
	b := &Bot{}
	release := make(chan struct{})
	finished := make(chan struct{})

	b.async(func() {
		<-release
		close(finished)
	})
	// reaching here means the caller was not held by the slow task
	select {
	case <-finished:
		t.Fatalf("task finished before release")
	default:
	}

	close(release)
	b.commands.Wait()
	select {
	case <-finished:
	default:
		t.Fatalf("commands wait returned before the task finished")
	}
}
