package features

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sentinel-moderation/internal/storage"

	"go.uber.org/zap"
)

type fakeSource struct {
	mu       sync.Mutex
	features map[string]storage.GuildFeatures
	fetches  int
	err      error
}

func (f *fakeSource) GetFeatures(_ context.Context, guildID string) (storage.GuildFeatures, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return storage.GuildFeatures{}, f.err
	}
	features, ok := f.features[guildID]
	if !ok {
		features = storage.DefaultGuildFeatures(guildID)
		f.features[guildID] = features
	}
	return features, nil
}

func (f *fakeSource) SetFeature(_ context.Context, guildID, name string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	features, ok := f.features[guildID]
	if !ok {
		features = storage.DefaultGuildFeatures(guildID)
	}
	switch name {
	case storage.FeatureAIMod:
		features.AIMod = enabled
	case storage.FeatureImageSpam:
		features.ImageSpam = enabled
	case storage.FeatureRaidDetection:
		features.RaidDetection = enabled
	case storage.FeatureAutoRole:
		features.AutoRole = enabled
	case storage.FeatureTickets:
		features.Tickets = enabled
	}
	f.features[guildID] = features
	return nil
}

func TestGateCachesLookups(t *testing.T) {
	source := &fakeSource{features: map[string]storage.GuildFeatures{}}
	gate, err := NewGate(source, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	defer gate.Close()

	ctx := context.Background()
	if !gate.IsEnabled(ctx, "g1", storage.FeatureAIMod) {
		t.Fatalf("expected default enabled")
	}
	if !gate.IsEnabled(ctx, "g1", storage.FeatureRaidDetection) {
		t.Fatalf("expected default enabled")
	}
	if source.fetches != 1 {
		t.Fatalf("expected 1 fetch, got %d", source.fetches)
	}
}

func TestGateSetInvalidates(t *testing.T) {
	source := &fakeSource{features: map[string]storage.GuildFeatures{}}
	gate, err := NewGate(source, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	defer gate.Close()

	ctx := context.Background()
	gate.IsEnabled(ctx, "g1", storage.FeatureImageSpam)
	if err := gate.Set(ctx, "g1", storage.FeatureImageSpam, false); err != nil {
		t.Fatalf("set: %v", err)
	}
	if gate.IsEnabled(ctx, "g1", storage.FeatureImageSpam) {
		t.Fatalf("expected image spam disabled after set")
	}
}

func TestGateFallsBackToDefaults(t *testing.T) {
	source := &fakeSource{features: map[string]storage.GuildFeatures{}, err: errors.New("db down")}
	gate, err := NewGate(source, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	defer gate.Close()

	if !gate.IsEnabled(context.Background(), "g1", storage.FeatureAIMod) {
		t.Fatalf("expected default enabled on error")
	}
	if gate.IsEnabled(context.Background(), "g1", "unknown") {
		t.Fatalf("unknown features are disabled")
	}
}
