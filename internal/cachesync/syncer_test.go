package cachesync

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/wingbits/crewbot/internal/cache"
	"github.com/wingbits/crewbot/internal/store"
	"github.com/wingbits/crewbot/pkg/models"
)

func newTestSyncer(t *testing.T) (*Syncer, *cache.Store, *store.StoreSet) {
	t.Helper()
	cacheStore := cache.New(cache.Options{TTL: time.Hour, MaxEntries: 1000})
	cacheStore.Init()
	stores := store.NewMemoryStoreSet()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cacheStore, stores, logger), cacheStore, stores
}

func mustGetCommand(t *testing.T, c *cache.Store, key string) *models.Command {
	t.Helper()
	snapshot, ok, err := c.Get(cache.NamespaceCommand, key)
	if err != nil || !ok {
		t.Fatalf("expected command under key %q, got (%v, %v)", key, ok, err)
	}
	cmd, err := DecodeCommand(snapshot)
	if err != nil {
		t.Fatalf("failed to decode command snapshot: %v", err)
	}
	return cmd
}

func TestLoadCommand_WritesNameAndAliasKeys(t *testing.T) {
	syncer, cacheStore, _ := newTestSyncer(t)

	cmd := &models.Command{ID: "c1", Name: "Metar", Aliases: []string{"WX", "weather"}}
	syncer.LoadCommand(cmd)

	for _, key := range []string{"metar", "wx", "weather"} {
		got := mustGetCommand(t, cacheStore, key)
		if got.ID != "c1" {
			t.Errorf("key %q resolved to command %q, want c1", key, got.ID)
		}
	}
	if got := cacheStore.Len(); got != 3 {
		t.Errorf("cache holds %d entries, want 3", got)
	}
}

func TestClearCommand_UsesSnapshotFieldValues(t *testing.T) {
	syncer, cacheStore, _ := newTestSyncer(t)

	old := &models.Command{ID: "c1", Name: "metar", Aliases: []string{"wx"}}
	syncer.LoadCommand(old)

	// Clearing with the post-edit snapshot must not touch the old keys:
	// rename safety requires callers to pass the pre-edit snapshot.
	renamed := &models.Command{ID: "c1", Name: "taf", Aliases: []string{"forecast"}}
	syncer.ClearCommand(renamed)

	if _, ok, _ := cacheStore.Get(cache.NamespaceCommand, "metar"); !ok {
		t.Error("old name key was deleted by a clear with the new snapshot")
	}

	syncer.ClearCommand(old)
	if _, ok, _ := cacheStore.Get(cache.NamespaceCommand, "metar"); ok {
		t.Error("old name key survived a clear with the old snapshot")
	}
	if _, ok, _ := cacheStore.Get(cache.NamespaceCommand, "wx"); ok {
		t.Error("old alias key survived a clear with the old snapshot")
	}
}

func TestRefreshCommand_RenamedFields(t *testing.T) {
	cases := []struct {
		name string
		old  *models.Command
		new  *models.Command
	}{
		{
			name: "name change",
			old:  &models.Command{ID: "c1", Name: "metar", Aliases: []string{"wx"}},
			new:  &models.Command{ID: "c1", Name: "taf", Aliases: []string{"wx"}},
		},
		{
			name: "alias change",
			old:  &models.Command{ID: "c1", Name: "metar", Aliases: []string{"wx"}},
			new:  &models.Command{ID: "c1", Name: "metar", Aliases: []string{"weather"}},
		},
		{
			name: "name and alias change",
			old:  &models.Command{ID: "c1", Name: "metar", Aliases: []string{"wx"}},
			new:  &models.Command{ID: "c1", Name: "taf", Aliases: []string{"forecast"}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			syncer, cacheStore, _ := newTestSyncer(t)
			syncer.LoadCommand(tc.old)
			syncer.RefreshCommand(tc.old, tc.new)

			oldKeys := append([]string{tc.old.Name}, tc.old.Aliases...)
			newKeys := append([]string{tc.new.Name}, tc.new.Aliases...)
			for _, key := range oldKeys {
				if !contains(newKeys, key) {
					if _, ok, _ := cacheStore.Get(cache.NamespaceCommand, key); ok {
						t.Errorf("stale key %q present after refresh", key)
					}
				}
			}
			for _, key := range newKeys {
				got := mustGetCommand(t, cacheStore, key)
				if got.Name != tc.new.Name {
					t.Errorf("key %q holds command name %q, want %q", key, got.Name, tc.new.Name)
				}
			}
		})
	}
}

func TestLoadVersion_WritesAliasAndIDKeys(t *testing.T) {
	syncer, cacheStore, _ := newTestSyncer(t)

	version := &models.Version{ID: "V1", Name: "Stable", Alias: "ST", Enabled: true}
	syncer.LoadVersion(version)

	for _, key := range []string{"st", "v1"} {
		snapshot, ok, _ := cacheStore.Get(cache.NamespaceVersion, key)
		if !ok {
			t.Fatalf("expected version under key %q", key)
		}
		got, err := DecodeVersion(snapshot)
		if err != nil {
			t.Fatalf("decode version: %v", err)
		}
		if got.ID != "V1" || !got.Enabled {
			t.Errorf("key %q resolved to %+v", key, got)
		}
	}
}

func TestRefreshVersion_AliasChange(t *testing.T) {
	syncer, cacheStore, _ := newTestSyncer(t)

	old := &models.Version{ID: "v1", Name: "stable", Alias: "st", Enabled: true}
	syncer.LoadVersion(old)

	updated := &models.Version{ID: "v1", Name: "stable", Alias: "rel", Enabled: true}
	syncer.RefreshVersion(old, updated)

	if _, ok, _ := cacheStore.Get(cache.NamespaceVersion, "st"); ok {
		t.Error("stale alias key present after refresh")
	}
	if _, ok, _ := cacheStore.Get(cache.NamespaceVersion, "rel"); !ok {
		t.Error("new alias key absent after refresh")
	}
	if _, ok, _ := cacheStore.Get(cache.NamespaceVersion, "v1"); !ok {
		t.Error("id key absent after refresh")
	}
}

func TestLoadChannelDefault_StoresResolvedVersion(t *testing.T) {
	ctx := context.Background()
	syncer, cacheStore, stores := newTestSyncer(t)

	version := &models.Version{ID: "v1", Name: "stable", Alias: "st", Enabled: true}
	if err := stores.Versions.Save(ctx, version); err != nil {
		t.Fatalf("save version: %v", err)
	}

	syncer.LoadChannelDefault(ctx, &models.ChannelDefaultVersion{ChannelID: "chan-1", VersionID: "v1"})

	snapshot, ok, _ := cacheStore.Get(cache.NamespaceChannelDefaultVersion, "chan-1")
	if !ok {
		t.Fatal("expected channel default entry")
	}
	got, err := DecodeVersion(snapshot)
	if err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if got.ID != "v1" || got.Name != "stable" {
		t.Errorf("channel default resolved to %+v, want version v1", got)
	}
}

func TestLoadChannelDefault_MissingVersionWritesNothing(t *testing.T) {
	ctx := context.Background()
	syncer, cacheStore, _ := newTestSyncer(t)

	syncer.LoadChannelDefault(ctx, &models.ChannelDefaultVersion{ChannelID: "chan-1", VersionID: "ghost"})

	if _, ok, _ := cacheStore.Get(cache.NamespaceChannelDefaultVersion, "chan-1"); ok {
		t.Error("entry written for unresolvable channel default")
	}
}

func TestRefreshAllCommands_RemovesStaleAndReloads(t *testing.T) {
	ctx := context.Background()
	syncer, cacheStore, stores := newTestSyncer(t)

	// A command that was renamed behind the single-entity path: its old keys
	// linger in the cache while the database holds the new shape.
	stale := &models.Command{ID: "c1", Name: "metar", Aliases: []string{"wx"}}
	syncer.LoadCommand(stale)

	current := &models.Command{ID: "c1", Name: "taf", Aliases: []string{"forecast"}}
	if err := stores.Commands.Save(ctx, current); err != nil {
		t.Fatalf("save command: %v", err)
	}
	other := &models.Command{ID: "c2", Name: "notams"}
	if err := stores.Commands.Save(ctx, other); err != nil {
		t.Fatalf("save command: %v", err)
	}

	syncer.RefreshAllCommands(ctx)

	for _, key := range []string{"metar", "wx"} {
		if _, ok, _ := cacheStore.Get(cache.NamespaceCommand, key); ok {
			t.Errorf("stale key %q survived refreshAll", key)
		}
	}
	for _, key := range []string{"taf", "forecast", "notams"} {
		if _, ok, _ := cacheStore.Get(cache.NamespaceCommand, key); !ok {
			t.Errorf("expected key %q after refreshAll", key)
		}
	}
}

func TestRefreshAll_Idempotent(t *testing.T) {
	ctx := context.Background()
	syncer, cacheStore, stores := newTestSyncer(t)

	stores.Commands.Save(ctx, &models.Command{ID: "c1", Name: "metar", Aliases: []string{"wx"}})
	stores.Versions.Save(ctx, &models.Version{ID: "v1", Name: "stable", Alias: "st", Enabled: true})
	stores.Categories.Save(ctx, &models.Category{ID: "g1", Name: "weather"})
	stores.ChannelDefaults.Save(ctx, &models.ChannelDefaultVersion{ChannelID: "chan-1", VersionID: "v1"})

	syncer.RefreshAll(ctx)
	first, err := cacheStore.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}

	syncer.RefreshAll(ctx)
	second, err := cacheStore.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}

	sort.Strings(first)
	sort.Strings(second)
	if len(first) != len(second) {
		t.Fatalf("key count changed across refreshes: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("key set diverged at %d: %q vs %q", i, first[i], second[i])
		}
	}
}

func TestSyncer_NoOpWhenCacheUninitialized(t *testing.T) {
	ctx := context.Background()
	cacheStore := cache.New(cache.Options{TTL: time.Hour})
	stores := store.NewMemoryStoreSet()
	stores.Commands.Save(ctx, &models.Command{ID: "c1", Name: "metar"})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	syncer := New(cacheStore, stores, logger)

	// None of these may panic or error out loud; resolution proceeds uncached.
	syncer.LoadCommand(&models.Command{ID: "c1", Name: "metar"})
	syncer.ClearCommand(&models.Command{ID: "c1", Name: "metar"})
	syncer.LoadAll(ctx)
	syncer.RefreshAll(ctx)
}

func contains(values []string, needle string) bool {
	for _, value := range values {
		if value == needle {
			return true
		}
	}
	return false
}
