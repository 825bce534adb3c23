package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/wingbits/crewbot/internal/cache"
	"github.com/wingbits/crewbot/internal/cachesync"
	"github.com/wingbits/crewbot/internal/store"
	"github.com/wingbits/crewbot/pkg/models"
)

type fixture struct {
	service *Service
	cache   *cache.Store
	stores  *store.StoreSet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cacheStore := cache.New(cache.Options{TTL: time.Hour, MaxEntries: 1000})
	cacheStore.Init()
	stores := store.NewMemoryStoreSet()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	syncer := cachesync.New(cacheStore, stores, logger)

	service := New(stores, syncer, logger, nil, nil)
	ids := 0
	service.newID = func() string {
		ids++
		return fmt.Sprintf("id-%d", ids)
	}
	return &fixture{service: service, cache: cacheStore, stores: stores}
}

func (f *fixture) cached(t *testing.T, ns cache.Namespace, key string) bool {
	t.Helper()
	_, ok, err := f.cache.Get(ns, key)
	if err != nil {
		t.Fatalf("cache.Get(%s, %s): %v", ns, key, err)
	}
	return ok
}

func TestCreateCommand_PersistsAndCaches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cmd := &models.Command{Name: "Metar", Aliases: []string{"WX"}}
	if err := f.service.CreateCommand(ctx, cmd); err != nil {
		t.Fatalf("CreateCommand: %v", err)
	}
	if cmd.ID == "" {
		t.Error("no id assigned")
	}
	if _, err := f.stores.Commands.Get(ctx, cmd.ID); err != nil {
		t.Errorf("command not persisted: %v", err)
	}
	for _, key := range []string{"metar", "wx"} {
		if !f.cached(t, cache.NamespaceCommand, key) {
			t.Errorf("key %q not cached after create", key)
		}
	}
}

func TestCreateCommand_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects malformed token", func(t *testing.T) {
		f := newFixture(t)
		err := f.service.CreateCommand(ctx, &models.Command{Name: "bad name"})
		if !errors.Is(err, ErrInvalidToken) {
			t.Errorf("got %v, want ErrInvalidToken", err)
		}
	})

	t.Run("rejects reserved generic", func(t *testing.T) {
		f := newFixture(t)
		err := f.service.CreateCommand(ctx, &models.Command{Name: "metar", Aliases: []string{"Generic"}})
		if !errors.Is(err, ErrReservedName) {
			t.Errorf("got %v, want ErrReservedName", err)
		}
	})

	t.Run("rejects alias held by another command", func(t *testing.T) {
		f := newFixture(t)
		if err := f.service.CreateCommand(ctx, &models.Command{Name: "metar", Aliases: []string{"wx"}}); err != nil {
			t.Fatalf("CreateCommand: %v", err)
		}
		err := f.service.CreateCommand(ctx, &models.Command{Name: "WX"})
		if !errors.Is(err, store.ErrAlreadyExists) {
			t.Errorf("got %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("rejects token held by a version alias", func(t *testing.T) {
		f := newFixture(t)
		if err := f.service.CreateVersion(ctx, &models.Version{Name: "stable", Alias: "st", Enabled: true}); err != nil {
			t.Fatalf("CreateVersion: %v", err)
		}
		err := f.service.CreateCommand(ctx, &models.Command{Name: "st"})
		if !errors.Is(err, store.ErrAlreadyExists) {
			t.Errorf("got %v, want ErrAlreadyExists", err)
		}
	})
}

func TestUpdateCommand_SwapsCacheKeys(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cmd := &models.Command{Name: "metar", Aliases: []string{"wx"}}
	if err := f.service.CreateCommand(ctx, cmd); err != nil {
		t.Fatalf("CreateCommand: %v", err)
	}

	edited := cmd.Clone()
	edited.Name = "taf"
	edited.Aliases = []string{"forecast"}
	if err := f.service.UpdateCommand(ctx, edited); err != nil {
		t.Fatalf("UpdateCommand: %v", err)
	}

	for _, key := range []string{"metar", "wx"} {
		if f.cached(t, cache.NamespaceCommand, key) {
			t.Errorf("stale key %q survived the edit", key)
		}
	}
	for _, key := range []string{"taf", "forecast"} {
		if !f.cached(t, cache.NamespaceCommand, key) {
			t.Errorf("key %q missing after the edit", key)
		}
	}
}

func TestDeleteCommand_ClearsCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cmd := &models.Command{Name: "metar", Aliases: []string{"wx"}}
	if err := f.service.CreateCommand(ctx, cmd); err != nil {
		t.Fatalf("CreateCommand: %v", err)
	}
	if err := f.service.DeleteCommand(ctx, cmd.ID); err != nil {
		t.Fatalf("DeleteCommand: %v", err)
	}

	for _, key := range []string{"metar", "wx"} {
		if f.cached(t, cache.NamespaceCommand, key) {
			t.Errorf("key %q survived deletion", key)
		}
	}
	if _, err := f.stores.Commands.Get(ctx, cmd.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("command still persisted: %v", err)
	}
}

func TestCreateVersion_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects reserved name", func(t *testing.T) {
		f := newFixture(t)
		err := f.service.CreateVersion(ctx, &models.Version{Name: "GENERIC", Alias: "gn"})
		if !errors.Is(err, ErrReservedName) {
			t.Errorf("got %v, want ErrReservedName", err)
		}
	})

	t.Run("rejects alias held by a command", func(t *testing.T) {
		f := newFixture(t)
		if err := f.service.CreateCommand(ctx, &models.Command{Name: "metar"}); err != nil {
			t.Fatalf("CreateCommand: %v", err)
		}
		err := f.service.CreateVersion(ctx, &models.Version{Name: "stable", Alias: "metar"})
		if !errors.Is(err, store.ErrAlreadyExists) {
			t.Errorf("got %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("rejects duplicate alias", func(t *testing.T) {
		f := newFixture(t)
		if err := f.service.CreateVersion(ctx, &models.Version{Name: "stable", Alias: "st"}); err != nil {
			t.Fatalf("CreateVersion: %v", err)
		}
		err := f.service.CreateVersion(ctx, &models.Version{Name: "next", Alias: "ST"})
		if !errors.Is(err, store.ErrAlreadyExists) {
			t.Errorf("got %v, want ErrAlreadyExists", err)
		}
	})
}

func TestUpdateVersion_RefreshesAliasAndChannelDefaults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	version := &models.Version{Name: "stable", Alias: "st", Enabled: true}
	if err := f.service.CreateVersion(ctx, version); err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}
	if err := f.service.SetChannelDefault(ctx, "chan-1", version.ID); err != nil {
		t.Fatalf("SetChannelDefault: %v", err)
	}

	edited := version.Clone()
	edited.Alias = "rel"
	edited.Enabled = false
	if err := f.service.UpdateVersion(ctx, edited); err != nil {
		t.Fatalf("UpdateVersion: %v", err)
	}

	if f.cached(t, cache.NamespaceVersion, "st") {
		t.Error("stale alias key survived the edit")
	}
	if !f.cached(t, cache.NamespaceVersion, "rel") {
		t.Error("new alias key missing after the edit")
	}

	// The channel default caches the resolved version, so the edit must be
	// visible there too.
	snapshot, ok, _ := f.cache.Get(cache.NamespaceChannelDefaultVersion, "chan-1")
	if !ok {
		t.Fatal("channel default entry missing after version edit")
	}
	got, err := cachesync.DecodeVersion(snapshot)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Alias != "rel" || got.Enabled {
		t.Errorf("channel default holds stale version: %+v", got)
	}
}

func TestDeleteVersion_RefusedWhileReferenced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	version := &models.Version{Name: "stable", Alias: "st", Enabled: true}
	if err := f.service.CreateVersion(ctx, version); err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}
	if err := f.service.SetChannelDefault(ctx, "chan-1", version.ID); err != nil {
		t.Fatalf("SetChannelDefault: %v", err)
	}

	if err := f.service.DeleteVersion(ctx, version.ID); !errors.Is(err, ErrVersionInUse) {
		t.Fatalf("got %v, want ErrVersionInUse", err)
	}

	if err := f.service.RemoveChannelDefault(ctx, "chan-1"); err != nil {
		t.Fatalf("RemoveChannelDefault: %v", err)
	}
	if err := f.service.DeleteVersion(ctx, version.ID); err != nil {
		t.Fatalf("DeleteVersion after reference removed: %v", err)
	}
	if f.cached(t, cache.NamespaceVersion, "st") {
		t.Error("alias key survived deletion")
	}
}

func TestSetChannelDefault_CachesResolvedVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	version := &models.Version{Name: "stable", Alias: "st", Enabled: true}
	if err := f.service.CreateVersion(ctx, version); err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}
	other := &models.Version{Name: "next", Alias: "nx", Enabled: true}
	if err := f.service.CreateVersion(ctx, other); err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}

	if err := f.service.SetChannelDefault(ctx, "chan-1", version.ID); err != nil {
		t.Fatalf("SetChannelDefault: %v", err)
	}
	snapshot, ok, _ := f.cache.Get(cache.NamespaceChannelDefaultVersion, "chan-1")
	if !ok {
		t.Fatal("channel default not cached")
	}
	got, _ := cachesync.DecodeVersion(snapshot)
	if got.ID != version.ID {
		t.Errorf("cached default = %q, want %q", got.ID, version.ID)
	}

	// Re-pointing the channel replaces the entry.
	if err := f.service.SetChannelDefault(ctx, "chan-1", other.ID); err != nil {
		t.Fatalf("SetChannelDefault replace: %v", err)
	}
	snapshot, _, _ = f.cache.Get(cache.NamespaceChannelDefaultVersion, "chan-1")
	got, _ = cachesync.DecodeVersion(snapshot)
	if got.ID != other.ID {
		t.Errorf("cached default = %q after replace, want %q", got.ID, other.ID)
	}

	if err := f.service.SetChannelDefault(ctx, "chan-1", "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown version accepted: %v", err)
	}
}

func TestUpdateCache_ReportsDuration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.service.CreateCommand(ctx, &models.Command{Name: "metar"}); err != nil {
		t.Fatalf("CreateCommand: %v", err)
	}
	// Simulate drift: a key the database no longer backs.
	f.cache.Set(cache.NamespaceCommand, "ghost", []byte(`{"id":"x","name":"ghost"}`))

	elapsed, err := f.service.UpdateCache(ctx)
	if err != nil {
		t.Fatalf("UpdateCache: %v", err)
	}
	if elapsed < 0 {
		t.Errorf("negative duration %v", elapsed)
	}
	if f.cached(t, cache.NamespaceCommand, "ghost") {
		t.Error("drifted key survived the forced refresh")
	}
	if !f.cached(t, cache.NamespaceCommand, "metar") {
		t.Error("live key missing after the forced refresh")
	}
}
