// Package cachesync reconciles the in-memory snapshot cache against the
// database of record. Every administrative mutation is mirrored through this
// package before it is acknowledged; the cache is never a lazy read-through.
package cachesync

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/wingbits/crewbot/internal/cache"
	"github.com/wingbits/crewbot/internal/store"
	"github.com/wingbits/crewbot/pkg/models"
)

// Syncer owns the per-kind load, clear, refresh and reconcile operations.
//
// Every operation degrades to a no-op when the cache is uninitialized or the
// database is unavailable: resolution then simply proceeds uncached.
type Syncer struct {
	cache  *cache.Store
	stores *store.StoreSet
	logger *slog.Logger
}

// New creates a Syncer.
func New(cacheStore *cache.Store, stores *store.StoreSet, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		cache:  cacheStore,
		stores: stores,
		logger: logger.With("component", "cachesync"),
	}
}

// ready reports whether both collaborators are usable. withDB additionally
// requires the database of record.
func (s *Syncer) ready(withDB bool) bool {
	if s.cache == nil {
		return false
	}
	if withDB && !s.stores.Available() {
		return false
	}
	return true
}

func (s *Syncer) set(ns cache.Namespace, key string, entity any) error {
	snapshot, err := json.Marshal(entity)
	if err != nil {
		return err
	}
	return s.cache.Set(ns, strings.ToLower(key), snapshot)
}

func (s *Syncer) delete(ns cache.Namespace, key string) error {
	return s.cache.Delete(ns, strings.ToLower(key))
}

// DecodeCommand decodes a command snapshot previously written by the Syncer.
func DecodeCommand(snapshot []byte) (*models.Command, error) {
	var cmd models.Command
	if err := json.Unmarshal(snapshot, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// DecodeVersion decodes a version snapshot previously written by the Syncer.
func DecodeVersion(snapshot []byte) (*models.Version, error) {
	var version models.Version
	if err := json.Unmarshal(snapshot, &version); err != nil {
		return nil, err
	}
	return &version, nil
}

// DecodeCategory decodes a category snapshot previously written by the Syncer.
func DecodeCategory(snapshot []byte) (*models.Category, error) {
	var category models.Category
	if err := json.Unmarshal(snapshot, &category); err != nil {
		return nil, err
	}
	return &category, nil
}

// namespaceKeys returns the lookup tokens (namespace prefix stripped) of all
// live cache keys in the namespace.
func (s *Syncer) namespaceKeys(ns cache.Namespace) []string {
	keys, err := s.cache.Keys()
	if err != nil {
		return nil
	}
	prefix := string(ns) + ":"
	var tokens []string
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			tokens = append(tokens, strings.TrimPrefix(key, prefix))
		}
	}
	return tokens
}
