package cachesync

import (
	"context"
	"strings"

	"github.com/wingbits/crewbot/internal/cache"
	"github.com/wingbits/crewbot/pkg/models"
)

// LoadChannelDefault resolves the join record's version by id and caches the
// resolved Version snapshot under the channel id key. If the version lookup
// fails, no entry is written: a dangling default must not shadow GENERIC with
// garbage.
func (s *Syncer) LoadChannelDefault(ctx context.Context, def *models.ChannelDefaultVersion) {
	if !s.ready(true) {
		return
	}
	version, err := s.stores.Versions.Get(ctx, def.VersionID)
	if err != nil {
		s.logger.Debug("skipping channel default with unresolvable version",
			"channel_id", def.ChannelID, "version_id", def.VersionID, "error", err)
		return
	}
	s.logger.Debug("loading channel default version to cache", "channel_id", def.ChannelID, "version", version.Name)
	if err := s.set(cache.NamespaceChannelDefaultVersion, def.ChannelID, version); err != nil {
		s.logger.Warn("failed to cache channel default version", "channel_id", def.ChannelID, "error", err)
	}
}

// ClearChannelDefault deletes the channel's default-version key.
func (s *Syncer) ClearChannelDefault(def *models.ChannelDefaultVersion) {
	if !s.ready(false) {
		return
	}
	s.logger.Debug("clearing channel default version from cache", "channel_id", def.ChannelID)
	if err := s.delete(cache.NamespaceChannelDefaultVersion, def.ChannelID); err != nil {
		s.logger.Warn("failed to drop channel default version from cache", "channel_id", def.ChannelID, "error", err)
	}
}

// RefreshChannelDefault clears the old record's key and loads the new record.
func (s *Syncer) RefreshChannelDefault(ctx context.Context, oldDef, newDef *models.ChannelDefaultVersion) {
	s.ClearChannelDefault(oldDef)
	s.LoadChannelDefault(ctx, newDef)
}

// LoadAllChannelDefaults loads every channel default of record into the cache.
func (s *Syncer) LoadAllChannelDefaults(ctx context.Context) {
	if !s.ready(true) {
		return
	}
	defaults, err := s.stores.ChannelDefaults.List(ctx)
	if err != nil {
		s.logger.Warn("failed to list channel defaults for cache load", "error", err)
		return
	}
	for _, def := range defaults {
		s.LoadChannelDefault(ctx, def)
	}
}

// RefreshAllChannelDefaults reconciles the channel-default namespace against
// the database.
func (s *Syncer) RefreshAllChannelDefaults(ctx context.Context) {
	if !s.ready(true) {
		return
	}
	defaults, err := s.stores.ChannelDefaults.List(ctx)
	if err != nil {
		s.logger.Warn("failed to list channel defaults for cache refresh", "error", err)
		return
	}

	for _, token := range s.namespaceKeys(cache.NamespaceChannelDefaultVersion) {
		if channelDefaultClaimsToken(defaults, token) {
			continue
		}
		s.logger.Debug("removing stale channel default key from cache", "channel_id", token)
		if err := s.delete(cache.NamespaceChannelDefaultVersion, token); err != nil {
			s.logger.Warn("failed to drop stale channel default key", "channel_id", token, "error", err)
		}
	}

	for _, def := range defaults {
		s.LoadChannelDefault(ctx, def)
	}
}

func channelDefaultClaimsToken(defaults []*models.ChannelDefaultVersion, token string) bool {
	for _, def := range defaults {
		if strings.EqualFold(def.ChannelID, token) {
			return true
		}
	}
	return false
}

// RefreshAll runs the four per-kind reconciliation passes. Versions load
// before channel defaults so default resolution sees current versions.
func (s *Syncer) RefreshAll(ctx context.Context) {
	s.RefreshAllVersions(ctx)
	s.RefreshAllCategories(ctx)
	s.RefreshAllCommands(ctx)
	s.RefreshAllChannelDefaults(ctx)
}

// LoadAll performs the startup load of all four kinds.
func (s *Syncer) LoadAll(ctx context.Context) {
	s.LoadAllVersions(ctx)
	s.LoadAllCategories(ctx)
	s.LoadAllCommands(ctx)
	s.LoadAllChannelDefaults(ctx)
}
