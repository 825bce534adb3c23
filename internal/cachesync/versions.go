package cachesync

import (
	"context"
	"strings"

	"github.com/wingbits/crewbot/internal/cache"
	"github.com/wingbits/crewbot/pkg/models"
)

// LoadVersion writes the version snapshot under its lowercase alias key and
// under its id key. The alias key serves message-time token resolution; the
// id key serves picker button construction.
func (s *Syncer) LoadVersion(version *models.Version) {
	if !s.ready(false) {
		return
	}
	s.logger.Debug("loading version to cache", "version", version.Name, "alias", version.Alias)
	if err := s.set(cache.NamespaceVersion, version.Alias, version); err != nil {
		s.logger.Warn("failed to cache version alias", "version", version.Name, "error", err)
	}
	if err := s.set(cache.NamespaceVersion, version.ID, version); err != nil {
		s.logger.Warn("failed to cache version id", "version", version.Name, "error", err)
	}
}

// ClearVersion deletes both keys LoadVersion would have written, derived from
// the snapshot's current field values. Pass the pre-edit snapshot to clear an
// old key set after an alias change.
func (s *Syncer) ClearVersion(version *models.Version) {
	if !s.ready(false) {
		return
	}
	s.logger.Debug("clearing version from cache", "version", version.Name, "alias", version.Alias)
	if err := s.delete(cache.NamespaceVersion, version.Alias); err != nil {
		s.logger.Warn("failed to drop version alias from cache", "alias", version.Alias, "error", err)
	}
	if err := s.delete(cache.NamespaceVersion, version.ID); err != nil {
		s.logger.Warn("failed to drop version id from cache", "id", version.ID, "error", err)
	}
}

// RefreshVersion clears the old snapshot's keys and loads the new snapshot.
func (s *Syncer) RefreshVersion(oldVersion, newVersion *models.Version) {
	s.ClearVersion(oldVersion)
	s.LoadVersion(newVersion)
}

// LoadAllVersions loads every version of record into the cache.
func (s *Syncer) LoadAllVersions(ctx context.Context) {
	if !s.ready(true) {
		return
	}
	versions, err := s.stores.Versions.List(ctx)
	if err != nil {
		s.logger.Warn("failed to list versions for cache load", "error", err)
		return
	}
	for _, version := range versions {
		s.LoadVersion(version)
	}
}

// RefreshAllVersions reconciles the version namespace against the database.
func (s *Syncer) RefreshAllVersions(ctx context.Context) {
	if !s.ready(true) {
		return
	}
	versions, err := s.stores.Versions.List(ctx)
	if err != nil {
		s.logger.Warn("failed to list versions for cache refresh", "error", err)
		return
	}

	for _, token := range s.namespaceKeys(cache.NamespaceVersion) {
		if versionClaimsToken(versions, token) {
			continue
		}
		s.logger.Debug("removing stale version key from cache", "key", token)
		if err := s.delete(cache.NamespaceVersion, token); err != nil {
			s.logger.Warn("failed to drop stale version key", "key", token, "error", err)
		}
	}

	for _, version := range versions {
		s.LoadVersion(version)
	}
}

func versionClaimsToken(versions []*models.Version, token string) bool {
	for _, version := range versions {
		if strings.EqualFold(version.ID, token) || strings.EqualFold(version.Alias, token) {
			return true
		}
	}
	return false
}
