package cachesync

import (
	"context"
	"strings"

	"github.com/wingbits/crewbot/internal/cache"
	"github.com/wingbits/crewbot/pkg/models"
)

// LoadCategory writes the category snapshot under its name key.
func (s *Syncer) LoadCategory(category *models.Category) {
	if !s.ready(false) {
		return
	}
	s.logger.Debug("loading category to cache", "category", category.Name)
	if err := s.set(cache.NamespaceCategory, category.Name, category); err != nil {
		s.logger.Warn("failed to cache category", "category", category.Name, "error", err)
	}
}

// ClearCategory deletes the category's name key, derived from the snapshot's
// current field values.
func (s *Syncer) ClearCategory(category *models.Category) {
	if !s.ready(false) {
		return
	}
	s.logger.Debug("clearing category from cache", "category", category.Name)
	if err := s.delete(cache.NamespaceCategory, category.Name); err != nil {
		s.logger.Warn("failed to drop category from cache", "category", category.Name, "error", err)
	}
}

// RefreshCategory clears the old snapshot's key and loads the new snapshot.
func (s *Syncer) RefreshCategory(oldCategory, newCategory *models.Category) {
	s.ClearCategory(oldCategory)
	s.LoadCategory(newCategory)
}

// LoadAllCategories loads every category of record into the cache.
func (s *Syncer) LoadAllCategories(ctx context.Context) {
	if !s.ready(true) {
		return
	}
	categories, err := s.stores.Categories.List(ctx)
	if err != nil {
		s.logger.Warn("failed to list categories for cache load", "error", err)
		return
	}
	for _, category := range categories {
		s.LoadCategory(category)
	}
}

// RefreshAllCategories reconciles the category namespace against the database.
func (s *Syncer) RefreshAllCategories(ctx context.Context) {
	if !s.ready(true) {
		return
	}
	categories, err := s.stores.Categories.List(ctx)
	if err != nil {
		s.logger.Warn("failed to list categories for cache refresh", "error", err)
		return
	}

	for _, token := range s.namespaceKeys(cache.NamespaceCategory) {
		if categoryClaimsToken(categories, token) {
			continue
		}
		s.logger.Debug("removing stale category key from cache", "key", token)
		if err := s.delete(cache.NamespaceCategory, token); err != nil {
			s.logger.Warn("failed to drop stale category key", "key", token, "error", err)
		}
	}

	for _, category := range categories {
		s.LoadCategory(category)
	}
}

func categoryClaimsToken(categories []*models.Category, token string) bool {
	for _, category := range categories {
		if strings.EqualFold(category.Name, token) {
			return true
		}
	}
	return false
}
