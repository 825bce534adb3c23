// Package admin implements the moderator-facing mutations on commands,
// versions, categories, and channel defaults. Every write goes to the
// database of record first, then is mirrored into the snapshot cache before
// the call returns, so the message path never serves a stale entity after an
// acknowledged edit.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/wingbits/crewbot/internal/cachesync"
	"github.com/wingbits/crewbot/internal/observability"
	"github.com/wingbits/crewbot/internal/store"
	"github.com/wingbits/crewbot/pkg/models"
)

var (
	// ErrReservedName rejects entities that would collide with the built-in
	// GENERIC pseudo-version.
	ErrReservedName = errors.New(`the name "generic" is reserved`)

	// ErrInvalidToken rejects invocation tokens the message tokenizer could
	// never match.
	ErrInvalidToken = errors.New("tokens may contain only letters, digits, underscores, and hyphens")

	// ErrVersionInUse rejects deleting a version that channel defaults still
	// reference.
	ErrVersionInUse = errors.New("version is referenced by channel defaults")
)

// tokenPattern mirrors the tokenizer's character class: an entity whose name
// contains anything else would be uninvocable.
var tokenPattern = regexp.MustCompile(`^[\w-]+$`)

// ModLogger posts audit entries to the moderation log channel.
type ModLogger interface {
	PostModLog(ctx context.Context, title string, fields [][2]string) error
}

// Service wires the stores and the cache syncer behind the moderator surface.
type Service struct {
	stores  *store.StoreSet
	syncer  *cachesync.Syncer
	logger  *slog.Logger
	metrics *observability.Metrics

	// modLog is optional; audit posting is best effort.
	modLog ModLogger

	// newID is a seam for deterministic ids in tests.
	newID func() string
}

// New creates a Service. modLog may be nil.
func New(stores *store.StoreSet, syncer *cachesync.Syncer, logger *slog.Logger,
	metrics *observability.Metrics, modLog ModLogger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		stores:  stores,
		syncer:  syncer,
		logger:  logger.With("component", "admin"),
		metrics: metrics,
		modLog:  modLog,
		newID:   uuid.NewString,
	}
}

// --- commands ---

// CreateCommand validates and persists a new command, then loads it into the
// cache. An empty ID is assigned.
func (s *Service) CreateCommand(ctx context.Context, cmd *models.Command) error {
	if err := s.validateCommandTokens(ctx, cmd, ""); err != nil {
		return err
	}
	if cmd.ID == "" {
		cmd.ID = s.newID()
	}
	if err := s.stores.Commands.Save(ctx, cmd); err != nil {
		return fmt.Errorf("saving command %q: %w", cmd.Name, err)
	}
	s.syncer.LoadCommand(cmd)
	s.audit(ctx, "Command created", cmd.Name, cmd.ID)
	return nil
}

// UpdateCommand validates and persists an edit, then swaps the cache keys
// from the pre-edit snapshot to the new shape.
func (s *Service) UpdateCommand(ctx context.Context, cmd *models.Command) error {
	old, err := s.stores.Commands.Get(ctx, cmd.ID)
	if err != nil {
		return fmt.Errorf("loading command %q: %w", cmd.ID, err)
	}
	if err := s.validateCommandTokens(ctx, cmd, cmd.ID); err != nil {
		return err
	}
	if err := s.stores.Commands.Save(ctx, cmd); err != nil {
		return fmt.Errorf("saving command %q: %w", cmd.Name, err)
	}
	s.syncer.RefreshCommand(old, cmd)
	s.audit(ctx, "Command updated", cmd.Name, cmd.ID)
	return nil
}

// DeleteCommand removes a command and clears its cache keys.
func (s *Service) DeleteCommand(ctx context.Context, id string) error {
	old, err := s.stores.Commands.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading command %q: %w", id, err)
	}
	if err := s.stores.Commands.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting command %q: %w", id, err)
	}
	s.syncer.ClearCommand(old)
	s.audit(ctx, "Command deleted", old.Name, old.ID)
	return nil
}

// validateCommandTokens enforces the shared token namespace: a command's name
// and aliases must be well-formed, not reserved, and free of collisions with
// every other command's tokens and every version's alias.
func (s *Service) validateCommandTokens(ctx context.Context, cmd *models.Command, excludeID string) error {
	tokens := append([]string{cmd.Name}, cmd.Aliases...)
	for _, token := range tokens {
		if !tokenPattern.MatchString(token) {
			return fmt.Errorf("token %q: %w", token, ErrInvalidToken)
		}
		if models.ReservedVersionName(token) {
			return fmt.Errorf("token %q: %w", token, ErrReservedName)
		}
		conflict, err := s.stores.Commands.FindConflict(ctx, token, excludeID)
		if err == nil {
			return fmt.Errorf("token %q collides with command %q: %w",
				token, conflict.Name, store.ErrAlreadyExists)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("checking token %q: %w", token, err)
		}
		version, err := s.stores.Versions.FindByAlias(ctx, token)
		if err == nil {
			return fmt.Errorf("token %q collides with version alias %q: %w",
				token, version.Alias, store.ErrAlreadyExists)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("checking token %q: %w", token, err)
		}
	}
	return nil
}

// --- versions ---

// CreateVersion validates and persists a new version, then loads it into the
// cache.
func (s *Service) CreateVersion(ctx context.Context, version *models.Version) error {
	if err := s.validateVersion(ctx, version, ""); err != nil {
		return err
	}
	if version.ID == "" {
		version.ID = s.newID()
	}
	if err := s.stores.Versions.Save(ctx, version); err != nil {
		return fmt.Errorf("saving version %q: %w", version.Name, err)
	}
	s.syncer.LoadVersion(version)
	s.audit(ctx, "Version created", version.Name, version.ID)
	return nil
}

// UpdateVersion persists an edit and swaps the cache keys. Channel defaults
// cache the resolved version, so their namespace is reconciled too.
func (s *Service) UpdateVersion(ctx context.Context, version *models.Version) error {
	old, err := s.stores.Versions.Get(ctx, version.ID)
	if err != nil {
		return fmt.Errorf("loading version %q: %w", version.ID, err)
	}
	if err := s.validateVersion(ctx, version, version.ID); err != nil {
		return err
	}
	if err := s.stores.Versions.Save(ctx, version); err != nil {
		return fmt.Errorf("saving version %q: %w", version.Name, err)
	}
	s.syncer.RefreshVersion(old, version)
	s.syncer.RefreshAllChannelDefaults(ctx)
	s.audit(ctx, "Version updated", version.Name, version.ID)
	return nil
}

// DeleteVersion removes a version. Deletion is refused while channel defaults
// still point at it; remove those first.
func (s *Service) DeleteVersion(ctx context.Context, id string) error {
	old, err := s.stores.Versions.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading version %q: %w", id, err)
	}
	defaults, err := s.stores.ChannelDefaults.List(ctx)
	if err != nil {
		return fmt.Errorf("listing channel defaults: %w", err)
	}
	for _, def := range defaults {
		if def.VersionID == id {
			return fmt.Errorf("version %q: %w", old.Name, ErrVersionInUse)
		}
	}
	if err := s.stores.Versions.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting version %q: %w", id, err)
	}
	s.syncer.ClearVersion(old)
	s.audit(ctx, "Version deleted", old.Name, old.ID)
	return nil
}

func (s *Service) validateVersion(ctx context.Context, version *models.Version, excludeID string) error {
	if models.ReservedVersionName(version.Name) || models.ReservedVersionName(version.Alias) {
		return ErrReservedName
	}
	if !tokenPattern.MatchString(version.Alias) {
		return fmt.Errorf("alias %q: %w", version.Alias, ErrInvalidToken)
	}
	conflict, err := s.stores.Versions.FindNameConflict(ctx, version.Name, excludeID)
	if err == nil {
		return fmt.Errorf("name collides with version %q: %w", conflict.ID, store.ErrAlreadyExists)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("checking version name: %w", err)
	}
	conflict, err = s.stores.Versions.FindAliasConflict(ctx, version.Alias, excludeID)
	if err == nil {
		return fmt.Errorf("alias collides with version %q: %w", conflict.ID, store.ErrAlreadyExists)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("checking version alias: %w", err)
	}
	// The alias shares the invocation namespace with command tokens.
	cmd, err := s.stores.Commands.FindByNameOrAlias(ctx, version.Alias)
	if err == nil {
		return fmt.Errorf("alias collides with command %q: %w", cmd.Name, store.ErrAlreadyExists)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("checking version alias: %w", err)
	}
	return nil
}

// --- categories ---

// CreateCategory validates and persists a new category.
func (s *Service) CreateCategory(ctx context.Context, category *models.Category) error {
	existing, err := s.stores.Categories.FindByName(ctx, category.Name)
	if err == nil && existing.ID != category.ID {
		return fmt.Errorf("category %q: %w", category.Name, store.ErrAlreadyExists)
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("checking category name: %w", err)
	}
	if category.ID == "" {
		category.ID = s.newID()
	}
	if err := s.stores.Categories.Save(ctx, category); err != nil {
		return fmt.Errorf("saving category %q: %w", category.Name, err)
	}
	s.syncer.LoadCategory(category)
	s.audit(ctx, "Category created", category.Name, category.ID)
	return nil
}

// UpdateCategory persists an edit and swaps the cache key.
func (s *Service) UpdateCategory(ctx context.Context, category *models.Category) error {
	old, err := s.stores.Categories.Get(ctx, category.ID)
	if err != nil {
		return fmt.Errorf("loading category %q: %w", category.ID, err)
	}
	existing, err := s.stores.Categories.FindByName(ctx, category.Name)
	if err == nil && existing.ID != category.ID {
		return fmt.Errorf("category %q: %w", category.Name, store.ErrAlreadyExists)
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("checking category name: %w", err)
	}
	if err := s.stores.Categories.Save(ctx, category); err != nil {
		return fmt.Errorf("saving category %q: %w", category.Name, err)
	}
	s.syncer.RefreshCategory(old, category)
	s.audit(ctx, "Category updated", category.Name, category.ID)
	return nil
}

// DeleteCategory removes a category and clears its cache key. Commands keep
// their dangling CategoryID; categories only group listings.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	old, err := s.stores.Categories.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading category %q: %w", id, err)
	}
	if err := s.stores.Categories.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting category %q: %w", id, err)
	}
	s.syncer.ClearCategory(old)
	s.audit(ctx, "Category deleted", old.Name, old.ID)
	return nil
}

// --- channel defaults ---

// SetChannelDefault points a channel at a version, replacing any existing
// default for that channel.
func (s *Service) SetChannelDefault(ctx context.Context, channelID, versionID string) error {
	version, err := s.stores.Versions.Get(ctx, versionID)
	if err != nil {
		return fmt.Errorf("loading version %q: %w", versionID, err)
	}
	def := &models.ChannelDefaultVersion{ChannelID: channelID, VersionID: version.ID}

	old, err := s.stores.ChannelDefaults.FindByChannel(ctx, channelID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("loading channel default for %q: %w", channelID, err)
	}
	if err := s.stores.ChannelDefaults.Save(ctx, def); err != nil {
		return fmt.Errorf("saving channel default for %q: %w", channelID, err)
	}
	if old != nil {
		s.syncer.RefreshChannelDefault(ctx, old, def)
	} else {
		s.syncer.LoadChannelDefault(ctx, def)
	}
	s.audit(ctx, "Channel default set", version.Name, channelID)
	return nil
}

// RemoveChannelDefault deletes a channel's default version.
func (s *Service) RemoveChannelDefault(ctx context.Context, channelID string) error {
	old, err := s.stores.ChannelDefaults.FindByChannel(ctx, channelID)
	if err != nil {
		return fmt.Errorf("loading channel default for %q: %w", channelID, err)
	}
	if err := s.stores.ChannelDefaults.Delete(ctx, channelID); err != nil {
		return fmt.Errorf("deleting channel default for %q: %w", channelID, err)
	}
	s.syncer.ClearChannelDefault(old)
	s.audit(ctx, "Channel default removed", old.VersionID, channelID)
	return nil
}

// --- cache maintenance ---

// UpdateCache forces a full reconciliation of every cache namespace against
// the database and returns how long it took.
func (s *Service) UpdateCache(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	s.syncer.RefreshAll(ctx)
	elapsed := time.Since(start)
	s.metrics.RefreshObserved(elapsed)
	s.logger.Info("cache update completed", "duration", elapsed)
	s.audit(ctx, "Cache updated", fmt.Sprintf("%.2fs", elapsed.Seconds()), "")
	return elapsed, nil
}

// audit posts a moderation-log entry, best effort.
func (s *Service) audit(ctx context.Context, title, subject, id string) {
	if s.modLog == nil {
		return
	}
	fields := [][2]string{{"Subject", subject}}
	if id != "" {
		fields = append(fields, [2]string{"ID", id})
	}
	if err := s.modLog.PostModLog(ctx, title, fields); err != nil {
		s.logger.Warn("failed to post moderation log entry", "title", title, "error", err)
	}
}
