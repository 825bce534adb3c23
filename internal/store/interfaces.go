// Package store persists the prefix-command entities of record. The cache
// layer is reconciled against these stores; message resolution never queries
// them directly.
package store

import (
	"context"
	"errors"

	"github.com/wingbits/crewbot/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// CommandStore persists prefix commands.
type CommandStore interface {
	List(ctx context.Context) ([]*models.Command, error)
	Get(ctx context.Context, id string) (*models.Command, error)
	// FindByName matches the command name case-insensitively.
	FindByName(ctx context.Context, name string) (*models.Command, error)
	// FindByNameOrAlias matches the token against names and aliases,
	// case-insensitively.
	FindByNameOrAlias(ctx context.Context, token string) (*models.Command, error)
	// FindConflict returns a command other than excludeID whose name or
	// aliases collide with the token, for uniqueness checks on edits.
	FindConflict(ctx context.Context, token, excludeID string) (*models.Command, error)
	// Search returns commands whose name contains the substring,
	// case-insensitively.
	Search(ctx context.Context, substring string) ([]*models.Command, error)
	Save(ctx context.Context, cmd *models.Command) error
	Delete(ctx context.Context, id string) error
}

// VersionStore persists command versions.
type VersionStore interface {
	List(ctx context.Context) ([]*models.Version, error)
	Get(ctx context.Context, id string) (*models.Version, error)
	FindByName(ctx context.Context, name string) (*models.Version, error)
	FindByAlias(ctx context.Context, alias string) (*models.Version, error)
	// FindNameConflict returns a version other than excludeID with the given
	// name, case-insensitively.
	FindNameConflict(ctx context.Context, name, excludeID string) (*models.Version, error)
	// FindAliasConflict returns a version other than excludeID with the given
	// alias, case-insensitively.
	FindAliasConflict(ctx context.Context, alias, excludeID string) (*models.Version, error)
	Save(ctx context.Context, version *models.Version) error
	Delete(ctx context.Context, id string) error
}

// CategoryStore persists command categories.
type CategoryStore interface {
	List(ctx context.Context) ([]*models.Category, error)
	Get(ctx context.Context, id string) (*models.Category, error)
	FindByName(ctx context.Context, name string) (*models.Category, error)
	Save(ctx context.Context, category *models.Category) error
	Delete(ctx context.Context, id string) error
}

// ChannelDefaultStore persists per-channel default versions. At most one
// record exists per channel.
type ChannelDefaultStore interface {
	List(ctx context.Context) ([]*models.ChannelDefaultVersion, error)
	FindByChannel(ctx context.Context, channelID string) (*models.ChannelDefaultVersion, error)
	Save(ctx context.Context, def *models.ChannelDefaultVersion) error
	Delete(ctx context.Context, channelID string) error
}

// StoreSet groups the entity stores behind one handle.
type StoreSet struct {
	Commands        CommandStore
	Versions        VersionStore
	Categories      CategoryStore
	ChannelDefaults ChannelDefaultStore

	closer func() error
}

// Close closes any underlying resources.
func (s *StoreSet) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer()
}

// Available reports whether the database of record is reachable. Loader and
// sync operations no-op when it is not.
func (s *StoreSet) Available() bool {
	return s != nil && s.Commands != nil && s.Versions != nil &&
		s.Categories != nil && s.ChannelDefaults != nil
}
