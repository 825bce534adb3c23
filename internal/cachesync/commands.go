package cachesync

import (
	"context"
	"strings"

	"github.com/wingbits/crewbot/internal/cache"
	"github.com/wingbits/crewbot/pkg/models"
)

// LoadCommand writes the command snapshot under its name key and under every
// alias key. All keys point at identical snapshot content; the duplication
// buys O(1) lookup by either name or alias.
func (s *Syncer) LoadCommand(cmd *models.Command) {
	if !s.ready(false) {
		return
	}
	s.logger.Debug("loading command to cache", "command", cmd.Name)
	if err := s.set(cache.NamespaceCommand, cmd.Name, cmd); err != nil {
		s.logger.Warn("failed to cache command", "command", cmd.Name, "error", err)
		return
	}
	for _, alias := range cmd.Aliases {
		if err := s.set(cache.NamespaceCommand, alias, cmd); err != nil {
			s.logger.Warn("failed to cache command alias", "command", cmd.Name, "alias", alias, "error", err)
		}
	}
}

// ClearCommand deletes every key LoadCommand would have written, derived from
// the snapshot's current field values. To clear a pre-edit key set, pass the
// old snapshot: clearing after a rename would otherwise delete the wrong keys.
func (s *Syncer) ClearCommand(cmd *models.Command) {
	if !s.ready(false) {
		return
	}
	s.logger.Debug("clearing command from cache", "command", cmd.Name)
	for _, alias := range cmd.Aliases {
		if err := s.delete(cache.NamespaceCommand, alias); err != nil {
			s.logger.Warn("failed to drop command alias from cache", "alias", alias, "error", err)
		}
	}
	if err := s.delete(cache.NamespaceCommand, cmd.Name); err != nil {
		s.logger.Warn("failed to drop command from cache", "command", cmd.Name, "error", err)
	}
}

// RefreshCommand reflects an edit that may have changed a key-bearing field:
// it clears the old snapshot's keys, then loads the new snapshot. This is the
// only correct way to mirror a rename; loading alone would leak the old keys
// until their TTL.
func (s *Syncer) RefreshCommand(oldCmd, newCmd *models.Command) {
	s.ClearCommand(oldCmd)
	s.LoadCommand(newCmd)
}

// LoadAllCommands loads every command of record into the cache.
func (s *Syncer) LoadAllCommands(ctx context.Context) {
	if !s.ready(true) {
		return
	}
	commands, err := s.stores.Commands.List(ctx)
	if err != nil {
		s.logger.Warn("failed to list commands for cache load", "error", err)
		return
	}
	for _, cmd := range commands {
		s.LoadCommand(cmd)
	}
}

// RefreshAllCommands reconciles the command namespace against the database:
// cached keys no longer claimed by any command (by name or alias) are
// removed, then every database command is re-loaded. O(cached keys × db
// commands), acceptable for an explicit admin-triggered rebuild.
func (s *Syncer) RefreshAllCommands(ctx context.Context) {
	if !s.ready(true) {
		return
	}
	commands, err := s.stores.Commands.List(ctx)
	if err != nil {
		s.logger.Warn("failed to list commands for cache refresh", "error", err)
		return
	}

	for _, token := range s.namespaceKeys(cache.NamespaceCommand) {
		if commandClaimsToken(commands, token) {
			continue
		}
		s.logger.Debug("removing stale command key from cache", "key", token)
		if err := s.delete(cache.NamespaceCommand, token); err != nil {
			s.logger.Warn("failed to drop stale command key", "key", token, "error", err)
		}
	}

	for _, cmd := range commands {
		s.LoadCommand(cmd)
	}
}

func commandClaimsToken(commands []*models.Command, token string) bool {
	for _, cmd := range commands {
		if strings.EqualFold(cmd.Name, token) {
			return true
		}
		for _, alias := range cmd.Aliases {
			if strings.EqualFold(alias, token) {
				return true
			}
		}
	}
	return false
}
