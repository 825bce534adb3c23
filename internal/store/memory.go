package store

import (
	"context"
	"strings"
	"sync"

	"github.com/wingbits/crewbot/pkg/models"
)

// NewMemoryStoreSet returns a StoreSet backed by in-memory maps. Used in
// tests and as a fallback when no database path is configured.
func NewMemoryStoreSet() *StoreSet {
	return &StoreSet{
		Commands:        &memoryCommandStore{commands: map[string]*models.Command{}},
		Versions:        &memoryVersionStore{versions: map[string]*models.Version{}},
		Categories:      &memoryCategoryStore{categories: map[string]*models.Category{}},
		ChannelDefaults: &memoryChannelDefaultStore{defaults: map[string]*models.ChannelDefaultVersion{}},
	}
}

type memoryCommandStore struct {
	mu       sync.RWMutex
	commands map[string]*models.Command
}

func (s *memoryCommandStore) List(ctx context.Context) ([]*models.Command, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*models.Command, 0, len(s.commands))
	for _, cmd := range s.commands {
		result = append(result, cmd.Clone())
	}
	return result, nil
}

func (s *memoryCommandStore) Get(ctx context.Context, id string) (*models.Command, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cmd, ok := s.commands[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cmd.Clone(), nil
}

func (s *memoryCommandStore) FindByName(ctx context.Context, name string) (*models.Command, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cmd := range s.commands {
		if strings.EqualFold(cmd.Name, name) {
			return cmd.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryCommandStore) FindByNameOrAlias(ctx context.Context, token string) (*models.Command, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cmd := range s.commands {
		if commandAnswersTo(cmd, token) {
			return cmd.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryCommandStore) FindConflict(ctx context.Context, token, excludeID string) (*models.Command, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cmd := range s.commands {
		if cmd.ID == excludeID {
			continue
		}
		if commandAnswersTo(cmd, token) {
			return cmd.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryCommandStore) Search(ctx context.Context, substring string) ([]*models.Command, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(substring)
	var result []*models.Command
	for _, cmd := range s.commands {
		if strings.Contains(strings.ToLower(cmd.Name), needle) {
			result = append(result, cmd.Clone())
		}
	}
	return result, nil
}

func (s *memoryCommandStore) Save(ctx context.Context, cmd *models.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[cmd.ID] = cmd.Clone()
	return nil
}

func (s *memoryCommandStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.commands[id]; !ok {
		return ErrNotFound
	}
	delete(s.commands, id)
	return nil
}

func commandAnswersTo(cmd *models.Command, token string) bool {
	if strings.EqualFold(cmd.Name, token) {
		return true
	}
	for _, alias := range cmd.Aliases {
		if strings.EqualFold(alias, token) {
			return true
		}
	}
	return false
}

type memoryVersionStore struct {
	mu       sync.RWMutex
	versions map[string]*models.Version
}

func (s *memoryVersionStore) List(ctx context.Context) ([]*models.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*models.Version, 0, len(s.versions))
	for _, version := range s.versions {
		result = append(result, version.Clone())
	}
	return result, nil
}

func (s *memoryVersionStore) Get(ctx context.Context, id string) (*models.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	version, ok := s.versions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return version.Clone(), nil
}

func (s *memoryVersionStore) FindByName(ctx context.Context, name string) (*models.Version, error) {
	return s.find(func(v *models.Version) bool { return strings.EqualFold(v.Name, name) })
}

func (s *memoryVersionStore) FindByAlias(ctx context.Context, alias string) (*models.Version, error) {
	return s.find(func(v *models.Version) bool { return strings.EqualFold(v.Alias, alias) })
}

func (s *memoryVersionStore) FindNameConflict(ctx context.Context, name, excludeID string) (*models.Version, error) {
	return s.find(func(v *models.Version) bool {
		return v.ID != excludeID && strings.EqualFold(v.Name, name)
	})
}

func (s *memoryVersionStore) FindAliasConflict(ctx context.Context, alias, excludeID string) (*models.Version, error) {
	return s.find(func(v *models.Version) bool {
		return v.ID != excludeID && strings.EqualFold(v.Alias, alias)
	})
}

func (s *memoryVersionStore) find(match func(*models.Version) bool) (*models.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, version := range s.versions {
		if match(version) {
			return version.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryVersionStore) Save(ctx context.Context, version *models.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[version.ID] = version.Clone()
	return nil
}

func (s *memoryVersionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.versions[id]; !ok {
		return ErrNotFound
	}
	delete(s.versions, id)
	return nil
}

type memoryCategoryStore struct {
	mu         sync.RWMutex
	categories map[string]*models.Category
}

func (s *memoryCategoryStore) List(ctx context.Context) ([]*models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*models.Category, 0, len(s.categories))
	for _, category := range s.categories {
		result = append(result, category.Clone())
	}
	return result, nil
}

func (s *memoryCategoryStore) Get(ctx context.Context, id string) (*models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	category, ok := s.categories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return category.Clone(), nil
}

func (s *memoryCategoryStore) FindByName(ctx context.Context, name string) (*models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, category := range s.categories {
		if strings.EqualFold(category.Name, name) {
			return category.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryCategoryStore) Save(ctx context.Context, category *models.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[category.ID] = category.Clone()
	return nil
}

func (s *memoryCategoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return ErrNotFound
	}
	delete(s.categories, id)
	return nil
}

type memoryChannelDefaultStore struct {
	mu       sync.RWMutex
	defaults map[string]*models.ChannelDefaultVersion
}

func (s *memoryChannelDefaultStore) List(ctx context.Context) ([]*models.ChannelDefaultVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*models.ChannelDefaultVersion, 0, len(s.defaults))
	for _, def := range s.defaults {
		clone := *def
		result = append(result, &clone)
	}
	return result, nil
}

func (s *memoryChannelDefaultStore) FindByChannel(ctx context.Context, channelID string) (*models.ChannelDefaultVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defaults[channelID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *def
	return &clone, nil
}

func (s *memoryChannelDefaultStore) Save(ctx context.Context, def *models.ChannelDefaultVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *def
	s.defaults[def.ChannelID] = &clone
	return nil
}

func (s *memoryChannelDefaultStore) Delete(ctx context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defaults[channelID]; !ok {
		return ErrNotFound
	}
	delete(s.defaults, channelID)
	return nil
}
