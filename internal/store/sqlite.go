package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wingbits/crewbot/pkg/models"
)

// Entities are stored as JSON documents alongside the columns the filter
// predicates need (exact case-insensitive name match, id-not-equal probes,
// substring search, alias containment).
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS prefix_commands (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	doc  TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_prefix_commands_name ON prefix_commands (lower(name));

CREATE TABLE IF NOT EXISTS prefix_command_versions (
	id    TEXT PRIMARY KEY,
	name  TEXT NOT NULL,
	alias TEXT NOT NULL,
	doc   TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_prefix_command_versions_name ON prefix_command_versions (lower(name));
CREATE UNIQUE INDEX IF NOT EXISTS idx_prefix_command_versions_alias ON prefix_command_versions (lower(alias));

CREATE TABLE IF NOT EXISTS prefix_command_categories (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	doc  TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_prefix_command_categories_name ON prefix_command_categories (lower(name));

CREATE TABLE IF NOT EXISTS prefix_channel_default_versions (
	channel_id TEXT PRIMARY KEY,
	version_id TEXT NOT NULL
);
`

// NewSQLiteStoreSet opens (creating if needed) a SQLite-backed StoreSet at
// the given path.
func NewSQLiteStoreSet(path string) (*StoreSet, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &StoreSet{
		Commands:        &sqliteCommandStore{db: db},
		Versions:        &sqliteVersionStore{db: db},
		Categories:      &sqliteCategoryStore{db: db},
		ChannelDefaults: &sqliteChannelDefaultStore{db: db},
		closer:          db.Close,
	}, nil
}

type sqliteCommandStore struct {
	db *sql.DB
}

func (s *sqliteCommandStore) List(ctx context.Context) ([]*models.Command, error) {
	return s.query(ctx, `SELECT doc FROM prefix_commands`)
}

func (s *sqliteCommandStore) Get(ctx context.Context, id string) (*models.Command, error) {
	return s.queryOne(ctx, `SELECT doc FROM prefix_commands WHERE id = ?`, id)
}

func (s *sqliteCommandStore) FindByName(ctx context.Context, name string) (*models.Command, error) {
	return s.queryOne(ctx, `SELECT doc FROM prefix_commands WHERE lower(name) = lower(?)`, name)
}

func (s *sqliteCommandStore) FindByNameOrAlias(ctx context.Context, token string) (*models.Command, error) {
	return s.queryOne(ctx, `
		SELECT doc FROM prefix_commands
		WHERE lower(name) = lower(?)
		   OR EXISTS (
			SELECT 1 FROM json_each(doc, '$.aliases')
			WHERE lower(json_each.value) = lower(?)
		   )`, token, token)
}

func (s *sqliteCommandStore) FindConflict(ctx context.Context, token, excludeID string) (*models.Command, error) {
	return s.queryOne(ctx, `
		SELECT doc FROM prefix_commands
		WHERE id != ?
		  AND (lower(name) = lower(?)
		   OR EXISTS (
			SELECT 1 FROM json_each(doc, '$.aliases')
			WHERE lower(json_each.value) = lower(?)
		   ))`, excludeID, token, token)
}

func (s *sqliteCommandStore) Search(ctx context.Context, substring string) ([]*models.Command, error) {
	pattern := "%" + escapeLike(substring) + "%"
	return s.query(ctx, `SELECT doc FROM prefix_commands WHERE lower(name) LIKE lower(?) ESCAPE '\'`, pattern)
}

func (s *sqliteCommandStore) Save(ctx context.Context, cmd *models.Command) error {
	doc, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prefix_commands (id, name, doc) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, doc = excluded.doc`,
		cmd.ID, cmd.Name, string(doc))
	return err
}

func (s *sqliteCommandStore) Delete(ctx context.Context, id string) error {
	return deleteByKey(ctx, s.db, `DELETE FROM prefix_commands WHERE id = ?`, id)
}

func (s *sqliteCommandStore) query(ctx context.Context, query string, args ...any) ([]*models.Command, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []*models.Command
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var cmd models.Command
		if err := json.Unmarshal([]byte(doc), &cmd); err != nil {
			return nil, fmt.Errorf("decode command: %w", err)
		}
		result = append(result, &cmd)
	}
	return result, rows.Err()
}

func (s *sqliteCommandStore) queryOne(ctx context.Context, query string, args ...any) (*models.Command, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cmd models.Command
	if err := json.Unmarshal([]byte(doc), &cmd); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	return &cmd, nil
}

type sqliteVersionStore struct {
	db *sql.DB
}

func (s *sqliteVersionStore) List(ctx context.Context) ([]*models.Version, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM prefix_command_versions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []*models.Version
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var version models.Version
		if err := json.Unmarshal([]byte(doc), &version); err != nil {
			return nil, fmt.Errorf("decode version: %w", err)
		}
		result = append(result, &version)
	}
	return result, rows.Err()
}

func (s *sqliteVersionStore) Get(ctx context.Context, id string) (*models.Version, error) {
	return s.queryOne(ctx, `SELECT doc FROM prefix_command_versions WHERE id = ?`, id)
}

func (s *sqliteVersionStore) FindByName(ctx context.Context, name string) (*models.Version, error) {
	return s.queryOne(ctx, `SELECT doc FROM prefix_command_versions WHERE lower(name) = lower(?)`, name)
}

func (s *sqliteVersionStore) FindByAlias(ctx context.Context, alias string) (*models.Version, error) {
	return s.queryOne(ctx, `SELECT doc FROM prefix_command_versions WHERE lower(alias) = lower(?)`, alias)
}

func (s *sqliteVersionStore) FindNameConflict(ctx context.Context, name, excludeID string) (*models.Version, error) {
	return s.queryOne(ctx, `SELECT doc FROM prefix_command_versions WHERE id != ? AND lower(name) = lower(?)`, excludeID, name)
}

func (s *sqliteVersionStore) FindAliasConflict(ctx context.Context, alias, excludeID string) (*models.Version, error) {
	return s.queryOne(ctx, `SELECT doc FROM prefix_command_versions WHERE id != ? AND lower(alias) = lower(?)`, excludeID, alias)
}

func (s *sqliteVersionStore) Save(ctx context.Context, version *models.Version) error {
	doc, err := json.Marshal(version)
	if err != nil {
		return fmt.Errorf("encode version: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prefix_command_versions (id, name, alias, doc) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, alias = excluded.alias, doc = excluded.doc`,
		version.ID, version.Name, version.Alias, string(doc))
	return err
}

func (s *sqliteVersionStore) Delete(ctx context.Context, id string) error {
	return deleteByKey(ctx, s.db, `DELETE FROM prefix_command_versions WHERE id = ?`, id)
}

func (s *sqliteVersionStore) queryOne(ctx context.Context, query string, args ...any) (*models.Version, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var version models.Version
	if err := json.Unmarshal([]byte(doc), &version); err != nil {
		return nil, fmt.Errorf("decode version: %w", err)
	}
	return &version, nil
}

type sqliteCategoryStore struct {
	db *sql.DB
}

func (s *sqliteCategoryStore) List(ctx context.Context) ([]*models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM prefix_command_categories`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []*models.Category
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var category models.Category
		if err := json.Unmarshal([]byte(doc), &category); err != nil {
			return nil, fmt.Errorf("decode category: %w", err)
		}
		result = append(result, &category)
	}
	return result, rows.Err()
}

func (s *sqliteCategoryStore) Get(ctx context.Context, id string) (*models.Category, error) {
	return s.queryOne(ctx, `SELECT doc FROM prefix_command_categories WHERE id = ?`, id)
}

func (s *sqliteCategoryStore) FindByName(ctx context.Context, name string) (*models.Category, error) {
	return s.queryOne(ctx, `SELECT doc FROM prefix_command_categories WHERE lower(name) = lower(?)`, name)
}

func (s *sqliteCategoryStore) Save(ctx context.Context, category *models.Category) error {
	doc, err := json.Marshal(category)
	if err != nil {
		return fmt.Errorf("encode category: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prefix_command_categories (id, name, doc) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, doc = excluded.doc`,
		category.ID, category.Name, string(doc))
	return err
}

func (s *sqliteCategoryStore) Delete(ctx context.Context, id string) error {
	return deleteByKey(ctx, s.db, `DELETE FROM prefix_command_categories WHERE id = ?`, id)
}

func (s *sqliteCategoryStore) queryOne(ctx context.Context, query string, args ...any) (*models.Category, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var category models.Category
	if err := json.Unmarshal([]byte(doc), &category); err != nil {
		return nil, fmt.Errorf("decode category: %w", err)
	}
	return &category, nil
}

type sqliteChannelDefaultStore struct {
	db *sql.DB
}

func (s *sqliteChannelDefaultStore) List(ctx context.Context) ([]*models.ChannelDefaultVersion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel_id, version_id FROM prefix_channel_default_versions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []*models.ChannelDefaultVersion
	for rows.Next() {
		var def models.ChannelDefaultVersion
		if err := rows.Scan(&def.ChannelID, &def.VersionID); err != nil {
			return nil, err
		}
		result = append(result, &def)
	}
	return result, rows.Err()
}

func (s *sqliteChannelDefaultStore) FindByChannel(ctx context.Context, channelID string) (*models.ChannelDefaultVersion, error) {
	var def models.ChannelDefaultVersion
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_id, version_id FROM prefix_channel_default_versions WHERE channel_id = ?`,
		channelID).Scan(&def.ChannelID, &def.VersionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

func (s *sqliteChannelDefaultStore) Save(ctx context.Context, def *models.ChannelDefaultVersion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prefix_channel_default_versions (channel_id, version_id) VALUES (?, ?)
		ON CONFLICT (channel_id) DO UPDATE SET version_id = excluded.version_id`,
		def.ChannelID, def.VersionID)
	return err
}

func (s *sqliteChannelDefaultStore) Delete(ctx context.Context, channelID string) error {
	return deleteByKey(ctx, s.db, `DELETE FROM prefix_channel_default_versions WHERE channel_id = ?`, channelID)
}

func deleteByKey(ctx context.Context, db *sql.DB, query, key string) error {
	result, err := db.ExecContext(ctx, query, key)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
