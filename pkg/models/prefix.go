// Package models defines the entities managed by the prefix-command engine:
// commands, their versioned contents, versions, categories, and per-channel
// default versions.
package models

import "strings"

// GenericVersionID is the built-in pseudo-version used when no specific
// version is requested or resolvable. It is never stored in the database.
const GenericVersionID = "GENERIC"

// GenericVersion returns the implicit, always-enabled GENERIC pseudo-version.
func GenericVersion() *Version {
	return &Version{
		ID:      GenericVersionID,
		Name:    GenericVersionID,
		Enabled: true,
	}
}

// Permissions restrict who may invoke a command and where.
//
// Each of the two gates (roles, channels) is a list plus a blocklist flag:
// an empty list passes everyone, a non-blocklist list passes only subjects in
// the list, and a blocklist passes only subjects NOT in the list.
type Permissions struct {
	Roles             []string `json:"roles,omitempty" yaml:"roles,omitempty"`
	RolesBlocklist    bool     `json:"roles_blocklist,omitempty" yaml:"roles_blocklist,omitempty"`
	Channels          []string `json:"channels,omitempty" yaml:"channels,omitempty"`
	ChannelsBlocklist bool     `json:"channels_blocklist,omitempty" yaml:"channels_blocklist,omitempty"`
	QuietErrors       bool     `json:"quiet_errors,omitempty" yaml:"quiet_errors,omitempty"`
	VerboseErrors     bool     `json:"verbose_errors,omitempty" yaml:"verbose_errors,omitempty"`
}

// ContentVariant is one version's reply content for a command.
type ContentVariant struct {
	// VersionID references a Version, or GenericVersionID.
	VersionID  string `json:"version_id" yaml:"version_id"`
	Title      string `json:"title,omitempty" yaml:"title,omitempty"`
	Content    string `json:"content,omitempty" yaml:"content,omitempty"`
	IsEmbed    bool   `json:"is_embed,omitempty" yaml:"is_embed,omitempty"`
	EmbedColor int    `json:"embed_color,omitempty" yaml:"embed_color,omitempty"`
	// ImageURL is an optional image attached to the reply.
	ImageURL string `json:"image,omitempty" yaml:"image,omitempty"`
}

// Command is a moderator-defined text trigger with versioned reply contents.
type Command struct {
	ID string `json:"id" yaml:"id"`

	// Name is unique across all commands, case-insensitive.
	Name string `json:"name" yaml:"name"`

	// Aliases are alternative invocation tokens. Each must be unique across
	// all commands' names and aliases, case-insensitive.
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`

	// Contents holds at most one variant per version id. A command need not
	// carry a variant for every version; a missing version falls back to the
	// GENERIC variant at resolution time.
	Contents []ContentVariant `json:"contents,omitempty" yaml:"contents,omitempty"`

	Permissions Permissions `json:"permissions,omitempty" yaml:"permissions,omitempty"`

	// CategoryID optionally references a Category, for grouping only.
	CategoryID string `json:"category_id,omitempty" yaml:"category_id,omitempty"`
}

// ContentFor returns the content variant for the given version id, if any.
func (c *Command) ContentFor(versionID string) (ContentVariant, bool) {
	for _, variant := range c.Contents {
		if variant.VersionID == versionID {
			return variant, true
		}
	}
	return ContentVariant{}, false
}

// Clone returns a deep copy, used to snapshot pre-edit state for cache
// invalidation under the old key set.
func (c *Command) Clone() *Command {
	clone := *c
	clone.Aliases = append([]string(nil), c.Aliases...)
	clone.Contents = append([]ContentVariant(nil), c.Contents...)
	clone.Permissions.Roles = append([]string(nil), c.Permissions.Roles...)
	clone.Permissions.Channels = append([]string(nil), c.Permissions.Channels...)
	return &clone
}

// Version is a named variant of command content, selectable by alias or by a
// channel default. The name "generic" is reserved for the built-in
// pseudo-version.
type Version struct {
	ID string `json:"id" yaml:"id"`

	// Name is unique across versions, case-insensitive.
	Name string `json:"name" yaml:"name"`

	// Alias is the short invocation token, unique across versions and also
	// checked against all command names and aliases.
	Alias string `json:"alias" yaml:"alias"`

	// Emoji doubles as the picker button label and its sort key.
	Emoji string `json:"emoji,omitempty" yaml:"emoji,omitempty"`

	Enabled bool `json:"enabled" yaml:"enabled"`
}

// IsGeneric reports whether this is the built-in pseudo-version.
func (v *Version) IsGeneric() bool {
	return v.ID == GenericVersionID
}

// Clone returns a copy of the version.
func (v *Version) Clone() *Version {
	clone := *v
	return &clone
}

// Category groups commands for listing. It is not consulted during message
// resolution.
type Category struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Emoji string `json:"emoji,omitempty" yaml:"emoji,omitempty"`
}

// Clone returns a copy of the category.
func (c *Category) Clone() *Category {
	clone := *c
	return &clone
}

// ChannelDefaultVersion maps a channel to the version that replaces GENERIC
// for invocations in that channel, unless the user explicitly typed "generic".
// At most one exists per channel.
type ChannelDefaultVersion struct {
	ChannelID string `json:"channel_id" yaml:"channel_id"`
	VersionID string `json:"version_id" yaml:"version_id"`
}

// ReservedVersionName reports whether the given name collides with the
// built-in GENERIC pseudo-version.
func ReservedVersionName(name string) bool {
	return strings.EqualFold(name, GenericVersionID)
}
