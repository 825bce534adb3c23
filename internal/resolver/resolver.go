// Package resolver turns incoming guild messages into command replies. It
// reads exclusively from the snapshot cache; the database is never consulted
// on the message path.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/wingbits/crewbot/internal/cache"
	"github.com/wingbits/crewbot/internal/cachesync"
	"github.com/wingbits/crewbot/internal/discord"
	"github.com/wingbits/crewbot/internal/observability"
	"github.com/wingbits/crewbot/internal/picker"
	"github.com/wingbits/crewbot/pkg/models"
)

// permissionErrorColor is the embed color for permission denials.
const permissionErrorColor = 0xE74C3C

// Config configures the resolver.
type Config struct {
	// Prefix is the invocation sigil (default ".").
	Prefix string

	// PermissionErrorDeleteDelay, when positive, schedules deletion of both
	// the denial reply and the triggering message after this delay. Zero
	// leaves both in place.
	PermissionErrorDeleteDelay time.Duration

	// DefaultEmbedColor is used for embed replies whose variant does not set
	// a color.
	DefaultEmbedColor int

	// PickerTimeout bounds disambiguation sessions (picker.DefaultTimeout
	// when zero).
	PickerTimeout time.Duration

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Validate applies defaults and checks the configuration.
func (c *Config) Validate() error {
	if c.Prefix == "" {
		c.Prefix = "."
	}
	if strings.ContainsAny(c.Prefix, " \t\n") {
		return fmt.Errorf("prefix must not contain whitespace: %q", c.Prefix)
	}
	if c.PickerTimeout <= 0 {
		c.PickerTimeout = picker.DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Resolver is the message-path pipeline. It is safe for concurrent use; the
// dispatcher runs HandleMessage on one goroutine per message.
type Resolver struct {
	cfg       Config
	cache     *cache.Store
	messenger discord.Messenger
	logger    *slog.Logger
	metrics   *observability.Metrics

	// pattern captures the command-or-version token and the optional second
	// token after the prefix.
	pattern *regexp.Regexp
}

// New creates a Resolver. cfg is validated and defaulted in place.
func New(cacheStore *cache.Store, messenger discord.Messenger, cfg Config) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pattern, err := regexp.Compile(`^` + regexp.QuoteMeta(cfg.Prefix) + `([\w-]+)[^\w-]*([\w-]+)?`)
	if err != nil {
		return nil, fmt.Errorf("compiling tokenizer for prefix %q: %w", cfg.Prefix, err)
	}
	return &Resolver{
		cfg:       cfg,
		cache:     cacheStore,
		messenger: messenger,
		logger:    cfg.Logger.With("component", "resolver"),
		metrics:   cfg.Metrics,
		pattern:   pattern,
	}, nil
}

// HandleMessage runs the full resolution pipeline for one message. It never
// returns an error: every failure mode is a logged drop or a user-facing
// denial, and a broken message must not take the dispatcher down.
func (r *Resolver) HandleMessage(ctx context.Context, msg discord.Incoming) {
	if !strings.HasPrefix(msg.Content, r.cfg.Prefix) {
		return
	}
	r.metrics.MessageProcessed()

	match := r.pattern.FindStringSubmatch(msg.Content)
	if match == nil {
		r.metrics.Drop("tokenize")
		return
	}
	first := strings.ToLower(match[1])
	second := strings.ToLower(match[2])

	// The first token is either a version selector or the command itself.
	// The literal "generic" always selects the pseudo-version and, unlike an
	// implicit GENERIC, is immune to channel default substitution.
	explicitGeneric := first == strings.ToLower(models.GenericVersionID)
	version := models.GenericVersion()
	versionConsumed := explicitGeneric
	if !explicitGeneric {
		snapshot, hit, err := r.lookup(cache.NamespaceVersion, first)
		if err != nil {
			r.dropUncached(err)
			return
		}
		if hit {
			decoded, err := cachesync.DecodeVersion(snapshot)
			if err != nil {
				r.logger.Error("corrupt version snapshot in cache", "key", first, "error", err)
				r.metrics.Drop("decode")
				return
			}
			version = decoded
			versionConsumed = true
		}
	}

	// When the first token selected a version the command is the second
	// token; without one, the first token doubles as the command lookup.
	commandText := first
	if versionConsumed && second != "" {
		commandText = second
	}

	// A channel default substitutes for an implicit GENERIC only.
	channelDefaultUsed := false
	if version.IsGeneric() && !explicitGeneric {
		snapshot, hit, err := r.lookup(cache.NamespaceChannelDefaultVersion, msg.ChannelID)
		if err != nil {
			r.dropUncached(err)
			return
		}
		if hit {
			if decoded, err := cachesync.DecodeVersion(snapshot); err == nil {
				version = decoded
				channelDefaultUsed = true
			} else {
				r.logger.Error("corrupt channel default snapshot in cache",
					"channel_id", msg.ChannelID, "error", err)
			}
		}
	}

	// Disabled policy: an explicitly requested disabled version drops the
	// message outright, while a disabled channel default quietly falls back
	// to GENERIC.
	if !version.Enabled {
		if !channelDefaultUsed {
			r.logger.Debug("dropping command for disabled version",
				"version", version.Name, "command", commandText)
			r.metrics.Drop("version_disabled")
			return
		}
		version = models.GenericVersion()
	}

	snapshot, hit, err := r.lookup(cache.NamespaceCommand, commandText)
	if err != nil {
		r.dropUncached(err)
		return
	}
	if !hit {
		r.metrics.Drop("unknown_command")
		return
	}
	cmd, err := cachesync.DecodeCommand(snapshot)
	if err != nil {
		r.logger.Error("corrupt command snapshot in cache", "key", commandText, "error", err)
		r.metrics.Drop("decode")
		return
	}

	if !r.messenger.BotCanReply(msg.ChannelID) {
		r.logger.Info("cannot reply in channel, dropping command",
			"channel_id", msg.ChannelID, "command", cmd.Name)
		r.metrics.Drop("bot_permissions")
		return
	}

	if !r.checkPermissions(ctx, msg, cmd) {
		return
	}

	footer := executedBy(msg)
	compose := func(variant models.ContentVariant) discord.Outgoing {
		return composeReply(variant, r.cfg.DefaultEmbedColor, footer)
	}

	variant, found := cmd.ContentFor(version.ID)
	pickerEligible := true
	if !found {
		// Falling back from a specific version to GENERIC answers with the
		// generic content but never offers the picker.
		variant, found = cmd.ContentFor(models.GenericVersionID)
		pickerEligible = false
	}
	if !found {
		r.logger.Debug("command has no content for resolved version",
			"command", cmd.Name, "version", version.Name)
		r.metrics.Drop("no_content")
		return
	}

	out := compose(variant)
	if pickerEligible && version.IsGeneric() && len(cmd.Contents) > 1 {
		if buttons := r.versionButtons(cmd); len(buttons) > 0 {
			r.runPicker(ctx, msg, cmd, out, buttons, compose)
			return
		}
	}

	if _, err := r.messenger.Reply(ctx, msg, out); err != nil {
		r.logger.Error("failed to send command reply", "command", cmd.Name, "error", err)
		return
	}
	r.metrics.CommandResolved()
}

// lookup reads a snapshot, lowercasing the key the way the syncer writes it.
func (r *Resolver) lookup(ns cache.Namespace, key string) ([]byte, bool, error) {
	snapshot, ok, err := r.cache.Get(ns, strings.ToLower(key))
	if err != nil {
		return nil, false, err
	}
	r.metrics.CacheLookup(string(ns), ok)
	return snapshot, ok, nil
}

func (r *Resolver) dropUncached(err error) {
	r.logger.Debug("cache unavailable, dropping message", "error", err)
	r.metrics.Drop("cache_unavailable")
}

// checkPermissions runs the role gate then the channel gate, sending a denial
// reply (or silently dropping, for quiet commands) on the first failure.
func (r *Resolver) checkPermissions(ctx context.Context, msg discord.Incoming, cmd *models.Command) bool {
	perms := cmd.Permissions

	if len(perms.Roles) > 0 {
		held, err := r.messenger.MemberRoles(ctx, msg.GuildID, msg.AuthorID)
		if err != nil {
			r.logger.Warn("failed to fetch member roles, treating as none",
				"guild_id", msg.GuildID, "user_id", msg.AuthorID, "error", err)
			held = nil
		}
		if !gatePasses(perms.Roles, perms.RolesBlocklist, anyOverlap(held, perms.Roles)) {
			names := make([]string, len(perms.Roles))
			for i, roleID := range perms.Roles {
				names[i] = r.messenger.RoleName(msg.GuildID, roleID)
			}
			r.denyPermission(ctx, msg, cmd, roleGateMessage(perms, names))
			return false
		}
	}

	if len(perms.Channels) > 0 {
		inList := containsFold(perms.Channels, msg.ChannelID)
		if !gatePasses(perms.Channels, perms.ChannelsBlocklist, inList) {
			mentions := make([]string, len(perms.Channels))
			for i, channelID := range perms.Channels {
				mentions[i] = r.messenger.ChannelMention(channelID)
			}
			r.denyPermission(ctx, msg, cmd, channelGateMessage(perms, mentions))
			return false
		}
	}

	return true
}

// denyPermission reports a gate failure to the invoker, honoring the
// command's quiet flag and the configured cleanup delay.
func (r *Resolver) denyPermission(ctx context.Context, msg discord.Incoming, cmd *models.Command, reason string) {
	r.metrics.Drop("permission_denied")
	if cmd.Permissions.QuietErrors {
		r.logger.Debug("silently dropping command for failed permission gate",
			"command", cmd.Name, "user_id", msg.AuthorID)
		return
	}

	delay := r.cfg.PermissionErrorDeleteDelay
	if delay > 0 {
		reason += fmt.Sprintf("\n\nThis message & the original command message will be deleted in %d seconds.",
			int(delay.Seconds()))
	}

	out := discord.Outgoing{
		Title:      "Permission Error",
		Content:    reason,
		IsEmbed:    true,
		EmbedColor: permissionErrorColor,
		Footer:     executedBy(msg),
	}
	errorMessageID, err := r.messenger.Reply(ctx, msg, out)
	if err != nil {
		r.logger.Error("failed to send permission error reply", "command", cmd.Name, "error", err)
		return
	}

	if delay > 0 {
		// Outlives the per-message context; cleanup is fire and forget.
		cleanupCtx := context.WithoutCancel(ctx)
		time.AfterFunc(delay, func() {
			if err := r.messenger.Delete(cleanupCtx, msg.ChannelID, errorMessageID); err != nil {
				r.logger.Warn("failed to delete permission error reply", "error", err)
			}
			if err := r.messenger.Delete(cleanupCtx, msg.ChannelID, msg.MessageID); err != nil {
				r.logger.Warn("failed to delete denied command message", "error", err)
			}
		})
	}
}

// versionButtons builds one button per enabled version the command carries
// content for, sorted by emoji. GENERIC never gets a button; it is what the
// picker is disambiguating away from.
func (r *Resolver) versionButtons(cmd *models.Command) []discord.Button {
	var buttons []discord.Button
	for _, variant := range cmd.Contents {
		if variant.VersionID == models.GenericVersionID {
			continue
		}
		snapshot, hit, err := r.lookup(cache.NamespaceVersion, variant.VersionID)
		if err != nil || !hit {
			continue
		}
		version, err := cachesync.DecodeVersion(snapshot)
		if err != nil || !version.Enabled {
			continue
		}
		buttons = append(buttons, discord.Button{CustomID: version.ID, Emoji: version.Emoji})
	}
	sort.Slice(buttons, func(i, j int) bool { return buttons[i].Emoji < buttons[j].Emoji })
	return buttons
}

// runPicker sends the generic answer with version buttons attached and blocks
// until the invoker chooses or the session times out.
func (r *Resolver) runPicker(ctx context.Context, msg discord.Incoming, cmd *models.Command,
	out discord.Outgoing, buttons []discord.Button, compose func(models.ContentVariant) discord.Outgoing) {

	out.Buttons = buttons
	pickerMessageID, err := r.messenger.Reply(ctx, msg, out)
	if err != nil {
		r.logger.Error("failed to send version picker", "command", cmd.Name, "error", err)
		return
	}
	r.metrics.CommandResolved()

	session := picker.New(picker.Config{
		Messenger:       r.messenger,
		Logger:          r.logger,
		Metrics:         r.metrics,
		Timeout:         r.cfg.PickerTimeout,
		Origin:          msg,
		PickerMessageID: pickerMessageID,
		Command:         cmd,
		Shown:           out,
		Compose:         compose,
	})
	session.Run(ctx)
}
