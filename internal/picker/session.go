// Package picker runs the short-lived disambiguation session that lets a
// command invoker choose between version-specific answers via buttons.
package picker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/wingbits/crewbot/internal/discord"
	"github.com/wingbits/crewbot/internal/observability"
	"github.com/wingbits/crewbot/pkg/models"
)

// DefaultTimeout is how long a picker waits for the invoker's choice.
const DefaultTimeout = 60 * time.Second

// ExpiredNotice is appended to the picker message when no choice arrives in
// time.
const ExpiredNotice = "The choice has expired."

// Config carries everything a session needs beyond the picker message itself.
type Config struct {
	Messenger discord.Messenger
	Logger    *slog.Logger
	Metrics   *observability.Metrics

	// Timeout bounds the wait for a button press (DefaultTimeout when zero).
	Timeout time.Duration

	// Origin is the invoking message; only its author may resolve the
	// session, and the chosen answer replies to it.
	Origin discord.Incoming

	// PickerMessageID identifies the sent message carrying the buttons.
	PickerMessageID string

	// Command supplies the version-specific answers; button custom ids are
	// version ids and select from Command.Contents.
	Command *models.Command

	// Shown is the picker message's content as sent, used to rebuild it on
	// expiry with the buttons stripped.
	Shown discord.Outgoing

	// Compose renders a content variant into a deliverable reply.
	Compose func(models.ContentVariant) discord.Outgoing
}

// Session is a single-use disambiguation exchange. Exactly one of Resolve or
// Expire takes effect; later activations are no-ops.
type Session struct {
	cfg  Config
	done atomic.Bool
}

// New creates a session. The caller is expected to have already sent the
// picker message identified by cfg.PickerMessageID.
func New(cfg Config) *Session {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Session{cfg: cfg}
}

// Run blocks until the invoker presses a button or the timeout elapses, then
// settles the session accordingly. Presses from other users never settle it.
func (s *Session) Run(ctx context.Context) {
	customID, ok := s.cfg.Messenger.AwaitButton(ctx,
		s.cfg.Origin.ChannelID, s.cfg.PickerMessageID, s.cfg.Origin.AuthorID, s.cfg.Timeout)
	if ok {
		s.Resolve(ctx, customID)
		return
	}
	s.Expire(ctx)
}

// Resolve settles the session with the chosen version id: the picker message
// is deleted and the matching answer is sent as a fresh reply to the invoking
// message. Returns false if the session was already settled.
func (s *Session) Resolve(ctx context.Context, versionID string) bool {
	if !s.done.CompareAndSwap(false, true) {
		return false
	}
	s.cfg.Metrics.PickerOutcome("resolved")

	if err := s.cfg.Messenger.Delete(ctx, s.cfg.Origin.ChannelID, s.cfg.PickerMessageID); err != nil {
		s.cfg.Logger.Warn("failed to delete picker message",
			"channel_id", s.cfg.Origin.ChannelID, "message_id", s.cfg.PickerMessageID, "error", err)
	}

	variant, found := s.cfg.Command.ContentFor(versionID)
	if !found {
		// Buttons are built from the command's own contents, so a miss
		// means the command changed mid-session. Nothing sensible to send.
		s.cfg.Logger.Warn("picker choice has no matching content",
			"command", s.cfg.Command.Name, "version_id", versionID)
		return true
	}

	if _, err := s.cfg.Messenger.Reply(ctx, s.cfg.Origin, s.cfg.Compose(variant)); err != nil {
		s.cfg.Logger.Error("failed to send picked version reply",
			"command", s.cfg.Command.Name, "version_id", versionID, "error", err)
	}
	return true
}

// Expire settles the session by editing the picker message in place: buttons
// are removed and the expiry notice is appended. Returns false if the session
// was already settled.
func (s *Session) Expire(ctx context.Context) bool {
	if !s.done.CompareAndSwap(false, true) {
		return false
	}
	s.cfg.Metrics.PickerOutcome("expired")

	expired := s.cfg.Shown
	expired.Buttons = nil
	if expired.IsEmbed {
		if expired.Footer != "" {
			expired.Footer += " - " + ExpiredNotice
		} else {
			expired.Footer = ExpiredNotice
		}
	} else {
		expired.Content += "\n`" + ExpiredNotice + "`"
	}

	if err := s.cfg.Messenger.Edit(ctx, s.cfg.Origin.ChannelID, s.cfg.PickerMessageID, expired); err != nil {
		s.cfg.Logger.Warn("failed to mark picker message expired",
			"channel_id", s.cfg.Origin.ChannelID, "message_id", s.cfg.PickerMessageID, "error", err)
	}
	return true
}

// Settled reports whether the session has reached a terminal state.
func (s *Session) Settled() bool {
	return s.done.Load()
}
