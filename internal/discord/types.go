// Package discord is the messaging collaborator boundary: the narrow surface
// the resolver, picker, and admin layers need from the chat platform, plus a
// discordgo-backed implementation.
package discord

import (
	"context"
	"time"
)

// Incoming is a received guild message, reduced to the fields resolution
// needs.
type Incoming struct {
	MessageID string
	ChannelID string
	GuildID   string
	AuthorID  string

	// AuthorTag is the author's display handle, used for reply attribution.
	AuthorTag string

	Content string

	// ReferencedMessageID is set when the message is itself a reply.
	ReferencedMessageID string
}

// Button is one interactive choice attached to a reply.
type Button struct {
	// CustomID is returned verbatim when the button is pressed.
	CustomID string

	// Emoji is the button label.
	Emoji string
}

// Outgoing is a reply to be delivered, either as plain text or as an embed.
type Outgoing struct {
	Title      string
	Content    string
	IsEmbed    bool
	EmbedColor int
	ImageURL   string

	// Footer carries the invoker attribution; appended as a trailing code
	// line for plain-text replies, or set as the embed footer.
	Footer string

	Buttons []Button
}

// Messenger is the messaging surface consumed by the resolution engine. The
// production implementation is *Adapter; tests substitute fakes.
type Messenger interface {
	// Reply sends the outgoing content in response to the incoming message.
	// If the incoming message is itself a reply, the new content is attached
	// to the referenced message instead, best-effort: when the reference
	// cannot be fetched, it falls back to replying to the incoming message.
	Reply(ctx context.Context, to Incoming, out Outgoing) (messageID string, err error)

	// Edit replaces a previously sent message's content, including removal
	// of its buttons when out carries none.
	Edit(ctx context.Context, channelID, messageID string, out Outgoing) error

	// Delete removes a message.
	Delete(ctx context.Context, channelID, messageID string) error

	// AwaitButton blocks until the given user presses a button on the given
	// message, the timeout elapses, or ctx is done. ok is true only for a
	// press; presses by other users are ignored and keep the wait alive.
	AwaitButton(ctx context.Context, channelID, messageID, userID string, timeout time.Duration) (customID string, ok bool)

	// BotCanReply reports whether the bot holds send-message and
	// read-history permissions in the channel.
	BotCanReply(channelID string) bool

	// MemberRoles returns the role ids held by a guild member.
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)

	// RoleName resolves a role id to its display name, falling back to the
	// id itself.
	RoleName(guildID, roleID string) string

	// ChannelMention renders a channel reference for inclusion in a message.
	ChannelMention(channelID string) string
}
