package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// discordSession is the slice of discordgo.Session the adapter uses, split
// out so tests can substitute a mock.
type discordSession interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
}

// Config holds configuration for the Discord adapter.
type Config struct {
	// Token is the bot token (required).
	Token string

	// GuildID restricts processing to one guild when set.
	GuildID string

	// ModLogChannelID receives administrative audit embeds when set.
	ModLogChannelID string

	// Logger is an optional slog.Logger instance.
	Logger *slog.Logger
}

// Validate checks the configuration and applies defaults.
func (c *Config) Validate() error {
	if c.Token == "" {
		return errors.New("discord: token is required")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

type buttonWaiter struct {
	userID string
	press  chan string
}

// Adapter implements Messenger against the Discord gateway.
type Adapter struct {
	config  Config
	session discordSession
	logger  *slog.Logger

	messages chan Incoming

	mu        sync.RWMutex
	connected bool
	botUserID string
	waiters   map[string]*buttonWaiter // picker message id -> waiter
}

// NewAdapter creates a Discord adapter with the given configuration.
func NewAdapter(config Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{
		config:   config,
		logger:   config.Logger.With("component", "discord"),
		messages: make(chan Incoming, 100),
		waiters:  make(map[string]*buttonWaiter),
	}, nil
}

// Start opens the gateway connection and begins delivering messages.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connected {
		return errors.New("discord: adapter already started")
	}

	if a.session == nil {
		dg, err := discordgo.New("Bot " + a.config.Token)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuilds |
			discordgo.IntentsGuildMembers |
			discordgo.IntentsGuildMessages |
			discordgo.IntentMessageContent
		a.session = dg
	}

	a.session.AddHandler(a.handleReady)
	a.session.AddHandler(a.handleMessageCreate)
	a.session.AddHandler(a.handleInteractionCreate)

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}

	a.connected = true
	a.logger.Info("discord adapter started")
	return nil
}

// Stop closes the gateway connection and the message channel.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil
	}
	err := a.session.Close()
	a.connected = false
	close(a.messages)
	if err != nil {
		a.logger.Error("failed to close discord session", "error", err)
		return fmt.Errorf("discord: close session: %w", err)
	}
	a.logger.Info("discord adapter stopped")
	return nil
}

// Messages returns the channel of inbound guild messages. Closed by Stop.
func (a *Adapter) Messages() <-chan Incoming {
	return a.messages
}

func (a *Adapter) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	a.mu.Lock()
	a.botUserID = r.User.ID
	a.mu.Unlock()
	a.logger.Info("discord connection ready", "user", r.User.Username, "guilds", len(r.Guilds))
}

func (a *Adapter) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	if a.config.GuildID != "" && m.GuildID != a.config.GuildID {
		return
	}

	incoming := Incoming{
		MessageID: m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		AuthorID:  m.Author.ID,
		AuthorTag: m.Author.String(),
		Content:   m.Content,
	}
	if m.MessageReference != nil {
		incoming.ReferencedMessageID = m.MessageReference.MessageID
	}

	select {
	case a.messages <- incoming:
	default:
		a.logger.Warn("message channel full, dropping message", "channel_id", m.ChannelID)
	}
}

func (a *Adapter) handleInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent || i.Message == nil {
		return
	}

	var userID string
	switch {
	case i.Member != nil && i.Member.User != nil:
		userID = i.Member.User.ID
	case i.User != nil:
		userID = i.User.ID
	default:
		return
	}

	a.mu.RLock()
	waiter := a.waiters[i.Message.ID]
	a.mu.RUnlock()
	if waiter == nil || waiter.userID != userID {
		// Not a tracked picker, or a press by someone other than the
		// invoker; both are ignored.
		return
	}

	if err := a.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		a.logger.Error("failed to acknowledge button press", "message_id", i.Message.ID, "error", err)
	}

	select {
	case waiter.press <- i.MessageComponentData().CustomID:
	default:
	}
}

// Reply sends out in response to to, attaching to the referenced message
// when the trigger was itself a reply and the reference is still fetchable.
func (a *Adapter) Reply(ctx context.Context, to Incoming, out Outgoing) (string, error) {
	replyTo := to.MessageID
	if to.ReferencedMessageID != "" {
		if _, err := a.session.ChannelMessage(to.ChannelID, to.ReferencedMessageID); err == nil {
			replyTo = to.ReferencedMessageID
		} else {
			a.logger.Debug("failed to fetch referenced message, replying to trigger",
				"message_id", to.MessageID, "error", err)
		}
	}

	send := buildMessageSend(out)
	send.Reference = &discordgo.MessageReference{
		MessageID: replyTo,
		ChannelID: to.ChannelID,
		GuildID:   to.GuildID,
	}

	sent, err := a.session.ChannelMessageSendComplex(to.ChannelID, send)
	if err != nil {
		return "", fmt.Errorf("discord: send reply: %w", err)
	}
	return sent.ID, nil
}

// Edit replaces the message content in place.
func (a *Adapter) Edit(ctx context.Context, channelID, messageID string, out Outgoing) error {
	edit := &discordgo.MessageEdit{
		Channel: channelID,
		ID:      messageID,
	}
	components := buildComponents(out.Buttons)
	edit.Components = &components

	if out.IsEmbed {
		embeds := []*discordgo.MessageEmbed{buildEmbed(out)}
		edit.Embeds = &embeds
		empty := ""
		edit.Content = &empty
	} else {
		content := buildText(out)
		edit.Content = &content
	}

	if _, err := a.session.ChannelMessageEditComplex(edit); err != nil {
		return fmt.Errorf("discord: edit message: %w", err)
	}
	return nil
}

// Delete removes a message.
func (a *Adapter) Delete(ctx context.Context, channelID, messageID string) error {
	if err := a.session.ChannelMessageDelete(channelID, messageID); err != nil {
		return fmt.Errorf("discord: delete message: %w", err)
	}
	return nil
}

// AwaitButton waits for the given user to press a button on the given
// message, up to timeout.
func (a *Adapter) AwaitButton(ctx context.Context, channelID, messageID, userID string, timeout time.Duration) (string, bool) {
	waiter := &buttonWaiter{userID: userID, press: make(chan string, 1)}
	a.mu.Lock()
	a.waiters[messageID] = waiter
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.waiters, messageID)
		a.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case customID := <-waiter.press:
		return customID, true
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// BotCanReply reports whether the bot can send messages and read history in
// the channel. Errors are treated as "cannot reply": the caller drops
// silently rather than attempting a send that will fail.
func (a *Adapter) BotCanReply(channelID string) bool {
	a.mu.RLock()
	botUserID := a.botUserID
	a.mu.RUnlock()
	if botUserID == "" {
		return false
	}

	perms, err := a.session.UserChannelPermissions(botUserID, channelID)
	if err != nil {
		a.logger.Debug("failed to resolve bot channel permissions", "channel_id", channelID, "error", err)
		return false
	}
	required := int64(discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory)
	return perms&required == required
}

// MemberRoles returns the role ids held by a guild member.
func (a *Adapter) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	member, err := a.session.GuildMember(guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("discord: fetch member: %w", err)
	}
	return member.Roles, nil
}

// RoleName resolves a role id to its name, falling back to the id.
func (a *Adapter) RoleName(guildID, roleID string) string {
	roles, err := a.session.GuildRoles(guildID)
	if err != nil {
		a.logger.Debug("failed to list guild roles", "guild_id", guildID, "error", err)
		return roleID
	}
	for _, role := range roles {
		if role.ID == roleID {
			return role.Name
		}
	}
	return roleID
}

// ChannelMention renders a channel id as a mention.
func (a *Adapter) ChannelMention(channelID string) string {
	return "<#" + channelID + ">"
}

// PostModLog sends an audit embed to the configured moderation-log channel.
func (a *Adapter) PostModLog(ctx context.Context, title string, fields [][2]string) error {
	if a.config.ModLogChannelID == "" {
		return errors.New("discord: no mod-log channel configured")
	}
	embed := &discordgo.MessageEmbed{Title: title}
	for _, field := range fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   field[0],
			Value:  field[1],
			Inline: true,
		})
	}
	_, err := a.session.ChannelMessageSendComplex(a.config.ModLogChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
	})
	if err != nil {
		return fmt.Errorf("discord: post mod log: %w", err)
	}
	return nil
}

func buildMessageSend(out Outgoing) *discordgo.MessageSend {
	send := &discordgo.MessageSend{
		Components: buildComponents(out.Buttons),
	}
	if out.IsEmbed {
		send.Embeds = []*discordgo.MessageEmbed{buildEmbed(out)}
	} else {
		send.Content = buildText(out)
	}
	return send
}

func buildEmbed(out Outgoing) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       out.Title,
		Description: out.Content,
		Color:       out.EmbedColor,
	}
	if out.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: out.ImageURL}
	}
	if out.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: out.Footer}
	}
	return embed
}

func buildText(out Outgoing) string {
	var text string
	if out.Title != "" {
		text = "**" + out.Title + "**\n"
	}
	text += out.Content
	if out.ImageURL != "" {
		text += "\n" + out.ImageURL
	}
	if out.Footer != "" {
		text += "\n\n`" + out.Footer + "`"
	}
	return text
}

func buildComponents(buttons []Button) []discordgo.MessageComponent {
	if len(buttons) == 0 {
		return []discordgo.MessageComponent{}
	}
	row := discordgo.ActionsRow{}
	for _, button := range buttons {
		row.Components = append(row.Components, discordgo.Button{
			Style:    discordgo.PrimaryButton,
			CustomID: button.CustomID,
			Emoji:    &discordgo.ComponentEmoji{Name: button.Emoji},
		})
	}
	return []discordgo.MessageComponent{row}
}
