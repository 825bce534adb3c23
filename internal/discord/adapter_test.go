package discord

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

type mockSession struct {
	mu sync.Mutex

	sends   []*discordgo.MessageSend
	sendTo  []string
	edits   []*discordgo.MessageEdit
	deletes [][2]string

	fetchErr  error
	perms     int64
	permsErr  error
	member    *discordgo.Member
	memberErr error
	roles     []*discordgo.Role

	acked []*discordgo.Interaction
}

func (m *mockSession) Open() error  { return nil }
func (m *mockSession) Close() error { return nil }

func (m *mockSession) AddHandler(handler interface{}) func() { return func() {} }

func (m *mockSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, data)
	m.sendTo = append(m.sendTo, channelID)
	return &discordgo.Message{ID: "sent-1", ChannelID: channelID}, nil
}

func (m *mockSession) ChannelMessageEditComplex(edit *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, edit)
	return &discordgo.Message{ID: edit.ID}, nil
}

func (m *mockSession) ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, [2]string{channelID, messageID})
	return nil
}

func (m *mockSession) ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return &discordgo.Message{ID: messageID, ChannelID: channelID}, nil
}

func (m *mockSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, interaction)
	return nil
}

func (m *mockSession) UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error) {
	return m.perms, m.permsErr
}

func (m *mockSession) GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error) {
	return m.member, m.memberErr
}

func (m *mockSession) GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	return m.roles, nil
}

func newTestAdapter(t *testing.T, session *mockSession) *Adapter {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := NewAdapter(Config{Token: "test-token", GuildID: "guild-1", ModLogChannelID: "modlog-1", Logger: logger})
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	a.session = session
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { a.Stop() })
	a.handleReady(nil, &discordgo.Ready{User: &discordgo.User{ID: "bot-1", Username: "crewbot"}})
	return a
}

func TestReply_PrefersReferencedMessage(t *testing.T) {
	session := &mockSession{}
	a := newTestAdapter(t, session)

	to := Incoming{MessageID: "m1", ChannelID: "chan-1", GuildID: "guild-1", ReferencedMessageID: "orig-1"}
	if _, err := a.Reply(context.Background(), to, Outgoing{Content: "hi"}); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got := session.sends[0].Reference.MessageID; got != "orig-1" {
		t.Errorf("reply attached to %q, want the referenced message", got)
	}

	// When the reference cannot be fetched, fall back to the trigger.
	session.fetchErr = errors.New("unknown message")
	if _, err := a.Reply(context.Background(), to, Outgoing{Content: "hi"}); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got := session.sends[1].Reference.MessageID; got != "m1" {
		t.Errorf("fallback reply attached to %q, want the trigger", got)
	}
}

func TestReply_RendersEmbedAndText(t *testing.T) {
	session := &mockSession{}
	a := newTestAdapter(t, session)
	to := Incoming{MessageID: "m1", ChannelID: "chan-1", GuildID: "guild-1"}

	a.Reply(context.Background(), to, Outgoing{
		Title: "T", Content: "body", IsEmbed: true, EmbedColor: 0x00FF00,
		ImageURL: "https://example.com/x.png", Footer: "Executed by a - 1",
	})
	embed := session.sends[0].Embeds[0]
	if embed.Title != "T" || embed.Description != "body" || embed.Color != 0x00FF00 {
		t.Errorf("embed = %+v", embed)
	}
	if embed.Image == nil || embed.Footer == nil {
		t.Error("embed image or footer missing")
	}

	a.Reply(context.Background(), to, Outgoing{Title: "T", Content: "body", Footer: "f"})
	text := session.sends[1].Content
	if text != "**T**\nbody\n\n`f`" {
		t.Errorf("text rendering = %q", text)
	}
}

func TestEdit_AlwaysSetsComponents(t *testing.T) {
	session := &mockSession{}
	a := newTestAdapter(t, session)

	if err := a.Edit(context.Background(), "chan-1", "m1", Outgoing{Content: "done"}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	edit := session.edits[0]
	if edit.Components == nil {
		t.Fatal("edit did not set components; stale buttons would survive")
	}
	if len(*edit.Components) != 0 {
		t.Errorf("edit kept %d component rows, want 0", len(*edit.Components))
	}
	if edit.Content == nil || *edit.Content != "done" {
		t.Errorf("edit content = %v", edit.Content)
	}
}

func TestAwaitButton_PressAndFilters(t *testing.T) {
	session := &mockSession{}
	a := newTestAdapter(t, session)

	press := func(messageID, userID, customID string) {
		a.handleInteractionCreate(nil, &discordgo.InteractionCreate{
			Interaction: &discordgo.Interaction{
				Type:    discordgo.InteractionMessageComponent,
				Message: &discordgo.Message{ID: messageID},
				Member:  &discordgo.Member{User: &discordgo.User{ID: userID}},
				Data:    discordgo.MessageComponentInteractionData{CustomID: customID},
			},
		})
	}

	done := make(chan struct{})
	var customID string
	var ok bool
	go func() {
		customID, ok = a.AwaitButton(context.Background(), "chan-1", "picker-1", "user-1", time.Second)
		close(done)
	}()

	// The waiter registers asynchronously; poll until it exists.
	for i := 0; i < 100; i++ {
		a.mu.RLock()
		registered := a.waiters["picker-1"] != nil
		a.mu.RUnlock()
		if registered {
			break
		}
		time.Sleep(time.Millisecond)
	}

	press("picker-1", "intruder", "v9") // ignored: wrong user
	press("other-msg", "user-1", "v9")  // ignored: untracked message
	press("picker-1", "user-1", "v1")

	<-done
	if !ok || customID != "v1" {
		t.Fatalf("AwaitButton = (%q, %v), want invoker's press", customID, ok)
	}
	if len(session.acked) != 1 {
		t.Errorf("%d presses acknowledged, want only the invoker's", len(session.acked))
	}
}

func TestAwaitButton_Timeout(t *testing.T) {
	session := &mockSession{}
	a := newTestAdapter(t, session)

	customID, ok := a.AwaitButton(context.Background(), "chan-1", "picker-1", "user-1", 10*time.Millisecond)
	if ok || customID != "" {
		t.Errorf("AwaitButton = (%q, %v), want timeout", customID, ok)
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.waiters) != 0 {
		t.Error("waiter leaked after timeout")
	}
}

func TestBotCanReply(t *testing.T) {
	session := &mockSession{
		perms: int64(discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory),
	}
	a := newTestAdapter(t, session)

	if !a.BotCanReply("chan-1") {
		t.Error("full permissions reported as cannot reply")
	}

	session.perms = int64(discordgo.PermissionSendMessages)
	if a.BotCanReply("chan-1") {
		t.Error("missing read-history reported as can reply")
	}

	session.permsErr = errors.New("api down")
	if a.BotCanReply("chan-1") {
		t.Error("permission lookup error reported as can reply")
	}
}

func TestRoleName_FallsBackToID(t *testing.T) {
	session := &mockSession{roles: []*discordgo.Role{{ID: "r1", Name: "Moderators"}}}
	a := newTestAdapter(t, session)

	if got := a.RoleName("guild-1", "r1"); got != "Moderators" {
		t.Errorf("RoleName = %q", got)
	}
	if got := a.RoleName("guild-1", "ghost"); got != "ghost" {
		t.Errorf("RoleName fallback = %q", got)
	}
}

func TestHandleMessageCreate_Filters(t *testing.T) {
	session := &mockSession{}
	a := newTestAdapter(t, session)

	send := func(m *discordgo.MessageCreate) {
		a.handleMessageCreate(nil, m)
	}

	send(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "m1", ChannelID: "chan-1", GuildID: "guild-1", Content: ".metar",
		Author:           &discordgo.User{ID: "user-1", Username: "pilot"},
		MessageReference: &discordgo.MessageReference{MessageID: "orig-1"},
	}})
	send(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "m2", ChannelID: "chan-1", GuildID: "guild-1", Content: ".metar",
		Author: &discordgo.User{ID: "bot-2", Username: "otherbot", Bot: true},
	}})
	send(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "m3", ChannelID: "chan-1", GuildID: "other-guild", Content: ".metar",
		Author: &discordgo.User{ID: "user-1", Username: "pilot"},
	}})

	select {
	case msg := <-a.Messages():
		if msg.MessageID != "m1" || msg.ReferencedMessageID != "orig-1" {
			t.Errorf("delivered message = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}

	select {
	case msg := <-a.Messages():
		t.Errorf("filtered message delivered: %+v", msg)
	default:
	}
}

func TestHandleMessageCreate_BeforeStartDelivers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := NewAdapter(Config{Token: "test-token", GuildID: "guild-1", Logger: logger})
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}

	// Gateway events can race the tail of Start; the handler must work
	// without any connection state.
	a.handleMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "m1", ChannelID: "chan-1", GuildID: "guild-1", Content: ".metar",
		Author: &discordgo.User{ID: "user-1", Username: "pilot"},
	}})

	select {
	case msg := <-a.Messages():
		if msg.MessageID != "m1" {
			t.Errorf("delivered message = %+v", msg)
		}
	default:
		t.Fatal("no message delivered")
	}
}

func TestPostModLog(t *testing.T) {
	session := &mockSession{}
	a := newTestAdapter(t, session)

	if err := a.PostModLog(context.Background(), "Command created", [][2]string{{"Subject", "metar"}}); err != nil {
		t.Fatalf("PostModLog: %v", err)
	}
	if session.sendTo[0] != "modlog-1" {
		t.Errorf("mod log posted to %q", session.sendTo[0])
	}
	embed := session.sends[0].Embeds[0]
	if embed.Title != "Command created" || len(embed.Fields) != 1 {
		t.Errorf("mod log embed = %+v", embed)
	}
}
