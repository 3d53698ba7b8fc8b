package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "regdesk/internal/errors"
	"regdesk/internal/events"
	"regdesk/internal/registration"
)

const (
	adminUser    int64 = 1001
	strangerUser int64 = 2002
	adminAccount       = "admin-account"
)

// =============================================================================
// Helpers
// =============================================================================

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	err      error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, f.err
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, f.err
}

func (f *fakeSender) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

type fakeRegistrar struct {
	mu        sync.Mutex
	pending   []registration.Request
	err       error
	processed []string
}

func (f *fakeRegistrar) Pending() ([]registration.Request, error) {
	return f.pending, f.err
}

func (f *fakeRegistrar) Approve(id, adminID string) (*registration.Request, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, "approve:"+id+":"+adminID)
	if f.err != nil {
		return nil, "", f.err
	}
	return &registration.Request{ID: id, Username: "alice", Status: registration.StatusApproved}, "acc-1", nil
}

func (f *fakeRegistrar) Reject(id, adminID string) (*registration.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, "reject:"+id+":"+adminID)
	if f.err != nil {
		return nil, f.err
	}
	return &registration.Request{ID: id, Username: "alice", Status: registration.StatusRejected}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(reg *fakeRegistrar) (*Handler, *fakeSender) {
	bot := &fakeSender{}
	logger := discardLogger()
	return NewHandler(bot, reg, NewAdminGate(adminUser, logger), adminAccount, logger), bot
}

func command(userID int64, text string) tgbotapi.Update {
	name := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: userID},
		Chat:     &tgbotapi.Chat{ID: userID, Type: "private"},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func callback(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{
			MessageID: 42,
			Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		},
		Data: data,
	}}
}

func keyboardData(t *testing.T, markup any) []string {
	t.Helper()

	kb, ok := markup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok, "expected inline keyboard, got %T", markup)

	var out []string
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			require.NotNil(t, btn.CallbackData)
			out = append(out, *btn.CallbackData)
		}
	}
	return out
}

// =============================================================================
// Access
// =============================================================================

func TestAdminGate_CheckAccess(t *testing.T) {
	gate := NewAdminGate(adminUser, discardLogger())

	_, _, allowed := gate.CheckAccess(command(adminUser, "/start"))
	assert.True(t, allowed)

	_, _, allowed = gate.CheckAccess(command(strangerUser, "/start"))
	assert.False(t, allowed)

	group := command(adminUser, "/start")
	group.Message.Chat.Type = "group"
	_, _, allowed = gate.CheckAccess(group)
	assert.False(t, allowed, "group chats are refused even for the admin")

	_, _, allowed = gate.CheckAccess(callback(adminUser, "approve:r1"))
	assert.True(t, allowed)

	_, _, allowed = gate.CheckAccess(tgbotapi.Update{})
	assert.False(t, allowed)

	assert.False(t, NewAdminGate(0, discardLogger()).IsAdmin(0))
}

func TestHandler_RefusesStranger(t *testing.T) {
	reg := &fakeRegistrar{}
	h, bot := newTestHandler(reg)

	h.HandleUpdate(context.Background(), command(strangerUser, "/pending"))

	msgs := bot.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, apperrors.ErrUnauthorized.UserMsg, msgs[0].Text)

	h.HandleUpdate(context.Background(), callback(strangerUser, "approve:r1"))
	assert.Empty(t, reg.processed)
	require.Len(t, bot.requests, 1)
	cb, ok := bot.requests[0].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrUnauthorized.UserMsg, cb.Text)
}

// =============================================================================
// Commands
// =============================================================================

func TestHandler_StartAndHelp(t *testing.T) {
	h, bot := newTestHandler(&fakeRegistrar{})

	h.HandleUpdate(context.Background(), command(adminUser, "/start"))
	h.HandleUpdate(context.Background(), command(adminUser, "/help"))
	h.HandleUpdate(context.Background(), command(adminUser, "/bogus"))

	msgs := bot.messages()
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[0].Text, "/pending")
	assert.Contains(t, msgs[1].Text, "Approve")
	assert.Contains(t, msgs[2].Text, "Unknown command")
}

func TestHandler_PendingListsRequests(t *testing.T) {
	reg := &fakeRegistrar{pending: []registration.Request{
		{ID: "r1", Username: "alice", Email: "a@x.com", Password: "password1"},
		{ID: "r2", Username: "bob", Email: "b@x.com", Password: "password2"},
	}}
	h, bot := newTestHandler(reg)

	h.HandleUpdate(context.Background(), command(adminUser, "/pending"))

	msgs := bot.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Text, "alice")
	assert.NotContains(t, msgs[0].Text, "password1")
	assert.Equal(t, adminUser, msgs[0].ChatID)
	assert.Equal(t, []string{"approve:r1", "reject:r1"}, keyboardData(t, msgs[0].ReplyMarkup))
	assert.Equal(t, []string{"approve:r2", "reject:r2"}, keyboardData(t, msgs[1].ReplyMarkup))
}

func TestHandler_PendingEmpty(t *testing.T) {
	h, bot := newTestHandler(&fakeRegistrar{})

	h.HandleUpdate(context.Background(), command(adminUser, "/pending"))

	msgs := bot.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "No pending")
}

func TestHandler_PendingTruncates(t *testing.T) {
	reg := &fakeRegistrar{}
	for i := 0; i < maxListed+5; i++ {
		reg.pending = append(reg.pending, registration.Request{ID: "r", Username: "u"})
	}
	h, bot := newTestHandler(reg)

	h.HandleUpdate(context.Background(), command(adminUser, "/pending"))

	msgs := bot.messages()
	require.Len(t, msgs, maxListed+1)
	assert.Contains(t, msgs[maxListed].Text, "5 more")
}

func TestHandler_PendingStorageFailure(t *testing.T) {
	reg := &fakeRegistrar{err: &registration.StorageError{Op: "load", Err: errors.New("corrupt")}}
	h, bot := newTestHandler(reg)

	h.HandleUpdate(context.Background(), command(adminUser, "/pending"))

	msgs := bot.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "temporarily unavailable")
}

// =============================================================================
// Callbacks
// =============================================================================

func TestHandler_CallbackApprove(t *testing.T) {
	reg := &fakeRegistrar{}
	h, bot := newTestHandler(reg)

	h.HandleUpdate(context.Background(), callback(adminUser, "approve:r1"))

	assert.Equal(t, []string{"approve:r1:" + adminAccount}, reg.processed)
	require.Len(t, bot.requests, 2)

	cb, ok := bot.requests[0].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.Equal(t, "cb-1", cb.CallbackQueryID)
	assert.Contains(t, cb.Text, "Approved alice")

	edit, ok := bot.requests[1].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Equal(t, 42, edit.MessageID)
	assert.Contains(t, edit.Text, "acc-1")
}

func TestHandler_CallbackReject(t *testing.T) {
	reg := &fakeRegistrar{}
	h, bot := newTestHandler(reg)

	h.HandleUpdate(context.Background(), callback(adminUser, "reject:r1"))

	assert.Equal(t, []string{"reject:r1:" + adminAccount}, reg.processed)
	require.Len(t, bot.requests, 2)
	cb := bot.requests[0].(tgbotapi.CallbackConfig)
	assert.Equal(t, "Rejected alice.", cb.Text)
}

func TestHandler_CallbackAlreadyProcessed(t *testing.T) {
	reg := &fakeRegistrar{err: registration.ErrNotFoundOrProcessed}
	h, bot := newTestHandler(reg)

	h.HandleUpdate(context.Background(), callback(adminUser, "approve:r1"))

	require.Len(t, bot.requests, 2)
	cb := bot.requests[0].(tgbotapi.CallbackConfig)
	assert.Equal(t, apperrors.ErrRequestNotFound.UserMsg, cb.Text)
}

func TestHandler_CallbackMalformed(t *testing.T) {
	for _, data := range []string{"approve", "approve:", "delete:r1"} {
		reg := &fakeRegistrar{}
		h, bot := newTestHandler(reg)

		h.HandleUpdate(context.Background(), callback(adminUser, data))

		assert.Empty(t, reg.processed, data)
		require.Len(t, bot.requests, 1, data)
		cb := bot.requests[0].(tgbotapi.CallbackConfig)
		assert.Equal(t, "Unknown action.", cb.Text)
	}
}

// =============================================================================
// Notifier
// =============================================================================

func TestNotifier_DeliversCreatedWithButtons(t *testing.T) {
	bot := &fakeSender{}
	n := NewNotifier(bot, adminUser, adminAccount, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(done)
	}()

	n.Publish(events.Event{Type: events.TypeCreated, RequestID: "r1", Username: "alice", Email: "a@x.com"})

	require.Eventually(t, func() bool { return len(bot.messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	msg := bot.messages()[0]
	assert.Equal(t, adminUser, msg.ChatID)
	assert.Contains(t, msg.Text, "alice")
	assert.Equal(t, []string{"approve:r1", "reject:r1"}, keyboardData(t, msg.ReplyMarkup))
}

func TestNotifier_ProcessedEvents(t *testing.T) {
	bot := &fakeSender{}
	n := NewNotifier(bot, adminUser, adminAccount, discardLogger())

	n.deliver(events.Event{Type: events.TypeApproved, RequestID: "r1", Username: "alice", By: adminAccount})
	assert.Empty(t, bot.messages(), "own actions are not echoed")

	n.deliver(events.Event{Type: events.TypeRejected, RequestID: "r2", Username: "bob", By: "other-admin"})
	msgs := bot.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Request for bob was rejected by other-admin.", msgs[0].Text)
}

func TestNotifier_PublishNeverBlocks(t *testing.T) {
	n := NewNotifier(&fakeSender{}, adminUser, adminAccount, discardLogger())

	done := make(chan struct{})
	go func() {
		for i := 0; i < notifyBuffer*2; i++ {
			n.Publish(events.Event{Type: events.TypeCreated, RequestID: "r"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with no consumer")
	}
	assert.Len(t, n.queue, notifyBuffer)
}
