package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu    sync.Mutex
	texts []string
	err   error
	gate  chan struct{}
}

func (s *recordingSender) Send(_ context.Context, text string) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return s.err
}

func (s *recordingSender) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func quietLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, DispatcherOptions{Logger: quietLogger()})

	d.Notify("Wallet connected: T123")
	d.Notify("No top-up needed. Balance: 20 TRX")
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, []string{"Wallet connected: T123", "No top-up needed. Balance: 20 TRX"}, sender.sent())
}

func TestDispatcherSwallowsSendFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sender := &recordingSender{err: errors.New("telegram down")}
	d := NewDispatcher(sender, DispatcherOptions{Logger: logger})

	d.Notify("one")
	d.Notify("two")
	require.NoError(t, d.Close(context.Background()))

	assert.Len(t, sender.sent(), 2)
	require.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestDispatcherNeverBlocksCaller(t *testing.T) {
	sender := &recordingSender{gate: make(chan struct{})}
	d := NewDispatcher(sender, DispatcherOptions{Logger: quietLogger(), QueueSize: 1})

	start := time.Now()
	for i := 0; i < 10; i++ {
		d.Notify("msg")
	}
	assert.Less(t, time.Since(start), time.Second)

	close(sender.gate)
	require.NoError(t, d.Close(context.Background()))
	// One message in flight plus one queued; the rest were dropped.
	assert.LessOrEqual(t, len(sender.sent()), 2)
}

func TestDispatcherDropsAfterClose(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, DispatcherOptions{Logger: quietLogger()})
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	d.Notify("late")
	assert.Empty(t, sender.sent())
}

func TestDispatcherCloseHonoursContext(t *testing.T) {
	sender := &recordingSender{gate: make(chan struct{})}
	d := NewDispatcher(sender, DispatcherOptions{Logger: quietLogger()})
	d.Notify("stuck")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
	close(sender.gate)
}

func TestNewTelegramDisabledWithoutCredentials(t *testing.T) {
	assert.Nil(t, NewTelegram(TelegramConfig{BotToken: "token"}))
	assert.Nil(t, NewTelegram(TelegramConfig{ChatID: "42"}))
}

func TestTelegramSend(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{BotToken: "abc:123", ChatID: "42", APIBase: srv.URL})
	require.NotNil(t, tg)
	require.NoError(t, tg.Send(context.Background(), "Top-up sent: 16 TRX to T123\nTx: pending"))

	assert.Equal(t, "/botabc:123/sendMessage", gotPath)
	assert.Equal(t, "42", gotBody["chat_id"])
	assert.Equal(t, "Top-up sent: 16 TRX to T123\nTx: pending", gotBody["text"])
	_, hasParseMode := gotBody["parse_mode"]
	assert.False(t, hasParseMode)
}

func TestTelegramSendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{BotToken: "t", ChatID: "1", APIBase: srv.URL})
	err := tg.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramSendRedactsToken(t *testing.T) {
	tg := NewTelegram(TelegramConfig{BotToken: "secret-token", ChatID: "1", APIBase: "http://127.0.0.1:1"})
	err := tg.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
}
