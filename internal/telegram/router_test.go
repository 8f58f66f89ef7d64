package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type apiCall struct {
	method string
	form   url.Values
}

type requestLog struct {
	mu    sync.Mutex
	calls []apiCall
}

func (l *requestLog) add(method string, form url.Values) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, apiCall{method: method, form: form})
}

func (l *requestLog) find(method string) (url.Values, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.calls {
		if c.method == method {
			return c.form, true
		}
	}
	return nil, false
}

// newTestBot returns a bot wired to a local server that accepts every call
// and records it.
func newTestBot(t *testing.T) (*tgbotapi.BotAPI, *requestLog) {
	t.Helper()
	calls := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.NoError(t, req.ParseForm())
		calls.add(path.Base(req.URL.Path), req.Form)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	t.Cleanup(srv.Close)

	bot := &tgbotapi.BotAPI{Token: "test-token", Client: srv.Client(), Buffer: 100}
	bot.SetAPIEndpoint(srv.URL + "/bot%s/%s")
	return bot, calls
}

func TestHandleUpdate_StaleCallbackMessage(t *testing.T) {
	bot, calls := newTestBot(t)
	r := NewRouter(bot, zap.NewNop(), nil, nil, []int64{42})

	// Telegram omits the message on callbacks from old (>48h) due-list buttons.
	upd := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb1",
		From: &tgbotapi.User{ID: 42},
		Data: "paid:1:1",
	}}
	require.NotPanics(t, func() { r.HandleUpdate(context.Background(), upd) })

	form, ok := calls.find("answerCallbackQuery")
	require.True(t, ok, "stale callback must still be answered")
	assert.Contains(t, form.Get("text"), "too old")
}

func TestHandleUpdate_UnauthorizedCallbackRefused(t *testing.T) {
	bot, calls := newTestBot(t)
	r := NewRouter(bot, zap.NewNop(), nil, nil, []int64{42})

	upd := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb2",
		From: &tgbotapi.User{ID: 7},
		Data: "paid:1:1",
	}}
	require.NotPanics(t, func() { r.HandleUpdate(context.Background(), upd) })

	form, ok := calls.find("answerCallbackQuery")
	require.True(t, ok)
	assert.Equal(t, "Not authorized", form.Get("text"))
}
