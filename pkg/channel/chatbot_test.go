package channel_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/channel"
)

type sentMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

func newBot(t *testing.T, h http.HandlerFunc, opts ...channel.ChatBotOption) *channel.ChatBotAdapter {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]channel.ChatBotOption{channel.WithAPIURL(srv.URL), channel.WithRateLimit(0)}, opts...)
	a, err := channel.NewChatBotAdapter("123:ABC", opts...)
	require.NoError(t, err)
	return a
}

func TestChatBotAdapter_Send(t *testing.T) {
	t.Parallel()

	var got sentMessage
	var path string
	a := newBot(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":42}}`))
	})

	out, err := a.Send(context.Background(), channel.Message{
		Recipient: "-1001234567890",
		Title:     "Deploy <prod>",
		Body:      "finished in <i>3m</i>",
	})
	require.NoError(t, err)
	assert.Equal(t, "42", out.ProviderID)
	assert.Equal(t, http.StatusOK, out.StatusCode)

	assert.Equal(t, "/bot123:ABC/sendMessage", path)
	assert.Equal(t, "-1001234567890", got.ChatID)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.True(t, got.DisableWebPagePreview)
	assert.Equal(t, "<b>Deploy &lt;prod&gt;</b>\n\nfinished in <i>3m</i>", got.Text)
}

func TestChatBotAdapter_DefaultChatAndMetadata(t *testing.T) {
	t.Parallel()

	var got sentMessage
	a := newBot(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}, channel.WithDefaultChatID("@ops_alerts"))

	require.NoError(t, a.ValidateRecipient(""))
	_, err := a.Send(context.Background(), channel.Message{
		Title:    "Plain",
		Body:     "text",
		Metadata: map[string]string{"parse_mode": "", "disable_web_page_preview": "false"},
	})
	require.NoError(t, err)
	assert.Equal(t, "@ops_alerts", got.ChatID)
	assert.Empty(t, got.ParseMode)
	assert.False(t, got.DisableWebPagePreview)
	assert.Equal(t, "Plain\n\ntext", got.Text)
}

func TestChatBotAdapter_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		permanent  bool
		retryAfter time.Duration
	}{
		{"chat not found", 400, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`, true, 0},
		{"bot blocked", 403, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`, true, 0},
		{"bad token", 401, `{"ok":false,"error_code":401,"description":"Unauthorized"}`, true, 0},
		{"flood control", 429, `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 7","parameters":{"retry_after":7}}`, false, 7 * time.Second},
		{"bad gateway", 502, `<html>bad gateway</html>`, false, 0},
		{"ok false on 200", 200, `{"ok":false}`, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := newBot(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := a.Send(context.Background(), channel.Message{Recipient: "12345", Body: "hi"})
			require.Error(t, err)
			assert.Equal(t, tt.permanent, channel.IsPermanent(err))
			assert.Equal(t, !tt.permanent, channel.IsTransient(err))
			assert.Equal(t, tt.retryAfter, channel.RetryAfter(err))
		})
	}
}

func TestChatBotAdapter_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	a, err := channel.NewChatBotAdapter("123:SECRET", channel.WithAPIURL(srv.URL))
	require.NoError(t, err)

	_, err = a.Send(context.Background(), channel.Message{Recipient: "1", Body: "hi"})
	require.Error(t, err)
	assert.True(t, channel.IsTransient(err))
	assert.NotContains(t, err.Error(), "SECRET")
}

func TestChatBotAdapter_Validation(t *testing.T) {
	t.Parallel()

	_, err := channel.NewChatBotAdapter("")
	assert.ErrorIs(t, err, channel.ErrInvalidConfig)
	_, err = channel.NewChatBotAdapter("t", channel.WithDefaultChatID("not a chat"))
	assert.ErrorIs(t, err, channel.ErrInvalidConfig)

	a, err := channel.NewChatBotAdapter("t")
	require.NoError(t, err)
	assert.Equal(t, channel.KindChatBot, a.Kind())

	for _, ok := range []string{"@channel", "123456", "-1001234567890"} {
		assert.NoError(t, a.ValidateRecipient(ok), ok)
	}
	for _, bad := range []string{"", "@", "user@example.com", "12a"} {
		assert.ErrorIs(t, a.ValidateRecipient(bad), channel.ErrInvalidRecipient, bad)
	}

	_, err = a.Send(context.Background(), channel.Message{Recipient: "1", Body: strings.Repeat("x", 5000)})
	assert.True(t, channel.IsPermanent(err))
}

func TestChatBotAdapter_TextLimitCountsVisibleText(t *testing.T) {
	t.Parallel()

	calls := 0
	a := newBot(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	})
	ctx := context.Background()

	// 8000 bytes of markup, 1000 visible characters
	_, err := a.Send(ctx, channel.Message{Recipient: "1", Body: strings.Repeat("<b>x</b>", 1000)})
	require.NoError(t, err)
	_, err = a.Send(ctx, channel.Message{Recipient: "1", Body: strings.Repeat("&amp;", 1000)})
	require.NoError(t, err)
	_, err = a.Send(ctx, channel.Message{
		Recipient: "1",
		Body:      strings.Repeat("*x*", 2000),
		Metadata:  map[string]string{"parse_mode": "MarkdownV2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	_, err = a.Send(ctx, channel.Message{Recipient: "1", Body: strings.Repeat("<i>x</i>", 4097)})
	assert.True(t, channel.IsPermanent(err))
	_, err = a.Send(ctx, channel.Message{
		Recipient: "1",
		Body:      strings.Repeat("x", 4097),
		Metadata:  map[string]string{"parse_mode": ""},
	})
	assert.True(t, channel.IsPermanent(err))
	assert.Equal(t, 3, calls)
}

func TestChatBotAdapter_RateLimitHonorsContext(t *testing.T) {
	t.Parallel()

	calls := 0
	a := newBot(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}, channel.WithRateLimit(0.5))

	ctx := context.Background()
	_, err := a.Send(ctx, channel.Message{Recipient: "1", Body: "first"})
	require.NoError(t, err)

	// the next token is two seconds away
	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = a.Send(ctx, channel.Message{Recipient: "1", Body: "second"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestChatBotConfig(t *testing.T) {
	t.Parallel()
	cfg := channel.ChatBotConfig{Token: "t", ChatID: "@x", APIURL: "https://api.example.org", RateLimit: 10, ParseMode: "HTML"}
	assert.True(t, cfg.Enabled())
	a, err := channel.NewChatBotAdapter(cfg.Token, cfg.Options()...)
	require.NoError(t, err)
	assert.NoError(t, a.ValidateRecipient(""))
	assert.False(t, channel.ChatBotConfig{}.Enabled())
}
