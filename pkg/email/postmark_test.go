package email_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/email"
)

func newPostmark(t *testing.T, h http.HandlerFunc) email.EmailSender {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	s, err := email.NewPostmarkSender(email.Config{
		PostmarkServerToken: "server-token",
		PostmarkBaseURL:     srv.URL,
		SenderEmail:         "noreply@example.com",
		SupportEmail:        "support@example.com",
	})
	require.NoError(t, err)
	return s
}

var params = email.SendEmailParams{
	SendTo:   "user@example.com",
	Subject:  "Hello",
	BodyHTML: "<p>Hello</p>",
	Tag:      "greeting",
}

func TestPostmarkSender_Success(t *testing.T) {
	t.Parallel()

	var got map[string]any
	s := newPostmark(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "server-token", r.Header.Get("X-Postmark-Server-Token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"To":"user@example.com","MessageID":"abc","ErrorCode":0,"Message":"OK"}`))
	})

	require.NoError(t, s.SendEmail(context.Background(), params))
	assert.Equal(t, "user@example.com", got["To"])
	assert.Equal(t, "noreply@example.com", got["From"])
	assert.Equal(t, "support@example.com", got["ReplyTo"])
	assert.Equal(t, "Hello", got["Subject"])
	assert.Equal(t, "greeting", got["Tag"])

	ts, ok := s.(email.TrackedSender)
	require.True(t, ok)
	id, err := ts.SendTrackedEmail(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func TestPostmarkSender_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		body      string
		temporary bool
	}{
		{"inactive recipient", http.StatusUnprocessableEntity, `{"ErrorCode":406,"Message":"Inactive recipient"}`, false},
		{"invalid request", http.StatusUnprocessableEntity, `{"ErrorCode":300,"Message":"Invalid email request"}`, false},
		{"maintenance", http.StatusServiceUnavailable, `{"ErrorCode":100,"Message":"Maintenance"}`, true},
		{"server error page", http.StatusInternalServerError, `<html>oops</html>`, true},
		{"rate limited", http.StatusTooManyRequests, `{"ErrorCode":429,"Message":"Rate limit exceeded"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newPostmark(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			err := s.SendEmail(context.Background(), params)
			require.Error(t, err)
			assert.ErrorIs(t, err, email.ErrFailedToSendEmail)
			assert.Equal(t, tt.temporary, email.IsTemporary(err))
		})
	}
}

func TestPostmarkSender_InvalidParams(t *testing.T) {
	t.Parallel()

	called := false
	s := newPostmark(t, func(http.ResponseWriter, *http.Request) { called = true })
	err := s.SendEmail(context.Background(), email.SendEmailParams{SendTo: "nope", Subject: "x", BodyHTML: "x"})
	assert.ErrorIs(t, err, email.ErrInvalidParams)
	assert.False(t, called)
}

func TestPostmarkSender_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s, err := email.NewPostmarkSender(email.Config{
		PostmarkServerToken: "t",
		PostmarkBaseURL:     url,
		SenderEmail:         "noreply@example.com",
	})
	require.NoError(t, err)

	err = s.SendEmail(context.Background(), params)
	require.Error(t, err)
	assert.True(t, email.IsTemporary(err))
}
