package channel_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/email"
)

type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) SendEmail(ctx context.Context, params email.SendEmailParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func TestEmailAdapter_Send(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	msg := channel.Message{
		ID:        "n1",
		Recipient: "user@example.com",
		Title:     "Invoice paid",
		Body:      "<p>Thanks</p>",
		Metadata:  map[string]string{"tag": "billing"},
	}
	want := email.SendEmailParams{
		SendTo:   "user@example.com",
		Subject:  "Invoice paid",
		BodyHTML: "<p>Thanks</p>",
		BodyText: "<p>Thanks</p>",
		Tag:      "billing",
	}

	tests := []struct {
		name      string
		sendErr   error
		transient bool
		permanent bool
		passThru  error
	}{
		{name: "success"},
		{name: "temporary provider error", sendErr: &email.SendError{Provider: "postmark", Code: 100, Temporary: true}, transient: true},
		{name: "rejected by provider", sendErr: &email.SendError{Provider: "postmark", Code: 406}, permanent: true},
		{name: "invalid params", sendErr: email.ErrInvalidParams, permanent: true},
		{name: "unknown error", sendErr: errors.New("disk full"), transient: true},
		{name: "canceled", sendErr: context.Canceled, passThru: context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sender := &MockEmailSender{}
			sender.On("SendEmail", ctx, want).Return(tt.sendErr).Once()

			a, err := channel.NewEmailAdapter(sender)
			require.NoError(t, err)

			_, err = a.Send(ctx, msg)
			sender.AssertExpectations(t)

			switch {
			case tt.sendErr == nil:
				assert.NoError(t, err)
			case tt.passThru != nil:
				assert.ErrorIs(t, err, tt.passThru)
				assert.False(t, channel.IsTransient(err))
				assert.False(t, channel.IsPermanent(err))
			default:
				assert.Equal(t, tt.transient, channel.IsTransient(err))
				assert.Equal(t, tt.permanent, channel.IsPermanent(err))
			}
		})
	}
}

type trackedSender struct {
	MockEmailSender
}

func (m *trackedSender) SendTrackedEmail(ctx context.Context, params email.SendEmailParams) (string, error) {
	args := m.Called(ctx, params)
	return args.String(0), args.Error(1)
}

func TestEmailAdapter_ProviderID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	msg := channel.Message{Recipient: "user@example.com", Title: "Hi", Body: "Hello"}

	sender := &trackedSender{}
	sender.On("SendTrackedEmail", ctx, mock.Anything).Return("pm-123", nil).Once()
	a, err := channel.NewEmailAdapter(sender)
	require.NoError(t, err)

	out, err := a.Send(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, "pm-123", out.ProviderID)
	sender.AssertExpectations(t)
	sender.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)

	sender = &trackedSender{}
	sender.On("SendTrackedEmail", ctx, mock.Anything).Return("", &email.SendError{Provider: "postmark", Code: 406}).Once()
	a, err = channel.NewEmailAdapter(sender)
	require.NoError(t, err)
	out, err = a.Send(ctx, msg)
	assert.True(t, channel.IsPermanent(err))
	assert.Empty(t, out.ProviderID)
}

func TestEmailAdapter_DevSenderProviderID(t *testing.T) {
	t.Parallel()

	a, err := channel.NewEmailAdapter(email.NewDevSender(t.TempDir()))
	require.NoError(t, err)

	out, err := a.Send(context.Background(), channel.Message{
		Recipient: "user@example.com",
		Title:     "Welcome",
		Body:      "<p>hi</p>",
	})
	require.NoError(t, err)
	assert.Contains(t, out.ProviderID, "_welcome")
}

func TestEmailAdapter_InvalidRecipient(t *testing.T) {
	t.Parallel()

	sender := &MockEmailSender{}
	a, err := channel.NewEmailAdapter(sender)
	require.NoError(t, err)

	assert.Equal(t, channel.KindEmail, a.Kind())
	assert.ErrorIs(t, a.ValidateRecipient("not-an-email"), channel.ErrInvalidRecipient)
	assert.NoError(t, a.ValidateRecipient("user@example.com"))

	_, err = a.Send(context.Background(), channel.Message{Recipient: "nope", Title: "x", Body: "x"})
	assert.True(t, channel.IsPermanent(err))
	sender.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)

	_, err = channel.NewEmailAdapter(nil)
	assert.ErrorIs(t, err, channel.ErrInvalidConfig)
}
