package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

// maxChatBotText is the Bot API limit for a message text after entity parsing.
const maxChatBotText = 4096

var (
	chatRecipientRegex = regexp.MustCompile(`^(@[A-Za-z0-9_]+|-?[0-9]+)$`)
	htmlTagRegex       = regexp.MustCompile(`<[^>]*>`)
)

// ChatBotConfig is the env-driven Telegram configuration.
type ChatBotConfig struct {
	Token     string  `env:"TELEGRAM_BOT_TOKEN"`
	ChatID    string  `env:"TELEGRAM_CHAT_ID"`
	APIURL    string  `env:"TELEGRAM_API_URL" envDefault:"https://api.telegram.org"`
	RateLimit float64 `env:"TELEGRAM_RATE_LIMIT" envDefault:"30"`
	ParseMode string  `env:"TELEGRAM_PARSE_MODE" envDefault:"HTML"`
}

// Enabled reports whether a bot token is configured.
func (c ChatBotConfig) Enabled() bool { return c.Token != "" }

// Options converts the config into adapter options.
func (c ChatBotConfig) Options() []ChatBotOption {
	return []ChatBotOption{
		WithAPIURL(c.APIURL),
		WithDefaultChatID(c.ChatID),
		WithRateLimit(c.RateLimit),
		WithParseMode(c.ParseMode),
	}
}

// ChatBotAdapter sends messages with the Telegram Bot API sendMessage method.
type ChatBotAdapter struct {
	token         string
	apiURL        string
	defaultChatID string
	parseMode     string
	client        *http.Client
	limiter       *rate.Limiter
}

// ChatBotOption configures a ChatBotAdapter.
type ChatBotOption func(*ChatBotAdapter)

func WithAPIURL(u string) ChatBotOption {
	return func(a *ChatBotAdapter) {
		if u != "" {
			a.apiURL = strings.TrimRight(u, "/")
		}
	}
}

// WithDefaultChatID sets the chat used when a message has no recipient.
func WithDefaultChatID(id string) ChatBotOption {
	return func(a *ChatBotAdapter) { a.defaultChatID = id }
}

// WithParseMode sets the default parse_mode. Use "" for plain text.
func WithParseMode(mode string) ChatBotOption {
	return func(a *ChatBotAdapter) { a.parseMode = mode }
}

// WithRateLimit caps outbound calls per second. Zero or less disables the cap.
func WithRateLimit(perSecond float64) ChatBotOption {
	return func(a *ChatBotAdapter) {
		if perSecond <= 0 {
			a.limiter = nil
			return
		}
		a.limiter = rate.NewLimiter(rate.Limit(perSecond), max(int(perSecond), 1))
	}
}

func WithChatBotHTTPClient(c *http.Client) ChatBotOption {
	return func(a *ChatBotAdapter) {
		if c != nil {
			a.client = c
		}
	}
}

func NewChatBotAdapter(token string, opts ...ChatBotOption) (*ChatBotAdapter, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: bot token is required", ErrInvalidConfig)
	}
	a := &ChatBotAdapter{
		token:     token,
		apiURL:    "https://api.telegram.org",
		parseMode: "HTML",
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(30, 30),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.defaultChatID != "" && !chatRecipientRegex.MatchString(a.defaultChatID) {
		return nil, fmt.Errorf("%w: invalid default chat id %q", ErrInvalidConfig, a.defaultChatID)
	}
	return a, nil
}

func (a *ChatBotAdapter) Kind() Kind { return KindChatBot }

// ValidateRecipient accepts @channelname, a numeric chat id or a negative
// group id. An empty recipient is valid only with a default chat id.
func (a *ChatBotAdapter) ValidateRecipient(recipient string) error {
	if recipient == "" {
		if a.defaultChatID != "" {
			return nil
		}
		return fmt.Errorf("%w: chat id is required", ErrInvalidRecipient)
	}
	if !chatRecipientRegex.MatchString(recipient) {
		return fmt.Errorf("%w: %q is not a chat id or @username", ErrInvalidRecipient, recipient)
	}
	return nil
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type botResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Parameters struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Send posts one message. Metadata "parse_mode" and "disable_web_page_preview"
// override the defaults for this message.
func (a *ChatBotAdapter) Send(ctx context.Context, msg Message) (Outcome, error) {
	if err := a.ValidateRecipient(msg.Recipient); err != nil {
		return Outcome{}, Permanent(KindChatBot, 0, err)
	}
	chatID := msg.Recipient
	if chatID == "" {
		chatID = a.defaultChatID
	}

	parseMode := a.parseMode
	if pm, ok := msg.Metadata["parse_mode"]; ok {
		parseMode = pm
	}
	text := composeText(msg.Title, msg.Body, parseMode)
	if n, ok := visibleLength(text, parseMode); ok && n > maxChatBotText {
		return Outcome{}, Permanent(KindChatBot, 0, fmt.Errorf("message text exceeds %d characters", maxChatBotText))
	}

	payload, err := json.Marshal(sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             parseMode,
		DisableWebPagePreview: msg.Metadata["disable_web_page_preview"] != "false",
	})
	if err != nil {
		return Outcome{}, Permanent(KindChatBot, 0, err)
	}

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return Outcome{}, ctx.Err()
			}
			// the wait would outlast the deadline
			return Outcome{}, Transient(KindChatBot, 0, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.apiURL+"/bot"+a.token+"/sendMessage", bytes.NewReader(payload))
	if err != nil {
		return Outcome{}, Permanent(KindChatBot, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return Outcome{}, classifyTransport(ctx, KindChatBot, redactToken(err, a.token))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Outcome{}, classifyTransport(ctx, KindChatBot, err)
	}

	var br botResponse
	decodeErr := json.Unmarshal(body, &br)

	if resp.StatusCode == http.StatusOK && decodeErr == nil && br.OK {
		return Outcome{
			ProviderID: strconv.FormatInt(br.Result.MessageID, 10),
			StatusCode: resp.StatusCode,
		}, nil
	}

	status := resp.StatusCode
	if br.ErrorCode > 0 {
		status = br.ErrorCode
	}
	desc := br.Description
	if desc == "" {
		desc = http.StatusText(resp.StatusCode)
	}
	if status == http.StatusOK {
		// 200 without ok=true: malformed reply from a proxy or the API
		return Outcome{}, Transient(KindChatBot, resp.StatusCode, fmt.Errorf("unexpected response: %s", desc))
	}

	cerr := classifyStatus(KindChatBot, status, errors.New(desc))
	if br.Parameters.RetryAfter > 0 {
		cerr.(*Error).RetryAfter = time.Duration(br.Parameters.RetryAfter) * time.Second
	}
	return Outcome{}, cerr
}

// visibleLength counts the characters the Bot API limits: the text left once
// markup is parsed. Markdown entities are not counted here; ok is false and
// an oversized message is rejected by the API instead.
func visibleLength(text, parseMode string) (n int, ok bool) {
	switch {
	case parseMode == "":
		return utf8.RuneCountInString(text), true
	case strings.EqualFold(parseMode, "HTML"):
		return utf8.RuneCountInString(html.UnescapeString(htmlTagRegex.ReplaceAllString(text, ""))), true
	default:
		return 0, false
	}
}

// composeText joins title and body. In HTML mode the title is escaped and bolded.
func composeText(title, body, parseMode string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return body
	}
	if strings.EqualFold(parseMode, "HTML") {
		title = "<b>" + html.EscapeString(title) + "</b>"
	}
	if body == "" {
		return title
	}
	return title + "\n\n" + body
}

// redactToken strips the bot token from transport errors, which embed the URL.
func redactToken(err error, token string) error {
	if !strings.Contains(err.Error(), token) {
		return err
	}
	return redactedError{msg: strings.ReplaceAll(err.Error(), token, "<redacted>"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e redactedError) Error() string { return e.msg }
func (e redactedError) Unwrap() error { return e.err }
