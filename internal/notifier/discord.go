package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/iokaravas/ksDiscordBot/internal/models"
	"github.com/iokaravas/ksDiscordBot/internal/util"
)

const (
	// maxContentLength is Discord's limit for message content.
	maxContentLength = 2000

	maxRetries  = 3
	baseBackoff = time.Second

	userAgent = "DiscordBot (https://github.com/iokaravas/ksDiscordBot, 1.0)"
)

// Client talks to one Discord channel through the REST API with a bot token.
type Client struct {
	apiURL      string
	token       string
	channelID   string
	client      *http.Client
	rateLimiter *rate.Limiter
	backoff     time.Duration

	selfID string
}

func New(apiURL, token, channelID string) *Client {
	return &Client{
		apiURL:      strings.TrimSuffix(apiURL, "/"),
		token:       token,
		channelID:   channelID,
		client:      &http.Client{Timeout: 10 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Every(250*time.Millisecond), 2),
		backoff:     baseBackoff,
	}
}

// Internal structures
type discordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

type discordChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type discordMessage struct {
	ID        string      `json:"id"`
	ChannelID string      `json:"channel_id"`
	Author    discordUser `json:"author"`
	Content   string      `json:"content"`
}

type discordMessagePayload struct {
	Content string `json:"content"`
}

// Connect checks the credential and resolves the target channel. It also
// learns the bot's own user ID so LatestMessage can tell our messages apart
// from other bots'.
func (c *Client) Connect(ctx context.Context) error {
	var me discordUser
	if err := c.do(ctx, http.MethodGet, "/users/@me", nil, &me); err != nil {
		return fmt.Errorf("authenticate bot: %w", err)
	}
	var ch discordChannel
	if err := c.do(ctx, http.MethodGet, "/channels/"+c.channelID, nil, &ch); err != nil {
		return fmt.Errorf("resolve channel %s: %w", c.channelID, err)
	}
	c.selfID = me.ID
	return nil
}

// LatestMessage returns the most recent message in the channel, or nil
// when the channel is empty.
func (c *Client) LatestMessage(ctx context.Context) (*models.Message, error) {
	var msgs []discordMessage
	if err := c.do(ctx, http.MethodGet, c.messagesPath()+"?limit=1", nil, &msgs); err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	m := msgs[0]
	fromBot := m.Author.Bot
	if c.selfID != "" {
		fromBot = m.Author.ID == c.selfID
	}
	return &models.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		AuthorID:  m.Author.ID,
		FromBot:   fromBot,
	}, nil
}

// Send posts a new message and returns its ID.
func (c *Client) Send(ctx context.Context, content string) (string, error) {
	var msg discordMessage
	if err := c.do(ctx, http.MethodPost, c.messagesPath(), discordMessagePayload{Content: truncate(content)}, &msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// Edit replaces the content of an existing message.
func (c *Client) Edit(ctx context.Context, messageID, content string) error {
	if messageID == "" {
		return errors.New("edit: empty message ID")
	}
	return c.do(ctx, http.MethodPatch, c.messagesPath()+"/"+messageID, discordMessagePayload{Content: truncate(content)}, nil)
}

func (c *Client) Delete(ctx context.Context, messageID string) error {
	if messageID == "" {
		return errors.New("delete: empty message ID")
	}
	return c.do(ctx, http.MethodDelete, c.messagesPath()+"/"+messageID, nil, nil)
}

func (c *Client) messagesPath() string {
	return "/channels/" + c.channelID + "/messages"
}

func truncate(content string) string {
	if utf8.RuneCountInString(content) <= maxContentLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:maxContentLength])
}

// do performs one API call with rate limiting and retries on 429 and 5xx.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var payloadBytes []byte
	if payload != nil {
		var err error
		payloadBytes, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}

	return util.RetryWithBackoff(ctx, maxRetries, c.backoff, func(attempt int) error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return err
		}

		var body io.Reader
		if payloadBytes != nil {
			body = bytes.NewReader(payloadBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bot "+c.token)
		req.Header.Set("User-Agent", userAgent)
		if payloadBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return &util.RetryableError{Err: err}
		}
		defer resp.Body.Close()

		bodyBytes, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out == nil || resp.StatusCode == http.StatusNoContent {
				return nil
			}
			return json.Unmarshal(bodyBytes, out)
		}

		statusErr := fmt.Errorf("discord %s %s: %s, body: %s", method, path, resp.Status, string(bodyBytes))
		if wait := retryBackoff(resp, attempt, c.backoff); wait > 0 {
			return &util.RetryableError{Err: statusErr, After: wait}
		}
		return statusErr
	})
}

// retryBackoff returns how long to wait before retrying resp, or zero when
// the status is not worth retrying.
func retryBackoff(resp *http.Response, attempt int, base time.Duration) time.Duration {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
		return base << attempt
	case resp.StatusCode >= 500:
		return base << attempt
	default:
		return 0
	}
}
