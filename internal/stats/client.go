package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iokaravas/ksDiscordBot/internal/config"
	"github.com/iokaravas/ksDiscordBot/internal/models"
	"github.com/iokaravas/ksDiscordBot/internal/util"
	"github.com/iokaravas/ksDiscordBot/internal/validator"
)

const userAgent = "Mozilla/5.0 (compatible; ksDiscordBot/1.0; +https://github.com/iokaravas/ksDiscordBot)"

// maxBodyBytes caps the stats document; real ones are well under 1KB.
const maxBodyBytes = 1 << 20

// PageLoader renders a URL in a browser and returns the resulting HTML.
type PageLoader interface {
	LoadPage(ctx context.Context, url string) (string, error)
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	campaign   string
	browser    PageLoader
	validate   *validator.Validator
	log        func(level slog.Level, msg string, attrs ...any)
}

// New builds a stats client for the configured campaign. A nil browser
// disables the challenge-page fallback.
func New(cfg *config.Config, browser PageLoader) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
		baseURL:    strings.TrimSuffix(cfg.KickstarterBaseURL, "/"),
		campaign:   util.NormalizeCampaign(cfg.Campaign),
		browser:    browser,
		validate:   validator.New(),
		log: func(level slog.Level, msg string, attrs ...any) {
			slog.Log(context.Background(), level, msg, attrs...)
		},
	}
}

// SetLogFunc redirects the client's own events, such as the browser
// fallback, to fn.
func (c *Client) SetLogFunc(fn func(level slog.Level, msg string, attrs ...any)) {
	if fn != nil {
		c.log = fn
	}
}

// StatsURL is the public stats document for the campaign.
func (c *Client) StatsURL() string {
	return fmt.Sprintf("%s/projects/%s/stats.json?v=1", c.baseURL, c.campaign)
}

// CampaignURL is the human facing campaign page.
func CampaignURL(campaign string) string {
	return config.DefaultKickstarterBaseURL + "/projects/" + util.NormalizeCampaign(campaign)
}

// Fetch retrieves and normalizes the current campaign counters. There is
// no retry here; the next scheduled poll is the retry.
func (c *Client) Fetch(ctx context.Context) (models.Snapshot, error) {
	statsURL := c.StatsURL()

	body, err := c.fetchDirect(ctx, statsURL)
	if err != nil {
		var fe *models.FetchError
		if c.browser == nil || !errors.As(err, &fe) || !isChallenge(fe.StatusCode) {
			return models.Snapshot{}, err
		}
		c.log(slog.LevelWarn, "Stats request was challenged, retrying through browser", "url", statsURL, "status", fe.StatusCode)
		body, err = c.fetchViaBrowser(ctx, statsURL)
		if err != nil {
			return models.Snapshot{}, err
		}
	}

	return c.Parse(body)
}

func isChallenge(status int) bool {
	return status == http.StatusForbidden || status == http.StatusServiceUnavailable
}

func (c *Client) fetchDirect(ctx context.Context, statsURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statsURL, nil)
	if err != nil {
		return nil, &models.FetchError{URL: statsURL, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &models.FetchError{URL: statsURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &models.FetchError{URL: statsURL, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &models.FetchError{
			URL:        statsURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	return body, nil
}

func (c *Client) fetchViaBrowser(ctx context.Context, statsURL string) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	page, err := c.browser.LoadPage(ctx, statsURL)
	if err != nil {
		return nil, &models.FetchError{URL: statsURL, Err: fmt.Errorf("browser fallback: %w", err)}
	}
	doc, err := ExtractJSON(page)
	if err != nil {
		return nil, &models.MalformedResponseError{Err: err}
	}
	return doc, nil
}

type statsDocument struct {
	Project *projectStats `json:"project"`
}

type projectStats struct {
	Pledged       *decimal.Decimal `json:"pledged"`
	BackersCount  *int             `json:"backers_count"`
	CommentsCount *int             `json:"comments_count"`
}

// Parse turns a stats document into a Snapshot. This is the only place
// the pledged amount is coerced from text.
func (c *Client) Parse(body []byte) (models.Snapshot, error) {
	var doc statsDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return models.Snapshot{}, &models.MalformedResponseError{Err: err}
	}
	if doc.Project == nil {
		return models.Snapshot{}, &models.MalformedResponseError{Err: models.ErrMissingProject}
	}

	p := doc.Project
	var missing []string
	if p.Pledged == nil {
		missing = append(missing, "pledged")
	}
	if p.BackersCount == nil {
		missing = append(missing, "backers_count")
	}
	if p.CommentsCount == nil {
		missing = append(missing, "comments_count")
	}
	if len(missing) > 0 {
		return models.Snapshot{}, &models.MalformedResponseError{
			Err: fmt.Errorf("project is missing %s", strings.Join(missing, ", ")),
		}
	}

	snap := models.Snapshot{
		Pledged:       p.Pledged.IntPart(),
		BackersCount:  *p.BackersCount,
		CommentsCount: *p.CommentsCount,
	}
	if err := c.validate.ValidateStruct(snap); err != nil {
		return models.Snapshot{}, &models.MalformedResponseError{Err: err}
	}
	return snap, nil
}

// withTimeout bounds a browser load the same way the HTTP client is bounded.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.httpClient.Timeout
	if timeout <= 0 {
		timeout = config.DefaultFetchTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
