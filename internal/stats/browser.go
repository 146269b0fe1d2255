package stats

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

// Browser loads pages in headless Chrome. Kickstarter answers plain HTTP
// clients with a challenge page from time to time; a real browser passes it.
type Browser struct {
	opts []chromedp.ExecAllocatorOption
}

func NewBrowser() *Browser {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(userAgent),
		chromedp.DisableGPU,
	)
	return &Browser{opts: opts}
}

// LoadPage navigates to url and returns the rendered document's HTML. A
// fresh browser is started per call; polls are minutes apart.
func (b *Browser) LoadPage(ctx context.Context, url string) (string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.opts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("chromedp: %w", err)
	}
	return html, nil
}

var errNoJSON = errors.New("rendered page holds no JSON document")

// ExtractJSON pulls the raw JSON out of a browser-rendered page. Chrome
// wraps JSON responses in a <pre>; anything else falls back to body text.
func ExtractJSON(page string) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse rendered page: %w", err)
	}

	text := strings.TrimSpace(doc.Find("pre").First().Text())
	if text == "" {
		text = strings.TrimSpace(doc.Find("body").Text())
	}
	if !strings.HasPrefix(text, "{") {
		return nil, errNoJSON
	}
	return []byte(text), nil
}
