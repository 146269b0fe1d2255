package processor

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/iokaravas/ksDiscordBot/internal/models"
)

const timestampLayout = "2006-01-02 15:04:05 MST"

var digitGlyphs = [10]string{
	":zero:", ":one:", ":two:", ":three:", ":four:",
	":five:", ":six:", ":seven:", ":eight:", ":nine:",
}

// RenderOptions are the configuration toggles that shape the message.
type RenderOptions struct {
	Goal            float64
	ShowTotalChange bool
	ShowLink        bool
	CampaignURL     string
	Location        *time.Location
}

// RenderInput is everything one cycle knows when it renders. Tally is read,
// never written.
type RenderInput struct {
	Current   models.Snapshot
	Tally     *models.Tally
	Changed   bool
	CheckedAt time.Time
	ChangedAt time.Time
}

// Render builds the channel message body.
func Render(in RenderInput, opts RenderOptions) string {
	var b strings.Builder

	if label := FundedLabel(in.Current.Pledged, opts.Goal); label != "" {
		fmt.Fprintf(&b, "__Kickstarter Campaign %s:__\n\n", label)
	} else {
		b.WriteString("__Kickstarter Campaign:__\n\n")
	}

	var pledgedNote, backersNote string
	showDelta := !opts.ShowTotalChange && in.Changed && !in.Tally.CleanRun()
	if showDelta {
		last := in.Tally.LastChange()
		pledgedNote = deltaNote(last.Pledged)
		backersNote = deltaNote(int64(last.BackersCount))
	}

	fmt.Fprintf(&b, "Pledged Total:  %s  :moneybag:%s\n\n", Glyphs(in.Current.Pledged), pledgedNote)
	fmt.Fprintf(&b, "Backers:            %s  :scream:%s\n\n", Glyphs(int64(in.Current.BackersCount)), backersNote)
	fmt.Fprintf(&b, "Comments:      %s  :scream_cat:\n\n", Glyphs(int64(in.Current.CommentsCount)))

	if opts.ShowTotalChange {
		totals := in.Tally.Totals()
		fmt.Fprintf(&b, "Since reset:  :moneybag: %s  :scream: %s\n\n",
			SignedGlyphs(totals.Pledged), SignedGlyphs(int64(totals.BackersCount)))
	}

	fmt.Fprintf(&b, "*Last changed on: %s*\n", formatTimestamp(in.ChangedAt, opts.Location))
	fmt.Fprintf(&b, "*Last checked on: %s*", formatTimestamp(in.CheckedAt, opts.Location))

	if opts.ShowLink && opts.CampaignURL != "" {
		b.WriteString("\n")
		b.WriteString(opts.CampaignURL)
	}
	return b.String()
}

func deltaNote(v int64) string {
	if v == 0 {
		return ""
	}
	return " *(" + SignedGlyphs(v) + ")*"
}

func formatTimestamp(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "never"
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(timestampLayout)
}

// FundedLabel is "NN.NN% funded", or empty when no goal is set.
func FundedLabel(pledged int64, goal float64) string {
	if goal <= 0 {
		return ""
	}
	pct := math.Round(float64(pledged)/goal*100*100) / 100
	return fmt.Sprintf("%.2f%% funded", pct)
}

// Glyphs spells the magnitude of n one digit glyph at a time. The sign is
// not rendered; see SignedGlyphs.
func Glyphs(n int64) string {
	digits := fmt.Sprintf("%d", n)
	digits = strings.TrimPrefix(digits, "-")

	var b strings.Builder
	for _, ch := range digits {
		b.WriteString(digitGlyphs[ch-'0'])
	}
	return b.String()
}

// SignedGlyphs prefixes Glyphs with "+" for zero or positive values and "-"
// for negative ones.
func SignedGlyphs(n int64) string {
	if n < 0 {
		return "-" + Glyphs(n)
	}
	return "+" + Glyphs(n)
}

var errBadGlyph = errors.New("unknown digit glyph")

// ParseGlyphs reverses SignedGlyphs and Glyphs.
func ParseGlyphs(s string) (int64, error) {
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if s == "" {
		return 0, errBadGlyph
	}

	var n int64
	for s != "" {
		matched := false
		for d, g := range digitGlyphs {
			if strings.HasPrefix(s, g) {
				n = n*10 + int64(d)
				s = s[len(g):]
				matched = true
				break
			}
		}
		if !matched {
			return 0, fmt.Errorf("%w at %q", errBadGlyph, s)
		}
	}
	if neg {
		n = -n
	}
	return n, nil
}
