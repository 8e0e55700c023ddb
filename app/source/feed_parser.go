package source

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// "Home FC - Away FC 3:1" or "Home FC - Away FC"
var feedTitlePattern = regexp.MustCompile(`^(.+?)\s+[-–]\s+(.+?)(?:\s+(\d+\s*:\s*\d+))?$`)

// FeedParser reads schedules published as RSS or Atom, one item per match.
type FeedParser struct {
	gofeedParser *gofeed.Parser
	location     *time.Location
}

func NewFeedParser(location *time.Location) *FeedParser {
	if location == nil {
		location = time.Local
	}
	return &FeedParser{
		gofeedParser: gofeed.NewParser(),
		location:     location,
	}
}

func (p *FeedParser) Parse(data []byte, baseURL string) ([]Candidate, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, err)
	}

	candidates := make([]Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		m := feedTitlePattern.FindStringSubmatch(strings.TrimSpace(item.Title))
		if m == nil {
			slog.Warn("Skipping feed item with unexpected title", "title", item.Title)
			continue
		}

		kickoff := item.PublishedParsed
		if kickoff == nil {
			slog.Warn("Skipping feed item without date", "title", item.Title)
			continue
		}
		local := kickoff.In(p.location)

		c := Candidate{
			Date:   local.Format("02.01.06"),
			Time:   local.Format("15:04"),
			TeamA:  squash(m[1]),
			TeamB:  squash(m[2]),
			Result: strings.ReplaceAll(m[3], " ", ""),
		}
		if len(item.Categories) > 0 {
			c.League = item.Categories[0]
		}
		if c.Result != "" && item.Link != "" {
			c.HasReport = true
			c.ReportURL = item.Link
		}

		candidates = append(candidates, c)
	}

	return candidates, nil
}
