package source

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	cellsPlain  = 9
	cellsLeague = 10 // extra league column after the time
)

// TableParser reads the schedule table of a league page. Rows carry date,
// time, an optional league, the two teams and the result cell, which links
// to the match report once one is published.
type TableParser struct{}

func NewTableParser() *TableParser {
	return &TableParser{}
}

func (p *TableParser) Parse(data []byte, baseURL string) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	tbody := doc.Find("tbody").First()
	if tbody.Length() == 0 {
		return nil, fmt.Errorf("%w: no table body", ErrUnknownFormat)
	}

	base, _ := url.Parse(baseURL)

	var (
		candidates []Candidate
		lastDate   string
	)
	tbody.ChildrenFiltered("tr").Each(func(i int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td, th")
		n := cells.Length()
		if n != cellsPlain && n != cellsLeague {
			slog.Warn("Skipping row with unexpected cell count", "row", i, "cells", n, "text", squash(tr.Text()))
			return
		}

		offset := 0
		if n == cellsLeague {
			offset = 1
		}
		cell := func(idx int) *goquery.Selection { return cells.Eq(idx) }

		// date cells look like "Sa. 12.05.24" and are left blank for
		// further matches on the same day
		if fields := strings.Fields(cell(0).Text()); len(fields) > 0 {
			lastDate = fields[len(fields)-1]
		}

		c := Candidate{
			Date:   lastDate,
			Time:   firstField(cell(1).Text()),
			TeamA:  squash(cell(3 + offset).Text()),
			TeamB:  squash(cell(4 + offset).Text()),
			Result: firstLine(cell(7 + offset).Text()),
		}
		if offset == 1 {
			c.League = squash(cell(2).Text())
		}

		if href, ok := cell(7 + offset).Find("a[href]").First().Attr("href"); ok && strings.TrimSpace(href) != "" {
			c.HasReport = true
			c.ReportURL = resolve(base, href)
		}

		candidates = append(candidates, c)
	})

	return candidates, nil
}

func firstField(s string) string {
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
