package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/questledger/internal/catalog"
)

// ErrNoEntryTable means a page had no table that looks like an entry list,
// usually because the page layout changed.
var ErrNoEntryTable = errors.New("no entry table found")

// Rules holds the table heuristics used to pull entries from a list page.
type Rules struct {
	// ContentSelector scopes the search; the whole document is used when it
	// matches nothing.
	ContentSelector string
	// HeaderLabels qualify a table: one header cell must contain one of them.
	HeaderLabels []string
	// GroupLabels pick the grouping column: the first header containing one.
	GroupLabels          []string
	ExcludedTableClasses []string
	// Ignore lists lower-case names that are never entries.
	Ignore []string
	// NonEntryMarkers reject names containing them, e.g. "Category:".
	NonEntryMarkers []string
	CatchAllLabel   string
	MinNameLength   int
	MaxNameLength   int
	MaxGroupLength  int
}

// Candidate is an entry found on a page together with its group label.
type Candidate struct {
	Name  string
	Group string
}

// Extract parses html and returns the candidate entries in document order.
// Duplicates are kept; Merge resolves them.
func Extract(ctx context.Context, html string, rules Rules) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	root := doc.Selection
	if rules.ContentSelector != "" {
		if scoped := doc.Find(rules.ContentSelector).First(); scoped.Length() > 0 {
			root = scoped
		}
	}
	ignore := make(map[string]struct{}, len(rules.Ignore))
	for _, name := range rules.Ignore {
		ignore[strings.ToLower(name)] = struct{}{}
	}

	var (
		out       []Candidate
		qualified int
		loopErr   error
	)
	root.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		if hasAnyClass(table, rules.ExcludedTableClasses) {
			return true
		}
		headers := table.Find("th").Map(func(_ int, th *goquery.Selection) string {
			return strings.ToLower(strings.TrimSpace(th.Text()))
		})
		if !anyContains(headers, rules.HeaderLabels) {
			return true
		}
		qualified++
		groupCol := slices.IndexFunc(headers, func(h string) bool {
			return containsAny(h, rules.GroupLabels)
		})

		table.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
			if err := ctx.Err(); err != nil {
				loopErr = err
				return false
			}
			if row.Find("th").Length() > 0 {
				return true
			}
			cols := row.Find("td")
			if cols.Length() == 0 {
				return true
			}
			anchor := cols.First().Find("a").First()
			if anchor.Length() == 0 {
				return true
			}
			name, ok := rules.entryName(anchor.Text(), ignore)
			if !ok {
				return true
			}
			group := rules.CatchAllLabel
			if groupCol >= 0 && cols.Length() > groupCol {
				if label := sanitize(cols.Eq(groupCol).Text(), rules.MaxGroupLength); label != "" {
					group = label
				}
			}
			out = append(out, Candidate{Name: name, Group: group})
			return true
		})
		return loopErr == nil
	})
	if loopErr != nil {
		return nil, loopErr
	}
	if qualified == 0 {
		return nil, ErrNoEntryTable
	}
	return out, nil
}

func (r Rules) entryName(raw string, ignore map[string]struct{}) (string, bool) {
	name := sanitize(raw, r.MaxNameLength)
	if utf8.RuneCountInString(name) < max(r.MinNameLength, 1) {
		return "", false
	}
	check := strings.TrimRight(strings.TrimSpace(strings.ToLower(name)), ":")
	if _, skip := ignore[check]; skip {
		return "", false
	}
	for _, marker := range r.NonEntryMarkers {
		if marker != "" && strings.Contains(name, marker) {
			return "", false
		}
	}
	return name, true
}

// sanitize NFKC-normalizes text, drops non-printable runes, trims it and
// truncates it to maxLen runes plus an ellipsis. maxLen <= 0 disables
// truncation.
func sanitize(text string, maxLen int) string {
	if text == "" {
		return ""
	}
	text = norm.NFKC.String(text)
	text = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, text)
	text = strings.TrimSpace(text)
	if maxLen > 0 && utf8.RuneCountInString(text) > maxLen {
		runes := []rune(text)
		return string(runes[:maxLen]) + catalog.Ellipsis
	}
	return text
}

func hasAnyClass(sel *goquery.Selection, classes []string) bool {
	for _, class := range classes {
		if class != "" && sel.HasClass(class) {
			return true
		}
	}
	return false
}

func anyContains(values, needles []string) bool {
	for _, v := range values {
		if containsAny(v, needles) {
			return true
		}
	}
	return false
}

func containsAny(value string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(value, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
