// Package update compares the running version with the latest published
// release.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/questledger/internal/fetcher/colly"
)

// ErrNoRelease means the release endpoint answered without a usable tag.
var ErrNoRelease = errors.New("no published release")

// Fetcher performs one GET.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (collyfetcher.Response, error)
}

// Result describes the outcome of a check.
type Result struct {
	Current string
	Latest  string
	// Newer is true only when both versions are numeric and Latest is ahead.
	Newer bool
	URL   string
}

// Checker queries a GitHub-style "latest release" endpoint.
type Checker struct {
	fetcher     Fetcher
	releasesURL string
	logger      *zap.Logger
}

// NewChecker wires the fetcher and the release endpoint.
func NewChecker(fetcher Fetcher, releasesURL string, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{fetcher: fetcher, releasesURL: releasesURL, logger: logger}
}

type release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Check fetches the latest release and compares it with current.
func (c *Checker) Check(ctx context.Context, current string) (Result, error) {
	res := Result{Current: current}
	if c.releasesURL == "" {
		return res, errors.New("update.releases_url is not configured")
	}
	resp, err := c.fetcher.Fetch(ctx, c.releasesURL)
	if err != nil {
		return res, fmt.Errorf("fetch latest release: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return res, fmt.Errorf("fetch latest release: HTTP %d", resp.StatusCode)
	}
	var rel release
	if err := json.Unmarshal(resp.Body, &rel); err != nil {
		return res, fmt.Errorf("decode latest release: %w", err)
	}
	tag := strings.TrimPrefix(strings.TrimSpace(rel.TagName), "v")
	if tag == "" {
		return res, ErrNoRelease
	}
	res.Latest = tag
	res.URL = rel.HTMLURL
	res.Newer = IsNewer(tag, current)
	c.logger.Debug("release checked",
		zap.String("current", current), zap.String("latest", tag), zap.Bool("newer", res.Newer))
	return res, nil
}

// IsNewer compares dotted numeric versions ("1.10.0" > "1.9.2"). A leading
// "v" is ignored; anything non-numeric, such as a "dev" build, never compares
// as newer.
func IsNewer(remote, local string) bool {
	r, ok := parseVersion(remote)
	if !ok {
		return false
	}
	l, ok := parseVersion(local)
	if !ok {
		return false
	}
	for i := range max(len(r), len(l)) {
		var rv, lv int
		if i < len(r) {
			rv = r[i]
		}
		if i < len(l) {
			lv = l[i]
		}
		if rv != lv {
			return rv > lv
		}
	}
	return false
}

func parseVersion(v string) ([]int, bool) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return nil, false
	}
	parts := strings.Split(v, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}
