package update

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/questledger/internal/fetcher/colly"
)

func TestIsNewer(t *testing.T) {
	t.Parallel()

	cases := []struct {
		remote, local string
		want          bool
	}{
		{"1.2.0", "1.1.9", true},
		{"v1.10.0", "1.9.2", true},
		{"1.2", "1.2.0", false},
		{"1.2.1", "1.2", true},
		{"1.2.0", "1.2.0", false},
		{"1.0.0", "2.0.0", false},
		{"1.0.0", "dev", false},
		{"1.0.0-rc1", "0.9.0", false},
		{"", "1.0.0", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, IsNewer(tc.remote, tc.local), "%s vs %s", tc.remote, tc.local)
	}
}

func TestCheckAgainstReleaseEndpoint(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "questledger-test", r.UserAgent())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tag_name":"v1.4.0","html_url":"https://example.test/releases/v1.4.0"}`))
	}))
	t.Cleanup(srv.Close)

	fetcher := collyfetcher.New(collyfetcher.Config{UserAgent: "questledger-test", Timeout: 5 * time.Second})
	res, err := NewChecker(fetcher, srv.URL, zap.NewNop()).Check(context.Background(), "1.3.2")
	require.NoError(t, err)
	require.Equal(t, Result{
		Current: "1.3.2",
		Latest:  "1.4.0",
		Newer:   true,
		URL:     "https://example.test/releases/v1.4.0",
	}, res)
}

func TestCheckFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cases := map[string]struct {
		resp collyfetcher.Response
		err  error
	}{
		"transport": {err: errors.New("dial tcp: connection refused")},
		"status":    {resp: collyfetcher.Response{StatusCode: http.StatusForbidden}},
		"malformed": {resp: collyfetcher.Response{StatusCode: http.StatusOK, Body: []byte("<html>")}},
		"no tag":    {resp: collyfetcher.Response{StatusCode: http.StatusOK, Body: []byte(`{"tag_name":""}`)}},
	}
	for name, tc := range cases {
		checker := NewChecker(stubFetcher{resp: tc.resp, err: tc.err}, "https://example.test/latest", nil)
		res, err := checker.Check(ctx, "1.0.0")
		require.Error(t, err, name)
		require.False(t, res.Newer, name)
	}

	_, err := NewChecker(stubFetcher{
		resp: collyfetcher.Response{StatusCode: http.StatusOK, Body: []byte(`{"tag_name":"  "}`)},
	}, "https://example.test/latest", nil).Check(ctx, "1.0.0")
	require.ErrorIs(t, err, ErrNoRelease)

	_, err = NewChecker(stubFetcher{}, "", nil).Check(ctx, "1.0.0")
	require.Error(t, err)
}

type stubFetcher struct {
	resp collyfetcher.Response
	err  error
}

func (s stubFetcher) Fetch(context.Context, string) (collyfetcher.Response, error) {
	return s.resp, s.err
}
