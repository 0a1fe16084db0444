package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/signal-tally/internal/analysis"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"lowercases scheme and host", "HTTPS://Example.COM/Path", "https://example.com/Path", false},
		{"drops default https port", "https://example.com:443/a", "https://example.com/a", false},
		{"drops default http port", "http://example.com:80/a", "http://example.com/a", false},
		{"keeps other ports", "http://example.com:8080/a", "http://example.com:8080/a", false},
		{"drops fragment", "https://example.com/a#section-2", "https://example.com/a", false},
		{"sorts query", "https://example.com/?b=2&a=1", "https://example.com/?a=1&b=2", false},
		{"rejects mailto", "mailto:someone@example.com", "", true},
		{"rejects relative", "/just/a/path", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeURL(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestBlocklist(t *testing.T) {
	t.Parallel()

	b := NewBlocklist([]string{"Example.com", "*.ads.net", ".tracker.io", " ", "*."})
	require.NotNil(t, b)

	testCases := []struct {
		host    string
		blocked bool
	}{
		{"example.com", true},
		{"EXAMPLE.COM", true},
		{"www.example.com", false},
		{"ads.net", true},
		{"cdn.ads.net", true},
		{"badads.net", false},
		{"a.b.tracker.io", true},
		{"", false},
	}
	for _, tc := range testCases {
		t.Run(tc.host, func(t *testing.T) {
			require.Equal(t, tc.blocked, b.IsBlocked(tc.host))
		})
	}

	require.Nil(t, NewBlocklist(nil))
	require.Nil(t, NewBlocklist([]string{"", "  "}))
	var nilList *Blocklist
	require.False(t, nilList.IsBlocked("example.com"))
}

func TestFilteredProvider(t *testing.T) {
	t.Parallel()

	next := providerFunc(func(context.Context, analysis.Mode, string) ([]string, error) {
		return []string{
			"https://Example.org/page#top",
			"https://example.org/page",
			"https://cdn.ads.net/banner",
			"ftp://files.example.org/x",
			"https://paper.example/abs?b=1&a=2",
		}, nil
	})
	f := NewFiltered(next, []string{"*.ads.net"}, nil)
	require.Equal(t, "func", f.Name())

	urls, err := f.Search(context.Background(), analysis.ModeHeadings, "q")
	require.NoError(t, err)
	require.Equal(t, []string{"https://example.org/page", "https://paper.example/abs?a=2&b=1"}, urls)
}

func TestFilteredProviderPropagatesError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	f := NewFiltered(providerFunc(func(context.Context, analysis.Mode, string) ([]string, error) {
		return nil, boom
	}), nil, nil)

	_, err := f.Search(context.Background(), analysis.ModeFeatures, "q")
	require.ErrorIs(t, err, boom)
}
