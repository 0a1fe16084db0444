package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/signal-tally/internal/analysis"
)

// NormalizeURL lowercases the scheme and host, drops default ports and the
// fragment, and sorts query parameters so equivalent links compare equal.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if !strings.EqualFold(u.Scheme, "http") && !strings.EqualFold(u.Scheme, "https") {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}

// Blocklist matches hosts against exact names and suffix wildcards
// ("*.example.com" or ".example.com").
type Blocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewBlocklist parses patterns. It returns nil when no usable pattern is
// given; a nil Blocklist blocks nothing.
func NewBlocklist(patterns []string) *Blocklist {
	b := &Blocklist{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		switch {
		case value == "":
		case strings.HasPrefix(value, "*."):
			b.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			b.addSuffix(strings.TrimPrefix(value, "."))
		default:
			b.exact[value] = struct{}{}
		}
	}
	if len(b.exact) == 0 && len(b.suffixes) == 0 {
		return nil
	}
	return b
}

func (b *Blocklist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

// IsBlocked reports whether host matches any pattern.
func (b *Blocklist) IsBlocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, exact := b.exact[host]; exact {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// Filtered normalizes and de-duplicates another provider's URLs and drops
// malformed links and blocked hosts.
type Filtered struct {
	next      Provider
	blocklist *Blocklist
	logger    *zap.Logger
}

// NewFiltered wraps next.
func NewFiltered(next Provider, blocked []string, logger *zap.Logger) *Filtered {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filtered{next: next, blocklist: NewBlocklist(blocked), logger: logger}
}

// Name implements Provider.
func (f *Filtered) Name() string { return f.next.Name() }

// Search implements Provider.
func (f *Filtered) Search(ctx context.Context, mode analysis.Mode, query string) ([]string, error) {
	urls, err := f.next.Search(ctx, mode, query)
	if err != nil {
		return nil, err
	}
	kept := make([]string, 0, len(urls))
	for _, raw := range urls {
		normalized, err := NormalizeURL(raw)
		if err != nil {
			f.logger.Debug("dropping malformed search result", zap.String("url", raw), zap.Error(err))
			continue
		}
		u, _ := url.Parse(normalized)
		if f.blocklist.IsBlocked(u.Hostname()) {
			f.logger.Debug("dropping blocked search result", zap.String("url", raw))
			continue
		}
		kept = append(kept, normalized)
	}
	return dedupe(kept), nil
}
