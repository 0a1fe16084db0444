package headless

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/chromedp/cdproto/network"

	"github.com/JakeFAU/signal-tally/internal/analysis"
)

// documentResponse remembers the last top-level document response seen in a
// tab. Redirects and client-side navigations overwrite earlier ones.
type documentResponse struct {
	mu      sync.Mutex
	status  int
	url     string
	headers http.Header
}

func (r *documentResponse) observe(ev any) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
		return
	}
	headers := headerFromNetwork(e.Response.Headers)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = int(e.Response.Status)
	r.url = e.Response.URL
	r.headers = headers
}

// document builds the metadata half of a Document. Missing values fall back
// to the browser location, then the requested URL, and to status 200.
func (r *documentResponse) document(requested, location string) analysis.Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := analysis.Document{
		URL:          requested,
		FinalURL:     r.url,
		StatusCode:   r.status,
		Headers:      http.Header{},
		UsedHeadless: true,
	}
	for k, v := range r.headers {
		doc.Headers[k] = append([]string(nil), v...)
	}
	if doc.FinalURL == "" {
		doc.FinalURL = location
	}
	if doc.FinalURL == "" {
		doc.FinalURL = requested
	}
	if doc.StatusCode == 0 {
		doc.StatusCode = http.StatusOK
	}
	return doc
}

func headerFromNetwork(src network.Headers) http.Header {
	h := http.Header{}
	for key, value := range src {
		switch v := value.(type) {
		case string:
			h.Add(key, v)
		case []string:
			for _, entry := range v {
				h.Add(key, entry)
			}
		case []any:
			for _, entry := range v {
				h.Add(key, fmt.Sprint(entry))
			}
		default:
			h.Add(key, fmt.Sprint(v))
		}
	}
	return h
}

func networkHeaders(h http.Header) network.Headers {
	out := network.Headers{}
	for key, values := range h {
		switch len(values) {
		case 0:
		case 1:
			out[key] = values[0]
		default:
			out[key] = append([]string(nil), values...)
		}
	}
	return out
}
