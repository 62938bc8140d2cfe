package controller

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"aura/internal/logging"
	"aura/internal/skills"
)

var urlRe = regexp.MustCompile(`https?://[^\s<>"]+`)

const (
	prefetchMaxURLs = 2
	prefetchBudget  = 35 * time.Second
	prefetchMaxLen  = 1200
)

// prefetchURLs fetches up to two URLs found in the text and returns their
// extracted page text keyed by URL. Failures are logged and skipped; the
// budget covers all fetches together.
func (c *Controller) prefetchURLs(ctx context.Context, text string) map[string]string {
	urls := urlRe.FindAllString(text, -1)
	if len(urls) == 0 {
		return nil
	}
	if len(urls) > prefetchMaxURLs {
		urls = urls[:prefetchMaxURLs]
	}

	fetchCtx, cancel := context.WithTimeout(ctx, prefetchBudget)
	defer cancel()

	client := &http.Client{Timeout: prefetchBudget}
	out := make(map[string]string, len(urls))
	for _, u := range urls {
		req, err := http.NewRequestWithContext(fetchCtx, "GET", u, nil)
		if err != nil {
			continue
		}
		req.Header.Set("User-Agent", "aura/0.1 (+personal assistant)")
		resp, err := client.Do(req)
		if err != nil {
			logging.ControllerWarn("prefetch %s: %v", u, err)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			continue
		}
		body, err := skills.ExtractText(resp.Body, prefetchMaxLen)
		resp.Body.Close()
		if err != nil {
			logging.ControllerWarn("prefetch parse %s: %v", u, err)
			continue
		}
		out[u] = body
	}
	if len(out) > 0 {
		logging.Controller("prefetched %d of %d urls", len(out), len(urls))
	}
	return out
}
