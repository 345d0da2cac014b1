package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

const maxSearchResults = 5

var errThrottled = errors.New("search throttled")

// SearchResult is one hit.
type SearchResult struct {
	Title string
	URL   string
}

type searchTool struct {
	baseURL string
	client  *http.Client
	limiter Limiter
}

func (s searchTool) run(ctx context.Context, arg string, _ Shell, log *slog.Logger) (string, error) {
	query := strings.TrimSpace(arg)
	if query == "" {
		return "Podaj, czego mam szukać, np. „wyszukaj w internecie kernel 6.12”.", nil
	}
	results, err := s.search(ctx, query, maxSearchResults)
	if errors.Is(err, errThrottled) {
		return "⏳ Za dużo wyszukiwań w krótkim czasie. Spróbuj ponownie za chwilę.", nil
	}
	if err != nil {
		return "", fmt.Errorf("wyszukiwanie nie powiodło się: %w", err)
	}
	log.Info("internet search", "query", query, "results", len(results))
	if len(results) == 0 {
		return fmt.Sprintf("🔎 Brak wyników dla: %s", query), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🔎 Wyniki dla: %s", query)
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s\n   %s", i+1, r.Title, r.URL)
	}
	return b.String(), nil
}

// search queries the DuckDuckGo HTML endpoint (or a compatible one set
// by search_url).
func (s searchTool) search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	base := strings.TrimSpace(s.baseURL)
	if base == "" {
		base = "https://html.duckduckgo.com/html/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid search_url: %w", err)
	}
	if s.limiter != nil && !s.limiter.Allow(u.Host) {
		return nil, errThrottled
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Lyra/1.0)")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}
	results, err := parseSearchResults(io.LimitReader(resp.Body, 2<<20), maxResults)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return results, nil
}

// parseSearchResults collects the result__a links of a DuckDuckGo HTML page.
func parseSearchResults(r io.Reader, maxResults int) ([]SearchResult, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	results := make([]SearchResult, 0, maxResults)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			title := nodeText(n)
			link := strings.TrimSpace(attrValue(n, "href"))
			if title != "" && link != "" {
				results = append(results, SearchResult{Title: title, URL: decodeDuckURL(link)})
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrValue(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// nodeText joins the text below n with single spaces.
func nodeText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

func decodeDuckURL(u string) string {
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	if parsed.Path == "/l/" || parsed.Path == "/l" {
		if target := parsed.Query().Get("uddg"); target != "" {
			return target
		}
	}
	return u
}
