package platformtools

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/go-shiori/go-readability"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
)

// pageSizeBytes is the pagination unit for web_read/web_scroll, per spec
// §4.4's requirement that long pages be paginated rather than dumped whole.
const pageSizeBytes = 4096

// Web implements web_read, web_scroll, and web_search (spec §4.4), grounded
// on the readability+html-to-markdown pipeline adopted from the pack's
// intelligencedev-manifold repo. Fetched pages are cached in Redis under
// web_session:{md5(url)} so a read followed by several scrolls only fetches
// the page once.
type Web struct {
	Redis      *redis.Client
	HTTPClient *http.Client
	CacheTTL   time.Duration
}

func NewWeb(redisClient *redis.Client) *Web {
	return &Web{Redis: redisClient, HTTPClient: &http.Client{Timeout: 15 * time.Second}, CacheTTL: time.Hour}
}

// --- web_read ---

type WebRead struct{ *Web }

func (h WebRead) Name() string { return "web_read" }

type webReadArgs struct {
	URL string `json:"url"`
}

func (h WebRead) Invoke(ctx context.Context, workspaceId string, args map[string]interface{}) (string, bool, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return "missing required argument: url", true, nil
	}
	session, err := h.Web.loadOrFetch(ctx, url)
	if err != nil {
		return "", false, err
	}
	return h.Web.page(session, 0), false, nil
}

// --- web_scroll ---

type WebScroll struct{ *Web }

func (h WebScroll) Name() string { return "web_scroll" }

func (h WebScroll) Invoke(ctx context.Context, workspaceId string, args map[string]interface{}) (string, bool, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return "missing required argument: url", true, nil
	}
	pageIndex := 0
	if v, ok := args["page"].(float64); ok {
		pageIndex = int(v)
	}
	session, err := h.Web.loadOrFetch(ctx, url)
	if err != nil {
		return "", false, err
	}
	return h.Web.page(session, pageIndex), false, nil
}

// webSession is the cached, already-converted form of a fetched page.
type webSession struct {
	URL      string `json:"url"`
	Markdown string `json:"markdown"`
}

func (w *Web) loadOrFetch(ctx context.Context, url string) (webSession, error) {
	key := sessionKey(url)

	if w.Redis != nil {
		raw, err := w.Redis.Get(ctx, key).Result()
		if err == nil {
			var session webSession
			if jsonErr := json.Unmarshal([]byte(raw), &session); jsonErr == nil {
				return session, nil
			}
		} else if err != redis.Nil {
			log.Warn().Err(err).Str("url", url).Msg("redis web session cache read failed")
		}
	}

	markdown, err := w.fetchAndConvert(ctx, url)
	if err != nil {
		return webSession{}, err
	}
	session := webSession{URL: url, Markdown: markdown}

	if w.Redis != nil {
		if raw, jsonErr := json.Marshal(session); jsonErr == nil {
			if err := w.Redis.Set(ctx, key, raw, w.ttl()).Err(); err != nil {
				log.Warn().Err(err).Msg("failed to populate web session redis cache")
			}
		}
	}
	return session, nil
}

func (w *Web) fetchAndConvert(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := w.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), nil)
	if err != nil {
		// readability couldn't extract an article; fall back to converting the raw body
		markdown, convErr := htmltomarkdown.ConvertString(string(body))
		if convErr != nil {
			return "", fmt.Errorf("failed to extract or convert page: %w", err)
		}
		return markdown, nil
	}

	markdown, err := htmltomarkdown.ConvertString(article.Content)
	if err != nil {
		return "", fmt.Errorf("failed to convert article to markdown: %w", err)
	}
	return markdown, nil
}

func (w *Web) page(session webSession, index int) string {
	start := index * pageSizeBytes
	if start >= len(session.Markdown) {
		return ""
	}
	end := start + pageSizeBytes
	if end > len(session.Markdown) {
		end = len(session.Markdown)
	}
	return session.Markdown[start:end]
}

func (w *Web) client() *http.Client {
	if w.HTTPClient != nil {
		return w.HTTPClient
	}
	return http.DefaultClient
}

func (w *Web) ttl() time.Duration {
	if w.CacheTTL > 0 {
		return w.CacheTTL
	}
	return time.Hour
}

func sessionKey(url string) string {
	sum := md5.Sum([]byte(url))
	return "web_session:" + hex.EncodeToString(sum[:])
}

// --- web_search ---

// WebSearch parses a DuckDuckGo HTML results page (no API key required).
type WebSearch struct{ *Web }

func (h WebSearch) Name() string { return "web_search" }

func (h WebSearch) Invoke(ctx context.Context, workspaceId string, args map[string]interface{}) (string, bool, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return "missing required argument: query", true, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://html.duckduckgo.com/html/?q="+url.QueryEscape(query), nil)
	if err != nil {
		return "", false, err
	}
	resp, err := h.Web.client().Do(req)
	if err != nil {
		return "", false, fmt.Errorf("failed to reach duckduckgo: %w", err)
	}
	defer resp.Body.Close()

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("failed to parse search results: %w", err)
	}

	results := extractResultLinks(doc, 10)
	out, err := json.Marshal(results)
	if err != nil {
		return "", false, err
	}
	return string(out), false, nil
}

type searchResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// extractResultLinks walks the parsed DOM for DuckDuckGo's result anchor
// class ("result__a"), collecting up to limit (title, url) pairs.
func extractResultLinks(n *html.Node, limit int) []searchResult {
	var results []searchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "class" && strings.Contains(attr.Val, "result__a") {
					href := attrVal(n, "href")
					title := textContent(n)
					if href != "" && title != "" {
						results = append(results, searchResult{Title: title, URL: href})
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return results
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
