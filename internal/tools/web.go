package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"google.golang.org/genai"

	"comfypilot/internal/security"
)

const (
	maxFetchBytes = 1 << 20
	maxPageChars  = 20000
	userAgent     = "comfypilot/1.0"
)

// WebConfig configures the web tools.
type WebConfig struct {
	// SearchURL is a SearXNG instance; webSearch is only offered when set.
	SearchURL string
	Client    *http.Client
	// Guard screens webFetch targets. Nil allows any http(s) URL.
	Guard *security.URLGuard
}

// WebTools returns webFetch and, when a search backend is configured, webSearch.
func WebTools(cfg WebConfig) []Definition {
	if cfg.Client == nil {
		cfg.Client = security.NewHTTPClient(30 * time.Second)
	}
	wt := &webTools{cfg: cfg}

	defs := []Definition{{
		Name:        "webFetch",
		Description: "Fetch a web page (model card, node pack README, example workflow) and return its text as markdown.",
		Parameters: object(map[string]*genai.Schema{
			"url":      stringProp("http or https URL"),
			"selector": stringProp("Optional element to extract: a tag name, .class or #id"),
		}, "url"),
		Kind:    KindRemote,
		Execute: Bind(wt.fetch),
	}}
	if cfg.SearchURL != "" {
		defs = append(defs, Definition{
			Name:        "webSearch",
			Description: "Search the web. Use for models, custom nodes or techniques not covered by templates or skills.",
			Parameters: object(map[string]*genai.Schema{
				"query": stringProp("Search query"),
				"limit": intProp("Number of results (default 5, max 10)", ptr(1.0)),
			}, "query"),
			Kind:    KindRemote,
			Execute: Bind(wt.search),
		})
	}
	return defs
}

type webTools struct {
	cfg WebConfig
}

type fetchParams struct {
	URL      string `json:"url"`
	Selector string `json:"selector"`
}

func (wt *webTools) fetch(ctx context.Context, p fetchParams) Result {
	if wt.cfg.Guard != nil {
		if err := wt.cfg.Guard.Check(ctx, p.URL); err != nil {
			return Errorf("url rejected: %s", err)
		}
	} else if u, err := url.Parse(p.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return NewErrorResult("url must be an http or https URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return Errorf("failed to create request: %s", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain,application/json;q=0.9,*/*;q=0.8")

	resp, err := wt.cfg.Client.Do(req)
	if err != nil {
		if r, ok := timedOut(ctx, "fetch"); ok {
			return r
		}
		return Errorf("failed to fetch URL: %s", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Errorf("HTTP %d fetching %s", resp.StatusCode, p.URL)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return Errorf("failed to read response: %s", err)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	var content string
	switch {
	case strings.Contains(contentType, "text/html"), strings.Contains(contentType, "application/xhtml"):
		content, err = htmlToMarkdown(string(body), p.Selector)
		if err != nil {
			return Errorf("failed to parse HTML: %s", err)
		}
	default:
		content = string(body)
	}

	truncated := false
	if len(content) > maxPageChars {
		content = content[:maxPageChars] + "\n\n... [truncated]"
		truncated = true
	}
	return NewSuccessResult(map[string]any{
		"url":          p.URL,
		"content_type": contentType,
		"content":      content,
		"truncated":    truncated,
	})
}

var (
	spaceRun   = regexp.MustCompile(`\s+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
)

var skipTags = map[string]bool{
	"script": true, "style": true, "nav": true, "footer": true,
	"header": true, "aside": true, "noscript": true, "iframe": true, "svg": true,
}

var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "tr": true, "br": true, "hr": true,
	"blockquote": true, "pre": true, "table": true,
}

var headingPrefix = map[string]string{
	"h1": "\n# ", "h2": "\n## ", "h3": "\n### ",
	"h4": "\n#### ", "h5": "\n##### ", "h6": "\n###### ",
}

// htmlToMarkdown renders the page body (or the first element matching
// selector) as markdown-like text.
func htmlToMarkdown(src, selector string) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", err
	}

	start := findNode(doc, func(n *html.Node) bool {
		return selector != "" && matchesSelector(n, selector)
	})
	if start == nil {
		start = findNode(doc, func(n *html.Node) bool { return n.Data == "body" })
	}
	if start == nil {
		start = doc
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		tag := ""
		if n.Type == html.ElementNode {
			tag = strings.ToLower(n.Data)
			if skipTags[tag] {
				return
			}
			if h, ok := headingPrefix[tag]; ok {
				sb.WriteString(h)
			}
			switch tag {
			case "li":
				sb.WriteString("\n- ")
			case "br":
				sb.WriteString("\n")
			case "hr":
				sb.WriteString("\n---\n")
			case "code":
				sb.WriteString("`")
			case "pre":
				sb.WriteString("\n```\n")
			case "strong", "b":
				sb.WriteString("**")
			case "p", "div", "section", "article", "blockquote":
				sb.WriteString("\n")
			}
		}
		if n.Type == html.TextNode {
			if text := spaceRun.ReplaceAllString(n.Data, " "); strings.TrimSpace(text) != "" {
				sb.WriteString(text)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		switch tag {
		case "code":
			sb.WriteString("`")
		case "pre":
			sb.WriteString("\n```\n")
		case "strong", "b":
			sb.WriteString("**")
		case "a":
			for _, attr := range n.Attr {
				if attr.Key == "href" && attr.Val != "" && !strings.HasPrefix(attr.Val, "#") && !strings.HasPrefix(attr.Val, "javascript:") {
					fmt.Fprintf(&sb, " (%s)", attr.Val)
					break
				}
			}
		}
		if blockTags[tag] {
			sb.WriteString("\n")
		}
	}
	walk(start)

	out := newlineRun.ReplaceAllString(sb.String(), "\n\n")
	return strings.TrimSpace(out), nil
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

// matchesSelector supports tag, .class and #id selectors.
func matchesSelector(n *html.Node, selector string) bool {
	selector = strings.TrimSpace(selector)
	switch {
	case strings.HasPrefix(selector, "."):
		for _, attr := range n.Attr {
			if attr.Key == "class" {
				for _, c := range strings.Fields(attr.Val) {
					if c == selector[1:] {
						return true
					}
				}
			}
		}
		return false
	case strings.HasPrefix(selector, "#"):
		for _, attr := range n.Attr {
			if attr.Key == "id" && attr.Val == selector[1:] {
				return true
			}
		}
		return false
	}
	return strings.EqualFold(n.Data, selector)
}

type searchParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// search queries a SearXNG instance through its JSON API.
func (wt *webTools) search(ctx context.Context, p searchParams) Result {
	limit := p.Limit
	if limit <= 0 {
		limit = 5
	}
	if limit > 10 {
		limit = 10
	}

	endpoint := strings.TrimRight(wt.cfg.SearchURL, "/") + "/search?" + url.Values{
		"q":      {p.Query},
		"format": {"json"},
	}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Errorf("failed to create request: %s", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := wt.cfg.Client.Do(req)
	if err != nil {
		if r, ok := timedOut(ctx, "search"); ok {
			return r
		}
		return Errorf("search failed: %s", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Errorf("search backend returned HTTP %d", resp.StatusCode)
	}

	var payload struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFetchBytes)).Decode(&payload); err != nil {
		return Errorf("failed to decode search results: %s", err)
	}

	results := make([]searchResult, 0, limit)
	for _, r := range payload.Results {
		if len(results) == limit {
			break
		}
		results = append(results, searchResult{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return NewSuccessResult(map[string]any{"query": p.Query, "results": results})
}
