package crawler

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Non-navigational href schemes that are never enqueued.
var skipHrefPrefixes = []string{"#", "javascript:", "mailto:", "tel:", "data:"}

// ExtractLinks parses markup and returns the absolute, normalized http(s)
// links found in anchor and area elements, in document order with duplicates
// removed. Parse failures yield an empty slice; a broken page is not an
// error, it simply has no crawlable links.
func ExtractLinks(body []byte, baseURL string) []string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "a" || n.Data == "area") {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				if normalized, ok := resolveHref(base, attr.Val); ok {
					if _, dup := seen[normalized]; !dup {
						seen[normalized] = struct{}{}
						links = append(links, normalized)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return links
}

func resolveHref(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, prefix := range skipHrefPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return "", false
		}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	absolute := base.ResolveReference(ref)
	if absolute.Scheme != "http" && absolute.Scheme != "https" {
		return "", false
	}

	normalized, err := NormalizeURL(absolute.String())
	if err != nil {
		return "", false
	}
	return normalized, true
}
