package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractLinksResolvesAndNormalizes(t *testing.T) {
	page := []byte(`
		<html><body>
			<a href="/about/">About</a>
			<a href="page2?b=2&amp;a=1#frag">Next</a>
			<a href="https://Other.COM/x/">Elsewhere</a>
		</body></html>`)

	links := ExtractLinks(page, "https://example.org/start")
	require.Equal(t, []string{
		"https://example.org/about",
		"https://example.org/page2?a=1&b=2",
		"https://other.com/x",
	}, links)
}

func TestExtractLinksSkipsNonNavigationalSchemes(t *testing.T) {
	page := []byte(`
		<a href="#section">anchor</a>
		<a href="javascript:void(0)">js</a>
		<a href="mailto:bob@example.org">mail</a>
		<a href="tel:+12125551212">phone</a>
		<a href="data:text/plain,hi">data</a>
		<a href="ftp://example.org/file">ftp</a>
		<a href="/real">real</a>`)

	links := ExtractLinks(page, "https://example.org/")
	require.Equal(t, []string{"https://example.org/real"}, links)
}

func TestExtractLinksProtocolRelative(t *testing.T) {
	page := []byte(`<a href="//cdn.example.org/lib.html">lib</a>`)
	links := ExtractLinks(page, "https://example.org/")
	require.Equal(t, []string{"https://cdn.example.org/lib.html"}, links)
}

func TestExtractLinksDeduplicates(t *testing.T) {
	page := []byte(`
		<a href="/a">one</a>
		<a href="/a/">same after normalization</a>
		<a href="/a#top">same again</a>
		<a href="/b">two</a>`)

	links := ExtractLinks(page, "http://example.org/")
	require.Equal(t, []string{"http://example.org/a", "http://example.org/b"}, links)
}

func TestExtractLinksEmptyAndBrokenMarkup(t *testing.T) {
	require.Empty(t, ExtractLinks(nil, "http://example.org/"))

	// The html parser is tolerant; truncated markup still yields what it can.
	links := ExtractLinks([]byte(`<a href="/ok"><div><a href=`), "http://example.org/")
	require.Equal(t, []string{"http://example.org/ok"}, links)
}

func TestExtractLinksAreaElements(t *testing.T) {
	page := []byte(`<map><area href="/mapped" alt="m"></map>`)
	links := ExtractLinks(page, "http://example.org/")
	require.Equal(t, []string{"http://example.org/mapped"}, links)
}
