package platformtools

import (
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionKey_IsStableAndURLSpecific(t *testing.T) {
	a := sessionKey("https://example.com/a")
	b := sessionKey("https://example.com/b")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, sessionKey("https://example.com/a"))
	assert.True(t, strings.HasPrefix(a, "web_session:"))
}

func TestWeb_Page_PaginatesWithoutOverlap(t *testing.T) {
	w := &Web{}
	session := webSession{Markdown: strings.Repeat("a", pageSizeBytes+10)}

	first := w.page(session, 0)
	second := w.page(session, 1)

	assert.Len(t, first, pageSizeBytes)
	assert.Len(t, second, 10)
}

func TestWeb_Page_OutOfRangeReturnsEmpty(t *testing.T) {
	w := &Web{}
	session := webSession{Markdown: "short"}
	assert.Equal(t, "", w.page(session, 5))
}

func TestExtractResultLinks_ParsesDuckDuckGoResultAnchors(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`
		<html><body>
			<div class="results">
				<a class="result__a" href="https://go.dev">The Go Programming Language</a>
				<a class="result__snippet" href="https://go.dev">ignored, not a result link</a>
				<a class="result__a" href="https://pkg.go.dev">Go Packages</a>
			</div>
		</body></html>
	`))
	require.NoError(t, err)

	results := extractResultLinks(doc, 10)
	require.Len(t, results, 2)
	assert.Equal(t, "The Go Programming Language", results[0].Title)
	assert.Equal(t, "https://go.dev", results[0].URL)
	assert.Equal(t, "Go Packages", results[1].Title)
}

func TestExtractResultLinks_RespectsLimit(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`
		<a class="result__a" href="https://a.com">a</a>
		<a class="result__a" href="https://b.com">b</a>
		<a class="result__a" href="https://c.com">c</a>
	`))
	require.NoError(t, err)

	results := extractResultLinks(doc, 2)
	assert.Len(t, results, 2)
}
