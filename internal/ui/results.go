package ui

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/notehunt/internal/searchindex"
)

// SearchResults is a query and its hits, best first.
type SearchResults struct {
	Query string            `json:"query"`
	Hits  []searchindex.Hit `json:"hits"`
}

// ResultsRenderer displays search results.
type ResultsRenderer struct {
	out    io.Writer
	styles Styles
	root   string
}

// NewResultsRenderer creates a results renderer. Paths under root are shown
// relative to it; root may be empty.
func NewResultsRenderer(out io.Writer, noColor bool, root string) *ResultsRenderer {
	return &ResultsRenderer{
		out:    out,
		styles: GetStyles(noColor),
		root:   root,
	}
}

// Render writes one numbered line per hit.
func (r *ResultsRenderer) Render(res SearchResults) error {
	if len(res.Hits) == 0 {
		_, _ = fmt.Fprintf(r.out, "No notes match %q\n", res.Query)
		return nil
	}

	noun := "notes"
	if len(res.Hits) == 1 {
		noun = "note"
	}
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render(fmt.Sprintf("%d %s for %q", len(res.Hits), noun, res.Query)))

	width := len(fmt.Sprintf("%d", len(res.Hits)))
	for i, hit := range res.Hits {
		_, _ = fmt.Fprintf(r.out, "  %*d. %s %s\n",
			width, i+1,
			r.styles.Value.Render(r.display(hit.Path)),
			r.styles.Score.Render(fmt.Sprintf("(%.3f)", hit.Score)))
	}
	return nil
}

// RenderJSON outputs results as JSON. Hits is never null.
func (r *ResultsRenderer) RenderJSON(res SearchResults) error {
	if res.Hits == nil {
		res.Hits = []searchindex.Hit{}
	}
	return writeJSON(r.out, res)
}

func (r *ResultsRenderer) display(path string) string {
	if r.root == "" {
		return path
	}
	rel, err := filepath.Rel(r.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}
