package ui

import (
	"fmt"
	"io"
	"time"
)

// CrawlSummary reports one crawl and reconcile pass.
type CrawlSummary struct {
	Root     string        `json:"root"`
	Observed int           `json:"observed"`
	Merged   int64         `json:"merged"`
	Deleted  int64         `json:"deleted"`
	Duration time.Duration `json:"duration_ns"`
}

// IndexSummary reports one indexing run.
type IndexSummary struct {
	RunID    string        `json:"run_id"`
	Pending  int           `json:"pending"`
	Indexed  int           `json:"indexed"`
	Failed   int           `json:"failed"`
	Batches  int           `json:"batches"`
	Duration time.Duration `json:"duration_ns"`
}

// SummaryRenderer prints the one-line results of crawl, index, reindex and
// purge.
type SummaryRenderer struct {
	out    io.Writer
	styles Styles
}

// NewSummaryRenderer creates a summary renderer.
func NewSummaryRenderer(out io.Writer, noColor bool) *SummaryRenderer {
	return &SummaryRenderer{out: out, styles: GetStyles(noColor)}
}

// Crawl writes a crawl summary.
func (r *SummaryRenderer) Crawl(s CrawlSummary) {
	_, _ = fmt.Fprintf(r.out, "%s %s: %d observed, %d merged, %d deleted %s\n",
		r.styles.Success.Render("Crawled"), s.Root,
		s.Observed, s.Merged, s.Deleted,
		r.styles.Dim.Render("in "+formatDuration(s.Duration)))
}

// Index writes an indexing summary. Failures are highlighted.
func (r *SummaryRenderer) Index(s IndexSummary) {
	if s.Pending == 0 {
		_, _ = fmt.Fprintln(r.out, "Nothing to index")
		return
	}
	failed := fmt.Sprintf("%d failed", s.Failed)
	if s.Failed > 0 {
		failed = r.styles.Error.Render(failed)
	}
	_, _ = fmt.Fprintf(r.out, "%s %d of %d files in %d batches, %s %s\n",
		r.styles.Success.Render("Indexed"), s.Indexed, s.Pending, s.Batches, failed,
		r.styles.Dim.Render("in "+formatDuration(s.Duration)))
}

// Count writes "<action> <n> files".
func (r *SummaryRenderer) Count(action string, n int64) {
	noun := "files"
	if n == 1 {
		noun = "file"
	}
	_, _ = fmt.Fprintf(r.out, "%s %d %s\n", r.styles.Success.Render(action), n, noun)
}

// JSON writes v as indented JSON.
func (r *SummaryRenderer) JSON(v any) error {
	return writeJSON(r.out, v)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return d.String()
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(10 * time.Millisecond).String()
	}
}
