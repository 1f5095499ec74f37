package ui

import (
	"fmt"
	"io"

	"github.com/Aman-CERP/notehunt/internal/model"
)

// StatusInfo describes the state table and the search index.
type StatusInfo struct {
	Root      string `json:"root"`
	DataDir   string `json:"data_dir"`
	Backend   string `json:"backend"`
	IndexPath string `json:"index_path"`

	// Counts has one entry per status, zero included.
	Counts  map[model.FileStatus]int64 `json:"counts"`
	Tracked int64                      `json:"tracked"`

	IndexedDocuments int   `json:"indexed_documents"`
	IndexSize        int64 `json:"index_size"`

	// IndexUnavailable is set when another process holds an exclusive index.
	IndexUnavailable bool `json:"index_unavailable,omitempty"`
}

// StatusRenderer displays the status report.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render writes the report as text.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("notehunt status"))

	r.line("Root", info.Root)
	r.line("Data dir", info.DataDir)
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Files:")
	for _, st := range model.AllStatuses {
		_, _ = fmt.Fprintf(r.out, "    %s %s\n",
			r.styles.Label.Render(fmt.Sprintf("%-11s", st)),
			r.renderCount(st, info.Counts[st]))
	}
	_, _ = fmt.Fprintf(r.out, "    %s %d\n", r.styles.Label.Render(fmt.Sprintf("%-11s", "Tracked")), info.Tracked)
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Index:")
	_, _ = fmt.Fprintf(r.out, "    Backend:   %s\n", info.Backend)
	_, _ = fmt.Fprintf(r.out, "    Path:      %s\n", info.IndexPath)
	if info.IndexUnavailable {
		_, _ = fmt.Fprintf(r.out, "    Documents: %s\n", r.styles.Warning.Render("unavailable (in use by another process)"))
		return nil
	}
	_, _ = fmt.Fprintf(r.out, "    Documents: %d\n", info.IndexedDocuments)
	_, _ = fmt.Fprintf(r.out, "    Size:      %s\n", FormatBytes(info.IndexSize))
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	return writeJSON(r.out, info)
}

func (r *StatusRenderer) line(label, value string) {
	_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.styles.Label.Render(fmt.Sprintf("%-9s", label+":")), value)
}

// renderCount colors non-zero counts that need attention.
func (r *StatusRenderer) renderCount(st model.FileStatus, n int64) string {
	text := fmt.Sprintf("%d", n)
	if n == 0 {
		return text
	}
	switch st {
	case model.StatusComplete:
		return r.styles.Success.Render(text)
	case model.StatusPending, model.StatusInProgress:
		return r.styles.Warning.Render(text)
	case model.StatusError:
		return r.styles.Error.Render(text)
	default:
		return text
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
