package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/webcrawler/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section
// formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors so the output can be piped to files or other tools unchanged.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with nothing to list are shown.
	showEmpty bool

	// verbose lists every fetched address.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with every fetched address.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.CrawlReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeHosts(&sb, report)
	w.writeFetched(&sb, report)
	w.writeErrors(&sb, report)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// WriteSummary outputs one line per seed.
func (w *SimpleWriter) WriteSummary(reports []*model.CrawlReport) (int, error) {
	var sb strings.Builder

	writeRule(&sb, "=")
	sb.WriteString("                          CRAWL SUMMARY\n")
	writeRule(&sb, "=")
	sb.WriteString("\n")

	var fetched, failed int
	for _, r := range nonNil(reports) {
		fetched += len(r.Fetched)
		failed += r.ErrorCount()
		fmt.Fprintf(&sb, "  %-40s %5d fetched %5d errors  %s\n",
			truncateString(r.Seed, 40), len(r.Fetched), r.ErrorCount(), statusText(r))
	}

	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  TOTAL: %d seeds, %d fetched, %d errors\n", len(nonNil(reports)), fetched, failed)
	writeRule(&sb, "=")

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with crawl information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.CrawlReport) {
	sb.WriteString("\n")
	writeRule(sb, "=")
	sb.WriteString("                          CRAWL REPORT\n")
	writeRule(sb, "=")
	sb.WriteString("\n")

	fmt.Fprintf(sb, "Seed:           %s\n", report.Seed)
	fmt.Fprintf(sb, "Started:        %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:       %s\n", report.Duration().Round(time.Millisecond))
	fmt.Fprintf(sb, "Depth:          %d\n", report.Depth)
	fmt.Fprintf(sb, "Workers:        %d downloaders, %d extractors, %d per host\n",
		report.Downloaders, report.Extractors, report.PerHost)
	fmt.Fprintf(sb, "Pages Fetched:  %d\n", len(report.Fetched))
	fmt.Fprintf(sb, "Errors:         %d fetch, %d extraction\n", len(report.Errors), len(report.ExtractionErrors))
	fmt.Fprintf(sb, "Status:         %s\n", statusText(report))
	sb.WriteString("\n")
}

// writeHosts writes the per-host page counts.
func (w *SimpleWriter) writeHosts(sb *strings.Builder, report *model.CrawlReport) {
	hosts := report.HostSummary()
	if len(hosts) == 0 && !w.showEmpty {
		return
	}

	writeSection(sb, "HOSTS")
	if len(hosts) == 0 {
		sb.WriteString("  No hosts\n")
	}
	for _, h := range hosts {
		fmt.Fprintf(sb, "  %-50s %d\n", h.Host, h.Pages)
	}
	sb.WriteString("\n")
}

// writeFetched lists fetched addresses in verbose mode.
func (w *SimpleWriter) writeFetched(sb *strings.Builder, report *model.CrawlReport) {
	if !w.verbose {
		return
	}
	if len(report.Fetched) == 0 && !w.showEmpty {
		return
	}

	writeSection(sb, "FETCHED")
	if len(report.Fetched) == 0 {
		sb.WriteString("  Nothing fetched\n")
	}
	for _, address := range report.Fetched {
		fmt.Fprintf(sb, "  [+] %s\n", address)
	}
	sb.WriteString("\n")
}

// writeErrors writes every error ordered by address.
func (w *SimpleWriter) writeErrors(sb *strings.Builder, report *model.CrawlReport) {
	entries := report.SortedErrors()
	if len(entries) == 0 && !w.showEmpty {
		return
	}

	writeSection(sb, "ERRORS")
	if len(entries) == 0 {
		sb.WriteString("  No errors\n")
	}
	for _, e := range entries {
		indicator := "!"
		if e.Kind == model.ErrorKindExtraction {
			indicator = "?"
		}
		fmt.Fprintf(sb, "  [%s] %s\n", indicator, e.Address)
		fmt.Fprintf(sb, "      %s\n", e.Message)
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	writeRule(sb, "=")
	sb.WriteString("Report generated by webcrawler\n")
	sb.WriteString("https://github.com/nao1215/webcrawler\n")
	writeRule(sb, "=")
}

func writeSection(sb *strings.Builder, title string) {
	writeRule(sb, "-")
	sb.WriteString(title)
	sb.WriteString("\n")
	writeRule(sb, "-")
	sb.WriteString("\n")
}

func writeRule(sb *strings.Builder, char string) {
	sb.WriteString(strings.Repeat(char, 70))
	sb.WriteString("\n")
}
