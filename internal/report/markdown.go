package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/webcrawler/internal/model"
)

// maxChartHosts caps the slices of the host pie chart.
const maxChartHosts = 8

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation, which gives us tables, collapsible details, GitHub alerts
// and mermaid charts without string templating.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeAlert(md, report)
	w.writeHosts(md, report)
	w.writeErrors(md, report)
	w.writeFetched(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteSummary outputs a table with one row per seed.
func (w *MarkdownWriter) WriteSummary(reports []*model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl Summary")
	md.PlainText("")

	reports = nonNil(reports)
	rows := make([][]string, len(reports))
	for i, r := range reports {
		rows[i] = []string{
			"`" + r.Seed + "`",
			strconv.Itoa(len(r.Fetched)),
			strconv.Itoa(r.ErrorCount()),
			r.Duration().Round(time.Millisecond).String(),
			statusText(r),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Seed", "Fetched", "Errors", "Duration", "Status"},
		Rows:   rows,
	})
	md.PlainText("")
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with crawl information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.CrawlReport) {
	md.H1("Crawl Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seed", "`" + report.Seed + "`"},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", report.Duration().Round(time.Millisecond).String()},
			{"Depth", strconv.Itoa(report.Depth)},
			{"Downloaders / Extractors / Per host", strconv.Itoa(report.Downloaders) + " / " +
				strconv.Itoa(report.Extractors) + " / " + strconv.Itoa(report.PerHost)},
			{"Pages Fetched", strconv.Itoa(len(report.Fetched))},
			{"Status", w.getStatusText(report)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *model.CrawlReport) string {
	switch {
	case report.Cancelled:
		return "⚠️ Cancelled (partial results)"
	case report.Error != "":
		return "❌ Error - " + report.Error
	default:
		return "✅ Complete"
	}
}

// writeAlert writes an alert matching how the crawl went.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.CrawlReport) {
	switch {
	case report.Cancelled:
		md.Warningf("The crawl was interrupted. %d page(s) were fetched before it stopped.", len(report.Fetched))
	case report.Error != "":
		md.Cautionf("The crawl failed: %s", report.Error)
	case report.ErrorCount() > 0:
		md.Importantf("%d address(es) could not be fetched or read.", report.ErrorCount())
	default:
		md.Tip("Every address was fetched and read.")
	}
	md.PlainText("")
}

// writeHosts writes page counts per host and, for multi-host crawls, a pie
// chart of them.
func (w *MarkdownWriter) writeHosts(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("Hosts")
	md.PlainText("")

	hosts := report.HostSummary()
	if len(hosts) == 0 {
		md.PlainText("No pages fetched.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(hosts))
	for i, h := range hosts {
		rows[i] = []string{h.Host, strconv.Itoa(h.Pages)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Host", "Pages"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(hosts) > 1 {
		w.writePieChart(md, hosts)
	}
}

// writePieChart writes a mermaid pie chart of pages per host. Hosts past
// maxChartHosts are folded into one slice.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, hosts []model.HostCount) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Pages per Host"),
		piechart.WithShowData(true),
	)

	var other uint64
	for i, h := range hosts {
		if i < maxChartHosts {
			chart.LabelAndIntValue(h.Host, uint64(h.Pages))
			continue
		}
		other += uint64(h.Pages)
	}
	if other > 0 {
		chart.LabelAndIntValue("other", other)
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeErrors writes a table of every error.
func (w *MarkdownWriter) writeErrors(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("Errors")
	md.PlainText("")

	entries := report.SortedErrors()
	if len(entries) == 0 {
		md.PlainText("No errors.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{
			truncateString(e.Address, 60),
			string(e.Kind),
			truncateString(strings.ReplaceAll(e.Message, "|", "\\|"), 80),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Address", "Kind", "Message"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFetched writes the fetched addresses in a collapsible block.
func (w *MarkdownWriter) writeFetched(md *markdown.Markdown, report *model.CrawlReport) {
	if len(report.Fetched) == 0 {
		return
	}
	md.H2("Fetched")
	md.PlainText("")
	md.Details(strconv.Itoa(len(report.Fetched))+" address(es)", strings.Join(report.Fetched, "\n"))
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [webcrawler](https://github.com/nao1215/webcrawler)*")
}
