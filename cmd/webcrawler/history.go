package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/webcrawler/internal/config"
	"github.com/nao1215/webcrawler/internal/database"
	"github.com/nao1215/webcrawler/internal/model"
	"github.com/nao1215/webcrawler/internal/report"
)

// Constants for change directions.
const (
	directionGrew      = "grew"
	directionShrank    = "shrank"
	directionUnchanged = "unchanged"
)

// NewHistoryCmd creates the history command.
// This command shows crawl reports stored in the history database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [url]",
		Short: "Show and compare stored crawl reports",
		Long: `History shows crawl reports saved by 'webcrawler crawl'.

Without flags it lists the stored crawls of a seed, newest first. With --id
it prints one stored report, and with --diff it compares the latest crawl of
a seed with the one before it (or with --with-id) and lists the addresses
and errors that appeared or disappeared.

Examples:
  # List all seeds with stored crawls
  webcrawler history --list-seeds

  # List stored crawls of a seed
  webcrawler history https://example.com/

  # Print a stored report as Markdown
  webcrawler history --id 5 -m

  # Compare the latest two crawls of a seed
  webcrawler history --diff https://example.com/

  # Compare the latest crawl with a specific stored crawl as JSON
  webcrawler history --diff --with-id 3 -j https://example.com/`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list-seeds", "L", false,
		"List all seeds with stored crawls")
	cmd.Flags().Int64P("id", "i", 0,
		"Print the stored report with this ID")
	cmd.Flags().BoolP("diff", "D", false,
		"Compare the latest crawl of the seed with the previous one")
	cmd.Flags().Int64("with-id", 0,
		"With --diff, compare against the stored report with this ID")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output in Markdown format")

	return cmd
}

// historyOptions are the parsed flags of the history command.
type historyOptions struct {
	listSeeds bool
	id        int64
	diff      bool
	withID    int64
	dbDir     string
	json      bool
	markdown  bool
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseHistoryFlags(cmd)
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	var seed string
	if len(args) == 1 {
		seed, err = normalizeSeed(args[0])
		if err != nil {
			return err
		}
	}
	if seed == "" && !opts.listSeeds && opts.id == 0 {
		return errors.New("seed address is required (use --list-seeds to see stored seeds)")
	}
	if opts.json && opts.markdown {
		return config.ErrConflictingReportFormats
	}

	db, err := database.Open(opts.dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return fmt.Errorf("no crawl history available: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	switch {
	case opts.listSeeds:
		return listSeeds(ctx, db, out)
	case opts.id != 0 && !opts.diff:
		return showReport(ctx, db, opts, out)
	case opts.diff:
		return runDiff(ctx, db, seed, opts, out)
	default:
		return listHistory(ctx, db, seed, out)
	}
}

// parseHistoryFlags reads the history command flags.
func parseHistoryFlags(cmd *cobra.Command) (*historyOptions, error) {
	flags := cmd.Flags()
	opts := &historyOptions{}

	var err error
	if opts.listSeeds, err = flags.GetBool("list-seeds"); err != nil {
		return nil, err
	}
	if opts.id, err = flags.GetInt64("id"); err != nil {
		return nil, err
	}
	if opts.diff, err = flags.GetBool("diff"); err != nil {
		return nil, err
	}
	if opts.withID, err = flags.GetInt64("with-id"); err != nil {
		return nil, err
	}
	if opts.dbDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if opts.dbDir == "" {
		opts.dbDir = config.XDGDataDir()
	}
	if opts.json, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if opts.markdown, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	return opts, nil
}

// listSeeds lists every seed with stored crawls.
func listSeeds(ctx context.Context, db *database.CrawlDB, out io.Writer) error {
	seeds, err := db.ListSeeds(ctx)
	if err != nil {
		return fmt.Errorf("failed to list seeds: %w", err)
	}

	if len(seeds) == 0 {
		fmt.Fprintln(out, "No crawls found in the database.")
		fmt.Fprintln(out, "\nUse 'webcrawler crawl <url>' to crawl a site.")
		return nil
	}

	fmt.Fprintf(out, "Crawled seeds (%d):\n\n", len(seeds))
	for _, seed := range seeds {
		fmt.Fprintf(out, "  • %s\n", seed)
	}
	fmt.Fprintln(out, "\nUse 'webcrawler history <url>' to see the crawls of a seed.")

	return nil
}

// listHistory lists the stored crawls of seed, newest first.
func listHistory(ctx context.Context, db *database.CrawlDB, seed string, out io.Writer) error {
	entries, err := db.GetCrawlHistoryWithMetadata(ctx, seed)
	if err != nil {
		return fmt.Errorf("failed to get crawl history: %w", err)
	}

	if len(entries) == 0 {
		fmt.Fprintf(out, "No crawl history found for %s\n", seed)
		return nil
	}

	fmt.Fprintf(out, "Crawl history for %s (%d crawls):\n\n", seed, len(entries))
	fmt.Fprintf(out, "  %-6s  %-20s  %8s  %7s  %s\n", "ID", "Date", "Fetched", "Errors", "Status")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 60))

	for _, meta := range entries {
		status := "complete"
		if meta.Cancelled {
			status = "cancelled"
		}
		fmt.Fprintf(out, "  %-6d  %-20s  %8d  %7d  %s\n",
			meta.ID,
			meta.Timestamp.Format("2006-01-02 15:04:05"),
			meta.Fetched,
			meta.Errors,
			status,
		)
	}

	fmt.Fprintln(out, "\nUse 'webcrawler history --id <id>' to print a stored report.")
	fmt.Fprintln(out, "Use 'webcrawler history --diff <url>' to compare the latest two crawls.")

	return nil
}

// showReport prints one stored report with the report writers.
func showReport(ctx context.Context, db *database.CrawlDB, opts *historyOptions, out io.Writer) error {
	stored, err := db.GetCrawlReportByID(ctx, opts.id)
	if err != nil {
		return fmt.Errorf("failed to get report %d: %w", opts.id, err)
	}
	if stored == nil {
		return fmt.Errorf("report with ID %d not found", opts.id)
	}

	var w report.Writer
	switch {
	case opts.json:
		w = report.NewJSONWriter(out, report.WithPrettyPrint())
	case opts.markdown:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out, report.WithVerbose(true))
	}
	_, err = w.Write(stored)
	return err
}

// runDiff compares the latest crawl of seed with an earlier one.
func runDiff(ctx context.Context, db *database.CrawlDB, seed string, opts *historyOptions, out io.Writer) error {
	if seed == "" {
		return errors.New("seed address is required with --diff")
	}

	reports, err := db.GetCrawlHistory(ctx, seed)
	if err != nil {
		return fmt.Errorf("failed to get crawl history: %w", err)
	}
	if len(reports) == 0 {
		return fmt.Errorf("no crawl history found for %s", seed)
	}

	current := reports[0]
	var previous *model.CrawlReport

	if opts.withID != 0 {
		previous, err = db.GetCrawlReportByID(ctx, opts.withID)
		if err != nil {
			return fmt.Errorf("failed to get report %d: %w", opts.withID, err)
		}
		if previous == nil {
			return fmt.Errorf("report with ID %d not found", opts.withID)
		}
		if previous.Seed != seed {
			return fmt.Errorf("report %d belongs to %s, not %s", opts.withID, previous.Seed, seed)
		}
	} else {
		if len(reports) < 2 {
			return fmt.Errorf("at least 2 crawls are required for comparison (found %d)", len(reports))
		}
		previous = reports[1]
	}

	diff := compareReports(previous, current)

	switch {
	case opts.json:
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(diff)
	case opts.markdown:
		return writeDiffMarkdown(out, diff)
	default:
		return writeDiffText(out, diff)
	}
}

// CrawlDiff is the difference between two crawls of one seed.
type CrawlDiff struct {
	// Seed is the address both crawls started from.
	Seed string `json:"seed"`

	// Previous and Current describe the two crawls.
	Previous CrawlMetadata `json:"previous"`
	Current  CrawlMetadata `json:"current"`

	// NewAddresses were fetched only by the current crawl.
	NewAddresses []string `json:"new_addresses,omitempty"`

	// GoneAddresses were fetched only by the previous crawl.
	GoneAddresses []string `json:"gone_addresses,omitempty"`

	// NewErrors are addresses failing only in the current crawl.
	NewErrors []model.ErrorEntry `json:"new_errors,omitempty"`

	// ResolvedErrors are addresses failing only in the previous crawl.
	ResolvedErrors []model.ErrorEntry `json:"resolved_errors,omitempty"`

	// UnchangedCount is the number of addresses fetched by both crawls.
	UnchangedCount int `json:"unchanged_count"`

	// Direction says whether the set of fetched pages grew or shrank.
	Direction string `json:"direction"`
}

// CrawlMetadata summarizes one crawl for comparison display.
type CrawlMetadata struct {
	ID        int64     `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Depth     int       `json:"depth"`
	Fetched   int       `json:"fetched"`
	Errors    int       `json:"errors"`
	Cancelled bool      `json:"cancelled,omitempty"`
}

func newCrawlMetadata(r *model.CrawlReport) CrawlMetadata {
	return CrawlMetadata{
		ID:        r.ID,
		StartedAt: r.StartedAt,
		Depth:     r.Depth,
		Fetched:   len(r.Fetched),
		Errors:    r.ErrorCount(),
		Cancelled: r.Cancelled,
	}
}

// compareReports compares two crawls of the same seed.
func compareReports(previous, current *model.CrawlReport) *CrawlDiff {
	diff := &CrawlDiff{
		Seed:     current.Seed,
		Previous: newCrawlMetadata(previous),
		Current:  newCrawlMetadata(current),
	}

	previousFetched := make(map[string]bool, len(previous.Fetched))
	for _, address := range previous.Fetched {
		previousFetched[address] = true
	}
	currentFetched := make(map[string]bool, len(current.Fetched))
	for _, address := range current.Fetched {
		currentFetched[address] = true
		if previousFetched[address] {
			diff.UnchangedCount++
		} else {
			diff.NewAddresses = append(diff.NewAddresses, address)
		}
	}
	for _, address := range previous.Fetched {
		if !currentFetched[address] {
			diff.GoneAddresses = append(diff.GoneAddresses, address)
		}
	}
	slices.Sort(diff.NewAddresses)
	slices.Sort(diff.GoneAddresses)

	previousErrors := errorKeys(previous)
	currentErrors := errorKeys(current)
	for _, e := range current.SortedErrors() {
		if !previousErrors[errorKey(e)] {
			diff.NewErrors = append(diff.NewErrors, e)
		}
	}
	for _, e := range previous.SortedErrors() {
		if !currentErrors[errorKey(e)] {
			diff.ResolvedErrors = append(diff.ResolvedErrors, e)
		}
	}

	switch {
	case len(current.Fetched) > len(previous.Fetched):
		diff.Direction = directionGrew
	case len(current.Fetched) < len(previous.Fetched):
		diff.Direction = directionShrank
	default:
		diff.Direction = directionUnchanged
	}

	return diff
}

// errorKey identifies an error across crawls. The message is left out so
// a page failing with a different status is not reported as resolved.
func errorKey(e model.ErrorEntry) string {
	return string(e.Kind) + "|" + e.Address
}

func errorKeys(r *model.CrawlReport) map[string]bool {
	keys := make(map[string]bool, r.ErrorCount())
	for _, e := range r.SortedErrors() {
		keys[errorKey(e)] = true
	}
	return keys
}

// writeDiffText writes the comparison in human-readable form.
func writeDiffText(out io.Writer, diff *CrawlDiff) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Crawl comparison for %s\n\n", diff.Seed)
	fmt.Fprintf(&sb, "  %-10s  %-20s  %8s  %7s\n", "", "Started", "Fetched", "Errors")
	fmt.Fprintf(&sb, "  %-10s  %-20s  %8d  %7d\n", fmt.Sprintf("#%d", diff.Previous.ID),
		diff.Previous.StartedAt.Format("2006-01-02 15:04:05"), diff.Previous.Fetched, diff.Previous.Errors)
	fmt.Fprintf(&sb, "  %-10s  %-20s  %8d  %7d\n", fmt.Sprintf("#%d", diff.Current.ID),
		diff.Current.StartedAt.Format("2006-01-02 15:04:05"), diff.Current.Fetched, diff.Current.Errors)
	fmt.Fprintf(&sb, "\nThe crawl %s (%s fetched, %d unchanged).\n",
		diff.Direction, formatDelta(diff.Current.Fetched-diff.Previous.Fetched), diff.UnchangedCount)

	writeAddressList(&sb, "New addresses", diff.NewAddresses)
	writeAddressList(&sb, "Gone addresses", diff.GoneAddresses)
	writeErrorList(&sb, "New errors", diff.NewErrors)
	writeErrorList(&sb, "Resolved errors", diff.ResolvedErrors)

	_, err := io.WriteString(out, sb.String())
	return err
}

func writeAddressList(sb *strings.Builder, title string, addresses []string) {
	if len(addresses) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n%s (%d):\n", title, len(addresses))
	for _, address := range addresses {
		fmt.Fprintf(sb, "  %s\n", address)
	}
}

func writeErrorList(sb *strings.Builder, title string, entries []model.ErrorEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n%s (%d):\n", title, len(entries))
	for _, e := range entries {
		fmt.Fprintf(sb, "  [%s] %s: %s\n", e.Kind, e.Address, e.Message)
	}
}

// writeDiffMarkdown writes the comparison as Markdown.
func writeDiffMarkdown(out io.Writer, diff *CrawlDiff) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Crawl Comparison: %s\n\n", diff.Seed)
	fmt.Fprintf(&sb, "**Fetched pages:** %s\n\n", diff.Direction)
	sb.WriteString("| Metric | Previous | Current | Change |\n")
	sb.WriteString("|--------|----------|---------|--------|\n")
	fmt.Fprintf(&sb, "| Report | #%d | #%d | - |\n", diff.Previous.ID, diff.Current.ID)
	fmt.Fprintf(&sb, "| Started | %s | %s | - |\n",
		diff.Previous.StartedAt.Format("2006-01-02 15:04"),
		diff.Current.StartedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&sb, "| Fetched | %d | %d | %s |\n",
		diff.Previous.Fetched, diff.Current.Fetched, formatDelta(diff.Current.Fetched-diff.Previous.Fetched))
	fmt.Fprintf(&sb, "| Errors | %d | %d | %s |\n\n",
		diff.Previous.Errors, diff.Current.Errors, formatDelta(diff.Current.Errors-diff.Previous.Errors))

	writeMarkdownList(&sb, "New Addresses", diff.NewAddresses)
	writeMarkdownList(&sb, "Gone Addresses", diff.GoneAddresses)
	writeMarkdownErrors(&sb, "New Errors", diff.NewErrors)
	writeMarkdownErrors(&sb, "Resolved Errors", diff.ResolvedErrors)

	_, err := io.WriteString(out, sb.String())
	return err
}

func writeMarkdownList(sb *strings.Builder, title string, addresses []string) {
	if len(addresses) == 0 {
		return
	}
	fmt.Fprintf(sb, "## %s (%d)\n\n", title, len(addresses))
	for _, address := range addresses {
		fmt.Fprintf(sb, "- `%s`\n", address)
	}
	sb.WriteString("\n")
}

func writeMarkdownErrors(sb *strings.Builder, title string, entries []model.ErrorEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(sb, "## %s (%d)\n\n", title, len(entries))
	for _, e := range entries {
		fmt.Fprintf(sb, "- `%s` (%s): %s\n", e.Address, e.Kind, e.Message)
	}
	sb.WriteString("\n")
}

// formatDelta formats a count change with its sign.
func formatDelta(delta int) string {
	switch {
	case delta > 0:
		return fmt.Sprintf("+%d", delta)
	case delta < 0:
		return fmt.Sprintf("%d", delta)
	default:
		return "0"
	}
}
