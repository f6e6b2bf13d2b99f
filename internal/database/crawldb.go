package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/webcrawler/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "webcrawler.db"

// CrawlDB provides SQLite-based storage for cached pages and crawl history.
//
// Design decision: One database file holds both tables. The CLI opens one
// file in the cache directory for pages and one in the data directory for
// history, but tests and small deployments can share a single file, and
// the schema is the same either way.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer. Download workers store pages
	// concurrently, so they queue on this single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- Pages is the persistent page cache, one row per requested address
	CREATE TABLE IF NOT EXISTS pages (
		url TEXT PRIMARY KEY,
		final_url TEXT NOT NULL DEFAULT '',
		status_code INTEGER NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		headers TEXT,
		body BLOB,
		hash TEXT NOT NULL DEFAULT '',
		fetched_at TEXT NOT NULL,
		stored_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_pages_stored_at ON pages(stored_at);

	-- Crawl reports store complete crawl outcomes as JSON
	CREATE TABLE IF NOT EXISTS crawl_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seed TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		fetched_count INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		cancelled INTEGER NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_seed ON crawl_reports(seed);
	CREATE INDEX IF NOT EXISTS idx_reports_timestamp ON crawl_reports(timestamp);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// PutPage inserts or replaces the cached page for page.URL.
func (cdb *CrawlDB) PutPage(ctx context.Context, page *model.Page) error {
	headersJSON, err := json.Marshal(page.Headers)
	if err != nil {
		return fmt.Errorf("failed to serialize headers: %w", err)
	}

	query := `
	INSERT INTO pages (url, final_url, status_code, content_type, headers, body, hash, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		final_url = excluded.final_url,
		status_code = excluded.status_code,
		content_type = excluded.content_type,
		headers = excluded.headers,
		body = excluded.body,
		hash = excluded.hash,
		fetched_at = excluded.fetched_at,
		stored_at = CURRENT_TIMESTAMP
	`

	_, err = cdb.db.ExecContext(ctx, query,
		page.URL,
		page.FinalURL,
		page.StatusCode,
		page.ContentType,
		string(headersJSON),
		page.Body,
		page.Hash,
		page.FetchedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to store page %s: %w", page.URL, err)
	}
	return nil
}

// GetPage returns the cached page for url, or nil if there is none.
func (cdb *CrawlDB) GetPage(ctx context.Context, url string) (*model.Page, error) {
	query := `
	SELECT url, final_url, status_code, content_type, headers, body, hash, fetched_at
	FROM pages
	WHERE url = ?
	`

	var page model.Page
	var headersJSON sql.NullString
	var fetchedAt string

	err := cdb.db.QueryRowContext(ctx, query, url).Scan(
		&page.URL,
		&page.FinalURL,
		&page.StatusCode,
		&page.ContentType,
		&headersJSON,
		&page.Body,
		&page.Hash,
		&fetchedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page %s: %w", url, err)
	}

	page.FetchedAt = parseTimestamp(fetchedAt)
	if headersJSON.Valid && headersJSON.String != "" && headersJSON.String != "null" {
		if err := json.Unmarshal([]byte(headersJSON.String), &page.Headers); err != nil {
			return nil, fmt.Errorf("failed to parse headers: %w", err)
		}
	}

	return &page, nil
}

// HasRecentPage checks if url was stored within the specified duration.
func (cdb *CrawlDB) HasRecentPage(ctx context.Context, url string, duration time.Duration) (bool, error) {
	query := `
	SELECT COUNT(*) FROM pages
	WHERE url = ? AND stored_at > datetime('now', ?)
	`

	var count int
	err := cdb.db.QueryRowContext(ctx, query, url, sqliteAge(duration)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent page: %w", err)
	}

	return count > 0, nil
}

// PageURLs returns the address of every cached page.
func (cdb *CrawlDB) PageURLs(ctx context.Context) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT url FROM pages`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("failed to scan page url: %w", err)
		}
		urls = append(urls, url)
	}
	return urls, rows.Err()
}

// PrunePages deletes pages stored longer ago than maxAge and returns how
// many were removed.
func (cdb *CrawlDB) PrunePages(ctx context.Context, maxAge time.Duration) (int64, error) {
	result, err := cdb.db.ExecContext(ctx,
		`DELETE FROM pages WHERE stored_at <= datetime('now', ?)`, sqliteAge(maxAge))
	if err != nil {
		return 0, fmt.Errorf("failed to prune pages: %w", err)
	}
	return result.RowsAffected()
}

// SaveCrawlReport stores report and sets its ID.
func (cdb *CrawlDB) SaveCrawlReport(ctx context.Context, report *model.CrawlReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	query := `
	INSERT INTO crawl_reports (seed, fetched_count, error_count, cancelled, report_json)
	VALUES (?, ?, ?, ?, ?)
	`

	result, err := cdb.db.ExecContext(ctx, query,
		report.Seed,
		len(report.Fetched),
		report.ErrorCount(),
		report.Cancelled,
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save crawl report: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read crawl report id: %w", err)
	}
	report.ID = id
	return nil
}

// GetLatestCrawlReport retrieves the most recent crawl report for seed.
func (cdb *CrawlDB) GetLatestCrawlReport(ctx context.Context, seed string) (*model.CrawlReport, error) {
	query := `
	SELECT id, report_json FROM crawl_reports
	WHERE seed = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT 1
	`

	return cdb.queryReport(ctx, query, seed)
}

// GetCrawlReportByID retrieves a crawl report by its database ID.
func (cdb *CrawlDB) GetCrawlReportByID(ctx context.Context, id int64) (*model.CrawlReport, error) {
	query := `
	SELECT id, report_json FROM crawl_reports
	WHERE id = ?
	`

	return cdb.queryReport(ctx, query, id)
}

// queryReport runs a single-row report query, returning nil for no rows.
func (cdb *CrawlDB) queryReport(ctx context.Context, query string, arg any) (*model.CrawlReport, error) {
	var id int64
	var reportJSON string
	err := cdb.db.QueryRowContext(ctx, query, arg).Scan(&id, &reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl report: %w", err)
	}

	var report model.CrawlReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	report.ID = id
	return &report, nil
}

// ListSeeds returns every seed with at least one stored report.
func (cdb *CrawlDB) ListSeeds(ctx context.Context) ([]string, error) {
	query := `
	SELECT DISTINCT seed FROM crawl_reports
	ORDER BY seed
	`

	rows, err := cdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list seeds: %w", err)
	}
	defer rows.Close()

	var seeds []string
	for rows.Next() {
		var seed string
		if err := rows.Scan(&seed); err != nil {
			return nil, fmt.Errorf("failed to scan seed: %w", err)
		}
		seeds = append(seeds, seed)
	}

	return seeds, rows.Err()
}

// GetCrawlHistory retrieves all crawl reports for seed, newest first.
func (cdb *CrawlDB) GetCrawlHistory(ctx context.Context, seed string) ([]*model.CrawlReport, error) {
	query := `
	SELECT id, report_json FROM crawl_reports
	WHERE seed = ?
	ORDER BY timestamp DESC, id DESC
	`

	rows, err := cdb.db.QueryContext(ctx, query, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl history: %w", err)
	}
	defer rows.Close()

	var reports []*model.CrawlReport
	for rows.Next() {
		var id int64
		var reportJSON string
		if err := rows.Scan(&id, &reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}

		var report model.CrawlReport
		if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
			continue // Skip malformed reports
		}
		report.ID = id
		reports = append(reports, &report)
	}

	return reports, rows.Err()
}

// CrawlReportMetadata contains summary information about a crawl report.
// This is used for displaying history without loading full reports.
type CrawlReportMetadata struct {
	// ID is the unique identifier of the report in the database.
	ID int64

	// Seed is the address the crawl started from.
	Seed string

	// Timestamp is when the report was stored.
	Timestamp time.Time

	// Fetched is the number of pages fetched.
	Fetched int

	// Errors is the number of fetch and extraction errors.
	Errors int

	// Cancelled is true when the crawl was interrupted.
	Cancelled bool
}

// GetCrawlHistoryWithMetadata retrieves report metadata for seed, newest
// first. This is more efficient than GetCrawlHistory when only counts are
// needed.
func (cdb *CrawlDB) GetCrawlHistoryWithMetadata(ctx context.Context, seed string) ([]CrawlReportMetadata, error) {
	query := `
	SELECT id, seed, timestamp, fetched_count, error_count, cancelled
	FROM crawl_reports
	WHERE seed = ?
	ORDER BY timestamp DESC, id DESC
	`

	rows, err := cdb.db.QueryContext(ctx, query, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl history: %w", err)
	}
	defer rows.Close()

	var results []CrawlReportMetadata
	for rows.Next() {
		var meta CrawlReportMetadata
		var timestamp string

		if err := rows.Scan(&meta.ID, &meta.Seed, &timestamp, &meta.Fetched, &meta.Errors, &meta.Cancelled); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		meta.Timestamp = parseTimestamp(timestamp)
		results = append(results, meta)
	}

	return results, rows.Err()
}

// sqliteAge turns an age into a datetime modifier pointing d into the past.
func sqliteAge(d time.Duration) string {
	return fmt.Sprintf("%+d seconds", -int64(d.Seconds()))
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on configuration.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
