package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Document is a fetched page that can list the links it contains.
// ExtractLinks is called at most once per document.
type Document interface {
	ExtractLinks() ([]string, error)
}

// Fetcher turns an address into a Document. It is called concurrently
// from every download worker and must be safe for that.
type Fetcher interface {
	Fetch(ctx context.Context, address string) (Document, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, address string) (Document, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, address string) (Document, error) {
	return f(ctx, address)
}

// WebCrawler downloads pages breadth-first from a seed up to a depth limit.
//
// Total fetch concurrency is bounded by the download pool, link extraction
// by the extraction pool, and fetches to one origin host by the per-host cap.
// A WebCrawler may serve several Download calls at once; they share the
// pools and the per-host limits but nothing else.
type WebCrawler struct {
	fetcher Fetcher
	logger  *slog.Logger

	downloaders int
	extractors  int
	perHost     int

	downloads  *workerPool
	extraction *workerPool
	hosts      *admission

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// Option configures a WebCrawler.
type Option func(*WebCrawler)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *WebCrawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New validates the pool sizes and starts the worker pools.
// The returned crawler must be closed to stop its workers.
func New(f Fetcher, downloaders, extractors, perHost int, opts ...Option) (*WebCrawler, error) {
	switch {
	case f == nil:
		return nil, ErrNilFetcher
	case downloaders < 1:
		return nil, ErrInvalidDownloaders
	case extractors < 1:
		return nil, ErrInvalidExtractors
	case perHost < 1:
		return nil, ErrInvalidPerHost
	}

	c := &WebCrawler{
		fetcher:     f,
		logger:      slog.Default(),
		downloaders: downloaders,
		extractors:  extractors,
		perHost:     perHost,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.downloads = newWorkerPool("download", downloaders, c.logger)
	c.extraction = newWorkerPool("extraction", extractors, c.logger)
	c.hosts = newAdmission(perHost, c.downloads)
	return c, nil
}

// Download crawls from seed. depth 1 fetches only the seed, depth 2 also
// fetches the pages it links to, and so on.
//
// Per-address failures never abort the crawl; they are reported in the
// Result. The returned error is a configuration error, ErrClosed, or the
// context error when ctx ends early, in which case the partial Result is
// returned alongside it.
func (c *WebCrawler) Download(ctx context.Context, seed string, depth int) (*Result, error) {
	if depth < 1 {
		return nil, ErrInvalidDepth
	}
	if c.isClosed() {
		return nil, ErrClosed
	}

	cr := &crawl{
		crawler: c,
		ctx:     ctx,
		visited: newVisitedSet(),
		wave:    newWave(),
		results: newCollector(),
	}

	started := time.Now()
	c.logger.Info("crawl started",
		"seed", seed,
		"depth", depth,
		"downloaders", c.downloaders,
		"extractors", c.extractors,
		"per_host", c.perHost,
	)

	cr.visited.TryAdd(seed)
	if host, err := HostOf(seed); err != nil {
		cr.results.addError(seed, err)
	} else {
		cr.queue.Push(linkTask{address: seed, depth: depth - 1, host: host})
	}
	cr.run()

	result := cr.results.result()
	c.logger.Info("crawl finished",
		"seed", seed,
		"fetched", len(result.Fetched),
		"errors", len(result.Errors),
		"extraction_errors", len(result.ExtractionErrors),
		"visited", cr.visited.Len(),
		"duration", time.Since(started),
	)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// Close stops both pools. Work already queued on them still runs, tasks
// submitted afterwards are recorded as failed with ErrPoolClosed, and later
// Download calls return ErrClosed. Close blocks until the workers exit and
// is safe to call more than once.
func (c *WebCrawler) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		// Downloads first: running fetches still hand their documents to
		// the extraction pool.
		c.downloads.Close()
		c.extraction.Close()
	})
	return nil
}

func (c *WebCrawler) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// crawl is the state of one Download call.
type crawl struct {
	crawler *WebCrawler
	ctx     context.Context //nolint:containedctx // scoped to one Download call

	queue   pendingQueue
	visited *visitedSet
	wave    *wave
	results *collector
}

// run is the orchestrator loop. It returns once the pending queue is empty
// and no task is outstanding.
//
// A task is registered with the wave before it is handed to admission, and
// tasks only push children before they deregister. So when a drain returns,
// every push has already happened and an empty queue means the crawl is over.
func (cr *crawl) run() {
	for {
		task, ok := cr.queue.Pop()
		if !ok {
			cr.wave.Drain()
			if cr.queue.Len() == 0 {
				return
			}
			continue
		}

		cr.wave.Register()
		cr.crawler.hosts.submit(task.host, cr.fetchJob(task))
	}
}

func (cr *crawl) fetchJob(task linkTask) fetchJob {
	return fetchJob{
		run: func() { cr.fetch(task) },
		abort: func(err error) {
			cr.results.addError(task.address, err)
			cr.wave.Deregister()
		},
	}
}

// fetch runs on a download worker.
func (cr *crawl) fetch(task linkTask) {
	defer cr.wave.Deregister()
	defer cr.crawler.hosts.release(task.host)

	if err := cr.ctx.Err(); err != nil {
		cr.results.addError(task.address, err)
		return
	}

	cr.crawler.logger.Debug("fetching", "url", task.address, "depth", task.depth)
	doc, err := cr.safeFetch(task.address)
	if err != nil {
		cr.crawler.logger.Warn("fetch failed", "url", task.address, "error", err)
		cr.results.addError(task.address, err)
		return
	}
	cr.results.addFetched(task.address)

	if task.depth <= 0 || doc == nil {
		return
	}

	// The child is registered while this task still holds its own
	// registration, so the wave cannot reach zero in between.
	cr.wave.Register()
	if err := cr.crawler.extraction.Submit(func() { cr.extract(task, doc) }); err != nil {
		cr.wave.Deregister()
		cr.results.addExtractionError(task.address, err)
	}
}

// extract runs on an extraction worker.
func (cr *crawl) extract(parent linkTask, doc Document) {
	defer cr.wave.Deregister()

	links, err := cr.safeExtract(doc)
	if err != nil {
		cr.crawler.logger.Warn("link extraction failed", "url", parent.address, "error", err)
		cr.results.addExtractionError(parent.address, err)
		return
	}
	cr.crawler.logger.Debug("links extracted", "url", parent.address, "count", len(links))

	for _, link := range links {
		if cr.ctx.Err() != nil {
			return
		}
		if !cr.visited.TryAdd(link) {
			continue
		}
		host, err := HostOf(link)
		if err != nil {
			cr.results.addError(link, err)
			continue
		}
		cr.queue.Push(linkTask{address: link, depth: parent.depth - 1, host: host})
	}
}

func (cr *crawl) safeFetch(address string) (doc Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return cr.crawler.fetcher.Fetch(cr.ctx, address)
}

func (cr *crawl) safeExtract(doc Document) (links []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return doc.ExtractLinks()
}
