package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/docdash/internal/models"
	"github.com/desertthunder/docdash/internal/recovery"
	"github.com/desertthunder/docdash/internal/shared"
	"github.com/desertthunder/docdash/internal/tasks"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	defaultWorkers   = 3
	maxWorkers       = 8
	defaultUserAgent = "docdash/0.1"
)

// ErrInvalidPDF marks a pdf_download response without a PDF header.
var ErrInvalidPDF = errors.New("invalid PDF: missing %PDF- header")

// DownloadInput is the input shared by the URL-fetching kinds.
type DownloadInput struct {
	URLs      []string `json:"urls" validate:"required,min=1,dive,url"`
	OutputDir string   `json:"output_dir"`
	Name      string   `json:"name" validate:"omitempty,max=128"`
	Workers   int      `json:"workers" validate:"omitempty,min=1,max=8"`
}

// DownloadResult records the outcome of one URL.
type DownloadResult struct {
	URL   string `json:"url"`
	Path  string `json:"path,omitempty"`
	Bytes int64  `json:"bytes"`
	Error string `json:"error,omitempty"`
}

type downloadJob struct {
	index int
	url   string
}

type downloadOutcome struct {
	index int
	res   DownloadResult
}

// Downloader fetches URLs into files with a shared client and rate limiter.
type Downloader struct {
	client  *resty.Client
	limiter *rate.Limiter
	retry   recovery.Options
	outDir  string
	logger  *log.Logger
}

// NewDownloader creates a Downloader from the [downloads] config section.
func NewDownloader(cfg shared.DownloadsConfig, retry recovery.Options, logger *log.Logger) *Downloader {
	if logger == nil {
		logger = log.Default()
	}
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	outDir := cfg.OutputDir
	if outDir == "" {
		outDir = "downloads"
	}

	return &Downloader{
		client:  resty.New().SetHeader("User-Agent", ua).SetTimeout(timeout),
		limiter: rate.NewLimiter(limit, 1),
		retry:   retry,
		outDir:  outDir,
		logger:  logger,
	}
}

// Work returns the work function for one of the URL-fetching kinds.
//
// URLs are fetched by a small worker pool; progress is reported from the calling goroutine as results
// arrive. A URL that still fails after retries counts as an error unit. The task fails only when every
// URL failed, and its output is the directory holding the files and an index.json of results.
func (d *Downloader) Work(kind models.Kind) tasks.WorkFunc {
	return func(ctx context.Context, raw json.RawMessage, r tasks.Reporter) (string, error) {
		var in DownloadInput
		if err := decodeInput(raw, &in); err != nil {
			return "", err
		}

		dir := in.OutputDir
		if dir == "" {
			name := in.Name
			if name == "" {
				name = r.TaskID()
			}
			dir = filepath.Join(d.outDir, string(kind), name)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create output directory: %w", err)
		}

		total := int64(len(in.URLs))
		if err := r.Report(0, total, "Downloading", ""); err != nil {
			return "", err
		}

		results, err := d.fetchAll(ctx, kind, dir, in, r)
		if err != nil {
			return "", err
		}

		failed := 0
		var lastErr string
		for _, res := range results {
			if res.Error != "" {
				failed++
				lastErr = res.Error
			}
		}
		if err := writeIndex(dir, results); err != nil {
			return "", err
		}
		if failed == len(results) {
			return "", fmt.Errorf("all %d downloads failed, last error: %s", failed, lastErr)
		}
		return dir, nil
	}
}

func (d *Downloader) fetchAll(
	ctx context.Context, kind models.Kind, dir string, in DownloadInput, r tasks.Reporter,
) ([]DownloadResult, error) {
	workers := in.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	workers = min(workers, maxWorkers, len(in.URLs))

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	jobs := make(chan downloadJob, len(in.URLs))
	out := make(chan downloadOutcome, len(in.URLs))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					return
				}
				res := d.fetchOne(ctx, kind, dir, job, r)
				out <- downloadOutcome{index: job.index, res: res}
			}
		}()
	}
	for i, u := range in.URLs {
		jobs <- downloadJob{index: i, url: u}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(out)
	}()

	total := int64(len(in.URLs))
	results := make([]DownloadResult, len(in.URLs))
	var done int64
	var reportErr error
	for o := range out {
		results[o.index] = o.res
		done++
		if o.res.Error != "" {
			r.AddErrors(1)
		} else {
			r.AddBytes(o.res.Bytes)
		}
		if reportErr != nil {
			continue
		}
		if err := r.Report(done, total, "Downloading", o.res.URL); err != nil {
			reportErr = err
			stop()
		}
	}
	if reportErr != nil {
		return nil, reportErr
	}
	if r.Cancelled() {
		return nil, tasks.ErrCancelled
	}
	return results, nil
}

func (d *Downloader) fetchOne(ctx context.Context, kind models.Kind, dir string, job downloadJob, r tasks.Reporter) DownloadResult {
	res := DownloadResult{URL: job.url}
	dest := filepath.Join(dir, fileName(kind, job.index, job.url))

	opts := d.retry
	opts.OnRetry = func(err error, attempt int, delay time.Duration) {
		d.logger.Warn("retrying download", "task_id", r.TaskID(), "url", job.url, "attempt", attempt, "err", err)
		r.Note(fmt.Sprintf("Retrying %s in %s (attempt %d)", job.url, shared.FormatDuration(delay), attempt+1))
	}

	n, err := recovery.Retry(ctx, func(ctx context.Context) (int64, error) {
		if err := d.limiter.Wait(ctx); err != nil {
			return 0, err
		}
		return d.fetch(ctx, kind, job.url, dest)
	}, opts)
	if err != nil {
		d.logger.Error("download failed", "task_id", r.TaskID(), "url", job.url, "err", err)
		res.Error = err.Error()
		return res
	}
	res.Path = dest
	res.Bytes = n
	return res
}

// fetch streams one response body to dest through a temp file.
func (d *Downloader) fetch(ctx context.Context, kind models.Kind, rawURL, dest string) (int64, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		return 0, err
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() >= 400 {
		return 0, fmt.Errorf("%w: %s", shared.ErrBadStatus, resp.Status())
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".part-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	var src io.Reader = body
	if kind == models.KindPDFDownload {
		head := make([]byte, 5)
		k, err := io.ReadFull(body, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			tmp.Close()
			return 0, err
		}
		if !bytes.Equal(head[:k], []byte("%PDF-")) {
			tmp.Close()
			return 0, ErrInvalidPDF
		}
		src = io.MultiReader(bytes.NewReader(head[:k]), body)
	}

	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, err
	}
	return n, nil
}

// fileName derives a file name for the index-th URL of a kind.
func fileName(kind models.Kind, index int, rawURL string) string {
	base, fromPath := "download", false
	if u, err := url.Parse(rawURL); err == nil {
		if b := path.Base(u.Path); b != "/" && b != "." && b != "" {
			base, fromPath = b, true
		} else if u.Host != "" {
			base = u.Host
		}
	}
	base = sanitize(base)

	switch kind {
	case models.KindPDFDownload:
		if !strings.EqualFold(filepath.Ext(base), ".pdf") {
			base += ".pdf"
		}
	case models.KindWebScraping:
		if fromPath {
			base = strings.TrimSuffix(base, filepath.Ext(base))
		}
		base += ".html"
	}
	return fmt.Sprintf("%03d_%s", index+1, base)
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}

func writeIndex(dir string, results []DownloadResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "index.json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}
