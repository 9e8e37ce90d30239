// Package download fetches the published survey files listed in the
// metadata so they can be imported later.
package download

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/gdivir/internal/metadata"
	"github.com/sells-group/gdivir/internal/model"
)

// Job is one file to download.
type Job struct {
	Dataset model.Dataset
	Year    int
	// Dir groups the files of a survey, such as "divisions" or "census".
	Dir string
	URL string
}

// Target returns where the job's file is stored under root:
// root/<dataset>/<year>/<dir>/<last URL segment>.
func (j Job) Target(root string) (string, error) {
	u, err := url.Parse(j.URL)
	if err != nil {
		return "", eris.Wrapf(err, "download: parse url %q", j.URL)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return "", eris.Errorf("download: no file name in %q", j.URL)
	}
	return filepath.Join(root, string(j.Dataset), strconv.Itoa(j.Year), j.Dir, name), nil
}

// Plan lists the jobs for dataset in years, ordered by year then dir.
// An empty years list selects every year with raw files.
func Plan(meta *metadata.Metadata, dataset model.Dataset, years []int) ([]Job, error) {
	if len(years) == 0 {
		years = meta.RawFileYears(dataset)
	}
	var jobs []Job
	for _, y := range years {
		files, err := meta.RawFiles(dataset, y)
		if err != nil {
			return nil, err
		}
		dirs := make([]string, 0, len(files))
		for d := range files {
			dirs = append(dirs, d)
		}
		slices.Sort(dirs)
		for _, d := range dirs {
			jobs = append(jobs, Job{Dataset: dataset, Year: y, Dir: d, URL: files[d]})
		}
	}
	return jobs, nil
}

// Status reports what happened to a job.
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusSkipped    Status = "skipped"
)

// Result is the outcome of one job.
type Result struct {
	Job    Job
	Path   string
	Status Status
	Bytes  int64
}

// source opens a remote file and reports its size.
type source interface {
	open(ctx context.Context, u *url.URL) (io.ReadCloser, int64, error)
}

// Options configures a Downloader.
type Options struct {
	Root    string
	Workers int
	HTTP    HTTPOptions
	Retry   RetryConfig
}

// Downloader fetches jobs over HTTP(S) or FTP.
type Downloader struct {
	root    string
	workers int
	retry   RetryConfig
	sources map[string]source
	log     *zap.Logger
}

// New creates a Downloader writing under opts.Root.
func New(opts Options) *Downloader {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryConfig()
	}
	h := newHTTPSource(opts.HTTP)
	return &Downloader{
		root:    opts.Root,
		workers: opts.Workers,
		retry:   opts.Retry,
		sources: map[string]source{
			"http":  h,
			"https": h,
			"ftp":   &ftpSource{timeout: time.Minute},
		},
		log: zap.L().With(zap.String("component", "download")),
	}
}

// Run downloads jobs concurrently. Results keep the order of jobs.
func (d *Downloader) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	results := make([]Result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, job := range jobs {
		g.Go(func() error {
			res, err := d.Fetch(gctx, job)
			if err != nil {
				return eris.Wrapf(err, "download: %s %d %s", job.Dataset, job.Year, job.Dir)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Fetch downloads one job. A local file whose size equals the remote
// size is kept as is.
func (d *Downloader) Fetch(ctx context.Context, job Job) (Result, error) {
	target, err := job.Target(d.root)
	if err != nil {
		return Result{}, err
	}
	u, err := url.Parse(job.URL)
	if err != nil {
		return Result{}, eris.Wrapf(err, "download: parse url %q", job.URL)
	}
	src, ok := d.sources[u.Scheme]
	if !ok {
		return Result{}, eris.Errorf("download: unsupported scheme %q", u.Scheme)
	}

	log := d.log.With(zap.String("url", job.URL), zap.String("path", target))
	return retry(ctx, d.retry, func(ctx context.Context) (Result, error) {
		body, size, err := src.open(ctx, u)
		if err != nil {
			return Result{}, err
		}
		defer body.Close() //nolint:errcheck

		res := Result{Job: job, Path: target, Bytes: size}
		if info, err := os.Stat(target); err == nil && info.Size() == size {
			log.Debug("file up to date")
			res.Status = StatusSkipped
			return res, nil
		}
		if err := writeFile(target, body); err != nil {
			return Result{}, err
		}
		log.Info("downloaded file", zap.Int64("bytes", size))
		res.Status = StatusDownloaded
		return res, nil
	}, func(attempt int, err error) {
		log.Warn("retrying download", zap.Int("attempt", attempt), zap.Error(err))
	})
}

// writeFile streams r into a temporary file and renames it over path.
func writeFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "download: create directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".part-*")
	if err != nil {
		return eris.Wrap(err, "download: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return transient(eris.Wrap(err, "download: write body"))
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "download: close temp file")
	}
	return eris.Wrap(os.Rename(tmp.Name(), path), "download: rename")
}
