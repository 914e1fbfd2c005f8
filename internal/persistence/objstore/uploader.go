package objstore

import (
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Putter is the upload side of Client.
type Putter interface {
	PutFile(ctx context.Context, key, localPath string) error
}

type Stats struct {
	Queued   int
	Capacity int
	Uploaded uint64
	Failed   uint64
	Dropped  uint64
}

// Uploader mirrors local files under root into the bucket, keyed by their
// path relative to root. Enqueue never blocks the caller.
type Uploader struct {
	put    Putter
	root   string
	prefix string
	log    *log.Logger

	retries int
	backoff time.Duration

	jobs chan string
	wg   sync.WaitGroup

	uploaded atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

func NewUploader(p Putter, root, prefix string, workers int, logger *log.Logger) *Uploader {
	if workers <= 0 {
		workers = 1
	}
	u := &Uploader{
		put:     p,
		root:    root,
		prefix:  strings.Trim(filepath.ToSlash(prefix), "/"),
		log:     logger,
		retries: 4,
		backoff: 200 * time.Millisecond,
		jobs:    make(chan string, 256),
	}
	for i := 0; i < workers; i++ {
		u.wg.Add(1)
		go u.work()
	}
	return u
}

func (u *Uploader) Enqueue(localPath string) {
	select {
	case u.jobs <- localPath:
	default:
		u.dropped.Add(1)
		u.logf("objstore: queue full, dropped %s", localPath)
	}
}

// Close drains the queue and waits for in-flight uploads.
func (u *Uploader) Close() {
	close(u.jobs)
	u.wg.Wait()
}

func (u *Uploader) Stats() Stats {
	return Stats{
		Queued:   len(u.jobs),
		Capacity: cap(u.jobs),
		Uploaded: u.uploaded.Load(),
		Failed:   u.failed.Load(),
		Dropped:  u.dropped.Load(),
	}
}

// WriteMetrics renders Stats in the Prometheus text format.
func (u *Uploader) WriteMetrics(w io.Writer) {
	s := u.Stats()
	fmt.Fprintf(w, "# TYPE creton_mirror_queue_depth gauge\ncreton_mirror_queue_depth %d\n", s.Queued)
	fmt.Fprintf(w, "# TYPE creton_mirror_uploaded_total counter\ncreton_mirror_uploaded_total %d\n", s.Uploaded)
	fmt.Fprintf(w, "# TYPE creton_mirror_failed_total counter\ncreton_mirror_failed_total %d\n", s.Failed)
	fmt.Fprintf(w, "# TYPE creton_mirror_dropped_total counter\ncreton_mirror_dropped_total %d\n", s.Dropped)
}

func (u *Uploader) work() {
	defer u.wg.Done()
	for p := range u.jobs {
		key, err := u.keyFor(p)
		if err != nil {
			u.failed.Add(1)
			u.logf("objstore: skip %s: %v", p, err)
			continue
		}
		if err := u.upload(key, p); err != nil {
			u.failed.Add(1)
			u.logf("objstore: upload %s: %v", key, err)
			continue
		}
		u.uploaded.Add(1)
	}
}

func (u *Uploader) upload(key, localPath string) error {
	var err error
	for attempt := 1; attempt <= u.retries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err = u.put.PutFile(ctx, key, localPath)
		cancel()
		if err == nil {
			return nil
		}
		if attempt < u.retries {
			time.Sleep(time.Duration(attempt*attempt) * u.backoff)
		}
	}
	return err
}

func (u *Uploader) keyFor(localPath string) (string, error) {
	root, err := filepath.Abs(u.root)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", abs, root)
	}
	if u.prefix == "" {
		return rel, nil
	}
	return path.Join(u.prefix, rel), nil
}

func (u *Uploader) logf(format string, args ...any) {
	if u.log != nil {
		u.log.Printf(format, args...)
	}
}
