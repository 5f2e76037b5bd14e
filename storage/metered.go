package storage

import (
	"context"
	"io"

	"github.com/a-h/nodepm/metrics"
)

var _ Storage = (*Metered)(nil)

// Metered wraps a Storage backend, recording a download/bytes metric on
// every successful Get and an install metric on every successful Put.
//
// Grounded on loggedstorage/loggedstorage.go's wrapper shape (same
// Stat/Get/Put passthrough structure), adapted to call straight into
// metrics.Metrics rather than buffering events onto an access-log channel
// backed by a KV store: the spec has no notion of per-file access logs,
// only aggregate resolve/download/install counters.
type Metered struct {
	wrapped Storage
	m       metrics.Metrics
}

// NewMetered wraps wrapped with metric recording.
func NewMetered(wrapped Storage, m metrics.Metrics) *Metered {
	return &Metered{wrapped: wrapped, m: m}
}

func (s *Metered) Stat(ctx context.Context, filename string) (size int64, exists bool, err error) {
	return s.wrapped.Stat(ctx, filename)
}

func (s *Metered) Get(ctx context.Context, filename string) (r io.ReadCloser, exists bool, err error) {
	r, exists, err = s.wrapped.Get(ctx, filename)
	if err != nil || !exists {
		return r, exists, err
	}
	return &countingReadCloser{ReadCloser: r, onClose: func(n int64) {
		s.m.IncrementDownload(ctx, filename, n)
	}}, exists, nil
}

func (s *Metered) Put(ctx context.Context, filename string) (w io.WriteCloser, err error) {
	w, err = s.wrapped.Put(ctx, filename)
	if err != nil {
		return w, err
	}
	return &countingWriteCloser{WriteCloser: w, onClose: func(n int64) {
		s.m.IncrementInstall(ctx, filename)
	}}, nil
}

type countingReadCloser struct {
	io.ReadCloser
	n       int64
	onClose func(n int64)
}

func (c *countingReadCloser) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.onClose(c.n)
	return err
}

type countingWriteCloser struct {
	io.WriteCloser
	n       int64
	onClose func(n int64)
}

func (c *countingWriteCloser) Write(p []byte) (int, error) {
	n, err := c.WriteCloser.Write(p)
	c.n += int64(n)
	return n, err
}

func (c *countingWriteCloser) Close() error {
	err := c.WriteCloser.Close()
	c.onClose(c.n)
	return err
}
