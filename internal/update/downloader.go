package update

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// downloadTimeout bounds a whole archive download.
const downloadTimeout = 30 * time.Second

// HTTPDownloader downloads release archives over HTTP
type HTTPDownloader struct {
	client    *http.Client
	userAgent string
}

// NewHTTPDownloader creates a new HTTP downloader. A nil client selects the
// default one with a 30 second timeout.
func NewHTTPDownloader(client *http.Client) *HTTPDownloader {
	if client == nil {
		client = newHTTPClient(downloadTimeout)
	}
	return &HTTPDownloader{
		client:    client,
		userAgent: DefaultUserAgent,
	}
}

// Fetch streams the body at url into dst, reporting progress after every
// write. It makes a single attempt. Failures writing to dst are filesystem
// errors; every other failure is a network error.
func (d *HTTPDownloader) Fetch(ctx context.Context, url string, dst io.Writer, progress ProgressFunc) (int64, error) {
	op := "downloading " + redactURL(url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, newError(KindNetwork, op, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, newError(KindNetwork, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, newError(KindNetwork, op, fmt.Errorf("unexpected HTTP status: %d", resp.StatusCode))
	}

	total := resp.ContentLength
	if total < 0 {
		total = -1
	}

	w := &progressWriter{w: dst, total: total, fn: progress}
	n, err := io.Copy(w, resp.Body)
	if w.err != nil {
		return n, newError(KindFilesystem, "writing archive", w.err)
	}
	if err != nil {
		return n, newError(KindNetwork, op, err)
	}
	if total >= 0 && n != total {
		return n, newError(KindNetwork, op, fmt.Errorf("short body: got %d of %d bytes", n, total))
	}

	return n, nil
}

// progressWriter reports cumulative bytes written to fn and remembers the
// first error from the underlying writer.
type progressWriter struct {
	w        io.Writer
	received int64
	total    int64
	fn       ProgressFunc
	err      error
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if err != nil && p.err == nil {
		p.err = err
	}
	p.received += int64(n)
	if p.fn != nil && n > 0 {
		p.fn(p.received, p.total)
	}
	return n, err
}
