// Package downloader mirrors every URL of a URL list into a local directory,
// one URL at a time.
package downloader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mvdan.cc/xurls/v2"

	"github.com/chcolte/site-image-mirror/logger"
	"github.com/chcolte/site-image-mirror/manifest"
	"github.com/chcolte/site-image-mirror/models"
)

var (
	ErrPrefixMismatch = errors.New("url does not start with the remote prefix")
	ErrOutsideDir     = errors.New("url maps outside the output directory")
)

// HTTPError is returned for responses with a 4xx or 5xx status.
type HTTPError struct {
	URL    string
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d %s for url: %s", e.Status, http.StatusText(e.Status), e.URL)
}

var strictURL = xurls.Strict()

// ReadURLList returns the URLs listed in path, in file order. Blank lines are
// skipped, as are lines that are not absolute http(s) URLs.
func ReadURLList(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	urls := []string{}
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		u, err := url.Parse(line)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			logger.Warnf("Skipping invalid URL line %d of %s: %q", lineNo, path, line)
			continue
		}
		// スペース等はリクエスト時にエスケープされるので取得は試みる
		if m := strictURL.FindString(line); m != line {
			logger.Debugf("Line %d of %s is not a plain URL (matched %q), requesting as is", lineNo, path, m)
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return urls, nil
}

// LocalPath maps rawURL to a file under localDir by replacing remotePrefix
// with localDir. The rest of the URL is kept as is.
func LocalPath(rawURL, remotePrefix, localDir string) (string, error) {
	remotePrefix = strings.TrimRight(remotePrefix, "/")
	rest, ok := strings.CutPrefix(rawURL, remotePrefix)
	if !ok || !strings.HasPrefix(rest, "/") || len(rest) == 1 {
		return "", fmt.Errorf("%w: %s", ErrPrefixMismatch, rawURL)
	}

	root := filepath.Clean(localDir)
	p := filepath.Join(root, filepath.FromSlash(rest))
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideDir, rawURL)
	}
	return p, nil
}

type Options struct {
	RemotePrefix string
	OutputDir    string
	Client       *http.Client
	Manifest     *manifest.Writer
}

// Summary counts the outcomes of one Run.
type Summary struct {
	Attempted  int
	Downloaded int
	Failed     int
	Skipped    int
}

type Downloader struct {
	remotePrefix string
	outputDir    string
	client       *http.Client
	manifest     *manifest.Writer
}

func New(opts Options) *Downloader {
	client := opts.Client
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &Downloader{
		remotePrefix: opts.RemotePrefix,
		outputDir:    opts.OutputDir,
		client:       client,
		manifest:     opts.Manifest,
	}
}

// NewHTTPClient returns a client with the given overall timeout; zero means
// requests block until the server answers.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Run fetches urls in order. Failures are logged and the next URL is tried;
// only a cancelled ctx ends the loop early.
func (d *Downloader) Run(ctx context.Context, urls []string) Summary {
	var sum Summary
	for _, u := range urls {
		if ctx.Err() != nil {
			logger.Warnf("Stopping before %s: %v", u, ctx.Err())
			break
		}

		localPath, err := LocalPath(u, d.remotePrefix, d.outputDir)
		if err != nil {
			logger.Warnf("Skipping %s: %v", u, err)
			d.record(models.DownloadRecord{URL: u, Error: err.Error()})
			sum.Skipped++
			continue
		}

		sum.Attempted++
		item := models.DownloadItem{URL: u, LocalPath: localPath}
		status, n, err := d.saveFile(ctx, item)
		rec := models.DownloadRecord{
			Filepath: localPath,
			URL:      u,
			Status:   status,
			Bytes:    n,
		}
		if err != nil {
			logger.Warnf("Error downloading %s: %v", u, err)
			rec.Error = err.Error()
			sum.Failed++
		} else {
			logger.Infof("Downloaded %s to %s", u, localPath)
			sum.Downloaded++
		}
		d.record(rec)
	}
	return sum
}

func (d *Downloader) record(rec models.DownloadRecord) {
	rec.Downloadtime = time.Now().UTC().Format(time.RFC3339)
	if err := d.manifest.SaveDownload(rec); err != nil {
		logger.Errorf("Failed to write manifest record for %s: %v", rec.URL, err)
	}
}

// saveFile streams item.URL into item.LocalPath, replacing any existing file.
// It returns the response status and the number of bytes written.
func (d *Downloader) saveFile(ctx context.Context, item models.DownloadItem) (int, int64, error) {
	// 失敗してもディレクトリは残す
	if err := os.MkdirAll(filepath.Dir(item.LocalPath), 0755); err != nil {
		return 0, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL, nil)
	if err != nil {
		return 0, 0, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, 0, &HTTPError{URL: item.URL, Status: resp.StatusCode}
	}

	// 既存ファイルは上書き．途中で切れた場合の後始末はしない
	out, err := os.Create(item.LocalPath)
	if err != nil {
		return resp.StatusCode, 0, err
	}
	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return resp.StatusCode, n, err
}
