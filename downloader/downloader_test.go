package downloader

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chcolte/site-image-mirror/manifest"
)

const brainyPrefix = "https://www.thebrainyinsights.com/images"

func TestLocalPath(t *testing.T) {
	p, err := LocalPath(brainyPrefix+"/a/b.png", brainyPrefix, "/out")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", "a", "b.png"), p)

	// trailing slash on the prefix makes no difference
	p, err = LocalPath(brainyPrefix+"/a/b.png", brainyPrefix+"/", "/out")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", "a", "b.png"), p)

	// query strings stay part of the file name
	p, err = LocalPath(brainyPrefix+"/c.png?v=2", brainyPrefix, "/out")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", "c.png?v=2"), p)
}

func TestLocalPathRejects(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want error
	}{
		{"other host", "https://cdn.example.com/images/a.png", ErrPrefixMismatch},
		{"sibling directory", brainyPrefix + "x/a.png", ErrPrefixMismatch},
		{"prefix only", brainyPrefix + "/", ErrPrefixMismatch},
		{"escapes output dir", brainyPrefix + "/../../etc/passwd", ErrOutsideDir},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LocalPath(tt.url, brainyPrefix, "/out")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReadURLList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image_urls.txt")
	content := brainyPrefix + "/b.png\r\n" +
		"\n" +
		"not a url\n" +
		"  " + brainyPrefix + "/a.png  \n" +
		brainyPrefix + "/c.png"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	urls, err := ReadURLList(path)
	require.NoError(t, err)
	// file order, not sorted
	assert.Equal(t, []string{
		brainyPrefix + "/b.png",
		brainyPrefix + "/a.png",
		brainyPrefix + "/c.png",
	}, urls)
}

// スペースや末尾のドットを含むURLも取得対象にする
func TestExtractedListWithUnusualNamesIsDownloaded(t *testing.T) {
	srv := newImageServer(t)
	dir := t.TempDir()
	prefix := srv.URL + "/images"
	listPath := filepath.Join(dir, "image_urls.txt")

	list := prefix + "/a/b.png\n" +
		prefix + "/my chart.png\n" +
		prefix + "/report-2024.png.\n" +
		"ftp://" + srv.Listener.Addr().String() + "/images/ftp.png\n"
	require.NoError(t, os.WriteFile(listPath, []byte(list), 0644))

	urls, err := ReadURLList(listPath)
	require.NoError(t, err)
	assert.Equal(t, []string{
		prefix + "/a/b.png",
		prefix + "/my chart.png",
		prefix + "/report-2024.png.",
	}, urls)

	out := filepath.Join(dir, "out")
	d := New(Options{RemotePrefix: prefix, OutputDir: out, Client: srv.Client()})
	sum := d.Run(context.Background(), urls)

	assert.Equal(t, Summary{Attempted: 3, Downloaded: 3}, sum)
	assert.Equal(t, []string{"/images/a/b.png", "/images/my chart.png", "/images/report-2024.png."}, srv.requests())
	assert.Equal(t, "ODD-NAME", readFile(t, filepath.Join(out, "my chart.png")))
	assert.Equal(t, "ODD-NAME", readFile(t, filepath.Join(out, "report-2024.png.")))
}

func TestReadURLListMissingFile(t *testing.T) {
	_, err := ReadURLList(filepath.Join(t.TempDir(), "absent.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestReadURLListEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image_urls.txt")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	urls, err := ReadURLList(path)
	require.NoError(t, err)
	assert.Empty(t, urls)
}

type imageServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits []string
}

func newImageServer(t *testing.T) *imageServer {
	s := &imageServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits = append(s.hits, r.URL.Path)
		s.mu.Unlock()
		switch r.URL.Path {
		case "/images/a/b.png":
			w.Write([]byte("PNG-BYTES"))
		case "/images/c.jpg":
			w.Write([]byte("JPEG-BYTES"))
		case "/images/my chart.png", "/images/report-2024.png.":
			w.Write([]byte("ODD-NAME"))
		case "/images/broken.png":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *imageServer) requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.hits...)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestRunMirrorsPaths(t *testing.T) {
	srv := newImageServer(t)
	out := filepath.Join(t.TempDir(), "out")
	prefix := srv.URL + "/images"

	d := New(Options{RemotePrefix: prefix, OutputDir: out, Client: srv.Client()})
	sum := d.Run(context.Background(), []string{prefix + "/a/b.png", prefix + "/c.jpg"})

	assert.Equal(t, Summary{Attempted: 2, Downloaded: 2}, sum)
	assert.Equal(t, "PNG-BYTES", readFile(t, filepath.Join(out, "a", "b.png")))
	assert.Equal(t, "JPEG-BYTES", readFile(t, filepath.Join(out, "c.jpg")))
}

func TestRunContinuesAfterFailures(t *testing.T) {
	srv := newImageServer(t)
	out := t.TempDir()
	prefix := srv.URL + "/images"

	// a port nobody listens on
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	refused := "http://" + ln.Addr().String() + "/images/gone.png"
	require.NoError(t, ln.Close())

	urls := []string{
		prefix + "/missing.png",
		prefix + "/broken.png",
		"https://cdn.example.com/images/elsewhere.png",
		prefix + "/c.jpg",
	}
	d := New(Options{RemotePrefix: prefix, OutputDir: out, Client: srv.Client()})
	sum := d.Run(context.Background(), urls)
	assert.Equal(t, Summary{Attempted: 3, Downloaded: 1, Failed: 2, Skipped: 1}, sum)
	assert.Equal(t, "JPEG-BYTES", readFile(t, filepath.Join(out, "c.jpg")))
	assert.Equal(t, []string{"/images/missing.png", "/images/broken.png", "/images/c.jpg"}, srv.requests())

	_, err = os.Stat(filepath.Join(out, "missing.png"))
	assert.True(t, os.IsNotExist(err), "no file is written for an error status")

	// connection refused uses its own prefix so the URL is mapped and attempted
	refusedPrefix := "http://" + ln.Addr().String() + "/images"
	d = New(Options{RemotePrefix: refusedPrefix, OutputDir: out})
	sum = d.Run(context.Background(), []string{refused, refusedPrefix + "/also-gone.png"})
	assert.Equal(t, Summary{Attempted: 2, Failed: 2}, sum)
}

func TestRunOverwritesIdempotently(t *testing.T) {
	srv := newImageServer(t)
	out := t.TempDir()
	prefix := srv.URL + "/images"
	target := filepath.Join(out, "a", "b.png")

	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0755))
	require.NoError(t, os.WriteFile(target, []byte("an older and much longer body"), 0644))

	d := New(Options{RemotePrefix: prefix, OutputDir: out, Client: srv.Client()})
	for i := 0; i < 2; i++ {
		sum := d.Run(context.Background(), []string{prefix + "/a/b.png"})
		assert.Equal(t, Summary{Attempted: 1, Downloaded: 1}, sum)
		assert.Equal(t, "PNG-BYTES", readFile(t, target))
	}
}

func TestRunEmptyListMakesNoRequests(t *testing.T) {
	srv := newImageServer(t)
	d := New(Options{RemotePrefix: srv.URL + "/images", OutputDir: t.TempDir(), Client: srv.Client()})

	sum := d.Run(context.Background(), nil)
	assert.Equal(t, Summary{}, sum)
	assert.Empty(t, srv.requests())
}

func TestRunStopsWhenCancelled(t *testing.T) {
	srv := newImageServer(t)
	prefix := srv.URL + "/images"
	d := New(Options{RemotePrefix: prefix, OutputDir: t.TempDir(), Client: srv.Client()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum := d.Run(ctx, []string{prefix + "/a/b.png"})
	assert.Equal(t, Summary{}, sum)
	assert.Empty(t, srv.requests())
}

func TestRunWritesManifest(t *testing.T) {
	srv := newImageServer(t)
	dir := t.TempDir()
	prefix := srv.URL + "/images"
	manifestPath := filepath.Join(dir, "manifest.jsonl")

	d := New(Options{
		RemotePrefix: prefix,
		OutputDir:    filepath.Join(dir, "out"),
		Client:       srv.Client(),
		Manifest:     manifest.NewWriter(manifestPath),
	})
	d.Run(context.Background(), []string{prefix + "/a/b.png", prefix + "/missing.png"})

	body := readFile(t, manifestPath)
	assert.Contains(t, body, `"url":"`+prefix+`/a/b.png"`)
	assert.Contains(t, body, `"status":404`)
	assert.Contains(t, body, `"bytes":9`)
}

func TestHTTPErrorMessage(t *testing.T) {
	err := &HTTPError{URL: brainyPrefix + "/x.png", Status: http.StatusNotFound}
	assert.Equal(t, "HTTP error! status: 404 Not Found for url: "+brainyPrefix+"/x.png", err.Error())
}
