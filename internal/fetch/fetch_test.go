package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/newscheck/internal/cache"
)

func testClient() *Client {
	return &Client{
		UserAgent:         "newscheck-test",
		MaxAttempts:       1,
		PerRequestTimeout: 2 * time.Second,
		Policy:            HostPolicy{AllowPrivateHosts: true},
	}
}

func TestGet_Success(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	resp, err := testClient().Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ContentType)
	assert.NotEmpty(t, resp.Body)
	assert.Equal(t, "newscheck-test", gotUA)
}

func TestGet_NoRetryByDefault(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient()
	c.MaxAttempts = 0
	_, err := c.Get(context.Background(), srv.URL)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGet_RetryOn5xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	c := testClient()
	c.MaxAttempts = 2
	_, err := c.Get(context.Background(), srv.URL)
	assert.NoError(t, err, "expected success after retry")
}

func TestGet_NoRetryOn4xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := testClient()
	c.MaxAttempts = 3
	_, err := c.Get(context.Background(), srv.URL)
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGet_Conditional304_UsesCache(t *testing.T) {
	var calls int32
	etag := `"abc123"`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("ETag", etag)
			_, _ = w.Write([]byte("first"))
			return
		}
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		fmt.Fprintln(w, "unexpected")
	}))
	defer srv.Close()

	c := testClient()
	c.Cache = &cache.HTTPCache{Dir: t.TempDir()}

	r1, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "first", string(r1.Body))
	assert.False(t, r1.FromCache)

	r2, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "first", string(r2.Body))
	assert.True(t, r2.FromCache)
	assert.Equal(t, "text/html", r2.ContentType)
}

func TestGet_RejectsNonHTTP(t *testing.T) {
	_, err := testClient().Get(context.Background(), "file:///etc/hosts")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestGet_ContentTypeGating(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	_, err := testClient().Get(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrUnsupportedContentType)
}

func TestGet_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	c := testClient()
	c.MaxBodyBytes = 16
	_, err := c.Get(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestGet_RedirectLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/next", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := testClient()
	c.RedirectMaxHops = 1
	_, err := c.Get(context.Background(), srv.URL)
	assert.Error(t, err, "redirect limit")
	c.RedirectMaxHops = 3
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(resp.URL, "/next"), "final URL = %q", resp.URL)
}

func TestGet_PrivateHostBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("request should not reach server")
	}))
	defer srv.Close()

	c := testClient()
	c.Policy = HostPolicy{}
	_, err := c.Get(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrHostNotAllowed)
}

func TestGet_MaxConcurrent(t *testing.T) {
	var inFlight, maxObserved int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		curr := atomic.AddInt32(&inFlight, 1)
		for {
			prev := atomic.LoadInt32(&maxObserved)
			if curr <= prev || atomic.CompareAndSwapInt32(&maxObserved, prev, curr) {
				break
			}
		}
		time.Sleep(100 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("ok"))
		atomic.AddInt32(&inFlight, -1)
	}))
	defer srv.Close()

	c := testClient()
	c.MaxConcurrent = 2

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _ = c.Get(context.Background(), srv.URL)
		}()
	}
	close(start)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&maxObserved), int32(2))
}

func TestGet_MaxConcurrentHonoursContext(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()
	defer close(release)

	c := testClient()
	c.MaxConcurrent = 1
	c.PerRequestTimeout = 10 * time.Second

	go func() { _, _ = c.Get(context.Background(), srv.URL) }()
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first request never reached the server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, srv.URL)
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded, "queued Get should end with its context")
	case <-time.After(2 * time.Second):
		t.Fatal("queued Get ignored its context deadline")
	}
}
