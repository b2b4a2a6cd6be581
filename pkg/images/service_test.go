package images

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pashagolub/listrank/pkg/data"
)

// fakeJikan serves /anime/{id} and /manga/{id}; ids listed in missing return 404
type fakeJikan struct {
	requests atomic.Int32
	delay    time.Duration
	missing  map[int]bool
	failing  map[int]bool

	mu   sync.Mutex
	seen []string
}

func (f *fakeJikan) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, r.URL.Path)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	var media string
	var id int
	if _, err := fmt.Sscanf(strings.ReplaceAll(r.URL.Path, "/", " "), "%s %d", &media, &id); err != nil {
		http.Error(w, "bad path", http.StatusBadRequest)
		return
	}
	switch {
	case f.missing[id]:
		http.NotFound(w, r)
	case f.failing[id]:
		http.Error(w, "slow down", http.StatusTooManyRequests)
	case id == 404404:
		fmt.Fprint(w, `{"data":{"images":{"jpg":{}}}}`)
	default:
		fmt.Fprintf(w, `{"data":{"mal_id":%d,"images":{"jpg":{"image_url":"x","large_image_url":"https://cdn.test/%s/%d-l.jpg"}}}}`, id, media, id)
	}
}

func (f *fakeJikan) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

func newTestService(t *testing.T, api *fakeJikan, opts Options) (*Service, *prometheus.Registry) {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	reg := prometheus.NewRegistry()
	opts.BaseURL = server.URL + "/"
	opts.Registerer = reg
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(opts), reg
}

func TestFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches and caches", func(t *testing.T) {
		api := &fakeJikan{}
		svc, _ := newTestService(t, api, Options{})

		url, err := svc.Fetch(ctx, MediaAnime, 5114)
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.test/anime/5114-l.jpg", url)

		url, err = svc.Fetch(ctx, MediaAnime, 5114)
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.test/anime/5114-l.jpg", url)
		assert.EqualValues(t, 1, api.requests.Load())

		cached, ok := svc.Cached(MediaAnime, 5114)
		assert.True(t, ok)
		assert.Equal(t, url, cached)
		_, ok = svc.Cached(MediaManga, 5114)
		assert.False(t, ok, "anime and manga ids are separate")

		assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.lookups.WithLabelValues(resultFetched)))
		assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.lookups.WithLabelValues(resultHit)))
	})

	t.Run("manga endpoint", func(t *testing.T) {
		api := &fakeJikan{}
		svc, _ := newTestService(t, api, Options{})

		url, err := svc.Fetch(ctx, MediaManga, 2)
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.test/manga/2-l.jpg", url)
		assert.Equal(t, []string{"/manga/2"}, api.paths())
	})

	t.Run("missing images are remembered", func(t *testing.T) {
		api := &fakeJikan{missing: map[int]bool{7: true}}
		svc, _ := newTestService(t, api, Options{})

		_, err := svc.Fetch(ctx, MediaAnime, 7)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = svc.Fetch(ctx, MediaAnime, 7)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.EqualValues(t, 1, api.requests.Load())
		assert.Equal(t, 2.0, testutil.ToFloat64(svc.metrics.lookups.WithLabelValues(resultMissing)))
	})

	t.Run("payload without image", func(t *testing.T) {
		svc, _ := newTestService(t, &fakeJikan{}, Options{})
		_, err := svc.Fetch(ctx, MediaAnime, 404404)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("server errors are retried later", func(t *testing.T) {
		api := &fakeJikan{failing: map[int]bool{9: true}}
		svc, _ := newTestService(t, api, Options{})

		_, err := svc.Fetch(ctx, MediaAnime, 9)
		assert.ErrorIs(t, err, ErrBadResponse)
		_, err = svc.Fetch(ctx, MediaAnime, 9)
		assert.ErrorIs(t, err, ErrBadResponse)
		assert.EqualValues(t, 2, api.requests.Load())
		assert.Equal(t, 2.0, testutil.ToFloat64(svc.metrics.lookups.WithLabelValues(resultError)))
	})

	t.Run("unknown media type", func(t *testing.T) {
		svc, _ := newTestService(t, &fakeJikan{}, Options{})
		_, err := svc.Fetch(ctx, MediaType("novel"), 1)
		assert.ErrorIs(t, err, ErrMediaType)
	})

	t.Run("concurrent callers share one request", func(t *testing.T) {
		api := &fakeJikan{delay: 50 * time.Millisecond}
		svc, _ := newTestService(t, api, Options{})

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				url, err := svc.Fetch(ctx, MediaAnime, 1)
				assert.NoError(t, err)
				assert.NotEmpty(t, url)
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, api.requests.Load())
	})

	t.Run("requests are paced", func(t *testing.T) {
		api := &fakeJikan{}
		svc, _ := newTestService(t, api, Options{Interval: 40 * time.Millisecond})

		start := time.Now()
		for id := 1; id <= 3; id++ {
			_, err := svc.Fetch(ctx, MediaAnime, id)
			require.NoError(t, err)
		}
		assert.GreaterOrEqual(t, time.Since(start), 75*time.Millisecond, "two waits between three requests")
	})

	t.Run("cancelled context", func(t *testing.T) {
		svc, _ := newTestService(t, &fakeJikan{}, Options{Interval: time.Hour})
		_, err := svc.Fetch(ctx, MediaAnime, 1) // consumes the burst
		require.NoError(t, err)

		short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err = svc.Fetch(short, MediaAnime, 2)
		assert.Error(t, err)
	})
}

func TestQueue(t *testing.T) {
	t.Run("priority ids jump ahead", func(t *testing.T) {
		api := &fakeJikan{}
		svc, _ := newTestService(t, api, Options{})

		svc.Enqueue(MediaAnime, []int{1, 2, 3}, false)
		svc.Enqueue(MediaAnime, []int{3, 9}, true)
		svc.Enqueue(MediaAnime, []int{2}, false)
		assert.Equal(t, 4, svc.Pending())
		assert.Equal(t, 4.0, testutil.ToFloat64(svc.metrics.queueDepth))
		assert.Equal(t, 0, svc.Progress())

		got := make(chan int, 4)
		svc.SetImageHandler(func(_ MediaType, id int, _ string) { got <- id })

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			svc.Run(ctx)
			close(done)
		}()

		var order []int
		for range 4 {
			select {
			case id := <-got:
				order = append(order, id)
			case <-time.After(5 * time.Second):
				t.Fatal("queue did not drain")
			}
		}
		cancel()
		<-done

		assert.Equal(t, []int{3, 9, 1, 2}, order)
		assert.Equal(t, 0, svc.Pending())
		assert.Equal(t, 100, svc.Progress())
	})

	t.Run("cached and missing ids are not queued", func(t *testing.T) {
		api := &fakeJikan{missing: map[int]bool{5: true}}
		svc, _ := newTestService(t, api, Options{})
		ctx := context.Background()

		_, err := svc.Fetch(ctx, MediaAnime, 4)
		require.NoError(t, err)
		_, _ = svc.Fetch(ctx, MediaAnime, 5)

		svc.Enqueue(MediaAnime, []int{4, 5, 6}, false)
		assert.Equal(t, 1, svc.Pending())
	})

	t.Run("failures are skipped", func(t *testing.T) {
		api := &fakeJikan{failing: map[int]bool{1: true}}
		svc, _ := newTestService(t, api, Options{})

		got := make(chan int, 1)
		svc.SetImageHandler(func(_ MediaType, id int, _ string) { got <- id })
		svc.Enqueue(MediaAnime, []int{1, 2}, false)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go svc.Run(ctx)

		select {
		case id := <-got:
			assert.Equal(t, 2, id)
		case <-time.After(5 * time.Second):
			t.Fatal("queue stalled on a failure")
		}
	})

	t.Run("clear", func(t *testing.T) {
		svc, _ := newTestService(t, &fakeJikan{}, Options{})
		_, err := svc.Fetch(context.Background(), MediaAnime, 1)
		require.NoError(t, err)
		svc.Enqueue(MediaAnime, []int{2, 3}, false)

		svc.Clear()
		assert.Equal(t, 0, svc.Pending())
		_, ok := svc.Cached(MediaAnime, 1)
		assert.False(t, ok)
	})
}

func TestMediaFor(t *testing.T) {
	media, ok := MediaFor(data.KindAnime)
	assert.True(t, ok)
	assert.Equal(t, MediaAnime, media)

	media, ok = MediaFor(data.KindManga)
	assert.True(t, ok)
	assert.Equal(t, MediaManga, media)

	_, ok = MediaFor(data.KindGeneric)
	assert.False(t, ok)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(data.DefaultImagesConfig())
	assert.Equal(t, "https://api.jikan.moe/v4", opts.BaseURL)
	assert.Equal(t, 400*time.Millisecond, opts.Interval)
	assert.Equal(t, 10*time.Second, opts.Timeout)
}

func TestMetricsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(Options{Registerer: reg})

	svc := New(Options{}) // unregistered metrics still work
	svc.metrics.lookups.WithLabelValues(resultHit).Inc()

	assert.Panics(t, func() { New(Options{Registerer: reg}) }, "one service per registry")

	count, err := testutil.GatherAndCount(reg, "listrank_images_queue_depth")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
