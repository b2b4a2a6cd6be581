// Package images looks up cover art for list entries through a Jikan compatible
// API. Lookups are cached, deduplicated and paced to respect the API rate limit,
// and a background queue lets the upcoming comparisons jump ahead of the rest.
package images

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/pashagolub/listrank/pkg/data"
)

// Error types for image lookups
var (
	ErrNotFound    = errors.New("image not found")
	ErrBadResponse = errors.New("unexpected image API response")
	ErrMediaType   = errors.New("unsupported media type")
)

// MediaType selects the API collection an id belongs to
type MediaType string

const (
	MediaAnime MediaType = "anime"
	MediaManga MediaType = "manga"
)

// MediaFor maps a list kind to its media type; generic lists have none
func MediaFor(kind data.ListKind) (MediaType, bool) {
	switch kind {
	case data.KindAnime:
		return MediaAnime, true
	case data.KindManga:
		return MediaManga, true
	}
	return "", false
}

// Options configures a Service
type Options struct {
	BaseURL    string
	Interval   time.Duration // minimum gap between API requests
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	Registerer prometheus.Registerer
	OnImage    func(media MediaType, id int, url string) // called from the queue worker
}

// OptionsFromConfig builds service options from the images config section
func OptionsFromConfig(config data.ImagesConfig) Options {
	return Options{
		BaseURL:  config.BaseURL,
		Interval: config.RequestInterval,
		Timeout:  config.Timeout,
	}
}

type imageKey struct {
	media MediaType
	id    int
}

// jikanResponse is the part of the Jikan item payload the service reads
type jikanResponse struct {
	Data struct {
		Images struct {
			JPG struct {
				LargeImageURL string `json:"large_image_url"`
			} `json:"jpg"`
		} `json:"images"`
	} `json:"data"`
}

// Service fetches and caches image URLs
type Service struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	flight  singleflight.Group
	logger  *slog.Logger
	metrics *Metrics
	onImage func(MediaType, int, string)

	mu        sync.Mutex
	cache     map[imageKey]string
	missing   map[imageKey]bool // ids the API has no image for
	queue     []imageKey
	batch     int // lookups queued since the queue was last empty
	completed int
	wake      chan struct{}
}

// New creates a Service
func New(opts Options) *Service {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}

	return &Service{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With("component", "images"),
		metrics: NewMetrics(opts.Registerer),
		onImage: opts.OnImage,
		cache:   make(map[imageKey]string),
		missing: make(map[imageKey]bool),
		wake:    make(chan struct{}, 1),
	}
}

// Cached returns a previously fetched URL without touching the network
func (s *Service) Cached(media MediaType, id int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	url, ok := s.cache[imageKey{media, id}]
	return url, ok
}

// Fetch returns the image URL for an item, calling the API at most once per
// item across concurrent callers
func (s *Service) Fetch(ctx context.Context, media MediaType, id int) (string, error) {
	if media != MediaAnime && media != MediaManga {
		return "", fmt.Errorf("%w: %q", ErrMediaType, media)
	}
	key := imageKey{media, id}

	s.mu.Lock()
	url, hit := s.cache[key]
	missing := s.missing[key]
	s.mu.Unlock()
	if hit {
		s.metrics.lookups.WithLabelValues(resultHit).Inc()
		return url, nil
	}
	if missing {
		s.metrics.lookups.WithLabelValues(resultMissing).Inc()
		return "", fmt.Errorf("%w: %s %d", ErrNotFound, media, id)
	}

	result, err, _ := s.flight.Do(string(media)+"/"+strconv.Itoa(id), func() (any, error) {
		return s.fetchFromAPI(ctx, key)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// fetchFromAPI performs one paced API request and records the outcome
func (s *Service) fetchFromAPI(ctx context.Context, key imageKey) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	url, err := s.request(ctx, key)
	s.metrics.latency.Observe(time.Since(start).Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err == nil:
		s.cache[key] = url
		s.metrics.lookups.WithLabelValues(resultFetched).Inc()
	case errors.Is(err, ErrNotFound):
		s.missing[key] = true
		s.metrics.lookups.WithLabelValues(resultMissing).Inc()
	default:
		s.metrics.lookups.WithLabelValues(resultError).Inc()
	}
	return url, err
}

func (s *Service) request(ctx context.Context, key imageKey) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/%d", s.baseURL, key.media, key.id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s %d", ErrNotFound, key.media, key.id)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: %s %d returned %s", ErrBadResponse, key.media, key.id, resp.Status)
	}

	var payload jikanResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	url := payload.Data.Images.JPG.LargeImageURL
	if url == "" {
		return "", fmt.Errorf("%w: %s %d has no large image", ErrNotFound, key.media, key.id)
	}
	return url, nil
}

// Enqueue schedules background lookups. Priority ids go to the front of the
// queue, in the given order; ids already cached or known missing are ignored.
func (s *Service) Enqueue(media MediaType, ids []int, priority bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make([]imageKey, 0, len(ids))
	for _, id := range ids {
		key := imageKey{media, id}
		if _, ok := s.cache[key]; ok || s.missing[key] {
			continue
		}
		if i := s.position(key); i >= 0 {
			if !priority {
				continue
			}
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.batch--
		}
		fresh = append(fresh, key)
	}
	if len(fresh) == 0 {
		return
	}

	if priority {
		s.queue = append(fresh, s.queue...)
	} else {
		s.queue = append(s.queue, fresh...)
	}
	s.batch += len(fresh)
	s.metrics.queueDepth.Set(float64(len(s.queue)))

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) position(key imageKey) int {
	for i, queued := range s.queue {
		if queued == key {
			return i
		}
	}
	return -1
}

// SetImageHandler replaces the callback invoked for every background lookup
// that produced an image
func (s *Service) SetImageHandler(fn func(media MediaType, id int, url string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onImage = fn
}

// Pending returns the number of queued lookups
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Progress returns the share of the current background batch already
// processed, 100 when the queue is idle
func (s *Service) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batch == 0 {
		return 100
	}
	return s.completed * 100 / s.batch
}

// Run drains the queue until ctx is cancelled. Failed lookups are logged and
// skipped.
func (s *Service) Run(ctx context.Context) {
	for {
		key, ok := s.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}

		url, err := s.Fetch(ctx, key.media, key.id)
		s.finish()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("image lookup failed", "media", key.media, "id", key.id, "error", err)
			continue
		}
		s.mu.Lock()
		handler := s.onImage
		s.mu.Unlock()
		if handler != nil {
			handler(key.media, key.id, url)
		}
	}
}

func (s *Service) next() (imageKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return imageKey{}, false
	}
	key := s.queue[0]
	s.queue = s.queue[1:]
	s.metrics.queueDepth.Set(float64(len(s.queue)))
	return key, true
}

func (s *Service) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
	if len(s.queue) == 0 {
		s.batch, s.completed = 0, 0
	}
}

// Clear drops the cache and the queue
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[imageKey]string)
	s.missing = make(map[imageKey]bool)
	s.queue = nil
	s.batch, s.completed = 0, 0
	s.metrics.queueDepth.Set(0)
}
