package service

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Tom-Camp/fe/internal/cache"
	"github.com/Tom-Camp/fe/internal/metrics"
	"github.com/Tom-Camp/fe/internal/telemetry"
)

// Fetcher retrieves a raw upstream document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Endpoint is where a class's document lives and how long it stays fresh.
type Endpoint struct {
	URL string
	TTL time.Duration
}

// Document is a raw upstream body and when it was retrieved.
type Document struct {
	Body      []byte
	FetchedAt time.Time
	Cached    bool
}

// Source loads device documents through the cache. Concurrent loads of the
// same class share one upstream fetch.
type Source struct {
	fetcher   Fetcher
	cache     cache.Cache
	backend   string
	endpoints map[telemetry.DeviceClass]Endpoint
	group     singleflight.Group
	now       func() time.Time
	logger    *slog.Logger

	// gens counts invalidations per key. A fetch started under an older
	// generation is not written back to the cache.
	mu   sync.Mutex
	gens map[string]uint64
}

// NewSource returns a Source. backend labels cache metrics.
func NewSource(fetcher Fetcher, c cache.Cache, backend string, endpoints map[telemetry.DeviceClass]Endpoint, logger *slog.Logger) *Source {
	if c == nil {
		c, backend = cache.None{}, "none"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		fetcher:   fetcher,
		cache:     c,
		backend:   backend,
		endpoints: endpoints,
		now:       time.Now,
		logger:    logger,
		gens:      make(map[string]uint64),
	}
}

// Load returns the document of class, from cache while it is fresh.
func (s *Source) Load(ctx context.Context, class telemetry.DeviceClass) (Document, error) {
	ep, ok := s.endpoints[class]
	if !ok || ep.URL == "" {
		return Document{}, ErrUnknownDevice
	}
	key := cache.Key(string(class))

	if doc, ok := s.lookup(ctx, key, class); ok {
		return doc, nil
	}

	// The shared fetch outlives any single caller; the fetch client's own
	// timeout bounds it. Loads after an invalidation never join a fetch
	// started before it.
	gen := s.generation(key)
	v, err, _ := s.group.Do(key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		return s.fetch(context.WithoutCancel(ctx), key, gen, class, ep)
	})
	if err != nil {
		return Document{}, err
	}
	return v.(Document), nil
}

// Invalidate drops the cached document of class.
func (s *Source) Invalidate(ctx context.Context, class telemetry.DeviceClass) error {
	if _, ok := s.endpoints[class]; !ok {
		return ErrUnknownDevice
	}
	key := cache.Key(string(class))
	s.mu.Lock()
	s.gens[key]++
	s.mu.Unlock()
	return s.cache.Delete(ctx, key)
}

func (s *Source) generation(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[key]
}

func (s *Source) lookup(ctx context.Context, key string, class telemetry.DeviceClass) (Document, bool) {
	blob, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheLookupsTotal.WithLabelValues(s.backend, "error").Inc()
		s.logger.Warn("cache read failed, fetching upstream", "class", class, "error", err)
		return Document{}, false
	case !ok:
		metrics.CacheLookupsTotal.WithLabelValues(s.backend, "miss").Inc()
		return Document{}, false
	}

	doc, err := decodeEntry(blob)
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues(s.backend, "error").Inc()
		s.logger.Warn("discarding unreadable cache entry", "class", class, "error", err)
		return Document{}, false
	}
	metrics.CacheLookupsTotal.WithLabelValues(s.backend, "hit").Inc()
	return doc, true
}

func (s *Source) fetch(ctx context.Context, key string, gen uint64, class telemetry.DeviceClass, ep Endpoint) (Document, error) {
	started := s.now()
	body, err := s.fetcher.Fetch(ctx, ep.URL)
	metrics.ObserveFetch(string(class), started, err)
	if err != nil {
		return Document{}, err
	}

	doc := Document{Body: body, FetchedAt: s.now()}
	if s.generation(key) != gen {
		s.logger.Debug("document invalidated during fetch, not caching", "class", class)
		return doc, nil
	}
	if err := s.cache.Set(ctx, key, encodeEntry(doc), ep.TTL); err != nil {
		s.logger.Warn("cache write failed", "class", class, "error", err)
	}
	return doc, nil
}

var errShortEntry = errors.New("cache entry too short")

// Entries are an 8-byte big-endian unix-nano fetch time followed by the body.
func encodeEntry(doc Document) []byte {
	out := make([]byte, 8+len(doc.Body))
	binary.BigEndian.PutUint64(out, uint64(doc.FetchedAt.UnixNano()))
	copy(out[8:], doc.Body)
	return out
}

func decodeEntry(blob []byte) (Document, error) {
	if len(blob) < 8 {
		return Document{}, errShortEntry
	}
	nanos := int64(binary.BigEndian.Uint64(blob[:8]))
	return Document{
		Body:      blob[8:],
		FetchedAt: time.Unix(0, nanos),
		Cached:    true,
	}, nil
}
