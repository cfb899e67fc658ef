package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tom-Camp/fe/internal/cache"
	"github.com/Tom-Camp/fe/internal/fetch"
	"github.com/Tom-Camp/fe/internal/telemetry"
)

const germinatorDoc = `{
  "device_id": "67e0a7e5237033b03c44a99a",
  "notes": {"phase": "sprouting"},
  "data": [
    {"created_date": "2024-06-01T13:00:00Z", "data": {"lights": true, "soil": {"soil_temp": 72.5, "moisture": 950},
      "air": {"humidity": {"actual": 61, "target": [55, 70]}, "temperature": {"actual": 74, "target": [68, 80]}},
      "errors": [{"sensor": "dht22", "message": "checksum"}]}},
    {"created_date": "2024-06-01T12:00:00Z", "data": {"lights": false, "soil": {"soil_temp": 70, "moisture": 900},
      "air": {"humidity": {"actual": 60, "target": [55, 70]}, "temperature": {"actual": 73, "target": [68, 80]}}}},
    {"created_date": "yesterday", "data": {}}
  ]
}`

const coopDoc = `{"device_id": "coop-1", "data": [
  {"created_date": "2024-06-01T12:00:00Z", "data": {"battery": 4.1, "outside": {"air_temp": 60, "humidity": 40},
   "coop": {"coop_temp": 65, "coop_humidity": 45, "coop_gas": 5000, "coop_pressure": 1013}}}
]}`

type fakeLoader struct {
	mu          sync.Mutex
	docs        map[telemetry.DeviceClass]Document
	errs        map[telemetry.DeviceClass]error
	invalidated []telemetry.DeviceClass
}

func (f *fakeLoader) Load(_ context.Context, class telemetry.DeviceClass) (Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[class]; err != nil {
		return Document{}, err
	}
	doc, ok := f.docs[class]
	if !ok {
		return Document{}, ErrUnknownDevice
	}
	return doc, nil
}

func (f *fakeLoader) Invalidate(_ context.Context, class telemetry.DeviceClass) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, class)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, loader Loader) *Service {
	t.Helper()
	zone, err := telemetry.NewZoneConverter("-04:00")
	require.NoError(t, err)
	return NewService(loader, telemetry.NewNormalizer(zone, discardLogger()), discardLogger())
}

var fetchedAt = time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

func TestService_Dashboard(t *testing.T) {
	svc := newTestService(t, &fakeLoader{docs: map[telemetry.DeviceClass]Document{
		telemetry.Germinator: {Body: []byte(germinatorDoc), FetchedAt: fetchedAt},
	}})

	d, err := svc.Dashboard(context.Background(), telemetry.Germinator)
	require.NoError(t, err)

	assert.Equal(t, "The Germinator", d.Title)
	assert.Equal(t, "67e0a7e5237033b03c44a99a", d.DeviceID)
	assert.Equal(t, "sprouting", d.Phase)
	assert.Equal(t, 3, d.DataPoints)
	require.Len(t, d.Records, 2)
	assert.Len(t, d.Skipped, 1)
	assert.True(t, d.Records[0].Timestamp.Before(d.Records[1].Timestamp), "records not sorted")
	assert.Equal(t, 8, d.Records[0].Timestamp.Hour())
	assert.Equal(t, 2, d.Table.Len())
	require.Len(t, d.Errors, 1)
	assert.Equal(t, "dht22", d.Errors[0].Sensor)
	assert.Equal(t, "UTC-04:00", d.Zone)
	assert.Equal(t, 10, d.FetchedAt.Hour())

	latest, ok := d.Latest()
	require.True(t, ok)
	assert.Equal(t, 72.5, latest.Numbers["soil_temp"])
}

func TestService_Dashboard_errors(t *testing.T) {
	fetchErr := &fetch.FetchError{URL: "https://x", StatusCode: http.StatusBadGateway}
	loader := &fakeLoader{
		docs: map[telemetry.DeviceClass]Document{
			telemetry.Germinator: {Body: []byte(`{"data": "nope"}`), Cached: true},
		},
		errs: map[telemetry.DeviceClass]error{telemetry.Coop: fetchErr},
	}
	svc := newTestService(t, loader)
	ctx := context.Background()

	_, err := svc.Dashboard(ctx, "toaster")
	assert.ErrorIs(t, err, ErrUnknownDevice)

	_, err = svc.Dashboard(ctx, telemetry.Coop)
	var fe *fetch.FetchError
	assert.ErrorAs(t, err, &fe)

	_, err = svc.Dashboard(ctx, telemetry.Germinator)
	assert.ErrorIs(t, err, telemetry.ErrMalformedPayload)
	assert.Equal(t, []telemetry.DeviceClass{telemetry.Germinator}, loader.invalidated, "malformed cached body not dropped")
}

func TestService_Dashboard_noRecords(t *testing.T) {
	svc := newTestService(t, &fakeLoader{docs: map[telemetry.DeviceClass]Document{
		telemetry.Coop: {Body: []byte(`{"device_id":"c","data":[]}`)},
	}})

	d, err := svc.Dashboard(context.Background(), telemetry.Coop)
	require.NoError(t, err)
	assert.True(t, d.Empty())
	assert.Equal(t, 0, d.DataPoints)
	_, ok := d.Latest()
	assert.False(t, ok)
	assert.NotNil(t, d.Errors)
}

func TestService_Overview(t *testing.T) {
	svc := newTestService(t, &fakeLoader{
		docs: map[telemetry.DeviceClass]Document{
			telemetry.Coop: {Body: []byte(coopDoc), FetchedAt: fetchedAt},
		},
		errs: map[telemetry.DeviceClass]error{
			telemetry.Germinator: &fetch.FetchError{URL: "https://g", Err: errors.New("connection refused")},
		},
	})

	sums := svc.Overview(context.Background())
	require.Len(t, sums, 2)

	assert.Equal(t, telemetry.Germinator, sums[0].Class)
	assert.Equal(t, "The Germinator", sums[0].Title)
	assert.Error(t, sums[0].Err)
	assert.Nil(t, sums[0].Latest)

	assert.Equal(t, telemetry.Coop, sums[1].Class)
	require.NoError(t, sums[1].Err)
	require.NotNil(t, sums[1].Latest)
	assert.Equal(t, 4.1, sums[1].Latest.Numbers["battery"])
	assert.Equal(t, 1, sums[1].DataPoints)
}

func TestService_Refresh(t *testing.T) {
	loader := &fakeLoader{}
	svc := newTestService(t, loader)

	require.NoError(t, svc.Refresh(context.Background(), telemetry.Coop))
	assert.Equal(t, []telemetry.DeviceClass{telemetry.Coop}, loader.invalidated)

	assert.ErrorIs(t, svc.Refresh(context.Background(), "toaster"), ErrUnknownDevice)
}

func TestService_Classes(t *testing.T) {
	svc := newTestService(t, &fakeLoader{})
	infos := svc.Classes()

	require.Len(t, infos, 2)
	assert.Equal(t, telemetry.Germinator, infos[0].Class)
	assert.True(t, infos[0].HasErrors)
	assert.False(t, infos[1].HasErrors)
	assert.Contains(t, infos[1].Columns, "coop_gas")
}

type countingFetcher struct {
	calls atomic.Int32
	body  []byte
	err   error
	gate  chan struct{}
}

func (f *countingFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return f.body, f.err
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("cache down")
}
func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache down")
}
func (failingCache) Delete(context.Context, string) error { return errors.New("cache down") }

func endpoints() map[telemetry.DeviceClass]Endpoint {
	return map[telemetry.DeviceClass]Endpoint{
		telemetry.Germinator: {URL: "https://example.test/germinator", TTL: time.Hour},
		telemetry.Coop:       {URL: "https://example.test/coop", TTL: 15 * time.Minute},
	}
}

func TestSource_cachesWithinWindow(t *testing.T) {
	now := fetchedAt
	clock := func() time.Time { return now }
	f := &countingFetcher{body: []byte(coopDoc)}
	src := NewSource(f, cache.NewMemory(clock), "memory", endpoints(), discardLogger())
	src.now = clock
	ctx := context.Background()

	first, err := src.Load(ctx, telemetry.Coop)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	now = now.Add(10 * time.Minute)
	second, err := src.Load(ctx, telemetry.Coop)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, coopDoc, string(second.Body))
	assert.True(t, second.FetchedAt.Equal(fetchedAt))
	assert.EqualValues(t, 1, f.calls.Load())

	now = now.Add(5 * time.Minute)
	_, err = src.Load(ctx, telemetry.Coop)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.calls.Load(), "stale document served")
}

func TestSource_invalidate(t *testing.T) {
	f := &countingFetcher{body: []byte(coopDoc)}
	src := NewSource(f, cache.NewMemory(nil), "memory", endpoints(), discardLogger())
	ctx := context.Background()

	_, err := src.Load(ctx, telemetry.Coop)
	require.NoError(t, err)
	require.NoError(t, src.Invalidate(ctx, telemetry.Coop))
	_, err = src.Load(ctx, telemetry.Coop)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.calls.Load())

	assert.ErrorIs(t, src.Invalidate(ctx, "toaster"), ErrUnknownDevice)
}

func TestSource_invalidateDuringFetchNotCached(t *testing.T) {
	f := &countingFetcher{body: []byte(coopDoc), gate: make(chan struct{})}
	mem := cache.NewMemory(nil)
	src := NewSource(f, mem, "memory", endpoints(), discardLogger())
	ctx := context.Background()

	loaded := make(chan error, 1)
	go func() {
		_, err := src.Load(ctx, telemetry.Coop)
		loaded <- err
	}()
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, src.Invalidate(ctx, telemetry.Coop))
	close(f.gate)
	require.NoError(t, <-loaded)

	_, ok, err := mem.Get(ctx, cache.Key(string(telemetry.Coop)))
	require.NoError(t, err)
	assert.False(t, ok, "document fetched before the refresh was cached")

	_, err = src.Load(ctx, telemetry.Coop)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestSource_fetchErrorNotCached(t *testing.T) {
	f := &countingFetcher{err: &fetch.FetchError{URL: "u", StatusCode: 500}}
	src := NewSource(f, cache.NewMemory(nil), "memory", endpoints(), discardLogger())
	ctx := context.Background()

	for range 2 {
		_, err := src.Load(ctx, telemetry.Coop)
		var fe *fetch.FetchError
		require.ErrorAs(t, err, &fe)
	}
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestSource_cacheFailureFallsBackToFetch(t *testing.T) {
	f := &countingFetcher{body: []byte(coopDoc)}
	src := NewSource(f, failingCache{}, "broken", endpoints(), discardLogger())

	doc, err := src.Load(context.Background(), telemetry.Coop)
	require.NoError(t, err)
	assert.Equal(t, coopDoc, string(doc.Body))
}

func TestSource_unknownClass(t *testing.T) {
	src := NewSource(&countingFetcher{}, nil, "", endpoints(), nil)
	_, err := src.Load(context.Background(), "toaster")
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestSource_deduplicatesConcurrentLoads(t *testing.T) {
	f := &countingFetcher{body: []byte(coopDoc), gate: make(chan struct{})}
	src := NewSource(f, cache.None{}, "none", endpoints(), discardLogger())

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := src.Load(context.Background(), telemetry.Coop)
			errs <- err
		}()
	}

	// Let the first fetch start, then release it.
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.LessOrEqual(t, f.calls.Load(), int32(callers))
	assert.GreaterOrEqual(t, f.calls.Load(), int32(1))
}

func TestEntryRoundTrip(t *testing.T) {
	doc := Document{Body: []byte(`{"a":1}`), FetchedAt: fetchedAt}
	got, err := decodeEntry(encodeEntry(doc))
	require.NoError(t, err)
	assert.Equal(t, doc.Body, got.Body)
	assert.True(t, got.FetchedAt.Equal(fetchedAt))
	assert.True(t, got.Cached)

	_, err = decodeEntry([]byte{1, 2})
	assert.Error(t, err)
}
