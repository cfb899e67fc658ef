package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Tom-Camp/fe/internal/metrics"
	"github.com/Tom-Camp/fe/internal/modules/devices/types"
	"github.com/Tom-Camp/fe/internal/telemetry"
)

// ErrUnknownDevice is returned for a class with no schema or endpoint.
var ErrUnknownDevice = errors.New("unknown device")

// Loader is the document source the service reads from.
type Loader interface {
	Load(ctx context.Context, class telemetry.DeviceClass) (Document, error)
	Invalidate(ctx context.Context, class telemetry.DeviceClass) error
}

type Service struct {
	loader     Loader
	normalizer *telemetry.Normalizer
	logger     *slog.Logger
}

func NewService(loader Loader, normalizer *telemetry.Normalizer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{loader: loader, normalizer: normalizer, logger: logger}
}

// Classes lists the device classes in navigation order.
func (s *Service) Classes() []types.DeviceInfo {
	out := make([]types.DeviceInfo, 0, len(telemetry.Classes()))
	for _, class := range telemetry.Classes() {
		schema, err := telemetry.LookupSchema(class)
		if err != nil {
			continue
		}
		out = append(out, types.DeviceInfo{
			Class:     class,
			Title:     schema.Title,
			Columns:   schema.Columns(),
			HasErrors: schema.HasErrors(),
		})
	}
	return out
}

// Dashboard loads and normalizes the document of class. Records come back
// in chronological order.
func (s *Service) Dashboard(ctx context.Context, class telemetry.DeviceClass) (types.Dashboard, error) {
	schema, err := telemetry.LookupSchema(class)
	if err != nil {
		return types.Dashboard{}, fmt.Errorf("%w: %s", ErrUnknownDevice, class)
	}

	doc, err := s.loader.Load(ctx, class)
	if err != nil {
		return types.Dashboard{}, fmt.Errorf("load %s: %w", class, err)
	}

	payload, res, err := s.normalizer.NormalizeJSON(doc.Body, schema)
	if err != nil {
		if doc.Cached {
			// A bad cached body would otherwise be served until it expires.
			if err := s.loader.Invalidate(ctx, class); err != nil {
				s.logger.Warn("invalidate malformed cache entry", "class", class, "error", err)
			}
		}
		return types.Dashboard{}, fmt.Errorf("%s: %w", class, err)
	}

	metrics.ReadingsNormalized.WithLabelValues(string(class)).Add(float64(len(res.Records)))
	metrics.ReadingsSkipped.WithLabelValues(string(class)).Add(float64(len(res.Skipped)))

	records := telemetry.SortByTimestamp(res.Records)
	return types.Dashboard{
		Class:      class,
		Title:      schema.Title,
		DeviceID:   payload.DisplayDeviceID(),
		Phase:      payload.Phase(),
		DataPoints: len(payload.Readings),
		Records:    records,
		Errors:     telemetry.SortEventsByTime(res.Errors),
		Skipped:    res.Skipped,
		Table:      telemetry.Table(records, schema),
		FetchedAt:  s.normalizer.Zone().Convert(doc.FetchedAt),
		Zone:       s.normalizer.Zone().String(),
	}, nil
}

// Overview loads every class concurrently. A failing device yields a
// Summary with Err set; it never fails the others.
func (s *Service) Overview(ctx context.Context) []types.Summary {
	classes := telemetry.Classes()
	out := make([]types.Summary, len(classes))

	g, gctx := errgroup.WithContext(ctx)
	for i, class := range classes {
		g.Go(func() error {
			d, err := s.Dashboard(gctx, class)
			if err != nil {
				s.logger.Warn("overview: device unavailable", "class", class, "error", err)
				schema, _ := telemetry.LookupSchema(class)
				out[i] = types.Summary{Class: class, Title: schema.Title, Err: err}
				return nil
			}
			sum := types.Summary{
				Class:      class,
				Title:      d.Title,
				Phase:      d.Phase,
				DataPoints: d.DataPoints,
				ErrorCount: len(d.Errors),
				FetchedAt:  d.FetchedAt,
			}
			if latest, ok := d.Latest(); ok {
				sum.Latest = &latest
			}
			out[i] = sum
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Refresh drops the cached document of class so the next load fetches.
func (s *Service) Refresh(ctx context.Context, class telemetry.DeviceClass) error {
	if _, err := telemetry.LookupSchema(class); err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, class)
	}
	if err := s.loader.Invalidate(ctx, class); err != nil {
		return fmt.Errorf("refresh %s: %w", class, err)
	}
	s.logger.Info("device cache invalidated", "class", class)
	return nil
}
