package geo

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// Address fields consulted in order.
var addressFields = []string{"job_location", "company_address"}

// Enricher sets the distance field on details it can geocode.
type Enricher struct {
	geocoder Geocoder
	origin   Coordinates
	logger   *zap.Logger
}

// NewEnricher returns an Enricher measuring from origin.
func NewEnricher(geocoder Geocoder, origin Coordinates, logger *zap.Logger) (*Enricher, error) {
	if geocoder == nil {
		return nil, fmt.Errorf("geocoder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{geocoder: geocoder, origin: origin, logger: logger.Named("geo")}, nil
}

// Enrich implements crawler.Enricher. Details whose address cannot be resolved
// keep a blank distance.
func (e *Enricher) Enrich(ctx context.Context, detail crawler.DetailRecord) (crawler.DetailRecord, error) {
	for _, field := range addressFields {
		addr := strings.TrimSpace(detail.Get(field))
		if addr == "" {
			continue
		}
		coords, ok, err := e.geocoder.Geocode(ctx, addr)
		if err != nil {
			return detail, fmt.Errorf("geocode %q: %w", addr, err)
		}
		if !ok {
			continue
		}
		km := Haversine(e.origin, coords)
		return detail.With(crawler.FieldDistance, strconv.FormatFloat(km, 'f', 1, 64)), nil
	}
	e.logger.Debug("no geocodable address", zap.String("url", detail.URL))
	if _, present := detail.Fields.Lookup(crawler.FieldDistance); present {
		return detail, nil
	}
	return detail.With(crawler.FieldDistance, ""), nil
}
