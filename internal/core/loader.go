package core

import (
	"context"
	"fmt"

	"github.com/fincollect/console/internal/reporting"
	"golang.org/x/sync/singleflight"
)

// SeriesFetcher is the slice of the reporting client the schema loader
// needs.
type SeriesFetcher interface {
	SeriesByID(ctx context.Context, id string) (*reporting.Series, error)
}

// SchemaLoader resolves a series identifier into an ordered set of field
// descriptors. Concurrent loads of the same series are coalesced into a
// single fetch; every caller still receives its own descriptor slice, so
// wizards never share mutable field state.
type SchemaLoader struct {
	client SeriesFetcher
	group  singleflight.Group
}

// NewSchemaLoader creates a loader backed by the given fetcher.
func NewSchemaLoader(client SeriesFetcher) *SchemaLoader {
	return &SchemaLoader{client: client}
}

// Load fetches the series definition and projects it into descriptors.
// On failure it returns no partial schema; callers are expected to clear
// any prior field set.
func (l *SchemaLoader) Load(ctx context.Context, seriesID string) ([]FieldDescriptor, error) {
	v, err, _ := l.group.Do(seriesID, func() (any, error) {
		return l.client.SeriesByID(ctx, seriesID)
	})
	if err != nil {
		return nil, fmt.Errorf("schema load for series %s: %w", seriesID, err)
	}
	return FieldsFromSeries(v.(*reporting.Series)), nil
}
