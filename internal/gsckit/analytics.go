package gsckit

import (
	"context"
)

// MaxBatchRows is the upstream API's hard per-call row ceiling. Requests for
// more rows than this are serviced by repeated offset-advancing calls.
const MaxBatchRows = 25000

const dateDimension = "date"

// AnalyticsRequest describes one caller-facing analytics retrieval.
type AnalyticsRequest struct {
	SiteURL   string
	StartDate string
	EndDate   string
	// RowLimit caps the returned row count. Zero or negative means fetch
	// everything available.
	RowLimit int64
	// Dimension is an optional grouping axis appended after the implicit date
	// dimension ("query", "page", "country", or "device").
	Dimension string
	Country   string
	Device    string
	Keyword   string
	Page      string
}

func (request AnalyticsRequest) dimensions() []string {
	if request.Dimension == "" || request.Dimension == dateDimension {
		return []string{dateDimension}
	}
	return []string{dateDimension, request.Dimension}
}

func (request AnalyticsRequest) filters() []DimensionFilter {
	var filters []DimensionFilter
	if request.Country != "" {
		filters = append(filters, DimensionFilter{Dimension: "country", Expression: request.Country})
	}
	if request.Device != "" {
		filters = append(filters, DimensionFilter{Dimension: "device", Expression: request.Device})
	}
	if request.Keyword != "" {
		// The upstream API names the keyword axis "query".
		filters = append(filters, DimensionFilter{Dimension: "query", Expression: request.Keyword})
	}
	if request.Page != "" {
		filters = append(filters, DimensionFilter{Dimension: "page", Expression: request.Page})
	}
	return filters
}

// CanonicalSiteURL normalizes any caller-supplied property reference to the
// sc-domain form the upstream query endpoint expects.
func CanonicalSiteURL(siteURL string) string {
	return domainPropertyPrefix + displayDomain(siteURL)
}

// FetchSearchAnalytics retrieves analytics rows across one or more batches
// until the upstream source is exhausted or the requested row limit is met.
// Batches are strictly sequential with ascending start rows; a batch shorter
// than its requested limit is the only exhaustion signal the upstream exposes,
// as no total-count field is trusted. Any batch failure propagates
// immediately, discarding rows accumulated so far.
func FetchSearchAnalytics(ctx context.Context, client SearchConsoleClient, request AnalyticsRequest) ([]AnalyticsRow, error) {
	dimensions := request.dimensions()
	filters := request.filters()
	canonicalSite := CanonicalSiteURL(request.SiteURL)

	fetchAll := request.RowLimit <= 0 || request.RowLimit > MaxBatchRows

	var collected []AnalyticsRow
	startRow := int64(0)
	for {
		batchLimit := request.RowLimit
		if fetchAll {
			batchLimit = MaxBatchRows
		}
		batch, queryErr := client.QueryAnalytics(ctx, canonicalSite, AnalyticsQuery{
			StartDate:  request.StartDate,
			EndDate:    request.EndDate,
			Dimensions: dimensions,
			Filters:    filters,
			RowLimit:   batchLimit,
			StartRow:   startRow,
		})
		if queryErr != nil {
			return nil, queryErr
		}
		collected = append(collected, batch...)

		if int64(len(batch)) < batchLimit {
			break
		}
		if !fetchAll && int64(len(collected)) >= request.RowLimit {
			collected = collected[:request.RowLimit]
			break
		}
		startRow += batchLimit
	}
	return collected, nil
}
