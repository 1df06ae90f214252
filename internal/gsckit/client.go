package gsckit

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	searchconsole "google.golang.org/api/searchconsole/v1"
)

// SiteEntry is one property as reported by the upstream listing.
type SiteEntry struct {
	SiteURL         string
	PermissionLevel string
}

// DimensionFilter binds one dimension to an exact-match expression.
type DimensionFilter struct {
	Dimension  string
	Expression string
}

// AnalyticsQuery is one batched upstream query, bounded by RowLimit/StartRow.
type AnalyticsQuery struct {
	StartDate  string
	EndDate    string
	Dimensions []string
	Filters    []DimensionFilter
	RowLimit   int64
	StartRow   int64
}

// AnalyticsRow is one row of search analytics data. Keys holds the dimension
// values in the same order as the query's dimension list.
type AnalyticsRow struct {
	Keys        []string `json:"keys"`
	Clicks      int64    `json:"clicks"`
	Impressions int64    `json:"impressions"`
	CTR         float64  `json:"ctr"`
	Position    float64  `json:"position"`
}

// SearchConsoleClient is the capability to list sites and run analytics queries
// under one user's live credentials.
type SearchConsoleClient interface {
	ListSites(ctx context.Context) ([]SiteEntry, error)
	QueryAnalytics(ctx context.Context, siteURL string, query AnalyticsQuery) ([]AnalyticsRow, error)
}

// ClientFactory builds a SearchConsoleClient from live credentials. Tests
// substitute a factory returning canned responses.
type ClientFactory func(ctx context.Context, credentials LiveCredentials) (SearchConsoleClient, error)

type googleSearchConsoleClient struct {
	service *searchconsole.Service
}

// NewGoogleSearchConsoleClient wires the generated Search Console client with a
// static token source. Refresh is the credential manager's job, so an expiring
// token here simply fails the call.
func NewGoogleSearchConsoleClient(ctx context.Context, credentials LiveCredentials) (SearchConsoleClient, error) {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: credentials.AccessToken,
		Expiry:      credentials.ExpiresAt,
	})
	service, serviceErr := searchconsole.NewService(ctx, option.WithTokenSource(tokenSource))
	if serviceErr != nil {
		return nil, fmt.Errorf("gsc.client.new: %w", serviceErr)
	}
	return &googleSearchConsoleClient{service: service}, nil
}

// ListSites performs the single, unpaginated upstream listing call.
func (client *googleSearchConsoleClient) ListSites(ctx context.Context) ([]SiteEntry, error) {
	response, listErr := client.service.Sites.List().Context(ctx).Do()
	if listErr != nil {
		return nil, fmt.Errorf("gsc.client.list_sites: %w: %v", ErrUpstream, listErr)
	}
	entries := make([]SiteEntry, 0, len(response.SiteEntry))
	for _, entry := range response.SiteEntry {
		entries = append(entries, SiteEntry{
			SiteURL:         entry.SiteUrl,
			PermissionLevel: entry.PermissionLevel,
		})
	}
	return entries, nil
}

// QueryAnalytics executes one bounded query against the upstream API.
func (client *googleSearchConsoleClient) QueryAnalytics(ctx context.Context, siteURL string, query AnalyticsQuery) ([]AnalyticsRow, error) {
	request := &searchconsole.SearchAnalyticsQueryRequest{
		StartDate:  query.StartDate,
		EndDate:    query.EndDate,
		Dimensions: query.Dimensions,
		RowLimit:   query.RowLimit,
		StartRow:   query.StartRow,
	}
	if len(query.Filters) > 0 {
		group := &searchconsole.ApiDimensionFilterGroup{}
		for _, filter := range query.Filters {
			group.Filters = append(group.Filters, &searchconsole.ApiDimensionFilter{
				Dimension:  filter.Dimension,
				Expression: filter.Expression,
			})
		}
		request.DimensionFilterGroups = []*searchconsole.ApiDimensionFilterGroup{group}
	}
	response, queryErr := client.service.Searchanalytics.Query(siteURL, request).Context(ctx).Do()
	if queryErr != nil {
		return nil, fmt.Errorf("gsc.client.query: %w: %v", ErrUpstream, queryErr)
	}
	rows := make([]AnalyticsRow, 0, len(response.Rows))
	for _, row := range response.Rows {
		rows = append(rows, AnalyticsRow{
			Keys:        row.Keys,
			Clicks:      int64(row.Clicks),
			Impressions: int64(row.Impressions),
			CTR:         row.Ctr,
			Position:    row.Position,
		})
	}
	return rows, nil
}
