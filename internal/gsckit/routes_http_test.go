package gsckit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T, client SearchConsoleClient, store AccountStore, userID string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager := NewCredentialManager(store, CredentialConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}, nil, nil)
	factory := func(ctx context.Context, credentials LiveCredentials) (SearchConsoleClient, error) {
		return client, nil
	}
	service := NewService(manager, factory, nil, nil)

	requireSession := func(contextGin *gin.Context) {
		if userID == "" {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		contextGin.Set("test_user", userID)
		contextGin.Next()
	}
	resolveUserID := func(contextGin *gin.Context) (string, bool) {
		value, exists := contextGin.Get("test_user")
		if !exists {
			return "", false
		}
		resolved, ok := value.(string)
		return resolved, ok
	}

	router := gin.New()
	MountRoutes(router, service, requireSession, resolveUserID)
	return router
}

func seedLinkedAccount(t *testing.T, store AccountStore, userID string) {
	t.Helper()
	err := store.Save(context.Background(), AccountRecord{
		UserID:               userID,
		AccessToken:          "live-token",
		RefreshToken:         "refresh-token",
		AccessTokenExpiresAt: time.Now().UTC().Add(time.Hour),
		UpdatedAt:            time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
}

func TestSitesRouteReturnsAnnotatedSites(t *testing.T) {
	store := NewMemoryAccountStore()
	seedLinkedAccount(t, store, "user-1")
	client := &fakeSearchConsoleClient{sites: []SiteEntry{
		{SiteURL: "sc-domain:example.com", PermissionLevel: "siteOwner"},
	}}
	router := newTestRouter(t, client, store, "user-1")

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/gsc/sites", nil)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var sites []Site
	if decodeErr := json.Unmarshal(recorder.Body.Bytes(), &sites); decodeErr != nil {
		t.Fatalf("failed to decode response: %v", decodeErr)
	}
	if len(sites) != 1 || sites[0].FaviconURL == "" {
		t.Fatalf("expected one annotated site, got %+v", sites)
	}
}

func TestSitesRouteUnauthenticated(t *testing.T) {
	router := newTestRouter(t, &fakeSearchConsoleClient{}, NewMemoryAccountStore(), "")

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/gsc/sites", nil)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestSitesRouteAccountNotLinked(t *testing.T) {
	router := newTestRouter(t, &fakeSearchConsoleClient{}, NewMemoryAccountStore(), "user-1")

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/gsc/sites", nil)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unlinked account, got %d", recorder.Code)
	}
}

func TestSearchAnalyticsRoutePlumbsQueryParameters(t *testing.T) {
	store := NewMemoryAccountStore()
	seedLinkedAccount(t, store, "user-1")
	client := &fakeSearchConsoleClient{batches: [][]AnalyticsRow{makeRows(5)}}
	router := newTestRouter(t, client, store, "user-1")

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet,
		"/gsc/search-analytics?site_url=example.com&start_date=2024-01-01&end_date=2024-01-31&row_limit=5&dimension=query&country=USA&device=MOBILE",
		nil)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var rows []AnalyticsRow
	if decodeErr := json.Unmarshal(recorder.Body.Bytes(), &rows); decodeErr != nil {
		t.Fatalf("failed to decode response: %v", decodeErr)
	}
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}

	if len(client.queries) != 1 {
		t.Fatalf("expected one upstream call, got %d", len(client.queries))
	}
	recorded := client.queries[0]
	if recorded.siteURL != "sc-domain:example.com" {
		t.Fatalf("expected canonical site url, got %q", recorded.siteURL)
	}
	if recorded.query.StartDate != "2024-01-01" || recorded.query.EndDate != "2024-01-31" {
		t.Fatalf("dates not plumbed: %+v", recorded.query)
	}
	if recorded.query.RowLimit != 5 {
		t.Fatalf("expected row limit 5, got %d", recorded.query.RowLimit)
	}
	if len(recorded.query.Dimensions) != 2 || recorded.query.Dimensions[1] != "query" {
		t.Fatalf("dimension not plumbed: %v", recorded.query.Dimensions)
	}
	if len(recorded.query.Filters) != 2 {
		t.Fatalf("expected 2 filters, got %v", recorded.query.Filters)
	}
}

func TestSearchAnalyticsRouteDefaultsRowLimit(t *testing.T) {
	store := NewMemoryAccountStore()
	seedLinkedAccount(t, store, "user-1")
	client := &fakeSearchConsoleClient{batches: [][]AnalyticsRow{nil}}
	router := newTestRouter(t, client, store, "user-1")

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/gsc/search-analytics?site_url=example.com", nil)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if client.queries[0].query.RowLimit != DefaultRowLimit {
		t.Fatalf("expected default row limit %d, got %d", DefaultRowLimit, client.queries[0].query.RowLimit)
	}
}

func TestSearchAnalyticsRouteRejectsBadInput(t *testing.T) {
	store := NewMemoryAccountStore()
	seedLinkedAccount(t, store, "user-1")
	router := newTestRouter(t, &fakeSearchConsoleClient{}, store, "user-1")

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/gsc/search-analytics", nil)
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing site_url, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	request = httptest.NewRequest(http.MethodGet, "/gsc/search-analytics?site_url=example.com&row_limit=abc", nil)
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed row_limit, got %d", recorder.Code)
	}
}

func TestSearchAnalyticsRouteMapsUpstreamFailure(t *testing.T) {
	store := NewMemoryAccountStore()
	seedLinkedAccount(t, store, "user-1")
	client := &fakeSearchConsoleClient{queryErr: ErrUpstream}
	router := newTestRouter(t, client, store, "user-1")

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/gsc/search-analytics?site_url=example.com", nil)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for upstream failure, got %d", recorder.Code)
	}
}
