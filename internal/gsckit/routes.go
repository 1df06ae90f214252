package gsckit

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// DefaultRowLimit is the row limit applied when the caller supplies none.
const DefaultRowLimit = int64(25000)

// UserIDResolver extracts the authenticated caller's opaque user id from the
// request context. It returns false when no authenticated identity is present.
type UserIDResolver func(contextGin *gin.Context) (string, bool)

// MountRoutes registers /gsc/sites and /gsc/search-analytics behind the
// supplied session middleware.
func MountRoutes(router gin.IRouter, service *Service, requireSession gin.HandlerFunc, resolveUserID UserIDResolver) {
	group := router.Group("/gsc")
	group.Use(requireSession)
	group.GET("/sites", handleListSites(service, resolveUserID))
	group.GET("/search-analytics", handleSearchAnalytics(service, resolveUserID))
}

func handleListSites(service *Service, resolveUserID UserIDResolver) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		userID, ok := resolveUserID(contextGin)
		if !ok || userID == "" {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		sites, listErr := service.ListSites(contextGin.Request.Context(), userID)
		if listErr != nil {
			abortWithDomainError(contextGin, listErr)
			return
		}
		contextGin.JSON(http.StatusOK, sites)
	}
}

func handleSearchAnalytics(service *Service, resolveUserID UserIDResolver) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		userID, ok := resolveUserID(contextGin)
		if !ok || userID == "" {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		siteURL := strings.TrimSpace(contextGin.Query("site_url"))
		if siteURL == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing_site_url"})
			return
		}

		rowLimit := DefaultRowLimit
		if rawRowLimit := strings.TrimSpace(contextGin.Query("row_limit")); rawRowLimit != "" {
			parsed, parseErr := strconv.ParseInt(rawRowLimit, 10, 64)
			if parseErr != nil || parsed < 0 {
				contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_row_limit"})
				return
			}
			rowLimit = parsed
		}

		request := AnalyticsRequest{
			SiteURL:   siteURL,
			StartDate: contextGin.Query("start_date"),
			EndDate:   contextGin.Query("end_date"),
			RowLimit:  rowLimit,
			Dimension: contextGin.Query("dimension"),
			Country:   contextGin.Query("country"),
			Device:    contextGin.Query("device"),
			Keyword:   contextGin.Query("keyword"),
			Page:      contextGin.Query("page"),
		}

		rows, fetchErr := service.SearchAnalytics(contextGin.Request.Context(), userID, request)
		if fetchErr != nil {
			abortWithDomainError(contextGin, fetchErr)
			return
		}
		contextGin.JSON(http.StatusOK, rows)
	}
}

// abortWithDomainError maps the error taxonomy onto HTTP statuses: a missing
// account is a 404, dead credentials are a 401, upstream rejections are a 502.
func abortWithDomainError(contextGin *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrAccountNotLinked):
		contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "account_not_linked"})
	case errors.Is(err, ErrCredentialRefreshFailed), errors.Is(err, ErrCredentialUnrecoverable):
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "credentials_invalid", "detail": err.Error()})
	case errors.Is(err, ErrUpstream):
		contextGin.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "upstream_error", "detail": err.Error()})
	default:
		contextGin.AbortWithStatus(http.StatusInternalServerError)
	}
}
