package gsckit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const (
	domainPropertyPrefix   = "sc-domain:"
	faviconServiceTemplate = "https://www.google.com/s2/favicons?domain=%s"
)

// Site is one Search Console property annotated for display.
type Site struct {
	SiteURL         string `json:"siteUrl"`
	PermissionLevel string `json:"permissionLevel"`
	FaviconURL      string `json:"faviconUrl"`
}

// ListSites fetches the properties visible under the client's credentials and
// annotates each with a favicon derived from its display domain.
func ListSites(ctx context.Context, client SearchConsoleClient) ([]Site, error) {
	entries, listErr := client.ListSites(ctx)
	if listErr != nil {
		return nil, listErr
	}
	sites := make([]Site, 0, len(entries))
	for _, entry := range entries {
		sites = append(sites, Site{
			SiteURL:         entry.SiteURL,
			PermissionLevel: entry.PermissionLevel,
			FaviconURL:      faviconURL(displayDomain(entry.SiteURL)),
		})
	}
	return sites, nil
}

// displayDomain derives the human-facing domain from a property reference.
// "sc-domain:example.com" yields "example.com"; URL-prefix properties yield
// their host; anything else passes through unchanged.
func displayDomain(siteURL string) string {
	if strings.HasPrefix(siteURL, domainPropertyPrefix) {
		return strings.TrimPrefix(siteURL, domainPropertyPrefix)
	}
	if strings.Contains(siteURL, "://") {
		if parsed, parseErr := url.Parse(siteURL); parseErr == nil && parsed.Host != "" {
			return parsed.Host
		}
	}
	return siteURL
}

// faviconURL points at Google's favicon service; no network call is made here.
func faviconURL(domain string) string {
	return fmt.Sprintf(faviconServiceTemplate, url.QueryEscape(domain))
}
