package gsckit

import (
	"context"

	"go.uber.org/zap"
)

// Service is the collaborator-facing facade: an opaque user id in, sites or
// analytics rows out. Credential resolution and client construction happen
// fresh on every call; nothing is cached across requests.
type Service struct {
	manager *CredentialManager
	clients ClientFactory
	logger  *zap.Logger
	metrics MetricsRecorder
}

// NewService wires the credential manager with a client factory.
func NewService(manager *CredentialManager, clients ClientFactory, logger *zap.Logger, metrics MetricsRecorder) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewCounterMetrics()
	}
	return &Service{
		manager: manager,
		clients: clients,
		logger:  logger,
		metrics: metrics,
	}
}

// ListSites returns the user's Search Console properties with favicons.
func (service *Service) ListSites(ctx context.Context, userID string) ([]Site, error) {
	client, clientErr := service.clientFor(ctx, userID)
	if clientErr != nil {
		return nil, clientErr
	}
	sites, listErr := ListSites(ctx, client)
	if listErr != nil {
		service.metrics.Increment("sites.list.failure")
		service.logger.Warn("site listing failed",
			zap.String("user_id", userID),
			zap.Error(listErr),
		)
		return nil, listErr
	}
	service.metrics.Increment("sites.list.success")
	service.logger.Info("fetched sites",
		zap.String("user_id", userID),
		zap.Int("site_count", len(sites)),
	)
	return sites, nil
}

// SearchAnalytics runs the batched analytics retrieval for the user.
func (service *Service) SearchAnalytics(ctx context.Context, userID string, request AnalyticsRequest) ([]AnalyticsRow, error) {
	client, clientErr := service.clientFor(ctx, userID)
	if clientErr != nil {
		return nil, clientErr
	}
	rows, fetchErr := FetchSearchAnalytics(ctx, client, request)
	if fetchErr != nil {
		service.metrics.Increment("analytics.query.failure")
		service.logger.Warn("search analytics failed",
			zap.String("user_id", userID),
			zap.String("site_url", request.SiteURL),
			zap.Error(fetchErr),
		)
		return nil, fetchErr
	}
	service.metrics.Increment("analytics.query.success")
	service.logger.Info("fetched search analytics",
		zap.String("user_id", userID),
		zap.String("site_url", request.SiteURL),
		zap.Int("row_count", len(rows)),
		zap.String("dimension", request.Dimension),
	)
	return rows, nil
}

func (service *Service) clientFor(ctx context.Context, userID string) (SearchConsoleClient, error) {
	credentials, credentialsErr := service.manager.GetLiveCredentials(ctx, userID)
	if credentialsErr != nil {
		service.metrics.Increment("credentials.resolve.failure")
		return nil, credentialsErr
	}
	return service.clients(ctx, credentials)
}
