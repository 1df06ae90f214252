package gsckit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	// GoogleTokenEndpoint is the default OAuth token exchange endpoint.
	GoogleTokenEndpoint = "https://oauth2.googleapis.com/token"
	// ScopeWebmastersReadonly is the only scope this service ever requests.
	ScopeWebmastersReadonly = "https://www.googleapis.com/auth/webmasters.readonly"
)

// LiveCredentials is a call-scoped, validated set of delegated credentials.
// Built fresh from the stored record on every request and never persisted.
type LiveCredentials struct {
	AccessToken   string
	RefreshToken  string
	ExpiresAt     time.Time
	Scopes        []string
	ClientID      string
	ClientSecret  string
	TokenEndpoint string
}

// CredentialConfig carries the static client identity used for token exchanges.
type CredentialConfig struct {
	ClientID      string
	ClientSecret  string
	TokenEndpoint string
}

// CredentialManager turns persisted account records into live credentials,
// refreshing and re-persisting them when expired.
type CredentialManager struct {
	store         AccountStore
	configuration CredentialConfig
	logger        *zap.Logger
	metrics       MetricsRecorder
	now           func() time.Time

	mutex     sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewCredentialManager constructs a manager over the given account store.
func NewCredentialManager(store AccountStore, configuration CredentialConfig, logger *zap.Logger, metrics MetricsRecorder) *CredentialManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewCounterMetrics()
	}
	if configuration.TokenEndpoint == "" {
		configuration.TokenEndpoint = GoogleTokenEndpoint
	}
	return &CredentialManager{
		store:         store,
		configuration: configuration,
		logger:        logger,
		metrics:       metrics,
		now:           func() time.Time { return time.Now().UTC() },
		userLocks:     make(map[string]*sync.Mutex),
	}
}

// GetLiveCredentials loads the user's credential record and returns a valid
// set of live credentials, performing at most one refresh exchange when the
// access token is missing or expired.
func (manager *CredentialManager) GetLiveCredentials(ctx context.Context, userID string) (LiveCredentials, error) {
	record, loadErr := manager.store.Load(ctx, userID)
	if loadErr != nil {
		return LiveCredentials{}, loadErr
	}
	credentials := manager.buildLiveCredentials(record)
	if manager.credentialsValid(credentials) {
		return credentials, nil
	}

	userLock := manager.lockFor(userID)
	userLock.Lock()
	defer userLock.Unlock()

	// A concurrent call may have refreshed while this one waited for the lock;
	// re-read so only one exchange happens per expiry.
	record, loadErr = manager.store.Load(ctx, userID)
	if loadErr != nil {
		return LiveCredentials{}, loadErr
	}
	credentials = manager.buildLiveCredentials(record)
	if manager.credentialsValid(credentials) {
		return credentials, nil
	}

	if record.RefreshToken == "" {
		manager.metrics.Increment("credentials.unrecoverable")
		return LiveCredentials{}, fmt.Errorf("gsc.credentials.get: %w", ErrCredentialUnrecoverable)
	}

	refreshed, refreshErr := manager.refreshExchange(ctx, credentials)
	if refreshErr != nil {
		manager.metrics.Increment("credentials.refresh.failure")
		manager.logger.Warn("credential refresh rejected",
			zap.String("user_id", userID),
			zap.Error(refreshErr),
		)
		return LiveCredentials{}, fmt.Errorf("%w: %v", ErrCredentialRefreshFailed, refreshErr)
	}

	record.AccessToken = refreshed.AccessToken
	record.AccessTokenExpiresAt = refreshed.Expiry.UTC()
	if refreshed.RefreshToken != "" {
		// Google only sometimes rotates the refresh token.
		record.RefreshToken = refreshed.RefreshToken
	}
	record.UpdatedAt = manager.now()
	if saveErr := manager.store.Save(ctx, record); saveErr != nil {
		return LiveCredentials{}, fmt.Errorf("gsc.credentials.persist: %w", saveErr)
	}

	manager.metrics.Increment("credentials.refresh.success")
	manager.logger.Info("credentials refreshed",
		zap.String("user_id", userID),
		zap.Time("expires_at", record.AccessTokenExpiresAt),
	)
	return manager.buildLiveCredentials(record), nil
}

func (manager *CredentialManager) buildLiveCredentials(record AccountRecord) LiveCredentials {
	return LiveCredentials{
		AccessToken:   record.AccessToken,
		RefreshToken:  record.RefreshToken,
		ExpiresAt:     record.AccessTokenExpiresAt,
		Scopes:        []string{ScopeWebmastersReadonly},
		ClientID:      manager.configuration.ClientID,
		ClientSecret:  manager.configuration.ClientSecret,
		TokenEndpoint: manager.configuration.TokenEndpoint,
	}
}

// credentialsValid reports whether the bearer token is present and its expiry
// is strictly in the future. An exactly-expired token counts as invalid.
func (manager *CredentialManager) credentialsValid(credentials LiveCredentials) bool {
	return credentials.AccessToken != "" && credentials.ExpiresAt.After(manager.now())
}

func (manager *CredentialManager) refreshExchange(ctx context.Context, credentials LiveCredentials) (*oauth2.Token, error) {
	exchangeConfig := &oauth2.Config{
		ClientID:     credentials.ClientID,
		ClientSecret: credentials.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: credentials.TokenEndpoint,
			// Explicit style keeps the exchange to a single request; auto-detect
			// probes a rejected request twice.
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: credentials.Scopes,
	}
	seed := &oauth2.Token{RefreshToken: credentials.RefreshToken}
	return exchangeConfig.TokenSource(ctx, seed).Token()
}

func (manager *CredentialManager) lockFor(userID string) *sync.Mutex {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	userLock, ok := manager.userLocks[userID]
	if !ok {
		userLock = &sync.Mutex{}
		manager.userLocks[userID] = userLock
	}
	return userLock
}
