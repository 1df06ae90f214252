package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/searchlens/internal/gsckit"
	"github.com/tyemirov/searchlens/pkg/sessionvalidator"
	"go.uber.org/zap"
)

func TestZapLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logger, err := zap.NewProduction()
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	router := gin.New()
	router.Use(zapLoggerMiddleware(logger))
	router.GET("/ping", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
}

func TestRunServerMissingConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	err := runServer(&cobra.Command{}, nil)
	if err == nil {
		t.Fatalf("expected configuration error")
	}

	expectedMessage := "config.uninitialized_server_config: server configuration not prepared; PreRunE must execute before RunE"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigRequiresGoogleClientID(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error for missing google client id")
	}
	expectedMessage := "config.missing_google_client_id: google_client_id must be provided"
	if err.Error() != expectedMessage {
		t.Fatalf("expected %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigRequiresGoogleClientSecret(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("google_client_id", "client-id")
	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error for missing google client secret")
	}
	expectedMessage := "config.missing_google_client_secret: google_client_secret must be provided"
	if err.Error() != expectedMessage {
		t.Fatalf("expected %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigRequiresJWTSigningKey(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("google_client_id", "client-id")
	viper.Set("google_client_secret", "client-secret")
	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error for missing jwt signing key")
	}
	expectedMessage := "config.missing_jwt_signing_key: jwt_signing_key must be provided"
	if err.Error() != expectedMessage {
		t.Fatalf("expected %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigAppliesDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("google_client_id", "client-id")
	viper.Set("google_client_secret", "client-secret")
	viper.Set("jwt_signing_key", "signing-key")
	viper.Set("jwt_issuer", "mprlab-auth")

	serverConfig, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if serverConfig.Credentials.TokenEndpoint != gsckit.GoogleTokenEndpoint {
		t.Fatalf("expected default token endpoint, got %q", serverConfig.Credentials.TokenEndpoint)
	}
	if serverConfig.SessionCookieName != sessionvalidator.DefaultCookieName {
		t.Fatalf("expected default cookie name, got %q", serverConfig.SessionCookieName)
	}
	if serverConfig.JWTIssuer != "mprlab-auth" {
		t.Fatalf("expected configured issuer, got %q", serverConfig.JWTIssuer)
	}
}
