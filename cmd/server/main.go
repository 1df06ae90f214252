package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/searchlens/internal/gsckit"
	"github.com/tyemirov/searchlens/internal/web"
	"github.com/tyemirov/searchlens/pkg/sessionvalidator"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "searchlens",
		Short:   "Search Console retrieval service: delegated credentials, site catalog, and batched analytics queries",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("database_url", "", "Database URL for credential records (postgres:// or sqlite://; leave empty for in-memory store)")
	rootCmd.Flags().String("google_client_id", "", "Google OAuth Client ID used for token refresh exchanges")
	rootCmd.Flags().String("google_client_secret", "", "Google OAuth Client Secret used for token refresh exchanges")
	rootCmd.Flags().String("token_endpoint", gsckit.GoogleTokenEndpoint, "OAuth token exchange endpoint")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret shared with the auth service's session tokens")
	rootCmd.Flags().String("jwt_issuer", "mprlab-auth", "Expected issuer of session tokens")
	rootCmd.Flags().String("session_cookie_name", sessionvalidator.DefaultCookieName, "Session cookie name")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")

	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("database_url", rootCmd.Flags().Lookup("database_url"))
	_ = viper.BindPFlag("google_client_id", rootCmd.Flags().Lookup("google_client_id"))
	_ = viper.BindPFlag("google_client_secret", rootCmd.Flags().Lookup("google_client_secret"))
	_ = viper.BindPFlag("token_endpoint", rootCmd.Flags().Lookup("token_endpoint"))
	_ = viper.BindPFlag("jwt_signing_key", rootCmd.Flags().Lookup("jwt_signing_key"))
	_ = viper.BindPFlag("jwt_issuer", rootCmd.Flags().Lookup("jwt_issuer"))
	_ = viper.BindPFlag("session_cookie_name", rootCmd.Flags().Lookup("session_cookie_name"))
	_ = viper.BindPFlag("enable_cors", rootCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	configCodeMissingGoogleClientID     = "config.missing_google_client_id"
	configCodeMissingGoogleClientSecret = "config.missing_google_client_secret"
	configCodeMissingJWTSigningKey      = "config.missing_jwt_signing_key"
	configCodeMissingJWTIssuer          = "config.missing_jwt_issuer"
	configCodeUninitializedServerConf   = "config.uninitialized_server_config"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

// ServerConfig is the validated runtime configuration.
type ServerConfig struct {
	Credentials       gsckit.CredentialConfig
	JWTSigningKey     []byte
	JWTIssuer         string
	SessionCookieName string
}

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig reads and validates configuration from viper.
func LoadServerConfig() (ServerConfig, error) {
	googleClientID := viper.GetString("google_client_id")
	if googleClientID == "" {
		return ServerConfig{}, configError(configCodeMissingGoogleClientID, "google_client_id must be provided")
	}

	googleClientSecret := viper.GetString("google_client_secret")
	if googleClientSecret == "" {
		return ServerConfig{}, configError(configCodeMissingGoogleClientSecret, "google_client_secret must be provided")
	}

	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return ServerConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	jwtIssuer := viper.GetString("jwt_issuer")
	if jwtIssuer == "" {
		return ServerConfig{}, configError(configCodeMissingJWTIssuer, "jwt_issuer must be provided")
	}

	tokenEndpoint := viper.GetString("token_endpoint")
	if tokenEndpoint == "" {
		tokenEndpoint = gsckit.GoogleTokenEndpoint
	}

	sessionCookieName := viper.GetString("session_cookie_name")
	if sessionCookieName == "" {
		sessionCookieName = sessionvalidator.DefaultCookieName
	}

	return ServerConfig{
		Credentials: gsckit.CredentialConfig{
			ClientID:      googleClientID,
			ClientSecret:  googleClientSecret,
			TokenEndpoint: tokenEndpoint,
		},
		JWTSigningKey:     []byte(jwtSigningKey),
		JWTIssuer:         jwtIssuer,
		SessionCookieName: sessionCookieName,
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	databaseURL := viper.GetString("database_url")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if enableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, corsAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	var accountStore gsckit.AccountStore
	if databaseURL != "" {
		persistentStore, storeErr := gsckit.NewDatabaseAccountStore(context.Background(), databaseURL)
		if storeErr != nil {
			return storeErr
		}
		accountStore = persistentStore
		logger.Info("using persistent account store", zap.String("driver", persistentStore.Driver()))
	} else {
		accountStore = gsckit.NewMemoryAccountStore()
		logger.Info("using in-memory account store")
	}

	validator, validatorErr := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: serverConfig.JWTSigningKey,
		Issuer:     serverConfig.JWTIssuer,
		CookieName: serverConfig.SessionCookieName,
	})
	if validatorErr != nil {
		return validatorErr
	}

	metricsRecorder := gsckit.NewCounterMetrics()
	credentialManager := gsckit.NewCredentialManager(accountStore, serverConfig.Credentials, logger, metricsRecorder)
	service := gsckit.NewService(credentialManager, gsckit.NewGoogleSearchConsoleClient, logger, metricsRecorder)

	requireSession := validator.GinMiddleware(sessionvalidator.DefaultContextKey)
	resolveUserID := func(contextGin *gin.Context) (string, bool) {
		claims, found := sessionvalidator.ClaimsFromContext(contextGin, sessionvalidator.DefaultContextKey)
		if !found {
			return "", false
		}
		return claims.GetUserID(), true
	}
	gsckit.MountRoutes(router, service, requireSession, resolveUserID)

	router.GET("/healthz", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metricz", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, metricsRecorder.Snapshot())
	})

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
