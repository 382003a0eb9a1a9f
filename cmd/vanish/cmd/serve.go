package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/vanish/internal/models"
	"github.com/MeKo-Tech/vanish/internal/pipeline"
	"github.com/MeKo-Tech/vanish/internal/server"
	"github.com/MeKo-Tech/vanish/internal/utils"
	"github.com/MeKo-Tech/vanish/internal/vision"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the image analysis API",
	Long: `Start an HTTP server that provides REST API endpoints for label
detection and person removal.

The server provides the following endpoints:
  POST /analyze       - Analyze an uploaded image, optionally removing people
  POST /analyze/batch - Analyze multiple base64 images in one request
  POST /redact        - Remove caller-supplied regions from an image
  GET  /ws            - WebSocket streaming analysis
  GET  /health        - Health check endpoint
  GET  /metrics       - Prometheus metrics

Examples:
  vanish serve
  vanish serve --port 8080
  vanish serve --host 0.0.0.0 --port 3000 --backend local`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get configuration from centralized system (includes CLI flags, config file, env vars, and defaults)
		cfg := GetConfig()

		// Extract server configuration with CLI flag overrides
		host := cfg.Server.Host
		if cmd.Flags().Changed("host") {
			host, _ = cmd.Flags().GetString("host")
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		corsOrigin := cfg.Server.CORSOrigin
		if cmd.Flags().Changed("cors-origin") {
			corsOrigin, _ = cmd.Flags().GetString("cors-origin")
		}

		maxUploadSize := cfg.Server.MaxUploadMB
		if cmd.Flags().Changed("max-upload-size") {
			maxUploadSize, _ = cmd.Flags().GetInt("max-upload-size")
		}

		timeout := cfg.Server.TimeoutSec
		if cmd.Flags().Changed("timeout") {
			timeout, _ = cmd.Flags().GetInt("timeout")
		}

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if cmd.Flags().Changed("shutdown-timeout") {
			shutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
		}

		overlayEnable := cfg.Server.OverlayEnabled
		if cmd.Flags().Changed("overlay-enable") {
			overlayEnable, _ = cmd.Flags().GetBool("overlay-enable")
		}

		overlayBox := cfg.Output.OverlayBoxColor
		if cmd.Flags().Changed("overlay-box-color") {
			overlayBox, _ = cmd.Flags().GetString("overlay-box-color")
		}

		// Extract rate limiting configuration
		rateLimitEnabled := cfg.Server.RateLimitEnabled
		if cmd.Flags().Changed("rate-limit-enabled") {
			rateLimitEnabled, _ = cmd.Flags().GetBool("rate-limit-enabled")
		}

		requestsPerMinute := cfg.Server.RequestsPerMinute
		if cmd.Flags().Changed("requests-per-minute") {
			requestsPerMinute, _ = cmd.Flags().GetInt("requests-per-minute")
		}

		requestsPerHour := cfg.Server.RequestsPerHour
		if cmd.Flags().Changed("requests-per-hour") {
			requestsPerHour, _ = cmd.Flags().GetInt("requests-per-hour")
		}

		maxRequestsPerDay := cfg.Server.MaxRequestsPerDay
		if cmd.Flags().Changed("max-requests-per-day") {
			maxRequestsPerDay, _ = cmd.Flags().GetInt("max-requests-per-day")
		}

		maxDataPerDay := cfg.Server.MaxDataPerDay
		if cmd.Flags().Changed("max-data-per-day") {
			maxDataPerDay, _ = cmd.Flags().GetInt64("max-data-per-day")
		}

		// Extract detection configuration with CLI flag overrides
		backend := cfg.Vision.Backend
		if cmd.Flags().Changed("backend") {
			backend, _ = cmd.Flags().GetString("backend")
		}

		endpoint := cfg.Vision.Endpoint
		if cmd.Flags().Changed("endpoint") {
			endpoint, _ = cmd.Flags().GetString("endpoint")
		}

		region := cfg.Vision.Region
		if cmd.Flags().Changed("region") {
			region, _ = cmd.Flags().GetString("region")
		}

		apiKey := cfg.Vision.APIKey
		if cmd.Flags().Changed("api-key") {
			apiKey, _ = cmd.Flags().GetString("api-key")
		}

		modelPath := cfg.Vision.ModelPath
		if cmd.Flags().Changed("model-path") {
			modelPath, _ = cmd.Flags().GetString("model-path")
		}

		threads := cfg.Vision.NumThreads
		if cmd.Flags().Changed("threads") {
			threads, _ = cmd.Flags().GetInt("threads")
		}

		detTimeout := cfg.Vision.TimeoutSec
		if cmd.Flags().Changed("detection-timeout") {
			detTimeout, _ = cmd.Flags().GetInt("detection-timeout")
		}

		personLabel := cfg.Vision.PersonLabel
		if cmd.Flags().Changed("person-label") {
			personLabel, _ = cmd.Flags().GetString("person-label")
		}

		maxLabels := cfg.Vision.MaxLabels
		if cmd.Flags().Changed("max-labels") {
			maxLabels, _ = cmd.Flags().GetInt("max-labels")
		}

		minConfidence := cfg.Vision.MinConfidence
		if cmd.Flags().Changed("confidence") {
			minConfidence, _ = cmd.Flags().GetFloat64("confidence")
		}

		jpegQuality := cfg.Output.JPEGQuality
		if cmd.Flags().Changed("jpeg-quality") {
			jpegQuality, _ = cmd.Flags().GetInt("jpeg-quality")
		}

		// Validate port number
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", port)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Build detection config using centralized configuration
		vCfg := vision.DefaultConfig()
		if backend != "" {
			vCfg.Backend = backend
		}
		vCfg.Endpoint = endpoint
		vCfg.Region = region
		vCfg.APIKey = apiKey
		if cfg.Vision.HealthPath != "" {
			vCfg.HealthPath = cfg.Vision.HealthPath
		}
		if detTimeout > 0 {
			vCfg.Timeout = time.Duration(detTimeout) * time.Second
		}
		if personLabel != "" {
			vCfg.PersonLabel = personLabel
		}
		vCfg.ModelPath = models.PersonDetectorPath(cfg.ModelsDir)
		if modelPath != "" {
			vCfg.ModelPath = modelPath
		}
		if threads > 0 {
			vCfg.NumThreads = threads
		}

		pCfg := pipeline.DefaultConfig()
		pCfg.Vision = vCfg
		if jpegQuality >= 1 && jpegQuality <= 100 {
			pCfg.JPEGQuality = jpegQuality
		}

		serverConfig := server.Config{
			Host:            host,
			Port:            port,
			CORSOrigin:      corsOrigin,
			MaxUploadMB:     int64(maxUploadSize),
			TimeoutSec:      timeout,
			OverlayEnabled:  overlayEnable,
			OverlayBoxColor: overlayBox,
			MaxLabels:       maxLabels,
			MinConfidence:   minConfidence,
			PipelineConfig:  pCfg,
			RateLimit: server.RateLimitConfig{
				Enabled:           rateLimitEnabled,
				RequestsPerMinute: requestsPerMinute,
				RequestsPerHour:   requestsPerHour,
				MaxRequestsPerDay: maxRequestsPerDay,
				MaxDataPerDay:     maxDataPerDay,
			},
		}

		// Initialize server
		apiServer, err := server.NewServer(serverConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}
		defer func() { _ = apiServer.Close() }()

		mux := http.NewServeMux()
		apiServer.SetupRoutes(mux)

		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       time.Duration(timeout) * time.Second,
			WriteTimeout:      time.Duration(timeout) * time.Second,
		}

		go func() {
			slog.Info("Starting vanish server", "host", host, "port", port)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			slog.Info("Context cancelled, initiating shutdown")
		}

		slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", shutdownTimeout))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
			time.Duration(shutdownTimeout)*time.Second)
		defer shutdownCancel()

		// Shutdown HTTP server first
		slog.Info("Shutting down HTTP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server shutdown completed")
		}

		// Clean up detection resources
		slog.Info("Cleaning up server resources")
		if err := apiServer.Close(); err != nil {
			slog.Error("Server cleanup error", "error", err)
		} else {
			slog.Info("Server cleanup completed")
		}

		slog.Info("Graceful shutdown completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 50, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 30, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	// Detection backend flags
	serveCmd.Flags().String("backend", vision.BackendRemote, "detection backend: remote or local")
	serveCmd.Flags().String("endpoint", "", "remote detection endpoint URL")
	serveCmd.Flags().String("region", "", "remote detection region (used when no endpoint is set)")
	serveCmd.Flags().String("api-key", "", "API key for the remote detection backend")
	serveCmd.Flags().String("model-path", "", "override person detection model path")
	serveCmd.Flags().Int("threads", 0, "ONNX inference threads (0 = runtime default)")
	serveCmd.Flags().Int("detection-timeout", int(vision.DefaultTimeout/time.Second),
		"detection timeout in seconds")
	serveCmd.Flags().String("person-label", vision.DefaultPersonLabel, "label name treated as a person")
	// Request parameter defaults applied when a client omits them
	serveCmd.Flags().Int("max-labels", pipeline.DefaultMaxLabels,
		"default label limit when a request omits maxLabels")
	serveCmd.Flags().Float64("confidence", pipeline.DefaultMinConfidence,
		"default minimum label confidence when a request omits it (0-100)")
	serveCmd.Flags().Int("jpeg-quality", utils.DefaultJPEGQuality,
		"JPEG quality for regenerated images (1-100)")
	serveCmd.Flags().Bool("overlay-enable", true, "enable overlay image responses")
	serveCmd.Flags().String("overlay-box-color", "#FF0000", "overlay box color (hex)")
	// Rate limiting flags
	serveCmd.Flags().Bool("rate-limit-enabled", false, "enable rate limiting")
	serveCmd.Flags().Int("requests-per-minute", 60, "maximum requests per minute per client")
	serveCmd.Flags().Int("requests-per-hour", 1000, "maximum requests per hour per client")
	serveCmd.Flags().Int("max-requests-per-day", 5000, "maximum requests per day per client")
	serveCmd.Flags().Int64("max-data-per-day", 100*1024*1024, "maximum data processed per day per client (bytes)")
}
