package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/pulseworks/artistpulse/pkg/catalog"
	"github.com/pulseworks/artistpulse/pkg/ingest"
	"github.com/pulseworks/artistpulse/pkg/lake"
	"github.com/pulseworks/artistpulse/pkg/logger"
	"github.com/pulseworks/artistpulse/pkg/notify"
	"github.com/pulseworks/artistpulse/pkg/server"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr   = "0.0.0.0:8080"
	defaultMetricsAddr  = "0.0.0.0:0"
	defaultEntity       = "artists"
	defaultCatalogURL   = "https://api.spotify.com"
	defaultTokenURL     = "https://accounts.spotify.com/api/token"
	defaultLookback     = 24 * time.Hour
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 2 * time.Second

	clientIDEnvVar     = "CATALOG_CLIENT_ID"
	clientSecretEnvVar = "CATALOG_CLIENT_SECRET"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "HTTP trigger listen address")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics")

	// Raw storage configuration
	bucketFlag := flag.String("bucket", "", "raw bucket name (or set RAW_BUCKET env var)")
	regionFlag := flag.String("region", lake.DefaultRegion, "raw bucket region (or set RAW_BUCKET_REGION env var)")
	s3EndpointFlag := flag.String("s3-endpoint", "", "custom S3 endpoint URL (for MinIO testing, or set S3_ENDPOINT_URL env var)")
	entityFlag := flag.String("entity", defaultEntity, "bronze partition entity name")

	// Catalog API configuration
	catalogURLFlag := flag.String("catalog-url", defaultCatalogURL, "music catalog API base URL")
	tokenURLFlag := flag.String("token-url", defaultTokenURL, "catalog OAuth2 token endpoint")
	rosterFileFlag := flag.String("roster-file", "", "path to a JSON roster of monitored artists (default: built-in roster)")

	// Retry/window configuration
	maxAttemptsFlag := flag.Int("max-fetch-attempts", defaultMaxAttempts, "bounded extraction attempts per invocation")
	retryBackoffFlag := flag.Duration("retry-backoff", defaultRetryBackoff, "base exponential backoff between extraction attempts")
	lookbackFlag := flag.Duration("lookback", defaultLookback, "first-invocation window size when no watermark exists")

	// Downstream trigger configuration
	notifyURLFlag := flag.String("notify-url", "", "downstream transformation trigger URL (or set NOTIFY_URL env var); logged only when unset")

	// Single-shot mode (for Cloud Run jobs style scheduling)
	onceFlag := flag.Bool("once", false, "run a single ingestion and exit instead of serving HTTP")
	dryRunFlag := flag.Bool("dry-run", false, "with --once: fetch and report without writing")

	flag.Parse()

	// Load .env file. godotenv does not override existing env vars, so
	// process env and explicit exports take precedence.
	_ = godotenv.Load()

	if v := os.Getenv("RAW_BUCKET"); v != "" {
		*bucketFlag = v
	}
	if v := os.Getenv("RAW_BUCKET_REGION"); v != "" {
		*regionFlag = v
	}
	if v := os.Getenv("S3_ENDPOINT_URL"); v != "" {
		*s3EndpointFlag = v
	}
	if v := os.Getenv("NOTIFY_URL"); v != "" {
		*notifyURLFlag = v
	}
	if v := os.Getenv("CATALOG_URL"); v != "" {
		*catalogURLFlag = v
	}
	if v := os.Getenv("CATALOG_TOKEN_URL"); v != "" {
		*tokenURLFlag = v
	}

	log := logger.New(*verboseFlag)
	log.Info("starting ingestd", "version", version, "commit", commit, "date", date)

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: dsn, Release: version}); err != nil {
			return fmt.Errorf("failed to init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	if *bucketFlag == "" {
		return errors.New("raw bucket is required (set --bucket or RAW_BUCKET)")
	}
	clientID := os.Getenv(clientIDEnvVar)
	clientSecret := os.Getenv(clientSecretEnvVar)
	if clientID == "" || clientSecret == "" {
		return fmt.Errorf("catalog credentials are required (set %s and %s)", clientIDEnvVar, clientSecretEnvVar)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := lake.NewS3Store(ctx, lake.S3Config{
		Bucket:      *bucketFlag,
		Region:      *regionFlag,
		EndpointURL: *s3EndpointFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create raw store: %w", err)
	}

	tokens, err := catalog.NewClientCredentials(catalog.ClientCredentialsConfig{
		TokenURL:     *tokenURLFlag,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
	if err != nil {
		return fmt.Errorf("failed to create token source: %w", err)
	}

	client, err := catalog.NewClient(catalog.ClientConfig{
		Logger:  log,
		BaseURL: *catalogURLFlag,
		Tokens:  tokens,
	})
	if err != nil {
		return fmt.Errorf("failed to create catalog client: %w", err)
	}

	roster := catalog.DefaultRoster
	if *rosterFileFlag != "" {
		roster, err = catalog.LoadRoster(*rosterFileFlag)
		if err != nil {
			return err
		}
	}

	source, err := catalog.NewHTTPSource(catalog.HTTPSourceConfig{
		Logger: log,
		Client: client,
		Roster: roster,
	})
	if err != nil {
		return fmt.Errorf("failed to create catalog source: %w", err)
	}

	var notifier notify.Notifier
	if *notifyURLFlag != "" {
		notifier, err = notify.NewCloudEventsNotifier(*notifyURLFlag, *bucketFlag)
		if err != nil {
			return fmt.Errorf("failed to create downstream notifier: %w", err)
		}
	} else {
		notifier = notify.NewLogNotifier(log)
	}

	runner, err := ingest.New(ingest.Config{
		Logger:           log,
		Source:           source,
		Store:            store,
		Notifier:         notifier,
		Entity:           *entityFlag,
		Bucket:           *bucketFlag,
		MaxFetchAttempts: *maxAttemptsFlag,
		RetryBackoff:     *retryBackoffFlag,
		DefaultLookback:  *lookbackFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	if *onceFlag {
		return runOnce(ctx, runner, *dryRunFlag)
	}

	server.SetBuildInfo(version, commit, date)
	srv, err := server.New(server.Config{Logger: log, Runner: runner})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Serve prometheus metrics on a separate listener.
	metricsListener, err := net.Listen("tcp", *metricsAddrFlag)
	if err != nil {
		return fmt.Errorf("failed to listen on metrics address: %w", err)
	}
	go func() {
		log.Info("metrics listening", "addr", metricsListener.Addr().String())
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		if err := http.Serve(metricsListener, metricsMux); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()
	defer metricsListener.Close()

	httpServer := &http.Server{
		Addr:              *listenAddrFlag,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("trigger endpoint listening", "addr", *listenAddrFlag)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// runOnce executes a single invocation and exits, for job-style scheduling
// where the platform runs the container per tick instead of calling HTTP.
func runOnce(ctx context.Context, runner *ingest.Runner, dryRun bool) error {
	res, err := runner.Run(ctx, ingest.Request{DryRun: dryRun})
	if res != nil {
		out, merr := json.MarshalIndent(res, "", "  ")
		if merr == nil {
			fmt.Println(string(out))
		}
	}
	return err
}
