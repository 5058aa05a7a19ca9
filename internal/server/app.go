// Package server wires the evidence services together and runs the request
// API, the asynchronous consumers and the metrics endpoint until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/association"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/catalog"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/checksum"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/config"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/legalhold"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/queue"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/repomanager"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/evidencekeeper/internal/server/grpc"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config *config.Config
	logger *logging.ZapLogger
}

func NewApp(c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger, err := logging.NewProduction(c.LogLevel)
	if err != nil {
		return nil, err
	}
	return &App{config: c, logger: logger}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) openStore(ctx context.Context) (repomanager.Store, error) {
	if app.config.StorageBackend == config.StorageMemory {
		return repomanager.NewMemoryStore(), nil
	}
	store, err := repomanager.OpenPostgresStore(app.config.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := store.RunMigrations(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return store, nil
}

func (app *App) openBlobStore(ctx context.Context) (blobstore.Store, error) {
	opts := blobstore.Options{
		Region:       app.config.S3Region,
		AccessKey:    app.config.S3RootUser,
		SecretKey:    app.config.S3RootPassword,
		Bucket:       app.config.S3Bucket,
		BaseEndpoint: app.config.S3BaseEndpoint,
	}
	switch app.config.BlobBackend {
	case config.BlobMinio:
		return blobstore.NewMinioStore(opts)
	case config.BlobMemory:
		return blobstore.NewMemoryStore(opts.Bucket), nil
	}
	return blobstore.NewS3Store(ctx, opts)
}

func (app *App) serveMetrics(ctx context.Context, m *metrics.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: app.config.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	app.logger.Info(ctx, "Starting metrics server", "address", app.config.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run serves until ctx is canceled, a termination signal arrives or one of
// the components fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer func() { _ = app.logger.Sync() }()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	store, err := app.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	blobs, err := app.openBlobStore(ctx)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}

	q, err := queue.OpenRedisQueue(ctx, app.config.RedisAddr, app.config.RedisPassword, app.config.QueueName, app.config.QueuePartitions)
	if err != nil {
		return err
	}
	defer q.Close()

	m := metrics.New(prometheus.NewRegistry())

	holds, err := legalhold.NewEnforcer(store, blobs, app.logger, app.config.HoldCacheTTL, app.config.DownloadURLExpiry)
	if err != nil {
		return err
	}
	defer holds.Close()

	pipeline := checksum.NewPipeline(store, blobs, app.logger.With("module", "checksum"), m, app.config.PartTimeout)

	consumer := queue.NewConsumer(q, map[queue.Kind]queue.HandlerFunc{
		queue.KindPartCompleted: queue.PartCompletedHandler(pipeline.HandlePartCompleted),
		queue.KindObjectCreated: queue.ObjectCreatedHandler(holds.HandleObjectCreated),
	}, queue.ConsumerOptions{
		MaxDeliveryAttempts: app.config.MaxDeliveryAttempts,
		RetryBaseDelay:      app.config.RetryBaseDelay,
		// one part read plus the catalog writes around it
		HandlerTimeout: app.config.PartTimeout + app.config.RequestTimeout,
	}, app.logger, m)

	api := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, gs.Services{
		Catalog:      catalog.NewService(store, app.logger.With("module", "catalog")),
		Associations: association.NewService(store, app.logger.With("module", "association"), m),
		Downloads:    holds,
		Events:       queue.NewPublisher(q),
	}, app.config.RequestTimeout)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return api.Run(ctx) })
	g.Go(func() error { return consumer.Run(ctx) })
	g.Go(func() error { return app.serveMetrics(ctx, m) })

	err = g.Wait()
	app.logger.Info(context.Background(), "App stopped")
	return err
}
