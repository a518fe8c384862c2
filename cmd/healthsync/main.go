// healthsync bridges a local health data export into a remote
// personal-data store: it provisions destination streams, tails the
// export for changes, and reconciles additions and deletions
// incrementally.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	glog "github.com/goliatone/go-logger/glog"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vitalbridge/go-healthsync/apiclient"
	"github.com/vitalbridge/go-healthsync/catalog"
	"github.com/vitalbridge/go-healthsync/command"
	"github.com/vitalbridge/go-healthsync/core"
	"github.com/vitalbridge/go-healthsync/jobs"
	"github.com/vitalbridge/go-healthsync/providers/healthfile"
	"github.com/vitalbridge/go-healthsync/provision"
	contentschema "github.com/vitalbridge/go-healthsync/schema"
	"github.com/vitalbridge/go-healthsync/signing"
	sqlstore "github.com/vitalbridge/go-healthsync/store/sql"
	"github.com/vitalbridge/go-healthsync/sync"
)

var (
	configPath = flag.String("config", "", "path to a JSON config file")
	exportDir  = flag.String("export-dir", "", "health export directory (overrides config)")
	apiURL     = flag.String("api-url", "", "remote store base URL (overrides config)")
	apiToken   = flag.String("api-token", "", "remote store access token (overrides config)")
)

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "healthsync: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	_, logger := glog.Resolve(cfg.ServiceName, nil, nil)

	factory, cleanup, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer cleanup()

	indexStore, err := cachedIndexStore(factory)
	if err != nil {
		return fmt.Errorf("build index cache: %w", err)
	}

	api, err := apiclient.New(cfg.API, apiclient.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("build api client: %w", err)
	}

	source, err := healthfile.New(cfg.Source.ExportDir, healthfile.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open health export: %w", err)
	}

	validator, err := contentschema.NewValidator()
	if err != nil {
		return fmt.Errorf("compile content schemas: %w", err)
	}

	options := []sync.Option{
		sync.WithLogger(logger),
		sync.WithSyncConfig(cfg.Sync),
		sync.WithValidator(validator),
	}
	signer, err := buildSigner(cfg.Signing)
	if err != nil {
		return fmt.Errorf("build signer: %w", err)
	}
	if signer != nil {
		options = append(options, sync.WithSigner(signer))
	}

	monitored := catalog.DefaultMonitoredStreams()
	var staticTypes []string
	for _, stream := range monitored {
		if !stream.Continuous {
			staticTypes = append(staticTypes, stream.SourceType)
		}
	}

	engine, err := sync.New(api, source, factory.SyncCursorStore(), indexStore,
		monitored, options...)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	provisioner, err := provision.New(api, provision.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("build provisioner: %w", err)
	}

	queue := jobs.NewMemoryQueue(0)
	scheduler, err := jobs.NewScheduler(queue, cfg.Sync.IndexRefreshInterval,
		jobs.WithSchedulerLogger(logger),
		jobs.WithBaselineStreams(staticTypes),
	)
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}
	worker, err := jobs.NewWorker(queue, jobs.Dispatcher{
		Reconcile: command.NewReconcileStreamCommand(engine),
		Baseline:  command.NewCheckBaselineCommand(engine),
		Provision: command.NewProvisionStreamsCommand(provisioner),
		Refresh:   command.NewRefreshIndexCommand(engine.Deletions()),
	}, jobs.WithWorkerLogger(logger))
	if err != nil {
		return fmt.Errorf("build worker: %w", err)
	}

	logger.Info("starting",
		"export_dir", cfg.Source.ExportDir,
		"api_url", cfg.API.BaseURL,
		"storage_driver", cfg.Storage.Driver,
	)

	errCh := make(chan error, 3)
	go func() { errCh <- engine.Run(ctx) }()
	go func() { errCh <- scheduler.Run(ctx) }()
	go func() { errCh <- worker.Run(ctx) }()

	err = <-errCh
	if ctx.Err() != nil {
		logger.Info("shutting down")
		return nil
	}
	return err
}

func loadConfig(ctx context.Context) (core.Config, error) {
	defaults := core.DefaultConfig()

	loader := core.NewStaticConfigLoader(nil)
	if path := strings.TrimSpace(*configPath); path != "" {
		raw, err := readConfigFile(path)
		if err != nil {
			return core.Config{}, err
		}
		loader = core.NewStaticConfigLoader(raw)
	}

	loaded, err := core.NewCfgxConfigProvider(loader).Load(ctx, defaults)
	if err != nil {
		return core.Config{}, err
	}

	runtime := core.Config{}
	runtime.Source.ExportDir = strings.TrimSpace(*exportDir)
	runtime.API.BaseURL = strings.TrimSpace(*apiURL)
	runtime.API.AuthToken = strings.TrimSpace(*apiToken)

	return core.GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
}

func readConfigFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return raw, nil
}

type persistenceConfig struct {
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool                { return false }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "healthsync" }

func openStores(ctx context.Context, cfg core.Config) (*sqlstore.RepositoryFactory, func(), error) {
	sqlDB, err := sql.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, nil, err
	}

	var dialect schema.Dialect
	switch cfg.Storage.Driver {
	case "postgres":
		dialect = pgdialect.New()
	default:
		// sqlite does not tolerate concurrent writers on one file handle.
		sqlDB.SetMaxOpenConns(1)
		dialect = sqlitedialect.New()
	}

	client, err := persistence.New(
		persistenceConfig{driver: cfg.Storage.Driver, server: cfg.Storage.DSN},
		sqlDB, dialect,
	)
	if err != nil {
		sqlDB.Close()
		return nil, nil, err
	}

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	if err := factory.EnsureSchema(ctx); err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	return factory, func() { sqlDB.Close() }, nil
}

func cachedIndexStore(factory *sqlstore.RepositoryFactory) (core.EventIndexStore, error) {
	config := repositorycache.DefaultConfig()
	config.TTL = 5 * time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		return nil, err
	}
	return sqlstore.NewCachedEventIndexStore(factory.EventIndexStore(), service)
}

func buildSigner(cfg core.SigningConfig) (core.Signer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Strategy)) {
	case "", "none":
		return nil, nil
	case "hmac":
		return signing.NewHMACSigner(cfg.Secret)
	case "ed25519":
		return signing.LoadEd25519Signer(cfg.KeyPath)
	default:
		return nil, fmt.Errorf("unknown signing strategy %q", cfg.Strategy)
	}
}
