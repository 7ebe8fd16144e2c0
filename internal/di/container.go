package di

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/kilnbuild/kiln/internal/repository"
	"github.com/kilnbuild/kiln/internal/services"
	"github.com/kilnbuild/kiln/pkg/builder"
	"github.com/kilnbuild/kiln/pkg/builder/config"
	"github.com/kilnbuild/kiln/pkg/builder/logging"
	"github.com/kilnbuild/kiln/pkg/cache"
	localCache "github.com/kilnbuild/kiln/pkg/cache/local"
	"github.com/kilnbuild/kiln/pkg/fetch"
	"github.com/kilnbuild/kiln/pkg/registry"
	localRegistry "github.com/kilnbuild/kiln/pkg/registry/local"
	"github.com/kilnbuild/kiln/pkg/runtime"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// Container wires the build engine's dependencies and owns the handles
// that need closing at exit.
type Container struct {
	container *dig.Container
	db        *badger.DB
}

// BuildContainer builds the dependency injection container with all services.
func BuildContainer(cfg *config.Config) (*Container, error) {
	for _, dir := range []string{cfg.Cache.Dir, cfg.Registry.Dir, cfg.Runtime.Dir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	opts := badger.DefaultOptions(filepath.Join(cfg.Registry.Dir, "kiln.db"))
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	container := dig.New()

	// Register configuration
	if err := container.Provide(func() *config.Config {
		return cfg
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(cfg *config.Config) (*zap.Logger, error) {
		if cfg.Log.Development {
			return logging.New(true)
		}
		return logging.NewWithLevel(cfg.Log.Level)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(zl *zap.Logger) logging.Logger {
		return logging.NewZapLogger(zl)
	}); err != nil {
		return nil, err
	}

	// Register repository
	if err := container.Provide(func() repository.DBRepository {
		return repository.NewBadgerDBRepository(db)
	}); err != nil {
		return nil, err
	}

	// Register layer store
	if err := container.Provide(func(cfg *config.Config) registry.LayerStore {
		return localRegistry.NewLayerStore(cfg.Cache.Dir)
	}); err != nil {
		return nil, err
	}

	// Register layer cache
	if err := container.Provide(func(dbRepo repository.DBRepository, store registry.LayerStore) cache.Cache {
		return localCache.NewLocalCache(dbRepo, store)
	}); err != nil {
		return nil, err
	}

	// Register registry
	if err := container.Provide(func(dbRepo repository.DBRepository, store registry.LayerStore) registry.Registry {
		return localRegistry.NewLocalRegistryWithStore(dbRepo, store)
	}); err != nil {
		return nil, err
	}

	// Register resolvers
	if err := container.Provide(func(cfg *config.Config, zl *zap.Logger) builder.Resolvers {
		client := fetch.NewClient(cfg.Fetch, zl)
		return builder.Resolvers{
			Base:         client,
			Packages:     client,
			Dependencies: client,
			Browser:      client,
		}
	}); err != nil {
		return nil, err
	}

	// Register builder
	if err := container.Provide(func(cfg *config.Config, layerCache cache.Cache, store registry.LayerStore, logger logging.Logger) *builder.Builder {
		return builder.New(layerCache, store, logger, filepath.Join(cfg.Cache.Dir, "stage"))
	}); err != nil {
		return nil, err
	}

	// Register instance runner
	if err := container.Provide(func(cfg *config.Config, reg registry.Registry, store registry.LayerStore, logger logging.Logger) *runtime.Runner {
		return runtime.NewRunner(reg, store, cfg.Runtime.Dir, logger)
	}); err != nil {
		return nil, err
	}

	// Register services
	if err := container.Provide(func(cfg *config.Config, b *builder.Builder, resolvers builder.Resolvers, reg registry.Registry) services.BuildService {
		return services.NewBuildService(cfg, b, resolvers, reg)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(reg registry.Registry) services.ImageService {
		return services.NewImageService(reg)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(layerCache cache.Cache, reg registry.Registry) services.CacheService {
		return services.NewCacheService(layerCache, reg)
	}); err != nil {
		return nil, err
	}

	return &Container{container: container, db: db}, nil
}

// Close releases the container's database handle.
func (c *Container) Close() error {
	return c.db.Close()
}

// GetBuildService retrieves the BuildService from the container.
func (c *Container) GetBuildService() (services.BuildService, error) {
	var service services.BuildService
	if err := c.container.Invoke(func(svc services.BuildService) {
		service = svc
	}); err != nil {
		return nil, err
	}
	return service, nil
}

// GetImageService retrieves the ImageService from the container.
func (c *Container) GetImageService() (services.ImageService, error) {
	var service services.ImageService
	if err := c.container.Invoke(func(svc services.ImageService) {
		service = svc
	}); err != nil {
		return nil, err
	}
	return service, nil
}

// GetCacheService retrieves the CacheService from the container.
func (c *Container) GetCacheService() (services.CacheService, error) {
	var service services.CacheService
	if err := c.container.Invoke(func(svc services.CacheService) {
		service = svc
	}); err != nil {
		return nil, err
	}
	return service, nil
}

// GetRunner retrieves the instance Runner from the container.
func (c *Container) GetRunner() (*runtime.Runner, error) {
	var runner *runtime.Runner
	if err := c.container.Invoke(func(r *runtime.Runner) {
		runner = r
	}); err != nil {
		return nil, err
	}
	return runner, nil
}
