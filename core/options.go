package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// NewStaticConfigLoader exposes an in-memory raw loader, primarily for
// tests and embedded wiring.
func NewStaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver merges defaults, loaded file config, and runtime
// overrides as layered scopes, highest priority last.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	syncLayer := map[string]any{}
	if includeZero || cfg.Sync.DedupeWindow > 0 {
		syncLayer["dedupe_window"] = cfg.Sync.DedupeWindow
	}
	if includeZero || cfg.Sync.DeletionPageLimit > 0 {
		syncLayer["deletion_page_limit"] = cfg.Sync.DeletionPageLimit
	}
	if includeZero || cfg.Sync.IndexRefreshInterval > 0 {
		syncLayer["index_refresh_interval"] = cfg.Sync.IndexRefreshInterval
	}
	if len(syncLayer) > 0 {
		layer["sync"] = syncLayer
	}
	if includeZero || strings.TrimSpace(cfg.Source.ExportDir) != "" {
		layer["source"] = map[string]any{
			"export_dir":    cfg.Source.ExportDir,
			"poll_interval": cfg.Source.PollInterval,
		}
	}
	if includeZero || strings.TrimSpace(cfg.API.BaseURL) != "" {
		layer["api"] = map[string]any{
			"base_url":   cfg.API.BaseURL,
			"auth_token": cfg.API.AuthToken,
		}
	}
	if includeZero || strings.TrimSpace(cfg.Storage.DSN) != "" {
		layer["storage"] = map[string]any{
			"driver": cfg.Storage.Driver,
			"dsn":    cfg.Storage.DSN,
		}
	}
	if includeZero || strings.TrimSpace(cfg.Signing.Strategy) != "" {
		layer["signing"] = map[string]any{
			"strategy": cfg.Signing.Strategy,
			"secret":   cfg.Signing.Secret,
			"key_path": cfg.Signing.KeyPath,
		}
	}
	return layer
}
