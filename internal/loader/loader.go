// Package loader handles configuration file loading, validation, and
// application.
//
// LOCATION: internal/loader/loader.go
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables
//   - Processing include directives
//   - Validating the merged configuration
//   - Applying the declarative catalog to the store

package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/depot/internal/errors"
	"github.com/xtxerr/depot/internal/store"
)

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Process includes (load additional catalog files)
	baseDir := filepath.Dir(path)
	if err := processIncludes(cfg, baseDir); err != nil {
		return nil, err
	}

	return cfg, nil
}

// processIncludes loads and merges included configuration files.
func processIncludes(cfg *Config, baseDir string) error {
	for _, pattern := range cfg.Include {
		// Resolve relative paths
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}

		// Expand glob pattern
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}

		for _, match := range matches {
			if err := loadInclude(cfg, match); err != nil {
				return fmt.Errorf("load include %q: %w", match, err)
			}
		}
	}

	return nil
}

// loadInclude loads a single include file and merges its catalog
// declarations into the config.
func loadInclude(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	expanded := os.ExpandEnv(string(data))

	// Parse into a partial config
	var partial Config
	if err := yaml.Unmarshal([]byte(expanded), &partial); err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	if partial.Catalog == nil {
		return nil
	}
	if cfg.Catalog == nil {
		cfg.Catalog = &CatalogConfig{}
	}

	if cfg.Catalog.DeviceTypes == nil {
		cfg.Catalog.DeviceTypes = make(map[string]*DeviceTypeConfig)
	}
	for name, t := range partial.Catalog.DeviceTypes {
		cfg.Catalog.DeviceTypes[name] = t
	}

	if cfg.Catalog.Models == nil {
		cfg.Catalog.Models = make(map[string]*ModelConfig)
	}
	for name, m := range partial.Catalog.Models {
		cfg.Catalog.Models[name] = m
	}

	if cfg.Catalog.Devices == nil {
		cfg.Catalog.Devices = make(map[string]*DeviceConfig)
	}
	for name, d := range partial.Catalog.Devices {
		cfg.Catalog.Devices[name] = d
	}

	return nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	// Metastore validation
	if cfg.Metastore.Path == "" {
		errs.AddField("metastore.path", "cannot be empty")
	}

	// Pipeline validation
	switch cfg.Pipeline.Mode {
	case "gateway", "server":
	default:
		errs.AddField("pipeline.mode", fmt.Sprintf("unknown mode %q", cfg.Pipeline.Mode))
	}
	if cfg.Pipeline.Concurrency < 1 {
		errs.AddField("pipeline.concurrency", "must be at least 1")
	}

	// Archive validation
	if cfg.Archive.Dir == "" {
		errs.AddField("archive.dir", "cannot be empty")
	}

	// Logging validation
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs.AddField("logging.level", fmt.Sprintf("unknown level %q", cfg.Logging.Level))
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		errs.AddField("logging.format", fmt.Sprintf("unknown format %q", cfg.Logging.Format))
	}

	// Catalog validation
	if cfg.Catalog != nil {
		validateCatalog(cfg.Catalog, errs)
	}

	return errs.Err()
}

func validateCatalog(c *CatalogConfig, errs *errors.ValidationErrors) {
	for name, t := range c.DeviceTypes {
		if t.ID == "" {
			errs.AddField(fmt.Sprintf("catalog.device_types.%s.id", name), "cannot be empty")
		}
	}
	for name, m := range c.Models {
		if m.ID == "" {
			errs.AddField(fmt.Sprintf("catalog.models.%s.id", name), "cannot be empty")
		}
		if m.Indexing == "" {
			errs.AddField(fmt.Sprintf("catalog.models.%s.indexing", name), "cannot be empty")
		}
		if len(m.Fields) == 0 {
			errs.AddField(fmt.Sprintf("catalog.models.%s.fields", name), "at least one field is required")
		}
	}
	for name, d := range c.Devices {
		if d.ID == "" {
			errs.AddField(fmt.Sprintf("catalog.devices.%s.id", name), "cannot be empty")
		}
		if d.Type == "" {
			errs.AddField(fmt.Sprintf("catalog.devices.%s.type", name), "cannot be empty")
		}
		if _, ok := c.DeviceTypes[d.Type]; !ok {
			errs.AddField(fmt.Sprintf("catalog.devices.%s.type", name),
				fmt.Sprintf("unknown device type %q", d.Type))
		}
	}
}

// =============================================================================
// Store Config
// =============================================================================

// ToStoreConfig converts the metastore section to the store's config.
func ToStoreConfig(cfg *MetastoreConfig) store.Config {
	sc := store.DefaultConfig()
	if cfg.Path != "" && cfg.Path != ":memory:" {
		sc.DSN = cfg.Path
	}
	if cfg.MaxOpenConns > 0 {
		sc.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		sc.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime > 0 {
		sc.ConnMaxLifetime = cfg.ConnMaxLifetime.Duration()
	}
	if cfg.QueryTimeout > 0 {
		sc.QueryTimeout = cfg.QueryTimeout.Duration()
	}
	return sc
}
