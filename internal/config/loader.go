package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/gridflow/internal/errdefs"
	"github.com/mattjoyce/gridflow/internal/storage/dialect"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads a config file, overlays its include files in order, fills
// defaults and validates the result. A directory argument loads the
// config.yaml inside it.
func Load(configPath string) (*Config, error) {
	cfg, err := read(configPath)
	if err != nil {
		return nil, err
	}

	configDir := filepath.Dir(cfg.SourceFiles[0])
	manifest, err := LoadChecksums(configDir)
	if err != nil {
		return nil, err
	}
	if manifest != nil {
		if err := VerifyChecksums(configDir, manifest, cfg.SourceFiles); err != nil {
			return nil, err
		}
	}

	if cfg.Fingerprint, err = fingerprint(cfg.SourceFiles); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SourceFiles returns the directory of the root config file and every file
// that contributes to the configuration, root first. Checksums are not
// verified, so it works on edited files.
func SourceFiles(configPath string) (string, []string, error) {
	cfg, err := read(configPath)
	if err != nil {
		return "", nil, err
	}
	return filepath.Dir(cfg.SourceFiles[0]), cfg.SourceFiles, nil
}

// read parses the root file and its includes over the defaults.
func read(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	// Start from the defaults so a field absent from every file keeps its
	// default; yaml.v3 leaves fields it does not see untouched.
	cfg := Defaults()
	cfg.Include = nil
	if err := overlayFile(cfg, absPath); err != nil {
		return nil, err
	}
	cfg.SourceFiles = []string{absPath}

	visited := map[string]bool{absPath: true}
	if err := loadIncludes(cfg, cfg.Include, filepath.Dir(absPath), visited); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadIncludes overlays each include onto cfg depth-first. Paths are
// resolved relative to the including file.
func loadIncludes(cfg *Config, includes []string, baseDir string, visited map[string]bool) error {
	for i, includePath := range includes {
		includePath = interpolateEnv(includePath)
		if !filepath.IsAbs(includePath) {
			includePath = filepath.Join(baseDir, includePath)
		}
		absPath, err := filepath.Abs(includePath)
		if err != nil {
			return fmt.Errorf("include[%d]: failed to resolve path %q: %w", i, includePath, err)
		}
		if visited[absPath] {
			return fmt.Errorf("include[%d]: include cycle through %s", i, absPath)
		}
		if _, err := os.Stat(absPath); err != nil {
			return fmt.Errorf("include[%d]: file not found: %s", i, absPath)
		}
		visited[absPath] = true

		cfg.Include = nil
		if err := overlayFile(cfg, absPath); err != nil {
			return fmt.Errorf("include[%d]: %w", i, err)
		}
		cfg.SourceFiles = append(cfg.SourceFiles, absPath)

		if err := loadIncludes(cfg, cfg.Include, filepath.Dir(absPath), visited); err != nil {
			return err
		}
	}
	return nil
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return fmt.Errorf("failed to parse YAML in %s: %w", filepath.Base(path), err)
	}
	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place; validate rejects it where it matters.
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return errdefs.Configuration("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if f := cfg.Service.LogFormat; f != "json" && f != "text" {
		return errdefs.Configuration("service.log_format must be json or text (got %q)", f)
	}

	kind, err := dialect.ParseKind(cfg.Store.Backend)
	if err != nil {
		return errdefs.Configuration("store.backend: %v", err)
	}
	if kind == dialect.SQLite {
		if cfg.Store.Path == "" && cfg.Store.DSN == "" {
			return errdefs.Configuration("store.path is required for the sqlite backend")
		}
	} else if cfg.Store.DSN == "" {
		return errdefs.Configuration("store.dsn is required for the %s backend", kind)
	}
	if cfg.Store.MaxOpenConns < 0 {
		return errdefs.Configuration("store.max_open_conns must not be negative")
	}
	for field, value := range map[string]string{
		"store.dsn":         cfg.Store.DSN,
		"store.path":        cfg.Store.Path,
		"config_cache.url":  cfg.ConfigCache.URL,
		"discovery.command": cfg.Discovery.Command,
	} {
		if m := envVarPattern.FindStringSubmatch(value); m != nil {
			return errdefs.Configuration("%s: environment variable ${%s} is not set", field, m[1])
		}
	}

	if cfg.ConfigCache.URL == "" {
		return errdefs.Configuration("config_cache.url is required")
	}
	if cfg.LogDB.Identifier == "" {
		return errdefs.Configuration("logdb.identifier is required")
	}
	if cfg.LogDB.Retention < 0 {
		return errdefs.Configuration("logdb.retention must not be negative")
	}
	if cfg.Discovery.Command == "" {
		return errdefs.Configuration("discovery.command is required")
	}
	if cfg.Discovery.Timeout < 0 {
		return errdefs.Configuration("discovery.timeout must not be negative")
	}

	if cfg.Monitoring.Interval <= 0 {
		return errdefs.Configuration("monitoring.interval must be positive")
	}
	if cfg.Monitoring.DestinationPort < 0 || cfg.Monitoring.DestinationPort > 65535 {
		return errdefs.Configuration("monitoring.destination_port %d is out of range", cfg.Monitoring.DestinationPort)
	}

	return validateRequestDefaults(cfg.RequestDefaults)
}

func validateRequestDefaults(d RequestDefaults) error {
	if d.UnmergedLFNBase == "" || d.MergedLFNBase == "" {
		return errdefs.Configuration("request_defaults: unmerged_lfn_base and merged_lfn_base are required")
	}
	if d.MinMergeSize <= 0 || d.MaxMergeSize <= 0 || d.MaxMergeEvents <= 0 {
		return errdefs.Configuration("request_defaults: merge thresholds must be positive")
	}
	if d.MinMergeSize > d.MaxMergeSize {
		return errdefs.Configuration("request_defaults: min_merge_size %d exceeds max_merge_size %d", d.MinMergeSize, d.MaxMergeSize)
	}
	return nil
}
