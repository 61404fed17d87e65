package config

import "time"

// Config represents the complete gridflow configuration.
type Config struct {
	Include         []string          `yaml:"include,omitempty"`
	Service         ServiceConfig     `yaml:"service"`
	Store           StoreConfig       `yaml:"store"`
	ConfigCache     ConfigCacheConfig `yaml:"config_cache"`
	LogDB           LogDBConfig       `yaml:"logdb"`
	Discovery       DiscoveryConfig   `yaml:"discovery"`
	Monitoring      MonitoringConfig  `yaml:"monitoring"`
	RequestDefaults RequestDefaults   `yaml:"request_defaults"`

	// SourceFiles lists every file that contributed, root first.
	SourceFiles []string `yaml:"-"`
	// Fingerprint is the blake3 digest over SourceFiles in load order.
	Fingerprint string `yaml:"-"`
}

// ServiceConfig defines process-wide settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StoreConfig selects the bookkeeping store backend.
type StoreConfig struct {
	Backend      string `yaml:"backend"` // sqlite | postgres | mysql | oracle
	DSN          string `yaml:"dsn,omitempty"`
	Path         string `yaml:"path,omitempty"` // sqlite only
	MaxOpenConns int    `yaml:"max_open_conns,omitempty"`
}

// ConfigCacheConfig defines how stored framework configurations are
// addressed by the discovery tool and the execution layer.
type ConfigCacheConfig struct {
	URL string `yaml:"url"`
}

// LogDBConfig defines the request audit trail.
type LogDBConfig struct {
	Identifier string        `yaml:"identifier"`
	Thread     string        `yaml:"thread"`
	Retention  time.Duration `yaml:"retention"`
}

// DiscoveryConfig defines the output-module discovery tool.
type DiscoveryConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
	// Timeout bounds one discovery run. Zero means no bound.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// MonitoringConfig is copied into every compiled task.
type MonitoringConfig struct {
	Interval        int    `yaml:"interval"`
	SoftTimeout     int    `yaml:"soft_timeout"`
	HardTimeout     int    `yaml:"hard_timeout"`
	DestinationHost string `yaml:"destination_host"`
	DestinationPort int    `yaml:"destination_port"`
}

// RequestDefaults fill optional processing request fields.
type RequestDefaults struct {
	DBSURL          string `yaml:"dbs_url"`
	UnmergedLFNBase string `yaml:"unmerged_lfn_base"`
	MergedLFNBase   string `yaml:"merged_lfn_base"`
	MinMergeSize    int64  `yaml:"min_merge_size"`
	MaxMergeSize    int64  `yaml:"max_merge_size"`
	MaxMergeEvents  int64  `yaml:"max_merge_events"`
}

// Defaults returns a config with every field at its default value.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "gridflow",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    "./data/wmbs.db",
		},
		ConfigCache: ConfigCacheConfig{
			URL: "configcache://gridflow",
		},
		LogDB: LogDBConfig{
			Identifier: "gridflow",
			Thread:     "main",
			Retention:  30 * 24 * time.Hour,
		},
		Discovery: DiscoveryConfig{
			Command: "outputmodules-from-config",
		},
		Monitoring: MonitoringConfig{
			Interval:        600,
			SoftTimeout:     300000,
			HardTimeout:     600000,
			DestinationHost: "cms-pamon.cern.ch",
			DestinationPort: 8884,
		},
		RequestDefaults: RequestDefaults{
			DBSURL:          "http://cmsdbsprod.cern.ch/cms_dbs_prod_global/servlet/DBSServlet",
			UnmergedLFNBase: "/store/temp/WMAgent/unmerged",
			MergedLFNBase:   "/store/temp/WMAgent/merged",
			MinMergeSize:    500000000,
			MaxMergeSize:    4294967296,
			MaxMergeEvents:  100000,
		},
	}
}
