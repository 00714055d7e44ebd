package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the gateway's process configuration. Values load in three
// layers: built-in defaults, then an optional YAML file, then environment
// variables.
type Config struct {
	ListenAddr      string
	APIBase         string
	DBPath          string
	LogLevel        string
	LogFormat       string
	LogFile         string
	CatalogTimeout  time.Duration
	WardrobeTimeout time.Duration
	HealthInterval  time.Duration
	NoticeTTL       time.Duration
	PreviewMaxDim   int
}

// fileConfig is the YAML shape. Durations are strings ("90s", "2m") parsed
// with time.ParseDuration.
type fileConfig struct {
	ListenAddr      string `yaml:"listen_addr"`
	APIBase         string `yaml:"api_base"`
	DBPath          string `yaml:"db_path"`
	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"`
	LogFile         string `yaml:"log_file"`
	CatalogTimeout  string `yaml:"catalog_timeout"`
	WardrobeTimeout string `yaml:"wardrobe_timeout"`
	HealthInterval  string `yaml:"health_interval"`
	NoticeTTL       string `yaml:"notice_ttl"`
	PreviewMaxDim   int    `yaml:"preview_max_dim"`
}

func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:      ":8090",
		APIBase:         "http://localhost:8000",
		DBPath:          "fitroom.db",
		LogLevel:        "info",
		LogFormat:       "json",
		CatalogTimeout:  60 * time.Second,
		WardrobeTimeout: 90 * time.Second,
		HealthInterval:  30 * time.Second,
		NoticeTTL:       4 * time.Second,
		PreviewMaxDim:   512,
	}

	if err := cfg.applyFile(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFile overlays the YAML config file. A missing default file is fine; a
// missing file named via CONFIG_FILE is an error.
func (c *Config) applyFile() error {
	path, explicit := os.LookupEnv("CONFIG_FILE")
	if !explicit {
		path = "fitroom.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	setString(&c.ListenAddr, f.ListenAddr)
	setString(&c.APIBase, f.APIBase)
	setString(&c.DBPath, f.DBPath)
	setString(&c.LogLevel, f.LogLevel)
	setString(&c.LogFile, f.LogFile)
	setString(&c.LogFormat, f.LogFormat)
	if f.PreviewMaxDim > 0 {
		c.PreviewMaxDim = f.PreviewMaxDim
	}

	for _, d := range []struct {
		target *time.Duration
		value  string
		key    string
	}{
		{&c.CatalogTimeout, f.CatalogTimeout, "catalog_timeout"},
		{&c.WardrobeTimeout, f.WardrobeTimeout, "wardrobe_timeout"},
		{&c.HealthInterval, f.HealthInterval, "health_interval"},
		{&c.NoticeTTL, f.NoticeTTL, "notice_ttl"},
	} {
		if err := setDuration(d.target, d.value, d.key); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.ListenAddr = getEnv("LISTEN_ADDR", c.ListenAddr)
	c.APIBase = getEnv("API_BASE", c.APIBase)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)

	for _, d := range []struct {
		target *time.Duration
		key    string
	}{
		{&c.CatalogTimeout, "CATALOG_TIMEOUT"},
		{&c.WardrobeTimeout, "WARDROBE_TIMEOUT"},
		{&c.HealthInterval, "HEALTH_INTERVAL"},
		{&c.NoticeTTL, "NOTICE_TTL"},
	} {
		if err := setDuration(d.target, os.Getenv(d.key), d.key); err != nil {
			return err
		}
	}

	if v := os.Getenv("PREVIEW_MAX_DIM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PREVIEW_MAX_DIM %q: %w", v, err)
		}
		c.PreviewMaxDim = n
	}
	return nil
}

func setString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func setDuration(target *time.Duration, value, key string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*target = d
	return nil
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}
