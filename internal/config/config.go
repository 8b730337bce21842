// Package config loads the service configuration: environment variables
// (optionally from a .env file) plus a YAML file describing the council.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreMySQL  = "mysql"
)

// DefaultSearchURL is the DuckDuckGo HTML endpoint.
const DefaultSearchURL = "https://html.duckduckgo.com/html/"

// Config is the full service configuration.
type Config struct {
	Port               int
	DataDir            string
	StoreBackend       string
	SQLitePath         string
	MySQLDSN           string
	ModelsFile         string
	CORSAllowedOrigins []string
	MaxRequestBodySize int64
	ModelTimeout       time.Duration
	TitleTimeout       time.Duration
	HealthURL          string
	HealthInterval     time.Duration
	SearchURL          string
	SearchCacheTTL     time.Duration

	Council *CouncilFile
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Port:               8001,
		DataDir:            "data/conversations",
		StoreBackend:       StoreFile,
		SQLitePath:         "data/council.db",
		ModelsFile:         "models.yaml",
		MaxRequestBodySize: 20 << 20,
		ModelTimeout:       120 * time.Second,
		TitleTimeout:       30 * time.Second,
		HealthInterval:     10 * time.Second,
		SearchURL:          DefaultSearchURL,
		SearchCacheTTL:     5 * time.Minute,
		Council:            DefaultCouncil(),
	}
}

// Load reads .env (if present), applies environment overrides and loads the
// models file when it exists.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := Default()
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	if _, err := os.Stat(cfg.ModelsFile); err == nil {
		council, err := LoadCouncil(cfg.ModelsFile)
		if err != nil {
			return nil, err
		}
		cfg.Council = council
	} else {
		log.Printf("Models file %s not found, starting with an empty council", cfg.ModelsFile)
	}

	log.Println("Configuration loaded successfully")
	return cfg, nil
}

// loadDotEnv tries the usual .env locations and loads the first one found.
func loadDotEnv() {
	envLocations := []string{
		".env",
		"../.env",
	}

	for _, envPath := range envLocations {
		absPath, err := filepath.Abs(envPath)
		if err != nil {
			continue
		}
		if _, err := os.Stat(absPath); err != nil {
			continue
		}
		if err := godotenv.Load(absPath); err == nil {
			log.Printf("Loaded .env from: %s", absPath)
			return
		}
	}
}

// applyEnv overrides defaults from the given lookup function.
func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("COUNCIL_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("config: invalid COUNCIL_PORT %q", v)
		}
		c.Port = port
	}
	if v := getenv("COUNCIL_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := getenv("COUNCIL_STORE"); v != "" {
		switch v {
		case StoreFile, StoreSQLite, StoreMySQL:
			c.StoreBackend = v
		default:
			return fmt.Errorf("config: unknown COUNCIL_STORE %q", v)
		}
	}
	if v := getenv("COUNCIL_SQLITE_PATH"); v != "" {
		c.SQLitePath = v
	}
	c.MySQLDSN = getenv("COUNCIL_MYSQL_DSN")
	if c.StoreBackend == StoreMySQL && c.MySQLDSN == "" {
		return fmt.Errorf("config: COUNCIL_MYSQL_DSN is required for the mysql store")
	}
	if v := getenv("COUNCIL_MODELS_FILE"); v != "" {
		c.ModelsFile = v
	}
	if v := getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSAllowedOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.CORSAllowedOrigins = append(c.CORSAllowedOrigins, origin)
			}
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"COUNCIL_MODEL_TIMEOUT", &c.ModelTimeout},
		{"COUNCIL_TITLE_TIMEOUT", &c.TitleTimeout},
		{"COUNCIL_HEALTH_INTERVAL", &c.HealthInterval},
		{"COUNCIL_SEARCH_CACHE_TTL", &c.SearchCacheTTL},
	}
	for _, d := range durations {
		v := getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			return fmt.Errorf("config: invalid %s %q", d.key, v)
		}
		*d.dst = parsed
	}

	c.HealthURL = getenv("COUNCIL_HEALTH_URL")
	if v := getenv("COUNCIL_SEARCH_URL"); v != "" {
		c.SearchURL = v
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
