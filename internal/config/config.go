package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Upstream APIs.
	UpstreamTimeout time.Duration
	UserAgent       string
	NWSBaseURL      string
	USGSBaseURL     string
	FEMANFHLURL     string
	BIALARURL       string
	NHDURL          string

	// Refresh loops. Zero disables the loop for that overlay.
	WeatherRefreshInterval time.Duration
	GageRefreshInterval    time.Duration
	FloodRefreshInterval   time.Duration
	RefreshMaxRetries      int

	BoundsTolerance float64

	// Sessions not accessed for this long are closed. Zero disables expiry.
	SessionIdleTimeout time.Duration

	// Tribal boundary source: "static" reads TribalBoundariesFile (or the
	// embedded file when empty), "live" queries the BIA LAR service.
	TribalSource         string
	TribalBoundariesFile string

	FloodStagesFile string

	ArcGISCacheSize int
	ArcGISCacheTTL  time.Duration

	// Overlay snapshot publishing.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSnapshotTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	upstreamTimeout, err := parseDuration("UPSTREAM_TIMEOUT", "20s")
	if err != nil {
		return nil, err
	}
	if upstreamTimeout <= 0 || upstreamTimeout > time.Minute {
		return nil, errors.New("invalid UPSTREAM_TIMEOUT: must be within (0, 60s]")
	}

	weatherInterval, err := parseDuration("WEATHER_REFRESH_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}
	gageInterval, err := parseDuration("GAGE_REFRESH_INTERVAL", "15m")
	if err != nil {
		return nil, err
	}
	floodInterval, err := parseDuration("FLOOD_REFRESH_INTERVAL", "30m")
	if err != nil {
		return nil, err
	}
	idleTimeout, err := parseDuration("SESSION_IDLE_TIMEOUT", "30m")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("ARCGIS_CACHE_TTL", "10m")
	if err != nil {
		return nil, err
	}

	maxRetries, err := parseInt("REFRESH_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	if maxRetries < 0 || maxRetries > 10 {
		return nil, errors.New("invalid REFRESH_MAX_RETRIES: must be between 0 and 10")
	}

	tolerance, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("BOUNDS_TOLERANCE", "0.01"), 64)
	if err != nil || tolerance <= 0 || tolerance >= 1 {
		return nil, errors.New("invalid BOUNDS_TOLERANCE: must be a positive number of degrees below 1")
	}

	kafkaEnabled := os.Getenv("KAFKA_ENABLED") == "true"

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		UpstreamTimeout: upstreamTimeout,
		UserAgent:       sharedcfg.EnvOrDefault("USER_AGENT", "tribal-hazard-overlays"),
		NWSBaseURL:      sharedcfg.EnvOrDefault("NWS_BASE_URL", "https://api.weather.gov"),
		USGSBaseURL:     sharedcfg.EnvOrDefault("USGS_BASE_URL", "https://waterservices.usgs.gov"),
		FEMANFHLURL:     sharedcfg.EnvOrDefault("FEMA_NFHL_URL", "https://hazards.fema.gov/arcgis/rest/services/public/NFHL/MapServer"),
		BIALARURL:       sharedcfg.EnvOrDefault("BIA_LAR_URL", "https://biamaps.doi.gov/server/rest/services/DivLTR/BIA_AIAN_National_LAR/MapServer"),
		NHDURL:          sharedcfg.EnvOrDefault("NHD_URL", "https://hydro.nationalmap.gov/arcgis/rest/services/NHDPlus_HR/MapServer"),

		WeatherRefreshInterval: weatherInterval,
		GageRefreshInterval:    gageInterval,
		FloodRefreshInterval:   floodInterval,
		RefreshMaxRetries:      maxRetries,

		BoundsTolerance:    tolerance,
		SessionIdleTimeout: idleTimeout,

		TribalSource:         sharedcfg.EnvOrDefault("TRIBAL_SOURCE", "static"),
		TribalBoundariesFile: os.Getenv("TRIBAL_BOUNDARIES_FILE"),
		FloodStagesFile:      os.Getenv("FLOOD_STAGES_FILE"),

		ArcGISCacheSize: parseCacheSize(),
		ArcGISCacheTTL:  cacheTTL,

		KafkaEnabled:       kafkaEnabled,
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSnapshotTopic: sharedcfg.EnvOrDefault("KAFKA_SNAPSHOT_TOPIC", "overlay-snapshots"),
	}

	if cfg.TribalSource != "static" && cfg.TribalSource != "live" {
		return nil, errors.New("invalid TRIBAL_SOURCE: must be static or live")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaSnapshotTopic == "" {
		return nil, errors.New("KAFKA_SNAPSHOT_TOPIC is required when KAFKA_ENABLED is true")
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseCacheSize() int {
	if s := os.Getenv("ARCGIS_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 256
}
