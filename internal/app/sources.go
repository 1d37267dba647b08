package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/adapter/arcgis"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/adapter/nws"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/adapter/upstream"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/adapter/usgs"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/config"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/layers"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/observability"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/staticdata"
)

// Sources are the upstream clients shared by every map session.
type Sources struct {
	Alerts  layers.AlertSource
	Gages   layers.GageSource
	Stages  layers.StageLookup
	Flood   arcgis.Querier
	Tribal  arcgis.Querier
	Streams arcgis.Querier
}

// NewSources builds the upstream clients from configuration. ArcGIS services
// share one query cache per service across sessions.
func NewSources(cfg *config.Config, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) (Sources, error) {
	stages, err := staticdata.LoadFloodStages(cfg.FloodStagesFile)
	if err != nil {
		return Sources{}, fmt.Errorf("load flood stages: %w", err)
	}

	http := upstream.New(cfg.UpstreamTimeout, cfg.UserAgent, metrics, logger)
	cached := func(source, baseURL string) arcgis.Querier {
		client := arcgis.NewClient(source, baseURL, http)
		if cfg.ArcGISCacheSize <= 0 {
			return client
		}
		return arcgis.NewCachedQuerier(client, cfg.ArcGISCacheSize, cfg.ArcGISCacheTTL, clock, metrics)
	}

	return Sources{
		Alerts:  nws.NewClient(cfg.NWSBaseURL, http, logger),
		Gages:   usgs.NewClient(cfg.USGSBaseURL, http, logger),
		Stages:  stages,
		Flood:   cached("fema", cfg.FEMANFHLURL),
		Tribal:  cached("bia", cfg.BIALARURL),
		Streams: cached("nhd", cfg.NHDURL),
	}, nil
}

// Settings are the per-session adapter settings.
type Settings struct {
	WeatherRefresh  time.Duration
	GageRefresh     time.Duration
	FloodRefresh    time.Duration
	MaxRetries      int
	BoundsTolerance float64
	Tribal          layers.TribalConfig

	SessionIdleTimeout time.Duration
}

// SettingsFromConfig extracts session settings from configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		WeatherRefresh:  cfg.WeatherRefreshInterval,
		GageRefresh:     cfg.GageRefreshInterval,
		FloodRefresh:    cfg.FloodRefreshInterval,
		MaxRetries:      cfg.RefreshMaxRetries,
		BoundsTolerance: cfg.BoundsTolerance,
		Tribal: layers.TribalConfig{
			Source:         cfg.TribalSource,
			BoundariesFile: cfg.TribalBoundariesFile,
		},
		SessionIdleTimeout: cfg.SessionIdleTimeout,
	}
}
