// Command overlays serves tribal hazard map sessions over HTTP and offers
// one-shot fetch, validate and spec subcommands for operators.
//
// Usage:
//
//	overlays                       # same as "overlays serve"
//	overlays fetch flood --region wa
//	overlays fetch gages --bbox -121,46,-120,47
//	overlays validate --flood-stages stages.yaml
//	overlays spec --yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/tribal-hazard-overlays/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/tribal-hazard-overlays/internal/adapter/kafka"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/app"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/config"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/controls"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/domain"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/observability"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/staticdata"
)

func main() {
	root := &cobra.Command{
		Use:   "overlays",
		Short: "Tribal boundary maps with flood, weather and river gage overlays",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), fetchCmd(), validateCmd(), specCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the map session API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

// service holds what every subcommand that opens map sessions needs.
type service struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	deps    app.Deps
}

func newService(metrics *observability.Metrics) (*service, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return nil, err
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	clock := clockwork.NewRealClock()

	catalog, err := staticdata.Load()
	if err != nil {
		logger.Error("failed to load static catalog", "error", err)
		return nil, err
	}
	sources, err := app.NewSources(cfg, clock, metrics, logger)
	if err != nil {
		logger.Error("failed to build upstream sources", "error", err)
		return nil, err
	}
	return &service{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		deps: app.Deps{
			Catalog:  catalog,
			Sources:  sources,
			Settings: app.SettingsFromConfig(cfg),
			Clock:    clock,
			Logger:   logger,
			Metrics:  metrics,
		},
	}, nil
}

func serve(ctx context.Context) error {
	svc, err := newService(observability.NewMetrics())
	if err != nil {
		return err
	}
	logger := svc.logger

	// Snapshot publishing is feature-flagged via KAFKA_ENABLED.
	var writer *kafkaadapter.Writer
	if svc.cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(svc.cfg, svc.metrics, logger)
		svc.deps.Publisher = writer
		logger.Info("snapshot publishing enabled", "topic", svc.cfg.KafkaSnapshotTopic, "brokers", svc.cfg.KafkaBrokers)
	} else {
		logger.Info("snapshot publishing disabled")
	}

	registry := app.NewRegistry(svc.deps)
	srv := httpadapter.NewServer(svc.cfg.HTTPAddr, registry, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Close sessions abandoned without a DELETE.
	go registry.RunSweeper(ctx)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), svc.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	registry.Close()
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

func fetchCmd() *cobra.Command {
	var region, bbox string
	cmd := &cobra.Command{
		Use:       "fetch <layer>",
		Short:     "Load one overlay and print it as GeoJSON",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"tribal", "flood", "weather", "gages", "streams"},
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := app.ParseLayers(args[0])
			if err != nil {
				return err
			}
			if len(keys) != 1 {
				return fmt.Errorf("expected one layer, got %q", args[0])
			}

			svc, err := newService(observability.NewMetricsForTesting())
			if err != nil {
				return err
			}
			m := app.NewMap("cli", controls.ModeNone, svc.deps)
			defer m.Close()

			if bbox != "" {
				b, err := parseBBox(bbox)
				if err != nil {
					return err
				}
				m.ViewSettled(domain.Viewport{Bounds: b, Zoom: domain.ViewportFor(b).Zoom})
			}
			if err := m.Init(cmd.Context(), app.Params{Region: strings.ToLower(region), Layers: keys}); err != nil {
				return err
			}

			a, err := m.Adapter(keys[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(a.Layer().GeoJSON(), "", "  ")
			if err != nil {
				return fmt.Errorf("marshal %s: %w", keys[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&region, "region", "r", "", "Region code to focus (us or a state code)")
	cmd.Flags().StringVarP(&bbox, "bbox", "b", "", "View bounds as west,south,east,north")
	return cmd
}

// parseBBox reads "west,south,east,north" in degrees.
func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox %q: want west,south,east,north", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}
	if v[0] >= v[2] || v[1] >= v[3] {
		return orb.Bound{}, fmt.Errorf("bbox %q: west/south must be less than east/north", s)
	}
	if v[0] < -180 || v[2] > 180 || v[1] < -90 || v[3] > 90 {
		return orb.Bound{}, fmt.Errorf("bbox %q: out of range", s)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

func validateCmd() *cobra.Command {
	var stagesPath, boundariesPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the static catalog, tribal boundaries and flood stage table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			var failed []error

			check := func(name string, err error) {
				if err != nil {
					fmt.Fprintf(out, "FAIL %s\n%v\n", name, err)
					failed = append(failed, fmt.Errorf("%s: %w", name, err))
					return
				}
				fmt.Fprintf(out, "ok   %s\n", name)
			}

			catalog, err := staticdata.Load()
			if err == nil {
				err = catalog.Validate()
			}
			check("catalog", err)

			fc, err := staticdata.Boundaries(boundariesPath)
			if err == nil {
				err = staticdata.ValidateBoundaries(fc)
			}
			check("tribal boundaries", err)

			_, err = staticdata.LoadFloodStages(stagesPath)
			check("flood stages", err)

			return errors.Join(failed...)
		},
	}
	cmd.Flags().StringVar(&stagesPath, "flood-stages", "", "Flood stage YAML file")
	cmd.Flags().StringVar(&boundariesPath, "boundaries", "", "Tribal boundary GeoJSON file (embedded default when empty)")
	return cmd
}

func specCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Export the OpenAPI description (JSON by default, --yaml for YAML)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := httpadapter.NewServer("", app.NewRegistry(app.Deps{}), slog.Default())
			openapi := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = openapi.YAML()
			} else {
				output, err = json.MarshalIndent(openapi, "", "  ")
			}
			if err != nil {
				return fmt.Errorf("marshal openapi: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(output))
			return nil
		},
	}
	cmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	return cmd
}
