package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/weathermap/internal/api/http"
	"github.com/i474232898/weathermap/internal/config"
	"github.com/i474232898/weathermap/internal/events"
	"github.com/i474232898/weathermap/internal/hostmap"
	"github.com/i474232898/weathermap/internal/layers"
	"github.com/i474232898/weathermap/internal/observability"
	"github.com/i474232898/weathermap/internal/scheduler"
	"github.com/i474232898/weathermap/internal/store"
	"github.com/i474232898/weathermap/internal/weatherapi"
	"github.com/i474232898/weathermap/internal/weathermap"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "weathermap",
		Short: "Weather map layer service",
		Long:  "Serve a weather map with radar, satellite, point and polygon layers, timeline animation and auto-refresh",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(layersCmd())
	rootCmd.AddCommand(observeCmd())
	rootCmd.AddCommand(forecastCmd())
	rootCmd.AddCommand(nearbyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.AppConfig) (*zap.Logger, error) {
	if verbose || (cfg != nil && cfg.Verbose) {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newClient(cfg *config.AppConfig, log *zap.Logger) *weatherapi.Client {
	opts := []weatherapi.Option{
		weatherapi.WithBaseURL(cfg.API.BaseURL),
		weatherapi.WithTileURL(cfg.API.TileURL),
		weatherapi.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		weatherapi.WithCacheTTL(cfg.API.CacheTTL),
		weatherapi.WithLogger(log.Named("weatherapi")),
	}
	if cfg.API.GeocoderAPIKey != "" {
		opts = append(opts, weatherapi.WithResolver(weatherapi.NewGeocodeResolver(cfg.API.GeocoderAPIKey, log.Named("geocoder"))))
	}
	return weatherapi.New(cfg.API.ClientID, cfg.API.ClientSecret, opts...)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the weather map service",
		Long:  "Start the weather map, its auto-refresh, the HTTP API and the MQTT event publisher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			settings, err := cfg.Map.Settings()
			if err != nil {
				return err
			}
			mapType, err := cfg.Map.MapType()
			if err != nil {
				return err
			}
			var host hostmap.HostMap
			if mapType == hostmap.Mapbox {
				host = hostmap.NewMapbox(cfg.Map.MapboxStyle)
			} else if host, err = hostmap.New(mapType); err != nil {
				return err
			}

			client := newClient(cfg, log)
			opts := []weathermap.Option{
				weathermap.WithLogger(log.Named("weathermap")),
				weathermap.WithFrameStore(store.NewFrameStore(settings.MaximumIntervalsForAnimation, cfg.Store.FrameMaxAge)),
			}

			var archive *store.Archive
			if cfg.Store.ArchivePath != "" {
				archive, err = store.OpenArchive(cfg.Store.ArchivePath)
				if err != nil {
					return err
				}
				defer archive.Close()
				opts = append(opts, weathermap.WithArchive(archive))
				log.Info("archive opened", zap.String("path", cfg.Store.ArchivePath))
			}

			m := weathermap.New(host, client, settings, opts...)
			defer m.Close()

			publisher, err := events.NewPublisher(cfg.MQTT, log.Named("mqtt"))
			if err != nil {
				log.Warn("mqtt connection failed; events will not be published", zap.Error(err))
			} else {
				defer publisher.Close()
				m.Register(publisher)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			m.SetMapCenter(cfg.Map.Center, cfg.Map.Zoom, false)
			initial, err := cfg.Map.InitialLayers()
			if err != nil {
				return err
			}
			if err := m.AddLayers(ctx, initial); err != nil {
				log.Warn("initial layers not all added", zap.Error(err))
			}
			if cfg.Map.AutoRefresh {
				if err := m.EnableAutoRefresh(); err != nil {
					return err
				}
			}

			// Archive pruning.
			var services httpapi.Services
			services.Map = m
			services.Weather = client
			if archive != nil {
				services.Archive = archive
				if cfg.Store.ArchiveRetention > 0 {
					pruner := scheduler.New("archive-prune", log.Named("scheduler"))
					err := pruner.Start(time.Hour, func(ctx context.Context) {
						n, err := archive.Prune(ctx, time.Now().Add(-cfg.Store.ArchiveRetention))
						if err != nil {
							log.Warn("archive prune failed", zap.Error(err))
							return
						}
						log.Debug("archive pruned", zap.Int64("rows", n))
					})
					if err != nil {
						return fmt.Errorf("failed to start archive pruning: %w", err)
					}
					defer pruner.Stop()
				}
			}

			app := fiber.New(fiber.Config{
				AppName:               "weathermap",
				DisableStartupMessage: true,
				ReadTimeout:           cfg.HTTP.ReadTimeout,
				WriteTimeout:          cfg.HTTP.WriteTimeout,
				ErrorHandler:          httpapi.ErrorHandler,
			})

			app.Use(logger.New())
			app.Use(recover.New())

			app.Get("/health", func(c *fiber.Ctx) error {
				return c.JSON(fiber.Map{
					"status":  "ok",
					"service": "weathermap",
					"mqtt":    publisher != nil && publisher.IsConnected(),
				})
			})
			app.Get("/metrics", adaptor.HTTPHandler(observability.Handler()))

			httpapi.RegisterRoutes(app, services)

			go func() {
				if err := app.Listen(":" + cfg.HTTP.Port); err != nil {
					log.Error("fiber server stopped", zap.Error(err))
				}
			}()
			log.Info("weathermap started", zap.String("port", cfg.HTTP.Port), zap.Stringer("mapType", mapType))

			<-ctx.Done()
			log.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				log.Warn("error during shutdown", zap.Error(err))
			}
			return nil
		},
	}
}

func layersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layers",
		Short: "List the supported layer types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(layers.ByCategory())
		},
	}
}

func observeCmd() *cobra.Command {
	var (
		filter  string
		recent  int
		since   time.Duration
		summary bool
	)
	cmd := &cobra.Command{
		Use:   "observe <place>",
		Short: "Print the latest observation for a place",
		Long:  "Print the latest observation for a place given as \"lat,lon\", a ZIP code or \"city[,state][,country]\"",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, place, err := placeCommand(args[0])
			if err != nil {
				return err
			}
			opts := weatherapi.RequestOptions{Filter: filter}
			if since > 0 {
				from := time.Now().Add(-since)
				if summary {
					sums, err := client.ObservationSummaryForPlace(cmd.Context(), place, from, time.Time{}, opts)
					if err != nil {
						return err
					}
					return printJSON(sums)
				}
				obs, err := client.ArchivedObservationsForPlace(cmd.Context(), place, from, time.Time{}, opts)
				if err != nil {
					return err
				}
				return printJSON(obs)
			}
			if recent > 0 {
				obs, err := client.RecentObservationsForPlace(cmd.Context(), place, recent, opts)
				if err != nil {
					return err
				}
				return printJSON(obs)
			}
			ob, err := client.ObservationForPlace(cmd.Context(), place, opts)
			if err != nil {
				return err
			}
			return printJSON(ob)
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "station filter (metar, mesonet, pws, allstations)")
	cmd.Flags().IntVar(&recent, "recent", 0, "print this many recent observations instead of the latest")
	cmd.Flags().DurationVar(&since, "since", 0, "print archived observations for this long back, e.g. 24h")
	cmd.Flags().BoolVar(&summary, "summary", false, "with --since, print daily summaries instead")
	return cmd
}

func forecastCmd() *cobra.Command {
	var (
		hourly bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "forecast <place>",
		Short: "Print the forecast for a place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, place, err := placeCommand(args[0])
			if err != nil {
				return err
			}
			opts := weatherapi.RequestOptions{Limit: limit}
			if hourly {
				opts.Filter = "1hr"
			}
			fc, err := client.ForecastForPlace(cmd.Context(), place, opts)
			if err != nil {
				return err
			}
			return printJSON(fc)
		},
	}
	cmd.Flags().BoolVar(&hourly, "hourly", false, "hourly periods instead of daily")
	cmd.Flags().IntVar(&limit, "limit", 7, "number of periods")
	return cmd
}

func nearbyCmd() *cobra.Command {
	var (
		radius string
		limit  int
	)
	cmd := &cobra.Command{
		Use:     "nearby <endpoint> <place>",
		Short:   "List results of an endpoint closest to a place",
		Example: "  weathermap nearby stormreports 44.88,-93.22 --radius 50mi",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, place, err := placeCommand(args[1])
			if err != nil {
				return err
			}
			list, err := client.ClosestToPlace(cmd.Context(), args[0], place, radius, weatherapi.RequestOptions{Limit: limit})
			if err != nil {
				return err
			}
			return printJSON(list)
		},
	}
	cmd.Flags().StringVar(&radius, "radius", "50mi", "search radius")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	return cmd
}

func placeCommand(arg string) (*weatherapi.Client, weatherapi.Place, error) {
	place, err := weatherapi.ParsePlace(arg)
	if err != nil {
		return nil, weatherapi.Place{}, err
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, weatherapi.Place{}, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, weatherapi.Place{}, err
	}
	return newClient(cfg, log), place, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
