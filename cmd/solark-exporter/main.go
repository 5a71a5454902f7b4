// Command solark-exporter polls the Sol-Ark monitoring cloud and exposes the
// canonical readings, either as Prometheus metrics, as a one-shot JSON dump,
// or pushed to InfluxDB.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	solark "github.com/bbyrd74/go-solark"
)

var (
	flagEmail    string
	flagPassword string
	flagPlantID  string
	flagBaseURL  string
	flagAPIBase  string
	flagAuthMode string
	flagInterval time.Duration
	flagDebug    bool
)

func main() {
	root := &cobra.Command{
		Use:           "solark-exporter",
		Short:         "Poll the Sol-Ark cloud and publish plant telemetry",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flagEmail, "email", os.Getenv("SOLARK_EMAIL"), "account email (env SOLARK_EMAIL)")
	pf.StringVar(&flagPassword, "password", os.Getenv("SOLARK_PASSWORD"), "account password (env SOLARK_PASSWORD)")
	pf.StringVar(&flagPlantID, "plant-id", os.Getenv("SOLARK_PLANT_ID"), "plant identifier (env SOLARK_PLANT_ID)")
	pf.StringVar(&flagBaseURL, "base-url", envOr("SOLARK_BASE_URL", "https://api.solarkcloud.com"), "vendor base URL")
	pf.StringVar(&flagAPIBase, "api-base", os.Getenv("SOLARK_API_BASE"), "telemetry API base, defaults to the base URL")
	pf.StringVar(&flagAuthMode, "auth-mode", envOr("SOLARK_AUTH_MODE", "Auto"), "auth mode: Auto, Strict or Legacy")
	pf.DurationVar(&flagInterval, "interval", 120*time.Second, "poll interval (30s-3600s)")
	pf.BoolVar(&flagDebug, "debug", false, "enable debug logging")

	root.AddCommand(serveCommand(), onceCommand(), pushCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if flagDebug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func newClient(log zerolog.Logger, opts ...solark.OptionFunc) (*solark.Client, error) {
	if flagEmail == "" || flagPassword == "" || flagPlantID == "" {
		return nil, fmt.Errorf("email, password and plant-id are required")
	}
	base := []solark.OptionFunc{
		solark.WithBaseURL(flagBaseURL),
		solark.WithAuthMode(solark.AuthMode(flagAuthMode)),
		solark.WithLogger(log),
	}
	if flagAPIBase != "" {
		base = append(base, solark.WithAPIBase(flagAPIBase))
	}
	return solark.NewClient(flagEmail, flagPassword, append(base, opts...)...)
}

func serveCommand() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose readings as Prometheus metrics, fetched per scrape",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			client, err := newClient(log)
			if err != nil {
				return err
			}
			defer client.Close()

			reg := prometheus.NewRegistry()
			if err := reg.Register(NewCollector(client, flagPlantID, log)); err != nil {
				return err
			}

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			log.Info().Str("listen", listen).Str("plant", flagPlantID).Msg("serving metrics")
			return http.ListenAndServe(listen, mux)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", envOr("SOLARK_LISTEN", ":9090"), "metrics listen address")
	return cmd
}

func onceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Fetch and normalize a single cycle, print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			client, err := newClient(log)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			raw, err := client.Fetch(ctx, flagPlantID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(solark.Normalize(raw))
		},
	}
}

func pushCommand() *cobra.Command {
	var influxURL, influxDB, influxRP string
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Poll on an interval and write readings to InfluxDB",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			sink, err := newInfluxSink(influxURL, influxDB, influxRP, flagPlantID, log)
			if err != nil {
				return err
			}
			defer sink.Close()

			client, err := newClient(log, solark.WithNotification(sink))
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			poller := solark.NewPoller(client, flagPlantID, flagInterval)
			log.Info().Dur("interval", poller.Interval()).Str("plant", flagPlantID).Msg("polling")
			if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&influxURL, "influx-url", envOr("INFLUX_URL", "http://localhost:8086"), "InfluxDB address")
	cmd.Flags().StringVar(&influxDB, "influx-db", envOr("INFLUX_DB", "solark"), "InfluxDB database")
	cmd.Flags().StringVar(&influxRP, "influx-rp", os.Getenv("INFLUX_RP"), "InfluxDB retention policy")
	return cmd
}
