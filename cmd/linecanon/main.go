package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dmcnulty/linecanon/internal/alerts"
	"github.com/dmcnulty/linecanon/internal/canonical"
	"github.com/dmcnulty/linecanon/internal/config"
	"github.com/dmcnulty/linecanon/internal/freshness"
	"github.com/dmcnulty/linecanon/internal/metrics"
	"github.com/dmcnulty/linecanon/internal/resolver"
	"github.com/dmcnulty/linecanon/internal/storage"
	"github.com/dmcnulty/linecanon/internal/teams"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	command := "run"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command = args[0]
		args = args[1:]
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	log.WithFields(logrus.Fields{
		"environment":      cfg.Environment,
		"sport":            cfg.Sport,
		"primary_source":   cfg.PrimarySource,
		"secondary_source": cfg.SecondarySource,
		"window_days":      cfg.WindowDays,
	}).Info("Configuration loaded")

	db, err := storage.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		log.WithError(err).Fatal("Failed to run database migrations")
	}

	teamResolver := teams.New()
	alertSender := createAlertSender(cfg, log)

	res := resolver.New(cfg, db, teamResolver, alertSender, log)
	engine := canonical.New(cfg, db, teamResolver, log)
	monitor := freshness.New(cfg, db, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch command {
	case "resolve-events":
		stats, err := res.Resolve(ctx)
		if err != nil {
			log.WithError(err).Fatal("Event resolution failed")
		}
		printJSON(stats)

	case "canonicalize":
		window := windowFlag(cfg, "canonicalize", args, log)
		stats, err := engine.Canonicalize(ctx, window)
		if err != nil {
			log.WithError(err).Fatal("Canonicalization failed")
		}
		printJSON(stats)

	case "check-freshness":
		window := windowFlag(cfg, "check-freshness", args, log)
		result, err := monitor.Check(ctx, window, time.Now())
		if err != nil {
			log.WithError(err).Fatal("Freshness check failed")
		}
		printJSON(result)
		if !result.OK {
			os.Exit(1)
		}

	case "run":
		runDaemon(ctx, cancel, cfg, res, engine, monitor, alertSender, log)

	default:
		log.WithField("command", command).Fatal("Unknown command (valid: run, resolve-events, canonicalize, check-freshness)")
	}
}

// runDaemon loops resolution, canonicalization and freshness checks on their
// configured intervals. Resolution always runs before canonicalization in the
// same pass, so a canonicalization never splits output across two event ids
// that are about to be merged.
func runDaemon(
	ctx context.Context,
	cancel context.CancelFunc,
	cfg *config.Config,
	res *resolver.Resolver,
	engine *canonical.Engine,
	monitor *freshness.Monitor,
	alertSender alerts.Sender,
	log *logrus.Logger,
) {
	go startHTTPServer(cfg.HealthPort, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	pipelineTicker := time.NewTicker(time.Duration(cfg.CanonicalizeIntervalMins) * time.Minute)
	defer pipelineTicker.Stop()
	freshnessTicker := time.NewTicker(time.Duration(cfg.FreshnessIntervalMins) * time.Minute)
	defer freshnessTicker.Stop()

	runPipeline := func() {
		if _, err := res.Resolve(ctx); err != nil {
			log.WithError(err).Error("Event resolution failed")
			return
		}
		if _, err := engine.Canonicalize(ctx, cfg.Window()); err != nil {
			log.WithError(err).Error("Canonicalization failed")
		}
	}

	runFreshness := func() {
		result, err := monitor.Check(ctx, cfg.Window(), time.Now())
		if err != nil {
			log.WithError(err).Error("Freshness check failed")
			return
		}
		if !result.OK {
			payload := &alerts.Payload{
				Severity:    alerts.SeverityWarn,
				Kind:        alerts.KindFreshness,
				Summary:     "Data freshness check failed",
				Details:     result.Categories,
				Environment: cfg.Environment,
				Timestamp:   time.Now(),
			}
			err := alertSender.Send(ctx, payload)
			if err != nil {
				log.WithError(err).Warn("Failed to send freshness alert")
			}
			metrics.RecordAlert(string(alerts.KindFreshness), err)
		}
	}

	log.Info("Starting consistency pipeline loop")
	runPipeline()
	runFreshness()

	for {
		select {
		case <-pipelineTicker.C:
			runPipeline()
		case <-freshnessTicker.C:
			runFreshness()
		case sig := <-sigChan:
			log.WithField("signal", sig).Info("Received shutdown signal")
			cancel()
			log.Info("Graceful shutdown complete")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, shutting down")
			return
		}
	}
}

// windowFlag parses the optional -window-days override for one-shot commands
func windowFlag(cfg *config.Config, name string, args []string, log *logrus.Logger) time.Duration {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	windowDays := fs.Int("window-days", cfg.WindowDays, "rolling window in days")
	if err := fs.Parse(args); err != nil {
		log.WithError(err).Fatal("Failed to parse flags")
	}
	if *windowDays <= 0 {
		log.WithField("window_days", *windowDays).Fatal("window-days must be positive")
	}
	return time.Duration(*windowDays) * 24 * time.Hour
}

func createAlertSender(cfg *config.Config, log *logrus.Logger) alerts.Sender {
	var senders []alerts.Sender
	for _, mode := range strings.Split(cfg.AlertMode, ",") {
		switch strings.TrimSpace(mode) {
		case "log":
			senders = append(senders, alerts.NewLogSender(log))
		case "discord":
			if cfg.DiscordWebhookURL == "" {
				log.Warn("Discord mode specified but no webhook URL configured")
				continue
			}
			senders = append(senders, alerts.NewDiscordSender(cfg.DiscordWebhookURL, cfg.DiscordRPS))
		default:
			log.WithField("mode", mode).Warn("Unknown alert mode, skipping")
		}
	}

	if len(senders) == 0 {
		return alerts.NewLogSender(log)
	}
	if len(senders) == 1 {
		return senders[0]
	}
	return alerts.NewMultiSender(senders...)
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func startHTTPServer(port int, log *logrus.Logger) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		metrics.RecordHealthCheck(true)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy"}`)
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		metrics.RecordHealthCheck(true)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ready"}`)
	})

	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	log.WithField("port", port).Info("Starting HTTP server (health + metrics)")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("HTTP server failed")
	}
}
