package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"

	"courseplan/internal/catalog"
	"courseplan/internal/config"
	"courseplan/internal/events"
	appLog "courseplan/internal/log"
	"courseplan/internal/metrics"
	"courseplan/internal/planner"
	"courseplan/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	// CLI --listen overrides config file and environment.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("courseplan starting",
		"listen", conf.Listen,
		"catalog_url", conf.Catalog.URL,
		"academic_year", conf.AcademicYear,
		"timezone", conf.Timezone,
		"session_idle", conf.SessionIdle,
		"session_sweep", conf.SessionSweep,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	client := catalog.NewClient(catalog.Options{
		URL:        conf.Catalog.URL,
		Virtual:    conf.Catalog.Virtual,
		Year:       conf.AcademicYear,
		PageSize:   conf.Catalog.PageSize,
		Session:    conf.Catalog.Session,
		Timeout:    conf.Catalog.Timeout,
		MaxRetries: conf.Catalog.MaxRetries,
		Metrics:    m,
	})
	// A shared class-list fetch may run every attempt plus its backoff.
	fetchBudget := conf.Catalog.Timeout*time.Duration(conf.Catalog.MaxRetries+1) + 10*time.Second
	cache := catalog.NewCache(m, fetchBudget)
	translator := events.Translator{Year: conf.AcademicYear}
	calendar := planner.CalendarSettings{
		Editable:        conf.Calendar.Editable,
		Selectable:      conf.Calendar.Selectable,
		WeekendsVisible: conf.Calendar.WeekendsVisible,
	}

	sessions := planner.NewSessions(func() *planner.Planner {
		return planner.New(planner.Options{
			Catalog:    client,
			Cache:      cache,
			Translator: translator,
			Calendar:   calendar,
			Metrics:    m,
		})
	}, m)

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(conf.SessionSweep, func() {
		sessions.Sweep(conf.SessionIdle)
	}); err != nil {
		appLog.Error("invalid session sweep schedule", err, "session_sweep", conf.SessionSweep)
		os.Exit(1)
	}
	sweeper.Start()

	server := &http.Server{
		Addr:              conf.Listen,
		Handler:           web.NewServer(conf, sessions, client, registry).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigCh:
		appLog.Info("signal received, shutting down", "signal", sig.String())
	case err := <-errCh:
		appLog.Error("HTTP server failed", err)
		exitCode = 1
	}

	<-sweeper.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLog.Error("HTTP server forced to shutdown", err)
	}

	appLog.Info("courseplan exiting", "sessions", sessions.Len(), "cached_courses", cache.Len())
	if exitCode != 0 {
		cancel()
		os.Exit(exitCode)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/courseplan/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")

	flag.Parse()

	return cfg
}
