package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/ao3-wrapped/config"
	"github.com/aluiziolira/ao3-wrapped/models"
	"github.com/aluiziolira/ao3-wrapped/pipeline"
	"github.com/aluiziolira/ao3-wrapped/scraper"
	"github.com/aluiziolira/ao3-wrapped/server"
	"github.com/aluiziolira/ao3-wrapped/session"
)

func main() {
	cfg, once, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if once {
		err = runOnce(ctx, cfg, s)
	} else {
		err = serve(ctx, cfg, s)
	}
	if err != nil {
		slog.Error("exiting", slog.Any("error", err))
		os.Exit(1)
	}
}

func loadConfig(args []string) (*config.Config, bool, error) {
	cfg := config.DefaultConfig()

	if value, ok := config.EnvString("AO3_BASE_URL"); ok {
		cfg.BaseURL = value
	}
	if value, ok, err := config.EnvInt("AO3_MAX_PAGES"); err != nil {
		return nil, false, err
	} else if ok {
		cfg.MaxPages = value
	}
	if value, ok, err := config.EnvDuration("AO3_TIMEOUT"); err != nil {
		return nil, false, err
	} else if ok {
		cfg.Timeout = value
	}
	if value, ok, err := config.EnvDuration("AO3_LOGIN_WAIT"); err != nil {
		return nil, false, err
	} else if ok {
		cfg.LoginWait = value
	}
	if value, ok := config.EnvString("PORT"); ok {
		cfg.ListenAddr = ":" + value
	}
	if value, ok, err := config.EnvInt("AO3_HISTORY_SIZE"); err != nil {
		return nil, false, err
	} else if ok {
		cfg.HistorySize = value
	}
	if value, ok := config.EnvString("AO3_OUTPUT"); ok {
		cfg.OutputFile = value
	}
	if value, ok, err := config.EnvBool("AO3_RESPECT_ROBOTS"); err != nil {
		return nil, false, err
	} else if ok {
		cfg.RespectRobotsTxt = value
	}

	fs := flag.NewFlagSet("ao3wrapped", flag.ContinueOnError)
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Archive base URL")
	fs.IntVar(&cfg.MaxPages, "max-pages", cfg.MaxPages, "Hard cap on reading-history pages")
	fs.IntVar(&cfg.FallbackPages, "fallback-pages", cfg.FallbackPages, "Assumed page count for progress when no pagination is shown")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")
	fs.DurationVar(&cfg.LoginWait, "login-wait", cfg.LoginWait, "How long to wait for the logged-in marker")
	fs.DurationVar(&cfg.LoginPollInterval, "login-poll", cfg.LoginPollInterval, "Interval between logged-in probes")
	fs.IntVar(&cfg.TopN, "top", cfg.TopN, "Entries kept per top list")
	fs.BoolVar(&cfg.RespectRobotsTxt, "respect-robots", cfg.RespectRobotsTxt, "Respect robots.txt directives")
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP listen address")
	fs.IntVar(&cfg.HistorySize, "history", cfg.HistorySize, "Finished sessions kept for lookup")
	fs.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "Output file path (with -once)")
	fs.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "Output format: csv, json, or dual (with -once)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")
	once := fs.Bool("once", false, "Scrape AO3_USERNAME/AO3_PASSWORD once and exit")

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	return cfg, *once, nil
}

func serve(ctx context.Context, cfg *config.Config, s *scraper.Scraper) error {
	mgr, err := session.NewManager(ctx, s.Run, cfg.HistorySize, s.Metrics)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.New(mgr, s.Metrics.Registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", slog.String("addr", cfg.ListenAddr), slog.String("base_url", cfg.BaseURL))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		mgr.Wait()
		return nil
	})
	return g.Wait()
}

func runOnce(ctx context.Context, cfg *config.Config, s *scraper.Scraper) error {
	username, ok := config.EnvString("AO3_USERNAME")
	if !ok {
		return fmt.Errorf("AO3_USERNAME must be set with -once")
	}
	password, ok := os.LookupEnv("AO3_PASSWORD")
	if !ok || password == "" {
		return fmt.Errorf("AO3_PASSWORD must be set with -once")
	}

	writer, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("create writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	reporter := scraper.ReporterFunc(func(percent int) {
		slog.Info("progress", slog.Int("percent", percent))
	})

	start := time.Now()
	result, err := s.Run(ctx, models.Credentials{Username: username, Password: password}, reporter)
	if err != nil {
		return err
	}

	if err := writer.Write(result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation: %w", err)
	}

	printSummary(result, time.Since(start), cfg.OutputFile)
	return nil
}

func printSummary(result *models.ScrapeResult, duration time.Duration, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Reading history wrapped")
	fmt.Printf("  Works:         %d\n", result.TotalBooks)
	fmt.Printf("  Words:         %d\n", result.TotalWords)
	fmt.Printf("  Pages:         %d\n", result.PagesScraped)
	printTop("Top works", result.TopBooks)
	printTop("Top ships", result.TopShips)
	printTop("Top fandoms", result.TopFandoms)
	printTop("Top ratings", result.TopRatings)
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}

func printTop(title string, entries []models.TallyEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Printf("  %s:\n", title)
	for i, entry := range entries {
		fmt.Printf("    %d. %s (%d)\n", i+1, entry.Name, entry.Count)
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
