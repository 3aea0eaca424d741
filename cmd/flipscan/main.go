package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bazaarlab/flipscan/internal/bazaar"
	"github.com/bazaarlab/flipscan/internal/config"
	"github.com/bazaarlab/flipscan/internal/engine"
	httpserver "github.com/bazaarlab/flipscan/internal/interfaces/http"
	"github.com/bazaarlab/flipscan/internal/publish"
)

const (
	appName = "flipscan"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Bazaar flip opportunity scanner and read-only API",
		Version: version,
		Long: `flipscan tracks the bazaar order books and hourly trade history,
keeps a bounded in-memory cache of per-item analytics fresh, and ranks
items by expected flip profitability and competitiveness.`,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the refresh loop and the read-only HTTP API",
		RunE:  runServe,
	}
	addCommonFlags(serveCmd.Flags())
	serveCmd.Flags().String("listen", "", "Listen address override (host:port)")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one refresh cycle and print the top flips",
		RunE:  runScan,
	}
	addCommonFlags(scanCmd.Flags())
	scanCmd.Flags().Int("top", 20, "Number of top flips to print")

	rootCmd.AddCommand(serveCmd, scanCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func addCommonFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to YAML config file")
	fs.String("log-level", "", "Log level override (trace|debug|info|warn|error)")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if override, _ := cmd.Flags().GetString("log-level"); override != "" {
		cfg.Log.Level = override
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	return cfg, nil
}

func buildManager(cfg *config.Config) *engine.Manager {
	client := bazaar.NewClient(cfg.ClientConfig())
	manager := engine.NewManager(client, cfg.EngineConfig(), nil)

	if cfg.Redis.Enabled {
		manager.SetPublisher(publish.NewRedisPublisher(cfg.RedisPublisherConfig()))
		log.Info().Str("addr", cfg.Redis.Addr).Str("key", cfg.Redis.Key).
			Msg("Redis result publisher enabled")
	}

	return manager
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	serverCfg := cfg.ServerConfig()
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		host, port, err := splitListenAddr(listen)
		if err != nil {
			return err
		}
		serverCfg.Host, serverCfg.Port = host, port
	}

	manager := buildManager(cfg)
	defer manager.Close()

	server := httpserver.NewServer(manager, serverCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	refreshDone := make(chan struct{})
	go func() {
		defer close(refreshDone)
		manager.Run(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	log.Info().Str("version", version).Str("addr", server.Address()).Msg("flipscan started")

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			stop()
			<-refreshDone
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}

	<-refreshDone
	return nil
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	top, _ := cmd.Flags().GetInt("top")

	manager := buildManager(cfg)
	defer manager.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh cycle: %w", err)
	}

	recs, err := manager.TopFlips(ctx, top)
	if err != nil {
		return err
	}

	flips := make([]engine.Summary, len(recs))
	for i, rec := range recs {
		flips[i] = engine.Summarize(rec)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(flips)
}

func splitListenAddr(listen string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listen address %q (want host:port)", listen)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listen port %q", portStr)
	}
	return host, port, nil
}
