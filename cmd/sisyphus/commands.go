package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/seantiz/sisyphus/internal/api"
	"github.com/seantiz/sisyphus/internal/config"
	"github.com/seantiz/sisyphus/internal/engine"
	"github.com/seantiz/sisyphus/internal/simulator"
	"github.com/seantiz/sisyphus/internal/stats"
	"github.com/seantiz/sisyphus/internal/store"
)

func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "store",
			Usage: "task store driver: sqlite, postgres or mongo",
		},
		&cli.StringFlag{
			Name:  "db-path",
			Usage: "SQLite database file",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn or error",
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "address to bind",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "port to listen on",
			},
		}, storeFlags()...),
		Action: serveAction,
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Print aggregate statistics over the stored tasks",
		Flags:  storeFlags(),
		Action: statsAction,
	}
}

// loadConfig reads the environment and applies command-line overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Load()
	if c.IsSet("store") {
		cfg.Store = c.String("store")
	}
	if c.IsSet("db-path") {
		cfg.DBPath = c.String("db-path")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = config.ParseLogLevel(c.String("log-level"))
	}
	if c.IsSet("host") || c.IsSet("port") {
		addr, err := overrideListenAddr(cfg.ListenAddr, c.String("host"), c.Int("port"))
		if err != nil {
			return cfg, err
		}
		cfg.ListenAddr = addr
	}
	return cfg, cfg.Validate()
}

// overrideListenAddr replaces the host and/or port of addr. Empty host and
// zero port keep the current value.
func overrideListenAddr(addr, host string, port int) (string, error) {
	curHost, curPort, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("parse listen address %q: %w", addr, err)
	}
	if host != "" {
		curHost = host
	}
	if port != 0 {
		curPort = strconv.Itoa(port)
	}
	return net.JoinHostPort(curHost, curPort), nil
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), 1)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("sisyphus: starting",
		"listen_addr", cfg.ListenAddr,
		"store", cfg.Store,
	)

	s, err := openStore(c.Context, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open store: %v", err), 1)
	}
	defer s.Close()

	metrics, err := engine.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to register metrics: %v", err), 1)
	}

	reg := simulator.NewDefaultRegistry()
	eng := engine.NewEngine(s, reg, metrics, logger)
	srv := api.NewServer(cfg.ListenAddr, s, eng, stats.NewAggregator(s), reg, logger)

	if err := srv.Run(); err != nil {
		return cli.Exit(fmt.Sprintf("server error: %v", err), 1)
	}
	return nil
}

func statsAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), 1)
	}

	s, err := openStore(c.Context, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open store: %v", err), 1)
	}
	defer s.Close()

	st, err := stats.NewAggregator(s).Compute(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to compute stats: %v", err), 1)
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		return store.NewSQLiteStore(cfg.DBPath)
	case config.StorePostgres:
		return store.NewPostgresStore(cfg.PostgresDSN)
	case config.StoreMongo:
		return store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
