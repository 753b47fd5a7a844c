package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dshills/greptile-mcp/internal/config"
	"github.com/dshills/greptile-mcp/internal/mcp"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to a TOML config file")
		transport   = flag.String("t", "", "transport to serve on: stdio or http (overrides config)")
		showVersion = flag.Bool("version", false, "print version information and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("Greptile MCP Server\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *transport != "" {
		cfg.Server.Transport = *transport
		if err := cfg.Validate(); err != nil {
			log.Fatal().Err(err).Msg("invalid transport override")
		}
	}

	// Logs go to stderr; stdout is reserved for the MCP protocol
	zerolog.SetGlobalLevel(cfg.LogLevel())
	log.Info().Str("version", version).Str("transport", cfg.Server.Transport).Msg("greptile mcp server starting")

	server, err := mcp.NewServer(cfg, version)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create mcp server")
	}

	// Probe the API once at startup. Failures are logged, not fatal, so the
	// server still comes up while Greptile is briefly unreachable.
	go func() {
		if server.Healthy(context.Background()) {
			log.Debug().Msg("greptile api reachable")
			return
		}
		log.Warn().Msg("greptile api health check failed; tool calls may error until it recovers")
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		switch cfg.Server.Transport {
		case config.TransportHTTP:
			log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("mcp server ready, listening on http")
			errChan <- server.ServeHTTP(cfg.Server.HTTPAddr)
		default:
			log.Info().Msg("mcp server ready, listening on stdio")
			errChan <- server.Serve(ctx)
		}
	}()

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	case err := <-errChan:
		if err != nil {
			log.Fatal().Err(err).Msg("server error")
		}
	}

	log.Info().Msg("server stopped")
}
