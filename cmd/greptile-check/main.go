package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/greptile-mcp/internal/config"
	"github.com/dshills/greptile-mcp/internal/greptile"
	"github.com/dshills/greptile-mcp/pkg/types"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a TOML config file")
		repoFlag   = flag.String("repo", "", "repository to inspect as owner/name (optional)")
		remote     = flag.String("remote", types.RemoteGitHub, "source control remote")
		branch     = flag.String("branch", "main", "branch to inspect")
	)
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	fmt.Println("Checking Greptile API connectivity...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(err)
	}

	clientCfg := cfg.ClientConfig()
	clientCfg.UserAgent = "greptile-check"
	client, err := greptile.New(clientCfg)
	if err != nil {
		fail(err)
	}

	fmt.Printf("\nConfiguration:\n")
	fmt.Printf("  Base URL: %s\n", cfg.API.BaseURL)
	fmt.Printf("  Timeout: %v\n", cfg.API.Timeout)
	fmt.Printf("  Retry Attempts: %d\n", cfg.Retry.MaxAttempts)

	ctx := context.Background()

	start := time.Now()
	healthy := client.HealthCheck(ctx)
	fmt.Printf("\nHealth Check:\n")
	fmt.Printf("  Reachable: %v\n", healthy)
	fmt.Printf("  Round Trip: %v\n", time.Since(start).Round(time.Millisecond))

	if !healthy {
		fmt.Println("\n✗ FAILURE: Greptile API is not reachable!")
		os.Exit(1)
	}

	if *repoFlag != "" {
		repo := types.Repository{Remote: *remote, Repository: *repoFlag, Branch: *branch}
		if err := repo.Validate(); err != nil {
			fail(err)
		}

		fmt.Printf("\nRepository %s:\n", repo.ID())
		info, err := client.RepositoryInfo(ctx, repo)
		var apiErr *greptile.APIError
		switch {
		case err == nil:
			for _, key := range []string{"status", "filesProcessed", "numFiles", "sha"} {
				if v, ok := info[key]; ok {
					fmt.Printf("  %s: %v\n", key, v)
				}
			}
		case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
			fmt.Println("  Status: not indexed")
		default:
			fail(err)
		}
	}

	fmt.Println("\n✓ SUCCESS: Greptile API is reachable and credentials look valid!")
}

func fail(err error) {
	fmt.Printf("\n✗ FAILURE: %v\n", err)
	os.Exit(1)
}
