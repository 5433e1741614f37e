// Command sweep runs one housekeeping job and prints its report as JSON.
//
//	sweep [-timeout 30m] expire|purge|all
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-membership-api/internal/app"
	"github.com/go-membership-api/internal/application/sweep"
	"github.com/go-membership-api/internal/config"
	"github.com/go-membership-api/internal/obs"
	"github.com/joho/godotenv"
)

func main() {
	timeout := flag.Duration("timeout", 30*time.Minute, "abort the run after this long")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-timeout d] expire|purge|all\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg := config.Load()
	// Reports go to stdout; logs stay on stderr.
	logger := obs.NewLogger(os.Stderr, cfg.AppEnv, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	jobs := []string{flag.Arg(0)}
	if flag.Arg(0) == "all" {
		jobs = []string{sweep.JobExpire, sweep.JobPurge}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	failed := false
	for _, job := range jobs {
		report, err := a.Jobs.Run(ctx, job)
		if err != nil {
			// One failing job does not stop the next.
			logger.Error("sweep failed", "job", job, "err", err)
			failed = true
			continue
		}
		if err := enc.Encode(report); err != nil {
			logger.Error("write report", "err", err)
		}
	}
	if failed {
		a.Close()
		os.Exit(1)
	}
}
