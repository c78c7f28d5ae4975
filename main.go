// Package main implements the main entry point for a CHIP-8 static recompiler
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/retroenv/chip8recomp/internal/batch"
	"github.com/retroenv/chip8recomp/internal/cli"
	"github.com/retroenv/chip8recomp/internal/config"
	"github.com/retroenv/chip8recomp/internal/options"
	"github.com/retroenv/chip8recomp/internal/pipeline"
	"github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/retrogolib/log"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	ctx := app.Context()

	opts, genOpts, err := cli.ParseFlags()
	if err != nil {
		logger := config.CreateLogger(opts.Debug, opts.Quiet)
		var usageErr *cli.UsageError
		if errors.As(err, &usageErr) {
			printBanner(logger, opts)
			if usageErr.Error() != "" {
				logger.Error(usageErr.Error())
			}
			usageErr.ShowUsage()
		} else {
			logger.Fatal(err.Error())
		}
		os.Exit(1)
	}

	logger := config.CreateLogger(opts.Debug, opts.Quiet)
	printBanner(logger, opts)

	if err := run(ctx, logger, opts, genOpts); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("Operation cancelled")
			return
		}
		logger.Fatal(err.Error())
	}
}

func run(ctx context.Context, logger *log.Logger, opts options.Program,
	genOpts options.Generator) error {

	if opts.Batch != "" {
		result, err := batch.Process(ctx, logger, opts, genOpts)
		if err != nil {
			return err
		}
		if len(result.Failed) > 0 {
			return fmt.Errorf("%d ROM(s) failed to recompile", len(result.Failed))
		}
		return nil
	}

	p := pipeline.New(logger)
	return p.Execute(ctx, opts, genOpts, os.Stdout)
}

func printBanner(logger *log.Logger, opts options.Program) {
	if opts.Quiet {
		return
	}
	logger.Info("chip8recomp", log.String("version", buildinfo.Version(version, commit, date)))
}
