// Package batch recompiles every ROM matching a glob pattern, each into its
// own output directory named after the ROM.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/retroenv/chip8recomp/internal/analyzer"
	"github.com/retroenv/chip8recomp/internal/decoder"
	"github.com/retroenv/chip8recomp/internal/options"
	"github.com/retroenv/chip8recomp/internal/pipeline"
	"github.com/retroenv/chip8recomp/internal/rom"
	"github.com/retroenv/retrogolib/log"
)

// Result summarizes a batch run.
type Result struct {
	Processed int
	Fallbacks int
	Failed    []string
}

// Process recompiles all ROMs matching the batch pattern. Unless disabled,
// ROMs that defeat the function partition heuristic are recompiled in
// single function mode, either detected up front or after a failed attempt.
func Process(ctx context.Context, logger *log.Logger, opts options.Program,
	genOpts options.Generator) (*Result, error) {

	matches, err := filepath.Glob(opts.Batch)
	if err != nil {
		return nil, fmt.Errorf("globbing batch pattern: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no files match pattern %s", opts.Batch)
	}
	slices.Sort(matches)

	p := pipeline.New(logger)
	result := &Result{}

	for _, file := range matches {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := processROM(ctx, logger, p, result, file, opts, genOpts); err != nil {
			if errors.Is(err, context.Canceled) {
				return result, err
			}
			logger.Error("Recompiling failed", log.String("file", file), log.Err(err))
			result.Failed = append(result.Failed, file)
		}
	}

	logger.Info("Batch finished",
		log.Int("processed", result.Processed),
		log.Int("fallbacks", result.Fallbacks),
		log.Int("failed", len(result.Failed)))
	return result, nil
}

func processROM(ctx context.Context, logger *log.Logger, p *pipeline.Pipeline,
	result *Result, file string, opts options.Program, genOpts options.Generator) error {

	program, err := rom.Load(file)
	if err != nil {
		return fmt.Errorf("loading ROM: %w", err)
	}

	name := program.Name
	opts.Input = file
	genOpts.OutputPrefix = name
	genOpts.OutputDir = filepath.Join(opts.OutputDir, name)

	fallbackAllowed := !opts.NoFallback && !genOpts.SingleFunctionMode
	if fallbackAllowed {
		instructions := decoder.DecodeProgram(program.Data, rom.ProgramStart)
		analysis := analyzer.Analyze(instructions, rom.ProgramStart)
		if pipeline.NeedsFallback(analysis) {
			logger.Info("Falling back to single function mode", log.String("rom", name))
			genOpts.SingleFunctionMode = true
			fallbackAllowed = false
			result.Fallbacks++
		}
	}

	err = p.ExecuteWithROM(ctx, program, opts, genOpts, os.Stdout)
	if err != nil && fallbackAllowed {
		logger.Warn("Recompilation failed, retrying in single function mode",
			log.String("rom", name), log.Err(err))
		genOpts.SingleFunctionMode = true
		result.Fallbacks++
		err = p.ExecuteWithROM(ctx, program, opts, genOpts, os.Stdout)
	}
	if err != nil {
		return err
	}

	result.Processed++
	return nil
}
