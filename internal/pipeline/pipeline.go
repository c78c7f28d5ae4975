// Package pipeline orchestrates the recompilation workflow stages.
package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/retroenv/chip8recomp/internal/analyzer"
	"github.com/retroenv/chip8recomp/internal/config"
	"github.com/retroenv/chip8recomp/internal/decoder"
	"github.com/retroenv/chip8recomp/internal/generator"
	"github.com/retroenv/chip8recomp/internal/options"
	"github.com/retroenv/chip8recomp/internal/rom"
	"github.com/retroenv/chip8recomp/internal/verification"
	"github.com/retroenv/retrogolib/log"
)

// Pipeline orchestrates the complete recompilation workflow:
// load, decode, analyze, optionally verify, generate, write.
type Pipeline struct {
	logger *log.Logger
}

// New creates a new recompilation pipeline.
func New(logger *log.Logger) *Pipeline {
	return &Pipeline{logger: logger}
}

// Execute runs the pipeline for one ROM file.
func (p *Pipeline) Execute(ctx context.Context, opts options.Program,
	genOpts options.Generator, listing io.Writer) error {

	program, err := rom.Load(opts.Input)
	if err != nil {
		return fmt.Errorf("loading ROM: %w", err)
	}
	return p.ExecuteWithROM(ctx, program, opts, genOpts, listing)
}

// ExecuteWithROM runs the pipeline with a pre-loaded ROM. This is useful
// for testing and programmatic usage where the ROM is already in memory.
func (p *Pipeline) ExecuteWithROM(ctx context.Context, program *rom.ROM,
	opts options.Program, genOpts options.Generator, listing io.Writer) error {

	if program.OddSize() {
		p.logger.Warn("ROM has an odd byte count, trailing byte is treated as data",
			log.Int("size", program.Size()))
	}
	if variant := rom.DetectVariant(program.Data); variant != "CHIP-8" {
		p.logger.Warn("ROM uses opcodes of an unsupported variant",
			log.String("variant", variant))
	}
	p.logger.Debug("ROM loaded",
		log.String("name", program.Name),
		log.Int("size", program.Size()))

	if err := ctx.Err(); err != nil {
		return err
	}

	instructions := decoder.DecodeProgram(program.Data, rom.ProgramStart)
	p.logger.Debug("Program decoded", log.Int("instructions", len(instructions)))

	if opts.DisasmOnly {
		return writeListing(listing, instructions)
	}

	result := analyzer.Analyze(instructions, rom.ProgramStart)
	p.logger.Info("Control flow analyzed",
		log.Int("blocks", result.Stats.TotalBlocks),
		log.Int("functions", result.Stats.TotalFunctions),
		log.Int("unreachableInstructions", result.Stats.UnreachableInstructions))
	if result.Stats.SharedBlocks > 0 {
		p.logger.Debug("Blocks claimed by multiple functions are duplicated",
			log.Int("sharedBlocks", result.Stats.SharedBlocks))
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if opts.Verify {
		report, err := verification.Verify(p.logger, result, program.Data,
			config.Quirks(genOpts))
		if err != nil {
			return fmt.Errorf("verifying coverage: %w", err)
		}
		if !report.Clean() && !genOpts.SingleFunctionMode {
			p.logger.Warn("Coverage gaps found, consider single function mode")
		}
	}

	output, err := generator.Generate(result, program.Data, genOpts)
	if err != nil {
		return fmt.Errorf("generating code: %w", err)
	}

	if err := generator.WriteOutput(output, genOpts.OutputDir); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	p.logger.Info("Recompiled",
		log.String("rom", program.Name),
		log.String("output", genOpts.OutputDir),
		log.String("source", output.SourceFile))
	return nil
}

// NeedsFallback reports whether the analysis hit the limits of the function
// partition heuristic and the ROM should be recompiled in single function
// mode instead: blocks claimed by multiple functions or computed jump bases
// with no function entry inside the candidate window.
func NeedsFallback(result *analyzer.Result) bool {
	if result.Stats.SharedBlocks > 0 {
		return true
	}

	for _, ins := range result.Instructions {
		if ins.Kind != decoder.JpV0 {
			continue
		}
		candidates := analyzer.ComputedJumpTargets(ins.NNN)
		resolved := false
		for entry := range result.Functions {
			if candidates.Contains(entry) {
				resolved = true
				break
			}
		}
		if !resolved {
			return true
		}
	}
	return false
}

func writeListing(w io.Writer, instructions []decoder.Instruction) error {
	for _, ins := range instructions {
		if _, err := fmt.Fprintln(w, ins.Listing()); err != nil {
			return fmt.Errorf("writing listing: %w", err)
		}
	}
	return nil
}
