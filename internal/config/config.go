// Package config handles application configuration and setup
package config

import (
	"github.com/retroenv/chip8recomp/internal/chip8rt"
	"github.com/retroenv/chip8recomp/internal/options"
	"github.com/retroenv/retrogolib/log"
)

// CreateLogger creates a logger with appropriate settings
func CreateLogger(debug, quiet bool) *log.Logger {
	cfg := log.DefaultConfig()
	if debug {
		cfg.Level = log.DebugLevel
	} else if quiet {
		cfg.Level = log.ErrorLevel
	}
	return log.NewWithConfig(cfg)
}

// CreateGenerator creates generator options based on the program options.
func CreateGenerator(opts options.Program, name string) options.Generator {
	genOpts := options.NewGenerator(name)
	genOpts.OutputDir = opts.OutputDir
	genOpts.EmitComments = !opts.NoComments
	genOpts.SingleFunctionMode = opts.SingleFunction
	genOpts.DebugMode = opts.Debug
	return genOpts
}

// Quirks maps the generator quirk options onto the reference core settings
// used for verification traces.
func Quirks(genOpts options.Generator) chip8rt.Quirks {
	return chip8rt.Quirks{
		ShiftUsesVY:        genOpts.QuirkShiftUsesVY,
		LoadStoreIncrement: genOpts.QuirkLoadStoreIncI,
		JumpUsesVX:         genOpts.QuirkJumpUsesVX,
		VFReset:            genOpts.QuirkVFReset,
	}
}
