// Package cli handles command line interface logic
package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/retroenv/chip8recomp/internal/config"
	"github.com/retroenv/chip8recomp/internal/options"
	"github.com/retroenv/chip8recomp/internal/rom"
)

// ParseFlags parses command line flags and returns program and generator options
func ParseFlags() (options.Program, options.Generator, error) {
	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	var opts options.Program
	readOptionFlags(flags, &opts)

	err := flags.Parse(os.Args[1:])
	args := flags.Args()
	if err != nil || (len(args) == 0 && opts.Batch == "") {
		return opts, options.Generator{}, &UsageError{flags: flags}
	}

	if err := validateArgs(args); err != nil {
		return opts, options.Generator{}, err
	}

	if opts.Batch == "" {
		opts.Input = args[0]
	}
	if opts.Name == "" && opts.Input != "" {
		opts.Name = rom.ExtractName(opts.Input)
	}

	if err := validateOptionCombinations(opts); err != nil {
		return opts, options.Generator{}, err
	}

	genOptions := config.CreateGenerator(opts, opts.Name)
	return opts, genOptions, nil
}

// UsageError represents an error that should show usage information
type UsageError struct {
	flags *flag.FlagSet
	msg   string
}

func (e *UsageError) Error() string {
	return e.msg
}

func (e *UsageError) ShowUsage() {
	fmt.Printf("usage: chip8recomp [options] <ROM file to recompile>\n\n")
	e.flags.PrintDefaults()
	fmt.Println()
}

// validateArgs checks if arguments are in correct order
func validateArgs(args []string) error {
	for i, arg := range args {
		if i > 0 && arg[0] == '-' {
			return &UsageError{
				msg: fmt.Sprintf("Potential argument %s found after ROM file, please pass the ROM file as last argument", arg),
			}
		}
	}
	return nil
}

// validateOptionCombinations rejects flag combinations that contradict
// each other
func validateOptionCombinations(opts options.Program) error {
	if opts.Batch != "" && opts.DisasmOnly {
		return &UsageError{msg: "-disasm can not be combined with -batch"}
	}
	if opts.NoFallback && opts.Batch == "" {
		return &UsageError{msg: "-no-fallback is only valid in -batch mode"}
	}
	if opts.Debug && opts.Quiet {
		return &UsageError{msg: "-debug can not be combined with -q"}
	}
	return nil
}

func readOptionFlags(flags *flag.FlagSet, opts *options.Program) {
	flags.StringVar(&opts.OutputDir, "o", ".", "output directory for the generated files")
	flags.StringVar(&opts.Name, "n", "", "name prefix for generated files and identifiers, derived from the ROM filename if not given")
	flags.StringVar(&opts.Batch, "batch", "", "process a batch of the given path and file mask into per ROM output directories, for example *.ch8")
	flags.BoolVar(&opts.DisasmOnly, "disasm", false, "print the disassembly listing instead of generating code")
	flags.BoolVar(&opts.Verify, "verify", false, "trace the ROM on the reference core and warn about analysis coverage gaps")
	flags.BoolVar(&opts.NoComments, "no-comments", false, "do not output disassembly comments in the generated code")
	flags.BoolVar(&opts.SingleFunction, "single-function", false, "flatten all code into one dispatch function")
	flags.BoolVar(&opts.NoFallback, "no-fallback", false, "disable the single function fallback in batch mode")
	flags.BoolVar(&opts.Debug, "debug", false, "enable debugging options for extended logging")
	flags.BoolVar(&opts.Quiet, "q", false, "perform operations quietly")
}
