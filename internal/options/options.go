// Package options contains the program options.
package options

// Program options of the recompiler.
type Program struct {
	Input     string // input ROM file
	OutputDir string // directory for generated files
	Name      string // output name prefix, derived from the ROM filename if empty
	Batch     string // glob pattern for batch recompilation

	DisasmOnly bool // print the disassembly listing instead of generating code
	Verify     bool // trace the ROM on the reference core and compare coverage
	NoFallback bool // disable the single-function retry in batch mode
	Debug      bool
	Quiet      bool

	NoComments     bool
	SingleFunction bool
}

// Generator defines options to control code generation.
type Generator struct {
	OutputPrefix string // prefix for output files and identifiers
	OutputDir    string

	EmitComments       bool // include disassembly comments
	SingleFunctionMode bool // flatten all code into one dispatch function
	EmbedROMData       bool // embed the ROM image for sprite data access
	DebugMode          bool // enable the runtime debug overlay in the generated main

	// Quirk modes for CHIP-8 variants.
	QuirkShiftUsesVY   bool // SHR/SHL read VY as source
	QuirkLoadStoreIncI bool // FX55/FX65 increment I
	QuirkJumpUsesVX    bool // BNNN offsets with VX instead of V0
	QuirkVFReset       bool // OR/AND/XOR reset VF

	RecommendedCPUFreq int // CPU frequency hint for the generated main, 0 uses the runtime default
}

// NewGenerator returns a new options instance with default options.
func NewGenerator(prefix string) Generator {
	return Generator{
		OutputPrefix: prefix,
		OutputDir:    ".",

		EmitComments: true,
		EmbedROMData: true,

		QuirkLoadStoreIncI: true,
		QuirkVFReset:       true,
	}
}
