// Package generator emits C source code from analyzed CHIP-8 programs.
// The generated code targets the chip8rt runtime library and cooperatively
// yields back to the runtime main loop after a frame's worth of cycles.
package generator

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/retroenv/chip8recomp/internal/analyzer"
	"github.com/retroenv/chip8recomp/internal/decoder"
	"github.com/retroenv/chip8recomp/internal/options"
)

// Output contains the generated file contents and their names relative to
// the output directory. Empty file names mark files that were not generated.
type Output struct {
	HeaderContent  string
	SourceContent  string
	ROMDataContent string
	MainContent    string
	CMakeContent   string

	HeaderFile  string
	SourceFile  string
	ROMDataFile string
	MainFile    string
	CMakeFile   string
}

// edgeKind classifies where a control transfer out of a block lands.
type edgeKind uint8

const (
	edgeGoto     edgeKind = iota // block in the same function
	edgeTailCall                 // entry block of another function
	edgePanic                    // no analyzed code at the target
)

// transfer is one control flow edge out of a basic block.
type transfer struct {
	kind   edgeKind
	target uint16
	yield  bool // target carries a label, a yield point precedes the transfer
}

type generation struct {
	result  *analyzer.Result
	romData []byte
	opts    options.Generator

	// resumable yield addresses per function entry, ascending
	yieldTargets map[uint16][]uint16
	// direct callees per function entry: calls, tail jumps and computed
	// jump candidates
	callees map[uint16][]uint16
	// transitive resumable addresses per function entry, used to route a
	// pending resume through the call sites back to the suspended function
	transitive map[uint16]map[uint16]struct{}
}

// Generate produces C code for an analyzed program. The ROM bytes are
// embedded for sprite and data accesses when the options request it.
func Generate(result *analyzer.Result, romData []byte, opts options.Generator) (*Output, error) {
	if opts.OutputPrefix == "" {
		opts.OutputPrefix = "rom"
	}
	if _, ok := result.Blocks[result.EntryPoint]; !ok {
		return nil, fmt.Errorf("no code at entry point 0x%03X", result.EntryPoint)
	}

	gen := &generation{
		result:  result,
		romData: romData,
		opts:    opts,
	}
	gen.computeResumeSets()

	output := &Output{
		HeaderFile: opts.OutputPrefix + ".h",
		SourceFile: opts.OutputPrefix + ".c",
		MainFile:   opts.OutputPrefix + "_main.c",
		CMakeFile:  "CMakeLists.txt",
	}

	output.HeaderContent = gen.header()
	output.SourceContent = gen.source()
	output.MainContent = gen.mainFile()
	output.CMakeContent = gen.cmakeFile()

	if opts.EmbedROMData {
		output.ROMDataFile = opts.OutputPrefix + "_rom.c"
		output.ROMDataContent = gen.romDataFile()
	}

	return output, nil
}

// WriteOutput writes all generated files into the output directory,
// creating it if needed.
func WriteOutput(output *Output, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory %s: %w", outputDir, err)
	}

	files := []struct {
		name    string
		content string
	}{
		{output.HeaderFile, output.HeaderContent},
		{output.SourceFile, output.SourceContent},
		{output.ROMDataFile, output.ROMDataContent},
		{output.MainFile, output.MainContent},
		{output.CMakeFile, output.CMakeContent},
	}

	for _, file := range files {
		if file.name == "" {
			continue
		}
		path := filepath.Join(outputDir, file.name)
		if err := os.WriteFile(path, []byte(file.content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}

// source emits the program source file: one C function per recovered
// function, or a single dispatch function in flattened mode, followed by the
// function table registration used for computed jumps.
func (g *generation) source() string {
	var b strings.Builder
	g.fileComment(&b, "Recompiled CHIP-8 program code")

	fmt.Fprintf(&b, "#include \"chip8rt/runtime.h\"\n")
	fmt.Fprintf(&b, "#include \"chip8rt/instructions.h\"\n")
	fmt.Fprintf(&b, "#include \"%s.h\"\n\n", g.opts.OutputPrefix)

	if g.opts.SingleFunctionMode {
		g.emitFlattened(&b)
	} else {
		for _, entry := range g.result.SortedFunctionAddresses() {
			g.emitFunction(&b, g.result.Functions[entry])
			b.WriteString("\n")
		}
	}

	g.emitRegisterFunctions(&b)
	return b.String()
}

// computeResumeSets collects per function the addresses its own yield points
// record and the functions it transfers control into. The transitive closure
// over the call graph tells each function which pending resume addresses it
// has to route through a call site.
func (g *generation) computeResumeSets() {
	g.yieldTargets = map[uint16][]uint16{}
	g.callees = map[uint16][]uint16{}
	g.transitive = map[uint16]map[uint16]struct{}{}

	owns := make(map[uint16]map[uint16]struct{}, len(g.result.Functions))
	for entry := range g.result.Functions {
		owns[entry] = map[uint16]struct{}{}
	}

	for entry, fn := range g.result.Functions {
		own := owns[entry]
		callees := map[uint16]struct{}{}
		inFn := blockSet(fn)

		for _, address := range fn.BlockAddresses {
			block := g.result.Blocks[address]

			for _, idx := range block.InstructionIndices {
				ins := g.result.Instructions[idx]
				switch ins.Kind {
				case decoder.Call:
					if _, ok := g.result.Functions[ins.NNN]; ok {
						callees[ins.NNN] = struct{}{}
					}
				case decoder.LdVxK:
					continuation := ins.Address + 2
					if _, ok := inFn[continuation]; ok {
						own[continuation] = struct{}{}
					} else if calleeOwn, ok := owns[continuation]; ok {
						// continuation starts another function, the resume
						// re-enters it from the top through the call site
						calleeOwn[continuation] = struct{}{}
					}
				case decoder.JpV0:
					for _, candidate := range g.computedCallees(ins.NNN) {
						callees[candidate] = struct{}{}
					}
				}
			}

			for _, t := range g.blockTransfers(inFn, block) {
				switch t.kind {
				case edgeGoto:
					if t.yield {
						own[t.target] = struct{}{}
					}
				case edgeTailCall:
					callees[t.target] = struct{}{}
				case edgePanic:
				}
			}
		}

		g.callees[entry] = sortedAddresses(callees)
	}

	for entry, own := range owns {
		g.yieldTargets[entry] = sortedAddresses(own)

		transitive := make(map[uint16]struct{}, len(own))
		for address := range own {
			transitive[address] = struct{}{}
		}
		g.transitive[entry] = transitive
	}

	// propagate resumable addresses up the call graph until stable
	for changed := true; changed; {
		changed = false
		for entry := range g.result.Functions {
			transitive := g.transitive[entry]
			for _, callee := range g.callees[entry] {
				for address := range g.transitive[callee] {
					if _, ok := transitive[address]; !ok {
						transitive[address] = struct{}{}
						changed = true
					}
				}
			}
		}
	}
}

// blockTransfers returns the control flow edges leaving a block in emission
// order. Skip blocks yield two edges, the taken path first. Returns and
// computed jumps transfer through the runtime instead and have no edges.
func (g *generation) blockTransfers(inFn map[uint16]struct{}, block *analyzer.BasicBlock) []transfer {
	last := g.result.Instructions[block.InstructionIndices[len(block.InstructionIndices)-1]]

	switch {
	case last.Kind == decoder.Jp:
		return []transfer{g.classifyTarget(inFn, last.NNN)}
	case last.Kind == decoder.JpV0, last.IsReturn:
		return nil
	case last.IsBranch:
		return []transfer{
			g.classifyTarget(inFn, last.Address+4),
			g.classifyTarget(inFn, last.Address+2),
		}
	default: // cut short by a block boundary
		return []transfer{g.classifyTarget(inFn, block.EndAddress)}
	}
}

func (g *generation) classifyTarget(inFn map[uint16]struct{}, target uint16) transfer {
	if _, ok := inFn[target]; ok {
		return transfer{
			kind:   edgeGoto,
			target: target,
			yield:  g.result.Labels.Contains(target),
		}
	}
	if _, ok := g.result.Functions[target]; ok {
		return transfer{kind: edgeTailCall, target: target}
	}
	return transfer{kind: edgePanic, target: target}
}

// computedCallees returns the functions whose entry lies inside the
// candidate window of a computed jump base.
func (g *generation) computedCallees(base uint16) []uint16 {
	var callees []uint16
	candidates := analyzer.ComputedJumpTargets(base)
	for _, entry := range g.result.SortedFunctionAddresses() {
		if candidates.Contains(entry) {
			callees = append(callees, entry)
		}
	}
	return callees
}

// funcName returns the exported C symbol for a function entry, namespaced
// with the output prefix so multiple recompiled programs can share a binary.
func (g *generation) funcName(entry uint16) string {
	return analyzer.FunctionName(entry, g.opts.OutputPrefix)
}

func (g *generation) fileComment(b *strings.Builder, title string) {
	fmt.Fprintf(b, "/* %s\n", title)
	fmt.Fprintf(b, " * Generated by chip8recomp from %s\n", g.opts.OutputPrefix)
	fmt.Fprintf(b, " * Do not edit, changes will be overwritten.\n */\n\n")
}

func blockSet(fn *analyzer.Function) map[uint16]struct{} {
	set := make(map[uint16]struct{}, len(fn.BlockAddresses))
	for _, address := range fn.BlockAddresses {
		set[address] = struct{}{}
	}
	return set
}

func sortedAddresses(addresses map[uint16]struct{}) []uint16 {
	sorted := make([]uint16, 0, len(addresses))
	for address := range addresses {
		sorted = append(sorted, address)
	}
	slices.Sort(sorted)
	return sorted
}
