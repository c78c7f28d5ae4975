// Package analyzer recovers control flow from decoded CHIP-8 instructions.
// It partitions the instruction stream into basic blocks and functions and
// collects the label, call target and computed jump base sets that the
// generator needs.
package analyzer

import (
	"fmt"
	"maps"
	"slices"

	"github.com/retroenv/chip8recomp/internal/decoder"
	"github.com/retroenv/retrogolib/set"
)

// BasicBlock is a maximal straight-line instruction run. Control enters only
// at the first instruction and leaves only at the last.
type BasicBlock struct {
	StartAddress uint16
	EndAddress   uint16 // exclusive

	InstructionIndices []int // indices into Result.Instructions

	Successors   []uint16
	Predecessors []uint16

	// InternalLabels are addresses inside the block that a skip instruction
	// targets. Only the skipped-to address two slots ahead qualifies.
	InternalLabels set.Set[uint16]

	IsFunctionEntry bool
	IsReachable     bool
}

// Function groups the basic blocks reachable from one call target without
// crossing into another function's entry block.
type Function struct {
	Name         string
	EntryAddress uint16

	BlockAddresses []uint16 // ascending

	// IsComputedTarget marks functions whose entry lies inside the candidate
	// window of a computed jump base and may be reached dynamically.
	IsComputedTarget bool
}

// Stats summarizes an analysis run.
type Stats struct {
	TotalInstructions       int
	TotalBlocks             int
	TotalFunctions          int
	UnreachableInstructions int

	// SharedBlocks counts blocks claimed by more than one function. The
	// flood-fill partition is a heuristic and shared straight-line code is
	// duplicated into every claiming function during generation.
	SharedBlocks int
}

// Result is the complete control flow analysis of a program. It is created
// by Analyze and consumed read-only by the generator.
type Result struct {
	Instructions []decoder.Instruction

	Blocks    map[uint16]*BasicBlock // keyed by start address
	Functions map[uint16]*Function   // keyed by entry address

	Labels            set.Set[uint16] // addresses that need a named symbol
	CallTargets       set.Set[uint16]
	ComputedJumpBases set.Set[uint16]

	EntryPoint uint16
	Stats      Stats
}

// SortedBlockAddresses returns all block start addresses in ascending order.
func (r *Result) SortedBlockAddresses() []uint16 {
	return slices.Sorted(maps.Keys(r.Blocks))
}

// SortedFunctionAddresses returns all function entry addresses in ascending order.
func (r *Result) SortedFunctionAddresses() []uint16 {
	return slices.Sorted(maps.Keys(r.Functions))
}

// BlockContaining returns the block whose address range covers the address.
func (r *Result) BlockContaining(address uint16) *BasicBlock {
	for _, block := range r.Blocks {
		if address >= block.StartAddress && address < block.EndAddress {
			return block
		}
	}
	return nil
}

// Analyze performs control flow analysis on a decoded instruction sequence.
// It never fails: unresolved control flow degrades to conservative
// over-approximation instead of errors.
func Analyze(instructions []decoder.Instruction, entryPoint uint16) *Result {
	result := &Result{
		Instructions:      instructions,
		Blocks:            map[uint16]*BasicBlock{},
		Functions:         map[uint16]*Function{},
		Labels:            set.New[uint16](),
		CallTargets:       set.New[uint16](),
		ComputedJumpBases: set.New[uint16](),
		EntryPoint:        entryPoint,
	}
	result.Stats.TotalInstructions = len(instructions)

	if len(instructions) == 0 {
		return result
	}

	addrToIndex := make(map[uint16]int, len(instructions))
	for i, ins := range instructions {
		addrToIndex[ins.Address] = i
	}

	callTargets := discoverTargets(result, instructions, entryPoint)
	buildBlocks(result, instructions, addrToIndex, callTargets, entryPoint)
	linkPredecessors(result)
	markReachable(result, callTargets, entryPoint)
	partitionFunctions(result, callTargets)

	result.Stats.TotalBlocks = len(result.Blocks)
	result.Stats.TotalFunctions = len(result.Functions)
	claims := map[uint16]int{}
	for _, fn := range result.Functions {
		for _, address := range fn.BlockAddresses {
			claims[address]++
		}
	}
	for _, count := range claims {
		if count > 1 {
			result.Stats.SharedBlocks++
		}
	}
	for _, block := range result.Blocks {
		if !block.IsReachable {
			result.Stats.UnreachableInstructions += len(block.InstructionIndices)
		}
	}

	return result
}

// discoverTargets walks all instructions once and records every address that
// needs a symbol. The entry point counts as an implicit call target. Skip
// instructions register both continuations: the next instruction and the
// skipped-to instruction two slots ahead.
func discoverTargets(result *Result, instructions []decoder.Instruction,
	entryPoint uint16) []uint16 {

	callTargets := map[uint16]struct{}{entryPoint: {}}
	result.CallTargets.Add(entryPoint)

	for _, ins := range instructions {
		switch {
		case ins.Kind == decoder.Jp:
			result.Labels.Add(ins.NNN)

		case ins.Kind == decoder.Call:
			result.Labels.Add(ins.NNN)
			result.CallTargets.Add(ins.NNN)
			callTargets[ins.NNN] = struct{}{}

		case ins.Kind == decoder.JpV0:
			// resolved later by the candidate window heuristic
			result.ComputedJumpBases.Add(ins.NNN)

		case ins.Kind == decoder.LdVxK:
			// key waits suspend execution, the continuation needs a symbol
			result.Labels.Add(ins.Address + 2)

		case ins.IsBranch:
			result.Labels.Add(ins.Address + 2)
			result.Labels.Add(ins.Address + 4)
		}
	}

	return slices.Sorted(maps.Keys(callTargets))
}

// buildBlocks computes block boundaries and scans forward from each boundary
// until a terminator, return, skip or the next boundary.
func buildBlocks(result *Result, instructions []decoder.Instruction,
	addrToIndex map[uint16]int, callTargets []uint16, entryPoint uint16) {

	boundaries := map[uint16]struct{}{entryPoint: {}}
	for _, ins := range instructions {
		switch {
		case ins.Kind == decoder.Jp, ins.Kind == decoder.Call:
			boundaries[ins.NNN] = struct{}{}
		case ins.Kind == decoder.LdVxK:
			boundaries[ins.Address+2] = struct{}{}
		case ins.IsBranch:
			boundaries[ins.Address+2] = struct{}{}
			boundaries[ins.Address+4] = struct{}{}
		}
		// a new block starts after every block-terminating instruction
		if ins.IsTerminator() {
			if _, ok := addrToIndex[ins.Address+2]; ok {
				boundaries[ins.Address+2] = struct{}{}
			}
		}
	}
	for _, target := range callTargets {
		boundaries[target] = struct{}{}
	}

	for startAddress := range boundaries {
		idx, ok := addrToIndex[startAddress]
		if !ok {
			continue // address outside the program
		}

		block := &BasicBlock{
			StartAddress:    startAddress,
			InternalLabels:  set.New[uint16](),
			IsFunctionEntry: result.CallTargets.Contains(startAddress),
		}

		terminated := false
		for idx < len(instructions) {
			ins := instructions[idx]

			if ins.Address != startAddress {
				if _, boundary := boundaries[ins.Address]; boundary {
					break
				}
			}

			block.InstructionIndices = append(block.InstructionIndices, idx)
			block.EndAddress = ins.Address + 2

			if ins.Kind == decoder.Jp {
				block.Successors = append(block.Successors, ins.NNN)
				terminated = true
				break
			}
			if ins.IsJump || ins.IsReturn {
				// JP V0 targets resolve at runtime, RET has no successors
				terminated = true
				break
			}
			if ins.IsBranch {
				block.Successors = append(block.Successors,
					ins.Address+2, ins.Address+4)
				block.InternalLabels.Add(ins.Address + 4)
				terminated = true
				break
			}

			idx++
		}

		// fall-through successor for blocks cut short by a boundary
		if !terminated {
			if _, ok := addrToIndex[block.EndAddress]; ok {
				block.Successors = append(block.Successors, block.EndAddress)
			}
		}

		result.Blocks[startAddress] = block
	}
}

// linkPredecessors back-fills predecessor edges from the successor lists.
func linkPredecessors(result *Result) {
	for _, address := range result.SortedBlockAddresses() {
		block := result.Blocks[address]
		for _, successor := range block.Successors {
			if target, ok := result.Blocks[successor]; ok {
				target.Predecessors = append(target.Predecessors, address)
			}
		}
	}
}

// markReachable performs a breadth-first traversal seeded from the entry
// point and every call target. Call targets are seeded directly because they
// may only be reached through a computed jump that static analysis cannot
// resolve.
func markReachable(result *Result, callTargets []uint16, entryPoint uint16) {
	worklist := []uint16{entryPoint}
	worklist = append(worklist, callTargets...)

	for len(worklist) > 0 {
		address := worklist[0]
		worklist = worklist[1:]

		block, ok := result.Blocks[address]
		if !ok || block.IsReachable {
			continue
		}
		block.IsReachable = true
		worklist = append(worklist, block.Successors...)
	}
}

// partitionFunctions flood-fills forward from every call target, stopping at
// blocks that are themselves call targets of other functions. A block is
// claimed by the first function whose flood-fill reaches it. This is a
// heuristic, not a proof of non-overlapping control flow.
func partitionFunctions(result *Result, callTargets []uint16) {
	for _, entry := range callTargets {
		if _, ok := result.Blocks[entry]; !ok {
			continue
		}

		fn := &Function{
			Name:         FunctionName(entry, ""),
			EntryAddress: entry,
		}

		visited := map[uint16]struct{}{}
		worklist := []uint16{entry}
		for len(worklist) > 0 {
			address := worklist[0]
			worklist = worklist[1:]

			if _, ok := visited[address]; ok {
				continue
			}
			block, ok := result.Blocks[address]
			if !ok {
				continue
			}
			if address != entry && result.CallTargets.Contains(address) {
				continue // do not cross into another function
			}

			visited[address] = struct{}{}
			fn.BlockAddresses = append(fn.BlockAddresses, address)
			worklist = append(worklist, block.Successors...)
		}

		slices.Sort(fn.BlockAddresses)
		result.Functions[entry] = fn
	}

	markComputedTargets(result)
}

// markComputedTargets flags functions whose entry falls inside the candidate
// window of any computed jump base.
func markComputedTargets(result *Result) {
	bases := computedBases(result)
	for _, fn := range result.Functions {
		for _, base := range bases {
			if ComputedJumpTargets(base).Contains(fn.EntryAddress) {
				fn.IsComputedTarget = true
				break
			}
		}
	}
}

func computedBases(result *Result) []uint16 {
	var bases []uint16
	for _, ins := range result.Instructions {
		if ins.Kind == decoder.JpV0 && result.ComputedJumpBases.Contains(ins.NNN) {
			if !slices.Contains(bases, ins.NNN) {
				bases = append(bases, ins.NNN)
			}
		}
	}
	return bases
}

// computedJumpWindow is the number of candidate targets assumed for a
// computed jump base, at a 2-byte stride. A conservative heuristic in place
// of value-range analysis of the base register.
const computedJumpWindow = 16

// ComputedJumpTargets returns the candidate target set for a computed jump
// base address, assuming a jump table with 2-byte entries.
func ComputedJumpTargets(base uint16) set.Set[uint16] {
	targets := set.New[uint16]()
	for i := range computedJumpWindow {
		targets.Add(base + uint16(i*2))
	}
	return targets
}

// IsLikelyData reports whether no reachable block covers the address.
func IsLikelyData(result *Result, address uint16) bool {
	for _, block := range result.Blocks {
		if !block.IsReachable {
			continue
		}
		if address >= block.StartAddress && address < block.EndAddress {
			return false
		}
	}
	return true
}

// FunctionName generates a deterministic function symbol for an address.
func FunctionName(address uint16, prefix string) string {
	if prefix != "" {
		return fmt.Sprintf("%s_func_0x%03X", prefix, address)
	}
	return fmt.Sprintf("func_0x%03X", address)
}

// LabelName generates a deterministic label symbol for an address.
func LabelName(address uint16) string {
	return fmt.Sprintf("label_0x%03X", address)
}
