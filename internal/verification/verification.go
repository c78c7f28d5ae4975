// Package verification traces a ROM on the reference core and compares the
// executed addresses against the static analysis coverage. Gaps point at
// spots where the recompiled program would trap at runtime: execution
// reaching bytes classified as data, or computed jumps landing outside the
// registered function table.
package verification

import (
	"fmt"
	"slices"

	"github.com/retroenv/chip8recomp/internal/analyzer"
	"github.com/retroenv/chip8recomp/internal/chip8rt"
	"github.com/retroenv/chip8recomp/internal/decoder"
	"github.com/retroenv/retrogolib/log"
)

// DefaultTraceSteps bounds the verification trace.
const DefaultTraceSteps = 100000

// cyclesPerFrame matches the runtime default of 700Hz at a 60Hz timer tick.
const cyclesPerFrame = 700 / 60

// Report summarizes a verification trace.
type Report struct {
	StepsExecuted int

	// Uncovered lists executed addresses that no reachable analyzed block
	// covers.
	Uncovered []uint16

	// UnresolvedJumpTargets lists computed jump targets that have no
	// function entry and would miss the function table at runtime.
	UnresolvedJumpTargets []uint16

	// StopReason is set when the trace ended early, for example on an
	// unknown opcode or a stack fault.
	StopReason string
}

// Clean reports whether the trace stayed inside the analyzed coverage.
func (r *Report) Clean() bool {
	return len(r.Uncovered) == 0 && len(r.UnresolvedJumpTargets) == 0 && r.StopReason == ""
}

// Trace executes up to maxSteps instructions starting at the entry point.
// Key waits are satisfied immediately so traces get past FX0A, timers tick
// at the frame rate so delay loops terminate.
func Trace(result *analyzer.Result, romData []byte, quirks chip8rt.Quirks,
	maxSteps int) (*Report, error) {

	ctx := chip8rt.NewContext()
	if err := ctx.LoadProgram(romData); err != nil {
		return nil, fmt.Errorf("loading program: %w", err)
	}

	report := &Report{}
	uncovered := map[uint16]struct{}{}
	unresolved := map[uint16]struct{}{}

	for step := range maxSteps {
		if ctx.WaitingForKey {
			// deliver a key release and continue past the wait instruction
			ctx.V[ctx.KeyWaitRegister] = 0
			ctx.WaitingForKey = false
			ctx.PC += decoder.OpcodeSize
		}

		block := result.BlockContaining(ctx.PC)
		if block == nil || !block.IsReachable {
			uncovered[ctx.PC] = struct{}{}
		}

		ins, err := ctx.Step(quirks)
		report.StepsExecuted++
		if err != nil {
			report.StopReason = err.Error()
			break
		}

		if ins.Kind == decoder.JpV0 {
			if _, ok := result.Functions[ctx.PC]; !ok {
				unresolved[ctx.PC] = struct{}{}
			}
		}

		if step%cyclesPerFrame == cyclesPerFrame-1 {
			ctx.TickTimers()
		}
	}

	report.Uncovered = sortedAddresses(uncovered)
	report.UnresolvedJumpTargets = sortedAddresses(unresolved)
	return report, nil
}

// Verify runs a bounded trace and logs every coverage gap as a warning.
func Verify(logger *log.Logger, result *analyzer.Result, romData []byte,
	quirks chip8rt.Quirks) (*Report, error) {

	report, err := Trace(result, romData, quirks, DefaultTraceSteps)
	if err != nil {
		return nil, err
	}

	for _, address := range report.Uncovered {
		logger.Warn("Executed address outside analyzed code",
			log.String("address", fmt.Sprintf("0x%03X", address)))
	}
	for _, address := range report.UnresolvedJumpTargets {
		logger.Warn("Computed jump target missing from function table",
			log.String("address", fmt.Sprintf("0x%03X", address)))
	}
	if report.StopReason != "" {
		logger.Warn("Verification trace stopped early",
			log.String("reason", report.StopReason))
	}

	if report.Clean() {
		logger.Info("Verification trace stayed inside analyzed coverage",
			log.Int("steps", report.StepsExecuted))
	}
	return report, nil
}

func sortedAddresses(addresses map[uint16]struct{}) []uint16 {
	sorted := make([]uint16, 0, len(addresses))
	for address := range addresses {
		sorted = append(sorted, address)
	}
	slices.Sort(sorted)
	return sorted
}
