package analyzer

import (
	"fmt"
	"testing"

	"github.com/retroenv/retrogolib/assert"

	"github.com/retroenv/chip8recomp/internal/decoder"
	"github.com/retroenv/chip8recomp/internal/rom"
)

func analyzeProgram(t *testing.T, data []byte) *Result {
	t.Helper()
	instructions := decoder.DecodeProgram(data, rom.ProgramStart)
	return Analyze(instructions, rom.ProgramStart)
}

func TestAnalyzeJumpOverData(t *testing.T) {
	// 0x200: JP 0x204, 0x202: data word, 0x204: LD V0, 0x05, 0x206: JP 0x206
	result := analyzeProgram(t, []byte{
		0x12, 0x04,
		0x00, 0x00,
		0x60, 0x05,
		0x12, 0x06,
	})

	assert.True(t, len(result.Blocks) >= 2)
	assert.True(t, result.Labels.Contains(0x204))
	assert.True(t, result.Labels.Contains(0x206))

	entry := result.Blocks[0x200]
	assert.NotNil(t, entry)
	assert.Equal(t, []uint16{0x204}, entry.Successors)
	assert.True(t, entry.IsReachable)

	body := result.Blocks[0x204]
	assert.NotNil(t, body)
	assert.Equal(t, []uint16{0x206}, body.Successors)

	loop := result.Blocks[0x206]
	assert.NotNil(t, loop)
	assert.Equal(t, []uint16{0x206}, loop.Successors)
}

func TestAnalyzeSkipSuccessors(t *testing.T) {
	// 0x200: SE V0, 0x01, 0x202: LD V1, 0x01, 0x204: LD V1, 0x02, 0x206: JP 0x206
	result := analyzeProgram(t, []byte{
		0x30, 0x01,
		0x61, 0x01,
		0x61, 0x02,
		0x12, 0x06,
	})

	entry := result.Blocks[0x200]
	assert.NotNil(t, entry)
	assert.Equal(t, []uint16{0x202, 0x204}, entry.Successors)
	assert.True(t, result.Labels.Contains(0x202))
	assert.True(t, result.Labels.Contains(0x204))

	// both continuations start their own block
	assert.NotNil(t, result.Blocks[0x202])
	assert.NotNil(t, result.Blocks[0x204])
}

func TestAnalyzeBlockPartition(t *testing.T) {
	// mix of straight-line code, a skip, a call and a loop
	result := analyzeProgram(t, []byte{
		0x60, 0x00, // 0x200: LD V0, 0x00
		0x22, 0x0C, // 0x202: CALL 0x20C
		0x40, 0x10, // 0x204: SNE V0, 0x10
		0x12, 0x00, // 0x206: JP 0x200
		0x12, 0x08, // 0x208: JP 0x208
		0x00, 0x00, // 0x20A: data
		0x70, 0x01, // 0x20C: ADD V0, 0x01
		0x00, 0xEE, // 0x20E: RET
	})

	seen := map[int]int{}
	for _, block := range result.Blocks {
		for _, idx := range block.InstructionIndices {
			seen[idx]++
		}
	}
	for i := range result.Instructions {
		assert.Equal(t, 1, seen[i], fmt.Sprintf("instruction index %d", i))
	}
	assert.Equal(t, len(result.Instructions), len(seen))
}

func TestAnalyzeCallTargets(t *testing.T) {
	result := analyzeProgram(t, []byte{
		0x22, 0x06, // 0x200: CALL 0x206
		0x12, 0x02, // 0x202: JP 0x202
		0x00, 0x00, // 0x204: data
		0x00, 0xEE, // 0x206: RET
	})

	assert.True(t, result.CallTargets.Contains(0x200), "entry point is an implicit call target")
	assert.True(t, result.CallTargets.Contains(0x206))
	assert.Equal(t, 2, len(result.Functions))

	fn := result.Functions[0x206]
	assert.NotNil(t, fn)
	assert.Equal(t, "func_0x206", fn.Name)
	assert.Equal(t, []uint16{0x206}, fn.BlockAddresses)
	assert.True(t, result.Blocks[0x206].IsFunctionEntry)
	assert.True(t, result.Blocks[0x206].IsReachable)
}

func TestAnalyzeWaitKeyContinuation(t *testing.T) {
	result := analyzeProgram(t, []byte{
		0x60, 0x00, // 0x200: LD V0, 0x00
		0xF1, 0x0A, // 0x202: LD V1, K
		0x70, 0x01, // 0x204: ADD V0, 0x01
		0x12, 0x04, // 0x206: JP 0x204
	})

	assert.True(t, result.Labels.Contains(0x204), "key wait continuation needs a symbol")

	entry := result.Blocks[0x200]
	assert.NotNil(t, entry)
	assert.Equal(t, uint16(0x204), entry.EndAddress)
	assert.NotNil(t, result.Blocks[0x204])
}

func TestAnalyzeSharedBlocks(t *testing.T) {
	// two subroutines jumping into the same tail block
	result := analyzeProgram(t, []byte{
		0x22, 0x08, // 0x200: CALL 0x208
		0x22, 0x0C, // 0x202: CALL 0x20C
		0x12, 0x04, // 0x204: JP 0x204
		0x00, 0x00, // 0x206: data
		0x12, 0x10, // 0x208: JP 0x210
		0x00, 0x00, // 0x20A: data
		0x12, 0x10, // 0x20C: JP 0x210
		0x00, 0x00, // 0x20E: data
		0x00, 0xEE, // 0x210: RET
	})

	assert.Equal(t, 1, result.Stats.SharedBlocks)

	first := result.Functions[0x208]
	second := result.Functions[0x20C]
	assert.NotNil(t, first)
	assert.NotNil(t, second)
	assert.Equal(t, []uint16{0x208, 0x210}, first.BlockAddresses)
	assert.Equal(t, []uint16{0x20C, 0x210}, second.BlockAddresses)
}

func TestAnalyzeComputedJump(t *testing.T) {
	result := analyzeProgram(t, []byte{
		0xB2, 0x06, // 0x200: JP V0, 0x206
		0x00, 0x00, // 0x202: data
		0x00, 0x00, // 0x204: data
		0x12, 0x06, // 0x206: JP 0x206
		0x12, 0x08, // 0x208: JP 0x208
	})

	assert.True(t, result.ComputedJumpBases.Contains(0x206))

	targets := ComputedJumpTargets(0x206)
	assert.True(t, targets.Contains(0x206))
	assert.True(t, targets.Contains(0x208))
	assert.True(t, targets.Contains(0x224), "window spans 16 two byte entries")
	assert.False(t, targets.Contains(0x226))
}

func TestAnalyzeUnreachable(t *testing.T) {
	result := analyzeProgram(t, []byte{
		0x12, 0x00, // 0x200: JP 0x200
		0x60, 0x01, // 0x202: LD V0, 0x01, never reached
		0x12, 0x02, // 0x204: JP 0x202
	})

	assert.True(t, result.Blocks[0x200].IsReachable)
	assert.True(t, result.Stats.UnreachableInstructions >= 2)
	assert.True(t, IsLikelyData(result, 0x202))
	assert.False(t, IsLikelyData(result, 0x200))
}

func TestBlockContaining(t *testing.T) {
	result := analyzeProgram(t, []byte{
		0x60, 0x00, // 0x200
		0x61, 0x01, // 0x202
		0x12, 0x00, // 0x204: JP 0x200
	})

	block := result.BlockContaining(0x202)
	assert.NotNil(t, block)
	assert.Equal(t, uint16(0x200), block.StartAddress)
	assert.Nil(t, result.BlockContaining(0x300))
}

func TestNaming(t *testing.T) {
	assert.Equal(t, "func_0x200", FunctionName(0x200, ""))
	assert.Equal(t, "pong_func_0x200", FunctionName(0x200, "pong"))
	assert.Equal(t, "label_0x24A", LabelName(0x24A))
}
