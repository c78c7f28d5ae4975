package generator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/retroenv/retrogolib/assert"

	"github.com/retroenv/chip8recomp/internal/analyzer"
	"github.com/retroenv/chip8recomp/internal/decoder"
	"github.com/retroenv/chip8recomp/internal/options"
	"github.com/retroenv/chip8recomp/internal/rom"
)

// loopROM is a minimal program with a call, a key wait and a main loop.
var loopROM = []byte{
	0x22, 0x0A, // 0x200: CALL 0x20A
	0xF0, 0x0A, // 0x202: LD V0, K
	0x30, 0x05, // 0x204: SE V0, 0x05
	0x12, 0x02, // 0x206: JP 0x202
	0x12, 0x08, // 0x208: JP 0x208
	0x6A, 0x02, // 0x20A: LD VA, 0x02
	0x00, 0xEE, // 0x20C: RET
}

func generateROM(t *testing.T, data []byte, opts options.Generator) *Output {
	t.Helper()
	instructions := decoder.DecodeProgram(data, rom.ProgramStart)
	result := analyzer.Analyze(instructions, rom.ProgramStart)
	output, err := Generate(result, data, opts)
	assert.NoError(t, err)
	return output
}

func TestGenerateFunctions(t *testing.T) {
	output := generateROM(t, loopROM, options.NewGenerator("demo"))

	assert.Equal(t, "demo.h", output.HeaderFile)
	assert.Equal(t, "demo.c", output.SourceFile)
	assert.Equal(t, "demo_rom.c", output.ROMDataFile)
	assert.Equal(t, "demo_main.c", output.MainFile)
	assert.Equal(t, "CMakeLists.txt", output.CMakeFile)

	src := output.SourceContent
	assert.Contains(t, src, "void demo_func_0x200(Chip8Context* ctx)")
	assert.Contains(t, src, "void demo_func_0x20A(Chip8Context* ctx)")
	assert.Contains(t, src, "void demo_register_functions(void)")

	// the loop back edge yields before transferring
	assert.Contains(t, src, "CHIP8_YIELD(ctx, 0x202)")
	assert.Contains(t, src, "goto label_0x202;")
	assert.Contains(t, src, "CHIP8_RESUME_CHECK(ctx, label_0x202, 0x202)")

	// key wait suspends and records the continuation address
	assert.Contains(t, src, "chip8_wait_key(ctx, 0x0);")
	assert.Contains(t, src, "ctx->resume_pc = 0x204;")

	// calls check for a suspended callee
	assert.Contains(t, src, "demo_func_0x20A(ctx);")
	assert.Contains(t, src, "if (ctx->should_yield)")
}

func TestGenerateHeader(t *testing.T) {
	output := generateROM(t, loopROM, options.NewGenerator("demo"))

	header := output.HeaderContent
	assert.Contains(t, header, "#ifndef DEMO_H")
	assert.Contains(t, header, "#define DEMO_H")
	assert.Contains(t, header, "void demo_func_0x200(Chip8Context* ctx);")
	assert.Contains(t, header, "void demo_register_functions(void);")
	assert.Contains(t, header, "extern const uint8_t demo_rom_data[];")
	assert.Contains(t, header, "extern const size_t demo_rom_size;")
}

func TestGenerateMainAndCMake(t *testing.T) {
	opts := options.NewGenerator("demo")
	opts.RecommendedCPUFreq = 500
	output := generateROM(t, loopROM, opts)

	main := output.MainContent
	assert.Contains(t, main, "Chip8RunConfig config = CHIP8_RUN_CONFIG_DEFAULT;")
	assert.Contains(t, main, "config.cpu_freq_hz = 500;")
	assert.Contains(t, main, "config.rom_data = demo_rom_data;")
	assert.Contains(t, main, "demo_register_functions();")
	assert.Contains(t, main, "return chip8_run(demo_func_0x200, &config);")

	cmake := output.CMakeContent
	assert.Contains(t, cmake, "project(demo C)")
	assert.Contains(t, cmake, "demo_rom.c")
	assert.Contains(t, cmake, "target_link_libraries(demo PRIVATE chip8rt)")
}

func TestGenerateROMData(t *testing.T) {
	output := generateROM(t, loopROM, options.NewGenerator("demo"))

	assert.Contains(t, output.ROMDataContent, "const uint8_t demo_rom_data[] = {")
	assert.Contains(t, output.ROMDataContent, "0x22, 0x0A")
	assert.Contains(t, output.ROMDataContent, "const size_t demo_rom_size = sizeof(demo_rom_data);")

	opts := options.NewGenerator("demo")
	opts.EmbedROMData = false
	output = generateROM(t, loopROM, opts)
	assert.Equal(t, "", output.ROMDataFile)
	assert.Equal(t, "", output.ROMDataContent)
}

func TestGenerateSingleFunction(t *testing.T) {
	opts := options.NewGenerator("demo")
	opts.SingleFunctionMode = true
	output := generateROM(t, loopROM, opts)

	src := output.SourceContent
	assert.Contains(t, src, "void demo_run(Chip8Context* ctx)")
	assert.Contains(t, src, "switch (pc) {")
	assert.Contains(t, src, "case 0x200:")
	assert.Contains(t, src, "case 0x20C:")
	assert.Contains(t, src, "ctx->stack[ctx->SP++] = 0x202;")
	assert.False(t, strings.Contains(src, "demo_func_0x200"))

	assert.Contains(t, output.MainContent, "return chip8_run(demo_run, &config);")
}

func TestGenerateQuirks(t *testing.T) {
	data := []byte{
		0x80, 0x16, // 0x200: SHR V0
		0x80, 0x11, // 0x202: OR V0, V1
		0xF1, 0x55, // 0x204: LD [I], V1
		0x12, 0x06, // 0x206: JP 0x206
	}

	opts := options.NewGenerator("demo")
	src := generateROM(t, data, opts).SourceContent
	assert.Contains(t, src, "CHIP8_SHR_VX(ctx, 0x0);")
	assert.Contains(t, src, "ctx->V[0xF] = 0;")
	assert.Contains(t, src, "chip8_store_registers(ctx, 0x1, true);")

	opts.QuirkShiftUsesVY = true
	opts.QuirkVFReset = false
	opts.QuirkLoadStoreIncI = false
	src = generateROM(t, data, opts).SourceContent
	assert.Contains(t, src, "CHIP8_SHR_VX_VY(ctx, 0x0, 0x1);")
	assert.False(t, strings.Contains(src, "ctx->V[0xF] = 0;"))
	assert.Contains(t, src, "chip8_store_registers(ctx, 0x1, false);")
}

func TestGenerateComments(t *testing.T) {
	opts := options.NewGenerator("demo")
	src := generateROM(t, loopROM, opts).SourceContent
	assert.Contains(t, src, "/* 200: 220A  CALL $20A */")

	opts.EmitComments = false
	src = generateROM(t, loopROM, opts).SourceContent
	assert.False(t, strings.Contains(src, "CALL $20A"))
}

func TestGeneratePanicEdge(t *testing.T) {
	// jump into the middle of nowhere
	data := []byte{
		0x12, 0x04, // 0x200: JP 0x204
		0x00, 0x00, // 0x202: data
	}
	src := generateROM(t, data, options.NewGenerator("demo")).SourceContent
	assert.Contains(t, src, `chip8_panic("No recompiled code at target", 0x204);`)
}

// TestGenerateWaitKeyContinuationIntoFunction covers a key wait whose
// continuation address starts another function: the resume check belongs to
// that function, the suspended caller routes the resume through its tail
// call site.
func TestGenerateWaitKeyContinuationIntoFunction(t *testing.T) {
	data := []byte{
		0xF0, 0x0A, // 0x200: LD V0, K
		0x60, 0x01, // 0x202: LD V0, 0x01
		0x12, 0x04, // 0x204: JP 0x204
		0x22, 0x02, // 0x206: CALL 0x202
	}
	src := generateROM(t, data, options.NewGenerator("demo")).SourceContent

	start := strings.Index(src, "void demo_func_0x200")
	end := strings.Index(src, "void demo_func_0x202")
	assert.True(t, start >= 0 && end > start)
	entryBody := src[start:end]

	// the caller has no yield point of its own, only the routing check
	assert.False(t, strings.Contains(entryBody, "CHIP8_RESUME_CHECK"))
	assert.Contains(t, entryBody, "ctx->resume_pc == 0x202")
	assert.Contains(t, entryBody, "call_0x200:")
	assert.Contains(t, entryBody, "demo_func_0x202(ctx);")

	// the continuation function resumes itself from the top
	assert.Contains(t, src, "CHIP8_RESUME_CHECK(ctx, label_0x202, 0x202);")
	assert.Equal(t, 1, strings.Count(src, "label_0x202:"))
	assert.True(t, strings.Index(src, "label_0x202:") > end)
}

// TestGenerateFlattenedUnreachable verifies that flattened mode emits cases
// for blocks the reachability scan could not prove live. The mode exists for
// unresolved computed jumps, which land exactly on such blocks.
func TestGenerateFlattenedUnreachable(t *testing.T) {
	data := []byte{
		0xB2, 0x06, // 0x200: JP V0, 0x206
		0x12, 0x02, // 0x202: JP 0x202
		0x00, 0x00, // 0x204: data
		0x12, 0x06, // 0x206: JP 0x206
	}
	opts := options.NewGenerator("demo")
	opts.SingleFunctionMode = true
	src := generateROM(t, data, opts).SourceContent

	assert.Contains(t, src, "pc = (uint16_t)(0x206 + ctx->V[0x0]);")
	assert.Contains(t, src, "case 0x204:")
	assert.Contains(t, src, "case 0x206:")
}

// TestGenerateUnknownOpcode checks that unassigned bit patterns lower to a
// marker comment and only panic when debug mode is on.
func TestGenerateUnknownOpcode(t *testing.T) {
	data := []byte{
		0x80, 0x08, // 0x200: unassigned 8XY8 pattern
		0x12, 0x02, // 0x202: JP 0x202
	}

	opts := options.NewGenerator("demo")
	src := generateROM(t, data, opts).SourceContent
	assert.Contains(t, src, "/* unknown opcode 0x8008 */")
	assert.False(t, strings.Contains(src, `chip8_panic("Unknown opcode`))

	opts.DebugMode = true
	src = generateROM(t, data, opts).SourceContent
	assert.Contains(t, src, `chip8_panic("Unknown opcode 0x8008", 0x200);`)
}

// TestGenerateLoopYieldPoints pins the suspension property of function mode:
// every backward goto, which is what closes a loop, is directly preceded by
// a yield at its target address, so no cycle can run a frame budget dry
// without returning control to the runtime.
func TestGenerateLoopYieldPoints(t *testing.T) {
	data := []byte{
		0x60, 0x00, // 0x200: LD V0, 0x00
		0x61, 0x00, // 0x202: LD V1, 0x00
		0x71, 0x01, // 0x204: ADD V1, 0x01
		0x31, 0x05, // 0x206: SE V1, 0x05
		0x12, 0x04, // 0x208: JP 0x204
		0x70, 0x01, // 0x20A: ADD V0, 0x01
		0x30, 0x03, // 0x20C: SE V0, 0x03
		0x12, 0x02, // 0x20E: JP 0x202
		0x12, 0x10, // 0x210: JP 0x210
	}
	src := generateROM(t, data, options.NewGenerator("demo")).SourceContent

	lines := strings.Split(src, "\n")
	labelLine := map[string]int{}
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "label_0x") && strings.HasSuffix(trimmed, ":") {
			labelLine[strings.TrimSuffix(trimmed, ":")] = i
		}
	}

	backEdges := 0
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "goto label_0x") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(trimmed, "goto "), ";")
		defined, ok := labelLine[name]
		assert.True(t, ok, "goto targets undefined label "+name)
		if defined > i {
			continue // forward edge, no yield required
		}
		backEdges++
		address := strings.TrimPrefix(name, "label_")
		assert.Contains(t, lines[i-1], "CHIP8_YIELD(ctx, "+address+")")
	}
	assert.Equal(t, 3, backEdges)
}

func TestGenerateNoEntryCode(t *testing.T) {
	result := analyzer.Analyze(nil, rom.ProgramStart)
	_, err := Generate(result, nil, options.NewGenerator("demo"))
	assert.ErrorContains(t, err, "no code at entry point")
}

func TestWriteOutput(t *testing.T) {
	output := generateROM(t, loopROM, options.NewGenerator("demo"))

	dir := filepath.Join(t.TempDir(), "out")
	assert.NoError(t, WriteOutput(output, dir))

	for _, name := range []string{"demo.h", "demo.c", "demo_rom.c", "demo_main.c", "CMakeLists.txt"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		assert.NoError(t, err)
		assert.NotEmpty(t, data)
	}
}
