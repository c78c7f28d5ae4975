package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"

	"github.com/retroenv/chip8recomp/internal/options"
)

var plainROM = []byte{
	0x22, 0x06, // 0x200: CALL 0x206
	0x12, 0x02, // 0x202: JP 0x202
	0x00, 0x00, // 0x204: data
	0x00, 0xEE, // 0x206: RET
}

// fallbackROM has a computed jump with no function entry in its window.
var fallbackROM = []byte{
	0xB3, 0x00, // 0x200: JP V0, 0x300
	0x12, 0x02, // 0x202: JP 0x202
}

func writeROM(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestProcess(t *testing.T) {
	romDir := t.TempDir()
	writeROM(t, romDir, "alpha.ch8", plainROM)
	writeROM(t, romDir, "beta.ch8", fallbackROM)

	outputDir := t.TempDir()
	opts := options.Program{
		Batch:     filepath.Join(romDir, "*.ch8"),
		OutputDir: outputDir,
	}
	genOpts := options.NewGenerator("")

	logger := log.NewTestLogger(t)
	result, err := Process(context.Background(), logger, opts, genOpts)
	assert.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Fallbacks)
	assert.Empty(t, result.Failed)

	// each ROM gets its own output directory named after it
	_, err = os.Stat(filepath.Join(outputDir, "alpha", "alpha.c"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(outputDir, "beta", "beta.c"))
	assert.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(outputDir, "beta", "beta.c"))
	assert.NoError(t, err)
	assert.Contains(t, string(data), "void beta_run(Chip8Context* ctx)")
}

func TestProcessNoFallback(t *testing.T) {
	romDir := t.TempDir()
	writeROM(t, romDir, "beta.ch8", fallbackROM)

	opts := options.Program{
		Batch:      filepath.Join(romDir, "*.ch8"),
		OutputDir:  t.TempDir(),
		NoFallback: true,
	}

	logger := log.NewTestLogger(t)
	result, err := Process(context.Background(), logger, opts, options.NewGenerator(""))
	assert.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.Fallbacks)
}

func TestProcessInvalidROM(t *testing.T) {
	romDir := t.TempDir()
	writeROM(t, romDir, "alpha.ch8", plainROM)
	writeROM(t, romDir, "broken.ch8", []byte{0x12}) // too small

	opts := options.Program{
		Batch:     filepath.Join(romDir, "*.ch8"),
		OutputDir: t.TempDir(),
	}

	// NewTestLogger fails the test on error-level records, but this test
	// expects Process to log an error for the broken ROM.
	logger := log.NewNop()
	result, err := Process(context.Background(), logger, opts, options.NewGenerator(""))
	assert.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed[0], "broken.ch8")
}

func TestProcessNoMatches(t *testing.T) {
	opts := options.Program{
		Batch: filepath.Join(t.TempDir(), "*.ch8"),
	}

	logger := log.NewTestLogger(t)
	_, err := Process(context.Background(), logger, opts, options.NewGenerator(""))
	assert.ErrorContains(t, err, "no files match")
}

func TestProcessCancelled(t *testing.T) {
	romDir := t.TempDir()
	writeROM(t, romDir, "alpha.ch8", plainROM)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := options.Program{
		Batch:     filepath.Join(romDir, "*.ch8"),
		OutputDir: t.TempDir(),
	}

	logger := log.NewTestLogger(t)
	result, err := Process(ctx, logger, opts, options.NewGenerator(""))
	assert.Error(t, err)
	assert.Equal(t, 0, result.Processed)
}
