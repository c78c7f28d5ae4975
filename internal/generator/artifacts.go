package generator

import (
	"fmt"
	"strings"
)

// header emits the C header declaring the recompiled functions, the
// function table initializer and the embedded ROM image.
func (g *generation) header() string {
	var b strings.Builder
	g.fileComment(&b, "Recompiled CHIP-8 program interface")

	guard := strings.ToUpper(g.opts.OutputPrefix) + "_H"
	fmt.Fprintf(&b, "#ifndef %s\n#define %s\n\n", guard, guard)
	b.WriteString("#include <stddef.h>\n\n")
	b.WriteString("#include \"chip8rt/runtime.h\"\n\n")
	b.WriteString("#ifdef __cplusplus\nextern \"C\" {\n#endif\n\n")

	if g.opts.SingleFunctionMode {
		fmt.Fprintf(&b, "void %s_run(Chip8Context* ctx);\n", g.opts.OutputPrefix)
	} else {
		for _, entry := range g.result.SortedFunctionAddresses() {
			fmt.Fprintf(&b, "void %s(Chip8Context* ctx);\n", g.funcName(entry))
		}
	}

	fmt.Fprintf(&b, "\nvoid %s_register_functions(void);\n", g.opts.OutputPrefix)

	if g.opts.EmbedROMData {
		fmt.Fprintf(&b, "\nextern const uint8_t %s_rom_data[];\n", g.opts.OutputPrefix)
		fmt.Fprintf(&b, "extern const size_t %s_rom_size;\n", g.opts.OutputPrefix)
	}

	b.WriteString("\n#ifdef __cplusplus\n}\n#endif\n\n")
	fmt.Fprintf(&b, "#endif /* %s */\n", guard)
	return b.String()
}

// romDataFile embeds the original ROM image. Sprite and data reads in the
// recompiled code go through CHIP-8 memory, which the runtime initializes
// from this image.
func (g *generation) romDataFile() string {
	var b strings.Builder
	g.fileComment(&b, "Embedded CHIP-8 ROM image")

	fmt.Fprintf(&b, "#include \"%s.h\"\n\n", g.opts.OutputPrefix)
	fmt.Fprintf(&b, "const uint8_t %s_rom_data[] = {", g.opts.OutputPrefix)

	for i, value := range g.romData {
		if i%12 == 0 {
			b.WriteString("\n   ")
		}
		fmt.Fprintf(&b, " 0x%02X,", value)
	}

	b.WriteString("\n};\n\n")
	fmt.Fprintf(&b, "const size_t %s_rom_size = sizeof(%s_rom_data);\n",
		g.opts.OutputPrefix, g.opts.OutputPrefix)
	return b.String()
}

// mainFile emits the program entry point that configures and starts the
// runtime main loop.
func (g *generation) mainFile() string {
	var b strings.Builder
	g.fileComment(&b, "Recompiled CHIP-8 program entry point")

	b.WriteString("#include \"chip8rt/platform.h\"\n")
	b.WriteString("#include \"chip8rt/runtime.h\"\n")
	fmt.Fprintf(&b, "#include \"%s.h\"\n\n", g.opts.OutputPrefix)

	b.WriteString("int main(void) {\n")
	b.WriteString("    Chip8RunConfig config = CHIP8_RUN_CONFIG_DEFAULT;\n")
	fmt.Fprintf(&b, "    config.title = \"%s\";\n", g.opts.OutputPrefix)
	if g.opts.RecommendedCPUFreq > 0 {
		fmt.Fprintf(&b, "    config.cpu_freq_hz = %d;\n", g.opts.RecommendedCPUFreq)
	}
	if g.opts.DebugMode {
		b.WriteString("    config.debug = true;\n")
	}
	if g.opts.EmbedROMData {
		fmt.Fprintf(&b, "    config.rom_data = %s_rom_data;\n", g.opts.OutputPrefix)
		fmt.Fprintf(&b, "    config.rom_size = %s_rom_size;\n", g.opts.OutputPrefix)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "    %s_register_functions();\n", g.opts.OutputPrefix)
	fmt.Fprintf(&b, "    return chip8_run(%s, &config);\n", g.entrySymbol())
	b.WriteString("}\n")
	return b.String()
}

func (g *generation) entrySymbol() string {
	if g.opts.SingleFunctionMode {
		return g.opts.OutputPrefix + "_run"
	}
	return g.funcName(g.result.EntryPoint)
}

// cmakeFile emits a build file for the generated sources. The chip8rt
// runtime location can be overridden with -DCHIP8RT_DIR.
func (g *generation) cmakeFile() string {
	var b strings.Builder
	prefix := g.opts.OutputPrefix

	b.WriteString("cmake_minimum_required(VERSION 3.16)\n")
	fmt.Fprintf(&b, "project(%s C)\n\n", prefix)
	b.WriteString("set(CMAKE_C_STANDARD 11)\n")
	b.WriteString("set(CMAKE_C_STANDARD_REQUIRED ON)\n\n")
	b.WriteString("if(NOT DEFINED CHIP8RT_DIR)\n")
	b.WriteString("    set(CHIP8RT_DIR \"${CMAKE_CURRENT_SOURCE_DIR}/../chip8rt\")\n")
	b.WriteString("endif()\n")
	b.WriteString("add_subdirectory(${CHIP8RT_DIR} chip8rt)\n\n")
	fmt.Fprintf(&b, "add_executable(%s\n", prefix)
	fmt.Fprintf(&b, "    %s.c\n", prefix)
	if g.opts.EmbedROMData {
		fmt.Fprintf(&b, "    %s_rom.c\n", prefix)
	}
	fmt.Fprintf(&b, "    %s_main.c\n", prefix)
	b.WriteString(")\n")
	fmt.Fprintf(&b, "target_link_libraries(%s PRIVATE chip8rt)\n", prefix)
	return b.String()
}
