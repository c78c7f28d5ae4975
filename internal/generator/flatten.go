package generator

import (
	"fmt"
	"strings"

	"github.com/retroenv/chip8recomp/internal/decoder"
)

// emitFlattened writes the whole program as a single dispatch function.
// ROMs whose control flow defeats the function partition heuristic fall
// back to this mode: a switch over instruction addresses driven by an
// explicit virtual program counter, with calls and returns going through
// the CHIP-8 stack. Computed jumps dispatch natively through the virtual
// program counter, unresolved targets hit the switch default.
func (g *generation) emitFlattened(b *strings.Builder) {
	if g.opts.EmitComments {
		fmt.Fprintf(b, "/* flattened program, %d block(s) */\n", len(g.result.Blocks))
	}
	fmt.Fprintf(b, "void %s_run(Chip8Context* ctx) {\n", g.opts.OutputPrefix)
	fmt.Fprintf(b, "    uint16_t pc = 0x%03X;\n", g.result.EntryPoint)
	b.WriteString("    if (ctx->should_yield) {\n")
	b.WriteString("        ctx->should_yield = false;\n")
	b.WriteString("        pc = ctx->resume_pc;\n")
	b.WriteString("    }\n\n")
	b.WriteString("    for (;;) {\n")
	b.WriteString("        if (ctx->cycles_remaining <= 0) {\n")
	b.WriteString("            ctx->resume_pc = pc;\n")
	b.WriteString("            ctx->should_yield = true;\n")
	b.WriteString("            return;\n")
	b.WriteString("        }\n")
	b.WriteString("        switch (pc) {\n")

	// unreachable blocks get cases too: an unresolved computed jump is the
	// main reason this mode runs at all, and its targets may only look dead
	for _, address := range g.result.SortedBlockAddresses() {
		block := g.result.Blocks[address]
		for i, idx := range block.InstructionIndices {
			g.emitFlatInstruction(b, g.result.Instructions[idx], i == 0)
		}
	}

	b.WriteString("        default:\n")
	b.WriteString("            chip8_panic(\"No recompiled code at target\", pc);\n")
	b.WriteString("        }\n")
	b.WriteString("    }\n")
	b.WriteString("}\n")
}

// emitFlatInstruction writes one switch case. Every case sets the virtual
// program counter to the next address and breaks back to the dispatch loop,
// control transfers set it to their target instead.
func (g *generation) emitFlatInstruction(b *strings.Builder, ins decoder.Instruction, blockStart bool) {
	fmt.Fprintf(b, "        case 0x%03X:\n", ins.Address)

	// block starts are the loop back-edge targets, re-check the budget so
	// tight loops cannot starve the frame
	if blockStart {
		fmt.Fprintf(b, "            if (ctx->cycles_remaining <= 0) {\n")
		fmt.Fprintf(b, "                ctx->resume_pc = 0x%03X;\n", ins.Address)
		b.WriteString("                ctx->should_yield = true;\n")
		b.WriteString("                return;\n")
		b.WriteString("            }\n")
	}

	if g.opts.EmitComments {
		fmt.Fprintf(b, "            /* %03X: %04X  %s */\n", ins.Address, ins.Opcode, ins.String())
	}
	b.WriteString("            ctx->cycles_remaining--;\n")

	switch {
	case ins.Kind == decoder.Jp:
		fmt.Fprintf(b, "            pc = 0x%03X;\n            break;\n", ins.NNN)

	case ins.Kind == decoder.JpV0:
		if g.opts.QuirkJumpUsesVX {
			x := uint8(ins.NNN >> 8)
			fmt.Fprintf(b, "            pc = (uint16_t)(0x%03X + ctx->V[0x%X]);\n", ins.NNN, x)
		} else {
			fmt.Fprintf(b, "            pc = (uint16_t)(0x%03X + ctx->V[0x0]);\n", ins.NNN)
		}
		b.WriteString("            break;\n")

	case ins.Kind == decoder.Call:
		b.WriteString("            if (ctx->SP >= CHIP8_STACK_SIZE) {\n")
		fmt.Fprintf(b, "                chip8_panic(\"Stack overflow\", 0x%03X);\n", ins.Address)
		b.WriteString("            }\n")
		fmt.Fprintf(b, "            ctx->stack[ctx->SP++] = 0x%03X;\n", ins.Address+2)
		fmt.Fprintf(b, "            pc = 0x%03X;\n            break;\n", ins.NNN)

	case ins.IsReturn:
		b.WriteString("            if (ctx->SP == 0) {\n")
		fmt.Fprintf(b, "                chip8_panic(\"Stack underflow\", 0x%03X);\n", ins.Address)
		b.WriteString("            }\n")
		b.WriteString("            pc = ctx->stack[--ctx->SP];\n            break;\n")

	case ins.IsBranch:
		fmt.Fprintf(b, "            if (%s) {\n", branchCondition(ins))
		fmt.Fprintf(b, "                pc = 0x%03X;\n                break;\n", ins.Address+4)
		b.WriteString("            }\n")
		fmt.Fprintf(b, "            pc = 0x%03X;\n            break;\n", ins.Address+2)

	case ins.Kind == decoder.LdVxK:
		fmt.Fprintf(b, "            chip8_wait_key(ctx, 0x%X);\n", ins.X)
		b.WriteString("            if (ctx->waiting_for_key) {\n")
		fmt.Fprintf(b, "                ctx->resume_pc = 0x%03X;\n", ins.Address+2)
		b.WriteString("                ctx->should_yield = true;\n")
		b.WriteString("                return;\n")
		b.WriteString("            }\n")
		fmt.Fprintf(b, "            pc = 0x%03X;\n            break;\n", ins.Address+2)

	default:
		var inner strings.Builder
		g.emitInstruction(&inner, ins)
		for _, line := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
			b.WriteString("        " + line + "\n")
		}
		fmt.Fprintf(b, "            pc = 0x%03X;\n            break;\n", ins.Address+2)
	}
}
