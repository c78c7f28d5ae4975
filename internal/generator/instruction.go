package generator

import (
	"fmt"
	"strings"

	"github.com/retroenv/chip8recomp/internal/decoder"
)

// emitInstruction lowers one straight-line instruction to C. Control flow
// and suspension instructions are handled by the block emitter instead.
func (g *generation) emitInstruction(b *strings.Builder, ins decoder.Instruction) {
	switch ins.Kind {
	case decoder.Sys:
		if g.opts.EmitComments {
			fmt.Fprintf(b, "    /* SYS 0x%03X ignored */\n", ins.NNN)
		}

	case decoder.Cls:
		b.WriteString("    chip8_clear_screen(ctx);\n")

	case decoder.LdVxNN:
		fmt.Fprintf(b, "    ctx->V[0x%X] = 0x%02X;\n", ins.X, ins.NN)

	case decoder.AddVxNN:
		fmt.Fprintf(b, "    ctx->V[0x%X] = (uint8_t)(ctx->V[0x%X] + 0x%02X);\n",
			ins.X, ins.X, ins.NN)

	case decoder.LdVxVy:
		fmt.Fprintf(b, "    ctx->V[0x%X] = ctx->V[0x%X];\n", ins.X, ins.Y)

	case decoder.OrVxVy:
		fmt.Fprintf(b, "    ctx->V[0x%X] |= ctx->V[0x%X];\n", ins.X, ins.Y)
		g.emitVFReset(b)

	case decoder.AndVxVy:
		fmt.Fprintf(b, "    ctx->V[0x%X] &= ctx->V[0x%X];\n", ins.X, ins.Y)
		g.emitVFReset(b)

	case decoder.XorVxVy:
		fmt.Fprintf(b, "    ctx->V[0x%X] ^= ctx->V[0x%X];\n", ins.X, ins.Y)
		g.emitVFReset(b)

	case decoder.AddVxVy:
		fmt.Fprintf(b, "    CHIP8_ADD_VX_VY(ctx, 0x%X, 0x%X);\n", ins.X, ins.Y)

	case decoder.SubVxVy:
		fmt.Fprintf(b, "    CHIP8_SUB_VX_VY(ctx, 0x%X, 0x%X);\n", ins.X, ins.Y)

	case decoder.SubnVxVy:
		fmt.Fprintf(b, "    CHIP8_SUBN_VX_VY(ctx, 0x%X, 0x%X);\n", ins.X, ins.Y)

	case decoder.ShrVx:
		if g.opts.QuirkShiftUsesVY {
			fmt.Fprintf(b, "    CHIP8_SHR_VX_VY(ctx, 0x%X, 0x%X);\n", ins.X, ins.Y)
		} else {
			fmt.Fprintf(b, "    CHIP8_SHR_VX(ctx, 0x%X);\n", ins.X)
		}

	case decoder.ShlVx:
		if g.opts.QuirkShiftUsesVY {
			fmt.Fprintf(b, "    CHIP8_SHL_VX_VY(ctx, 0x%X, 0x%X);\n", ins.X, ins.Y)
		} else {
			fmt.Fprintf(b, "    CHIP8_SHL_VX(ctx, 0x%X);\n", ins.X)
		}

	case decoder.LdINNN:
		fmt.Fprintf(b, "    ctx->I = 0x%03X;\n", ins.NNN)

	case decoder.AddIVx:
		fmt.Fprintf(b, "    ctx->I = (uint16_t)(ctx->I + ctx->V[0x%X]);\n", ins.X)

	case decoder.LdVxDt:
		fmt.Fprintf(b, "    ctx->V[0x%X] = ctx->delay_timer;\n", ins.X)

	case decoder.LdDtVx:
		fmt.Fprintf(b, "    ctx->delay_timer = ctx->V[0x%X];\n", ins.X)

	case decoder.LdStVx:
		fmt.Fprintf(b, "    ctx->sound_timer = ctx->V[0x%X];\n", ins.X)

	case decoder.LdFVx:
		fmt.Fprintf(b, "    ctx->I = CHIP8_FONT_START + (ctx->V[0x%X] & 0x0F) * CHIP8_FONT_CHAR_SIZE;\n",
			ins.X)

	case decoder.LdBVx:
		fmt.Fprintf(b, "    chip8_store_bcd(ctx, 0x%X);\n", ins.X)

	case decoder.LdIVx:
		fmt.Fprintf(b, "    chip8_store_registers(ctx, 0x%X, %t);\n",
			ins.X, g.opts.QuirkLoadStoreIncI)

	case decoder.LdVxI:
		fmt.Fprintf(b, "    chip8_load_registers(ctx, 0x%X, %t);\n",
			ins.X, g.opts.QuirkLoadStoreIncI)

	case decoder.Rnd:
		fmt.Fprintf(b, "    ctx->V[0x%X] = chip8_random_byte() & 0x%02X;\n", ins.X, ins.NN)

	case decoder.Drw:
		fmt.Fprintf(b, "    chip8_draw_sprite(ctx, 0x%X, 0x%X, 0x%X);\n",
			ins.X, ins.Y, ins.N)

	default:
		fmt.Fprintf(b, "    /* unknown opcode 0x%04X */\n", ins.Opcode)
		if g.opts.DebugMode {
			fmt.Fprintf(b, "    chip8_panic(\"Unknown opcode 0x%04X\", 0x%03X);\n",
				ins.Opcode, ins.Address)
		}
	}
}

// emitVFReset clears VF after logic operations on variants with the VF
// reset quirk.
func (g *generation) emitVFReset(b *strings.Builder) {
	if g.opts.QuirkVFReset {
		b.WriteString("    ctx->V[0xF] = 0;\n")
	}
}
