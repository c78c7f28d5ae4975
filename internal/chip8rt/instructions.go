package chip8rt

// Quirks selects between historical CHIP-8 variant behaviors. The zero value
// matches modern interpreter defaults except for the memory increment, which
// original hardware performed.
type Quirks struct {
	ShiftUsesVY        bool // SHR/SHL read Vy instead of Vx
	LoadStoreIncrement bool // FX55/FX65 set I = I + x + 1 afterwards
	JumpUsesVX         bool // BNNN adds Vx instead of V0
	VFReset            bool // OR/AND/XOR reset VF to 0
}

// DefaultQuirks returns the original COSMAC VIP compatible behavior used by
// most of the classic ROM corpus.
func DefaultQuirks() Quirks {
	return Quirks{
		LoadStoreIncrement: true,
		VFReset:            true,
	}
}

// The arithmetic helpers write VF strictly after the arithmetic result so
// that the flag survives when the destination register is VF itself.

// AddWithCarry implements ADD Vx, Vy: VF = 1 on overflow past 255.
func (ctx *Context) AddWithCarry(x, y uint8) {
	sum := uint16(ctx.V[x]) + uint16(ctx.V[y])
	ctx.V[x] = uint8(sum)
	if sum > 255 {
		ctx.V[0xF] = 1
	} else {
		ctx.V[0xF] = 0
	}
}

// SubWithBorrow implements SUB Vx, Vy: VF = 1 when no borrow occurred.
func (ctx *Context) SubWithBorrow(x, y uint8) {
	vx, vy := ctx.V[x], ctx.V[y]
	ctx.V[x] = vx - vy
	if vx >= vy {
		ctx.V[0xF] = 1
	} else {
		ctx.V[0xF] = 0
	}
}

// SubnWithBorrow implements SUBN Vx, Vy: Vx = Vy - Vx, VF = 1 when no borrow.
func (ctx *Context) SubnWithBorrow(x, y uint8) {
	vx, vy := ctx.V[x], ctx.V[y]
	ctx.V[x] = vy - vx
	if vy >= vx {
		ctx.V[0xF] = 1
	} else {
		ctx.V[0xF] = 0
	}
}

// ShiftRight implements SHR: VF receives the shifted-out bit. The source is
// Vy under the original shift quirk, Vx otherwise.
func (ctx *Context) ShiftRight(x, y uint8, useVY bool) {
	src := ctx.V[x]
	if useVY {
		src = ctx.V[y]
	}
	ctx.V[x] = src >> 1
	ctx.V[0xF] = src & 0x01
}

// ShiftLeft implements SHL: VF receives the shifted-out bit.
func (ctx *Context) ShiftLeft(x, y uint8, useVY bool) {
	src := ctx.V[x]
	if useVY {
		src = ctx.V[y]
	}
	ctx.V[x] = src << 1
	ctx.V[0xF] = src >> 7
}

// ClearScreen clears the display buffer.
func (ctx *Context) ClearScreen() {
	ctx.Display = [DisplaySize]byte{}
	ctx.DisplayDirty = true
}

// DrawSprite draws a height-byte sprite from memory at I to the coordinates
// held in Vx and Vy. Pixels are XORed onto the display; VF is set to 1 when
// any set pixel is erased. Start coordinates wrap, sprites clip at the
// display edges.
func (ctx *Context) DrawSprite(x, y, height uint8) {
	posX := ctx.V[x] % DisplayWidth
	posY := ctx.V[y] % DisplayHeight

	ctx.V[0xF] = 0

	for row := uint8(0); row < height; row++ {
		if int(posY)+int(row) >= DisplayHeight {
			break
		}
		spriteByte := ctx.Memory[(ctx.I+uint16(row))&0x0FFF]

		for col := uint8(0); col < 8; col++ {
			if int(posX)+int(col) >= DisplayWidth {
				break
			}
			if spriteByte&(0x80>>col) == 0 {
				continue
			}

			idx := (int(posY)+int(row))*DisplayWidth + int(posX) + int(col)
			if ctx.Display[idx] != 0 {
				ctx.V[0xF] = 1
			}
			ctx.Display[idx] ^= 1
		}
	}

	ctx.DisplayDirty = true
}

// KeyPressed reports whether a keypad key is currently down.
func (ctx *Context) KeyPressed(key uint8) bool {
	if key >= NumKeys {
		return false
	}
	return ctx.Keys[key]
}

// WaitKey blocks execution until a key release is observed. The machine is
// flagged as waiting; the main loop stores the released key into the wait
// register and clears the flag.
func (ctx *Context) WaitKey(register uint8) {
	ctx.WaitingForKey = true
	ctx.KeyWaitRegister = register
}

// StoreBCD writes the decimal digits of Vx to memory at I, I+1 and I+2.
func (ctx *Context) StoreBCD(x uint8) {
	value := ctx.V[x]
	ctx.WriteByte(ctx.I, value/100)
	ctx.WriteByte(ctx.I+1, value/10%10)
	ctx.WriteByte(ctx.I+2, value%10)
}

// StoreRegisters writes V0 through Vx to memory starting at I. With the
// increment flag set, I points past the stored block afterwards.
func (ctx *Context) StoreRegisters(x uint8, incrementI bool) {
	for i := uint8(0); i <= x; i++ {
		ctx.WriteByte(ctx.I+uint16(i), ctx.V[i])
	}
	if incrementI {
		ctx.I += uint16(x) + 1
	}
}

// LoadRegisters reads V0 through Vx from memory starting at I. With the
// increment flag set, I points past the loaded block afterwards.
func (ctx *Context) LoadRegisters(x uint8, incrementI bool) {
	for i := uint8(0); i <= x; i++ {
		ctx.V[i] = ctx.ReadByte(ctx.I + uint16(i))
	}
	if incrementI {
		ctx.I += uint16(x) + 1
	}
}

// RandomByte returns the next byte of the xorshift sequence.
func (ctx *Context) RandomByte() uint8 {
	ctx.rng ^= ctx.rng << 13
	ctx.rng ^= ctx.rng >> 17
	ctx.rng ^= ctx.rng << 5
	return uint8(ctx.rng)
}

// SeedRandom reseeds the generator; zero falls back to the default seed.
func (ctx *Context) SeedRandom(seed uint32) {
	if seed == 0 {
		seed = 0x12345678
	}
	ctx.rng = seed
}
