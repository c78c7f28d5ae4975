package chip8rt

// Func is the signature of every recompiled CHIP-8 function.
type Func func(ctx *Context)

// FuncTable maps CHIP-8 addresses to recompiled functions for computed jump
// dispatch. The table is an explicit object owned by its creator instead of
// package state, so batch runs over multiple programs stay isolated.
type FuncTable struct {
	funcs map[uint16]Func
}

// NewFuncTable creates an empty function table.
func NewFuncTable() *FuncTable {
	return &FuncTable{
		funcs: map[uint16]Func{},
	}
}

// Register adds a function at an address. Called once per statically known
// function before any computed jump executes.
func (t *FuncTable) Register(address uint16, fn Func) {
	if address < MemorySize {
		t.funcs[address] = fn
	}
}

// Lookup resolves an address back to a function.
func (t *FuncTable) Lookup(address uint16) (Func, bool) {
	fn, ok := t.funcs[address]
	return fn, ok
}

// Len returns the number of registered functions.
func (t *FuncTable) Len() int {
	return len(t.funcs)
}

// Reset removes all registered functions.
func (t *FuncTable) Reset() {
	t.funcs = map[uint16]Func{}
}
