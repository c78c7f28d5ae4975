package generator

import (
	"fmt"
	"strings"

	"github.com/retroenv/chip8recomp/internal/analyzer"
	"github.com/retroenv/chip8recomp/internal/decoder"
)

// resumeRoute routes pending resume addresses of suspended callees through a
// call site: re-executing the call re-enters the callee, whose own resume
// dispatch then continues at the recorded label.
type resumeRoute struct {
	label     string
	addresses []uint16
}

// emitFunction writes one C function: the resume dispatch at the top,
// followed by all claimed basic blocks, entry block first.
func (g *generation) emitFunction(b *strings.Builder, fn *analyzer.Function) {
	inFn := blockSet(fn)
	order := g.emissionOrder(fn)
	own := g.yieldTargets[fn.EntryAddress]
	routes := g.resumeRoutes(fn, order, own)
	labels := g.blockLabels(fn, inFn, order, own)

	routed := make(map[string][]uint16, len(routes))
	for _, route := range routes {
		routed[route.label] = route.addresses
	}

	if g.opts.EmitComments {
		fmt.Fprintf(b, "/* function at 0x%03X", fn.EntryAddress)
		if fn.EntryAddress == g.result.EntryPoint {
			b.WriteString(", entry point")
		}
		if fn.IsComputedTarget {
			b.WriteString(", computed jump target")
		}
		fmt.Fprintf(b, ", %d block(s) */\n", len(fn.BlockAddresses))
	}
	fmt.Fprintf(b, "void %s(Chip8Context* ctx) {\n", g.funcName(fn.EntryAddress))

	for _, address := range own {
		fmt.Fprintf(b, "    CHIP8_RESUME_CHECK(ctx, %s, 0x%03X);\n",
			analyzer.LabelName(address), address)
	}
	for _, route := range routes {
		conditions := make([]string, 0, len(route.addresses))
		for _, address := range route.addresses {
			conditions = append(conditions, fmt.Sprintf("ctx->resume_pc == 0x%03X", address))
		}
		fmt.Fprintf(b, "    if (ctx->should_yield && (%s)) {\n        goto %s;\n    }\n",
			strings.Join(conditions, " || "), route.label)
	}

	for i, address := range order {
		block := g.result.Blocks[address]
		if _, ok := labels[address]; ok {
			fmt.Fprintf(b, "%s:\n", analyzer.LabelName(address))
		}

		var next uint16
		hasNext := i+1 < len(order)
		if hasNext {
			next = order[i+1]
		}
		g.emitBlock(b, inFn, block, next, hasNext, routed)
	}

	b.WriteString("}\n")
}

// emissionOrder places the entry block first, all other claimed blocks
// follow in ascending address order.
func (g *generation) emissionOrder(fn *analyzer.Function) []uint16 {
	order := make([]uint16, 0, len(fn.BlockAddresses))
	order = append(order, fn.EntryAddress)
	for _, address := range fn.BlockAddresses {
		if address != fn.EntryAddress {
			order = append(order, address)
		}
	}
	return order
}

// blockLabels determines which blocks need a C label: all resumable yield
// targets plus fall-through targets that cannot be emitted adjacently.
func (g *generation) blockLabels(fn *analyzer.Function, inFn map[uint16]struct{},
	order []uint16, own []uint16) map[uint16]struct{} {

	labels := make(map[uint16]struct{}, len(own))
	for _, address := range own {
		labels[address] = struct{}{}
	}

	for i, address := range order {
		block := g.result.Blocks[address]
		last := g.result.Instructions[block.InstructionIndices[len(block.InstructionIndices)-1]]
		if last.IsTerminator() || last.IsBranch {
			continue
		}
		t := g.classifyTarget(inFn, block.EndAddress)
		if t.kind != edgeGoto {
			continue
		}
		if i+1 >= len(order) || order[i+1] != t.target {
			labels[t.target] = struct{}{}
		}
	}
	return labels
}

// resumeRoutes walks the function in emission order and assigns every
// pending resume address of its callees to the first call site that can
// reach the suspended function. First match wins when the same callee is
// invoked from multiple sites.
func (g *generation) resumeRoutes(fn *analyzer.Function, order []uint16, own []uint16) []resumeRoute {
	inFn := blockSet(fn)
	routed := make(map[uint16]struct{}, len(own))
	for _, address := range own {
		routed[address] = struct{}{}
	}

	var routes []resumeRoute
	addRoute := func(label string, callees []uint16) {
		pending := map[uint16]struct{}{}
		for _, callee := range callees {
			for address := range g.transitive[callee] {
				if _, ok := routed[address]; !ok {
					pending[address] = struct{}{}
				}
			}
		}
		if len(pending) == 0 {
			return
		}
		for address := range pending {
			routed[address] = struct{}{}
		}
		routes = append(routes, resumeRoute{label: label, addresses: sortedAddresses(pending)})
	}

	for _, address := range order {
		block := g.result.Blocks[address]
		for i, idx := range block.InstructionIndices {
			ins := g.result.Instructions[idx]
			last := i == len(block.InstructionIndices)-1

			switch {
			case ins.Kind == decoder.Call:
				if _, ok := g.result.Functions[ins.NNN]; ok {
					addRoute(callSiteLabel(ins.Address, ""), []uint16{ins.NNN})
				}
			case ins.Kind == decoder.JpV0:
				addRoute(callSiteLabel(ins.Address, ""), g.computedCallees(ins.NNN))
			case ins.Kind == decoder.Jp:
				if t := g.classifyTarget(inFn, ins.NNN); t.kind == edgeTailCall {
					addRoute(callSiteLabel(ins.Address, ""), []uint16{t.target})
				}
			case ins.IsBranch:
				if t := g.classifyTarget(inFn, ins.Address+4); t.kind == edgeTailCall {
					addRoute(callSiteLabel(ins.Address, "t"), []uint16{t.target})
				}
				if t := g.classifyTarget(inFn, ins.Address+2); t.kind == edgeTailCall {
					addRoute(callSiteLabel(ins.Address, "f"), []uint16{t.target})
				}
			}

			if last && !ins.IsTerminator() && !ins.IsBranch {
				if t := g.classifyTarget(inFn, block.EndAddress); t.kind == edgeTailCall {
					addRoute(callSiteLabel(ins.Address, ""), []uint16{t.target})
				}
			}
		}
	}
	return routes
}

func callSiteLabel(address uint16, suffix string) string {
	if suffix != "" {
		return fmt.Sprintf("call_0x%03X_%s", address, suffix)
	}
	return fmt.Sprintf("call_0x%03X", address)
}

// emitBlock writes the instructions of one basic block. Control transfers
// out of the block are emitted in place of the terminating instruction.
func (g *generation) emitBlock(b *strings.Builder, inFn map[uint16]struct{},
	block *analyzer.BasicBlock, next uint16, hasNext bool, routes map[string][]uint16) {

	for i, idx := range block.InstructionIndices {
		ins := g.result.Instructions[idx]
		last := i == len(block.InstructionIndices)-1

		if g.opts.EmitComments {
			fmt.Fprintf(b, "    /* %03X: %04X  %s */\n", ins.Address, ins.Opcode, ins.String())
		}

		switch {
		case ins.Kind == decoder.Jp:
			t := g.classifyTarget(inFn, ins.NNN)
			g.emitTransfer(b, t, "    ", 0, false, callSiteLabel(ins.Address, ""), routes)
			continue
		case ins.Kind == decoder.JpV0:
			g.emitComputedJump(b, ins, routes)
			continue
		case ins.IsReturn:
			b.WriteString("    return;\n")
			continue
		case ins.IsBranch:
			g.emitBranch(b, inFn, ins, next, hasNext, routes)
			continue
		case ins.Kind == decoder.Call:
			g.emitCall(b, ins, routes)
		case ins.Kind == decoder.LdVxK:
			g.emitWaitKey(b, ins)
		default:
			g.emitInstruction(b, ins)
		}

		if last {
			t := g.classifyTarget(inFn, block.EndAddress)
			g.emitTransfer(b, t, "    ", next, hasNext, callSiteLabel(ins.Address, ""), routes)
		}
	}
}

// emitTransfer writes one control flow edge. In-function edges yield at
// labeled targets and fall through when the target block is emitted next.
func (g *generation) emitTransfer(b *strings.Builder, t transfer, indent string,
	adjacent uint16, hasAdjacent bool, routeLabel string, routes map[string][]uint16) {

	switch t.kind {
	case edgeGoto:
		if t.yield {
			fmt.Fprintf(b, "%sCHIP8_YIELD(ctx, 0x%03X);\n", indent, t.target)
		}
		if !hasAdjacent || adjacent != t.target {
			fmt.Fprintf(b, "%sgoto %s;\n", indent, analyzer.LabelName(t.target))
		}

	case edgeTailCall:
		if _, ok := routes[routeLabel]; ok {
			fmt.Fprintf(b, "%s:\n", routeLabel)
		}
		fmt.Fprintf(b, "%s%s(ctx);\n", indent, g.funcName(t.target))
		fmt.Fprintf(b, "%sreturn;\n", indent)

	case edgePanic:
		fmt.Fprintf(b, "%schip8_panic(\"No recompiled code at target\", 0x%03X);\n",
			indent, t.target)
		fmt.Fprintf(b, "%sreturn;\n", indent)
	}
}

func (g *generation) emitBranch(b *strings.Builder, inFn map[uint16]struct{},
	ins decoder.Instruction, next uint16, hasNext bool, routes map[string][]uint16) {

	taken := g.classifyTarget(inFn, ins.Address+4)
	notTaken := g.classifyTarget(inFn, ins.Address+2)

	fmt.Fprintf(b, "    if (%s) {\n", branchCondition(ins))
	g.emitTransfer(b, taken, "        ", 0, false, callSiteLabel(ins.Address, "t"), routes)
	b.WriteString("    }\n")
	g.emitTransfer(b, notTaken, "    ", next, hasNext, callSiteLabel(ins.Address, "f"), routes)
}

func branchCondition(ins decoder.Instruction) string {
	switch ins.Kind {
	case decoder.SeVxNN:
		return fmt.Sprintf("ctx->V[0x%X] == 0x%02X", ins.X, ins.NN)
	case decoder.SneVxNN:
		return fmt.Sprintf("ctx->V[0x%X] != 0x%02X", ins.X, ins.NN)
	case decoder.SeVxVy:
		return fmt.Sprintf("ctx->V[0x%X] == ctx->V[0x%X]", ins.X, ins.Y)
	case decoder.SneVxVy:
		return fmt.Sprintf("ctx->V[0x%X] != ctx->V[0x%X]", ins.X, ins.Y)
	case decoder.Skp:
		return fmt.Sprintf("chip8_key_pressed(ctx, ctx->V[0x%X])", ins.X)
	case decoder.Sknp:
		return fmt.Sprintf("!chip8_key_pressed(ctx, ctx->V[0x%X])", ins.X)
	}
	return "0"
}

func (g *generation) emitCall(b *strings.Builder, ins decoder.Instruction,
	routes map[string][]uint16) {

	fn, ok := g.result.Functions[ins.NNN]
	if !ok {
		fmt.Fprintf(b, "    chip8_panic(\"Call target outside program\", 0x%03X);\n", ins.NNN)
		return
	}

	label := callSiteLabel(ins.Address, "")
	if _, routed := routes[label]; routed {
		fmt.Fprintf(b, "%s:\n", label)
	}
	fmt.Fprintf(b, "    %s(ctx);\n", g.funcName(fn.EntryAddress))
	b.WriteString("    if (ctx->should_yield) {\n        return;\n    }\n")
}

func (g *generation) emitComputedJump(b *strings.Builder, ins decoder.Instruction,
	routes map[string][]uint16) {

	label := callSiteLabel(ins.Address, "")
	if _, routed := routes[label]; routed {
		fmt.Fprintf(b, "%s:\n", label)
	}

	if g.opts.QuirkJumpUsesVX {
		x := uint8(ins.NNN >> 8)
		b.WriteString("    {\n")
		fmt.Fprintf(b, "        uint16_t target = 0x%03X + ctx->V[0x%X];\n", ins.NNN, x)
		b.WriteString("        Chip8FuncPtr func = chip8_lookup_function(target);\n")
		b.WriteString("        if (func) {\n            func(ctx);\n        } else {\n")
		b.WriteString("            chip8_panic(\"Invalid computed jump target\", target);\n        }\n")
		b.WriteString("    }\n")
	} else {
		fmt.Fprintf(b, "    CHIP8_COMPUTED_JUMP(ctx, 0x%03X);\n", ins.NNN)
	}
	b.WriteString("    return;\n")
}

// emitWaitKey suspends execution until the runtime delivers a released key.
// The continuation address two bytes ahead always carries a label.
func (g *generation) emitWaitKey(b *strings.Builder, ins decoder.Instruction) {
	fmt.Fprintf(b, "    chip8_wait_key(ctx, 0x%X);\n", ins.X)
	b.WriteString("    if (ctx->waiting_for_key) {\n")
	fmt.Fprintf(b, "        ctx->resume_pc = 0x%03X;\n", ins.Address+2)
	b.WriteString("        ctx->should_yield = true;\n")
	b.WriteString("        return;\n    }\n")
}

// emitRegisterFunctions writes the function table initializer used by
// computed jump dispatch.
func (g *generation) emitRegisterFunctions(b *strings.Builder) {
	fmt.Fprintf(b, "void %s_register_functions(void) {\n", g.opts.OutputPrefix)
	if g.opts.SingleFunctionMode {
		fmt.Fprintf(b, "    chip8_register_function(0x%03X, %s_run);\n",
			g.result.EntryPoint, g.opts.OutputPrefix)
	} else {
		for _, entry := range g.result.SortedFunctionAddresses() {
			fmt.Fprintf(b, "    chip8_register_function(0x%03X, %s);\n",
				entry, g.funcName(entry))
		}
	}
	b.WriteString("}\n")
}
