package lower

import (
	"fmt"

	"github.com/raymyers/cflat/pkg/lir"
)

// CFGBuilder accumulates the basic blocks of one function while it is
// lowered. A block is open until its terminal is set.
type CFGBuilder struct {
	fn      lir.FuncID
	blocks  map[lir.BbID]*lir.BasicBlock
	locals  lir.VarSet
	nextBB  int // next bbN suffix
	nextTmp int // shared by _tN and _retN
}

// NewCFGBuilder creates a builder for fn whose declared locals are locals.
// Temporaries are added to the same set.
func NewCFGBuilder(fn lir.FuncID, locals lir.VarSet) *CFGBuilder {
	return &CFGBuilder{
		fn:      fn,
		blocks:  make(map[lir.BbID]*lir.BasicBlock),
		locals:  locals,
		nextBB:  1,
		nextTmp: 1,
	}
}

// AllocLabel returns a fresh block label. The block itself is created by
// StartBlock.
func (b *CFGBuilder) AllocLabel() lir.BbID {
	id := lir.BbID(fmt.Sprintf("bb%d", b.nextBB))
	b.nextBB++
	return id
}

// StartBlock creates an open block with the given label.
func (b *CFGBuilder) StartBlock(id lir.BbID) {
	if _, ok := b.blocks[id]; ok {
		panic(fmt.Sprintf("lower: block %s created twice in %s", id, b.fn))
	}
	b.blocks[id] = &lir.BasicBlock{ID: id}
}

// NewBlock allocates a label and starts a block with it.
func (b *CFGBuilder) NewBlock() lir.BbID {
	id := b.AllocLabel()
	b.StartBlock(id)
	return id
}

// AllocTemp creates a fresh local of the given type named prefix followed by
// a counter.
func (b *CFGBuilder) AllocTemp(typ *lir.Type, prefix string) lir.VarID {
	v := lir.Var(fmt.Sprintf("%s%d", prefix, b.nextTmp), typ, b.fn)
	b.nextTmp++
	b.locals.Add(v)
	return v
}

func (b *CFGBuilder) open(id lir.BbID) *lir.BasicBlock {
	bb, ok := b.blocks[id]
	if !ok {
		panic(fmt.Sprintf("lower: unknown block %s in %s", id, b.fn))
	}
	if bb.Term != nil {
		panic(fmt.Sprintf("lower: block %s in %s is already terminated", id, b.fn))
	}
	return bb
}

// Emit appends inst to the open block id.
func (b *CFGBuilder) Emit(id lir.BbID, inst lir.Instruction) {
	bb := b.open(id)
	bb.Insts = append(bb.Insts, inst)
}

// Terminate sets the terminal of the open block id.
func (b *CFGBuilder) Terminate(id lir.BbID, term lir.Terminal) {
	b.open(id).Term = term
}

// Blocks returns the finished blocks. Every block must be terminated.
func (b *CFGBuilder) Blocks() map[lir.BbID]*lir.BasicBlock {
	for id, bb := range b.blocks {
		if bb.Term == nil {
			panic(fmt.Sprintf("lower: block %s in %s has no terminal", id, b.fn))
		}
	}
	return b.blocks
}

// loopTargets are the jump targets of continue and break.
type loopTargets struct {
	header lir.BbID
	exit   lir.BbID
}

// LoopContext tracks the enclosing loops of the statement being lowered.
type LoopContext struct {
	loops []loopTargets // innermost last
}

// Push enters a loop.
func (c *LoopContext) Push(header, exit lir.BbID) {
	c.loops = append(c.loops, loopTargets{header: header, exit: exit})
}

// Pop leaves the innermost loop.
func (c *LoopContext) Pop() {
	if len(c.loops) > 0 {
		c.loops = c.loops[:len(c.loops)-1]
	}
}

// Innermost returns the targets of the innermost loop.
func (c *LoopContext) Innermost() (header, exit lir.BbID, ok bool) {
	if len(c.loops) == 0 {
		return "", "", false
	}
	t := c.loops[len(c.loops)-1]
	return t.header, t.exit, true
}
