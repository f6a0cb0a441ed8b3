package interp

// MaxCells bounds the total number of cell numbers a heap hands out.
const MaxCells = 1 << 24

// Heap is the store of allocated cells. Every allocation is its own block;
// indexing outside a block is an error rather than reaching a neighbor.
type Heap struct {
	blocks map[int][]Value
	next   int
}

// NewHeap returns an empty heap. Cell numbering starts at 1.
func NewHeap() *Heap {
	return &Heap{blocks: make(map[int][]Value), next: 1}
}

// Alloc reserves n cells, each set by init. An empty allocation still
// consumes one cell number so its address is distinct from every other.
func (h *Heap) Alloc(n int64, init func() Value) (HeapAddr, error) {
	if n < 0 {
		return HeapAddr{}, fail(ErrNegativeAlloc, "cannot allocate a negative number of elements")
	}
	if max(n, 1) > int64(MaxCells-h.next+1) {
		return HeapAddr{}, fail(ErrAllocTooLarge, "cannot allocate %d elements", n)
	}
	base := h.next
	h.next += max(int(n), 1)
	cells := make([]Value, n)
	for i := range cells {
		cells[i] = init()
	}
	h.blocks[base] = cells
	return HeapAddr{Block: base}, nil
}

// Slot returns the cell at a.
func (h *Heap) Slot(a HeapAddr) (*Value, error) {
	cells, ok := h.blocks[a.Block]
	if !ok || a.Offset < 0 || a.Offset >= len(cells) {
		return nil, fail(ErrOutOfBounds, "out-of-bounds access")
	}
	return &cells[a.Offset], nil
}

// Size returns the number of allocated cells.
func (h *Heap) Size() int {
	n := 0
	for _, cells := range h.blocks {
		n += len(cells)
	}
	return n
}
