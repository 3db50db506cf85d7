package market

// index is an enumerable set of item identifiers with O(1) membership,
// insertion, and removal. Removal swaps the target with the last element
// and pops, so enumeration order is not preserved. A position map replaces
// the linear scan a slice-only representation would need.
//
// The registries call add on every activation and remove on every
// deactivation, so membership always matches the active records.
type index struct {
	ids []uint64
	pos map[uint64]int
}

func newIndex() *index {
	return &index{pos: make(map[uint64]int)}
}

// add appends id if absent.
func (x *index) add(id uint64) {
	if _, ok := x.pos[id]; ok {
		return
	}
	x.pos[id] = len(x.ids)
	x.ids = append(x.ids, id)
}

// remove deletes id via swap-with-last. No-op if absent.
func (x *index) remove(id uint64) {
	i, ok := x.pos[id]
	if !ok {
		return
	}
	last := len(x.ids) - 1
	if i != last {
		moved := x.ids[last]
		x.ids[i] = moved
		x.pos[moved] = i
	}
	x.ids = x.ids[:last]
	delete(x.pos, id)
}

func (x *index) contains(id uint64) bool {
	_, ok := x.pos[id]
	return ok
}

func (x *index) len() int {
	return len(x.ids)
}
