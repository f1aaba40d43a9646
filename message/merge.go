package message

// Merge combines two partial views of the same Message into lhs and
// invalidates rhs. Both arguments must share the sequence number and
// declared length; the view whose first data slice starts earlier becomes
// the merge target, swapping the arguments' contents if necessary.
//
// Every data slice of rhs must fit into an empty slice of lhs. If one does
// not, because of an overlap or a missing gap, the merge aborts with lhs
// unchanged; this silently drops duplicate or stale fragments.
func Merge(lhs, rhs *Message) *Message {
	if lhs.seq != rhs.seq || lhs.length != rhs.length {
		return lhs
	}

	target, source := lhs, rhs
	if lhs.firstValidOffset() > rhs.firstValidOffset() {
		target, source = rhs, lhs
	}

	for _, s := range source.slices {
		if !s.isEmpty() && target.findHostingGap(s) < 0 {
			return lhs
		}
	}

	if target != lhs {
		*lhs, *rhs = *rhs, *lhs
	}

	for _, s := range rhs.slices {
		if !s.isEmpty() {
			lhs.insert(s)
		}
	}
	lhs.consolidate()

	rhs.length = 0
	return lhs
}

// findHostingGap locates the empty slice enclosing the byte range of s, or
// a negative index if no empty slice can host it.
func (m *Message) findHostingGap(s slice) int {
	for i, gap := range m.slices {
		if gap.isEmpty() && gap.offset <= s.offset && s.end() <= gap.end() {
			return i
		}
	}
	return -1
}

// insert places the data slice s into its hosting gap, splitting off a
// leading empty slice and shrinking or dropping the trailing remainder.
func (m *Message) insert(s slice) {
	i := m.findHostingGap(s)
	if i < 0 {
		return
	}
	gap := m.slices[i]

	replacement := make([]slice, 0, 3)
	if s.offset > gap.offset {
		replacement = append(replacement, slice{offset: gap.offset, length: s.offset - gap.offset})
	}
	replacement = append(replacement, s)
	if s.end() < gap.end() {
		replacement = append(replacement, slice{offset: s.end(), length: gap.end() - s.end()})
	}

	tail := append(replacement, m.slices[i+1:]...)
	m.slices = append(m.slices[:i], tail...)
}

// consolidate concatenates every two adjacent data slices into one,
// copying both into a fresh combined buffer.
func (m *Message) consolidate() {
	for i := 0; i+1 < len(m.slices); {
		cur, next := m.slices[i], m.slices[i+1]
		if cur.isEmpty() || next.isEmpty() {
			i++
			continue
		}

		data := make([]byte, cur.length+next.length)
		copy(data, cur.data)
		copy(data[cur.length:], next.data)

		m.slices[i] = slice{offset: cur.offset, length: cur.length + next.length, data: data}
		m.slices = append(m.slices[:i+1], m.slices[i+2:]...)
	}
}
