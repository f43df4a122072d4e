package netsim

// SackBlock reports a contiguous run of bytes received above the cumulative ACK
type SackBlock struct {
	Start uint64
	End   uint64
}

// maxSackBlocks is how many blocks fit in the TCP option space
const maxSackBlocks = 4

type seqRange struct {
	start, end uint64
}

// rangeSet is a sorted list of disjoint, non-adjacent byte ranges
type rangeSet []seqRange

// add returns the set with [start,end) merged in
func (rs rangeSet) add(start, end uint64) rangeSet {
	if start >= end {
		return rs
	}
	out := make(rangeSet, 0, len(rs)+1)
	inserted := false
	for _, r := range rs {
		switch {
		case r.end < start:
			out = append(out, r)
		case r.start > end:
			if !inserted {
				out = append(out, seqRange{start: start, end: end})
				inserted = true
			}
			out = append(out, r)
		default:
			if r.start < start {
				start = r.start
			}
			if r.end > end {
				end = r.end
			}
		}
	}
	if !inserted {
		out = append(out, seqRange{start: start, end: end})
	}
	return out
}

// trimBelow drops everything before seq
func (rs rangeSet) trimBelow(seq uint64) rangeSet {
	out := make(rangeSet, 0, len(rs))
	for _, r := range rs {
		if r.end <= seq {
			continue
		}
		if r.start < seq {
			r.start = seq
		}
		out = append(out, r)
	}
	return out
}

// bytesIn counts the bytes of the set inside [from,to)
func (rs rangeSet) bytesIn(from, to uint64) uint64 {
	var total uint64
	for _, r := range rs {
		lo, hi := r.start, r.end
		if lo < from {
			lo = from
		}
		if hi > to {
			hi = to
		}
		if hi > lo {
			total += hi - lo
		}
	}
	return total
}

// overlapIn counts the bytes inside [from,to) that belong to both sets
func (rs rangeSet) overlapIn(other rangeSet, from, to uint64) uint64 {
	var total uint64
	i, j := 0, 0
	for i < len(rs) && j < len(other) {
		lo := max(rs[i].start, other[j].start, from)
		hi := min(rs[i].end, other[j].end, to)
		if hi > lo {
			total += hi - lo
		}
		if rs[i].end < other[j].end {
			i++
		} else {
			j++
		}
	}
	return total
}

// bytes counts every byte in the set
func (rs rangeSet) bytes() uint64 {
	var total uint64
	for _, r := range rs {
		total += r.end - r.start
	}
	return total
}

// containing returns the range holding seq
func (rs rangeSet) containing(seq uint64) (seqRange, bool) {
	for _, r := range rs {
		if r.start <= seq && seq < r.end {
			return r, true
		}
		if r.start > seq {
			break
		}
	}
	return seqRange{}, false
}

// nextStart returns the start of the first range beginning after seq
func (rs rangeSet) nextStart(seq uint64) (uint64, bool) {
	for _, r := range rs {
		if r.start > seq {
			return r.start, true
		}
	}
	return 0, false
}

// highest is one past the last byte in the set, 0 for an empty set
func (rs rangeSet) highest() uint64 {
	if len(rs) == 0 {
		return 0
	}
	return rs[len(rs)-1].end
}
