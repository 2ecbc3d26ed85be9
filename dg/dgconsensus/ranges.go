package dgconsensus

import "fmt"

// CommitRange is an inclusive range of commit indices.
// A range whose End is less than its Start is empty.
type CommitRange struct {
	Start, End uint32
}

// Contains reports whether idx lies within r.
func (r CommitRange) Contains(idx uint32) bool {
	return r.Start <= idx && idx <= r.End
}

// Len returns the number of indices in r.
func (r CommitRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return int(r.End-r.Start) + 1
}

// IsNextRange reports whether o begins immediately after r ends.
func (r CommitRange) IsNextRange(o CommitRange) bool {
	return o.Start == r.End+1
}

// Merge returns the union of r and o if they are adjacent,
// reporting false otherwise.
func (r CommitRange) Merge(o CommitRange) (CommitRange, bool) {
	switch {
	case r.IsNextRange(o):
		return CommitRange{Start: r.Start, End: o.End}, true
	case o.IsNextRange(r):
		return CommitRange{Start: o.Start, End: r.End}, true
	}
	return CommitRange{}, false
}

func (r CommitRange) String() string {
	return fmt.Sprintf("[%d..%d]", r.Start, r.End)
}

// RoundRange is an inclusive range of rounds.
type RoundRange struct {
	Start, End uint32
}

func (r RoundRange) Contains(round uint32) bool {
	return r.Start <= round && round <= r.End
}

func (r RoundRange) String() string {
	return fmt.Sprintf("[%d..%d]", r.Start, r.End)
}
