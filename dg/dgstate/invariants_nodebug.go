//go:build !debug

package dgstate

func (s *DagState) checkInvariants() {}
