package dgcommit

import (
	"log/slog"
	"slices"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/internal/glog"
)

// UniversalCommitter pipelines one [BaseCommitter] per round offset and leader offset,
// so that every round has NumLeaders leader slots.
//
// A UniversalCommitter is not safe for concurrent use;
// decisions belong to a single goroutine.
type UniversalCommitter struct {
	log *slog.Logger

	dag DAG

	// Ordered by round offset, then leader offset.
	committers []*BaseCommitter
}

// UniversalCommitterOptions configures a [UniversalCommitter].
type UniversalCommitterOptions struct {
	// WaveLength defaults to DefaultWaveLength when zero.
	WaveLength uint32

	// Pipeline runs a committer per round offset, giving every round a leader.
	// Without it only the first round of each wave has leaders.
	Pipeline bool
}

func NewUniversalCommitter(
	log *slog.Logger,
	dag DAG,
	leader LeaderElector,
	opts UniversalCommitterOptions,
) *UniversalCommitter {
	w := opts.WaveLength
	if w == 0 {
		w = DefaultWaveLength
	}

	roundOffsets := uint32(1)
	if opts.Pipeline {
		roundOffsets = w
	}

	var cs []*BaseCommitter
	for ro := range roundOffsets {
		for lo := range leader.NumLeaders() {
			cs = append(cs, NewBaseCommitter(
				log.With("round_offset", ro, "leader_offset", lo),
				dag, leader,
				BaseCommitterOptions{
					WaveLength:   w,
					RoundOffset:  ro,
					LeaderOffset: lo,
				},
			))
		}
	}

	return &UniversalCommitter{
		log:        log,
		dag:        dag,
		committers: cs,
	}
}

// TryDecide returns the leaders decided after lastDecided,
// in strict slot order and stopping before the first undecided leader.
// Round zero is never decided; pass the zero Slot before any decision.
//
// It panics with a [*dgconsensus.InvariantViolationError]
// if the DAG certifies two blocks in one leader slot.
func (u *UniversalCommitter) TryDecide(lastDecided dgconsensus.Slot) []DecidedLeader {
	highest := u.dag.HighestAcceptedRound()
	if highest < 2 {
		return nil
	}
	lo := max(lastDecided.Round, 1)
	hi := highest - 2
	if hi < lo {
		return nil
	}

	// Walk from the highest round down, so that each leader
	// can use the already computed statuses of later leaders as anchors.
	// Statuses are kept in ascending order.
	var (
		statuses []LeaderStatus
		direct   []bool
	)

outer:
	for r := hi; ; r-- {
		for i := len(u.committers) - 1; i >= 0; i-- {
			c := u.committers[i]
			slot, ok := c.ElectLeader(r)
			if !ok {
				continue
			}
			if slot == lastDecided {
				break outer
			}

			st := c.TryDirectDecide(slot)
			isDirect := true
			if !st.IsDecided() {
				st = c.TryIndirectDecide(slot, statuses)
				isDirect = false
			}

			statuses = slices.Insert(statuses, 0, st)
			direct = slices.Insert(direct, 0, isDirect)

			if st.IsDecided() {
				u.log.Debug(
					"Leader decided",
					"status", st,
					"direct", isDirect,
				)
			}
		}
		if r == lo {
			break
		}
	}

	var out []DecidedLeader
	for i, st := range statuses {
		if !st.IsDecided() {
			break
		}
		out = append(out, DecidedLeader{LeaderStatus: st, Direct: direct[i]})
	}

	if len(out) > 0 {
		last := out[len(out)-1]
		glog.RA(u.log, last.Slot.Round, uint16(last.Slot.Author)).Debug(
			"Decided leaders",
			"count", len(out),
		)
	}

	return out
}

// GetLeaders returns the leader slots at round, in leader offset order.
func (u *UniversalCommitter) GetLeaders(round uint32) []dgconsensus.Slot {
	var out []dgconsensus.Slot
	for _, c := range u.committers {
		if s, ok := c.ElectLeader(round); ok {
			out = append(out, s)
		}
	}
	return out
}
