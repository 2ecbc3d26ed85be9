package glog

import "log/slog"

// RA returns a copy of log annotated with a round and authority index,
// the pair most DAG log lines are about.
func RA(log *slog.Logger, round uint32, author uint16) *slog.Logger {
	return log.With("round", round, "author", author)
}
