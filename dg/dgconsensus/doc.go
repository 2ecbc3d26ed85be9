// Package dgconsensus holds the data model shared by every part of the DAG consensus core:
// block references and blocks, the committee, commits, reputation scores,
// quorum arithmetic, and the error taxonomy.
//
// Values in this package are treated as immutable once constructed.
// Slices inside a [Block] or [Commit] must not be modified after the value
// has been handed to another package.
package dgconsensus
