package dgengine

import "github.com/gordian-engine/gdag/dg/dgengine/internal/dgemetrics"

// Metrics are the metrics emitted by the [Engine] kernel.
// The fields in this type should not be considered stable
// and may change without notice between releases.
type Metrics = dgemetrics.Metrics
