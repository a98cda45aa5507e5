package replay

import "github.com/streamingfast/dmetrics"

// RegisterMetrics exposes this package's metrics for scraping; callers
// invoke it once at process startup (grounded on metrics.go's
// RegisterMetrics/dmetrics.NewSet pattern).
func RegisterMetrics() {
	metrics.Register()
}

var metrics = dmetrics.NewSet()

var ElementsProcessedCount = metrics.NewCounter("causal_replay_elements_processed", "The number of stream elements dispatched to the operator, across both live and replay input processing")
var AsyncDeterminantsFiredCount = metrics.NewCounter("causal_replay_async_determinants_fired", "The number of asynchronous determinants (e.g. BufferBuilt) fired during replay")
var ReplayLengthMismatchCount = metrics.NewCounter("causal_replay_length_mismatch", "The number of ReplayLengthMismatch fatal errors observed")
var InFlightLogRequestRetryCount = metrics.NewCounterVec("causal_replay_in_flight_log_request_retry", []string{"subpartition"}, "The number of in-flight log replay requests that required at least one retry")
