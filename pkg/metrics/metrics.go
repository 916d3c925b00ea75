package metrics

// HistogramBuckets covers request latencies from fast local handlers up to
// gateway calls bounded by the 20s Pi API timeout.
var HistogramBuckets = []float64{
	25, 50, 75, 100, 150, 200, 300, 400, 500,
	750, 1000, 1500, 2000,
	3000, 5000, 7500, 10000, 15000,
	20000, 30000, 45000, 60000,
}
