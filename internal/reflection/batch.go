package reflection

import (
	"github.com/boshu2/cadence/internal/worker"
)

// BatchDetect runs the calibration detector across many runs
// concurrently. Results come back in input order; per-run errors are
// captured per result rather than aborting the batch.
func (d *Detector) BatchDetect(runIDs []string, concurrency int) []worker.Result[*DetectResult] {
	pool := worker.NewPool[*DetectResult](concurrency)
	return pool.Process(runIDs, d.Detect)
}

// BatchAnalyze runs the friction analyzer across many runs concurrently.
func (a *Analyzer) BatchAnalyze(runIDs []string, concurrency int) []worker.Result[*AnalyzeResult] {
	pool := worker.NewPool[*AnalyzeResult](concurrency)
	return pool.Process(runIDs, a.Analyze)
}
