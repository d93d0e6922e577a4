package ingest

// ewma tracks an exponentially weighted moving average with decay alpha,
// the per-process numeric aggregate pattern used throughout the pipeline
// for live latency and error signals (never stored in a database row).
type ewma struct {
	alpha     float64
	value     float64
	hasSample bool
}

func newEWMA(alpha float64) *ewma {
	return &ewma{alpha: alpha}
}

func (e *ewma) observe(sample float64) float64 {
	if !e.hasSample {
		e.value = sample
		e.hasSample = true
		return e.value
	}
	e.value = e.alpha*sample + (1-e.alpha)*e.value
	return e.value
}

func (e *ewma) get() float64 {
	return e.value
}
