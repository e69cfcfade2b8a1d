// Package progress estimates completion of a dispatch whose real progress is not observable.
// The value is an approximation driven by elapsed time only.
package progress

import (
	"math"
	"sync"
	"time"
)

const (
	DefaultCeiling = 95.0
	DefaultPerItem = 2 * time.Second
)

type Estimator struct {
	Start    time.Time
	Expected time.Duration
	Ceiling  float64

	mu   sync.RWMutex
	done bool
}

// New returns an Estimator expecting total items at perItem each, starting now.
func New(total int, perItem time.Duration) *Estimator {
	if perItem <= 0 {
		perItem = DefaultPerItem
	}

	if total < 1 {
		total = 1
	}

	return &Estimator{
		Start:    time.Now(),
		Expected: time.Duration(total) * perItem,
		Ceiling:  DefaultCeiling,
	}
}

// Percent returns Ceiling * (1 - e^(-elapsed/Expected)), or 100 once completed.
// It grows monotonically with now and never reaches Ceiling.
func (e *Estimator) Percent(now time.Time) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.done {
		return 100
	}

	elapsed := now.Sub(e.Start)
	if elapsed <= 0 || e.Expected <= 0 {
		return 0
	}

	ceiling := e.Ceiling
	if ceiling <= 0 || ceiling > 100 {
		ceiling = DefaultCeiling
	}

	ratio := float64(elapsed) / float64(e.Expected)
	return ceiling * (1 - math.Exp(-ratio))
}

func (e *Estimator) Complete() {
	e.mu.Lock()
	e.done = true
	e.mu.Unlock()
}

func (e *Estimator) Done() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.done
}
