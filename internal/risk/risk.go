// Package risk defines the collaborator that turns the ground motion of one
// target into exposure, vulnerability and loss.
package risk

import "context"

// Input is what the calculator receives for one target. Intensity holds the
// intensity samples at the target; a single element means a scalar.
type Input struct {
	Intensity   []float64
	Percentiles []float64
	SessionID   int64
	ScenarioID  int64
	TargetID    int64
	GeocellID   int64
}

// Calculator computes and persists the risk of one target.
type Calculator interface {
	Calculate(ctx context.Context, in Input) error
}

// CalculatorFunc adapts a function to Calculator.
type CalculatorFunc func(ctx context.Context, in Input) error

// Calculate calls f.
func (f CalculatorFunc) Calculate(ctx context.Context, in Input) error {
	return f(ctx, in)
}

// Nop is a Calculator that does nothing. It is used when no risk backend is
// configured.
type Nop struct{}

// Calculate does nothing.
func (Nop) Calculate(context.Context, Input) error {
	return nil
}
