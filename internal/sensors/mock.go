package sensors

import (
	"math/rand/v2"
)

const (
	MoistureMin = 30
	MoistureMax = 80
)

// Source is the randomness behind the mock sensors.
type Source interface {
	// IntN returns a value in [0, n).
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int {
	//nolint:gosec // this is a mock
	return rand.IntN(n)
}

// Mock is a soil moisture sensor and waterproof sensor MOCK.
// Every reading is a fresh draw, nothing is remembered between calls.
type Mock struct {
	src Source
}

// NewMock makes a Mock backed by src, or by math/rand/v2 when src is nil.
func NewMock(src Source) *Mock {
	if src == nil {
		src = globalSource{}
	}

	return &Mock{src: src}
}

// Moisture returns a soil moisture percentage in [MoistureMin, MoistureMax].
func (m *Mock) Moisture() int {
	return MoistureMin + m.src.IntN(MoistureMax-MoistureMin+1)
}

// SensorHealth reports whether the waterproof sensor self-test passed.
func (m *Mock) SensorHealth() bool {
	return m.src.IntN(2) == 1
}
