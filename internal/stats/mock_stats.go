package stats

import "github.com/stretchr/testify/mock"

// MockStatsUpdater records counter updates. Tests usually register it with
// On("Incr", mock.Anything).Maybe() and assert on the names they care about.
type MockStatsUpdater struct {
	mock.Mock
}

func (m *MockStatsUpdater) Incr(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) Decr(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) RegisterMetric(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) Run() {
	m.Called()
}
