package llm

import "context"

// MockJudge permite tests sin llamar a un modelo real.
type MockJudge struct {
	Response Response
	Err      error
	Calls    int
	// Script, when set, is consumed one entry per call and wins over
	// Response/Err.
	Script []func() (Response, error)
}

func (m *MockJudge) Evaluate(ctx context.Context, req Request) (Response, error) {
	call := m.Calls
	m.Calls++
	if len(m.Script) > 0 {
		if call >= len(m.Script) {
			call = len(m.Script) - 1
		}
		return m.Script[call]()
	}
	return m.Response, m.Err
}
