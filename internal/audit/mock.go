package audit

import "context"

// MockSink is a test double for the Sink interface.
type MockSink struct {
	Err error

	Records []Record
}

func (m *MockSink) Append(_ context.Context, rec Record) error {
	if m.Err != nil {
		return m.Err
	}
	m.Records = append(m.Records, rec)
	return nil
}

// Actions returns the recorded actions in order.
func (m *MockSink) Actions() []Action {
	actions := make([]Action, 0, len(m.Records))
	for _, r := range m.Records {
		actions = append(actions, r.Action)
	}
	return actions
}
