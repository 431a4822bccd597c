package providers

import "context"

// Mock is a scripted provider for tests: each Complete call pops the next
// queued response.
type Mock struct {
	NameStr string
	Caps    Capabilities
	Queue   []*Response
	Err     error

	// Calls records every request for assertions.
	Calls []Request
}

func (m *Mock) Name() string {
	if m.NameStr == "" {
		return "mock"
	}
	return m.NameStr
}

func (m *Mock) Capabilities() Capabilities { return m.Caps }

func (m *Mock) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Queue) == 0 {
		return &Response{Content: "ok"}, nil
	}
	next := m.Queue[0]
	m.Queue = m.Queue[1:]
	return next, nil
}
