package coaching

import (
	"context"
	"sync"
	"time"

	"github.com/windfall/phonoecho/internal/client"
)

// MockResponse is a canned stream for the MockProvider. Chunks are
// delivered in order, each after Delay, before Err is returned.
type MockResponse struct {
	Chunks []string
	Delay  time.Duration
	Err    error
}

// MockProvider is a deterministic Provider used when no chat backend is
// configured and in tests. It plays canned responses in FIFO order and
// records all requests; with an empty queue it repeats Fallback.
type MockProvider struct {
	mu        sync.Mutex
	responses []MockResponse
	Fallback  MockResponse
	Calls     []client.ChatRequest
}

// NewMockProvider creates a MockProvider with the given canned responses.
func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{
		responses: responses,
		Fallback:  MockResponse{Err: &client.ErrProviderUnavailable{}},
	}
}

func (m *MockProvider) ChatStream(ctx context.Context, req client.ChatRequest, onChunk func(string) error) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	resp := m.Fallback
	if len(m.responses) > 0 {
		resp = m.responses[0]
		m.responses = m.responses[1:]
	}
	m.mu.Unlock()

	for _, c := range resp.Chunks {
		if resp.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(resp.Delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return resp.Err
}

// ModelID returns "mock".
func (m *MockProvider) ModelID() string {
	return "mock"
}

// CallCount returns the number of ChatStream calls made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
