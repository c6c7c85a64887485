package payments

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// MockGateway approves every refund unless told to fail. Used by tests
// and by dev-mode runs without gateway credentials.
type MockGateway struct {
	mu    sync.Mutex
	fail  bool
	calls []GatewayRefundRequest
}

func NewMockGateway() *MockGateway { return &MockGateway{} }

func (g *MockGateway) Name() string { return "mock" }

func (g *MockGateway) FailNext(fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail = fail
}

func (g *MockGateway) Calls() []GatewayRefundRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]GatewayRefundRequest, len(g.calls))
	copy(out, g.calls)
	return out
}

func (g *MockGateway) Refund(_ context.Context, req GatewayRefundRequest) (GatewayRefundResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.fail {
		return GatewayRefundResponse{}, errors.New("gateway unavailable")
	}
	return GatewayRefundResponse{GatewayTransactionID: "mock_" + uuid.NewString()[:8], Succeeded: true}, nil
}

func (g *MockGateway) VerifyAndParseWebhook(http.Header, []byte) (WebhookEvent, error) {
	return WebhookEvent{}, errors.New("mock gateway has no webhooks")
}
