package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// ChargeResult is the gateway's answer to one charge attempt.
type ChargeResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id"`
	RawResponse   string `json:"raw_response"`
}

// Gateway is the external payment processor. The contract tolerates any
// latency or outcome, including a context timeout.
type Gateway interface {
	Charge(ctx context.Context, amount decimal.Decimal, method, idempotencyKey string) (*ChargeResult, error)
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal, reason string) error
}

// SimulatedGateway approves charges with a fixed probability after a
// bounded random delay. It honors the caller's context so an enforced
// timeout behaves like a real gateway going dark.
type SimulatedGateway struct {
	SuccessRate float64
	MinLatency  time.Duration
	MaxLatency  time.Duration
}

func NewSimulatedGateway(successRate float64, minLatency, maxLatency time.Duration) *SimulatedGateway {
	if successRate < 0 || successRate > 1 {
		successRate = 0.9
	}
	return &SimulatedGateway{SuccessRate: successRate, MinLatency: minLatency, MaxLatency: maxLatency}
}

func (g *SimulatedGateway) Charge(ctx context.Context, amount decimal.Decimal, method, idempotencyKey string) (*ChargeResult, error) {
	if err := g.sleep(ctx); err != nil {
		return nil, err
	}

	success := rand.Float64() < g.SuccessRate
	raw, _ := json.Marshal(map[string]interface{}{
		"provider":        "simulated",
		"method":          method,
		"amount":          amount.String(),
		"idempotency_key": idempotencyKey,
		"approved":        success,
		"processed_at":    time.Now().UTC().Format(time.RFC3339),
	})

	return &ChargeResult{
		Success:       success,
		TransactionID: idempotencyKey,
		RawResponse:   string(raw),
	}, nil
}

func (g *SimulatedGateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal, reason string) error {
	if err := g.sleep(ctx); err != nil {
		return err
	}
	return nil
}

func (g *SimulatedGateway) sleep(ctx context.Context) error {
	latency := g.MinLatency
	if g.MaxLatency > g.MinLatency {
		latency += time.Duration(rand.Int63n(int64(g.MaxLatency - g.MinLatency)))
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("gateway timeout: %w", ctx.Err())
	case <-time.After(latency):
		return nil
	}
}
