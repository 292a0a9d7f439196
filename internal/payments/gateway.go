package payments

import (
	"context"
	"fmt"

	"github.com/openmarketlabs/relay-backend/pkg/enums"
	"github.com/openmarketlabs/relay-backend/pkg/outbox/payloads"
)

// ChargeResult is a gateway's verdict on one order. Response carries the
// raw gateway reply for the payments table; Reason is surfaced to consumers
// on failures.
type ChargeResult struct {
	Status   enums.PaymentStatus
	Response string
	Reason   string
}

// Gateway charges an order. An error means the gateway could not be reached
// and the attempt should be retried; a declined charge is a successful call
// with a failed status.
type Gateway interface {
	Charge(ctx context.Context, order payloads.OrderPlacedEvent) (ChargeResult, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, order payloads.OrderPlacedEvent) (ChargeResult, error)

func (f GatewayFunc) Charge(ctx context.Context, order payloads.OrderPlacedEvent) (ChargeResult, error) {
	return f(ctx, order)
}

// ApproveAllGateway approves every charge. Stands in for a real processor
// in environments without one.
func ApproveAllGateway() Gateway {
	return GatewayFunc(func(ctx context.Context, order payloads.OrderPlacedEvent) (ChargeResult, error) {
		return ChargeResult{
			Status:   enums.PaymentStatusSuccess,
			Response: fmt.Sprintf(`{"approved":true,"order_id":%q}`, order.OrderID),
		}, nil
	})
}
