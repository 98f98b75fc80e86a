package settlement

import "context"

// GatewayStatusPaid is the canonical status of a captured payment.
const GatewayStatusPaid = "paid"

// GatewayPayment is the gateway's canonical record of a payment.
type GatewayPayment struct {
	ApprovalID string
	Amount     Amount
	Status     string
	Method     string
}

// GatewayCancellation is the gateway's answer to a refund.
type GatewayCancellation struct {
	ApprovalID string
	Amount     Amount
	Status     string
}

// Gateway is the contract the engine needs from the external payment gateway.
type Gateway interface {
	FetchPayment(ctx context.Context, approvalID string) (GatewayPayment, error)
	CancelPayment(ctx context.Context, approvalID string, amount Amount, isFull bool) (GatewayCancellation, error)
}
