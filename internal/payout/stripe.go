package payout

import (
	"context"
	"os"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/transfer"
)

// StripeClient is a thin wrapper around stripe-go for paying pullers when
// they redeem points. Each puller id maps to a connected account id supplied
// by the onboarding flow; the map is seeded from configuration for now.
type StripeClient struct {
	accounts map[string]string
}

// NewStripeClient initializes the stripe client with the STRIPE_API_KEY env var.
func NewStripeClient(accounts map[string]string) *StripeClient {
	stripe.Key = os.Getenv("STRIPE_API_KEY")
	if accounts == nil {
		accounts = map[string]string{}
	}
	return &StripeClient{accounts: accounts}
}

// Payout transfers amount (smallest currency unit) to the puller's connected
// account and returns the transfer id.
func (s *StripeClient) Payout(ctx context.Context, pullerID string, amount int64, currency string) (string, error) {
	dest, ok := s.accounts[pullerID]
	if !ok {
		// fall back to the puller id; useful against stripe-mock in dev
		dest = pullerID
	}
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(currency),
		Destination: stripe.String(dest),
	}
	params.Context = ctx
	tr, err := transfer.New(params)
	if err != nil {
		return "", err
	}
	return tr.ID, nil
}
