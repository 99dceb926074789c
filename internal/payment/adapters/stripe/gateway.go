package stripe

import (
	"context"
	"strings"

	paymentdomain "github.com/smallbiznis/htmlpdf/internal/payment/domain"
	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// Gateway calls the Stripe API for checkout.
type Gateway struct {
	api *client.API
}

func NewGateway(secretKey string) *Gateway {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil
	}
	return &Gateway{api: client.New(secretKey, nil)}
}

func (g *Gateway) CreateCustomer(ctx context.Context, userID, email string) (string, error) {
	if g == nil || g.api == nil {
		return "", paymentdomain.ErrNotConfigured
	}
	params := &stripego.CustomerParams{}
	params.Context = ctx
	if email = strings.TrimSpace(email); email != "" {
		params.Email = stripego.String(email)
	}
	params.AddMetadata("user_id", userID)

	customer, err := g.api.Customers.New(params)
	if err != nil {
		return "", err
	}
	return customer.ID, nil
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, p paymentdomain.CheckoutSessionParams) (string, error) {
	if g == nil || g.api == nil {
		return "", paymentdomain.ErrNotConfigured
	}
	params := &stripego.CheckoutSessionParams{
		Customer:           stripego.String(p.CustomerID),
		Mode:               stripego.String(string(stripego.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripego.StringSlice([]string{"card"}),
		LineItems: []*stripego.CheckoutSessionLineItemParams{{
			Price:    stripego.String(p.PriceID),
			Quantity: stripego.Int64(1),
		}},
		SuccessURL: stripego.String(p.SuccessURL),
		CancelURL:  stripego.String(p.CancelURL),
	}
	params.Context = ctx
	params.AddMetadata("user_id", p.UserID)

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return "", err
	}
	return session.URL, nil
}
