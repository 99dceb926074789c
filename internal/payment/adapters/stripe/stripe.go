package stripe

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/htmlpdf/internal/payment/domain"
	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

// Verifier checks Stripe-Signature headers and decodes the events we act on.
type Verifier struct {
	webhookSecret string
	tolerance     time.Duration
}

func NewVerifier(webhookSecret string) *Verifier {
	return &Verifier{
		webhookSecret: strings.TrimSpace(webhookSecret),
		tolerance:     webhook.DefaultTolerance,
	}
}

func (v *Verifier) Verify(payload []byte, signature string) (*paymentdomain.ProviderEvent, error) {
	if v == nil || v.webhookSecret == "" {
		return nil, paymentdomain.ErrNotConfigured
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return nil, paymentdomain.ErrMissingSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, v.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, paymentdomain.ErrInvalidSignature
		}
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	out := &paymentdomain.ProviderEvent{
		ID:         event.ID,
		Type:       string(event.Type),
		Created:    time.Unix(event.Created, 0).UTC(),
		RawPayload: payload,
	}
	if event.Data == nil {
		return out, nil
	}

	switch out.Type {
	case paymentdomain.EventSubscriptionCreated,
		paymentdomain.EventSubscriptionUpdated,
		paymentdomain.EventSubscriptionDeleted:
		var sub stripego.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		if sub.Customer != nil {
			out.CustomerID = sub.Customer.ID
		}
		out.Subscription = snapshotFromSubscription(&sub)
	case paymentdomain.EventInvoicePaymentSuccess,
		paymentdomain.EventInvoicePaymentFailed:
		var invoice stripego.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		if invoice.Customer != nil {
			out.CustomerID = invoice.Customer.ID
		}
		if invoice.Subscription != nil {
			out.InvoiceSubscriptionID = invoice.Subscription.ID
		}
	}
	return out, nil
}

func snapshotFromSubscription(sub *stripego.Subscription) *paymentdomain.SubscriptionSnapshot {
	snapshot := &paymentdomain.SubscriptionSnapshot{
		ID:                 sub.ID,
		Status:             string(sub.Status),
		CurrentPeriodStart: unixTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		snapshot.PriceID = sub.Items.Data[0].Price.ID
	}
	return snapshot
}

func unixTime(value int64) *time.Time {
	if value <= 0 {
		return nil
	}
	t := time.Unix(value, 0).UTC()
	return &t
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrTooOld)
}
