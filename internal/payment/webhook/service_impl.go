package webhook

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/htmlpdf/internal/clock"
	obsmetrics "github.com/smallbiznis/htmlpdf/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/htmlpdf/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/htmlpdf/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Repo            paymentdomain.Repository
	Verifier        paymentdomain.Verifier
	SubscriptionSvc subscriptiondomain.Service
	Metrics         *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	repo            paymentdomain.Repository
	verifier        paymentdomain.Verifier
	subscriptionSvc subscriptiondomain.Service
	metrics         *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("payment.webhook"),
		genID:           p.GenID,
		clock:           p.Clock,
		repo:            p.Repo,
		verifier:        p.Verifier,
		subscriptionSvc: p.SubscriptionSvc,
		metrics:         p.Metrics,
	}
}

// IngestWebhook verifies, archives and applies one provider event. Events that
// were already applied are acknowledged without touching the mirror again.
func (s *Service) IngestWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.verifier.Verify(payload, signature)
	if err != nil {
		return err
	}

	record, fresh, err := s.archive(ctx, event)
	if err != nil {
		return err
	}
	if !fresh && record.ProcessedAt != nil {
		s.log.Debug("duplicate billing event", zap.String("event_id", event.ID))
		s.metrics.RecordBillingEvent(ctx, event.Type, "duplicate")
		return nil
	}

	outcome, err := s.apply(ctx, event)
	if err != nil {
		s.metrics.RecordBillingEvent(ctx, event.Type, "error")
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, record.ID, s.clock.Now()); err != nil {
		return err
	}
	s.metrics.RecordBillingEvent(ctx, event.Type, outcome)
	return nil
}

func (s *Service) archive(ctx context.Context, event *paymentdomain.ProviderEvent) (*paymentdomain.EventRecord, bool, error) {
	record := &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        paymentdomain.ProviderStripe,
		ProviderEventID: event.ID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      s.clock.Now(),
	}
	if event.CustomerID != "" {
		customerID := event.CustomerID
		record.CustomerID = &customerID
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		return record, true, nil
	}

	existing, err := s.repo.FindEvent(ctx, s.db, paymentdomain.ProviderStripe, event.ID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return record, true, nil
	}
	return existing, false, nil
}

func (s *Service) apply(ctx context.Context, event *paymentdomain.ProviderEvent) (string, error) {
	log := s.log.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
	)

	var (
		found bool
		err   error
	)
	switch event.Type {
	case paymentdomain.EventSubscriptionCreated, paymentdomain.EventSubscriptionUpdated:
		if event.Subscription == nil {
			return "", paymentdomain.ErrInvalidPayload
		}
		found, err = s.subscriptionSvc.ApplyProviderUpdate(ctx, subscriptiondomain.ProviderUpdate{
			CustomerID:         event.CustomerID,
			SubscriptionID:     event.Subscription.ID,
			PriceID:            event.Subscription.PriceID,
			Status:             subscriptiondomain.SubscriptionStatus(strings.ToLower(event.Subscription.Status)),
			CurrentPeriodStart: event.Subscription.CurrentPeriodStart,
			CurrentPeriodEnd:   event.Subscription.CurrentPeriodEnd,
			CancelAtPeriodEnd:  event.Subscription.CancelAtPeriodEnd,
		})
	case paymentdomain.EventSubscriptionDeleted:
		found, err = s.subscriptionSvc.SetStatusByCustomer(ctx, event.CustomerID, subscriptiondomain.SubscriptionStatusCanceled)
	case paymentdomain.EventInvoicePaymentSuccess:
		if event.InvoiceSubscriptionID == "" {
			return "ignored", nil
		}
		found, err = s.subscriptionSvc.SetStatusByCustomer(ctx, event.CustomerID, subscriptiondomain.SubscriptionStatusActive)
	case paymentdomain.EventInvoicePaymentFailed:
		if event.InvoiceSubscriptionID == "" {
			return "ignored", nil
		}
		found, err = s.subscriptionSvc.SetStatusByCustomer(ctx, event.CustomerID, subscriptiondomain.SubscriptionStatusPastDue)
	default:
		log.Debug("unhandled billing event")
		return "ignored", nil
	}

	if errors.Is(err, subscriptiondomain.ErrInvalidCustomer) {
		found, err = false, nil
	}
	if err != nil {
		log.Error("apply billing event failed", zap.Error(err))
		return "", err
	}
	if !found {
		log.Warn("billing event for unknown customer", zap.String("customer_id", event.CustomerID))
		return "unknown_customer", nil
	}
	log.Info("billing event applied")
	return "processed", nil
}
