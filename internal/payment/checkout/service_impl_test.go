package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/htmlpdf/internal/clock"
	"github.com/smallbiznis/htmlpdf/internal/config"
	"github.com/smallbiznis/htmlpdf/internal/migration"
	paymentdomain "github.com/smallbiznis/htmlpdf/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/htmlpdf/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/htmlpdf/internal/subscription/repository"
	subscriptionsvc "github.com/smallbiznis/htmlpdf/internal/subscription/service"
	"github.com/smallbiznis/htmlpdf/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type gatewayMock struct {
	mock.Mock
}

func (m *gatewayMock) CreateCustomer(ctx context.Context, userID, email string) (string, error) {
	args := m.Called(ctx, userID, email)
	return args.String(0), args.Error(1)
}

func (m *gatewayMock) CreateCheckoutSession(ctx context.Context, params paymentdomain.CheckoutSessionParams) (string, error) {
	args := m.Called(ctx, params)
	return args.String(0), args.Error(1)
}

func newCheckout(t *testing.T, gateway paymentdomain.Gateway) (paymentdomain.CheckoutService, subscriptiondomain.Service) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	subs := subscriptionsvc.New(subscriptionsvc.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  subscriptionrepo.Provide(),
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
	})

	svc := NewService(Params{
		Log: zap.NewNop(),
		Cfg: config.Config{Stripe: config.StripeConfig{
			ProPriceID:        "price_pro",
			EnterprisePriceID: "price_ent",
			AppURL:            "https://app.example.com",
		}},
		Gateway:         gateway,
		SubscriptionSvc: subs,
	})
	return svc, subs
}

func TestCreateSessionCreatesCustomerOnce(t *testing.T) {
	gateway := &gatewayMock{}
	svc, subs := newCheckout(t, gateway)
	ctx := context.Background()

	gateway.On("CreateCustomer", mock.Anything, "user-1", "a@example.com").Return("cus_1", nil).Once()
	gateway.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(p paymentdomain.CheckoutSessionParams) bool {
		return p.CustomerID == "cus_1" && p.PriceID == "price_pro" &&
			p.SuccessURL == "https://app.example.com/dashboard?success=true"
	})).Return("https://checkout.example.com/s/1", nil).Twice()

	resp, err := svc.CreateSession(ctx, "user-1", paymentdomain.CheckoutRequest{Email: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example.com/s/1", resp.URL)

	sub, err := subs.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", sub.StripeCustomerID)

	_, err = svc.CreateSession(ctx, "user-1", paymentdomain.CheckoutRequest{Email: "a@example.com"})
	require.NoError(t, err)
	gateway.AssertExpectations(t)
}

func TestCreateSessionResolvesPlan(t *testing.T) {
	gateway := &gatewayMock{}
	svc, _ := newCheckout(t, gateway)

	gateway.On("CreateCustomer", mock.Anything, mock.Anything, mock.Anything).Return("cus_1", nil)
	gateway.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(p paymentdomain.CheckoutSessionParams) bool {
		return p.PriceID == "price_ent"
	})).Return("https://checkout.example.com/s/2", nil)

	_, err := svc.CreateSession(context.Background(), "user-1", paymentdomain.CheckoutRequest{Plan: "Enterprise"})
	require.NoError(t, err)

	_, err = svc.CreateSession(context.Background(), "user-1", paymentdomain.CheckoutRequest{Plan: "platinum"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPrice)
}

func TestCreateSessionErrors(t *testing.T) {
	svc, _ := newCheckout(t, nil)
	_, err := svc.CreateSession(context.Background(), "user-1", paymentdomain.CheckoutRequest{})
	assert.ErrorIs(t, err, paymentdomain.ErrNotConfigured)

	gateway := &gatewayMock{}
	svc, _ = newCheckout(t, gateway)
	_, err = svc.CreateSession(context.Background(), " ", paymentdomain.CheckoutRequest{})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidUser)

	gateway.On("CreateCustomer", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("stripe down"))
	_, err = svc.CreateSession(context.Background(), "user-1", paymentdomain.CheckoutRequest{})
	assert.EqualError(t, err, "stripe down")
}
