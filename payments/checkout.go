// Package payments integrates the Stripe payment provider: creating
// checkout sessions for credit purchases and crediting completed payments
// from webhook events.
package payments

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/checkout/session"

	"charforge/core"
	"charforge/credits"
	"charforge/logging"
)

// Custom purchase bounds, in credits.
const (
	MinCustomCredits = 10
	MaxCustomCredits = 5000

	// CentsPerCredit prices custom purchases.
	CentsPerCredit = 5
)

// Pack is a predefined credit bundle.
type Pack struct {
	ID          string
	Name        string
	Credits     int64
	AmountCents int64
}

// Packs are the predefined bundles, priced with a volume discount over the
// custom per-credit rate.
var Packs = map[string]Pack{
	"starter":  {ID: "starter", Name: "Starter Pack", Credits: 100, AmountCents: 500},
	"standard": {ID: "standard", Name: "Standard Pack", Credits: 300, AmountCents: 1200},
	"studio":   {ID: "studio", Name: "Studio Pack", Credits: 1000, AmountCents: 3500},
}

// Checkout creates Stripe Checkout sessions for credit purchases.
//
// The purchased amount travels in the session metadata and comes back on
// the completion webhook; nothing is credited until the webhook arrives.
type Checkout struct {
	successURL string
	cancelURL  string
	log        *logging.Logger

	// createSession is the Stripe call, injectable for tests.
	createSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// CheckoutConfig configures the Checkout service.
type CheckoutConfig struct {
	// SecretKey is the Stripe secret key (required).
	SecretKey string

	// SuccessURL and CancelURL are where Stripe redirects the buyer.
	SuccessURL string
	CancelURL  string

	// Logger for diagnostics (default: nop).
	Logger *logging.Logger
}

// NewCheckout creates the checkout service and installs the Stripe key.
func NewCheckout(cfg CheckoutConfig) (*Checkout, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("payments: Stripe secret key is required")
	}
	if cfg.SuccessURL == "" || cfg.CancelURL == "" {
		return nil, fmt.Errorf("payments: success and cancel URLs are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}

	stripe.Key = cfg.SecretKey

	return &Checkout{
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		log:           cfg.Logger.Named("checkout"),
		createSession: session.New,
	}, nil
}

// Purchase describes what a checkout session buys.
type Purchase struct {
	// PackID selects a predefined bundle. Mutually exclusive with Credits.
	PackID string

	// Credits is a custom amount within [MinCustomCredits, MaxCustomCredits].
	Credits int64
}

// resolve turns a purchase request into a concrete line item.
func (p Purchase) resolve() (name string, creditAmount, amountCents int64, err error) {
	switch {
	case p.PackID != "" && p.Credits != 0:
		return "", 0, 0, &core.ValidationError{
			Field:   "pack",
			Message: "specify either a pack or a custom credit amount, not both",
		}
	case p.PackID != "":
		pack, ok := Packs[p.PackID]
		if !ok {
			return "", 0, 0, &core.ValidationError{
				Field:   "pack",
				Message: fmt.Sprintf("unknown pack %q", p.PackID),
			}
		}
		return pack.Name, pack.Credits, pack.AmountCents, nil
	case p.Credits != 0:
		if p.Credits < MinCustomCredits || p.Credits > MaxCustomCredits {
			return "", 0, 0, &core.ValidationError{
				Field:   "credits",
				Message: fmt.Sprintf("custom amount must be between %d and %d credits", MinCustomCredits, MaxCustomCredits),
			}
		}
		name = fmt.Sprintf("%d Credits", p.Credits)
		return name, p.Credits, p.Credits * CentsPerCredit, nil
	default:
		return "", 0, 0, &core.ValidationError{
			Field:   "pack",
			Message: "a pack or a custom credit amount is required",
		}
	}
}

// CreateSession opens a Stripe Checkout session for the purchase and
// returns its redirect URL.
func (c *Checkout) CreateSession(ctx context.Context, userID string, pool credits.Pool, purchase Purchase) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("payments: user ID is required")
	}
	name, creditAmount, amountCents, err := purchase.resolve()
	if err != nil {
		return "", err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(c.successURL),
		CancelURL:  stripe.String(c.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(string(stripe.CurrencyUSD)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(name),
					},
					UnitAmount: stripe.Int64(amountCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID)
	params.AddMetadata("pool", string(pool))
	params.AddMetadata("credits", strconv.FormatInt(creditAmount, 10))

	sess, err := c.createSession(params)
	if err != nil {
		return "", &core.PaymentError{Message: "failed to create checkout session", Err: err}
	}
	if sess.URL == "" {
		return "", &core.PaymentError{Message: "checkout session has no redirect URL"}
	}
	return sess.URL, nil
}
