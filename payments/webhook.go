// webhook.go verifies and applies Stripe webhook events. Crediting happens
// here, not at checkout time, because only the webhook proves the payment
// settled.
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"

	"charforge/core"
	"charforge/credits"
	"charforge/logging"
)

// Webhook processes signed Stripe events and credits completed checkouts.
//
// Stripe redelivers events until acknowledged, so the same completion can
// arrive more than once. The ledger keys every purchase on the event ID,
// which turns redeliveries into no-ops.
type Webhook struct {
	secret string
	ledger *credits.Ledger
	log    *logging.Logger
}

// NewWebhook creates the webhook processor.
func NewWebhook(secret string, ledger *credits.Ledger, logger *logging.Logger) (*Webhook, error) {
	if secret == "" {
		return nil, fmt.Errorf("payments: webhook signing secret is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("payments: ledger cannot be nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Webhook{
		secret: secret,
		ledger: ledger,
		log:    logger.Named("webhook"),
	}, nil
}

// Process verifies the payload signature and applies the event.
//
// Returns the number of credits moved; zero for unrelated event types and
// redelivered events, with a nil error so the provider sees a 2xx and
// stops redelivering. A bad signature is a PaymentError the handler should
// turn into a 400.
func (w *Webhook) Process(ctx context.Context, payload []byte, signatureHeader string) (credited int64, err error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, w.secret)
	if err != nil {
		return 0, &core.PaymentError{Message: "webhook signature verification failed", Err: err}
	}

	switch event.Type {
	case "checkout.session.completed":
		return w.applyCheckoutCompleted(ctx, event)
	default:
		w.log.Debug("ignoring webhook event", zap.String("type", string(event.Type)))
		return 0, nil
	}
}

func (w *Webhook) applyCheckoutCompleted(ctx context.Context, event stripe.Event) (int64, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return 0, &core.PaymentError{Message: "malformed checkout session payload", Err: err}
	}

	userID := sess.Metadata["user_id"]
	pool := credits.Pool(sess.Metadata["pool"])
	creditAmount, parseErr := strconv.ParseInt(sess.Metadata["credits"], 10, 64)
	if userID == "" || parseErr != nil || creditAmount <= 0 {
		return 0, &core.PaymentError{
			Message: fmt.Sprintf("checkout session %s has invalid purchase metadata", sess.ID),
		}
	}

	applied, err := w.ledger.Purchase(ctx, userID, pool, creditAmount, event.ID)
	if err != nil {
		return 0, fmt.Errorf("payments: failed to credit purchase: %w", err)
	}
	if !applied {
		w.log.Info("webhook event already applied",
			zap.String("event_id", event.ID),
			zap.String("user_id", userID))
		return 0, nil
	}

	w.log.Info("credited completed checkout",
		zap.String("event_id", event.ID),
		zap.String("user_id", userID),
		zap.String("pool", string(pool)),
		zap.Int64("credits", creditAmount))
	return creditAmount, nil
}
