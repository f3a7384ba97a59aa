package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/pagelift/billing/pkg/credits"
	"github.com/pagelift/billing/pkg/ledger"
	"github.com/pagelift/billing/pkg/logger"
	"github.com/pagelift/billing/pkg/notify"
	"github.com/pagelift/billing/pkg/payment"
	"github.com/pagelift/billing/pkg/statemachine"
	"github.com/pagelift/billing/pkg/subscription"
)

// DisputeHoldPolicy converts a disputed money amount into a credit
// hold. Rounds up: a partial credit's worth of disputed money still
// holds a whole credit.
type DisputeHoldPolicy struct {
	CentsPerCredit int64
}

// DefaultDisputeHoldPolicy matches the product's $0.10-per-credit pricing.
var DefaultDisputeHoldPolicy = DisputeHoldPolicy{CentsPerCredit: 10}

// CreditsToHold returns the hold amount for a disputed cent total.
func (p DisputeHoldPolicy) CreditsToHold(amountCents int64) int64 {
	if amountCents <= 0 || p.CentsPerCredit <= 0 {
		return 0
	}
	return (amountCents + p.CentsPerCredit - 1) / p.CentsPerCredit
}

// HandlerSet holds the event handlers and their shared dependencies.
// Register the set on a Registry with RegisterAll.
type HandlerSet struct {
	ledger   ledger.Ledger
	sync     *subscription.Service
	subs     subscription.Store
	profiles subscription.ProfileStore
	disputes DisputeStore
	provider payment.Provider
	alerter  notify.Alerter
	policy   credits.Policy
	hold     DisputeHoldPolicy
	fsm      *statemachine.Machine[DisputeState]
	log      *slog.Logger
}

// HandlerOption adjusts optional HandlerSet behavior.
type HandlerOption func(*HandlerSet)

// WithCreditPolicy overrides the upgrade credit policy.
func WithCreditPolicy(p credits.Policy) HandlerOption {
	return func(h *HandlerSet) { h.policy = p }
}

// WithDisputeHoldPolicy overrides the cents-per-credit hold conversion.
func WithDisputeHoldPolicy(p DisputeHoldPolicy) HandlerOption {
	return func(h *HandlerSet) { h.hold = p }
}

// NewHandlerSet wires the handlers. All dependencies are required
// except the alerter, which degrades to log-only.
func NewHandlerSet(
	led ledger.Ledger,
	sync *subscription.Service,
	subs subscription.Store,
	profiles subscription.ProfileStore,
	disputes DisputeStore,
	provider payment.Provider,
	alerter notify.Alerter,
	log *slog.Logger,
	opts ...HandlerOption,
) *HandlerSet {
	if led == nil || sync == nil || subs == nil || profiles == nil || disputes == nil || provider == nil {
		panic("billing: all handler dependencies are required")
	}
	if log == nil {
		log = slog.Default()
	}
	if alerter == nil {
		alerter = notify.NewLogAlerter(log)
	}
	h := &HandlerSet{
		ledger:   led,
		sync:     sync,
		subs:     subs,
		profiles: profiles,
		disputes: disputes,
		provider: provider,
		alerter:  alerter,
		policy:   credits.DefaultPolicy,
		hold:     DefaultDisputeHoldPolicy,
		fsm:      disputeMachine(),
		log:      log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterAll binds every handler to its event type.
func (h *HandlerSet) RegisterAll(r *Registry) {
	r.Register(payment.EventCheckoutSessionCompleted, h.HandleCheckoutCompleted)
	r.Register(payment.EventChargeRefunded, h.HandleChargeRefunded)
	r.Register(payment.EventInvoicePaymentRefunded, h.HandleInvoiceRefunded)
	r.Register(payment.EventDisputeCreated, h.HandleDisputeCreated)
	r.Register(payment.EventDisputeUpdated, h.HandleDisputeUpdated)
	r.Register(payment.EventDisputeClosed, h.HandleDisputeClosed)
	r.Register(payment.EventSubscriptionCreated, h.HandleSubscriptionChanged)
	r.Register(payment.EventSubscriptionUpdated, h.HandleSubscriptionChanged)
	r.Register(payment.EventSubscriptionDeleted, h.HandleSubscriptionDeleted)
	r.Register(payment.EventInvoicePaymentSucceeded, h.HandleInvoicePaymentSucceeded)
	r.Register(payment.EventInvoicePaymentFailed, h.HandleInvoicePaymentFailed)
}

// resolveUser maps an event to the internal user. Checkout sessions
// carry the user id in metadata; everything else resolves through the
// stored processor customer id.
func (h *HandlerSet) resolveUser(ctx context.Context, metadata map[string]string, customerID string) (uuid.UUID, error) {
	if raw, ok := metadata["user_id"]; ok && raw != "" {
		id, err := uuid.Parse(raw)
		if err == nil {
			return id, nil
		}
		h.log.WarnContext(ctx, "unparseable user_id metadata, falling back to customer lookup",
			logger.Component("billing_handlers"),
			slog.String("user_id", raw))
	}
	p, err := h.profileForCustomer(ctx, customerID)
	if err != nil {
		return uuid.Nil, err
	}
	return p.UserID, nil
}

// profileForCustomer resolves the local profile for a processor
// customer. A missing profile propagates so the delivery is retried:
// the profile row may not be committed yet when the webhook races user
// signup.
func (h *HandlerSet) profileForCustomer(ctx context.Context, customerID string) (*subscription.Profile, error) {
	if customerID == "" {
		return nil, ErrMissingCustomerID
	}
	p, err := h.profiles.GetByCustomerID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("resolve customer %s: %w", customerID, err)
	}
	return p, nil
}

// HandleCheckoutCompleted grants credits for a finished checkout.
// Subscription checkouts grant the plan allowance; one-time purchases
// grant the credit amount from session metadata into the purchased
// pool.
func (h *HandlerSet) HandleCheckoutCompleted(ctx context.Context, ev *payment.Event) error {
	s := ev.Session
	if s == nil {
		return fmt.Errorf("event %s: %w", ev.ID, ErrMalformedEvent)
	}

	userID, err := h.resolveUser(ctx, s.Metadata, s.CustomerID)
	if err != nil {
		return err
	}

	switch s.Mode {
	case payment.ModeSubscription:
		return h.completeSubscriptionCheckout(ctx, userID, s)
	case payment.ModePayment:
		return h.completeCreditPackCheckout(ctx, userID, s)
	default:
		h.log.InfoContext(ctx, "ignoring checkout session with unrecognized mode",
			logger.Component("billing_handlers"),
			logger.EventID(ev.ID),
			slog.String("mode", string(s.Mode)))
		return nil
	}
}

func (h *HandlerSet) completeSubscriptionCheckout(ctx context.Context, userID uuid.UUID, s *payment.CheckoutSession) error {
	if s.SubscriptionID == "" {
		return fmt.Errorf("session %s has mode=subscription but no subscription: %w", s.ID, ErrMalformedEvent)
	}

	psub, err := h.provider.GetSubscription(ctx, s.SubscriptionID)
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", s.SubscriptionID, err)
	}
	if err := h.sync.SyncFromProcessor(ctx, userID, psub); err != nil {
		return err
	}

	plan, err := h.sync.Catalog().ByPriceID(psub.PriceID)
	if err != nil {
		return err
	}

	// Keyed by invoice when one exists so the renewal handler for the
	// same invoice dedups against this grant; session id is the
	// fallback for invoice-less checkouts.
	ref := ledger.SessionRef(s.ID)
	if s.InvoiceID != "" {
		ref = ledger.InvoiceRef(s.InvoiceID)
	}

	if err := h.ledger.AddSubscriptionCredits(ctx, userID, plan.CreditsPerCycle, ref,
		"Subscription credits: "+plan.Name); err != nil {
		return err
	}

	h.log.InfoContext(ctx, "checkout subscription credits granted",
		logger.Component("billing_handlers"),
		logger.UserID(userID),
		logger.SubscriptionID(psub.ID),
		logger.Credits(plan.CreditsPerCycle),
		logger.RefID(ref))
	return nil
}

func (h *HandlerSet) completeCreditPackCheckout(ctx context.Context, userID uuid.UUID, s *payment.CheckoutSession) error {
	raw := s.Metadata["credits"]
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || amount <= 0 {
		return fmt.Errorf("session %s credits=%q: %w", s.ID, raw, ErrInvalidCreditsMetadata)
	}
	if s.PaymentIntentID == "" {
		return fmt.Errorf("session %s has mode=payment but no payment intent: %w", s.ID, ErrMalformedEvent)
	}

	ref := ledger.PaymentIntentRef(s.PaymentIntentID)
	if err := h.ledger.AddPurchasedCredits(ctx, userID, amount, ref, "Credit pack purchase"); err != nil {
		return err
	}

	h.log.InfoContext(ctx, "credit pack granted",
		logger.Component("billing_handlers"),
		logger.UserID(userID),
		logger.Credits(amount),
		logger.RefID(ref))
	return nil
}

// HandleChargeRefunded reverses the grant that the refunded charge
// originally paid for. The correlation is by reference id: invoice
// first, payment intent as fallback. A refund that matches no recorded
// grant is logged and acknowledged, never blocked.
func (h *HandlerSet) HandleChargeRefunded(ctx context.Context, ev *payment.Event) error {
	c := ev.Charge
	if c == nil {
		return fmt.Errorf("event %s: %w", ev.ID, ErrMalformedEvent)
	}

	if c.AmountRefunded == 0 {
		h.log.InfoContext(ctx, "charge.refunded with zero amount, skipping",
			logger.Component("billing_handlers"),
			logger.EventID(ev.ID),
			slog.String("charge_id", c.ID))
		return nil
	}

	p, err := h.profileForCustomer(ctx, c.CustomerID)
	if err != nil {
		return err
	}

	var refs []string
	if c.InvoiceID != "" {
		refs = append(refs, ledger.InvoiceRef(c.InvoiceID))
	}
	if c.PaymentIntentID != "" {
		refs = append(refs, ledger.PaymentIntentRef(c.PaymentIntentID))
	}
	if len(refs) == 0 {
		return fmt.Errorf("charge %s has neither invoice nor payment intent: %w", c.ID, ErrMalformedEvent)
	}

	for _, ref := range refs {
		res, err := h.ledger.ClawbackFromTransaction(ctx, p.UserID, ref, "charge refunded")
		if errors.Is(err, ledger.ErrTransactionNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("clawback for refund of charge %s: %w", c.ID, err)
		}
		h.log.InfoContext(ctx, "refund clawback applied",
			logger.Component("billing_handlers"),
			logger.UserID(p.UserID),
			logger.RefID(ref),
			logger.Credits(res.CreditsClawedBack),
			logger.AmountCents(c.AmountRefunded))
		return nil
	}

	// No grant found under any reference. Swallow: the refund of a
	// payment we never granted for must not bounce forever on the
	// processor's retry schedule.
	h.log.WarnContext(ctx, "refund could not be correlated to a credit grant",
		logger.Component("billing_handlers"),
		logger.UserID(p.UserID),
		logger.EventID(ev.ID),
		slog.String("charge_id", c.ID),
		slog.Any("refs_tried", refs))
	return nil
}

// HandleInvoiceRefunded reverses the grant recorded under the refunded
// invoice.
func (h *HandlerSet) HandleInvoiceRefunded(ctx context.Context, ev *payment.Event) error {
	inv := ev.Invoice
	if inv == nil {
		return fmt.Errorf("event %s: %w", ev.ID, ErrMalformedEvent)
	}

	p, err := h.profileForCustomer(ctx, inv.CustomerID)
	if err != nil {
		return err
	}

	ref := ledger.InvoiceRef(inv.ID)
	res, err := h.ledger.ClawbackFromTransaction(ctx, p.UserID, ref, "invoice payment refunded")
	if errors.Is(err, ledger.ErrTransactionNotFound) {
		h.log.WarnContext(ctx, "invoice refund without a matching grant",
			logger.Component("billing_handlers"),
			logger.UserID(p.UserID),
			logger.RefID(ref))
		return nil
	}
	if err != nil {
		return fmt.Errorf("clawback for refunded invoice %s: %w", inv.ID, err)
	}

	h.log.InfoContext(ctx, "invoice refund clawback applied",
		logger.Component("billing_handlers"),
		logger.UserID(p.UserID),
		logger.RefID(ref),
		logger.Credits(res.CreditsClawedBack))
	return nil
}

// HandleDisputeCreated flags the account and holds credits worth the
// disputed amount. The flag and the audit record must land; the hold
// itself is best effort because the balance may already be spent.
func (h *HandlerSet) HandleDisputeCreated(ctx context.Context, ev *payment.Event) error {
	d := ev.Dispute
	if d == nil {
		return fmt.Errorf("event %s: %w", ev.ID, ErrMalformedEvent)
	}
	if d.ChargeID == "" {
		return fmt.Errorf("dispute %s: %w", d.ID, ErrMissingChargeID)
	}

	// Disputes reference a charge, not a customer; resolve through the
	// processor.
	charge, err := h.provider.GetCharge(ctx, d.ChargeID)
	if err != nil {
		return fmt.Errorf("fetch disputed charge %s: %w", d.ChargeID, err)
	}
	p, err := h.profileForCustomer(ctx, charge.CustomerID)
	if err != nil {
		return err
	}

	if err := h.profiles.SetDisputeStatus(ctx, p.UserID, subscription.DisputePending); err != nil {
		return fmt.Errorf("flag profile %s for dispute: %w", p.UserID, err)
	}

	hold := h.hold.CreditsToHold(d.AmountCents)
	var held int64
	res, err := h.ledger.ClawbackCredits(ctx, p.UserID, hold, "dispute hold", ledger.DisputeRef(d.ID), ledger.PoolAuto)
	if err != nil {
		// The hold is advisory. The pending flag already blocks
		// credit-consuming actions, so a failed hold is logged, not
		// fatal.
		h.log.ErrorContext(ctx, "dispute credit hold failed",
			logger.Component("billing_handlers"),
			logger.UserID(p.UserID),
			logger.DisputeID(d.ID),
			logger.Credits(hold),
			logger.Error(err))
	} else {
		held = res.CreditsClawedBack
	}

	if err := h.disputes.Upsert(ctx, &DisputeRecord{
		DisputeID:   d.ID,
		UserID:      p.UserID,
		ChargeID:    d.ChargeID,
		AmountCents: d.AmountCents,
		CreditsHeld: held,
		State:       DisputeCreated,
	}); err != nil {
		return fmt.Errorf("record dispute %s: %w", d.ID, err)
	}

	h.log.WarnContext(ctx, "dispute opened",
		logger.Component("billing_handlers"),
		logger.UserID(p.UserID),
		logger.DisputeID(d.ID),
		logger.AmountCents(d.AmountCents),
		logger.Credits(held))

	if err := h.alerter.Alert(ctx, notify.Alert{
		Subject: "Chargeback opened: " + d.ID,
		Body: fmt.Sprintf("User %s disputed charge %s for %d cents. %d credits held.",
			p.UserID, d.ChargeID, d.AmountCents, held),
		Tag: "dispute",
	}); err != nil {
		h.log.ErrorContext(ctx, "dispute alert delivery failed",
			logger.Component("billing_handlers"),
			logger.DisputeID(d.ID),
			logger.Error(err))
	}
	return nil
}

// HandleDisputeUpdated advances the dispute record. A "won" verdict
// resolves the profile flag.
func (h *HandlerSet) HandleDisputeUpdated(ctx context.Context, ev *payment.Event) error {
	d := ev.Dispute
	if d == nil {
		return fmt.Errorf("event %s: %w", ev.ID, ErrMalformedEvent)
	}
	target := DisputeUpdated
	if payment.DisputeStatus(d.Status) == payment.DisputeWon {
		target = DisputeWon
	}
	return h.advanceDispute(ctx, ev, d, target)
}

// HandleDisputeClosed terminates the dispute record. Won closures also
// resolve the profile flag; lost closures keep the hold in place.
func (h *HandlerSet) HandleDisputeClosed(ctx context.Context, ev *payment.Event) error {
	d := ev.Dispute
	if d == nil {
		return fmt.Errorf("event %s: %w", ev.ID, ErrMalformedEvent)
	}
	target := DisputeClosed
	if payment.DisputeStatus(d.Status) == payment.DisputeWon {
		target = DisputeWon
	}
	return h.advanceDispute(ctx, ev, d, target)
}

func (h *HandlerSet) advanceDispute(ctx context.Context, ev *payment.Event, d *payment.Dispute, target DisputeState) error {
	rec, err := h.disputes.Get(ctx, d.ID)
	if errors.Is(err, ErrDisputeNotFound) {
		// Update arrived before (or without) the created event. Nothing
		// to advance; the created handler builds the record.
		h.log.WarnContext(ctx, "dispute update for unknown dispute",
			logger.Component("billing_handlers"),
			logger.EventID(ev.ID),
			logger.DisputeID(d.ID))
		return nil
	}
	if err != nil {
		return err
	}

	if err := h.fsm.Transition(rec.State, target); err != nil {
		// Stale or out-of-order delivery against a terminal record.
		h.log.InfoContext(ctx, "ignoring stale dispute transition",
			logger.Component("billing_handlers"),
			logger.DisputeID(d.ID),
			slog.String("from", string(rec.State)),
			slog.String("to", string(target)))
		return nil
	}
	if rec.State == target {
		return nil
	}

	if err := h.disputes.SetState(ctx, d.ID, target); err != nil {
		return err
	}
	if target == DisputeWon {
		if err := h.profiles.SetDisputeStatus(ctx, rec.UserID, subscription.DisputeResolved); err != nil {
			return err
		}
	}

	h.log.InfoContext(ctx, "dispute state advanced",
		logger.Component("billing_handlers"),
		logger.DisputeID(d.ID),
		slog.String("from", string(rec.State)),
		slog.String("to", string(target)))
	return nil
}

// HandleSubscriptionChanged syncs created and updated subscription
// events and applies tier-change credit policy when the price moved.
func (h *HandlerSet) HandleSubscriptionChanged(ctx context.Context, ev *payment.Event) error {
	psub := ev.Subscription
	if psub == nil {
		return fmt.Errorf("event %s: %w", ev.ID, ErrMalformedEvent)
	}

	p, err := h.profileForCustomer(ctx, psub.CustomerID)
	if err != nil {
		return err
	}

	prevPriceID := ""
	existing, err := h.subs.GetByProviderID(ctx, psub.ID)
	switch {
	case errors.Is(err, subscription.ErrNotFound):
		// First sight of this subscription; nothing to compare against.
	case err != nil:
		return err
	default:
		prevPriceID = existing.PriceID
	}

	if err := h.sync.SyncFromProcessor(ctx, p.UserID, psub); err != nil {
		return err
	}

	if prevPriceID != "" && prevPriceID != psub.PriceID {
		return h.applyPlanChange(ctx, p.UserID, prevPriceID, psub)
	}
	return nil
}

// applyPlanChange grants the tier difference on upgrades, subject to
// the farming check, and leaves balances untouched on downgrades.
func (h *HandlerSet) applyPlanChange(ctx context.Context, userID uuid.UUID, prevPriceID string, psub *payment.Subscription) error {
	catalog := h.sync.Catalog()

	prevPlan, err := catalog.ByPriceID(prevPriceID)
	if err != nil {
		// The old price left the catalog; without its allowance there is
		// no tier difference to grant.
		h.log.WarnContext(ctx, "previous price not in catalog, skipping plan-change grant",
			logger.Component("billing_handlers"),
			logger.UserID(userID),
			slog.String("price_id", prevPriceID))
		return nil
	}
	newPlan, err := catalog.ByPriceID(psub.PriceID)
	if err != nil {
		return err
	}

	switch {
	case newPlan.CreditsPerCycle > prevPlan.CreditsPerCycle:
		bal, err := h.ledger.Balance(ctx, userID)
		if err != nil {
			return err
		}
		dec, err := h.policy.CalculateUpgradeCredits(bal.Total(), prevPlan.CreditsPerCycle, newPlan.CreditsPerCycle)
		if err != nil {
			return err
		}

		h.log.InfoContext(ctx, "upgrade credit decision",
			logger.Component("billing_handlers"),
			logger.UserID(userID),
			logger.SubscriptionID(psub.ID),
			slog.String("decision", dec.Explain(bal.Total(), prevPlan.CreditsPerCycle, newPlan.CreditsPerCycle)))

		if dec.CreditsToAdd <= 0 {
			return nil
		}
		ref := ledger.UpgradeRef(psub.ID, psub.CurrentPeriodStart)
		return h.ledger.AddSubscriptionCredits(ctx, userID, dec.CreditsToAdd, ref,
			"Upgrade to "+newPlan.Name)

	case newPlan.CreditsPerCycle < prevPlan.CreditsPerCycle:
		dec := credits.CalculateDowngradeCredits()
		h.log.InfoContext(ctx, "downgrade keeps existing balance",
			logger.Component("billing_handlers"),
			logger.UserID(userID),
			logger.SubscriptionID(psub.ID),
			slog.String("reason", string(dec.Reason)))
		return nil

	default:
		// Same allowance (e.g. monthly to annual). No credit action.
		return nil
	}
}

// HandleSubscriptionDeleted terminates the local mirror.
func (h *HandlerSet) HandleSubscriptionDeleted(ctx context.Context, ev *payment.Event) error {
	psub := ev.Subscription
	if psub == nil {
		return fmt.Errorf("event %s: %w", ev.ID, ErrMalformedEvent)
	}

	p, err := h.profileForCustomer(ctx, psub.CustomerID)
	if err != nil {
		return err
	}

	if err := h.sync.MarkCanceled(ctx, p.UserID, psub.ID); err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			h.log.WarnContext(ctx, "deletion for unknown subscription",
				logger.Component("billing_handlers"),
				logger.UserID(p.UserID),
				logger.SubscriptionID(psub.ID))
			return nil
		}
		return err
	}
	return nil
}

// HandleInvoicePaymentSucceeded grants the renewal allowance, capped so
// the subscription pool never exceeds the plan's rollover limit. The
// grant is keyed by invoice id, so the checkout handler's grant for the
// first invoice dedups here automatically.
func (h *HandlerSet) HandleInvoicePaymentSucceeded(ctx context.Context, ev *payment.Event) error {
	inv := ev.Invoice
	if inv == nil {
		return fmt.Errorf("event %s: %w", ev.ID, ErrMalformedEvent)
	}
	if inv.SubscriptionID == "" {
		// One-off invoice, not a renewal.
		h.log.DebugContext(ctx, "ignoring invoice without subscription",
			logger.Component("billing_handlers"),
			logger.EventID(ev.ID))
		return nil
	}

	p, err := h.profileForCustomer(ctx, inv.CustomerID)
	if err != nil {
		return err
	}

	psub, err := h.provider.GetSubscription(ctx, inv.SubscriptionID)
	if err != nil {
		return fmt.Errorf("fetch subscription %s for renewal: %w", inv.SubscriptionID, err)
	}
	if err := h.sync.SyncFromProcessor(ctx, p.UserID, psub); err != nil {
		return err
	}

	plan, err := h.sync.Catalog().ByPriceID(psub.PriceID)
	if err != nil {
		return err
	}

	grant := plan.CreditsPerCycle
	if plan.MaxRollover > 0 {
		bal, err := h.ledger.Balance(ctx, p.UserID)
		if err != nil {
			return err
		}
		if headroom := plan.MaxRollover - bal.SubscriptionCredits; headroom < grant {
			grant = max(headroom, 0)
		}
	}
	if grant <= 0 {
		h.log.InfoContext(ctx, "renewal grant fully absorbed by rollover cap",
			logger.Component("billing_handlers"),
			logger.UserID(p.UserID),
			logger.SubscriptionID(psub.ID))
		return nil
	}

	ref := ledger.InvoiceRef(inv.ID)
	if err := h.ledger.AddSubscriptionCredits(ctx, p.UserID, grant, ref,
		"Subscription renewal: "+plan.Name); err != nil {
		return err
	}

	h.log.InfoContext(ctx, "renewal credits granted",
		logger.Component("billing_handlers"),
		logger.UserID(p.UserID),
		logger.SubscriptionID(psub.ID),
		logger.Credits(grant),
		logger.RefID(ref))
	return nil
}

// HandleInvoicePaymentFailed moves the profile mirror to past_due. The
// subscription row itself is corrected by the next sync or by
// reconciliation.
func (h *HandlerSet) HandleInvoicePaymentFailed(ctx context.Context, ev *payment.Event) error {
	inv := ev.Invoice
	if inv == nil {
		return fmt.Errorf("event %s: %w", ev.ID, ErrMalformedEvent)
	}
	if inv.SubscriptionID == "" {
		return nil
	}

	p, err := h.profileForCustomer(ctx, inv.CustomerID)
	if err != nil {
		return err
	}

	status := subscription.StatusPastDue
	if err := h.profiles.UpdateSubscriptionState(ctx, p.UserID, &status, p.SubscriptionTier); err != nil {
		return err
	}

	h.log.WarnContext(ctx, "renewal payment failed",
		logger.Component("billing_handlers"),
		logger.UserID(p.UserID),
		logger.SubscriptionID(inv.SubscriptionID))
	return nil
}
