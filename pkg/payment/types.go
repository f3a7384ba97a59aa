package payment

// EventType is the processor's event name. The literal values follow the
// processor's dotted naming since webhook payloads carry them verbatim.
type EventType string

const (
	EventCheckoutSessionCompleted EventType = "checkout.session.completed"
	EventChargeRefunded           EventType = "charge.refunded"
	EventInvoicePaymentRefunded   EventType = "invoice.payment_refunded"
	EventDisputeCreated           EventType = "charge.dispute.created"
	EventDisputeUpdated           EventType = "charge.dispute.updated"
	EventDisputeClosed            EventType = "charge.dispute.closed"
	EventSubscriptionCreated      EventType = "customer.subscription.created"
	EventSubscriptionUpdated      EventType = "customer.subscription.updated"
	EventSubscriptionDeleted      EventType = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded  EventType = "invoice.payment_succeeded"
	EventInvoicePaymentFailed     EventType = "invoice.payment_failed"
)

// CheckoutMode distinguishes subscription checkouts from one-time
// credit-pack purchases.
type CheckoutMode string

const (
	ModeSubscription CheckoutMode = "subscription"
	ModePayment      CheckoutMode = "payment"
)

// SubscriptionStatus mirrors the processor's subscription states.
type SubscriptionStatus string

const (
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionTrialing   SubscriptionStatus = "trialing"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionCanceled   SubscriptionStatus = "canceled"
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
)

// DisputeStatus mirrors the processor's dispute verdict vocabulary for
// the states this system reacts to.
type DisputeStatus string

const (
	DisputeWon  DisputeStatus = "won"
	DisputeLost DisputeStatus = "lost"
)

// Event is one inbound processor event. Exactly one of the object
// fields is populated, matching the event type.
type Event struct {
	ID   string
	Type EventType

	Session      *CheckoutSession
	Charge       *Charge
	Invoice      *Invoice
	Dispute      *Dispute
	Subscription *Subscription
}

// CheckoutSession is the subset of a checkout session the handlers use.
type CheckoutSession struct {
	ID              string
	Mode            CheckoutMode
	CustomerID      string
	SubscriptionID  string
	InvoiceID       string
	PaymentIntentID string
	// Metadata carries application-provided values, notably the credit
	// amount of one-time packs and the internal user id.
	Metadata map[string]string
}

// Charge is the subset of a charge used by refund and dispute handling.
type Charge struct {
	ID              string
	CustomerID      string
	InvoiceID       string
	PaymentIntentID string
	AmountRefunded  int64 // cents
}

// Invoice is the subset of an invoice used by refund and renewal handling.
type Invoice struct {
	ID             string
	CustomerID     string
	SubscriptionID string
	AmountPaid     int64 // cents
}

// Dispute is the subset of a dispute the dispute handlers use.
type Dispute struct {
	ID          string
	ChargeID    string
	AmountCents int64
	Status      string
}

// Subscription is the locally-typed mirror of a processor subscription.
// Period bounds stay as unix seconds here; the sync service validates
// and converts them, failing loudly on zero values.
type Subscription struct {
	ID                 string
	CustomerID         string
	Status             SubscriptionStatus
	PriceID            string
	CurrentPeriodStart int64
	CurrentPeriodEnd   int64
	CancelAtPeriodEnd  bool
	CanceledAt         int64 // unix seconds, zero when not canceled
}
