package ledger

import (
	"strconv"
	"strings"
)

// Reference-id conventions. Refund and dispute correlation depend on
// literal string matching against these prefixes, so every grant and
// clawback must build its reference through these helpers.
const (
	refPrefixInvoice       = "invoice_"
	refPrefixSession       = "session_"
	refPrefixPaymentIntent = "pi_"
	refPrefixDispute       = "dispute_"
	refPrefixAdjustment    = "adjust_"
	refPrefixUpgrade       = "upgrade_"
)

// InvoiceRef keys a mutation to a processor invoice. Preferred for
// subscription-driven grants and clawbacks.
func InvoiceRef(invoiceID string) string { return refPrefixInvoice + invoiceID }

// SessionRef keys a mutation to a checkout session. Fallback when a
// checkout produced no invoice.
func SessionRef(sessionID string) string { return refPrefixSession + sessionID }

// PaymentIntentRef keys a mutation to a payment intent (one-time credit packs).
func PaymentIntentRef(paymentIntentID string) string {
	// Stripe payment intent ids already carry the pi_ prefix; don't double it.
	if strings.HasPrefix(paymentIntentID, refPrefixPaymentIntent) {
		return paymentIntentID
	}
	return refPrefixPaymentIntent + paymentIntentID
}

// DisputeRef keys a mutation to a processor dispute (credit holds).
func DisputeRef(disputeID string) string { return refPrefixDispute + disputeID }

// AdjustmentRef keys a manual admin correction.
func AdjustmentRef(id string) string { return refPrefixAdjustment + id }

// UpgradeRef keys a tier-upgrade grant to the subscription and the
// billing period it started in. Internal only: no refund path
// correlates against it.
func UpgradeRef(subscriptionID string, periodStart int64) string {
	return refPrefixUpgrade + subscriptionID + "_" + strconv.FormatInt(periodStart, 10)
}
