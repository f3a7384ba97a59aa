// Package notify delivers admin alerts for billing incidents that need
// a human: new chargebacks, clawback failures, reconciliation anomalies.
//
// Alerts are best-effort by design. A failed delivery is logged and
// never propagates into the event handler that raised it - protecting
// the account state matters more than the page.
package notify
