// Package billing maps inbound processor lifecycle events onto ledger
// mutations and local account state.
//
// Each event type has one handler, registered in a Registry and invoked
// through the Dispatcher, which also records delivery outcomes for the
// recovery job. Handlers are idempotent under redelivery: every ledger
// mutation is keyed by a reference id the ledger dedups on, so replays
// and out-of-order deliveries cannot double-apply credits.
//
// Error handling follows a strict taxonomy. Malformed payloads fail
// without retry; transient infrastructure errors propagate so the
// processor redelivers; a refund that cannot be correlated to its
// original grant is logged and swallowed, because blocking a legitimate
// refund is worse than losing the trace.
package billing
