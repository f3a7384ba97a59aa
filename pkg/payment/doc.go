// Package payment is the boundary to the payment processor.
//
// It defines a local, validated schema for exactly the subset of
// processor objects the billing core consumes, plus the Provider
// interface the rest of the system depends on. The Stripe adapter is
// the only code allowed to touch stripe-go types; everything behind the
// boundary works with the local schema, so processor SDK upgrades and
// untyped escape hatches stay contained in one file.
package payment
