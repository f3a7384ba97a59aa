// Package credits implements the pure credit-grant policy applied when a
// user changes subscription tiers.
//
// The policy is deliberately conservative: an upgrade grants only the
// difference between the new and previous tier allowances, and a balance
// far above what the previous tier could plausibly have accumulated
// (rollover plus ad-hoc purchases) is treated as credit farming and
// granted nothing. Downgrades never claw anything back; the next renewal
// cycle rebalances naturally.
//
// Everything in this package is side-effect free so the policy can be
// unit tested exhaustively and reused from both live webhook handlers
// and offline tooling.
package credits
