// Package pg provides the PostgreSQL plumbing shared by the billing
// stores: a retrying pgxpool connector, goose migrations served from an
// embedded filesystem, error classification helpers and a health check.
//
// Every local table (profiles, subscriptions, credit transactions,
// dispute events, sync runs, webhook events) and the transactional
// ledger procedures live in the same database, so a single pool is
// created in the composition root and shared by all stores.
package pg
