// Package subscription owns the local mirror of processor-side
// subscription state: the plan catalog, the subscription and profile
// models, their Postgres stores, and the sync service that is the
// single write path for "subscription state mirrored from the
// processor".
//
// Both live webhook handlers and the reconciliation jobs write through
// Service.SyncFromProcessor, so the price-to-plan mapping and the
// period validation live in exactly one place. A price id the catalog
// does not know fails the sync loudly: granting credits for an unknown
// plan is worse than failing and alerting.
package subscription
