// Package reconcile implements the scheduled safety net under the
// webhook pipeline: expiration checks for subscriptions whose renewal
// events went missing, full drift reconciliation against live processor
// state, and replay of failed webhook deliveries.
//
// Every job records a sync run with processed/discrepancy/fixed/failed
// counts. Jobs never abort on a single item: each subscription or event
// is handled independently and failures are counted, because one broken
// record must not starve the rest of the population of correction.
package reconcile
