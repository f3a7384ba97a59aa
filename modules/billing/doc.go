// Package billing exposes the HTTP surface of the billing system: the
// processor webhook endpoint, the cron trigger endpoints, and a small
// admin API for manual corrections and sync-run inspection.
//
// Each service exposes Handle() http.Handler and is mounted through
// Router, so deployments can choose which surfaces a given binary
// serves.
package billing
