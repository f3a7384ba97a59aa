package logger

import "log/slog"

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
// If id is nil, it returns an empty Attr.
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// EventID records the processor event identifier under the key "event_id".
func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}

// EventType records the processor event type under the key "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// RefID records a ledger reference id under the key "ref_id".
func RefID(id string) slog.Attr {
	return slog.String("ref_id", id)
}

// Job records the maintenance job name under the key "job".
func Job(name string) slog.Attr {
	return slog.String("job", name)
}

// SyncRunID records the sync run identifier under the key "sync_run_id".
func SyncRunID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("sync_run_id", id)
}

// SubscriptionID records the processor subscription id under the key "subscription_id".
func SubscriptionID(id string) slog.Attr {
	return slog.String("subscription_id", id)
}

// DisputeID records the processor dispute id under the key "dispute_id".
func DisputeID(id string) slog.Attr {
	return slog.String("dispute_id", id)
}

// Credits records a credit amount under the key "credits".
func Credits(amount int64) slog.Attr {
	return slog.Int64("credits", amount)
}

// AmountCents records a monetary amount in cents under the key "amount_cents".
func AmountCents(amount int64) slog.Attr {
	return slog.Int64("amount_cents", amount)
}

// Pool records the credit pool name under the key "pool".
func Pool(pool string) slog.Attr {
	return slog.String("pool", pool)
}

// RetryCount records the retry count under the key "retry_count".
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}
