package domain

// Idempotent wraps a command result that may have been a no-op because the
// matching event already exists in the log. Retried commands receive Ignored
// instead of an error or a duplicate event.
type Idempotent[T any] struct {
	Ignored bool
	Value   T
}

func IdempotentApplied[T any](v T) Idempotent[T] {
	return Idempotent[T]{Value: v}
}

func IdempotentIgnored[T any]() Idempotent[T] {
	return Idempotent[T]{Ignored: true}
}

// eventExists scans the log for an event matching pred. Mutators use this as
// their idempotency guard before emitting.
func eventExists(events []FacilityEvent, pred func(FacilityEvent) bool) bool {
	for _, e := range events {
		if pred(e) {
			return true
		}
	}
	return false
}
