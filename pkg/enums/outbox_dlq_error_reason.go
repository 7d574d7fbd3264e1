package enums

// OutboxDLQErrorReason maps to the outbox_dlq.error_reason check constraint.
type OutboxDLQErrorReason string

const (
	// the topic kept failing until the row ran out of attempts
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// the topic rejected the message outright
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	// the envelope or gallery payload did not decode
	OutboxDLQReasonMalformedPayload OutboxDLQErrorReason = "malformed_payload"
	// no topic is registered for the event or aggregate
	OutboxDLQReasonUnroutable OutboxDLQErrorReason = "unroutable"
)

// IsValid reports whether the value matches a known dead-letter reason.
func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts,
		OutboxDLQReasonNonRetryable,
		OutboxDLQReasonMalformedPayload,
		OutboxDLQReasonUnroutable:
		return true
	}
	return false
}

// Replayable reports whether the row can be requeued unchanged once the
// topic or routing is fixed. Malformed rows need their payload repaired.
func (r OutboxDLQErrorReason) Replayable() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonUnroutable
}
