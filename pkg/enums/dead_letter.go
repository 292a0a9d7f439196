package enums

// DeadLetterReason maps to the dead_letter_reason enum in Postgres.
type DeadLetterReason string

const (
	DeadLetterReasonMaxAttempts  DeadLetterReason = "max_attempts"
	DeadLetterReasonNonRetryable DeadLetterReason = "non_retryable"
)

var validDeadLetterReasons = []DeadLetterReason{
	DeadLetterReasonMaxAttempts,
	DeadLetterReasonNonRetryable,
}

func (r DeadLetterReason) IsValid() bool {
	for _, candidate := range validDeadLetterReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// DeadLetterSource maps to the dead_letter_source enum in Postgres and
// records which side of the relay gave up on the message.
type DeadLetterSource string

const (
	DeadLetterSourcePublisher DeadLetterSource = "publisher"
	DeadLetterSourceConsumer  DeadLetterSource = "consumer"
)

var validDeadLetterSources = []DeadLetterSource{
	DeadLetterSourcePublisher,
	DeadLetterSourceConsumer,
}

func (s DeadLetterSource) IsValid() bool {
	for _, candidate := range validDeadLetterSources {
		if candidate == s {
			return true
		}
	}
	return false
}
