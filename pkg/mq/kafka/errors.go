package kafka

import "errors"

var (
	ErrInvalidConfig          = errors.New("kafka: invalid config")
	ErrProducerClosed         = errors.New("kafka: producer closed")
	ErrConsumerAlreadyRunning = errors.New("kafka: consumer already running")
	ErrEmptyGroupID           = errors.New("kafka: consumer group id is empty")
)
