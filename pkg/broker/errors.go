package broker

import "github.com/venicegeo/fusion/pkg/errors"

// Error codes for broker operations.
const (
	CodeConnectionFailed    = "BROKER_CONN_FAILED"
	CodeTopicNotFound       = "BROKER_TOPIC_NOT_FOUND"
	CodePublishFailed       = "BROKER_PUBLISH_FAILED"
	CodeConsumeFailed       = "BROKER_CONSUME_FAILED"
	CodeTimeout             = "BROKER_TIMEOUT"
	CodeClosed              = "BROKER_CLOSED"
	CodeInvalidConfig       = "BROKER_INVALID_CONFIG"
	CodeSerializationFailed = "BROKER_SERIALIZATION_FAILED"
	CodeTopicCreateFailed   = "BROKER_TOPIC_CREATE_FAILED"
	CodeTopicDeleteFailed   = "BROKER_TOPIC_DELETE_FAILED"
)

// ErrConnectionFailed creates an error for broker connection failures.
func ErrConnectionFailed(err error) *errors.AppError {
	return errors.New(CodeConnectionFailed, "failed to connect to message broker", err)
}

// ErrTopicNotFound creates an error for a missing topic.
func ErrTopicNotFound(topic string, err error) *errors.AppError {
	return errors.New(CodeTopicNotFound, "topic not found: "+topic, err)
}

// ErrPublishFailed creates an error for publish failures.
func ErrPublishFailed(err error) *errors.AppError {
	return errors.New(CodePublishFailed, "failed to publish message", err)
}

// ErrConsumeFailed creates an error for consume failures.
func ErrConsumeFailed(err error) *errors.AppError {
	return errors.New(CodeConsumeFailed, "failed to consume message", err)
}

// ErrTimeout creates an error for operation timeouts.
func ErrTimeout(operation string, err error) *errors.AppError {
	return errors.New(CodeTimeout, "broker operation timed out: "+operation, err)
}

// ErrClosed creates an error for closed connections.
func ErrClosed(err error) *errors.AppError {
	return errors.New(CodeClosed, "broker connection is closed", err)
}

// ErrInvalidConfig creates an error for invalid configuration.
func ErrInvalidConfig(msg string, err error) *errors.AppError {
	return errors.New(CodeInvalidConfig, "invalid broker configuration: "+msg, err)
}

// ErrSerializationFailed creates an error for serialization failures.
func ErrSerializationFailed(err error) *errors.AppError {
	return errors.New(CodeSerializationFailed, "failed to serialize/deserialize message", err)
}

// ErrTopicCreateFailed creates an error for topic creation failures.
func ErrTopicCreateFailed(topic string, err error) *errors.AppError {
	return errors.New(CodeTopicCreateFailed, "failed to create topic: "+topic, err)
}

// ErrTopicDeleteFailed creates an error for topic deletion failures.
func ErrTopicDeleteFailed(topic string, err error) *errors.AppError {
	return errors.New(CodeTopicDeleteFailed, "failed to delete topic: "+topic, err)
}
