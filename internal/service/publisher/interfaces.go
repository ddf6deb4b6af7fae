package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/dropcast/dropcast/internal/service/storage"
)

// State is a publish job's position in its lifecycle.
type State string

const (
	StateLinkResolved     State = "LINK_RESOLVED"
	StateContainerCreated State = "CONTAINER_CREATED"
	StatePublished        State = "PUBLISHED"
	StateFailed           State = "FAILED"
)

// FailureKind classifies a terminal job failure. All kinds end the run's
// single publish attempt; none are retried within the run.
type FailureKind string

const (
	FailSourceUnavailable FailureKind = "SourceUnavailable"
	FailContainerCreation FailureKind = "ContainerCreationError"
	FailMissingCreationID FailureKind = "MissingCreationId"
	FailProcessing        FailureKind = "ProcessingError"
	FailProcessingTimeout FailureKind = "ProcessingTimeout"
	FailPublish           FailureKind = "PublishError"
)

// Error is a classified job failure carrying the raw collaborator response
// where one was available.
type Error struct {
	Kind    FailureKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Failf builds a classified job failure.
func Failf(kind FailureKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Result is the outcome of driving one item through the state machine.
type Result struct {
	State        State
	ContainerID  string
	PollAttempts int
	Err          *Error
	PublishedAt  time.Time
}

// SourceResolver obtains a temporary fetch URL for a storage item.
type SourceResolver interface {
	TemporaryLink(ctx context.Context, path string) (string, error)
}

// MediaJob drives a single candidate item to PUBLISHED or FAILED.
type MediaJob interface {
	Run(ctx context.Context, resolver SourceResolver, item storage.Item, caption string) *Result
}
