package instagram

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dropcast/dropcast/internal/service/publisher"
	"github.com/dropcast/dropcast/internal/service/storage"
	"github.com/dropcast/dropcast/pkg/util"
)

// JobConfig bounds the processing poll loop and sets the reels feed policy.
type JobConfig struct {
	PollInterval time.Duration
	PollAttempts int
	ShareToFeed  bool
}

// Job drives one candidate item through link resolution, container
// creation, the processing poll and publish. Exactly one item per run; a
// failed job is recorded, never retried within the run.
type Job struct {
	client *Client
	config JobConfig
	logger *zap.Logger

	// sleep is injectable so tests do not wait out real poll intervals.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewJob(client *Client, config JobConfig, logger *zap.Logger) *Job {
	if config.PollInterval == 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.PollAttempts == 0 {
		config.PollAttempts = 12
	}
	return &Job{
		client: client,
		config: config,
		logger: logger,
		sleep:  contextSleep,
	}
}

func (j *Job) Run(ctx context.Context, resolver publisher.SourceResolver, item storage.Item, caption string) *publisher.Result {
	result := &publisher.Result{}

	link, err := resolver.TemporaryLink(ctx, item.PathLower)
	if err != nil {
		return fail(result, publisher.Failf(publisher.FailSourceUnavailable, "%s", err.Error()))
	}
	result.State = publisher.StateLinkResolved

	containerID, err := j.client.CreateContainer(ctx, ContainerParams{
		SourceURL:   link,
		Caption:     caption,
		Kind:        item.Kind,
		ShareToFeed: j.config.ShareToFeed,
	})
	if err != nil {
		return fail(result, asJobError(err, publisher.FailContainerCreation))
	}
	result.State = publisher.StateContainerCreated
	result.ContainerID = containerID

	// Images are ready immediately; only video containers are processed
	// asynchronously and need polling.
	if item.Kind == util.MediaVideo {
		if jobErr := j.awaitProcessing(ctx, containerID, result); jobErr != nil {
			return fail(result, jobErr)
		}
	}

	if err := j.client.Publish(ctx, containerID); err != nil {
		return fail(result, asJobError(err, publisher.FailPublish))
	}

	result.State = publisher.StatePublished
	result.PublishedAt = time.Now().UTC()

	j.logger.Info("Media published",
		zap.String("file", item.Name),
		zap.String("container_id", containerID),
		zap.Int("poll_attempts", result.PollAttempts))

	return result
}

// awaitProcessing polls the container status until FINISHED, a definitive
// ERROR, or the attempt ceiling. Transport errors consume an attempt and
// the loop continues: a flaky poll is not a processing verdict.
func (j *Job) awaitProcessing(ctx context.Context, containerID string, result *publisher.Result) *publisher.Error {
	for attempt := 1; attempt <= j.config.PollAttempts; attempt++ {
		result.PollAttempts = attempt

		status, err := j.client.ContainerStatus(ctx, containerID)
		if err != nil {
			j.logger.Warn("Status poll failed, continuing",
				zap.String("container_id", containerID),
				zap.Int("attempt", attempt),
				zap.Error(err))
		} else {
			switch status {
			case StatusFinished:
				return nil
			case StatusError:
				return publisher.Failf(publisher.FailProcessing,
					"container %s reported processing error", containerID)
			}
		}

		if err := j.sleep(ctx, j.config.PollInterval); err != nil {
			return publisher.Failf(publisher.FailProcessingTimeout,
				"poll interrupted: %s", err.Error())
		}
	}

	return publisher.Failf(publisher.FailProcessingTimeout,
		"container %s not finished after %d polls", containerID, j.config.PollAttempts)
}

func fail(result *publisher.Result, err *publisher.Error) *publisher.Result {
	result.State = publisher.StateFailed
	result.Err = err
	return result
}

// asJobError keeps the client's classification when it produced one and
// wraps anything else under the fallback kind.
func asJobError(err error, fallback publisher.FailureKind) *publisher.Error {
	var jobErr *publisher.Error
	if errors.As(err, &jobErr) {
		return jobErr
	}
	return publisher.Failf(fallback, "%s", err.Error())
}

func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
