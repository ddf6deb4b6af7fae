package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropcast/dropcast/internal/config"
	"github.com/dropcast/dropcast/internal/models"
	"github.com/dropcast/dropcast/internal/service/notify"
	"github.com/dropcast/dropcast/internal/service/publisher"
	"github.com/dropcast/dropcast/internal/service/publisher/instagram"
	"github.com/dropcast/dropcast/internal/service/storage"
	"github.com/dropcast/dropcast/pkg/util"
)

// StorageClient is the inbox-side collaborator contract.
type StorageClient interface {
	ListFolder(ctx context.Context, folder string) ([]storage.Item, error)
	TemporaryLink(ctx context.Context, path string) (string, error)
	Delete(ctx context.Context, path string) error
}

// RecordStore is the slice of the persistent store the pipeline touches.
type RecordStore interface {
	IsDuplicate(fingerprint string) (bool, error)
	MarkPublished(account, fingerprint, filename string) error
	RecordResult(result *models.PostResult) error
	Settings(account string) (*models.AccountSettings, error)
}

// CredentialRefresher produces the run's access token.
type CredentialRefresher interface {
	Refresh(ctx context.Context, account *config.AccountConfig) (*TokenBundle, error)
}

// ScheduleEvaluator gates the run on the account's publishing windows.
type ScheduleEvaluator interface {
	Evaluate(ctx context.Context, account string) (Decision, error)
}

// ErrRunInProgress is returned when a run is requested for an account that
// already has one executing. The store is single-writer per run, so a
// second concurrent run for the same account is refused, never queued.
var ErrRunInProgress = errors.New("publish run already in progress")

// Pipeline composes one publishing run: refresh credential, evaluate the
// schedule, pick the first unpublished candidate, drive it through the
// publish state machine and record the outcome. At most one item is
// attempted per invocation; draining a backlog relies on re-invocation.
type Pipeline struct {
	cfg      *config.Config
	records  RecordStore
	creds    CredentialRefresher
	eval     ScheduleEvaluator
	notifier notify.Notifier
	logger   *zap.Logger

	// inflight holds the accounts with a run executing right now.
	inflight sync.Map

	// Factories are swappable for tests.
	newStorage func(accessToken string) StorageClient
	newJob     func(account *config.AccountConfig) publisher.MediaJob
}

func NewPipeline(
	cfg *config.Config,
	records RecordStore,
	creds CredentialRefresher,
	eval ScheduleEvaluator,
	notifier notify.Notifier,
	logger *zap.Logger,
) (*Pipeline, error) {
	pollInterval, err := time.ParseDuration(cfg.Instagram.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid poll interval: %w", err)
	}

	p := &Pipeline{
		cfg:      cfg,
		records:  records,
		creds:    creds,
		eval:     eval,
		notifier: notifier,
		logger:   logger,
	}

	p.newStorage = func(accessToken string) StorageClient {
		return storage.NewClient(cfg.Dropbox.APIBase, accessToken, logger)
	}
	p.newJob = func(account *config.AccountConfig) publisher.MediaJob {
		client := instagram.NewClient(cfg.Instagram.APIBase,
			account.InstagramAccountID, account.InstagramToken, logger)
		return instagram.NewJob(client, instagram.JobConfig{
			PollInterval: pollInterval,
			PollAttempts: cfg.Instagram.PollAttempts,
			ShareToFeed:  cfg.Instagram.ShareReelsToFeed,
		}, logger)
	}

	return p, nil
}

// Run executes one pipeline invocation for the named account. Collaborator
// failures are recorded and notified, never propagated as panics; the run
// always completes with a success, a skip or a recorded failure.
func (p *Pipeline) Run(ctx context.Context, accountName string) error {
	account, err := p.cfg.Account(accountName)
	if err != nil {
		return err
	}

	if _, busy := p.inflight.LoadOrStore(accountName, struct{}{}); busy {
		return fmt.Errorf("%w for account %s", ErrRunInProgress, accountName)
	}
	defer p.inflight.Delete(accountName)

	runID := uuid.NewString()
	log := p.logger.With(zap.String("account", accountName), zap.String("run_id", runID))
	log.Info("Starting publish run")

	settings, err := p.records.Settings(accountName)
	if err != nil {
		log.Error("Failed to load account settings", zap.Error(err))
		return err
	}
	if settings.Paused {
		log.Info("Account is paused, skipping run")
		return nil
	}

	bundle, err := p.creds.Refresh(ctx, account)
	if err != nil {
		log.Error("Credential refresh failed, aborting run", zap.Error(err))
		p.notify(account, fmt.Sprintf("❌ Token refresh failed: %v", err))
		return err
	}

	decision, err := p.eval.Evaluate(ctx, accountName)
	if err != nil {
		return err
	}
	if decision == Skip {
		log.Info("No schedule window matched, skipping run")
		return nil
	}

	inbox := p.newStorage(bundle.AccessToken)
	items, err := inbox.ListFolder(ctx, account.Folder)
	if err != nil {
		log.Error("Failed to list inbox folder", zap.Error(err))
		p.recordFailure(accountName, runID, "", fmt.Sprintf("%s: %v", publisher.FailSourceUnavailable, err))
		p.notify(account, fmt.Sprintf("❌ Failed to list inbox: %v", err))
		return nil
	}

	candidates, err := p.eligible(items)
	if err != nil {
		log.Error("Ledger lookup failed", zap.Error(err))
		return err
	}
	if len(candidates) == 0 {
		log.Info("No eligible files to publish")
		p.notify(account, "📭 No eligible files found.")
		return nil
	}
	item := candidates[0]

	caption := settings.Caption
	if caption == "" {
		caption = account.Caption
	}

	// Backlog figures exclude already-ledgered files.
	remaining := len(candidates)
	p.notify(account, fmt.Sprintf("🚀 Uploading: %s\n📂 Type: %s\n📐 Size: %s\n📄 Path: %s\n📦 Remaining: %d",
		item.Name, mediaLabel(item.Kind), util.FormatSize(item.Size), item.PathLower, remaining))

	result := p.newJob(account).Run(ctx, inbox, item, caption)

	if result.State != publisher.StatePublished {
		message := "publish job failed"
		if result.Err != nil {
			message = result.Err.Error()
		}
		log.Warn("Publish attempt failed",
			zap.String("file", item.Name),
			zap.String("error", message))
		p.recordFailure(accountName, runID, item.Name, message)
		p.notify(account, fmt.Sprintf("❌ Failed: %s\n🧾 %s", item.Name, message))
		return nil
	}

	// Delete before marking: a file that outlives its ledger entry would
	// just be skipped next run, while the reverse could repost it.
	if err := inbox.Delete(ctx, item.PathLower); err != nil {
		log.Warn("Failed to delete published source item",
			zap.String("path", item.PathLower),
			zap.Error(err))
	}

	if err := p.records.MarkPublished(accountName, item.Fingerprint(), item.Name); err != nil {
		log.Error("Failed to update dedup ledger", zap.Error(err))
	}

	if err := p.records.RecordResult(&models.PostResult{
		Account:  accountName,
		RunID:    runID,
		Filename: item.Name,
		Success:  true,
		PostedAt: time.Now().UTC(),
	}); err != nil {
		log.Error("Failed to record post result", zap.Error(err))
	}

	p.notify(account, fmt.Sprintf("✅ Uploaded: %s\n📦 Files left: %d", item.Name, remaining-1))
	log.Info("Publish run completed",
		zap.String("file", item.Name),
		zap.String("container_id", result.ContainerID))

	return nil
}

// Busy reports whether a run for the account is executing right now.
func (p *Pipeline) Busy(accountName string) bool {
	_, busy := p.inflight.Load(accountName)
	return busy
}

// eligible filters the listing, in order, down to candidates whose
// fingerprint is not in the ledger.
func (p *Pipeline) eligible(items []storage.Item) ([]storage.Item, error) {
	var candidates []storage.Item
	for _, item := range items {
		duplicate, err := p.records.IsDuplicate(item.Fingerprint())
		if err != nil {
			return nil, err
		}
		if !duplicate {
			candidates = append(candidates, item)
		}
	}
	return candidates, nil
}

func (p *Pipeline) recordFailure(account, runID, filename, message string) {
	if err := p.records.RecordResult(&models.PostResult{
		Account:  account,
		RunID:    runID,
		Filename: filename,
		Success:  false,
		Error:    message,
		PostedAt: time.Now().UTC(),
	}); err != nil {
		p.logger.Error("Failed to record post result", zap.Error(err))
	}
}

func (p *Pipeline) notify(account *config.AccountConfig, text string) {
	p.notifier.Send(fmt.Sprintf("[%s]\n%s", account.Name, text))
}

func mediaLabel(kind util.MediaKind) string {
	if kind == util.MediaVideo {
		return "REELS"
	}
	return "IMAGE"
}
