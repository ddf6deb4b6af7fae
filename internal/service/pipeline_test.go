package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dropcast/dropcast/internal/config"
	"github.com/dropcast/dropcast/internal/service/publisher"
	"github.com/dropcast/dropcast/internal/service/storage"
	"github.com/dropcast/dropcast/internal/store"
	"github.com/dropcast/dropcast/pkg/util"
)

type fakeInbox struct {
	items   []storage.Item
	listErr error
	deleted []string
}

func (f *fakeInbox) ListFolder(ctx context.Context, folder string) ([]storage.Item, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.items, nil
}

func (f *fakeInbox) TemporaryLink(ctx context.Context, path string) (string, error) {
	return "https://cdn.example.com" + path, nil
}

func (f *fakeInbox) Delete(ctx context.Context, path string) error {
	f.deleted = append(f.deleted, path)
	return nil
}

type fakeRefresher struct {
	err   error
	calls int
}

func (f *fakeRefresher) Refresh(ctx context.Context, account *config.AccountConfig) (*TokenBundle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &TokenBundle{AccessToken: "sl.fresh", RefreshedAt: time.Now()}, nil
}

type fakeEvaluator struct {
	decision Decision
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, account string) (Decision, error) {
	return f.decision, nil
}

type fakeJob struct {
	result   *publisher.Result
	ran      []storage.Item
	captions []string
}

func (f *fakeJob) Run(ctx context.Context, resolver publisher.SourceResolver, item storage.Item, caption string) *publisher.Result {
	f.ran = append(f.ran, item)
	f.captions = append(f.captions, caption)
	return f.result
}

type recordingNotifier struct {
	messages []string
}

func (r *recordingNotifier) Send(text string) {
	r.messages = append(r.messages, text)
}

func (r *recordingNotifier) contains(fragment string) bool {
	for _, msg := range r.messages {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func testPipelineConfig() *config.Config {
	return &config.Config{
		Instagram: config.InstagramConfig{
			APIBase:      "http://unused",
			PollInterval: "1ms",
			PollAttempts: 12,
		},
		Accounts: []config.AccountConfig{{
			Name:               "inkwisps",
			Folder:             "/INKWISPS",
			InstagramAccountID: "17841",
			InstagramToken:     "ig-token",
			Caption:            "#inkwisps ✨",
		}},
	}
}

func newTestRecords(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	s, err := store.New(db)
	require.NoError(t, err)
	return s
}

type pipelineHarness struct {
	pipeline *Pipeline
	records  *store.Store
	inbox    *fakeInbox
	job      *fakeJob
	creds    *fakeRefresher
	notifier *recordingNotifier
}

func newHarness(t *testing.T, inbox *fakeInbox, job *fakeJob, creds *fakeRefresher, decision Decision) *pipelineHarness {
	t.Helper()
	records := newTestRecords(t)
	notifier := &recordingNotifier{}

	p, err := NewPipeline(testPipelineConfig(), records, creds,
		&fakeEvaluator{decision: decision}, notifier, zap.NewNop())
	require.NoError(t, err)

	p.newStorage = func(accessToken string) StorageClient { return inbox }
	p.newJob = func(account *config.AccountConfig) publisher.MediaJob { return job }

	return &pipelineHarness{
		pipeline: p,
		records:  records,
		inbox:    inbox,
		job:      job,
		creds:    creds,
		notifier: notifier,
	}
}

func clipItem() storage.Item {
	return storage.Item{
		ID:             "id:A1",
		Name:           "clip.mp4",
		PathLower:      "/inkwisps/clip.mp4",
		Size:           4 * 1024 * 1024,
		ServerModified: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Kind:           util.MediaVideo,
	}
}

func publishedResult() *publisher.Result {
	return &publisher.Result{
		State:       publisher.StatePublished,
		ContainerID: "C9",
		PublishedAt: time.Now().UTC(),
	}
}

func TestRun_EndToEndSuccess(t *testing.T) {
	item := clipItem()
	h := newHarness(t, &fakeInbox{items: []storage.Item{item}}, &fakeJob{result: publishedResult()}, &fakeRefresher{}, ProceedNow)

	require.NoError(t, h.pipeline.Run(context.Background(), "inkwisps"))

	// Source deleted, ledger updated, result recorded, operator notified.
	assert.Equal(t, []string{"/inkwisps/clip.mp4"}, h.inbox.deleted)

	dup, err := h.records.IsDuplicate("id:A1_2024-03-01T12:00:00Z")
	require.NoError(t, err)
	assert.True(t, dup)

	result, err := h.records.LastResult("inkwisps")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, "clip.mp4", result.Filename)

	assert.True(t, h.notifier.contains("✅ Uploaded: clip.mp4"))
	assert.True(t, h.notifier.contains("[inkwisps]"))
}

func TestRun_SecondRunSkipsPublishedItem(t *testing.T) {
	first := clipItem()
	second := storage.Item{
		ID:             "id:B2",
		Name:           "photo.jpg",
		PathLower:      "/inkwisps/photo.jpg",
		Size:           1024,
		ServerModified: time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
		Kind:           util.MediaImage,
	}
	h := newHarness(t, &fakeInbox{items: []storage.Item{first, second}}, &fakeJob{result: publishedResult()}, &fakeRefresher{}, ProceedNow)

	require.NoError(t, h.pipeline.Run(context.Background(), "inkwisps"))
	require.NoError(t, h.pipeline.Run(context.Background(), "inkwisps"))

	// Exactly one item per run; the second run selects the next candidate.
	require.Len(t, h.job.ran, 2)
	assert.Equal(t, "clip.mp4", h.job.ran[0].Name)
	assert.Equal(t, "photo.jpg", h.job.ran[1].Name)
}

func TestRun_NothingEligibleAfterBacklogDrained(t *testing.T) {
	item := clipItem()
	h := newHarness(t, &fakeInbox{items: []storage.Item{item}}, &fakeJob{result: publishedResult()}, &fakeRefresher{}, ProceedNow)

	require.NoError(t, h.pipeline.Run(context.Background(), "inkwisps"))
	require.NoError(t, h.pipeline.Run(context.Background(), "inkwisps"))

	require.Len(t, h.job.ran, 1)
	assert.True(t, h.notifier.contains("📭 No eligible files found."))
}

func TestRun_CredentialFailureAbortsBeforeListing(t *testing.T) {
	inbox := &fakeInbox{listErr: fmt.Errorf("should not be reached")}
	creds := &fakeRefresher{err: &CredentialError{Account: "inkwisps", Err: fmt.Errorf("invalid_grant")}}
	h := newHarness(t, inbox, &fakeJob{}, creds, ProceedNow)

	err := h.pipeline.Run(context.Background(), "inkwisps")
	require.Error(t, err)

	var credErr *CredentialError
	assert.ErrorAs(t, err, &credErr)
	assert.Empty(t, h.job.ran)
	assert.True(t, h.notifier.contains("❌ Token refresh failed"))
}

func TestRun_ScheduleSkipEndsRunQuietly(t *testing.T) {
	h := newHarness(t, &fakeInbox{items: []storage.Item{clipItem()}}, &fakeJob{}, &fakeRefresher{}, Skip)

	require.NoError(t, h.pipeline.Run(context.Background(), "inkwisps"))

	assert.Empty(t, h.job.ran)
	assert.Empty(t, h.notifier.messages)
}

func TestRun_PausedAccountSkipsBeforeRefresh(t *testing.T) {
	creds := &fakeRefresher{}
	h := newHarness(t, &fakeInbox{}, &fakeJob{}, creds, ProceedNow)
	require.NoError(t, h.records.SetPaused("inkwisps", true))

	require.NoError(t, h.pipeline.Run(context.Background(), "inkwisps"))

	assert.Zero(t, creds.calls)
	assert.Empty(t, h.job.ran)
}

func TestRun_JobFailureRecordedAndNotified(t *testing.T) {
	item := clipItem()
	failed := &publisher.Result{
		State: publisher.StateFailed,
		Err:   publisher.Failf(publisher.FailProcessing, "container C9 reported processing error"),
	}
	h := newHarness(t, &fakeInbox{items: []storage.Item{item}}, &fakeJob{result: failed}, &fakeRefresher{}, ProceedNow)

	require.NoError(t, h.pipeline.Run(context.Background(), "inkwisps"))

	// Failed attempts never delete the source or touch the ledger.
	assert.Empty(t, h.inbox.deleted)
	dup, err := h.records.IsDuplicate(item.Fingerprint())
	require.NoError(t, err)
	assert.False(t, dup)

	result, err := h.records.LastResult("inkwisps")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "ProcessingError")

	assert.True(t, h.notifier.contains("❌ Failed: clip.mp4"))
}

func TestRun_CaptionOverrideFromSettings(t *testing.T) {
	item := clipItem()
	job := &fakeJob{result: publishedResult()}
	h := newHarness(t, &fakeInbox{items: []storage.Item{item}}, job, &fakeRefresher{}, ProceedNow)
	require.NoError(t, h.records.SetCaption("inkwisps", "#custom"))

	require.NoError(t, h.pipeline.Run(context.Background(), "inkwisps"))
	require.Len(t, job.ran, 1)
	assert.Equal(t, []string{"#custom"}, job.captions)
}

func TestRun_BacklogCountsExcludeLedgeredFiles(t *testing.T) {
	published := clipItem()
	pending := storage.Item{
		ID:             "id:B2",
		Name:           "photo.jpg",
		PathLower:      "/inkwisps/photo.jpg",
		Size:           1024,
		ServerModified: time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
		Kind:           util.MediaImage,
	}
	h := newHarness(t, &fakeInbox{items: []storage.Item{published, pending}}, &fakeJob{result: publishedResult()}, &fakeRefresher{}, ProceedNow)
	require.NoError(t, h.records.MarkPublished("inkwisps", published.Fingerprint(), published.Name))

	require.NoError(t, h.pipeline.Run(context.Background(), "inkwisps"))

	// The already-published clip stays in the folder listing but must not
	// inflate the backlog figures.
	assert.True(t, h.notifier.contains("📦 Remaining: 1"))
	assert.True(t, h.notifier.contains("📦 Files left: 0"))
}

// reentrantJob re-enters the pipeline for the same account mid-run,
// standing in for a manual trigger racing a runner tick.
type reentrantJob struct {
	pipeline *Pipeline
	innerErr error
	result   *publisher.Result
}

func (j *reentrantJob) Run(ctx context.Context, resolver publisher.SourceResolver, item storage.Item, caption string) *publisher.Result {
	j.innerErr = j.pipeline.Run(ctx, "inkwisps")
	return j.result
}

func TestRun_SecondRunForSameAccountRefusedWhileInFlight(t *testing.T) {
	records := newTestRecords(t)
	p, err := NewPipeline(testPipelineConfig(), records, &fakeRefresher{},
		&fakeEvaluator{decision: ProceedNow}, &recordingNotifier{}, zap.NewNop())
	require.NoError(t, err)
	p.newStorage = func(string) StorageClient {
		return &fakeInbox{items: []storage.Item{clipItem()}}
	}
	job := &reentrantJob{pipeline: p, result: publishedResult()}
	p.newJob = func(*config.AccountConfig) publisher.MediaJob { return job }

	require.NoError(t, p.Run(context.Background(), "inkwisps"))

	assert.ErrorIs(t, job.innerErr, ErrRunInProgress)
	assert.False(t, p.Busy("inkwisps"))
}

func TestRun_UnknownAccount(t *testing.T) {
	h := newHarness(t, &fakeInbox{}, &fakeJob{}, &fakeRefresher{}, ProceedNow)
	assert.Error(t, h.pipeline.Run(context.Background(), "nope"))
}
