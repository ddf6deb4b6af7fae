package wizard

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dropcast/dropcast/internal/config"
	"github.com/dropcast/dropcast/internal/store"
)

type fakeSecrets struct {
	put map[string]string
}

func (f *fakeSecrets) PutSecret(ctx context.Context, name, value string) error {
	if f.put == nil {
		f.put = make(map[string]string)
	}
	f.put[name] = value
	return nil
}

func testWizardConfig() *config.Config {
	return &config.Config{
		Wizard: config.WizardConfig{Password: "hunter2"},
		Accounts: []config.AccountConfig{
			{
				Name:                "inkwisps",
				Folder:              "/INKWISPS",
				SecretName:          "DROPBOX_INKWISPS_TOKEN",
				InstagramSecretName: "INSTAGRAM_INKWISPS_TOKEN",
			},
			{Name: "eclipsed_by_you", Folder: "/ECLIPSED"},
		},
	}
}

type wizardHarness struct {
	wizard   *Wizard
	records  *store.Store
	sessions *MemoryStore
	secrets  *fakeSecrets
}

func newWizardHarness(t *testing.T) *wizardHarness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	records, err := store.New(db)
	require.NoError(t, err)

	sessions := NewMemoryStore()
	secrets := &fakeSecrets{}
	return &wizardHarness{
		wizard:   New(testWizardConfig(), records, secrets, sessions, zap.NewNop()),
		records:  records,
		sessions: sessions,
		secrets:  secrets,
	}
}

const userID = int64(4242)

// login drives a user through /start and the password prompt.
func (h *wizardHarness) login(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := h.wizard.Handle(ctx, Input{UserID: userID, Text: "/start"})
	require.NoError(t, err)
	reply, err := h.wizard.Handle(ctx, Input{UserID: userID, Text: "hunter2"})
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Login successful")
}

// advance sends one input and requires no wizard error.
func (h *wizardHarness) advance(t *testing.T, input Input) *Reply {
	t.Helper()
	input.UserID = userID
	reply, err := h.wizard.Handle(context.Background(), input)
	require.NoError(t, err)
	require.NotNil(t, reply)
	return reply
}

func (h *wizardHarness) step(t *testing.T) Step {
	t.Helper()
	session, ok := h.sessions.Get(userID)
	require.True(t, ok)
	return session.Step
}

// toPostCount drives a fresh session to AWAITING_POST_COUNT for Monday.
func (h *wizardHarness) toPostCount(t *testing.T) {
	t.Helper()
	h.login(t)
	h.advance(t, Input{Data: "account:inkwisps"})
	h.advance(t, Input{Data: "action:schedule"})
	h.advance(t, Input{Data: "weekday:Monday"})
	require.Equal(t, StepAwaitingPostCount, h.step(t))
}

func TestWizard_WrongPasswordBansImmediately(t *testing.T) {
	h := newWizardHarness(t)
	ctx := context.Background()

	h.advance(t, Input{Text: "/start"})
	reply := h.advance(t, Input{Text: "not-the-password"})
	assert.Contains(t, reply.Text, "banned")

	banned, err := h.records.IsBanned(userID)
	require.NoError(t, err)
	assert.True(t, banned)

	// Banned users cannot open a new session.
	reply, err = h.wizard.Handle(ctx, Input{UserID: userID, Text: "/start"})
	require.NoError(t, err)
	assert.Equal(t, "🚫 You are banned.", reply.Text)
}

func TestWizard_UnsetPasswordRejectsWithoutBanning(t *testing.T) {
	h := newWizardHarness(t)
	h.wizard.cfg.Wizard.Password = ""

	h.advance(t, Input{Text: "/start"})
	reply := h.advance(t, Input{Text: "anything"})
	assert.Contains(t, reply.Text, "not configured")

	banned, err := h.records.IsBanned(userID)
	require.NoError(t, err)
	assert.False(t, banned)

	// The session is torn down, not left waiting for more attempts.
	reply = h.advance(t, Input{Text: "anything"})
	assert.Equal(t, "Send /start to begin.", reply.Text)
}

func TestWizard_PostCountRejectsNonInteger(t *testing.T) {
	h := newWizardHarness(t)
	h.toPostCount(t)

	reply := h.advance(t, Input{Text: "lots"})
	assert.Contains(t, reply.Text, "between 1 and 24")
	assert.Equal(t, StepAwaitingPostCount, h.step(t))

	// Re-prompting must not touch the schedule table.
	times, err := h.records.TimesFor("inkwisps", "Monday")
	require.NoError(t, err)
	assert.Empty(t, times)
}

func TestWizard_PostCountRejectsOutOfRange(t *testing.T) {
	h := newWizardHarness(t)
	h.toPostCount(t)

	reply := h.advance(t, Input{Text: "25"})
	assert.Contains(t, reply.Text, "between 1 and 24")
	assert.Equal(t, StepAwaitingPostCount, h.step(t))

	reply = h.advance(t, Input{Text: "0"})
	assert.Contains(t, reply.Text, "between 1 and 24")
	assert.Equal(t, StepAwaitingPostCount, h.step(t))
}

func TestWizard_CommitWithoutSlotsRejected(t *testing.T) {
	h := newWizardHarness(t)
	h.toPostCount(t)
	h.advance(t, Input{Text: "2"})
	require.Equal(t, StepAwaitingTimeSlots, h.step(t))

	reply := h.advance(t, Input{Data: "slots:commit"})
	assert.Contains(t, reply.Text, "at least one time slot")
	assert.Equal(t, StepAwaitingTimeSlots, h.step(t))

	times, err := h.records.TimesFor("inkwisps", "Monday")
	require.NoError(t, err)
	assert.Empty(t, times)
}

func TestWizard_SlotSelectionBoundedByPostCount(t *testing.T) {
	h := newWizardHarness(t)
	h.toPostCount(t)
	h.advance(t, Input{Text: "2"})

	h.advance(t, Input{Data: "slot:10:00"})
	h.advance(t, Input{Data: "slot:18:30"})
	reply := h.advance(t, Input{Data: "slot:21:45"})
	assert.Contains(t, reply.Text, "At most 2 slots")

	session, ok := h.sessions.Get(userID)
	require.True(t, ok)
	assert.Len(t, session.Slots, 2)
}

func TestWizard_ToggleDeselectsSlot(t *testing.T) {
	h := newWizardHarness(t)
	h.toPostCount(t)
	h.advance(t, Input{Text: "1"})

	h.advance(t, Input{Data: "slot:10:00"})
	h.advance(t, Input{Data: "slot:10:00"})

	session, ok := h.sessions.Get(userID)
	require.True(t, ok)
	assert.Empty(t, session.Slots)
}

func TestWizard_CommitPersistsSortedSlotsAndEndsSession(t *testing.T) {
	h := newWizardHarness(t)
	h.toPostCount(t)
	h.advance(t, Input{Text: "3"})

	h.advance(t, Input{Data: "slot:18:30"})
	h.advance(t, Input{Data: "slot:09:15"})
	reply := h.advance(t, Input{Data: "slots:commit"})
	assert.Contains(t, reply.Text, "Monday schedule saved")

	times, err := h.records.TimesFor("inkwisps", "Monday")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:15", "18:30"}, times)

	_, ok := h.sessions.Get(userID)
	assert.False(t, ok)
}

func TestWizard_CaptionUpdate(t *testing.T) {
	h := newWizardHarness(t)
	h.login(t)
	h.advance(t, Input{Data: "account:inkwisps"})
	h.advance(t, Input{Data: "action:caption"})
	require.Equal(t, StepAwaitingCaption, h.step(t))

	reply := h.advance(t, Input{Text: "#inkwisps daily"})
	assert.Contains(t, reply.Text, "Caption updated")

	settings, err := h.records.Settings("inkwisps")
	require.NoError(t, err)
	assert.Equal(t, "#inkwisps daily", settings.Caption)
}

func TestWizard_PauseAndResume(t *testing.T) {
	h := newWizardHarness(t)
	h.login(t)
	h.advance(t, Input{Data: "account:inkwisps"})

	h.advance(t, Input{Data: "action:pause"})
	settings, err := h.records.Settings("inkwisps")
	require.NoError(t, err)
	assert.True(t, settings.Paused)

	h.advance(t, Input{Data: "action:resume"})
	settings, err = h.records.Settings("inkwisps")
	require.NoError(t, err)
	assert.False(t, settings.Paused)
}

func TestWizard_TokenRotationPushesSecretAndRecordsExpiry(t *testing.T) {
	h := newWizardHarness(t)
	h.login(t)
	h.advance(t, Input{Data: "account:inkwisps"})
	h.advance(t, Input{Data: "action:token"})
	require.Equal(t, StepAwaitingTokenValue, h.step(t))

	h.advance(t, Input{Text: "IGQVJfresh"})
	require.Equal(t, StepAwaitingTokenExpiry, h.step(t))

	reply := h.advance(t, Input{Text: "not-a-date"})
	assert.Contains(t, reply.Text, "YYYY-MM-DD")
	require.Equal(t, StepAwaitingTokenExpiry, h.step(t))

	reply = h.advance(t, Input{Text: "2026-12-01"})
	assert.Contains(t, reply.Text, "Token stored")
	assert.Equal(t, "IGQVJfresh", h.secrets.put["INSTAGRAM_INKWISPS_TOKEN"])

	// The rotation must not land on the Dropbox secret: the credential
	// refresh overwrites that one unconditionally on every run.
	assert.NotContains(t, h.secrets.put, "DROPBOX_INKWISPS_TOKEN")

	settings, err := h.records.Settings("inkwisps")
	require.NoError(t, err)
	require.NotNil(t, settings.TokenExpiry)
	assert.Equal(t, "2026-12-01", settings.TokenExpiry.Format("2006-01-02"))
}

func TestWizard_NoSessionPromptsStart(t *testing.T) {
	h := newWizardHarness(t)
	reply := h.advance(t, Input{Text: "hello"})
	assert.Equal(t, "Send /start to begin.", reply.Text)
}
