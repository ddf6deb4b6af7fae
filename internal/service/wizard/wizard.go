package wizard

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dropcast/dropcast/internal/config"
	"github.com/dropcast/dropcast/internal/store"
)

// Records is the slice of the persistent store the wizard mutates.
type Records interface {
	IsBanned(telegramID int64) (bool, error)
	Ban(telegramID int64) error
	Authorize(telegramID int64) error
	ReplaceDay(account, weekday string, times []string) error
	SetCaption(account, caption string) error
	SetPaused(account string, paused bool) error
	SetTokenExpiry(account string, expiry time.Time) error
}

// SecretStore pushes a rotated token to the remote secret store.
type SecretStore interface {
	PutSecret(ctx context.Context, name, value string) error
}

// Input is one discrete user event: either free text or a menu selection.
type Input struct {
	UserID int64
	Text   string
	Data   string
}

// Button is one inline menu choice.
type Button struct {
	Label string
	Data  string
}

// Reply is the wizard's response to one input.
type Reply struct {
	Text string
	Menu [][]Button
}

// Wizard is the conversational configuration state machine. One session per
// user; every input is dispatched against the session's current step.
type Wizard struct {
	cfg      *config.Config
	records  Records
	secrets  SecretStore
	sessions SessionStore
	logger   *zap.Logger
}

func New(cfg *config.Config, records Records, secrets SecretStore, sessions SessionStore, logger *zap.Logger) *Wizard {
	return &Wizard{
		cfg:      cfg,
		records:  records,
		secrets:  secrets,
		sessions: sessions,
		logger:   logger,
	}
}

// Handle advances the user's session by one input and returns the prompt for
// the next one. Invalid input re-prompts without changing state.
func (w *Wizard) Handle(ctx context.Context, input Input) (*Reply, error) {
	banned, err := w.records.IsBanned(input.UserID)
	if err != nil {
		return nil, err
	}
	if banned {
		return &Reply{Text: "🚫 You are banned."}, nil
	}

	if strings.TrimSpace(input.Text) == "/start" {
		w.sessions.Put(&Session{UserID: input.UserID, Step: StepAwaitingPassword})
		return &Reply{Text: "🔐 Enter your password to access the bot:"}, nil
	}

	session, ok := w.sessions.Get(input.UserID)
	if !ok {
		return &Reply{Text: "Send /start to begin."}, nil
	}

	switch session.Step {
	case StepAwaitingPassword:
		return w.handlePassword(session, input)
	case StepAccountSelected:
		return w.handleMenu(session, input)
	case StepAwaitingWeekday:
		return w.handleWeekday(session, input)
	case StepAwaitingPostCount:
		return w.handlePostCount(session, input)
	case StepAwaitingTimeSlots:
		return w.handleTimeSlots(session, input)
	case StepAwaitingCaption:
		return w.handleCaption(session, input)
	case StepAwaitingTokenValue:
		return w.handleTokenValue(session, input)
	case StepAwaitingTokenExpiry:
		return w.handleTokenExpiry(ctx, session, input)
	}
	return &Reply{Text: "Send /start to begin."}, nil
}

// A failed password check bans the user outright. One strike. An unset
// password disables the wizard entirely: nobody can log in, but nobody is
// banned for trying against a secret that does not exist.
func (w *Wizard) handlePassword(session *Session, input Input) (*Reply, error) {
	if w.cfg.Wizard.Password == "" {
		w.sessions.Delete(session.UserID)
		return &Reply{Text: "🚫 Wizard access is not configured."}, nil
	}
	if input.Text != w.cfg.Wizard.Password {
		w.sessions.Delete(session.UserID)
		if err := w.records.Ban(session.UserID); err != nil {
			return nil, err
		}
		w.logger.Warn("Wizard password rejected, user banned",
			zap.Int64("user_id", session.UserID))
		return &Reply{Text: "❌ Wrong password. You are banned."}, nil
	}

	if err := w.records.Authorize(session.UserID); err != nil {
		return nil, err
	}
	session.Step = StepAccountSelected
	session.Account = ""
	w.sessions.Put(session)
	return w.accountMenu("✅ Login successful.\n📂 Select account:"), nil
}

func (w *Wizard) handleMenu(session *Session, input Input) (*Reply, error) {
	if name, ok := strings.CutPrefix(input.Data, "account:"); ok {
		if _, err := w.cfg.Account(name); err != nil {
			return w.accountMenu("📂 Select account:"), nil
		}
		session.Account = name
		w.sessions.Put(session)
		return w.actionMenu(session), nil
	}

	if session.Account == "" {
		return w.accountMenu("📂 Select account:"), nil
	}

	switch input.Data {
	case "action:schedule":
		session.Step = StepAwaitingWeekday
		w.sessions.Put(session)
		return weekdayMenu(), nil
	case "action:caption":
		session.Step = StepAwaitingCaption
		w.sessions.Put(session)
		return &Reply{Text: "✏️ Send the new caption text:"}, nil
	case "action:pause":
		if err := w.records.SetPaused(session.Account, true); err != nil {
			return nil, err
		}
		return w.actionMenu(session), nil
	case "action:resume":
		if err := w.records.SetPaused(session.Account, false); err != nil {
			return nil, err
		}
		return w.actionMenu(session), nil
	case "action:token":
		session.Step = StepAwaitingTokenValue
		w.sessions.Put(session)
		return &Reply{Text: "🔑 Send the new Instagram access token:"}, nil
	}
	return w.actionMenu(session), nil
}

func (w *Wizard) handleWeekday(session *Session, input Input) (*Reply, error) {
	day, ok := strings.CutPrefix(input.Data, "weekday:")
	if !ok || !store.ValidWeekday(day) {
		return weekdayMenu(), nil
	}
	session.Weekday = day
	session.Step = StepAwaitingPostCount
	w.sessions.Put(session)
	return &Reply{Text: fmt.Sprintf("🔢 How many posts on %s? (1-24)", day)}, nil
}

func (w *Wizard) handlePostCount(session *Session, input Input) (*Reply, error) {
	count, err := strconv.Atoi(strings.TrimSpace(input.Text))
	if err != nil || count < 1 || count > 24 {
		return &Reply{Text: "⚠️ Please send a number between 1 and 24."}, nil
	}
	session.PostCount = count
	session.Slots = nil
	session.Step = StepAwaitingTimeSlots
	w.sessions.Put(session)
	return w.slotMenu(session), nil
}

func (w *Wizard) handleTimeSlots(session *Session, input Input) (*Reply, error) {
	switch {
	case input.Data == "slots:commit":
		if len(session.Slots) == 0 {
			reply := w.slotMenu(session)
			reply.Text = "⚠️ Select at least one time slot before committing."
			return reply, nil
		}
		times := append([]string(nil), session.Slots...)
		sort.Strings(times)
		if err := w.records.ReplaceDay(session.Account, session.Weekday, times); err != nil {
			return nil, err
		}
		w.logger.Info("Schedule committed",
			zap.String("account", session.Account),
			zap.String("weekday", session.Weekday),
			zap.Int("slots", len(times)))
		w.sessions.Delete(session.UserID)
		return &Reply{Text: fmt.Sprintf("✅ %s schedule saved: %s",
			session.Weekday, strings.Join(times, ", "))}, nil

	case input.Data == "slots:clear":
		session.Slots = nil
		w.sessions.Put(session)
		return w.slotMenu(session), nil
	}

	slot, ok := strings.CutPrefix(input.Data, "slot:")
	if !ok || !validSlot(slot) {
		return w.slotMenu(session), nil
	}
	if !session.ToggleSlot(slot, session.PostCount) {
		reply := w.slotMenu(session)
		reply.Text = fmt.Sprintf("⚠️ At most %d slots for this day.", session.PostCount)
		return reply, nil
	}
	w.sessions.Put(session)
	return w.slotMenu(session), nil
}

func (w *Wizard) handleCaption(session *Session, input Input) (*Reply, error) {
	caption := strings.TrimSpace(input.Text)
	if caption == "" {
		return &Reply{Text: "✏️ Send the new caption text:"}, nil
	}
	if err := w.records.SetCaption(session.Account, caption); err != nil {
		return nil, err
	}
	session.Step = StepAccountSelected
	w.sessions.Put(session)
	reply := w.actionMenu(session)
	reply.Text = "✅ Caption updated.\n" + reply.Text
	return reply, nil
}

func (w *Wizard) handleTokenValue(session *Session, input Input) (*Reply, error) {
	token := strings.TrimSpace(input.Text)
	if token == "" {
		return &Reply{Text: "🔑 Send the new Instagram access token:"}, nil
	}
	session.PendingToken = token
	session.Step = StepAwaitingTokenExpiry
	w.sessions.Put(session)
	return &Reply{Text: "📅 When does the token expire? (YYYY-MM-DD)"}, nil
}

func (w *Wizard) handleTokenExpiry(ctx context.Context, session *Session, input Input) (*Reply, error) {
	expiry, err := time.Parse("2006-01-02", strings.TrimSpace(input.Text))
	if err != nil {
		return &Reply{Text: "⚠️ Please use YYYY-MM-DD."}, nil
	}

	account, err := w.cfg.Account(session.Account)
	if err != nil {
		return nil, err
	}
	if account.InstagramSecretName != "" {
		if err := w.secrets.PutSecret(ctx, account.InstagramSecretName, session.PendingToken); err != nil {
			w.logger.Error("Failed to push token to secret store", zap.Error(err))
			return &Reply{Text: fmt.Sprintf("❌ Secret store update failed: %v", err)}, nil
		}
	}
	if err := w.records.SetTokenExpiry(session.Account, expiry); err != nil {
		return nil, err
	}

	session.PendingToken = ""
	session.Step = StepAccountSelected
	w.sessions.Put(session)
	reply := w.actionMenu(session)
	reply.Text = fmt.Sprintf("✅ Token stored, expires %s.\n%s",
		expiry.Format("2006-01-02"), reply.Text)
	return reply, nil
}

func (w *Wizard) accountMenu(text string) *Reply {
	menu := make([][]Button, 0, len(w.cfg.Accounts))
	for _, account := range w.cfg.Accounts {
		menu = append(menu, []Button{{Label: account.Name, Data: "account:" + account.Name}})
	}
	return &Reply{Text: text, Menu: menu}
}

func (w *Wizard) actionMenu(session *Session) *Reply {
	return &Reply{
		Text: fmt.Sprintf("⚙️ [%s] Choose an action:", session.Account),
		Menu: [][]Button{
			{{Label: "📅 Set schedule", Data: "action:schedule"}},
			{{Label: "✏️ Set caption", Data: "action:caption"}},
			{
				{Label: "⏸ Pause", Data: "action:pause"},
				{Label: "▶️ Resume", Data: "action:resume"},
			},
			{{Label: "🔑 Update token", Data: "action:token"}},
		},
	}
}

func weekdayMenu() *Reply {
	menu := make([][]Button, 0, len(store.Weekdays))
	for _, day := range store.Weekdays {
		menu = append(menu, []Button{{Label: day, Data: "weekday:" + day}})
	}
	return &Reply{Text: "📅 Pick a weekday:", Menu: menu}
}

// slotMenu renders the 15-minute slot grid, one hour per row, with selected
// slots marked.
func (w *Wizard) slotMenu(session *Session) *Reply {
	menu := make([][]Button, 0, 25)
	for hour := 0; hour < 24; hour++ {
		row := make([]Button, 0, 4)
		for _, minute := range []int{0, 15, 30, 45} {
			slot := fmt.Sprintf("%02d:%02d", hour, minute)
			label := slot
			if session.HasSlot(slot) {
				label = "✅ " + slot
			}
			row = append(row, Button{Label: label, Data: "slot:" + slot})
		}
		menu = append(menu, row)
	}
	menu = append(menu, []Button{
		{Label: "💾 Commit", Data: "slots:commit"},
		{Label: "🗑 Clear", Data: "slots:clear"},
	})
	return &Reply{
		Text: fmt.Sprintf("🕒 %s: pick up to %d slots (%d selected).",
			session.Weekday, session.PostCount, len(session.Slots)),
		Menu: menu,
	}
}

func validSlot(slot string) bool {
	parsed, err := time.Parse("15:04", slot)
	if err != nil {
		return false
	}
	return parsed.Minute()%15 == 0
}
