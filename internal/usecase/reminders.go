package usecase

import (
	"context"
	"fmt"
	"strings"

	"mimitomo/internal/domain"
	"mimitomo/internal/ports"
)

// Reminders manages the daily schedule.
type Reminders struct {
	store   ports.Store
	ai      ports.GenerativeText
	metrics ports.RemoteMetrics
}

func NewReminders(store ports.Store, ai ports.GenerativeText, metrics ports.RemoteMetrics) *Reminders {
	return &Reminders{store: store, ai: ai, metrics: remoteMetricsOrNoop(metrics)}
}

// List returns reminders by time of day, unset times last.
func (r *Reminders) List(ctx context.Context, userID string) ([]domain.Reminder, error) {
	reminders, err := call(r.metrics, "reminders.list", func() ([]domain.Reminder, error) {
		return r.store.Reminders().List(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	domain.SortReminders(reminders)
	return reminders, nil
}

// Add saves a reminder entered by hand.
func (r *Reminders) Add(ctx context.Context, userID string, title string, clock string) (domain.Reminder, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Reminder{}, fmt.Errorf("%w: title is required", domain.ErrInvalid)
	}
	normalized, err := domain.NormalizeClock(clock)
	if err != nil {
		return domain.Reminder{}, err
	}
	return r.create(ctx, userID, title, normalized)
}

// AddFromSpeech extracts a title and time from spoken text and saves it.
func (r *Reminders) AddFromSpeech(ctx context.Context, userID string, text string) (domain.Reminder, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Reminder{}, fmt.Errorf("%w: text is empty", domain.ErrInvalid)
	}

	draft, err := call(r.metrics, "genai.extract_reminder", func() (domain.ReminderDraft, error) {
		return r.ai.ExtractReminder(ctx, text)
	})
	if err != nil {
		return domain.Reminder{}, err
	}

	title := strings.TrimSpace(draft.Title)
	if title == "" {
		title = domain.UntitledReminder
	}
	clock, err := domain.NormalizeClock(draft.Time)
	if err != nil {
		clock = domain.TimeUnset
	}
	return r.create(ctx, userID, title, clock)
}

// Toggle flips the completed flag.
func (r *Reminders) Toggle(ctx context.Context, userID string, id string) (domain.Reminder, error) {
	reminder, err := r.owned(ctx, userID, id)
	if err != nil {
		return domain.Reminder{}, err
	}
	reminder.IsCompleted = !reminder.IsCompleted
	return call(r.metrics, "reminders.update", func() (domain.Reminder, error) {
		return r.store.Reminders().Update(ctx, reminder)
	})
}

func (r *Reminders) Delete(ctx context.Context, userID string, id string) error {
	if _, err := r.owned(ctx, userID, id); err != nil {
		return err
	}
	return callErr(r.metrics, "reminders.delete", func() error {
		return r.store.Reminders().Delete(ctx, id)
	})
}

func (r *Reminders) create(ctx context.Context, userID string, title string, clock string) (domain.Reminder, error) {
	return call(r.metrics, "reminders.create", func() (domain.Reminder, error) {
		return r.store.Reminders().Create(ctx, domain.Reminder{
			UserID: userID,
			Title:  title,
			Time:   clock,
			Color:  domain.DefaultReminderColor,
		})
	})
}

func (r *Reminders) owned(ctx context.Context, userID string, id string) (domain.Reminder, error) {
	reminder, err := call(r.metrics, "reminders.get", func() (domain.Reminder, error) {
		return r.store.Reminders().Get(ctx, id)
	})
	if err != nil {
		return domain.Reminder{}, err
	}
	if reminder.UserID != userID {
		return domain.Reminder{}, ports.ErrNotFound
	}
	return reminder, nil
}
