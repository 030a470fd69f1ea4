package supabase

import (
	"context"
	"time"

	"mimitomo/internal/domain"
	"mimitomo/internal/ports"
)

// Insert payloads leave id and created_at to column defaults unless set.

type userInsert struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"display_name"`
	Gender      string `json:"gender"`
	DOB         string `json:"dob"`
}

type userPatch struct {
	DisplayName string `json:"display_name"`
	Gender      string `json:"gender"`
	DOB         string `json:"dob"`
}

type profileItemInsert struct {
	ID        string     `json:"id,omitempty"`
	UserID    string     `json:"user_id"`
	Category  string     `json:"category"`
	Name      string     `json:"name"`
	Details   string     `json:"details"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type profileItemPatch struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Details  string `json:"details"`
}

type reminderInsert struct {
	ID          string     `json:"id,omitempty"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Time        string     `json:"time"`
	Color       string     `json:"color"`
	IsCompleted bool       `json:"is_completed"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

type reminderPatch struct {
	Title       string `json:"title"`
	Time        string `json:"time"`
	Color       string `json:"color"`
	IsCompleted bool   `json:"is_completed"`
}

type memoryInsert struct {
	ID         string     `json:"id,omitempty"`
	UserID     string     `json:"user_id"`
	ImageURL   string     `json:"image_url"`
	Caption    string     `json:"caption"`
	UploadedBy string     `json:"uploaded_by,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}

type memoryPatch struct {
	ImageURL string `json:"image_url"`
	Caption  string `json:"caption"`
}

type chatMessageInsert struct {
	ID        string     `json:"id,omitempty"`
	UserID    string     `json:"user_id"`
	Role      string     `json:"role"`
	Text      string     `json:"text"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func byUser(userID string, order string) map[string]string {
	return map[string]string{"user_id": eq(userID), "order": order}
}

// --- users ---

type users struct{ s *Store }

func (r *users) Create(ctx context.Context, user domain.User) (domain.User, error) {
	created, err := insertRow[domain.User](ctx, r.s, "users", userInsert{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Gender:      string(user.Gender),
		DOB:         user.DOB,
	})
	created.ProfileItems = nil
	return created, err
}

func (r *users) Get(ctx context.Context, id string) (domain.User, error) {
	return getRow[domain.User](ctx, r.s, "users", id)
}

func (r *users) Update(ctx context.Context, user domain.User) (domain.User, error) {
	return patchRow[domain.User](ctx, r.s, "users", user.ID, userPatch{
		DisplayName: user.DisplayName,
		Gender:      string(user.Gender),
		DOB:         user.DOB,
	})
}

func (r *users) Delete(ctx context.Context, id string) error {
	for _, table := range []string{"profile_items", "reminders", "memories", "chat_messages"} {
		if _, err := deleteRows(ctx, r.s, table, map[string]string{"user_id": eq(id)}); err != nil {
			return err
		}
	}
	return deleteRow(ctx, r.s, "users", id)
}

// --- profile items ---

type profileItems struct{ s *Store }

func (r *profileItems) Create(ctx context.Context, item domain.ProfileItem) (domain.ProfileItem, error) {
	return insertRow[domain.ProfileItem](ctx, r.s, "profile_items", profileItemInsert{
		ID:        item.ID,
		UserID:    item.UserID,
		Category:  string(item.Category),
		Name:      item.Name,
		Details:   item.Details,
		CreatedAt: timePtr(item.CreatedAt),
	})
}

func (r *profileItems) Get(ctx context.Context, id string) (domain.ProfileItem, error) {
	return getRow[domain.ProfileItem](ctx, r.s, "profile_items", id)
}

func (r *profileItems) Update(ctx context.Context, item domain.ProfileItem) (domain.ProfileItem, error) {
	return patchRow[domain.ProfileItem](ctx, r.s, "profile_items", item.ID, profileItemPatch{
		Category: string(item.Category),
		Name:     item.Name,
		Details:  item.Details,
	})
}

func (r *profileItems) Delete(ctx context.Context, id string) error {
	return deleteRow(ctx, r.s, "profile_items", id)
}

func (r *profileItems) List(ctx context.Context, userID string) ([]domain.ProfileItem, error) {
	return selectRows[domain.ProfileItem](ctx, r.s, "profile_items", byUser(userID, "created_at.asc,seq.asc"))
}

// --- reminders ---

type reminders struct{ s *Store }

func (r *reminders) Create(ctx context.Context, reminder domain.Reminder) (domain.Reminder, error) {
	return insertRow[domain.Reminder](ctx, r.s, "reminders", reminderInsert{
		ID:          reminder.ID,
		UserID:      reminder.UserID,
		Title:       reminder.Title,
		Time:        reminder.Time,
		Color:       reminder.Color,
		IsCompleted: reminder.IsCompleted,
		CreatedAt:   timePtr(reminder.CreatedAt),
	})
}

func (r *reminders) Get(ctx context.Context, id string) (domain.Reminder, error) {
	return getRow[domain.Reminder](ctx, r.s, "reminders", id)
}

func (r *reminders) Update(ctx context.Context, reminder domain.Reminder) (domain.Reminder, error) {
	return patchRow[domain.Reminder](ctx, r.s, "reminders", reminder.ID, reminderPatch{
		Title:       reminder.Title,
		Time:        reminder.Time,
		Color:       reminder.Color,
		IsCompleted: reminder.IsCompleted,
	})
}

func (r *reminders) Delete(ctx context.Context, id string) error {
	return deleteRow(ctx, r.s, "reminders", id)
}

func (r *reminders) List(ctx context.Context, userID string) ([]domain.Reminder, error) {
	return selectRows[domain.Reminder](ctx, r.s, "reminders", byUser(userID, "seq.asc"))
}

// --- memories ---

type memories struct{ s *Store }

func (r *memories) Create(ctx context.Context, memory domain.Memory) (domain.Memory, error) {
	return insertRow[domain.Memory](ctx, r.s, "memories", memoryInsert{
		ID:         memory.ID,
		UserID:     memory.UserID,
		ImageURL:   memory.ImageURL,
		Caption:    memory.Caption,
		UploadedBy: memory.UploadedBy,
		CreatedAt:  timePtr(memory.CreatedAt),
	})
}

func (r *memories) Get(ctx context.Context, id string) (domain.Memory, error) {
	return getRow[domain.Memory](ctx, r.s, "memories", id)
}

func (r *memories) Update(ctx context.Context, memory domain.Memory) (domain.Memory, error) {
	return patchRow[domain.Memory](ctx, r.s, "memories", memory.ID, memoryPatch{
		ImageURL: memory.ImageURL,
		Caption:  memory.Caption,
	})
}

func (r *memories) Delete(ctx context.Context, id string) error {
	return deleteRow(ctx, r.s, "memories", id)
}

func (r *memories) List(ctx context.Context, userID string) ([]domain.Memory, error) {
	return selectRows[domain.Memory](ctx, r.s, "memories", byUser(userID, "created_at.desc,seq.desc"))
}

// --- chat messages ---

type chatMessages struct{ s *Store }

func (r *chatMessages) Create(ctx context.Context, message domain.ChatMessage) (domain.ChatMessage, error) {
	return insertRow[domain.ChatMessage](ctx, r.s, "chat_messages", chatMessageInsert{
		ID:        message.ID,
		UserID:    message.UserID,
		Role:      string(message.Role),
		Text:      message.Text,
		CreatedAt: timePtr(message.CreatedAt),
	})
}

func (r *chatMessages) Get(ctx context.Context, id string) (domain.ChatMessage, error) {
	return getRow[domain.ChatMessage](ctx, r.s, "chat_messages", id)
}

func (r *chatMessages) Delete(ctx context.Context, id string) error {
	return deleteRow(ctx, r.s, "chat_messages", id)
}

func (r *chatMessages) List(ctx context.Context, userID string) ([]domain.ChatMessage, error) {
	return selectRows[domain.ChatMessage](ctx, r.s, "chat_messages", byUser(userID, "seq.asc"))
}

var (
	_ ports.Store         = (*Store)(nil)
	_ ports.ObjectStorage = (*Store)(nil)
)
