// Package storetest is a compliance suite every ports.Store driver runs.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"mimitomo/internal/domain"
	"mimitomo/internal/ports"
)

// Run exercises the repositories of a clean store returned by makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) ports.Store) {
	t.Helper()

	t.Run("users", func(t *testing.T) { testUsers(t, makeStore(t)) })
	t.Run("profile items", func(t *testing.T) { testProfileItems(t, makeStore(t)) })
	t.Run("reminders", func(t *testing.T) { testReminders(t, makeStore(t)) })
	t.Run("memories", func(t *testing.T) { testMemories(t, makeStore(t)) })
	t.Run("chat messages", func(t *testing.T) { testChatMessages(t, makeStore(t)) })
	t.Run("delete user cascades", func(t *testing.T) { testDeleteUser(t, makeStore(t)) })
}

func newUserID() string {
	return "u-" + uuid.New().String()
}

func testUsers(t *testing.T, s ports.Store) {
	ctx := context.Background()
	userID := newUserID()

	created, err := s.Users().Create(ctx, domain.User{ID: userID, DisplayName: "山田 花子", Gender: domain.GenderFemale, DOB: "1940-04-01"})
	require.NoError(t, err)
	require.Equal(t, userID, created.ID)

	got, err := s.Users().Get(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, "山田 花子", got.DisplayName)
	require.Equal(t, domain.GenderFemale, got.Gender)
	require.Equal(t, "1940-04-01", got.DOB)

	got.DisplayName = "山田 はなこ"
	got.Gender = domain.GenderUnspecified
	updated, err := s.Users().Update(ctx, got)
	require.NoError(t, err)
	require.Equal(t, "山田 はなこ", updated.DisplayName)
	require.Equal(t, domain.GenderUnspecified, updated.Gender)

	generated, err := s.Users().Create(ctx, domain.User{DisplayName: "自動"})
	require.NoError(t, err)
	require.NotEmpty(t, generated.ID)

	_, err = s.Users().Get(ctx, newUserID())
	require.ErrorIs(t, err, ports.ErrNotFound)
	_, err = s.Users().Update(ctx, domain.User{ID: newUserID(), DisplayName: "x"})
	require.ErrorIs(t, err, ports.ErrNotFound)
}

func testProfileItems(t *testing.T, s ports.Store) {
	ctx := context.Background()
	userID := newUserID()
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	second, err := s.ProfileItems().Create(ctx, domain.ProfileItem{UserID: userID, Category: domain.ProfileCategoryHobby, Name: "釣り", Details: "海釣り", CreatedAt: base.Add(time.Minute)})
	require.NoError(t, err)
	first, err := s.ProfileItems().Create(ctx, domain.ProfileItem{UserID: userID, Category: domain.ProfileCategoryFamily, Name: "さくら", Details: "一人娘", CreatedAt: base})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	_, err = s.ProfileItems().Create(ctx, domain.ProfileItem{UserID: newUserID(), Category: domain.ProfileCategoryOther, Name: "他人"})
	require.NoError(t, err)

	items, err := s.ProfileItems().List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, first.ID, items[0].ID)
	require.Equal(t, second.ID, items[1].ID)
	require.Equal(t, domain.ProfileCategoryFamily, items[0].Category)

	second.Details = "川釣りも好き"
	updated, err := s.ProfileItems().Update(ctx, second)
	require.NoError(t, err)
	require.Equal(t, "川釣りも好き", updated.Details)
	require.Equal(t, userID, updated.UserID)

	require.NoError(t, s.ProfileItems().Delete(ctx, first.ID))
	_, err = s.ProfileItems().Get(ctx, first.ID)
	require.ErrorIs(t, err, ports.ErrNotFound)
	require.ErrorIs(t, s.ProfileItems().Delete(ctx, first.ID), ports.ErrNotFound)
}

func testReminders(t *testing.T, s ports.Store) {
	ctx := context.Background()
	userID := newUserID()

	titles := []string{"散歩", "薬を飲む", "電話"}
	var ids []string
	for _, title := range titles {
		reminder, err := s.Reminders().Create(ctx, domain.Reminder{UserID: userID, Title: title, Time: domain.TimeUnset, Color: domain.DefaultReminderColor})
		require.NoError(t, err)
		require.False(t, reminder.IsCompleted)
		ids = append(ids, reminder.ID)
	}

	list, err := s.Reminders().List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, reminder := range list {
		require.Equal(t, ids[i], reminder.ID, "reminders must list in insertion order")
	}

	toggled := list[1]
	toggled.IsCompleted = true
	toggled.Time = "08:00"
	updated, err := s.Reminders().Update(ctx, toggled)
	require.NoError(t, err)
	require.True(t, updated.IsCompleted)
	require.Equal(t, "08:00", updated.Time)
	require.Equal(t, domain.DefaultReminderColor, updated.Color)

	require.NoError(t, s.Reminders().Delete(ctx, ids[0]))
	list, err = s.Reminders().List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	_, err = s.Reminders().Update(ctx, domain.Reminder{ID: uuid.New().String(), Title: "x"})
	require.ErrorIs(t, err, ports.ErrNotFound)
}

func testMemories(t *testing.T, s ports.Store) {
	ctx := context.Background()
	userID := newUserID()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	older, err := s.Memories().Create(ctx, domain.Memory{UserID: userID, ImageURL: "/media/a.jpg", Caption: "桜", CreatedAt: base})
	require.NoError(t, err)
	newer, err := s.Memories().Create(ctx, domain.Memory{UserID: userID, ImageURL: "/media/b.jpg", Caption: "孫と", UploadedBy: "さくら", CreatedAt: base.Add(time.Hour)})
	require.NoError(t, err)

	list, err := s.Memories().List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, newer.ID, list[0].ID)
	require.Equal(t, older.ID, list[1].ID)
	require.Equal(t, "さくら", list[0].UploadedBy)
	require.True(t, list[0].CreatedAt.Equal(base.Add(time.Hour)))

	older.Caption = "満開の桜"
	updated, err := s.Memories().Update(ctx, older)
	require.NoError(t, err)
	require.Equal(t, "満開の桜", updated.Caption)

	require.NoError(t, s.Memories().Delete(ctx, newer.ID))
	_, err = s.Memories().Get(ctx, newer.ID)
	require.ErrorIs(t, err, ports.ErrNotFound)
}

func testChatMessages(t *testing.T, s ports.Store) {
	ctx := context.Background()
	userID := newUserID()

	turns := []domain.ChatMessage{
		{UserID: userID, Role: domain.RoleUser, Text: "こんにちは"},
		{UserID: userID, Role: domain.RoleModel, Text: "こんにちは！"},
		{UserID: userID, Role: domain.RoleUser, Text: "いい天気ね"},
	}
	for _, turn := range turns {
		_, err := s.ChatMessages().Create(ctx, turn)
		require.NoError(t, err)
	}

	list, err := s.ChatMessages().List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, message := range list {
		require.Equal(t, turns[i].Text, message.Text)
		require.Equal(t, turns[i].Role, message.Role)
		require.False(t, message.CreatedAt.IsZero())
	}

	got, err := s.ChatMessages().Get(ctx, list[1].ID)
	require.NoError(t, err)
	require.Equal(t, domain.RoleModel, got.Role)

	require.NoError(t, s.ChatMessages().Delete(ctx, list[0].ID))
	empty, err := s.ChatMessages().List(ctx, newUserID())
	require.NoError(t, err)
	require.Empty(t, empty)
}

func testDeleteUser(t *testing.T, s ports.Store) {
	ctx := context.Background()
	userID := newUserID()

	_, err := s.Users().Create(ctx, domain.User{ID: userID, DisplayName: "消す人"})
	require.NoError(t, err)
	_, err = s.Reminders().Create(ctx, domain.Reminder{UserID: userID, Title: "散歩", Time: "08:00"})
	require.NoError(t, err)
	_, err = s.ChatMessages().Create(ctx, domain.ChatMessage{UserID: userID, Role: domain.RoleUser, Text: "やあ"})
	require.NoError(t, err)

	require.NoError(t, s.Users().Delete(ctx, userID))
	_, err = s.Users().Get(ctx, userID)
	require.ErrorIs(t, err, ports.ErrNotFound)

	reminders, err := s.Reminders().List(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, reminders)
	messages, err := s.ChatMessages().List(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, messages)

	require.ErrorIs(t, s.Users().Delete(ctx, userID), ports.ErrNotFound)
}
