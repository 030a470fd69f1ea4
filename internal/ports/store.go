package ports

import (
	"context"
	"io"

	"mimitomo/internal/domain"
)

// Store groups the per-table repositories. Every record belongs to one user.
type Store interface {
	Users() Users
	ProfileItems() ProfileItems
	Reminders() Reminders
	Memories() Memories
	ChatMessages() ChatMessages
	Close() error
}

// Users persists the device owner's basic info. ProfileItems is never
// populated by this repository.
type Users interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	Get(ctx context.Context, id string) (domain.User, error)
	Update(ctx context.Context, user domain.User) (domain.User, error)
	Delete(ctx context.Context, id string) error
}

// ProfileItems lists in creation order, ties broken by id.
type ProfileItems interface {
	Create(ctx context.Context, item domain.ProfileItem) (domain.ProfileItem, error)
	Get(ctx context.Context, id string) (domain.ProfileItem, error)
	Update(ctx context.Context, item domain.ProfileItem) (domain.ProfileItem, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, userID string) ([]domain.ProfileItem, error)
}

// Reminders lists in insertion order.
type Reminders interface {
	Create(ctx context.Context, reminder domain.Reminder) (domain.Reminder, error)
	Get(ctx context.Context, id string) (domain.Reminder, error)
	Update(ctx context.Context, reminder domain.Reminder) (domain.Reminder, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, userID string) ([]domain.Reminder, error)
}

// Memories lists newest first.
type Memories interface {
	Create(ctx context.Context, memory domain.Memory) (domain.Memory, error)
	Get(ctx context.Context, id string) (domain.Memory, error)
	Update(ctx context.Context, memory domain.Memory) (domain.Memory, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, userID string) ([]domain.Memory, error)
}

// ChatMessages is append-only and lists in insertion order.
type ChatMessages interface {
	Create(ctx context.Context, message domain.ChatMessage) (domain.ChatMessage, error)
	Get(ctx context.Context, id string) (domain.ChatMessage, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, userID string) ([]domain.ChatMessage, error)
}

// ObjectStorage stores uploaded images and returns their public URL.
type ObjectStorage interface {
	Put(ctx context.Context, key string, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}
