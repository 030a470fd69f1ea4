package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ChatMessage is one turn of the conversation with the companion.
type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Reminder is a daily schedule entry. Time is "HH:MM" or TimeUnset.
type Reminder struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Time        string    `json:"time"`
	Color       string    `json:"color"`
	IsCompleted bool      `json:"is_completed"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReminderDraft is the structured result of reminder extraction.
type ReminderDraft struct {
	Title string `json:"title"`
	Time  string `json:"time"`
}

// Memory is a photo in the album.
type Memory struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ImageURL   string    `json:"image_url"`
	Caption    string    `json:"caption"`
	UploadedBy string    `json:"uploaded_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ProfileCategory groups profile items.
type ProfileCategory string

const (
	ProfileCategoryFamily ProfileCategory = "family"
	ProfileCategoryHobby  ProfileCategory = "hobby"
	ProfileCategoryMemory ProfileCategory = "memory"
	ProfileCategoryOther  ProfileCategory = "other"
)

// ProfileCategories lists categories in display order.
func ProfileCategories() []ProfileCategory {
	return []ProfileCategory{
		ProfileCategoryFamily,
		ProfileCategoryHobby,
		ProfileCategoryMemory,
		ProfileCategoryOther,
	}
}

// Label returns the Japanese heading shown for the category.
func (c ProfileCategory) Label() string {
	switch c {
	case ProfileCategoryFamily:
		return "家族"
	case ProfileCategoryHobby:
		return "趣味や好きなこと"
	case ProfileCategoryMemory:
		return "思い出"
	case ProfileCategoryOther:
		return "その他"
	default:
		return string(c)
	}
}

// ParseProfileCategory accepts either the category key or its Japanese label.
func ParseProfileCategory(raw string) (ProfileCategory, error) {
	value := strings.TrimSpace(raw)
	for _, category := range ProfileCategories() {
		if value == string(category) || value == category.Label() {
			return category, nil
		}
	}
	return "", fmt.Errorf("%w: unknown profile category %q", ErrInvalid, raw)
}

// ProfileItem is a single remembered fact about the user.
type ProfileItem struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Category  ProfileCategory `json:"category"`
	Name      string          `json:"name"`
	Details   string          `json:"details"`
	CreatedAt time.Time       `json:"created_at"`
}

// Gender values offered by the profile form.
type Gender string

const (
	GenderMale        Gender = "男性"
	GenderFemale      Gender = "女性"
	GenderOther       Gender = "その他"
	GenderUnspecified Gender = "無回答"
)

// Valid reports whether g is one of the offered values.
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther, GenderUnspecified:
		return true
	default:
		return false
	}
}

// User is the device owner and their profile.
type User struct {
	ID           string        `json:"id"`
	DisplayName  string        `json:"display_name"`
	Gender       Gender        `json:"gender"`
	DOB          string        `json:"dob"`
	ProfileItems []ProfileItem `json:"profile_items"`
}

// PlaceholderUser is the profile shown before the owner fills in their own.
func PlaceholderUser(id string) User {
	return User{ID: id, DisplayName: "田中 克己", Gender: GenderMale, DOB: "1945-03-10"}
}

// Validate checks the basic-info fields of the profile form.
func (u User) Validate() error {
	if strings.TrimSpace(u.DisplayName) == "" {
		return fmt.Errorf("%w: display name is required", ErrInvalid)
	}
	if u.Gender != "" && !u.Gender.Valid() {
		return fmt.Errorf("%w: unknown gender %q", ErrInvalid, u.Gender)
	}
	if u.DOB != "" {
		if _, err := time.Parse(time.DateOnly, u.DOB); err != nil {
			return fmt.Errorf("%w: dob must be YYYY-MM-DD", ErrInvalid)
		}
	}
	return nil
}

// ErrInvalid marks input that fails validation.
var ErrInvalid = errors.New("invalid input")

// RemoteError marks a failed persistence or generative-text call.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Remote wraps err as a RemoteError unless it is nil or already one.
func Remote(op string, err error) error {
	if err == nil {
		return nil
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return err
	}
	return &RemoteError{Op: op, Err: err}
}
