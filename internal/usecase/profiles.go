package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"mimitomo/internal/domain"
	"mimitomo/internal/ports"
)

// Profiles manages the device owner's profile.
type Profiles struct {
	store   ports.Store
	metrics ports.RemoteMetrics
}

func NewProfiles(store ports.Store, metrics ports.RemoteMetrics) *Profiles {
	return &Profiles{store: store, metrics: remoteMetricsOrNoop(metrics)}
}

// Load returns the user with profile items in creation order.
func (p *Profiles) Load(ctx context.Context, userID string) (domain.User, error) {
	var (
		user  domain.User
		items []domain.ProfileItem
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = call(p.metrics, "users.get", func() (domain.User, error) {
			return p.store.Users().Get(gctx, userID)
		})
		return err
	})
	g.Go(func() error {
		var err error
		items, err = call(p.metrics, "profile_items.list", func() ([]domain.ProfileItem, error) {
			return p.store.ProfileItems().List(gctx, userID)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.User{}, err
	}

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	user.ProfileItems = items
	return user, nil
}

// Ensure creates the user when no record exists yet and returns the stored one.
func (p *Profiles) Ensure(ctx context.Context, user domain.User) (domain.User, error) {
	existing, err := call(p.metrics, "users.get", func() (domain.User, error) {
		return p.store.Users().Get(ctx, user.ID)
	})
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ports.ErrNotFound) {
		return domain.User{}, err
	}
	if user.Gender == "" {
		user.Gender = domain.GenderUnspecified
	}
	if err := user.Validate(); err != nil {
		return domain.User{}, err
	}
	return call(p.metrics, "users.create", func() (domain.User, error) {
		return p.store.Users().Create(ctx, user)
	})
}

// UpdateBasic saves display name, gender and date of birth.
func (p *Profiles) UpdateBasic(ctx context.Context, user domain.User) (domain.User, error) {
	user.DisplayName = strings.TrimSpace(user.DisplayName)
	if user.Gender == "" {
		user.Gender = domain.GenderUnspecified
	}
	if err := user.Validate(); err != nil {
		return domain.User{}, err
	}
	return call(p.metrics, "users.update", func() (domain.User, error) {
		return p.store.Users().Update(ctx, user)
	})
}

// SaveItem creates the item when it has no id and updates it otherwise.
func (p *Profiles) SaveItem(ctx context.Context, userID string, item domain.ProfileItem) (domain.ProfileItem, error) {
	item.UserID = userID
	item.Name = strings.TrimSpace(item.Name)
	item.Details = strings.TrimSpace(item.Details)
	if item.Name == "" {
		return domain.ProfileItem{}, fmt.Errorf("%w: item name is required", domain.ErrInvalid)
	}
	category, err := domain.ParseProfileCategory(string(item.Category))
	if err != nil {
		return domain.ProfileItem{}, err
	}
	item.Category = category

	if item.ID == "" {
		return call(p.metrics, "profile_items.create", func() (domain.ProfileItem, error) {
			return p.store.ProfileItems().Create(ctx, item)
		})
	}

	existing, err := p.ownedItem(ctx, userID, item.ID)
	if err != nil {
		return domain.ProfileItem{}, err
	}
	item.CreatedAt = existing.CreatedAt
	return call(p.metrics, "profile_items.update", func() (domain.ProfileItem, error) {
		return p.store.ProfileItems().Update(ctx, item)
	})
}

func (p *Profiles) DeleteItem(ctx context.Context, userID string, id string) error {
	if _, err := p.ownedItem(ctx, userID, id); err != nil {
		return err
	}
	return callErr(p.metrics, "profile_items.delete", func() error {
		return p.store.ProfileItems().Delete(ctx, id)
	})
}

func (p *Profiles) ownedItem(ctx context.Context, userID string, id string) (domain.ProfileItem, error) {
	item, err := call(p.metrics, "profile_items.get", func() (domain.ProfileItem, error) {
		return p.store.ProfileItems().Get(ctx, id)
	})
	if err != nil {
		return domain.ProfileItem{}, err
	}
	if item.UserID != userID {
		return domain.ProfileItem{}, ports.ErrNotFound
	}
	return item, nil
}

// ProfileGroup is one category section of the profile screen.
type ProfileGroup struct {
	Category domain.ProfileCategory `json:"category"`
	Label    string                 `json:"label"`
	Items    []domain.ProfileItem   `json:"items"`
}

// GroupProfileItems buckets items by category in display order. Empty
// categories are kept so the UI can offer an add button for each.
func GroupProfileItems(items []domain.ProfileItem) []ProfileGroup {
	groups := make([]ProfileGroup, 0, len(domain.ProfileCategories()))
	for _, category := range domain.ProfileCategories() {
		group := ProfileGroup{Category: category, Label: category.Label(), Items: []domain.ProfileItem{}}
		for _, item := range items {
			if item.Category == category {
				group.Items = append(group.Items, item)
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// FormatProfileForAI renders the user as the context block handed to the
// conversation model.
func FormatProfileForAI(user domain.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ユーザーの基本情報:\n- 名前: %s\n- 性別: %s\n- 生年月日: %s\n\n", user.DisplayName, user.Gender, user.DOB)

	for _, group := range GroupProfileItems(user.ProfileItems) {
		if len(group.Items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%sについて:\n", group.Label)
		for _, item := range group.Items {
			fmt.Fprintf(&b, "- %s: %s\n", item.Name, item.Details)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
