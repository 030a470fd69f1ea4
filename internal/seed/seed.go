// Package seed loads a profile file prepared by the family:
//
//	user:
//	  display_name: 山田 花子
//	  gender: 女性
//	  dob: "1940-04-01"
//	profile_items:
//	  - category: 家族
//	    name: さくら
//	    details: 一人娘。毎週日曜に電話をくれる
//	reminders:
//	  - title: 薬を飲む
//	    time: "08:00"
package seed

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"mimitomo/internal/domain"
	"mimitomo/internal/usecase"
)

type File struct {
	User         User       `yaml:"user"`
	ProfileItems []Item     `yaml:"profile_items"`
	Reminders    []Reminder `yaml:"reminders"`
}

type User struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	Gender      string `yaml:"gender"`
	DOB         string `yaml:"dob"`
}

type Item struct {
	Category string `yaml:"category"`
	Name     string `yaml:"name"`
	Details  string `yaml:"details"`
}

type Reminder struct {
	Title string `yaml:"title"`
	Time  string `yaml:"time"`
}

// Result counts what Apply wrote.
type Result struct {
	User      domain.User
	Items     int
	Reminders int
}

func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read seed file %q: %w", path, err)
	}
	file, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("parse seed file %q: %w", path, err)
	}
	return file, nil
}

func Parse(data []byte) (File, error) {
	var file File
	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return File{}, err
	}
	if strings.TrimSpace(file.User.DisplayName) == "" {
		return File{}, fmt.Errorf("%w: user.display_name is required", domain.ErrInvalid)
	}
	return file, nil
}

// Apply writes the file for userID. An id in the file takes precedence. Basic
// info is overwritten; items and reminders are added.
func Apply(ctx context.Context, profiles *usecase.Profiles, reminders *usecase.Reminders, userID string, file File) (Result, error) {
	if id := strings.TrimSpace(file.User.ID); id != "" {
		userID = id
	}
	basic := domain.User{
		ID:          userID,
		DisplayName: file.User.DisplayName,
		Gender:      domain.Gender(strings.TrimSpace(file.User.Gender)),
		DOB:         strings.TrimSpace(file.User.DOB),
	}
	if _, err := profiles.Ensure(ctx, basic); err != nil {
		return Result{}, err
	}
	user, err := profiles.UpdateBasic(ctx, basic)
	if err != nil {
		return Result{}, err
	}

	result := Result{User: user}
	for i, item := range file.ProfileItems {
		if _, err := profiles.SaveItem(ctx, userID, domain.ProfileItem{
			Category: domain.ProfileCategory(item.Category),
			Name:     item.Name,
			Details:  item.Details,
		}); err != nil {
			return result, fmt.Errorf("profile item %d: %w", i+1, err)
		}
		result.Items++
	}
	for i, reminder := range file.Reminders {
		if _, err := reminders.Add(ctx, userID, reminder.Title, reminder.Time); err != nil {
			return result, fmt.Errorf("reminder %d: %w", i+1, err)
		}
		result.Reminders++
	}
	return result, nil
}
