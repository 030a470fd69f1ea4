package sqlstore

import (
	"context"
	"time"

	"mimitomo/internal/domain"
	"mimitomo/internal/ports"
)

type scanner interface {
	Scan(dest ...any) error
}

// --- users ---

type users struct{ s *Store }

func (r *users) Create(ctx context.Context, user domain.User) (domain.User, error) {
	id, createdAt := r.s.stamp(user.ID, time.Time{})
	_, err := r.s.exec(ctx, `INSERT INTO users (id, display_name, gender, dob, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, user.DisplayName, string(user.Gender), user.DOB, toMillis(createdAt))
	if err != nil {
		return domain.User{}, err
	}
	user.ID = id
	user.ProfileItems = nil
	return user, nil
}

func (r *users) Get(ctx context.Context, id string) (domain.User, error) {
	var user domain.User
	var gender string
	row := r.s.queryRow(ctx, `SELECT id, display_name, gender, dob FROM users WHERE id = ?`, id)
	if err := row.Scan(&user.ID, &user.DisplayName, &gender, &user.DOB); err != nil {
		return domain.User{}, notFound(err)
	}
	user.Gender = domain.Gender(gender)
	return user, nil
}

func (r *users) Update(ctx context.Context, user domain.User) (domain.User, error) {
	if err := r.s.execOne(ctx, `UPDATE users SET display_name = ?, gender = ?, dob = ? WHERE id = ?`,
		user.DisplayName, string(user.Gender), user.DOB, user.ID); err != nil {
		return domain.User{}, err
	}
	return r.Get(ctx, user.ID)
}

// Delete removes the user and every record they own.
func (r *users) Delete(ctx context.Context, id string) error {
	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"profile_items", "reminders", "memories", "chat_messages"} {
		if _, err := tx.ExecContext(ctx, r.s.dialect.Rebind(`DELETE FROM `+table+` WHERE user_id = ?`), id); err != nil {
			return err
		}
	}
	result, err := tx.ExecContext(ctx, r.s.dialect.Rebind(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ports.ErrNotFound
	}
	return tx.Commit()
}

// --- profile items ---

type profileItems struct{ s *Store }

const profileItemColumns = `id, user_id, category, name, details, created_at`

func scanProfileItem(row scanner) (domain.ProfileItem, error) {
	var item domain.ProfileItem
	var category string
	var created int64
	if err := row.Scan(&item.ID, &item.UserID, &category, &item.Name, &item.Details, &created); err != nil {
		return domain.ProfileItem{}, notFound(err)
	}
	item.Category = domain.ProfileCategory(category)
	item.CreatedAt = fromMillis(created)
	return item, nil
}

func (r *profileItems) Create(ctx context.Context, item domain.ProfileItem) (domain.ProfileItem, error) {
	item.ID, item.CreatedAt = r.s.stamp(item.ID, item.CreatedAt)
	_, err := r.s.exec(ctx, `INSERT INTO profile_items (`+profileItemColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.UserID, string(item.Category), item.Name, item.Details, toMillis(item.CreatedAt))
	if err != nil {
		return domain.ProfileItem{}, err
	}
	return item, nil
}

func (r *profileItems) Get(ctx context.Context, id string) (domain.ProfileItem, error) {
	return scanProfileItem(r.s.queryRow(ctx, `SELECT `+profileItemColumns+` FROM profile_items WHERE id = ?`, id))
}

func (r *profileItems) Update(ctx context.Context, item domain.ProfileItem) (domain.ProfileItem, error) {
	if err := r.s.execOne(ctx, `UPDATE profile_items SET category = ?, name = ?, details = ? WHERE id = ?`,
		string(item.Category), item.Name, item.Details, item.ID); err != nil {
		return domain.ProfileItem{}, err
	}
	return r.Get(ctx, item.ID)
}

func (r *profileItems) Delete(ctx context.Context, id string) error {
	return r.s.execOne(ctx, `DELETE FROM profile_items WHERE id = ?`, id)
}

func (r *profileItems) List(ctx context.Context, userID string) ([]domain.ProfileItem, error) {
	rows, err := r.s.query(ctx, `SELECT `+profileItemColumns+` FROM profile_items WHERE user_id = ? ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []domain.ProfileItem{}
	for rows.Next() {
		item, err := scanProfileItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// --- reminders ---

type reminders struct{ s *Store }

const reminderColumns = `id, user_id, title, time, color, is_completed, created_at`

func scanReminder(row scanner) (domain.Reminder, error) {
	var reminder domain.Reminder
	var created int64
	if err := row.Scan(&reminder.ID, &reminder.UserID, &reminder.Title, &reminder.Time,
		&reminder.Color, &reminder.IsCompleted, &created); err != nil {
		return domain.Reminder{}, notFound(err)
	}
	reminder.CreatedAt = fromMillis(created)
	return reminder, nil
}

func (r *reminders) Create(ctx context.Context, reminder domain.Reminder) (domain.Reminder, error) {
	reminder.ID, reminder.CreatedAt = r.s.stamp(reminder.ID, reminder.CreatedAt)
	_, err := r.s.exec(ctx, `INSERT INTO reminders (`+reminderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		reminder.ID, reminder.UserID, reminder.Title, reminder.Time, reminder.Color,
		reminder.IsCompleted, toMillis(reminder.CreatedAt))
	if err != nil {
		return domain.Reminder{}, err
	}
	return reminder, nil
}

func (r *reminders) Get(ctx context.Context, id string) (domain.Reminder, error) {
	return scanReminder(r.s.queryRow(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id))
}

func (r *reminders) Update(ctx context.Context, reminder domain.Reminder) (domain.Reminder, error) {
	if err := r.s.execOne(ctx, `UPDATE reminders SET title = ?, time = ?, color = ?, is_completed = ? WHERE id = ?`,
		reminder.Title, reminder.Time, reminder.Color, reminder.IsCompleted, reminder.ID); err != nil {
		return domain.Reminder{}, err
	}
	return r.Get(ctx, reminder.ID)
}

func (r *reminders) Delete(ctx context.Context, id string) error {
	return r.s.execOne(ctx, `DELETE FROM reminders WHERE id = ?`, id)
}

func (r *reminders) List(ctx context.Context, userID string) ([]domain.Reminder, error) {
	rows, err := r.s.query(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE user_id = ? ORDER BY seq ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Reminder{}
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, reminder)
	}
	return out, rows.Err()
}

// --- memories ---

type memories struct{ s *Store }

const memoryColumns = `id, user_id, image_url, caption, uploaded_by, created_at`

func scanMemory(row scanner) (domain.Memory, error) {
	var memory domain.Memory
	var created int64
	if err := row.Scan(&memory.ID, &memory.UserID, &memory.ImageURL, &memory.Caption,
		&memory.UploadedBy, &created); err != nil {
		return domain.Memory{}, notFound(err)
	}
	memory.CreatedAt = fromMillis(created)
	return memory, nil
}

func (r *memories) Create(ctx context.Context, memory domain.Memory) (domain.Memory, error) {
	memory.ID, memory.CreatedAt = r.s.stamp(memory.ID, memory.CreatedAt)
	_, err := r.s.exec(ctx, `INSERT INTO memories (`+memoryColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		memory.ID, memory.UserID, memory.ImageURL, memory.Caption, memory.UploadedBy, toMillis(memory.CreatedAt))
	if err != nil {
		return domain.Memory{}, err
	}
	return memory, nil
}

func (r *memories) Get(ctx context.Context, id string) (domain.Memory, error) {
	return scanMemory(r.s.queryRow(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id))
}

func (r *memories) Update(ctx context.Context, memory domain.Memory) (domain.Memory, error) {
	if err := r.s.execOne(ctx, `UPDATE memories SET image_url = ?, caption = ? WHERE id = ?`,
		memory.ImageURL, memory.Caption, memory.ID); err != nil {
		return domain.Memory{}, err
	}
	return r.Get(ctx, memory.ID)
}

func (r *memories) Delete(ctx context.Context, id string) error {
	return r.s.execOne(ctx, `DELETE FROM memories WHERE id = ?`, id)
}

func (r *memories) List(ctx context.Context, userID string) ([]domain.Memory, error) {
	rows, err := r.s.query(ctx, `SELECT `+memoryColumns+` FROM memories WHERE user_id = ? ORDER BY created_at DESC, seq DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Memory{}
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, memory)
	}
	return out, rows.Err()
}

// --- chat messages ---

type chatMessages struct{ s *Store }

const chatMessageColumns = `id, user_id, role, text, created_at`

func scanChatMessage(row scanner) (domain.ChatMessage, error) {
	var message domain.ChatMessage
	var role string
	var created int64
	if err := row.Scan(&message.ID, &message.UserID, &role, &message.Text, &created); err != nil {
		return domain.ChatMessage{}, notFound(err)
	}
	message.Role = domain.Role(role)
	message.CreatedAt = fromMillis(created)
	return message, nil
}

func (r *chatMessages) Create(ctx context.Context, message domain.ChatMessage) (domain.ChatMessage, error) {
	message.ID, message.CreatedAt = r.s.stamp(message.ID, message.CreatedAt)
	_, err := r.s.exec(ctx, `INSERT INTO chat_messages (`+chatMessageColumns+`) VALUES (?, ?, ?, ?, ?)`,
		message.ID, message.UserID, string(message.Role), message.Text, toMillis(message.CreatedAt))
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return message, nil
}

func (r *chatMessages) Get(ctx context.Context, id string) (domain.ChatMessage, error) {
	return scanChatMessage(r.s.queryRow(ctx, `SELECT `+chatMessageColumns+` FROM chat_messages WHERE id = ?`, id))
}

func (r *chatMessages) Delete(ctx context.Context, id string) error {
	return r.s.execOne(ctx, `DELETE FROM chat_messages WHERE id = ?`, id)
}

func (r *chatMessages) List(ctx context.Context, userID string) ([]domain.ChatMessage, error) {
	rows, err := r.s.query(ctx, `SELECT `+chatMessageColumns+` FROM chat_messages WHERE user_id = ? ORDER BY seq ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ChatMessage{}
	for rows.Next() {
		message, err := scanChatMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, message)
	}
	return out, rows.Err()
}
