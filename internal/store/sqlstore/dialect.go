package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect adapts queries written with ? placeholders to a database.
type Dialect struct {
	Name         string
	Numbered     bool
	SeqColumn    string
	BoolType     string
	TimestampCol string
}

var (
	SQLite = Dialect{
		Name:         "sqlite",
		SeqColumn:    "seq INTEGER PRIMARY KEY AUTOINCREMENT",
		BoolType:     "INTEGER",
		TimestampCol: "INTEGER",
	}
	Postgres = Dialect{
		Name:         "postgres",
		Numbered:     true,
		SeqColumn:    "seq BIGSERIAL PRIMARY KEY",
		BoolType:     "BOOLEAN",
		TimestampCol: "BIGINT",
	}
)

// Rebind rewrites ? placeholders to $1, $2... for numbered dialects.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Schema returns the statements that create every table.
func (d Dialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			` + d.SeqColumn + `,
			id TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			gender TEXT NOT NULL DEFAULT '',
			dob TEXT NOT NULL DEFAULT '',
			created_at ` + d.TimestampCol + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS profile_items (
			` + d.SeqColumn + `,
			id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			category TEXT NOT NULL,
			name TEXT NOT NULL,
			details TEXT NOT NULL DEFAULT '',
			created_at ` + d.TimestampCol + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS profile_items_user_idx ON profile_items (user_id)`,
		`CREATE TABLE IF NOT EXISTS reminders (
			` + d.SeqColumn + `,
			id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			time TEXT NOT NULL,
			color TEXT NOT NULL DEFAULT '',
			is_completed ` + d.BoolType + ` NOT NULL DEFAULT ` + d.falseLiteral() + `,
			created_at ` + d.TimestampCol + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS reminders_user_idx ON reminders (user_id)`,
		`CREATE TABLE IF NOT EXISTS memories (
			` + d.SeqColumn + `,
			id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			caption TEXT NOT NULL DEFAULT '',
			uploaded_by TEXT NOT NULL DEFAULT '',
			created_at ` + d.TimestampCol + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS memories_user_idx ON memories (user_id)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			` + d.SeqColumn + `,
			id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at ` + d.TimestampCol + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS chat_messages_user_idx ON chat_messages (user_id)`,
	}
}

func (d Dialect) falseLiteral() string {
	if d.BoolType == "BOOLEAN" {
		return "FALSE"
	}
	return "0"
}
