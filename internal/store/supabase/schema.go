package supabase

import _ "embed"

// Schema creates the tables the driver reads and writes. Hosted projects
// apply it through the SQL editor.
//
//go:embed schema.sql
var Schema string
