package store

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table and column names.
const (
	sessionsTable = "sessions"
	archiveTable  = "session_archive"
	eventsTable   = "telemetry_events"
)

var (
	sessionsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "user_id", Type: field.TypeString},
		{Name: "module_id", Type: field.TypeString},
		{Name: "status", Type: field.TypeString},
		{Name: "data", Type: field.TypeBytes},
		{Name: "updated_at", Type: field.TypeTime},
	}
	sessionsSchema = &schema.Table{
		Name:       sessionsTable,
		Columns:    sessionsColumns,
		PrimaryKey: []*schema.Column{sessionsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "sessions_user_id", Columns: []*schema.Column{sessionsColumns[1]}},
		},
	}

	archiveColumns = []*schema.Column{
		{Name: "session_id", Type: field.TypeString},
		{Name: "user_id", Type: field.TypeString},
		{Name: "module_id", Type: field.TypeString},
		{Name: "difficulty", Type: field.TypeString},
		{Name: "average_score", Type: field.TypeFloat64},
		{Name: "completed", Type: field.TypeBool},
		{Name: "results", Type: field.TypeBytes},
		{Name: "finalized_at", Type: field.TypeTime},
		{Name: "session", Type: field.TypeBytes, Nullable: true},
	}
	archiveSchema = &schema.Table{
		Name:       archiveTable,
		Columns:    archiveColumns,
		PrimaryKey: []*schema.Column{archiveColumns[0]},
		Indexes: []*schema.Index{
			{Name: "archive_module_difficulty", Columns: []*schema.Column{archiveColumns[2], archiveColumns[3]}},
		},
	}

	eventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "sequence", Type: field.TypeInt64},
		{Name: "type", Type: field.TypeString},
		{Name: "session_id", Type: field.TypeString},
		{Name: "user_id", Type: field.TypeString},
		{Name: "time", Type: field.TypeTime},
		{Name: "attrs", Type: field.TypeBytes, Nullable: true},
	}
	eventsSchema = &schema.Table{
		Name:       eventsTable,
		Columns:    eventsColumns,
		PrimaryKey: []*schema.Column{eventsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "events_sequence", Unique: true, Columns: []*schema.Column{eventsColumns[1]}},
			{Name: "events_session_id", Columns: []*schema.Column{eventsColumns[3]}},
		},
	}

	tables = []*schema.Table{sessionsSchema, archiveSchema, eventsSchema}
)
