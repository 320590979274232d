package entities

// LegacyEventRel is a row of the pre-2.0 relation table that linked an
// event to a list and group before the list-group table existed.
type LegacyEventRel struct {
	ID      uint   `gorm:"column:id;primaryKey;autoIncrement"`
	EventID int    `gorm:"column:event_id;not null"`
	ListID  string `gorm:"column:mailchimp_list_id;size:255;not null"`
	GroupID string `gorm:"column:mailchimp_group_id;size:255;not null"`
}

// TableName returns the table name for GORM.
func (LegacyEventRel) TableName() string {
	return "events_mailchimp_event_rel"
}

// RowID returns the primary key.
func (r LegacyEventRel) RowID() uint {
	return r.ID
}

// EventIDMapping maps an event ID from the old events table to the ID the
// event received in the new one.
type EventIDMapping struct {
	OldEventID int `gorm:"column:old_event_id;primaryKey;autoIncrement:false"`
	NewEventID int `gorm:"column:new_event_id;not null"`
}

// TableName returns the table name for GORM.
func (EventIDMapping) TableName() string {
	return "migration_event_map"
}

// QuestionMailchimpField links a registration question to a merge field.
// No stage rewrites it; merge field IDs are the same in both API versions.
type QuestionMailchimpField struct {
	ID         uint   `gorm:"column:QMC_ID;primaryKey;autoIncrement"`
	EventID    int    `gorm:"column:EVT_ID;not null;index"`
	QuestionID string `gorm:"column:QST_ID;size:45;not null"`
	FieldID    string `gorm:"column:QMC_mailchimp_field_id;size:255;not null"`
}

// TableName returns the table name for GORM.
func (QuestionMailchimpField) TableName() string {
	return "esp_event_question_mailchimp_field"
}
