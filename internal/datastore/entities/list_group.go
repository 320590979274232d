// Package entities contains the gorm models for the legacy event tables
// and for the migration bookkeeping tables.
package entities

// EventListGroup is one row of the event -> MailChimp list/group table.
// GroupID holds a legacy token ("interestId-categoryId-base64(name)-flag")
// or the sentinel "-1" when the event has no list.
type EventListGroup struct {
	ID      uint   `gorm:"column:EMC_ID;primaryKey;autoIncrement"`
	EventID int    `gorm:"column:EVT_ID;not null;index"`
	ListID  string `gorm:"column:AMC_mailchimp_list_id;size:255;not null"`
	GroupID string `gorm:"column:AMC_mailchimp_group_id;size:255;not null"`
}

// TableName returns the table name for GORM.
func (EventListGroup) TableName() string {
	return "esp_event_mailchimp_list_group"
}

// RowID returns the primary key; it is the migration cursor.
func (r EventListGroup) RowID() uint {
	return r.ID
}
