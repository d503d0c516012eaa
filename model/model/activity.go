package model

import (
	"time"
)

// Activity event kinds pushed to the CRM as timeline entries.
const (
	ActivityEventTypePoint = "point"
	ActivityEventTypeEmail = "email"
	ActivityEventTypeForm  = "form"
)

// PointChangeLog - One scoring change on a lead.
type PointChangeLog struct {
	ID         uint64    `gorm:"primary_key:true" json:"id"`
	ProjectID  uint64    `gorm:"auto_increment:false;not null" json:"project_id"`
	LeadID     uint64    `gorm:"auto_increment:false;not null" json:"lead_id"`
	Type       string    `json:"type"`
	EventName  string    `json:"event_name"`
	ActionName string    `json:"action_name"`
	Delta      int       `json:"delta"`
	DateAdded  time.Time `json:"date_added"`
}

// EmailStat - One email send recorded against a lead.
type EmailStat struct {
	ID        uint64    `gorm:"primary_key:true" json:"id"`
	ProjectID uint64    `gorm:"auto_increment:false;not null" json:"project_id"`
	LeadID    uint64    `gorm:"auto_increment:false;not null" json:"lead_id"`
	Subject   string    `json:"subject"`
	EmailName string    `json:"email_name"`
	DateSent  time.Time `json:"date_sent"`
}

// FormSubmission - One form submission recorded against a lead.
type FormSubmission struct {
	ID            uint64    `gorm:"primary_key:true" json:"id"`
	ProjectID     uint64    `gorm:"auto_increment:false;not null" json:"project_id"`
	LeadID        uint64    `gorm:"auto_increment:false;not null" json:"lead_id"`
	FormName      string    `json:"form_name"`
	DateSubmitted time.Time `json:"date_submitted"`
}

// ActivityEntry - One vendor formatted timeline entry.
type ActivityEntry struct {
	EventType   string    `json:"eventType"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	DateAdded   time.Time `json:"dateAdded"`
	// SourceID - Source row reference, i.e "pointChange12".
	SourceID string `json:"id"`
}

// ActivityList - All collected entries for one lead, concatenated
// kind after kind. Not sorted across kinds.
type ActivityList struct {
	Records []ActivityEntry `json:"records"`
}
