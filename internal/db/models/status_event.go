package models

// StatusEvent is one probe result as pushed to the sink.
type StatusEvent struct {
	ID           string `gorm:"primaryKey" json:"id"`
	AccountLabel string `gorm:"index" json:"account_label"`
	Host         string `json:"host"`
	Provider     string `gorm:"index" json:"provider"`
	State        string `json:"state"`
	Raw          string `gorm:"type:text" json:"raw"`
	Parsed       string `gorm:"type:text" json:"parsed"`
	TS           string `gorm:"index" json:"ts"`
	CreatedAt    int64  `gorm:"autoCreateTime:milli;index" json:"created_at"`
}
