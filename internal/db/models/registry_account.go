package models

// RegistryAccount mirrors the last inventory push, one row per label.
type RegistryAccount struct {
	AccountLabel     string  `gorm:"primaryKey" json:"account_label"`
	Enabled          bool    `json:"enabled"`
	Provider         string  `json:"provider"`
	ExpectedEmail    *string `json:"expected_email"`
	ExpectedPlanType *string `gorm:"column:expected_plan_type" json:"expected_planType"`
	Note             *string `json:"note"`
	UpdatedAt        int64   `gorm:"autoUpdateTime:milli" json:"updated_at"`
}
