package models

import "time"

// Company is the tenant boundary. It exists purely as a partition key for
// devices and locations; the token is what mobile clients register with.
type Company struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyToken string    `gorm:"uniqueIndex;not null" json:"company_token"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Device is one mobile client. DeviceID holds the client-reported uuid;
// the (device_id, company_id) pair is unique so re-registration updates
// metadata instead of creating a second row.
type Device struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID    uint      `gorm:"not null;uniqueIndex:idx_devices_uuid_company" json:"company_id"`
	CompanyToken string    `gorm:"index;not null" json:"company_token"`
	DeviceID     string    `gorm:"size:64;not null;uniqueIndex:idx_devices_uuid_company" json:"device_id"`
	Model        string    `gorm:"size:64" json:"device_model"`
	Manufacturer string    `gorm:"size:64" json:"manufacturer"`
	Framework    string    `gorm:"size:32" json:"framework,omitempty"`
	Version      string    `gorm:"size:32" json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Location is one geolocation fix. Data keeps the full client payload;
// CompanyID/DeviceID/CompanyToken carry the server-resolved values, never
// what the client sent.
type Location struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID    uint      `gorm:"not null;index:idx_locations_company_time,priority:1" json:"company_id"`
	DeviceID     uint      `gorm:"not null;index" json:"device_id"`
	CompanyToken string    `gorm:"not null" json:"company_token"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	RecordedAt   time.Time `gorm:"not null;index:idx_locations_company_time,priority:2" json:"recorded_at"`
	Data         JSONB     `gorm:"type:jsonb" json:"data"`
	CreatedAt    time.Time `json:"created_at"`
}
