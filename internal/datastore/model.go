// model.go this code defines the data model for the application
package datastore

import "time"

// Date and time layouts used for the Date/Time string columns
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// Attendance status values
const (
	StatusEarly  = "early"
	StatusLate   = "late"
	StatusAbsent = "absent"
)

// KindKnown marks a record written for a recognised person
const KindKnown = "known"

// Department carries the attendance thresholds for its members.
// Empty times fall back to the compiled defaults.
type Department struct {
	ID        uint   `gorm:"primaryKey"`
	TenantID  uint   `gorm:"index;not null"`
	Name      string `gorm:"size:191"`
	EarlyTime string `gorm:"size:8"` // HH:MM or HH:MM:SS
	LateTime  string `gorm:"size:8"`
}

// Person is a registered face. Label matches the label stored in the tenant's vector index.
type Person struct {
	ID           uint   `gorm:"primaryKey"`
	TenantID     uint   `gorm:"uniqueIndex:idx_persons_tenant_label;not null"`
	Label        string `gorm:"size:191;uniqueIndex:idx_persons_tenant_label;not null"`
	FullName     string `gorm:"size:191"`
	DepartmentID *uint  `gorm:"index"`
	PhotoPath    string `gorm:"size:512"` // reference photo shown to clients
}

// AttendanceRecord is an append-only check-in row
type AttendanceRecord struct {
	ID           uint   `gorm:"primaryKey"`
	TenantID     uint   `gorm:"index:idx_attendance_tenant_date;not null"`
	PersonID     *uint  `gorm:"index"`
	DepartmentID *uint
	Name         string `gorm:"size:191"`
	Status       string `gorm:"size:16"`
	Kind         string `gorm:"size:16"`
	PhotoPath    string `gorm:"size:512"`
	Date         string `gorm:"size:10;index:idx_attendance_tenant_date"`
	Time         string `gorm:"size:8"`
	CreatedAt    time.Time
}

// ExitRecord is an append-only check-out row. Exits are not deduplicated.
type ExitRecord struct {
	ID           uint   `gorm:"primaryKey"`
	TenantID     uint   `gorm:"index:idx_exits_tenant_date;not null"`
	PersonID     *uint  `gorm:"index"`
	DepartmentID *uint
	Name         string `gorm:"size:191"`
	Kind         string `gorm:"size:16"`
	PhotoPath    string `gorm:"size:512"`
	Date         string `gorm:"size:10;index:idx_exits_tenant_date"`
	Time         string `gorm:"size:8"`
	CreatedAt    time.Time
}

// PersonState is the last known emotion and location of a person, one row per person
type PersonState struct {
	PersonID  uint   `gorm:"primaryKey;autoIncrement:false"`
	Emotion   string `gorm:"size:32"`
	Location  string `gorm:"size:64"`
	UpdatedAt time.Time
}
