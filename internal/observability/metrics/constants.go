// Package metrics defines the prometheus collectors for each omniface subsystem.
package metrics

// Operation label values
const (
	OpSaveAttendance    = "save_attendance"
	OpSaveExit          = "save_exit"
	OpUpsertPersonState = "upsert_person_state"
	OpGetDepartment     = "get_department"
	OpFindPerson        = "find_person"
	OpListAttendance    = "list_attendance"
	OpListExits         = "list_exits"
	OpAttendedToday     = "attended_today"
)

// Status label values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Stage label values for inference timing
const (
	StageDetect  = "detect"
	StageEmbed   = "embed"
	StageEmotion = "emotion"
	StageBatch   = "batch"
)

// Histogram bucket configuration
const (
	// BucketStart1ms covers 1ms to ~16s with factor 2 and 15 buckets
	BucketStart1ms = 0.001
	BucketFactor2  = 2.0
	BucketCount15  = 15

	// BucketCount10 is used with BucketStart1ms for per-stage inference (1ms..~0.5s)
	BucketCount10 = 10
)
