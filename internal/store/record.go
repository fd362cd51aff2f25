package store

import (
	"time"

	"porter/internal/archive"
)

// UploadRecord describes what was uploaded under one transfer handle and
// what came out of it. Address stays empty until the payload call
// returns. Records are created right after a handle is obtained and are
// never deleted by the engine.
type UploadRecord struct {
	Name         string          `json:"name"`
	CreatedAt    time.Time       `json:"createdAt"`
	AllocationID string          `json:"allocationId"`
	Size         int64           `json:"size,omitempty"`
	Address      string          `json:"address,omitempty"`
	IsCollection bool            `json:"isCollection,omitempty"`
	FileCount    int             `json:"fileCount,omitempty"`
	Entries      []archive.Entry `json:"entries,omitempty"`
	EntryPoint   string          `json:"entryPoint,omitempty"`
}

// Update is a partial UploadRecord. Nil fields are left untouched by a
// merge; set fields overwrite the stored value (shallow, field by
// field).
type Update struct {
	Name         *string
	CreatedAt    *time.Time
	AllocationID *string
	Size         *int64
	Address      *string
	IsCollection *bool
	FileCount    *int
	Entries      []archive.Entry
	EntryPoint   *string
}

func (u Update) apply(r *UploadRecord) {
	if u.Name != nil {
		r.Name = *u.Name
	}
	if u.CreatedAt != nil {
		r.CreatedAt = *u.CreatedAt
	}
	if u.AllocationID != nil {
		r.AllocationID = *u.AllocationID
	}
	if u.Size != nil {
		r.Size = *u.Size
	}
	if u.Address != nil {
		r.Address = *u.Address
	}
	if u.IsCollection != nil {
		r.IsCollection = *u.IsCollection
	}
	if u.FileCount != nil {
		r.FileCount = *u.FileCount
	}
	if u.Entries != nil {
		r.Entries = u.Entries
	}
	if u.EntryPoint != nil {
		r.EntryPoint = *u.EntryPoint
	}
}

// String returns a pointer to s, for building Updates.
func String(s string) *string { return &s }

// Int returns a pointer to n, for building Updates.
func Int(n int) *int { return &n }

// Int64 returns a pointer to n, for building Updates.
func Int64(n int64) *int64 { return &n }

// Bool returns a pointer to b, for building Updates.
func Bool(b bool) *bool { return &b }

// Time returns a pointer to t, for building Updates.
func Time(t time.Time) *time.Time { return &t }
