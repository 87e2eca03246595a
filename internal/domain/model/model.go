// Package model contains domain models passed between layers.
package model

import "time"

// GroupStatus is the lifecycle state of a group.
type GroupStatus string

// Group lifecycle states.
const (
	StatusForming GroupStatus = "forming"
	StatusLocked  GroupStatus = "locked"
	StatusDone    GroupStatus = "done"
)

// Valid reports whether s is a known status.
func (s GroupStatus) Valid() bool {
	switch s {
	case StatusForming, StatusLocked, StatusDone:
		return true
	}
	return false
}

// MemberRole is the role of a member inside a group.
type MemberRole string

// Member roles. A group has at most one host.
const (
	RoleHost   MemberRole = "host"
	RoleMember MemberRole = "member"
)

// AttendanceStatus is the registration state of an event participant.
type AttendanceStatus string

// Participant attendance states.
const (
	AttendanceRegistered AttendanceStatus = "registered"
	AttendanceCheckedIn  AttendanceStatus = "checked_in"
)

// Profile holds the attributes used for compatibility scoring.
// An empty City means the city is unknown.
type Profile struct {
	UserID       string   `json:"user_id"`
	Interests    []string `json:"interests"`
	SocialEnergy int      `json:"social_energy"` // 1..5
	City         string   `json:"city,omitempty"`
}

// Candidate is a profile submitted to one assembly run.
type Candidate struct {
	UserID  string  `json:"user_id"`
	Profile Profile `json:"profile"`
}

// Group is a micro-group of attendees for one event.
type Group struct {
	ID        string      `json:"id" db:"id"`
	EventID   string      `json:"event_id" db:"event_id"`
	Status    GroupStatus `json:"status" db:"status"`
	Frozen    bool        `json:"frozen" db:"frozen"`
	FrozenAt  *time.Time  `json:"frozen_at,omitempty" db:"frozen_at"`
	FrozenBy  string      `json:"frozen_by,omitempty" db:"frozen_by"`
	MeetSpot  string      `json:"meet_spot,omitempty" db:"meet_spot"`
	MeetTime  *time.Time  `json:"meet_time,omitempty" db:"meet_time"`
	Score     float64     `json:"score" db:"score"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// GroupMember links a user to a group.
type GroupMember struct {
	GroupID  string     `json:"group_id" db:"group_id"`
	UserID   string     `json:"user_id" db:"user_id"`
	Role     MemberRole `json:"role" db:"role"`
	JoinedAt time.Time  `json:"joined_at" db:"joined_at"`
}

// Event carries the event fields the core reads.
type Event struct {
	ID                 string    `json:"id" db:"id"`
	OrgID              string    `json:"org_id" db:"org_id"`
	StartsAt           time.Time `json:"starts_at" db:"starts_at"`
	FreezeHoursBefore  int       `json:"freeze_hours_before" db:"freeze_hours_before"`
	FreezeOverrideLock bool      `json:"freeze_override_lock" db:"freeze_override_lock"`
}

// Participant is an event registration row.
type Participant struct {
	EventID          string           `json:"event_id" db:"event_id"`
	UserID           string           `json:"user_id" db:"user_id"`
	AttendanceStatus AttendanceStatus `json:"attendance_status" db:"attendance_status"`
}

// AttendanceRecord is an append-only check-in, unique per (UserID, EventID).
type AttendanceRecord struct {
	UserID             string    `json:"user_id" db:"user_id"`
	EventID            string    `json:"event_id" db:"event_id"`
	OrgID              string    `json:"org_id" db:"org_id"`
	CheckedInAt        time.Time `json:"checked_in_at" db:"checked_in_at"`
	MinutesBeforeStart int       `json:"minutes_before_start" db:"minutes_before_start"`
}

// StreakKey identifies a streak row. An empty Category means no category.
type StreakKey struct {
	UserID   string `json:"user_id"`
	OrgID    string `json:"org_id"`
	Category string `json:"category,omitempty"`
}

// UserStreak is the weekly attendance streak of a user for an organizer.
type UserStreak struct {
	UserID             string    `json:"user_id" db:"user_id"`
	OrgID              string    `json:"org_id" db:"org_id"`
	Category           string    `json:"category,omitempty" db:"category"`
	CurrentStreak      int       `json:"current_streak" db:"current_streak"`
	LongestStreak      int       `json:"longest_streak" db:"longest_streak"`
	LastAttendanceWeek int       `json:"last_attendance_week" db:"last_attendance_week"`
	LastAttendanceYear int       `json:"last_attendance_year" db:"last_attendance_year"`
	LastUpdateHash     string    `json:"last_update_hash" db:"last_update_hash"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// Key returns the unique key of the streak row.
func (s UserStreak) Key() StreakKey {
	return StreakKey{UserID: s.UserID, OrgID: s.OrgID, Category: s.Category}
}

// StreakJob asks the streak pipeline to credit one attendance.
type StreakJob struct {
	UserID   string
	OrgID    string
	Category string
	EventID  string
	At       time.Time
}

// Key returns the streak key the job targets.
func (j StreakJob) Key() StreakKey {
	return StreakKey{UserID: j.UserID, OrgID: j.OrgID, Category: j.Category}
}

// AttendanceSummary aggregates registrations and check-ins for an event.
type AttendanceSummary struct {
	EventID    string  `json:"event_id"`
	Registered int     `json:"registered"`
	CheckedIn  int     `json:"checked_in"`
	NoShows    int     `json:"no_shows"`
	NoShowRate float64 `json:"no_show_rate"`
}

// GroupDetail is a group with its members.
type GroupDetail struct {
	Group   Group         `json:"group"`
	Members []GroupMember `json:"members"`
}

// AssembleResult is the outcome of an assembly request. A blocked freeze
// guard is reported here with a reason, not as an error. Candidates already
// seated in an active group of the event keep that group; those groups follow
// the newly created ones in Groups and are counted by Existing.
type AssembleResult struct {
	EventID   string        `json:"event_id"`
	Assembled bool          `json:"assembled"`
	Reason    string        `json:"reason,omitempty"`
	Groups    []GroupDetail `json:"groups"`
	Existing  int           `json:"existing_groups"`
}

// Created returns the number of groups formed by this request.
func (r AssembleResult) Created() int { return len(r.Groups) - r.Existing }

// CheckInRequest carries one check-in. Token is optional; when set it must be
// a valid QR payload for the event. Category scopes the streak.
type CheckInRequest struct {
	UserID   string `json:"user_id"`
	EventID  string `json:"event_id"`
	OrgID    string `json:"org_id,omitempty"`
	Category string `json:"category,omitempty"`
	Token    string `json:"token,omitempty"`
}
