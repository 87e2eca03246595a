// Package postgres implements the repository ports on PostgreSQL using sqlx and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/okian/huddle/internal/adapters/repository"
	"github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/pkg/logger"
)

const (
	driverName             = "postgres"
	defaultMaxOpenConns    = 20
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultStreakRetries   = 3
)

const groupColumns = `id, event_id, status, frozen, frozen_at, frozen_by, meet_spot, meet_time, score, created_at`

// Store is a repository.Store backed by PostgreSQL. Race safety comes from
// unique constraints and conditional WHERE clauses, never from client locks.
type Store struct {
	db *sqlx.DB

	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	streakRetries   int
	logger          logger.Logger
}

var _ repository.Store = (*Store)(nil)

// Open connects to dsn and configures the pool.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return New(db, opts...), nil
}

// New wraps an existing connection.
func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{
		db:              db,
		maxOpenConns:    defaultMaxOpenConns,
		maxIdleConns:    defaultMaxIdleConns,
		connMaxLifetime: defaultConnMaxLifetime,
		streakRetries:   defaultStreakRetries,
		logger:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	db.SetMaxOpenConns(s.maxOpenConns)
	db.SetMaxIdleConns(s.maxIdleConns)
	db.SetConnMaxLifetime(s.connMaxLifetime)
	return s
}

// DB exposes the underlying handle for migrations.
func (s *Store) DB() *sqlx.DB { return s.db }

// Ping implements repository.Store.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close implements repository.Store.
func (s *Store) Close() error { return s.db.Close() }

// GetEvent implements repository.EventStore.
func (s *Store) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	var e model.Event
	err := s.db.GetContext(ctx, &e, `
		SELECT id, org_id, starts_at, freeze_hours_before, freeze_override_lock
		FROM events WHERE id = $1`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, fmt.Errorf("event %q: %w", eventID, repository.ErrNotFound)
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// UpsertEvent implements repository.EventStore.
func (s *Store) UpsertEvent(ctx context.Context, e model.Event) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO events (id, org_id, starts_at, freeze_hours_before, freeze_override_lock)
		VALUES (:id, :org_id, :starts_at, :freeze_hours_before, :freeze_override_lock)
		ON CONFLICT (id) DO UPDATE SET
			org_id = EXCLUDED.org_id,
			starts_at = EXCLUDED.starts_at,
			freeze_hours_before = EXCLUDED.freeze_hours_before,
			freeze_override_lock = EXCLUDED.freeze_override_lock`, e)
	if err != nil {
		return fmt.Errorf("upsert event: %w", err)
	}
	return nil
}

// ListUpcomingEvents implements repository.EventStore.
func (s *Store) ListUpcomingEvents(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	var out []model.Event
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, org_id, starts_at, freeze_hours_before, freeze_override_lock
		FROM events
		WHERE starts_at >= $1 AND starts_at < $2
		ORDER BY starts_at, id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	return out, nil
}

// CreateGroup implements repository.GroupStore.
func (s *Store) CreateGroup(ctx context.Context, g model.Group, members []model.GroupMember) error {
	return s.CreateGroups(ctx, []model.GroupDetail{{Group: g, Members: members}})
}

// CreateGroups implements repository.GroupStore. Concurrent batches for the
// same event are serialized by a transaction-scoped advisory lock on the event id.
func (s *Store) CreateGroups(ctx context.Context, groups []model.GroupDetail) error {
	if len(groups) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		users := make(map[string][]string)
		seen := make(map[string]struct{})
		for _, d := range groups {
			for _, m := range d.Members {
				k := d.Group.EventID + "\x00" + m.UserID
				if _, dup := seen[k]; dup {
					return fmt.Errorf("user %q listed twice: %w", m.UserID, repository.ErrAlreadyGrouped)
				}
				seen[k] = struct{}{}
				users[d.Group.EventID] = append(users[d.Group.EventID], m.UserID)
			}
		}
		for _, d := range groups {
			ids, ok := users[d.Group.EventID]
			if !ok {
				continue
			}
			delete(users, d.Group.EventID)
			if err := lockEventGroups(ctx, tx, d.Group.EventID); err != nil {
				return err
			}
			var taken []string
			err := tx.SelectContext(ctx, &taken, `
				SELECT m.user_id
				FROM group_members m JOIN groups g ON g.id = m.group_id
				WHERE g.event_id = $1 AND g.status IN ('forming', 'locked') AND m.user_id = ANY($2)
				LIMIT 1`, d.Group.EventID, pq.Array(ids))
			if err != nil {
				return fmt.Errorf("check active members: %w", err)
			}
			if len(taken) > 0 {
				return fmt.Errorf("user %q: %w", taken[0], repository.ErrAlreadyGrouped)
			}
		}
		for _, d := range groups {
			if err := insertGroup(ctx, tx, d.Group, d.Members); err != nil {
				return err
			}
		}
		return nil
	})
}

// ActiveMembers implements repository.GroupStore.
func (s *Store) ActiveMembers(ctx context.Context, eventID string) ([]model.GroupMember, error) {
	out := make([]model.GroupMember, 0)
	err := s.db.SelectContext(ctx, &out, `
		SELECT m.group_id, m.user_id, m.role, m.joined_at
		FROM group_members m JOIN groups g ON g.id = m.group_id
		WHERE g.event_id = $1 AND g.status IN ('forming', 'locked')
		ORDER BY m.group_id, m.user_id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list active members: %w", err)
	}
	return out, nil
}

func lockEventGroups(ctx context.Context, tx *sqlx.Tx, eventID string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, eventID); err != nil {
		return fmt.Errorf("lock event groups: %w", err)
	}
	return nil
}

func insertGroup(ctx context.Context, tx *sqlx.Tx, g model.Group, members []model.GroupMember) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO groups (`+groupColumns+`)
		VALUES (:id, :event_id, :status, :frozen, :frozen_at, :frozen_by, :meet_spot, :meet_time, :score, :created_at)`, g)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("group %q: %w", g.ID, repository.ErrDuplicate)
		}
		return fmt.Errorf("insert group: %w", err)
	}
	for _, m := range members {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO group_members (group_id, user_id, role, joined_at)
			VALUES (:group_id, :user_id, :role, :joined_at)`, m)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("member %q of group %q: %w", m.UserID, g.ID, repository.ErrDuplicate)
			}
			return fmt.Errorf("insert group member: %w", err)
		}
	}
	return nil
}

// GetGroup implements repository.GroupStore.
func (s *Store) GetGroup(ctx context.Context, groupID string) (model.Group, []model.GroupMember, error) {
	var g model.Group
	err := s.db.GetContext(ctx, &g, `SELECT `+groupColumns+` FROM groups WHERE id = $1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Group{}, nil, fmt.Errorf("group %q: %w", groupID, repository.ErrNotFound)
	}
	if err != nil {
		return model.Group{}, nil, fmt.Errorf("get group: %w", err)
	}
	var members []model.GroupMember
	err = s.db.SelectContext(ctx, &members, `
		SELECT group_id, user_id, role, joined_at
		FROM group_members WHERE group_id = $1
		ORDER BY (role = 'host') DESC, joined_at, user_id`, groupID)
	if err != nil {
		return model.Group{}, nil, fmt.Errorf("list group members: %w", err)
	}
	return g, members, nil
}

// ListEventGroups implements repository.GroupStore.
func (s *Store) ListEventGroups(ctx context.Context, eventID string) ([]model.Group, error) {
	out := make([]model.Group, 0)
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+groupColumns+` FROM groups
		WHERE event_id = $1
		ORDER BY created_at, id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list event groups: %w", err)
	}
	return out, nil
}

// FreezeEventGroups implements repository.GroupStore.
func (s *Store) FreezeEventGroups(ctx context.Context, eventID, actor string, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE groups
		SET frozen = TRUE, status = 'locked', frozen_at = $2, frozen_by = $3
		WHERE event_id = $1 AND status = 'forming' AND frozen = FALSE`, eventID, at, actor)
	if err != nil {
		return 0, fmt.Errorf("freeze event groups: %w", err)
	}
	return rowsAffected(res)
}

// UnfreezeEventGroups implements repository.GroupStore.
func (s *Store) UnfreezeEventGroups(ctx context.Context, eventID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE groups
		SET frozen = FALSE, status = 'forming', frozen_at = NULL, frozen_by = ''
		WHERE event_id = $1 AND frozen = TRUE AND status <> 'done'`, eventID)
	if err != nil {
		return 0, fmt.Errorf("unfreeze event groups: %w", err)
	}
	return rowsAffected(res)
}

// ListStaleGroups implements repository.GroupStore.
func (s *Store) ListStaleGroups(ctx context.Context, before time.Time) ([]model.Group, error) {
	var out []model.Group
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+groupColumns+` FROM groups
		WHERE status = 'forming' AND frozen = FALSE AND created_at < $1
		ORDER BY created_at, id`, before)
	if err != nil {
		return nil, fmt.Errorf("list stale groups: %w", err)
	}
	return out, nil
}

// CountMembers implements repository.GroupStore.
func (s *Store) CountMembers(ctx context.Context, groupID string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM group_members WHERE group_id = $1`, groupID); err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}

// FinalizeGroup implements repository.GroupStore.
func (s *Store) FinalizeGroup(ctx context.Context, groupID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE groups SET status = 'locked'
		WHERE id = $1 AND status = 'forming' AND frozen = FALSE`, groupID)
	if err != nil {
		return false, fmt.Errorf("finalize group: %w", err)
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

// DeleteGroup implements repository.GroupStore.
func (s *Store) DeleteGroup(ctx context.Context, groupID string) (bool, error) {
	deleted := false
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var id string
		err := tx.GetContext(ctx, &id, `
			SELECT id FROM groups
			WHERE id = $1 AND status = 'forming' AND frozen = FALSE
			FOR UPDATE`, groupID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock group: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = $1`, groupID); err != nil {
			return fmt.Errorf("delete group members: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, groupID); err != nil {
			return fmt.Errorf("delete group: %w", err)
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// HasCheckedIn implements repository.AttendanceStore.
func (s *Store) HasCheckedIn(ctx context.Context, userID, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM attendance_records WHERE user_id = $1 AND event_id = $2)`, userID, eventID)
	if err != nil {
		return false, fmt.Errorf("has checked in: %w", err)
	}
	return exists, nil
}

// InsertAttendance implements repository.AttendanceStore.
func (s *Store) InsertAttendance(ctx context.Context, rec model.AttendanceRecord) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO attendance_records (user_id, event_id, org_id, checked_in_at, minutes_before_start)
		VALUES (:user_id, :event_id, :org_id, :checked_in_at, :minutes_before_start)`, rec)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("attendance %s/%s: %w", rec.EventID, rec.UserID, repository.ErrDuplicate)
		}
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

// RegisterParticipant implements repository.AttendanceStore.
func (s *Store) RegisterParticipant(ctx context.Context, p model.Participant) error {
	if p.AttendanceStatus == "" {
		p.AttendanceStatus = model.AttendanceRegistered
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO event_participants (event_id, user_id, attendance_status)
		VALUES (:event_id, :user_id, :attendance_status)
		ON CONFLICT (event_id, user_id) DO NOTHING`, p)
	if err != nil {
		return fmt.Errorf("register participant: %w", err)
	}
	return nil
}

// MarkParticipantCheckedIn implements repository.AttendanceStore.
func (s *Store) MarkParticipantCheckedIn(ctx context.Context, eventID, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE event_participants SET attendance_status = 'checked_in'
		WHERE event_id = $1 AND user_id = $2`, eventID, userID)
	if err != nil {
		return fmt.Errorf("mark participant checked in: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("participant %s/%s: %w", eventID, userID, repository.ErrNotFound)
	}
	return nil
}

// AttendanceCounts implements repository.AttendanceStore.
func (s *Store) AttendanceCounts(ctx context.Context, eventID string) (int, int, error) {
	var row struct {
		Registered int `db:"registered"`
		CheckedIn  int `db:"checked_in"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT
			(SELECT COUNT(*) FROM event_participants WHERE event_id = $1) AS registered,
			(SELECT COUNT(*) FROM attendance_records WHERE event_id = $1) AS checked_in`, eventID)
	if err != nil {
		return 0, 0, fmt.Errorf("attendance counts: %w", err)
	}
	return row.Registered, row.CheckedIn, nil
}

const streakColumns = `user_id, org_id, category, current_streak, longest_streak,
	last_attendance_week, last_attendance_year, last_update_hash, updated_at`

// GetStreak implements repository.StreakStore.
func (s *Store) GetStreak(ctx context.Context, key model.StreakKey) (model.UserStreak, error) {
	var st model.UserStreak
	err := s.db.GetContext(ctx, &st, `
		SELECT `+streakColumns+` FROM user_streaks
		WHERE user_id = $1 AND org_id = $2 AND category = $3`, key.UserID, key.OrgID, key.Category)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UserStreak{}, fmt.Errorf("streak %s/%s/%s: %w", key.UserID, key.OrgID, key.Category, repository.ErrNotFound)
	}
	if err != nil {
		return model.UserStreak{}, fmt.Errorf("get streak: %w", err)
	}
	return st, nil
}

// ApplyStreak implements repository.StreakStore. An existing row is locked
// with SELECT ... FOR UPDATE; a missing row is inserted with ON CONFLICT DO
// NOTHING and the whole read-modify-write is retried if another writer won.
func (s *Store) ApplyStreak(ctx context.Context, key model.StreakKey, fn repository.StreakFunc) (model.UserStreak, bool, error) {
	for attempt := 0; attempt < s.streakRetries; attempt++ {
		var (
			result  model.UserStreak
			written bool
			lost    bool
		)
		err := s.inTx(ctx, func(tx *sqlx.Tx) error {
			var prev *model.UserStreak
			var cur model.UserStreak
			err := tx.GetContext(ctx, &cur, `
				SELECT `+streakColumns+` FROM user_streaks
				WHERE user_id = $1 AND org_id = $2 AND category = $3
				FOR UPDATE`, key.UserID, key.OrgID, key.Category)
			switch {
			case err == nil:
				prev = &cur
			case errors.Is(err, sql.ErrNoRows):
			default:
				return fmt.Errorf("lock streak: %w", err)
			}

			next, write := fn(prev)
			if !write {
				if prev != nil {
					result = *prev
				}
				return nil
			}
			next.UserID, next.OrgID, next.Category = key.UserID, key.OrgID, key.Category

			if prev != nil {
				_, err = tx.NamedExecContext(ctx, `
					UPDATE user_streaks SET
						current_streak = :current_streak,
						longest_streak = :longest_streak,
						last_attendance_week = :last_attendance_week,
						last_attendance_year = :last_attendance_year,
						last_update_hash = :last_update_hash,
						updated_at = :updated_at
					WHERE user_id = :user_id AND org_id = :org_id AND category = :category`, next)
				if err != nil {
					return fmt.Errorf("update streak: %w", err)
				}
				result, written = next, true
				return nil
			}

			res, err := tx.NamedExecContext(ctx, `
				INSERT INTO user_streaks (`+streakColumns+`)
				VALUES (:user_id, :org_id, :category, :current_streak, :longest_streak,
					:last_attendance_week, :last_attendance_year, :last_update_hash, :updated_at)
				ON CONFLICT (user_id, org_id, category) DO NOTHING`, next)
			if err != nil {
				return fmt.Errorf("insert streak: %w", err)
			}
			n, err := rowsAffected(res)
			if err != nil {
				return err
			}
			if n == 0 {
				lost = true
				return nil
			}
			result, written = next, true
			return nil
		})
		if err != nil {
			return model.UserStreak{}, false, err
		}
		if !lost {
			return result, written, nil
		}
		s.logger.Debug(ctx, "streak insert lost race, retrying",
			logger.String("userID", key.UserID),
			logger.Int("attempt", attempt+1),
		)
	}
	return model.UserStreak{}, false, fmt.Errorf("apply streak %s/%s/%s: %w", key.UserID, key.OrgID, key.Category, repository.ErrDuplicate)
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn(ctx, "rollback failed", logger.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
