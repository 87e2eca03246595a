package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/huddle/internal/domain/model"
	"github.com/puzpuzpuz/xsync/v4"
)

// MemoryStore is an in-process Store. Attendance uniqueness relies on
// LoadOrStore of the concurrent map; group lifecycle updates run under a
// single write lock so each conditional update is atomic per row.
type MemoryStore struct {
	events       *xsync.Map[string, model.Event]
	participants *xsync.Map[pairKey, model.Participant]
	attendance   *xsync.Map[pairKey, model.AttendanceRecord]

	groupsMu sync.RWMutex
	groups   map[string]*model.Group
	members  map[string][]model.GroupMember

	streakMu sync.Mutex
	streaks  map[model.StreakKey]model.UserStreak
}

type pairKey struct {
	eventID string
	userID  string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:       xsync.NewMap[string, model.Event](),
		participants: xsync.NewMap[pairKey, model.Participant](),
		attendance:   xsync.NewMap[pairKey, model.AttendanceRecord](),
		groups:       make(map[string]*model.Group),
		members:      make(map[string][]model.GroupMember),
		streaks:      make(map[model.StreakKey]model.UserStreak),
	}
}

// Ping implements Store.
func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// GetEvent implements EventStore.
func (s *MemoryStore) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	if err := ctx.Err(); err != nil {
		return model.Event{}, err
	}
	e, ok := s.events.Load(eventID)
	if !ok {
		return model.Event{}, fmt.Errorf("event %q: %w", eventID, ErrNotFound)
	}
	return e, nil
}

// UpsertEvent implements EventStore.
func (s *MemoryStore) UpsertEvent(ctx context.Context, e model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.events.Store(e.ID, e)
	return nil
}

// ListUpcomingEvents implements EventStore.
func (s *MemoryStore) ListUpcomingEvents(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []model.Event
	s.events.Range(func(_ string, e model.Event) bool {
		if !e.StartsAt.Before(from) && e.StartsAt.Before(to) {
			out = append(out, e)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
	return out, nil
}

// CreateGroup implements GroupStore.
func (s *MemoryStore) CreateGroup(ctx context.Context, g model.Group, members []model.GroupMember) error {
	return s.CreateGroups(ctx, []model.GroupDetail{{Group: g, Members: members}})
}

// CreateGroups implements GroupStore. Checks and inserts run under one write
// lock, so a batch is either fully visible or not at all.
func (s *MemoryStore) CreateGroups(ctx context.Context, groups []model.GroupDetail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()

	seats := make(map[pairKey]string)
	for id, g := range s.groups {
		if !isActive(g) {
			continue
		}
		for _, m := range s.members[id] {
			seats[pairKey{eventID: g.EventID, userID: m.UserID}] = id
		}
	}
	batch := make(map[string]struct{}, len(groups))
	for _, d := range groups {
		if _, exists := s.groups[d.Group.ID]; exists {
			return fmt.Errorf("group %q: %w", d.Group.ID, ErrDuplicate)
		}
		if _, exists := batch[d.Group.ID]; exists {
			return fmt.Errorf("group %q: %w", d.Group.ID, ErrDuplicate)
		}
		batch[d.Group.ID] = struct{}{}
		for _, m := range d.Members {
			k := pairKey{eventID: d.Group.EventID, userID: m.UserID}
			if other, taken := seats[k]; taken {
				return fmt.Errorf("user %q in group %q: %w", m.UserID, other, ErrAlreadyGrouped)
			}
			seats[k] = d.Group.ID
		}
	}
	for _, d := range groups {
		stored := d.Group
		s.groups[stored.ID] = &stored
		s.members[stored.ID] = append([]model.GroupMember(nil), d.Members...)
	}
	return nil
}

// ActiveMembers implements GroupStore.
func (s *MemoryStore) ActiveMembers(ctx context.Context, eventID string) ([]model.GroupMember, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.groupsMu.RLock()
	defer s.groupsMu.RUnlock()

	out := make([]model.GroupMember, 0)
	for id, g := range s.groups {
		if g.EventID == eventID && isActive(g) {
			out = append(out, s.members[id]...)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GroupID == out[j].GroupID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].GroupID < out[j].GroupID
	})
	return out, nil
}

// GetGroup implements GroupStore.
func (s *MemoryStore) GetGroup(ctx context.Context, groupID string) (model.Group, []model.GroupMember, error) {
	if err := ctx.Err(); err != nil {
		return model.Group{}, nil, err
	}
	s.groupsMu.RLock()
	defer s.groupsMu.RUnlock()

	g, ok := s.groups[groupID]
	if !ok {
		return model.Group{}, nil, fmt.Errorf("group %q: %w", groupID, ErrNotFound)
	}
	return *g, append([]model.GroupMember(nil), s.members[groupID]...), nil
}

// ListEventGroups implements GroupStore.
func (s *MemoryStore) ListEventGroups(ctx context.Context, eventID string) ([]model.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.groupsMu.RLock()
	out := make([]model.Group, 0)
	for _, g := range s.groups {
		if g.EventID == eventID {
			out = append(out, *g)
		}
	}
	s.groupsMu.RUnlock()
	sortGroups(out)
	return out, nil
}

// FreezeEventGroups implements GroupStore.
func (s *MemoryStore) FreezeEventGroups(ctx context.Context, eventID, actor string, at time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()

	affected := 0
	for _, g := range s.groups {
		if g.EventID != eventID || g.Status != model.StatusForming || g.Frozen {
			continue
		}
		frozenAt := at
		g.Frozen = true
		g.Status = model.StatusLocked
		g.FrozenAt = &frozenAt
		g.FrozenBy = actor
		affected++
	}
	return affected, nil
}

// UnfreezeEventGroups implements GroupStore.
func (s *MemoryStore) UnfreezeEventGroups(ctx context.Context, eventID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()

	affected := 0
	for _, g := range s.groups {
		if g.EventID != eventID || !g.Frozen || g.Status == model.StatusDone {
			continue
		}
		g.Frozen = false
		g.Status = model.StatusForming
		g.FrozenAt = nil
		g.FrozenBy = ""
		affected++
	}
	return affected, nil
}

// ListStaleGroups implements GroupStore.
func (s *MemoryStore) ListStaleGroups(ctx context.Context, before time.Time) ([]model.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.groupsMu.RLock()
	var out []model.Group
	for _, g := range s.groups {
		if isStale(g, before) {
			out = append(out, *g)
		}
	}
	s.groupsMu.RUnlock()
	sortGroups(out)
	return out, nil
}

// CountMembers implements GroupStore.
func (s *MemoryStore) CountMembers(ctx context.Context, groupID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.groupsMu.RLock()
	defer s.groupsMu.RUnlock()
	return len(s.members[groupID]), nil
}

// FinalizeGroup implements GroupStore.
func (s *MemoryStore) FinalizeGroup(ctx context.Context, groupID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()

	g, ok := s.groups[groupID]
	if !ok || g.Status != model.StatusForming || g.Frozen {
		return false, nil
	}
	g.Status = model.StatusLocked
	return true, nil
}

// DeleteGroup implements GroupStore.
func (s *MemoryStore) DeleteGroup(ctx context.Context, groupID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()

	g, ok := s.groups[groupID]
	if !ok || g.Status != model.StatusForming || g.Frozen {
		return false, nil
	}
	delete(s.members, groupID)
	delete(s.groups, groupID)
	return true, nil
}

// HasCheckedIn implements AttendanceStore.
func (s *MemoryStore) HasCheckedIn(ctx context.Context, userID, eventID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := s.attendance.Load(pairKey{eventID: eventID, userID: userID})
	return ok, nil
}

// InsertAttendance implements AttendanceStore.
func (s *MemoryStore) InsertAttendance(ctx context.Context, rec model.AttendanceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, loaded := s.attendance.LoadOrStore(pairKey{eventID: rec.EventID, userID: rec.UserID}, rec); loaded {
		return fmt.Errorf("attendance %s/%s: %w", rec.EventID, rec.UserID, ErrDuplicate)
	}
	return nil
}

// RegisterParticipant implements AttendanceStore.
func (s *MemoryStore) RegisterParticipant(ctx context.Context, p model.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.AttendanceStatus == "" {
		p.AttendanceStatus = model.AttendanceRegistered
	}
	s.participants.LoadOrStore(pairKey{eventID: p.EventID, userID: p.UserID}, p)
	return nil
}

// MarkParticipantCheckedIn implements AttendanceStore.
func (s *MemoryStore) MarkParticipantCheckedIn(ctx context.Context, eventID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := pairKey{eventID: eventID, userID: userID}
	p, ok := s.participants.Load(key)
	if !ok {
		return fmt.Errorf("participant %s/%s: %w", eventID, userID, ErrNotFound)
	}
	p.AttendanceStatus = model.AttendanceCheckedIn
	s.participants.Store(key, p)
	return nil
}

// AttendanceCounts implements AttendanceStore.
func (s *MemoryStore) AttendanceCounts(ctx context.Context, eventID string) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	registered, checkedIn := 0, 0
	s.participants.Range(func(k pairKey, _ model.Participant) bool {
		if k.eventID == eventID {
			registered++
		}
		return true
	})
	s.attendance.Range(func(k pairKey, _ model.AttendanceRecord) bool {
		if k.eventID == eventID {
			checkedIn++
		}
		return true
	})
	return registered, checkedIn, nil
}

// GetStreak implements StreakStore.
func (s *MemoryStore) GetStreak(ctx context.Context, key model.StreakKey) (model.UserStreak, error) {
	if err := ctx.Err(); err != nil {
		return model.UserStreak{}, err
	}
	s.streakMu.Lock()
	defer s.streakMu.Unlock()

	st, ok := s.streaks[key]
	if !ok {
		return model.UserStreak{}, fmt.Errorf("streak %s/%s/%s: %w", key.UserID, key.OrgID, key.Category, ErrNotFound)
	}
	return st, nil
}

// ApplyStreak implements StreakStore.
func (s *MemoryStore) ApplyStreak(ctx context.Context, key model.StreakKey, fn StreakFunc) (model.UserStreak, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.UserStreak{}, false, err
	}
	s.streakMu.Lock()
	defer s.streakMu.Unlock()

	var prev *model.UserStreak
	if st, ok := s.streaks[key]; ok {
		prev = &st
	}
	next, write := fn(prev)
	if !write {
		if prev == nil {
			return model.UserStreak{}, false, nil
		}
		return *prev, false, nil
	}
	next.UserID, next.OrgID, next.Category = key.UserID, key.OrgID, key.Category
	s.streaks[key] = next
	return next, true, nil
}

func isActive(g *model.Group) bool {
	return g.Status == model.StatusForming || g.Status == model.StatusLocked
}

func isStale(g *model.Group, before time.Time) bool {
	return g.Status == model.StatusForming && !g.Frozen && g.CreatedAt.Before(before)
}

func sortGroups(gs []model.Group) {
	sort.Slice(gs, func(i, j int) bool {
		if gs[i].CreatedAt.Equal(gs[j].CreatedAt) {
			return gs[i].ID < gs[j].ID
		}
		return gs[i].CreatedAt.Before(gs[j].CreatedAt)
	})
}
