// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	jobqueue "github.com/okian/huddle/internal/adapters/mq/queue"
	workerpool "github.com/okian/huddle/internal/adapters/mq/worker"
	"github.com/okian/huddle/internal/adapters/repository"
	"github.com/okian/huddle/internal/domain/attendance"
	"github.com/okian/huddle/internal/domain/dedupe"
	"github.com/okian/huddle/internal/domain/freeze"
	"github.com/okian/huddle/internal/domain/grouping"
	"github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/internal/domain/reconcile"
	"github.com/okian/huddle/internal/domain/scoring"
	"github.com/okian/huddle/internal/domain/streak"
	"github.com/okian/huddle/pkg/logger"
	"github.com/okian/huddle/pkg/metrics"
)

const (
	defaultGroupSize     = 4
	assembleAttempts     = 3
	defaultMaxCandidates = 1000
	stopTimeout          = 10 * time.Second
	tokenSecretBytes     = 32
)

// Service implements the API dependencies for group matching, freeze
// lifecycle, attendance and streaks.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	assembler  grouping.Assembler
	freezer    *freeze.Controller
	reconciler *reconcile.Reconciler
	validator  *attendance.Validator
	tokens     *attendance.TokenIssuer
	tracker    *streak.Tracker
	deduper    dedupe.Deduper
	jobs       *jobqueue.InMemoryQueue
	workerPool *workerpool.Pool

	// Configuration
	now                 func() time.Time
	groupSize           int
	maxLeftoverAbsorb   int
	maxCandidates       int
	weights             [3]float64
	freezeHours         int
	guardHonorsOverride bool
	autoFreezeInterval  time.Duration
	autoFreezeLookahead time.Duration
	staleAfter          time.Duration
	reconcileInterval   time.Duration
	windowBefore        time.Duration
	windowAfter         time.Duration
	tokenSecret         string
	tokenValidity       time.Duration
	workerCount         int
	queueSize           int
	dedupeSize          int

	// State
	started bool
	cancel  context.CancelFunc
	loops   sync.WaitGroup

	logger logger.Logger
}

// New constructs a Service over the given store.
func New(store repository.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("service requires a store")
	}
	s := &Service{
		store:               store,
		now:                 time.Now,
		groupSize:           defaultGroupSize,
		maxLeftoverAbsorb:   2,
		maxCandidates:       defaultMaxCandidates,
		weights:             [3]float64{0.5, 0.3, 0.2},
		freezeHours:         2,
		guardHonorsOverride: true,
		autoFreezeLookahead: 48 * time.Hour,
		staleAfter:          5 * time.Minute,
		windowBefore:        30 * time.Minute,
		windowAfter:         60 * time.Minute,
		tokenValidity:       time.Hour,
		workerCount:         runtime.NumCPU(),
		queueSize:           10_000,
		dedupeSize:          50_000,
		logger:              logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.tokenSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
		s.tokenSecret = secret
		s.logger.Warn(context.Background(), "no check-in token secret configured; tokens will not survive a restart")
	}

	scorer := scoring.NewWeighted(scoring.WithWeights(s.weights[0], s.weights[1], s.weights[2]))
	s.assembler = grouping.NewGreedy(
		grouping.WithScorer(scorer),
		grouping.WithMaxLeftoverAbsorb(s.maxLeftoverAbsorb),
	)
	s.freezer = freeze.NewController(store, store,
		freeze.WithClock(s.now),
		freeze.WithDefaultFreezeHours(s.freezeHours),
		freeze.WithGuardHonorsOverride(s.guardHonorsOverride),
		freeze.WithLogger(s.logger.Named("freeze")),
	)
	s.reconciler = reconcile.New(store,
		reconcile.WithStaleAfter(s.staleAfter),
		reconcile.WithClock(s.now),
		reconcile.WithLogger(s.logger.Named("reconciler")),
	)
	s.validator = attendance.NewValidator(store,
		attendance.WithWindow(s.windowBefore, s.windowAfter),
		attendance.WithClock(s.now),
		attendance.WithLogger(s.logger.Named("attendance")),
	)
	tokens, err := attendance.NewTokenIssuer(s.tokenSecret,
		attendance.WithValidity(s.tokenValidity),
		attendance.WithTokenClock(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}
	s.tokens = tokens
	s.tracker = streak.NewTracker(store,
		streak.WithClock(s.now),
		streak.WithLogger(s.logger.Named("streak")),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.jobs = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.jobs, s.tracker,
		workerpool.WithLogger(s.logger),
		workerpool.WithOnFailure(s.forgetJob),
	)

	return s, nil
}

// Start launches the streak workers and the periodic sweeps.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.jobs.IsClosed() {
		return errors.New("service cannot be restarted after Stop")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.workerPool.Start(runCtx)

	if s.reconcileInterval > 0 {
		s.loops.Add(1)
		go func() {
			defer s.loops.Done()
			s.reconciler.Run(runCtx, s.reconcileInterval)
		}()
	}
	if s.autoFreezeInterval > 0 {
		s.loops.Add(1)
		go func() {
			defer s.loops.Done()
			s.freezer.Run(runCtx, s.autoFreezeInterval, s.autoFreezeLookahead)
		}()
	}

	s.started = true
	s.logger.Info(ctx, "huddle service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("groupSize", s.groupSize),
		logger.Duration("reconcileInterval", s.reconcileInterval),
		logger.Duration("autoFreezeInterval", s.autoFreezeInterval),
	)
	return nil
}

// Stop drains the streak queue and stops the periodic sweeps.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping huddle service...")

	shutdownCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	if err := s.workerPool.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, "streak workers did not drain", logger.Error(err))
	}

	s.cancel()
	s.loops.Wait()

	s.started = false
	s.logger.Info(ctx, "huddle service stopped",
		logger.Int64("streakJobsProcessed", s.workerPool.Processed()),
		logger.Int64("streakJobsFailed", s.workerPool.Failed()),
	)
}

// UpsertEvent creates or replaces an event. Events normally belong to the
// event-management system; this path seeds the store in development.
func (s *Service) UpsertEvent(ctx context.Context, e model.Event) error {
	e.ID = strings.TrimSpace(e.ID)
	if e.ID == "" {
		return fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}
	if e.StartsAt.IsZero() {
		return fmt.Errorf("%w: event start is required", ErrInvalidInput)
	}
	if e.FreezeHoursBefore < 0 {
		return fmt.Errorf("%w: freeze hours must not be negative", ErrInvalidInput)
	}
	if e.FreezeHoursBefore == 0 {
		e.FreezeHoursBefore = s.freezeHours
	}
	return classify(s.store.UpsertEvent(ctx, e))
}

// GetEvent returns an event.
func (s *Service) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	e, err := s.store.GetEvent(ctx, eventID)
	return e, classify(err)
}

// RegisterParticipant registers a user for an event.
func (s *Service) RegisterParticipant(ctx context.Context, eventID, userID string) error {
	return classify(s.validator.RegisterParticipant(ctx, eventID, userID))
}

// AssembleGroups partitions the candidates into groups of the given size and
// persists them as forming groups. A size of zero selects the configured default.
func (s *Service) AssembleGroups(ctx context.Context, eventID string, candidates []model.Candidate, size int) (model.AssembleResult, error) {
	start := time.Now()
	res := model.AssembleResult{EventID: eventID, Groups: []model.GroupDetail{}}

	if size == 0 {
		size = s.groupSize
	}
	if size < 2 {
		return res, ErrInvalidGroupSize
	}
	if len(candidates) > s.maxCandidates {
		return res, fmt.Errorf("%w: %d > %d", ErrTooManyCandidates, len(candidates), s.maxCandidates)
	}
	pool, err := normalizeCandidates(candidates)
	if err != nil {
		return res, err
	}

	guard, err := s.freezer.CheckGuard(ctx, eventID, freeze.ActionAssemble)
	if err != nil {
		return res, classify(err)
	}
	if !guard.Allowed {
		res.Reason = guard.Reason
		return res, nil
	}

	var (
		created  []model.GroupDetail
		existing []string
		fresh    []model.Candidate
	)
	for attempt := 1; ; attempt++ {
		fresh, existing, err = s.unseated(ctx, eventID, pool)
		if err != nil {
			return res, err
		}
		created = s.formGroups(eventID, fresh, size)
		err = s.store.CreateGroups(ctx, created)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrAlreadyGrouped) || attempt == assembleAttempts {
			metrics.RecordErrorByComponent("assembler", "store")
			return res, fmt.Errorf("create groups: %w", classify(err))
		}
		s.logger.Debug(ctx, "concurrent assembly, retrying",
			logger.String("eventID", eventID),
			logger.Int("attempt", attempt),
		)
	}

	assigned := 0
	for _, d := range created {
		metrics.RecordGroupFormed(len(d.Members), d.Group.Score)
		assigned += len(d.Members)
	}
	if dropped := len(fresh) - assigned; dropped > 0 {
		metrics.RecordCandidatesDropped(dropped)
	}
	metrics.RecordAssemblyLatency(float64(time.Since(start).Milliseconds()))

	res.Groups = append(res.Groups, created...)
	for _, id := range existing {
		g, members, err := s.store.GetGroup(ctx, id)
		if err != nil {
			return res, fmt.Errorf("load existing group: %w", classify(err))
		}
		res.Groups = append(res.Groups, model.GroupDetail{Group: g, Members: members})
	}
	res.Existing = len(existing)

	res.Assembled = true
	s.logger.Info(ctx, "groups assembled",
		logger.String("eventID", eventID),
		logger.Int("candidates", len(pool)),
		logger.Int("groups", len(created)),
		logger.Int("existing", len(existing)),
		logger.Int("size", size),
	)
	return res, nil
}

// unseated splits the pool into candidates without a seat in an active group
// of the event and the ids of the groups holding the others, in pool order.
func (s *Service) unseated(ctx context.Context, eventID string, pool []model.Candidate) ([]model.Candidate, []string, error) {
	active, err := s.store.ActiveMembers(ctx, eventID)
	if err != nil {
		return nil, nil, fmt.Errorf("list active members: %w", classify(err))
	}
	seat := make(map[string]string, len(active))
	for _, m := range active {
		seat[m.UserID] = m.GroupID
	}
	fresh := make([]model.Candidate, 0, len(pool))
	var groupIDs []string
	listed := make(map[string]struct{})
	for _, c := range pool {
		id, ok := seat[c.UserID]
		if !ok {
			fresh = append(fresh, c)
			continue
		}
		if _, dup := listed[id]; !dup {
			listed[id] = struct{}{}
			groupIDs = append(groupIDs, id)
		}
	}
	return fresh, groupIDs, nil
}

func (s *Service) formGroups(eventID string, pool []model.Candidate, size int) []model.GroupDetail {
	now := s.now()
	formations := s.assembler.Assemble(pool, size)
	out := make([]model.GroupDetail, 0, len(formations))
	for _, f := range formations {
		out = append(out, s.newGroup(eventID, f, now))
	}
	return out
}

func (s *Service) newGroup(eventID string, f grouping.Formation, at time.Time) model.GroupDetail {
	g := model.Group{
		ID:        uuid.NewString(),
		EventID:   eventID,
		Status:    model.StatusForming,
		Score:     f.Score,
		CreatedAt: at,
	}
	members := make([]model.GroupMember, len(f.Members))
	for i, c := range f.Members {
		role := model.RoleMember
		if i == 0 {
			role = model.RoleHost
		}
		members[i] = model.GroupMember{GroupID: g.ID, UserID: c.UserID, Role: role, JoinedAt: at}
	}
	return model.GroupDetail{Group: g, Members: members}
}

func normalizeCandidates(candidates []model.Candidate) ([]model.Candidate, error) {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]model.Candidate, 0, len(candidates))
	for _, c := range candidates {
		c.UserID = strings.TrimSpace(c.UserID)
		if c.UserID == "" {
			c.UserID = strings.TrimSpace(c.Profile.UserID)
		}
		if c.UserID == "" {
			return nil, fmt.Errorf("%w: candidate without user id", ErrInvalidInput)
		}
		if _, dup := seen[c.UserID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCandidate, c.UserID)
		}
		seen[c.UserID] = struct{}{}
		c.Profile.UserID = c.UserID
		out = append(out, c)
	}
	return out, nil
}

// ListGroups returns the groups of an event.
func (s *Service) ListGroups(ctx context.Context, eventID string) ([]model.Group, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, classify(err)
	}
	groups, err := s.store.ListEventGroups(ctx, eventID)
	return groups, classify(err)
}

// GetGroup returns a group with its members.
func (s *Service) GetGroup(ctx context.Context, groupID string) (model.GroupDetail, error) {
	g, members, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return model.GroupDetail{}, classify(err)
	}
	return model.GroupDetail{Group: g, Members: members}, nil
}

// FreezeStatus evaluates the freeze predicate of an event.
func (s *Service) FreezeStatus(ctx context.Context, eventID string) (freeze.Status, error) {
	st, err := s.freezer.Status(ctx, eventID)
	return st, classify(err)
}

// CheckGuard decides whether a group mutation may proceed.
func (s *Service) CheckGuard(ctx context.Context, eventID, action string) (freeze.GuardResult, error) {
	a, err := freeze.ParseAction(action)
	if err != nil {
		return freeze.GuardResult{}, classify(err)
	}
	res, err := s.freezer.CheckGuard(ctx, eventID, a)
	return res, classify(err)
}

// FreezeEventGroups locks every forming group of the event.
func (s *Service) FreezeEventGroups(ctx context.Context, eventID, actor string) (freeze.Result, error) {
	res, err := s.freezer.FreezeEventGroups(ctx, eventID, actor)
	return res, classify(err)
}

// UnfreezeEventGroups reopens the frozen groups of the event.
func (s *Service) UnfreezeEventGroups(ctx context.Context, eventID string) (freeze.Result, error) {
	res, err := s.freezer.UnfreezeEventGroups(ctx, eventID)
	return res, classify(err)
}

// AutoFreeze runs one automatic freeze sweep.
func (s *Service) AutoFreeze(ctx context.Context) (freeze.AutoFreezeReport, error) {
	return s.freezer.AutoFreeze(ctx, s.autoFreezeLookahead)
}

// Reconcile runs one stale-group sweep.
func (s *Service) Reconcile(ctx context.Context) (reconcile.Report, error) {
	return s.reconciler.Sweep(ctx)
}

// CheckIn records attendance and, when this call inserted the record, credits
// the weekly streak asynchronously.
func (s *Service) CheckIn(ctx context.Context, req model.CheckInRequest) (attendance.CheckInResult, error) {
	if req.Token != "" {
		st, err := s.checkToken(req.EventID, req.Token)
		if err != nil {
			return attendance.CheckInResult{}, err
		}
		if !st.Valid {
			metrics.RecordCheckIn(metrics.CheckInFailed)
			return attendance.CheckInResult{Reason: st.Reason}, nil
		}
	}

	res, err := s.validator.RecordCheckIn(ctx, req.UserID, req.EventID, req.OrgID)
	if err != nil {
		return res, classify(err)
	}
	if res.Recorded() && res.Record != nil {
		s.creditStreak(ctx, *res.Record, strings.TrimSpace(req.Category))
	}
	return res, nil
}

func (s *Service) checkToken(eventID, raw string) (attendance.TokenStatus, error) {
	tok, err := attendance.ParseToken(raw)
	if err != nil {
		return attendance.TokenStatus{}, classify(err)
	}
	if tok.EventID != eventID {
		return attendance.TokenStatus{Reason: "token belongs to another event"}, nil
	}
	return s.tokens.Verify(tok.EventID, tok.ExpiresAt, tok.Checksum), nil
}

// creditStreak hands the attendance to the streak workers. The dedupe key is
// the weekly update hash so one process queues at most one job per week.
// When the queue rejects the job the update runs inline.
func (s *Service) creditStreak(ctx context.Context, rec model.AttendanceRecord, category string) {
	job := model.StreakJob{
		UserID:   rec.UserID,
		OrgID:    rec.OrgID,
		Category: category,
		EventID:  rec.EventID,
		At:       rec.CheckedInAt,
	}
	key := jobKey(job)
	if s.deduper.SeenAndRecord(ctx, key) {
		return
	}

	err := s.jobs.Enqueue(ctx, job)
	if err == nil {
		return
	}
	s.logger.Warn(ctx, "streak job not queued, updating inline",
		logger.String("userID", job.UserID),
		logger.String("eventID", job.EventID),
		logger.Error(err),
	)
	if _, err := s.tracker.UpdateStreakAt(ctx, job.Key(), job.At); err != nil {
		s.deduper.Unrecord(ctx, key)
		s.logger.Error(ctx, "streak update failed",
			logger.String("userID", job.UserID),
			logger.String("eventID", job.EventID),
			logger.Error(err),
		)
	}
}

// forgetJob lets a failed job be retried by the next check-in.
func (s *Service) forgetJob(ctx context.Context, job model.StreakJob, _ error) {
	s.deduper.Unrecord(ctx, jobKey(job))
}

func jobKey(job model.StreakJob) string {
	year, week := streak.ISOWeek(job.At)
	return streak.UpdateHash(job.UserID, job.OrgID, year, week) + "|" + job.Category
}

// HasCheckedIn reports whether the user checked in to the event.
func (s *Service) HasCheckedIn(ctx context.Context, userID, eventID string) (bool, error) {
	ok, err := s.validator.HasCheckedIn(ctx, userID, eventID)
	return ok, classify(err)
}

// AttendanceSummary returns registration and no-show counts of an event.
func (s *Service) AttendanceSummary(ctx context.Context, eventID string) (model.AttendanceSummary, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return model.AttendanceSummary{}, classify(err)
	}
	sum, err := s.validator.Summary(ctx, eventID)
	return sum, classify(err)
}

// IssueToken returns the QR check-in token of an event.
func (s *Service) IssueToken(ctx context.Context, eventID string) (attendance.Token, error) {
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return attendance.Token{}, classify(err)
	}
	return s.tokens.Issue(e), nil
}

// ValidateToken checks a QR payload.
func (s *Service) ValidateToken(_ context.Context, raw string) (attendance.TokenStatus, error) {
	tok, err := attendance.ParseToken(raw)
	if err != nil {
		return attendance.TokenStatus{}, classify(err)
	}
	return s.tokens.Verify(tok.EventID, tok.ExpiresAt, tok.Checksum), nil
}

// UpdateStreak credits the current week synchronously.
func (s *Service) UpdateStreak(ctx context.Context, userID, orgID, category string) (streak.Result, error) {
	res, err := s.tracker.UpdateStreak(ctx, userID, orgID, category)
	return res, classify(err)
}

// GetStreak returns a stored streak.
func (s *Service) GetStreak(ctx context.Context, userID, orgID, category string) (model.UserStreak, error) {
	st, err := s.tracker.GetStreak(ctx, model.StreakKey{UserID: userID, OrgID: orgID, Category: category})
	return st, classify(err)
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	queueLen := s.jobs.Len(ctx)
	return map[string]interface{}{
		"started":             s.started,
		"groupSize":           s.groupSize,
		"workerCount":         s.workerPool.Size(),
		"queueCapacity":       s.jobs.Capacity(),
		"queueLength":         queueLen,
		"dedupeSize":          s.deduper.Size(),
		"streakJobsProcessed": s.workerPool.Processed(),
		"streakJobsFailed":    s.workerPool.Failed(),
	}
}

func randomSecret() (string, error) {
	buf := make([]byte, tokenSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
