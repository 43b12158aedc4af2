package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/Freeeeeet/engagement_service/internal/repository/memory"
	"github.com/Freeeeeet/engagement_service/internal/service"
	"github.com/Freeeeeet/engagement_service/internal/validation"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	student = model.Actor{UserID: "student-1", DisplayName: "Alice", Role: model.RoleStudent}
	teacher = model.Actor{UserID: "teacher-1", DisplayName: "Mr. Brown", Role: model.RoleTeacher}
	admin   = model.Actor{UserID: "admin-1", DisplayName: "Root", Role: model.RoleSuperAdmin}
	admin2  = model.Actor{UserID: "admin-2", DisplayName: "Ops", Role: model.RoleSuperAdmin}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordedEvents struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recordedEvents) Publish(_ context.Context, event model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordedEvents) Types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]model.EventType, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

func (r *recordedEvents) Count(t model.EventType) int {
	n := 0
	for _, got := range r.Types() {
		if got == t {
			n++
		}
	}
	return n
}

type fixture struct {
	store         *memory.Store
	clock         *fakeClock
	events        *recordedEvents
	registry      *service.EngagementRegistry
	access        *service.AccessService
	conversations *service.ConversationService
	coordinator   *service.Coordinator
}

type repos struct {
	requests      service.RequestRepository
	engagements   service.EngagementRepository
	access        service.AccessRepository
	conversations service.ConversationRepository
}

func setup(t *testing.T) *fixture {
	t.Helper()
	return setupWith(t, nil)
}

// setupWith позволяет подменить хранилища обёртками
func setupWith(t *testing.T, wrap func(r *repos)) *fixture {
	t.Helper()

	store := memory.New()
	r := &repos{
		requests:      store.Requests,
		engagements:   store.Engagements,
		access:        store.Access,
		conversations: store.Conversations,
	}
	if wrap != nil {
		wrap(r)
	}

	clock := newFakeClock(time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC))
	events := &recordedEvents{}
	logger := zap.NewNop()
	v := validation.New()

	registry := service.NewEngagementRegistry(r.requests, r.engagements, clock.Now, logger)
	access := service.NewAccessService(r.access, nil, clock.Now, logger)
	conversations := service.NewConversationService(r.conversations, events, v, clock.Now, logger)
	policy := service.RetryPolicy{Base: time.Millisecond, MaxRetries: 3, MaxDelay: 5 * time.Millisecond}
	coordinator := service.NewCoordinator(registry, access, conversations, events, v, policy, clock.Now, logger)

	return &fixture{
		store:         store,
		clock:         clock,
		events:        events,
		registry:      registry,
		access:        access,
		conversations: conversations,
		coordinator:   coordinator,
	}
}

func validInput() model.SubmitRequestInput {
	return model.SubmitRequestInput{
		StudentID:      student.UserID,
		StudentProfile: model.StudentProfile{Name: "Alice", Email: "alice@example.com", Level: "B2", School: "School 57"},
		TeacherID:      teacher.UserID,
		TeacherName:    "Mr. Brown",
		Plan:           model.PlanStandard,
		Subject:        "Mathematics",
		Objectives:     "Prepare for the final exam",
		Availability:   []string{"Mon 18:00", "Thu 18:00"},
	}
}

func (f *fixture) submit(t *testing.T) *model.EngagementRequest {
	t.Helper()
	request, err := f.coordinator.SubmitRequest(context.Background(), student, validInput())
	require.NoError(t, err)
	return request
}

func (f *fixture) approve(t *testing.T) (*model.EngagementRequest, *model.ApprovalResult) {
	t.Helper()
	request := f.submit(t)
	result, err := f.coordinator.Approve(context.Background(), request.ID, admin, "")
	require.NoError(t, err)
	return request, result
}
