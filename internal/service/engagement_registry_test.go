package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/errdefs"
	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureEngagement(t *testing.T) {
	ctx := context.Background()

	t.Run("Error_PendingRequest", func(t *testing.T) {
		f := setup(t)
		request := f.submit(t)

		_, err := f.registry.EnsureEngagement(ctx, request.ID)
		assert.True(t, errors.Is(err, errdefs.ErrPreconditionFailed))
	})

	t.Run("Idempotent", func(t *testing.T) {
		f := setup(t)
		request, result := f.approve(t)

		engagement, err := f.registry.EnsureEngagement(ctx, request.ID)
		require.NoError(t, err)
		assert.Equal(t, result.EngagementID, engagement.ID)
	})

	t.Run("ReusesActiveEngagementForPair", func(t *testing.T) {
		f := setup(t)
		_, first := f.approve(t)

		// вторая заявка той же пары, одобренная при действующем engagement
		second := f.submit(t)
		engagement, err := f.registry.Approve(ctx, second.ID, admin, "")
		require.NoError(t, err)
		assert.Equal(t, first.EngagementID, engagement.ID)
	})

	t.Run("StartsAtApproval", func(t *testing.T) {
		f := setup(t)
		approvedAt := time.Date(2026, time.January, 31, 12, 0, 0, 0, time.UTC)
		f.clock.Set(approvedAt)
		request := f.submit(t)

		engagement, err := f.registry.Approve(ctx, request.ID, admin, "")
		require.NoError(t, err)
		assert.True(t, engagement.StartDate.Equal(approvedAt))
		assert.True(t, engagement.NextBillingDate.Equal(approvedAt))
	})
}

func TestAdvanceBillingCycle(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, time.January, 31, 12, 0, 0, 0, time.UTC)

	newEngagement := func(t *testing.T) (*fixture, *model.Engagement) {
		f := setup(t)
		f.clock.Set(start)
		request := f.submit(t)
		engagement, err := f.registry.Approve(ctx, request.ID, admin, "")
		require.NoError(t, err)
		return f, engagement
	}

	t.Run("AdvancesOncePerPeriod", func(t *testing.T) {
		f, engagement := newEngagement(t)

		updated, advanced, err := f.registry.AdvanceBillingCycle(ctx, engagement.ID, start)
		require.NoError(t, err)
		assert.True(t, advanced)
		assert.Equal(t, time.Date(2026, time.February, 28, 12, 0, 0, 0, time.UTC), updated.NextBillingDate)

		updated, advanced, err = f.registry.AdvanceBillingCycle(ctx, engagement.ID, start)
		require.NoError(t, err)
		assert.False(t, advanced)
		assert.Equal(t, time.Date(2026, time.February, 28, 12, 0, 0, 0, time.UTC), updated.NextBillingDate)
	})

	t.Run("OverdueDuplicateTriggerAdvancesOnce", func(t *testing.T) {
		f := setup(t)
		f.clock.Set(time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC))
		request := f.submit(t)
		engagement, err := f.registry.Approve(ctx, request.ID, admin, "")
		require.NoError(t, err)

		// три периода просрочено
		f.clock.Set(time.Date(2026, time.April, 20, 9, 0, 0, 0, time.UTC))
		period := engagement.NextBillingDate

		first, advanced, err := f.registry.AdvanceBillingCycle(ctx, engagement.ID, period)
		require.NoError(t, err)
		require.True(t, advanced)
		assert.Equal(t, time.Date(2026, time.February, 10, 9, 0, 0, 0, time.UTC), first.NextBillingDate)

		second, advanced, err := f.registry.AdvanceBillingCycle(ctx, engagement.ID, period)
		require.NoError(t, err)
		assert.False(t, advanced)
		assert.Equal(t, first.NextBillingDate, second.NextBillingDate)

		stored, err := f.registry.GetEngagement(ctx, engagement.ID)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, time.February, 10, 9, 0, 0, 0, time.UTC), stored.NextBillingDate)
	})

	t.Run("KeepsAnchorDay", func(t *testing.T) {
		f, engagement := newEngagement(t)

		expected := []time.Time{
			time.Date(2026, time.February, 28, 12, 0, 0, 0, time.UTC),
			time.Date(2026, time.March, 31, 12, 0, 0, 0, time.UTC),
			time.Date(2026, time.April, 30, 12, 0, 0, 0, time.UTC),
			time.Date(2026, time.May, 31, 12, 0, 0, 0, time.UTC),
		}
		due := start
		for _, want := range expected {
			f.clock.Set(due)
			updated, advanced, err := f.registry.AdvanceBillingCycle(ctx, engagement.ID, due)
			require.NoError(t, err)
			require.True(t, advanced)
			assert.Equal(t, want, updated.NextBillingDate)
			due = want
		}
	})

	t.Run("NotDue", func(t *testing.T) {
		f, engagement := newEngagement(t)
		updated, _, err := f.registry.AdvanceBillingCycle(ctx, engagement.ID, start)
		require.NoError(t, err)

		f.clock.Set(time.Date(2026, time.February, 27, 12, 0, 0, 0, time.UTC))
		_, advanced, err := f.registry.AdvanceBillingCycle(ctx, engagement.ID, updated.NextBillingDate)
		require.NoError(t, err)
		assert.False(t, advanced)
	})

	t.Run("StalePeriodIgnored", func(t *testing.T) {
		f, engagement := newEngagement(t)

		_, advanced, err := f.registry.AdvanceBillingCycle(ctx, engagement.ID, start.AddDate(0, -1, 0))
		require.NoError(t, err)
		assert.False(t, advanced)
	})

	t.Run("Error_NoPeriod", func(t *testing.T) {
		f, engagement := newEngagement(t)

		_, _, err := f.registry.AdvanceBillingCycle(ctx, engagement.ID, time.Time{})
		assert.True(t, errors.Is(err, errdefs.ErrInvalidArgument))
	})

	t.Run("Error_Cancelled", func(t *testing.T) {
		f, engagement := newEngagement(t)
		_, err := f.coordinator.CancelEngagement(ctx, engagement.ID, admin)
		require.NoError(t, err)

		_, _, err = f.registry.AdvanceBillingCycle(ctx, engagement.ID, start)
		assert.True(t, errors.Is(err, errdefs.ErrPreconditionFailed))
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		f := setup(t)

		_, _, err := f.registry.AdvanceBillingCycle(ctx, uuid.New(), start)
		assert.True(t, errors.Is(err, errdefs.ErrNotFound))
	})

	t.Run("ListDue", func(t *testing.T) {
		f, engagement := newEngagement(t)

		due, err := f.registry.ListDueEngagements(ctx, 0)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, engagement.ID, due[0].ID)

		_, _, err = f.registry.AdvanceBillingCycle(ctx, engagement.ID, due[0].NextBillingDate)
		require.NoError(t, err)

		due, err = f.registry.ListDueEngagements(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, due)
	})
}

func TestSetEngagementStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("SuspendAndResume", func(t *testing.T) {
		f := setup(t)
		_, result := f.approve(t)

		suspended, err := f.registry.SetEngagementStatus(ctx, result.EngagementID, admin, model.EngagementStatusSuspended)
		require.NoError(t, err)
		assert.Equal(t, model.EngagementStatusSuspended, suspended.Status)

		_, _, err = f.registry.AdvanceBillingCycle(ctx, result.EngagementID, suspended.NextBillingDate)
		assert.True(t, errors.Is(err, errdefs.ErrPreconditionFailed))

		resumed, err := f.registry.SetEngagementStatus(ctx, result.EngagementID, admin, model.EngagementStatusActive)
		require.NoError(t, err)
		assert.Equal(t, model.EngagementStatusActive, resumed.Status)
	})

	t.Run("Error_NotAdmin", func(t *testing.T) {
		f := setup(t)
		_, result := f.approve(t)

		_, err := f.registry.SetEngagementStatus(ctx, result.EngagementID, teacher, model.EngagementStatusSuspended)
		assert.True(t, errors.Is(err, errdefs.ErrPermissionDenied))
	})
}

func TestListRequests(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	first := f.submit(t)
	other := validInput()
	other.TeacherID = "teacher-2"
	second, err := f.coordinator.SubmitRequest(ctx, student, other)
	require.NoError(t, err)

	mine, err := f.registry.ListRequestsForStudent(ctx, student.UserID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	pending, err := f.registry.ListPendingRequests(ctx, teacher.UserID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)

	all, err := f.registry.ListPendingRequests(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.coordinator.Approve(ctx, second.ID, admin, "")
	require.NoError(t, err)
	all, err = f.registry.ListPendingRequests(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
