package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type billingMock struct {
	mock.Mock
}

func (m *billingMock) ListDueEngagements(ctx context.Context, limit int) ([]*model.Engagement, error) {
	args := m.Called(ctx, limit)
	due, _ := args.Get(0).([]*model.Engagement)
	return due, args.Error(1)
}

func (m *billingMock) AdvanceBillingCycle(ctx context.Context, id uuid.UUID, period time.Time) (*model.Engagement, bool, error) {
	args := m.Called(ctx, id, period)
	return nil, args.Bool(0), args.Error(1)
}

type expirerMock struct {
	mock.Mock
}

func (m *expirerMock) ExpireStale(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func TestRunBilling(t *testing.T) {
	ctx := context.Background()

	t.Run("AdvancesUntilNothingDue", func(t *testing.T) {
		jan := time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)
		feb := time.Date(2026, time.February, 10, 9, 0, 0, 0, time.UTC)
		first := &model.Engagement{ID: uuid.New(), NextBillingDate: feb}
		second := &model.Engagement{ID: uuid.New(), NextBillingDate: jan}
		// second отстал на два периода; после первого прохода ждёт февральского списания
		secondLater := &model.Engagement{ID: second.ID, NextBillingDate: feb}

		billing := &billingMock{}
		billing.On("ListDueEngagements", mock.Anything, 0).Return([]*model.Engagement{first, second}, nil).Once()
		billing.On("ListDueEngagements", mock.Anything, 0).Return([]*model.Engagement{secondLater}, nil).Once()
		billing.On("ListDueEngagements", mock.Anything, 0).Return([]*model.Engagement{}, nil).Once()
		billing.On("AdvanceBillingCycle", mock.Anything, first.ID, feb).Return(true, nil).Once()
		billing.On("AdvanceBillingCycle", mock.Anything, second.ID, jan).Return(true, nil).Once()
		billing.On("AdvanceBillingCycle", mock.Anything, second.ID, feb).Return(true, nil).Once()

		s := NewScheduler(billing, &expirerMock{}, "@hourly", "@every 15m", zap.NewNop())
		require.NoError(t, s.RunBilling(ctx))
		billing.AssertExpectations(t)
	})

	t.Run("StopsWhenNothingAdvanced", func(t *testing.T) {
		settled := &model.Engagement{ID: uuid.New(), NextBillingDate: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)}

		billing := &billingMock{}
		billing.On("ListDueEngagements", mock.Anything, 0).Return([]*model.Engagement{settled}, nil).Once()
		billing.On("AdvanceBillingCycle", mock.Anything, settled.ID, settled.NextBillingDate).Return(false, nil).Once()

		s := NewScheduler(billing, &expirerMock{}, "@hourly", "@every 15m", zap.NewNop())
		require.NoError(t, s.RunBilling(ctx))
		billing.AssertExpectations(t)
	})

	t.Run("SkipsFailedEngagement", func(t *testing.T) {
		broken := &model.Engagement{ID: uuid.New(), NextBillingDate: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)}

		billing := &billingMock{}
		billing.On("ListDueEngagements", mock.Anything, 0).Return([]*model.Engagement{broken}, nil).Once()
		billing.On("AdvanceBillingCycle", mock.Anything, broken.ID, broken.NextBillingDate).Return(false, errors.New("timeout")).Once()

		s := NewScheduler(billing, &expirerMock{}, "@hourly", "@every 15m", zap.NewNop())
		require.NoError(t, s.RunBilling(ctx))
		billing.AssertExpectations(t)
	})

	t.Run("Error_List", func(t *testing.T) {
		billing := &billingMock{}
		billing.On("ListDueEngagements", mock.Anything, 0).Return(nil, errors.New("connection refused")).Once()

		s := NewScheduler(billing, &expirerMock{}, "@hourly", "@every 15m", zap.NewNop())
		assert.ErrorContains(t, s.RunBilling(ctx), "connection refused")
	})
}

func TestRunGrantExpiry(t *testing.T) {
	grants := &expirerMock{}
	grants.On("ExpireStale", mock.Anything).Return(int64(3), nil).Once()

	s := NewScheduler(&billingMock{}, grants, "@hourly", "@every 15m", zap.NewNop())
	require.NoError(t, s.RunGrantExpiry(context.Background()))
	grants.AssertExpectations(t)
}

func TestSchedulerStart(t *testing.T) {
	t.Run("Error_BadSpec", func(t *testing.T) {
		s := NewScheduler(&billingMock{}, &expirerMock{}, "not a cron spec", "@every 15m", zap.NewNop())
		assert.Error(t, s.Start())
	})

	t.Run("StartStop", func(t *testing.T) {
		s := NewScheduler(&billingMock{}, &expirerMock{}, "@hourly", "@every 15m", zap.NewNop())
		require.NoError(t, s.Start())
		s.Stop()
	})
}
