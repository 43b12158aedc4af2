package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// maxBillingPasses ограничивает число проходов за один запуск: engagement, отставший
// на несколько периодов, сдвигается на один период за проход
const maxBillingPasses = 12

// BillingRegistry то, что нужно планировщику от реестра engagement
type BillingRegistry interface {
	ListDueEngagements(ctx context.Context, limit int) ([]*model.Engagement, error)
	AdvanceBillingCycle(ctx context.Context, id uuid.UUID, period time.Time) (*model.Engagement, bool, error)
}

// GrantExpirer то, что нужно планировщику от реестра доступов
type GrantExpirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// Scheduler управляет фоновыми задачами по cron-расписанию
type Scheduler struct {
	cron        *cron.Cron
	billing     BillingRegistry
	grants      GrantExpirer
	billingSpec string
	expirySpec  string
	jobTimeout  time.Duration
	logger      *zap.Logger
}

// NewScheduler создаёт новый планировщик
func NewScheduler(billing BillingRegistry, grants GrantExpirer, billingSpec, expirySpec string, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:        cron.New(cron.WithLocation(time.UTC)),
		billing:     billing,
		grants:      grants,
		billingSpec: billingSpec,
		expirySpec:  expirySpec,
		jobTimeout:  5 * time.Minute,
		logger:      logger,
	}
}

// Start регистрирует задачи и запускает планировщик
func (s *Scheduler) Start() error {
	s.logger.Info("Starting background scheduler",
		zap.String("billing", s.billingSpec),
		zap.String("grant_expiry", s.expirySpec),
	)

	if _, err := s.cron.AddFunc(s.billingSpec, s.job("billing", s.RunBilling)); err != nil {
		return fmt.Errorf("add billing job: %w", err)
	}
	if _, err := s.cron.AddFunc(s.expirySpec, s.job("grant_expiry", s.RunGrantExpiry)); err != nil {
		return fmt.Errorf("add grant expiry job: %w", err)
	}

	s.cron.Start()
	return nil
}

// Stop останавливает планировщик и ждёт завершения запущенных задач
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) job(name string, run func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()

		started := time.Now()
		if err := run(ctx); err != nil {
			s.logger.Error("Background job failed", zap.String("job", name), zap.Error(err))
			return
		}
		s.logger.Debug("Background job completed", zap.String("job", name), zap.Duration("took", time.Since(started)))
	}
}

// RunBilling сдвигает цикл всех engagement, у которых наступила дата списания
func (s *Scheduler) RunBilling(ctx context.Context) error {
	total := 0
	for pass := 0; pass < maxBillingPasses; pass++ {
		due, err := s.billing.ListDueEngagements(ctx, 0)
		if err != nil {
			return fmt.Errorf("list due engagements: %w", err)
		}
		if len(due) == 0 {
			break
		}

		advanced := 0
		for _, engagement := range due {
			_, ok, err := s.billing.AdvanceBillingCycle(ctx, engagement.ID, engagement.NextBillingDate)
			if err != nil {
				s.logger.Warn("Failed to advance billing cycle",
					zap.String("engagement_id", engagement.ID.String()),
					zap.Error(err),
				)
				continue
			}
			if ok {
				advanced++
			}
		}
		total += advanced

		if advanced == 0 {
			break
		}
	}

	if total > 0 {
		s.logger.Info("Billing run completed", zap.Int("advanced", total))
	}
	return nil
}

// RunGrantExpiry помечает истёкшие доступы
func (s *Scheduler) RunGrantExpiry(ctx context.Context) error {
	_, err := s.grants.ExpireStale(ctx)
	return err
}
