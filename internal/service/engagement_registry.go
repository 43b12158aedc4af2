package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/errdefs"
	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultDueLimit сколько engagement забирает один проход биллинга
const DefaultDueLimit = 100

// Cancellation итог отмены заявки
type Cancellation struct {
	Request *model.EngagementRequest
	// Engagement, связанный с заявкой, если он был создан
	Engagement *model.Engagement
	// EngagementCancelled выставлен, если engagement переведён в cancelled этим вызовом
	EngagementCancelled bool
	// AlreadyCancelled выставлен, если заявка была отменена до этого вызова
	AlreadyCancelled bool
}

// EngagementRegistry ведёт жизненный цикл заявок и engagement
type EngagementRegistry struct {
	requests    RequestRepository
	engagements EngagementRepository
	now         Clock
	logger      *zap.Logger
}

func NewEngagementRegistry(
	requests RequestRepository,
	engagements EngagementRepository,
	now Clock,
	logger *zap.Logger,
) *EngagementRegistry {
	if now == nil {
		now = time.Now
	}
	return &EngagementRegistry{
		requests:    requests,
		engagements: engagements,
		now:         now,
		logger:      logger,
	}
}

// CreateRequest сохраняет новую заявку в статусе pending
func (r *EngagementRegistry) CreateRequest(ctx context.Context, in model.SubmitRequestInput) (*model.EngagementRequest, error) {
	pending, err := r.requests.HasPending(ctx, in.StudentID, in.TeacherID)
	if err != nil {
		return nil, fmt.Errorf("check pending requests: %w", err)
	}
	if pending {
		return nil, errdefs.Precondition("a pending request to this teacher already exists")
	}

	now := r.now().UTC()
	request := &model.EngagementRequest{
		ID:             uuid.New(),
		StudentID:      in.StudentID,
		StudentProfile: in.StudentProfile,
		TeacherID:      in.TeacherID,
		TeacherName:    in.TeacherName,
		Plan:           in.Plan,
		Subject:        strings.TrimSpace(in.Subject),
		Objectives:     in.Objectives,
		Availability:   in.Availability,
		Status:         model.RequestStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = r.requests.Create(ctx, request)
	if errors.Is(err, errdefs.ErrAlreadyExists) {
		// параллельная заявка той же пары успела раньше
		return nil, errdefs.Precondition("a pending request to this teacher already exists")
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	r.logger.Info("Engagement request created",
		zap.String("request_id", request.ID.String()),
		zap.String("student_id", request.StudentID),
		zap.String("teacher_id", request.TeacherID),
		zap.String("plan", string(request.Plan)),
	)

	return request, nil
}

// GetRequest получает заявку по ID
func (r *EngagementRegistry) GetRequest(ctx context.Context, id uuid.UUID) (*model.EngagementRequest, error) {
	request, err := r.requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return request, nil
}

// ListRequestsForStudent получает заявки студента
func (r *EngagementRegistry) ListRequestsForStudent(ctx context.Context, studentID string) ([]*model.EngagementRequest, error) {
	requests, err := r.requests.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list student requests: %w", err)
	}
	return requests, nil
}

// ListPendingRequests получает заявки, ожидающие решения. Пустой teacherID — все учителя.
func (r *EngagementRegistry) ListPendingRequests(ctx context.Context, teacherID string) ([]*model.EngagementRequest, error) {
	requests, err := r.requests.ListPending(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	return requests, nil
}

// Approve переводит заявку pending -> approved и создаёт engagement.
// Если заявка уже обработана, возвращает errdefs.ErrAlreadyProcessed.
func (r *EngagementRegistry) Approve(ctx context.Context, id uuid.UUID, actor model.Actor, notes string) (*model.Engagement, error) {
	request, err := r.requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if err := canDecide(actor, request); err != nil {
		return nil, err
	}
	if !request.IsPending() {
		return nil, fmt.Errorf("request is %s: %w", request.Status, errdefs.ErrAlreadyProcessed)
	}

	_, err = r.requests.MarkProcessed(ctx, id, model.RequestDecision{
		Status:      model.RequestStatusApproved,
		ProcessedBy: actor.UserID,
		ProcessedAt: r.now().UTC(),
		AdminNotes:  notes,
	})
	if err != nil {
		return nil, fmt.Errorf("approve request: %w", err)
	}

	r.logger.Info("Engagement request approved",
		zap.String("request_id", id.String()),
		zap.String("processed_by", actor.UserID),
	)

	return r.EnsureEngagement(ctx, id)
}

// EnsureEngagement возвращает engagement одобренной заявки, создавая его при необходимости.
// Повторные вызовы возвращают тот же engagement.
func (r *EngagementRegistry) EnsureEngagement(ctx context.Context, requestID uuid.UUID) (*model.Engagement, error) {
	request, err := r.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if !request.IsApproved() {
		return nil, errdefs.Precondition("request %s is %s, engagement requires an approved request", request.ID, request.Status)
	}

	if request.EngagementID != nil {
		return r.GetEngagement(ctx, *request.EngagementID)
	}

	engagement, err := r.engagements.GetByRequestID(ctx, requestID)
	if err == nil {
		return engagement, r.link(ctx, request, engagement)
	}
	if !errors.Is(err, errdefs.ErrNotFound) {
		return nil, fmt.Errorf("get engagement by request: %w", err)
	}

	engagement, err = r.engagements.GetActiveByPair(ctx, request.StudentID, request.TeacherID)
	if err == nil {
		return engagement, r.link(ctx, request, engagement)
	}
	if !errors.Is(err, errdefs.ErrNotFound) {
		return nil, fmt.Errorf("get active engagement: %w", err)
	}

	start := r.now().UTC()
	if request.ProcessedAt != nil {
		start = request.ProcessedAt.UTC()
	}
	terms, ok := request.Plan.Terms()
	if !ok {
		return nil, errdefs.Precondition("request %s has unknown plan %q", request.ID, request.Plan)
	}

	engagement = &model.Engagement{
		ID:               uuid.New(),
		RequestID:        request.ID,
		StudentID:        request.StudentID,
		TeacherID:        request.TeacherID,
		Plan:             request.Plan,
		Status:           model.EngagementStatusActive,
		StartDate:        start,
		NextBillingDate:  start,
		MonthlyAmount:    terms.MonthlyAmount,
		SessionsPerMonth: terms.SessionsPerMonth,
		CreatedAt:        r.now().UTC(),
	}
	engagement.UpdatedAt = engagement.CreatedAt

	err = r.engagements.Create(ctx, engagement)
	if errors.Is(err, errdefs.ErrAlreadyExists) {
		engagement, err = r.engagements.GetActiveByPair(ctx, request.StudentID, request.TeacherID)
		if err != nil {
			return nil, fmt.Errorf("read concurrent engagement: %w", err)
		}
		return engagement, r.link(ctx, request, engagement)
	}
	if err != nil {
		return nil, fmt.Errorf("create engagement: %w", err)
	}

	r.logger.Info("Engagement created",
		zap.String("engagement_id", engagement.ID.String()),
		zap.String("request_id", request.ID.String()),
		zap.Time("next_billing_date", engagement.NextBillingDate),
	)

	return engagement, r.link(ctx, request, engagement)
}

// Reject переводит заявку pending -> rejected. Причина обязательна.
func (r *EngagementRegistry) Reject(ctx context.Context, id uuid.UUID, actor model.Actor, reason, notes string) (*model.EngagementRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errdefs.Invalid("rejection reason is required")
	}

	request, err := r.requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if err := canDecide(actor, request); err != nil {
		return nil, err
	}
	if !request.IsPending() {
		return nil, fmt.Errorf("request is %s: %w", request.Status, errdefs.ErrAlreadyProcessed)
	}

	request, err = r.requests.MarkProcessed(ctx, id, model.RequestDecision{
		Status:          model.RequestStatusRejected,
		ProcessedBy:     actor.UserID,
		ProcessedAt:     r.now().UTC(),
		RejectionReason: reason,
		AdminNotes:      notes,
	})
	if err != nil {
		return nil, fmt.Errorf("reject request: %w", err)
	}

	r.logger.Info("Engagement request rejected",
		zap.String("request_id", id.String()),
		zap.String("processed_by", actor.UserID),
	)

	return request, nil
}

// CancelRequest отменяет заявку и её активный engagement.
// Повторный вызов доводит отмену engagement до конца и выставляет AlreadyCancelled.
func (r *EngagementRegistry) CancelRequest(ctx context.Context, id uuid.UUID, actor model.Actor) (*Cancellation, error) {
	request, err := r.requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if !actor.IsAdmin() && actor.UserID != request.StudentID {
		return nil, errdefs.Denied("only the student or an administrator can cancel this request")
	}

	result := &Cancellation{Request: request}

	switch {
	case request.IsCancelled():
		result.AlreadyCancelled = true
	case request.Cancellable():
		request, err = r.requests.MarkCancelled(ctx, id, actor.UserID, r.now().UTC())
		if errors.Is(err, errdefs.ErrAlreadyProcessed) {
			request, err = r.requests.GetByID(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("get request: %w", err)
			}
			if !request.IsCancelled() {
				return nil, fmt.Errorf("request is %s: %w", request.Status, errdefs.ErrAlreadyProcessed)
			}
			result.AlreadyCancelled = true
		} else if err != nil {
			return nil, fmt.Errorf("cancel request: %w", err)
		}
		result.Request = request
	default:
		return nil, errdefs.Precondition("request is %s and cannot be cancelled", request.Status)
	}

	engagement, err := r.engagementOf(ctx, request)
	if err != nil {
		return nil, err
	}
	if engagement == nil {
		return result, nil
	}

	if engagement.Status != model.EngagementStatusCancelled {
		updated, err := r.engagements.UpdateStatus(ctx, engagement.ID, engagement.Status, model.EngagementStatusCancelled, r.now().UTC())
		switch {
		case err == nil:
			engagement = updated
			result.EngagementCancelled = true
		case errors.Is(err, errdefs.ErrAlreadyProcessed):
			// статус сменили параллельно, перечитываем
			if engagement, err = r.engagements.GetByID(ctx, engagement.ID); err != nil {
				return nil, fmt.Errorf("get engagement: %w", err)
			}
		default:
			return nil, fmt.Errorf("cancel engagement: %w", err)
		}
	}
	result.Engagement = engagement

	r.logger.Info("Engagement request cancelled",
		zap.String("request_id", id.String()),
		zap.String("cancelled_by", actor.UserID),
		zap.String("engagement_id", engagement.ID.String()),
		zap.Bool("already_cancelled", result.AlreadyCancelled),
	)

	return result, nil
}

// CancelEngagement отменяет engagement вместе с заявкой, из которой он создан
func (r *EngagementRegistry) CancelEngagement(ctx context.Context, engagementID uuid.UUID, actor model.Actor) (*Cancellation, error) {
	engagement, err := r.GetEngagement(ctx, engagementID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.UserID != engagement.StudentID {
		return nil, errdefs.Denied("only the student or an administrator can cancel this engagement")
	}
	return r.CancelRequest(ctx, engagement.RequestID, actor)
}

// SetEngagementStatus приостанавливает или возобновляет engagement. Только для администратора.
func (r *EngagementRegistry) SetEngagementStatus(
	ctx context.Context,
	engagementID uuid.UUID,
	actor model.Actor,
	status model.EngagementStatus,
) (*model.Engagement, error) {
	if !actor.IsAdmin() {
		return nil, errdefs.Denied("only an administrator can change engagement status")
	}

	var from model.EngagementStatus
	switch status {
	case model.EngagementStatusSuspended:
		from = model.EngagementStatusActive
	case model.EngagementStatusActive:
		from = model.EngagementStatusSuspended
	default:
		return nil, errdefs.Invalid("status must be active or suspended")
	}

	engagement, err := r.engagements.UpdateStatus(ctx, engagementID, from, status, r.now().UTC())
	if errors.Is(err, errdefs.ErrAlreadyExists) {
		return nil, errdefs.Precondition("another active engagement exists for this pair")
	}
	if errors.Is(err, errdefs.ErrAlreadyProcessed) {
		return nil, errdefs.Precondition("engagement is not %s", from)
	}
	if err != nil {
		return nil, fmt.Errorf("update engagement status: %w", err)
	}

	r.logger.Info("Engagement status changed",
		zap.String("engagement_id", engagementID.String()),
		zap.String("status", string(status)),
		zap.String("changed_by", actor.UserID),
	)

	return engagement, nil
}

// GetEngagement получает engagement по ID
func (r *EngagementRegistry) GetEngagement(ctx context.Context, id uuid.UUID) (*model.Engagement, error) {
	engagement, err := r.engagements.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get engagement: %w", err)
	}
	return engagement, nil
}

// AdvanceBillingCycle закрывает период period (next_billing_date, за который списывает вызывающий)
// и сдвигает дату на месяц. Повтор с тем же period ничего не делает.
// advanced == false, если период ещё не наступил, уже закрыт или его закрыл параллельный вызов.
func (r *EngagementRegistry) AdvanceBillingCycle(
	ctx context.Context,
	id uuid.UUID,
	period time.Time,
) (engagement *model.Engagement, advanced bool, err error) {
	if period.IsZero() {
		return nil, false, errdefs.Invalid("billing period is required")
	}

	engagement, err = r.GetEngagement(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !engagement.IsActive() {
		return nil, false, errdefs.Precondition("engagement is %s", engagement.Status)
	}

	now := r.now().UTC()
	if !engagement.NextBillingDate.Equal(period) || !engagement.BillingDue(now) {
		return engagement, false, nil
	}

	next := engagement.FollowingBillingDate()

	ok, err := r.engagements.AdvanceBilling(ctx, id, period, next, now)
	if err != nil {
		return nil, false, fmt.Errorf("advance billing: %w", err)
	}
	if !ok {
		engagement, err = r.GetEngagement(ctx, id)
		return engagement, false, err
	}

	engagement.NextBillingDate = next
	engagement.UpdatedAt = now

	r.logger.Info("Billing cycle advanced",
		zap.String("engagement_id", id.String()),
		zap.Time("billed_for", period),
		zap.Time("next_billing_date", next),
		zap.Int64("amount", engagement.MonthlyAmount),
	)

	return engagement, true, nil
}

// ListDueEngagements получает активные engagement, у которых наступила дата списания
func (r *EngagementRegistry) ListDueEngagements(ctx context.Context, limit int) ([]*model.Engagement, error) {
	if limit <= 0 {
		limit = DefaultDueLimit
	}
	engagements, err := r.engagements.ListDue(ctx, r.now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list due engagements: %w", err)
	}
	return engagements, nil
}

func (r *EngagementRegistry) link(ctx context.Context, request *model.EngagementRequest, engagement *model.Engagement) error {
	if request.EngagementID != nil {
		return nil
	}
	if err := r.requests.SetEngagement(ctx, request.ID, engagement.ID); err != nil {
		return fmt.Errorf("link engagement to request: %w", err)
	}
	request.EngagementID = &engagement.ID
	return nil
}

func (r *EngagementRegistry) engagementOf(ctx context.Context, request *model.EngagementRequest) (*model.Engagement, error) {
	var (
		engagement *model.Engagement
		err        error
	)
	if request.EngagementID != nil {
		engagement, err = r.engagements.GetByID(ctx, *request.EngagementID)
	} else {
		engagement, err = r.engagements.GetByRequestID(ctx, request.ID)
	}
	if errors.Is(err, errdefs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get request engagement: %w", err)
	}
	return engagement, nil
}

func canDecide(actor model.Actor, request *model.EngagementRequest) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.Role == model.RoleTeacher && actor.UserID == request.TeacherID {
		return nil
	}
	return errdefs.Denied("only the teacher or an administrator can process this request")
}
