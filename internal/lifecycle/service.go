package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"forge-market/internal/apperr"
	"forge-market/internal/auth"
	"forge-market/internal/model"
	"forge-market/internal/storage"
)

// 状态机：REQUESTED → QUOTED → SCHEDULED → IN_PROGRESS → COMPLETED，
// 任一非终态可转 CANCELLED。
var transitions = map[model.JobStatus]model.JobStatus{
	model.JobRequested:  model.JobQuoted,
	model.JobQuoted:     model.JobScheduled,
	model.JobScheduled:  model.JobInProgress,
	model.JobInProgress: model.JobCompleted,
}

func canTransition(from, to model.JobStatus) bool {
	if to == model.JobCancelled {
		return !from.Terminal()
	}
	return transitions[from] == to
}

// CreateJobInput 建单请求。
type CreateJobInput struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	JobType     string           `json:"job_type"`
	Urgency     model.JobUrgency `json:"urgency"`
	Address     string           `json:"address"`
	Latitude    *float64         `json:"latitude"`
	Longitude   *float64         `json:"longitude"`
}

// QuoteInput 三档报价请求，九个字段全部必填。
type QuoteInput struct {
	GoodTitle         string  `json:"good_title"`
	GoodDescription   string  `json:"good_description"`
	GoodPrice         float64 `json:"good_price"`
	BetterTitle       string  `json:"better_title"`
	BetterDescription string  `json:"better_description"`
	BetterPrice       float64 `json:"better_price"`
	BestTitle         string  `json:"best_title"`
	BestDescription   string  `json:"best_description"`
	BestPrice         float64 `json:"best_price"`
}

// StatusInput 状态更新请求。
type StatusInput struct {
	Status      model.JobStatus `json:"status"`
	ScheduledAt *time.Time      `json:"scheduled_at"`
	CompletedAt *time.Time      `json:"completed_at"`
}

// PhotoInput 已落盘照片的元数据。
type PhotoInput struct {
	Filename     string
	URL          string
	Caption      string
	UploadedByID string
}

// ReviewInput 评价请求。
type ReviewInput struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// Service 实现工单生命周期引擎。
type Service struct {
	store *storage.Store
	now   func() time.Time
	newID func() string
}

// NewService 创建生命周期服务。
func NewService(store *storage.Store) *Service {
	return &Service{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// CreateJob 创建 REQUESTED 状态的新工单。
func (s *Service) CreateJob(ctx context.Context, in CreateJobInput, creatorID string) (*model.Job, error) {
	if strings.TrimSpace(in.Title) == "" ||
		strings.TrimSpace(in.Description) == "" ||
		strings.TrimSpace(in.JobType) == "" ||
		strings.TrimSpace(in.Address) == "" {
		return nil, apperr.Validation("missing required fields")
	}
	urgency := in.Urgency
	if urgency == "" {
		urgency = model.UrgencyMedium
	}
	if !model.ValidUrgency(urgency) {
		return nil, apperr.Validation("invalid urgency")
	}

	job := &model.Job{
		ID:          s.newID(),
		Title:       in.Title,
		Description: in.Description,
		JobType:     in.JobType,
		Urgency:     urgency,
		Status:      model.JobRequested,
		Address:     in.Address,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		CreatedByID: creatorID,
		RequestedAt: s.now(),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, apperr.Internal(err)
	}

	detail, err := s.store.GetJobDetail(ctx, job.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return detail, nil
}

// SubmitQuote 提交三档报价并将工单推进到 QUOTED。
// 读-检-写全程在一个事务里，避免并发报价击穿 REQUESTED 检查。
func (s *Service) SubmitQuote(ctx context.Context, jobID string, in QuoteInput, plumberID string) (*model.Quote, error) {
	if err := validateQuote(in); err != nil {
		return nil, err
	}

	quote := &model.Quote{
		ID:                s.newID(),
		JobID:             jobID,
		PlumberID:         plumberID,
		GoodTitle:         in.GoodTitle,
		GoodDescription:   in.GoodDescription,
		GoodPrice:         in.GoodPrice,
		BetterTitle:       in.BetterTitle,
		BetterDescription: in.BetterDescription,
		BetterPrice:       in.BetterPrice,
		BestTitle:         in.BestTitle,
		BestDescription:   in.BestDescription,
		BestPrice:         in.BestPrice,
		Status:            model.QuotePending,
	}

	err := s.store.Transaction(ctx, func(tx *storage.Store) error {
		job, err := tx.GetJob(ctx, jobID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("job not found")
			}
			return err
		}
		if job.Status != model.JobRequested {
			return apperr.InvalidState("job is not available for quoting")
		}

		exists, err := tx.QuoteExists(ctx, jobID, plumberID)
		if err != nil {
			return err
		}
		if exists {
			return apperr.Conflict("quote already submitted for this job")
		}

		if err := tx.CreateQuote(ctx, quote); err != nil {
			return err
		}
		return tx.UpdateJobFields(ctx, jobID, map[string]any{"status": model.JobQuoted})
	})
	if err != nil {
		return nil, wrap(err)
	}
	return quote, nil
}

func validateQuote(in QuoteInput) error {
	missing := strings.TrimSpace(in.GoodTitle) == "" ||
		strings.TrimSpace(in.GoodDescription) == "" ||
		in.GoodPrice <= 0 ||
		strings.TrimSpace(in.BetterTitle) == "" ||
		strings.TrimSpace(in.BetterDescription) == "" ||
		in.BetterPrice <= 0 ||
		strings.TrimSpace(in.BestTitle) == "" ||
		strings.TrimSpace(in.BestDescription) == "" ||
		in.BestPrice <= 0
	if missing {
		return apperr.Validation("missing required quote fields")
	}
	return nil
}

// UpdateStatus 更新工单状态，仅接单人或创建者可操作。
// 水管工把状态推进到 IN_PROGRESS 时自动指派给自己，这是唯一的指派路径。
func (s *Service) UpdateStatus(ctx context.Context, jobID string, in StatusInput, actor auth.Identity) (*model.Job, error) {
	if !model.ValidJobStatus(in.Status) {
		return nil, apperr.Validation("invalid status")
	}

	err := s.store.Transaction(ctx, func(tx *storage.Store) error {
		job, err := tx.GetJob(ctx, jobID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("job not found")
			}
			return err
		}

		assigned := job.AssignedToID != nil && *job.AssignedToID == actor.ID
		claiming := job.AssignedToID == nil && actor.Role == model.RolePlumber && in.Status == model.JobInProgress
		if !assigned && !claiming && job.CreatedByID != actor.ID {
			return apperr.Forbidden("not authorized to update this job")
		}

		if !canTransition(job.Status, in.Status) {
			return apperr.InvalidState(fmt.Sprintf("cannot transition from %s to %s", job.Status, in.Status))
		}

		values := map[string]any{"status": in.Status}
		if in.ScheduledAt != nil {
			values["scheduled_at"] = *in.ScheduledAt
		}
		if in.CompletedAt != nil {
			values["completed_at"] = *in.CompletedAt
		}
		if in.Status == model.JobCompleted && in.CompletedAt == nil {
			values["completed_at"] = s.now()
		}
		if in.Status == model.JobInProgress && actor.Role == model.RolePlumber {
			values["assigned_to_id"] = actor.ID
		}
		return tx.UpdateJobFields(ctx, jobID, values)
	})
	if err != nil {
		return nil, wrap(err)
	}

	detail, err := s.store.GetJobDetail(ctx, jobID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return detail, nil
}

// AttachPhoto 为工单登记一张已保存的照片，任意状态均可附加。
func (s *Service) AttachPhoto(ctx context.Context, jobID string, in PhotoInput) (*model.Photo, error) {
	if _, err := s.store.GetJob(ctx, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("job not found")
		}
		return nil, apperr.Internal(err)
	}

	photo := &model.Photo{
		ID:           s.newID(),
		JobID:        jobID,
		UploadedByID: in.UploadedByID,
		Filename:     in.Filename,
		URL:          in.URL,
		Caption:      in.Caption,
	}
	if err := s.store.CreatePhoto(ctx, photo); err != nil {
		return nil, apperr.Internal(err)
	}
	return photo, nil
}

// CreateReview 为已完成工单创建评价，目标为接单水管工，每个作者仅一条。
func (s *Service) CreateReview(ctx context.Context, jobID string, in ReviewInput, authorID string) (*model.Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, apperr.Validation("rating must be between 1 and 5")
	}

	var review *model.Review
	err := s.store.Transaction(ctx, func(tx *storage.Store) error {
		job, err := tx.GetJob(ctx, jobID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("job not found")
			}
			return err
		}
		if job.Status != model.JobCompleted {
			return apperr.InvalidState("job must be completed to leave a review")
		}
		if job.AssignedToID == nil {
			return apperr.InvalidState("no plumber assigned to this job")
		}

		exists, err := tx.ReviewExists(ctx, jobID, authorID)
		if err != nil {
			return err
		}
		if exists {
			return apperr.Conflict("review already exists for this job")
		}

		review = &model.Review{
			ID:       s.newID(),
			JobID:    jobID,
			AuthorID: authorID,
			TargetID: *job.AssignedToID,
			Rating:   in.Rating,
			Comment:  in.Comment,
		}
		return tx.CreateReview(ctx, review)
	})
	if err != nil {
		return nil, wrap(err)
	}
	return review, nil
}

// wrap 保留业务错误分类，其余一律归为内部错误。
func wrap(err error) error {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e
	}
	return apperr.Internal(err)
}
