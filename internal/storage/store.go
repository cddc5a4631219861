package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"forge-market/internal/model"
)

// Store 封装 SQLite 数据库访问，负责用户、工单、报价、档案与收入的读写。
type Store struct {
	db *gorm.DB
}

// OpenJobQuery 提供可接单工单的过滤条件。
type OpenJobQuery struct {
	JobTypes []string
	Limit    int
}

// JobCountQuery 描述工单计数条件。
type JobCountQuery struct {
	Status        model.JobStatus
	AssignedToID  string
	Unassigned    bool
	CompletedFrom *time.Time
	CompletedTo   *time.Time
}

// NewStore 创建 Store 并自动迁移数据表。
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.AutoMigrate(
		&model.User{},
		&model.PlumberProfile{},
		&model.JobPreference{},
		&model.Badge{},
		&model.PlumberBadge{},
		&model.Job{},
		&model.Quote{},
		&model.Photo{},
		&model.Review{},
		&model.Earning{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate models: %w", err)
	}

	return &Store{db: db}, nil
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// Transaction 在单个事务中执行 fn，供读-检-写序列保持原子。
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// CreateUser 新增用户。
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByEmail 按邮箱获取用户，不存在返回 sql.ErrNoRows。
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &user, nil
}

// GetUser 按 ID 获取用户，不存在返回 sql.ErrNoRows。
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// CreateProfile 新增水管工档案。
func (s *Store) CreateProfile(ctx context.Context, profile *model.PlumberProfile) error {
	if err := s.db.WithContext(ctx).Create(profile).Error; err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// GetProfileByUserID 按用户 ID 获取档案及偏好，不存在返回 sql.ErrNoRows。
func (s *Store) GetProfileByUserID(ctx context.Context, userID string) (*model.PlumberProfile, error) {
	var profile model.PlumberProfile
	if err := s.db.WithContext(ctx).
		Preload("Preference").
		First(&profile, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &profile, nil
}

// SetAvailability 更新档案可用状态并返回更新后的档案。
func (s *Store) SetAvailability(ctx context.Context, userID string, isActive bool) (*model.PlumberProfile, error) {
	tx := s.db.WithContext(ctx).Model(&model.PlumberProfile{}).
		Where("user_id = ?", userID).
		Update("is_active", isActive)
	if tx.Error != nil {
		return nil, fmt.Errorf("set availability: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return nil, sql.ErrNoRows
	}
	return s.GetProfileByUserID(ctx, userID)
}

// SaveProgress 落库档案的经验值与等级。
func (s *Store) SaveProgress(ctx context.Context, profileID string, xp, level int) error {
	tx := s.db.WithContext(ctx).Model(&model.PlumberProfile{}).
		Where("id = ?", profileID).
		Updates(map[string]any{"xp": xp, "level": level})
	if tx.Error != nil {
		return fmt.Errorf("save progress: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpsertPreference 写入接单偏好，已有记录则整体覆盖。
func (s *Store) UpsertPreference(ctx context.Context, pref *model.JobPreference) error {
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "plumber_profile_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"preferred_job_types",
			"max_distance_km",
			"monday_start", "monday_end",
			"tuesday_start", "tuesday_end",
			"wednesday_start", "wednesday_end",
			"thursday_start", "thursday_end",
			"friday_start", "friday_end",
			"saturday_start", "saturday_end",
			"sunday_start", "sunday_end",
			"updated_at",
		}),
	}).Create(pref)
	if tx.Error != nil {
		return fmt.Errorf("upsert preference: %w", tx.Error)
	}
	return nil
}

// GetPreference 按档案 ID 获取偏好，不存在返回 sql.ErrNoRows。
func (s *Store) GetPreference(ctx context.Context, profileID string) (*model.JobPreference, error) {
	var pref model.JobPreference
	if err := s.db.WithContext(ctx).First(&pref, "plumber_profile_id = ?", profileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get preference: %w", err)
	}
	return &pref, nil
}

// CreateJob 新增工单。
func (s *Store) CreateJob(ctx context.Context, job *model.Job) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetJob 按 ID 获取工单，不存在返回 sql.ErrNoRows。
func (s *Store) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var job model.Job
	if err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// GetJobDetail 获取工单并带上创建者与接单人摘要。
func (s *Store) GetJobDetail(ctx context.Context, id string) (*model.Job, error) {
	var job model.Job
	if err := s.db.WithContext(ctx).
		Preload("CreatedBy").
		Preload("AssignedTo").
		First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get job detail: %w", err)
	}
	return &job, nil
}

// urgencyRank 将紧急程度映射为可排序的数值。
const urgencyRank = "CASE urgency WHEN 'EMERGENCY' THEN 4 WHEN 'HIGH' THEN 3 WHEN 'MEDIUM' THEN 2 ELSE 1 END"

// ListOpenJobs 返回待接单工单（REQUESTED 且未指派），紧急优先、新单在前。
func (s *Store) ListOpenJobs(ctx context.Context, opts OpenJobQuery) ([]model.Job, error) {
	query := s.db.WithContext(ctx).Model(&model.Job{}).
		Where("status = ? AND assigned_to_id IS NULL", model.JobRequested).
		Preload("CreatedBy").
		Preload("Photos").
		Preload("Quotes").
		Order(urgencyRank + " DESC").
		Order("created_at DESC")
	if len(opts.JobTypes) > 0 {
		query = query.Where("job_type IN ?", opts.JobTypes)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	var jobs []model.Job
	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list open jobs: %w", err)
	}
	return jobs, nil
}

// UpdateJobFields 更新工单的指定列。
func (s *Store) UpdateJobFields(ctx context.Context, id string, values map[string]any) error {
	tx := s.db.WithContext(ctx).Model(&model.Job{}).Where("id = ?", id).Updates(values)
	if tx.Error != nil {
		return fmt.Errorf("update job: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountJobs 按条件统计工单数量。
func (s *Store) CountJobs(ctx context.Context, q JobCountQuery) (int64, error) {
	query := s.db.WithContext(ctx).Model(&model.Job{})
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if q.AssignedToID != "" {
		query = query.Where("assigned_to_id = ?", q.AssignedToID)
	}
	if q.Unassigned {
		query = query.Where("assigned_to_id IS NULL")
	}
	if q.CompletedFrom != nil {
		query = query.Where("completed_at >= ?", *q.CompletedFrom)
	}
	if q.CompletedTo != nil {
		query = query.Where("completed_at < ?", *q.CompletedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return total, nil
}

// CreateQuote 新增报价。
func (s *Store) CreateQuote(ctx context.Context, quote *model.Quote) error {
	if err := s.db.WithContext(ctx).Create(quote).Error; err != nil {
		return fmt.Errorf("create quote: %w", err)
	}
	return nil
}

// QuoteExists 判断该水管工是否已对工单报价。
func (s *Store) QuoteExists(ctx context.Context, jobID, plumberID string) (bool, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&model.Quote{}).
		Where("job_id = ? AND plumber_id = ?", jobID, plumberID).
		Count(&total).Error; err != nil {
		return false, fmt.Errorf("check quote: %w", err)
	}
	return total > 0, nil
}

// GetAcceptedQuote 返回工单已接受的报价，不存在返回 sql.ErrNoRows。
func (s *Store) GetAcceptedQuote(ctx context.Context, jobID string) (*model.Quote, error) {
	var quote model.Quote
	if err := s.db.WithContext(ctx).
		Where("job_id = ? AND status = ?", jobID, model.QuoteAccepted).
		Order("updated_at DESC").
		First(&quote).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get accepted quote: %w", err)
	}
	return &quote, nil
}

// CreatePhoto 新增工单照片。
func (s *Store) CreatePhoto(ctx context.Context, photo *model.Photo) error {
	if err := s.db.WithContext(ctx).Create(photo).Error; err != nil {
		return fmt.Errorf("create photo: %w", err)
	}
	return nil
}

// CreateReview 新增评价。
func (s *Store) CreateReview(ctx context.Context, review *model.Review) error {
	if err := s.db.WithContext(ctx).Create(review).Error; err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

// ReviewExists 判断同一作者是否已评价该工单。
func (s *Store) ReviewExists(ctx context.Context, jobID, authorID string) (bool, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&model.Review{}).
		Where("job_id = ? AND author_id = ?", jobID, authorID).
		Count(&total).Error; err != nil {
		return false, fmt.Errorf("check review: %w", err)
	}
	return total > 0, nil
}

// ListRecentReviews 返回某水管工最近的评价，按时间倒序。
func (s *Store) ListRecentReviews(ctx context.Context, targetID string, limit int) ([]model.Review, error) {
	if limit <= 0 {
		limit = 10
	}
	var reviews []model.Review
	if err := s.db.WithContext(ctx).
		Where("target_id = ?", targetID).
		Order("created_at DESC").
		Limit(limit).
		Find(&reviews).Error; err != nil {
		return nil, fmt.Errorf("list recent reviews: %w", err)
	}
	return reviews, nil
}
