package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"forge-market/internal/model"
)

// EnsureBadges 写入徽章目录，按名称去重，已存在则跳过。
func (s *Store) EnsureBadges(ctx context.Context, badges []model.Badge) error {
	if len(badges) == 0 {
		return nil
	}
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&badges)
	if tx.Error != nil {
		return fmt.Errorf("ensure badges: %w", tx.Error)
	}
	return nil
}

// ListBadges 返回全部徽章目录。
func (s *Store) ListBadges(ctx context.Context) ([]model.Badge, error) {
	var badges []model.Badge
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&badges).Error; err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	return badges, nil
}

// ListProfileBadges 返回档案已解锁的徽章及其目录信息。
func (s *Store) ListProfileBadges(ctx context.Context, profileID string) ([]model.PlumberBadge, error) {
	var links []model.PlumberBadge
	if err := s.db.WithContext(ctx).
		Preload("Badge").
		Where("plumber_profile_id = ?", profileID).
		Order("unlocked_at ASC").
		Find(&links).Error; err != nil {
		return nil, fmt.Errorf("list profile badges: %w", err)
	}
	return links, nil
}

// UnlockBadge 为档案解锁徽章，重复解锁不报错，返回是否新建。
func (s *Store) UnlockBadge(ctx context.Context, profileID, badgeID string, at time.Time) (bool, error) {
	link := model.PlumberBadge{
		PlumberProfileID: profileID,
		BadgeID:          badgeID,
		UnlockedAt:       at,
	}
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "plumber_profile_id"}, {Name: "badge_id"}},
		DoNothing: true,
	}).Create(&link)
	if tx.Error != nil {
		return false, fmt.Errorf("unlock badge: %w", tx.Error)
	}
	return tx.RowsAffected > 0, nil
}

// CreateEarning 追加收入流水。
func (s *Store) CreateEarning(ctx context.Context, earning *model.Earning) error {
	if err := s.db.WithContext(ctx).Create(earning).Error; err != nil {
		return fmt.Errorf("create earning: %w", err)
	}
	return nil
}

// SumEarnings 汇总某水管工自 since 起的收入，since 为空则统计全部，无记录返回 0。
func (s *Store) SumEarnings(ctx context.Context, plumberID string, since *time.Time) (float64, error) {
	query := s.db.WithContext(ctx).Model(&model.Earning{}).Where("plumber_id = ?", plumberID)
	if since != nil {
		query = query.Where("created_at >= ?", *since)
	}

	var total *float64
	if err := query.Select("SUM(amount)").Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("sum earnings: %w", err)
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// ListUnsettledJobs 返回已完成、已指派但尚未生成收入流水的工单。
func (s *Store) ListUnsettledJobs(ctx context.Context, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []model.Job
	if err := s.db.WithContext(ctx).
		Where("status = ? AND assigned_to_id IS NOT NULL", model.JobCompleted).
		Where("id NOT IN (?)", s.db.Model(&model.Earning{}).Select("job_id")).
		Order("completed_at ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list unsettled jobs: %w", err)
	}
	return jobs, nil
}
