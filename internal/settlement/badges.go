package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"forge-market/internal/model"
	"forge-market/internal/storage"
)

// DefaultBadges 返回内置徽章目录，名称唯一，可安全重复写入。
func DefaultBadges() []model.Badge {
	return []model.Badge{
		{
			ID:          uuid.NewString(),
			Name:        "First Job",
			Description: "Complete your first job",
			Icon:        "🔧",
			XPRequired:  0,
			Criteria:    datatypes.JSONMap{"jobsCompleted": 1},
		},
		{
			ID:          uuid.NewString(),
			Name:        "5-Star Streak",
			Description: "Receive 5 consecutive 5-star reviews",
			Icon:        "⭐",
			XPRequired:  500,
			Criteria:    datatypes.JSONMap{"consecutiveFiveStars": 5},
		},
		{
			ID:          uuid.NewString(),
			Name:        "Speed Demon",
			Description: "Complete 3 jobs in one day",
			Icon:        "⚡",
			XPRequired:  300,
			Criteria:    datatypes.JSONMap{"jobsInOneDay": 3},
		},
	}
}

// awardBadges 检查目录中尚未解锁的徽章，条件满足则解锁。
func (w *Worker) awardBadges(ctx context.Context, profileID, plumberID string, job model.Job) error {
	badges, err := w.store.ListBadges(ctx)
	if err != nil {
		return fmt.Errorf("award badges: %w", err)
	}
	if len(badges) == 0 {
		return nil
	}

	profile, err := w.store.GetProfileByUserID(ctx, plumberID)
	if err != nil {
		return fmt.Errorf("award badges: %w", err)
	}

	for _, badge := range badges {
		if profile.XP < badge.XPRequired {
			continue
		}
		met, err := w.criteriaMet(ctx, badge, plumberID, job)
		if err != nil {
			return fmt.Errorf("award badge %s: %w", badge.Name, err)
		}
		if !met {
			continue
		}
		if _, err := w.store.UnlockBadge(ctx, profileID, badge.ID, w.now()); err != nil {
			return err
		}
	}
	return nil
}

// criteriaMet 逐条评估徽章条件，未知条件一律视为不满足。
func (w *Worker) criteriaMet(ctx context.Context, badge model.Badge, plumberID string, job model.Job) (bool, error) {
	if len(badge.Criteria) == 0 {
		return false, nil
	}

	for key, raw := range badge.Criteria {
		need := criteriaInt(raw)
		if need <= 0 {
			return false, nil
		}

		switch key {
		case "jobsCompleted":
			total, err := w.store.CountJobs(ctx, storage.JobCountQuery{
				Status:       model.JobCompleted,
				AssignedToID: plumberID,
			})
			if err != nil {
				return false, err
			}
			if total < int64(need) {
				return false, nil
			}
		case "jobsInOneDay":
			day := w.now()
			if job.CompletedAt != nil {
				day = *job.CompletedAt
			}
			from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
			to := from.Add(24 * time.Hour)
			total, err := w.store.CountJobs(ctx, storage.JobCountQuery{
				Status:        model.JobCompleted,
				AssignedToID:  plumberID,
				CompletedFrom: &from,
				CompletedTo:   &to,
			})
			if err != nil {
				return false, err
			}
			if total < int64(need) {
				return false, nil
			}
		case "consecutiveFiveStars":
			reviews, err := w.store.ListRecentReviews(ctx, plumberID, need)
			if err != nil {
				return false, err
			}
			if len(reviews) < need {
				return false, nil
			}
			for _, r := range reviews {
				if r.Rating != 5 {
					return false, nil
				}
			}
		default:
			return false, nil
		}
	}
	return true, nil
}

// criteriaInt 兼容 JSON 数值的 float64 表示。
func criteriaInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}
