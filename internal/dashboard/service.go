package dashboard

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gorm.io/datatypes"

	"forge-market/internal/apperr"
	"forge-market/internal/model"
	"forge-market/internal/storage"
)

// ProfileSummary 仪表盘中的档案摘要。
type ProfileSummary struct {
	XP         int     `json:"xp"`
	Level      int     `json:"level"`
	ForgeScore float64 `json:"forge_score"`
	IsActive   bool    `json:"is_active"`
}

// EarningsSummary 四个时间窗口的收入汇总。
type EarningsSummary struct {
	Today float64 `json:"today"`
	Week  float64 `json:"week"`
	Month float64 `json:"month"`
	Total float64 `json:"total"`
}

// JobCounts 工单计数：可接单为全局数，进行中/已完成按本人统计。
type JobCounts struct {
	Available  int64 `json:"available"`
	InProgress int64 `json:"in_progress"`
	Completed  int64 `json:"completed"`
}

// BadgeSummary 已解锁徽章的展示信息。
type BadgeSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	UnlockedAt  time.Time `json:"unlocked_at"`
}

// Snapshot 仪表盘快照，只读投影，无副作用。
type Snapshot struct {
	Profile  ProfileSummary  `json:"profile"`
	Earnings EarningsSummary `json:"earnings"`
	Jobs     JobCounts       `json:"jobs"`
	Badges   []BadgeSummary  `json:"badges"`
}

// PreferencesInput 接单偏好请求，缺省职种为空、半径 50 公里。
type PreferencesInput struct {
	PreferredJobTypes []string `json:"preferred_job_types"`
	MaxDistanceKm     int      `json:"max_distance_km"`
	MondayStart       string   `json:"monday_start"`
	MondayEnd         string   `json:"monday_end"`
	TuesdayStart      string   `json:"tuesday_start"`
	TuesdayEnd        string   `json:"tuesday_end"`
	WednesdayStart    string   `json:"wednesday_start"`
	WednesdayEnd      string   `json:"wednesday_end"`
	ThursdayStart     string   `json:"thursday_start"`
	ThursdayEnd       string   `json:"thursday_end"`
	FridayStart       string   `json:"friday_start"`
	FridayEnd         string   `json:"friday_end"`
	SaturdayStart     string   `json:"saturday_start"`
	SaturdayEnd       string   `json:"saturday_end"`
	SundayStart       string   `json:"sunday_start"`
	SundayEnd         string   `json:"sunday_end"`
}

// Service 聚合水管工仪表盘数据并维护接单偏好。
type Service struct {
	store *storage.Store
	now   func() time.Time
}

// NewService 创建仪表盘服务。
func NewService(store *storage.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// startOfToday 返回本地时区当天零点。
func startOfToday(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// startOfWeek 返回本周起点，周日为第 0 天。
func startOfWeek(now time.Time) time.Time {
	today := startOfToday(now)
	return today.AddDate(0, 0, -int(today.Weekday()))
}

// startOfMonth 返回当月一号零点。
func startOfMonth(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// GetSnapshot 计算指定水管工的仪表盘快照。
func (s *Service) GetSnapshot(ctx context.Context, userID string) (Snapshot, error) {
	profile, err := s.store.GetProfileByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, apperr.NotFound("plumber profile not found")
		}
		return Snapshot{}, apperr.Internal(err)
	}

	now := s.now()
	day := startOfToday(now)
	week := startOfWeek(now)
	month := startOfMonth(now)

	var earnings EarningsSummary
	for _, window := range []struct {
		since *time.Time
		dst   *float64
	}{
		{&day, &earnings.Today},
		{&week, &earnings.Week},
		{&month, &earnings.Month},
		{nil, &earnings.Total},
	} {
		sum, err := s.store.SumEarnings(ctx, userID, window.since)
		if err != nil {
			return Snapshot{}, apperr.Internal(err)
		}
		*window.dst = sum
	}

	available, err := s.store.CountJobs(ctx, storage.JobCountQuery{Status: model.JobRequested, Unassigned: true})
	if err != nil {
		return Snapshot{}, apperr.Internal(err)
	}
	inProgress, err := s.store.CountJobs(ctx, storage.JobCountQuery{Status: model.JobInProgress, AssignedToID: userID})
	if err != nil {
		return Snapshot{}, apperr.Internal(err)
	}
	completed, err := s.store.CountJobs(ctx, storage.JobCountQuery{Status: model.JobCompleted, AssignedToID: userID})
	if err != nil {
		return Snapshot{}, apperr.Internal(err)
	}

	links, err := s.store.ListProfileBadges(ctx, profile.ID)
	if err != nil {
		return Snapshot{}, apperr.Internal(err)
	}
	badges := make([]BadgeSummary, 0, len(links))
	for _, link := range links {
		badges = append(badges, BadgeSummary{
			ID:          link.Badge.ID,
			Name:        link.Badge.Name,
			Description: link.Badge.Description,
			Icon:        link.Badge.Icon,
			UnlockedAt:  link.UnlockedAt,
		})
	}

	return Snapshot{
		Profile: ProfileSummary{
			XP:         profile.XP,
			Level:      profile.Level,
			ForgeScore: profile.ForgeScore,
			IsActive:   profile.IsActive,
		},
		Earnings: earnings,
		Jobs: JobCounts{
			Available:  available,
			InProgress: inProgress,
			Completed:  completed,
		},
		Badges: badges,
	}, nil
}

// JobFeed 返回匹配水管工偏好职种的待接单工单。
func (s *Service) JobFeed(ctx context.Context, userID string) ([]model.Job, error) {
	profile, err := s.store.GetProfileByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("plumber profile not found")
		}
		return nil, apperr.Internal(err)
	}

	var types []string
	if profile.Preference != nil {
		types = profile.Preference.PreferredJobTypes
	}
	jobs, err := s.store.ListOpenJobs(ctx, storage.OpenJobQuery{JobTypes: types})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return jobs, nil
}

// SetAvailability 更新是否接单并返回最新值。
func (s *Service) SetAvailability(ctx context.Context, userID string, isActive bool) (bool, error) {
	profile, err := s.store.SetAvailability(ctx, userID, isActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, apperr.NotFound("plumber profile not found")
		}
		return false, apperr.Internal(err)
	}
	return profile.IsActive, nil
}

// SavePreferences 覆盖写入接单偏好，档案不存在则报 NotFound。
func (s *Service) SavePreferences(ctx context.Context, userID string, in PreferencesInput) (*model.JobPreference, error) {
	profile, err := s.store.GetProfileByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("plumber profile not found")
		}
		return nil, apperr.Internal(err)
	}

	types := in.PreferredJobTypes
	if types == nil {
		types = []string{}
	}
	maxDistance := in.MaxDistanceKm
	if maxDistance <= 0 {
		maxDistance = 50
	}

	pref := &model.JobPreference{
		PlumberProfileID:  profile.ID,
		PreferredJobTypes: datatypes.NewJSONSlice(types),
		MaxDistanceKm:     maxDistance,
		MondayStart:       in.MondayStart,
		MondayEnd:         in.MondayEnd,
		TuesdayStart:      in.TuesdayStart,
		TuesdayEnd:        in.TuesdayEnd,
		WednesdayStart:    in.WednesdayStart,
		WednesdayEnd:      in.WednesdayEnd,
		ThursdayStart:     in.ThursdayStart,
		ThursdayEnd:       in.ThursdayEnd,
		FridayStart:       in.FridayStart,
		FridayEnd:         in.FridayEnd,
		SaturdayStart:     in.SaturdayStart,
		SaturdayEnd:       in.SaturdayEnd,
		SundayStart:       in.SundayStart,
		SundayEnd:         in.SundayEnd,
	}
	if err := s.store.UpsertPreference(ctx, pref); err != nil {
		return nil, apperr.Internal(err)
	}

	saved, err := s.store.GetPreference(ctx, profile.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return saved, nil
}
