package model

import (
	"time"

	"gorm.io/datatypes"
)

// PlumberProfile 水管工档案，与 User 一对一
// - XP/Level: 经验值与等级，等级由 XP 推导后落库
// - ForgeScore: 0.0–5.0 综合评分
// - IsActive: 是否接单
type PlumberProfile struct {
	ID         string         `gorm:"primaryKey" json:"id"`
	UserID     string         `gorm:"uniqueIndex" json:"user_id"`
	XP         int            `json:"xp"`
	Level      int            `json:"level"`
	ForgeScore float64        `json:"forge_score"`
	IsActive   bool           `json:"is_active"`
	Preference *JobPreference `gorm:"foreignKey:PlumberProfileID" json:"preference,omitempty"`
	Badges     []PlumberBadge `gorm:"foreignKey:PlumberProfileID" json:"badges,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// LevelForXP 根据经验值推导等级，每 500 XP 升一级。
func LevelForXP(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/500 + 1
}

// JobPreference 水管工接单偏好，与档案一对一
// 周一到周日的起止时间以 "HH:MM" 字符串存储。
type JobPreference struct {
	ID                uint                        `gorm:"primaryKey" json:"id"`
	PlumberProfileID  string                      `gorm:"uniqueIndex" json:"plumber_profile_id"`
	PreferredJobTypes datatypes.JSONSlice[string] `json:"preferred_job_types"`
	MaxDistanceKm     int                         `json:"max_distance_km"`
	MondayStart       string                      `json:"monday_start,omitempty"`
	MondayEnd         string                      `json:"monday_end,omitempty"`
	TuesdayStart      string                      `json:"tuesday_start,omitempty"`
	TuesdayEnd        string                      `json:"tuesday_end,omitempty"`
	WednesdayStart    string                      `json:"wednesday_start,omitempty"`
	WednesdayEnd      string                      `json:"wednesday_end,omitempty"`
	ThursdayStart     string                      `json:"thursday_start,omitempty"`
	ThursdayEnd       string                      `json:"thursday_end,omitempty"`
	FridayStart       string                      `json:"friday_start,omitempty"`
	FridayEnd         string                      `json:"friday_end,omitempty"`
	SaturdayStart     string                      `json:"saturday_start,omitempty"`
	SaturdayEnd       string                      `json:"saturday_end,omitempty"`
	SundayStart       string                      `json:"sunday_start,omitempty"`
	SundayEnd         string                      `json:"sunday_end,omitempty"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
}

// Badge 徽章目录项，名称唯一，Criteria 存储解锁条件键值。
type Badge struct {
	ID          string            `gorm:"primaryKey" json:"id"`
	Name        string            `gorm:"uniqueIndex" json:"name"`
	Description string            `json:"description"`
	Icon        string            `json:"icon"`
	XPRequired  int               `json:"xp_required"`
	Criteria    datatypes.JSONMap `json:"criteria"`
	CreatedAt   time.Time         `json:"created_at"`
}

// PlumberBadge 档案与徽章的关联，记录解锁时间，每对 (档案, 徽章) 仅一条。
type PlumberBadge struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	PlumberProfileID string    `gorm:"index;uniqueIndex:idx_profile_badge" json:"plumber_profile_id"`
	BadgeID          string    `gorm:"uniqueIndex:idx_profile_badge" json:"badge_id"`
	Badge            Badge     `gorm:"foreignKey:BadgeID" json:"badge"`
	UnlockedAt       time.Time `json:"unlocked_at"`
}

// Earning 收入流水，按完成工单追加写入，从不修改
// JobID 唯一，保证结算幂等。
type Earning struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PlumberID string    `gorm:"index" json:"plumber_id"`
	JobID     string    `gorm:"uniqueIndex" json:"job_id"`
	Amount    float64   `json:"amount"`
	XPAwarded int       `json:"xp_awarded"`
	CreatedAt time.Time `json:"created_at"`
}
