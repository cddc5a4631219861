package model

import "time"

// JobStatus 工单生命周期状态。
type JobStatus string

const (
	JobRequested  JobStatus = "REQUESTED"
	JobQuoted     JobStatus = "QUOTED"
	JobScheduled  JobStatus = "SCHEDULED"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobCompleted  JobStatus = "COMPLETED"
	JobCancelled  JobStatus = "CANCELLED"
)

// ValidJobStatus 判断状态值是否可识别。
func ValidJobStatus(s JobStatus) bool {
	switch s {
	case JobRequested, JobQuoted, JobScheduled, JobInProgress, JobCompleted, JobCancelled:
		return true
	}
	return false
}

// Terminal 判断状态是否为终态。
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobCancelled
}

// JobUrgency 工单紧急程度。
type JobUrgency string

const (
	UrgencyLow       JobUrgency = "LOW"
	UrgencyMedium    JobUrgency = "MEDIUM"
	UrgencyHigh      JobUrgency = "HIGH"
	UrgencyEmergency JobUrgency = "EMERGENCY"
)

// ValidUrgency 判断紧急程度是否合法。
func ValidUrgency(u JobUrgency) bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyEmergency:
		return true
	}
	return false
}

// Job 表示一个维修工单
// - Status: 见 JobStatus，初始为 REQUESTED，CANCELLED 不是删除
// - AssignedToID: 仅在水管工将状态推进到 IN_PROGRESS 时写入
// - RequestedAt/ScheduledAt/CompletedAt: 生命周期时间戳
type Job struct {
	ID           string     `gorm:"primaryKey" json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	JobType      string     `json:"job_type"`
	Urgency      JobUrgency `json:"urgency"`
	Status       JobStatus  `gorm:"index" json:"status"`
	Address      string     `json:"address"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	CreatedByID  string     `gorm:"index" json:"created_by_id"`
	CreatedBy    *User      `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	AssignedToID *string    `gorm:"index" json:"assigned_to_id"`
	AssignedTo   *User      `gorm:"foreignKey:AssignedToID" json:"assigned_to,omitempty"`
	RequestedAt  time.Time  `json:"requested_at"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Photos       []Photo    `gorm:"foreignKey:JobID" json:"photos,omitempty"`
	Quotes       []Quote    `gorm:"foreignKey:JobID" json:"quotes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// QuoteStatus 报价状态。
type QuoteStatus string

const (
	QuotePending  QuoteStatus = "PENDING"
	QuoteAccepted QuoteStatus = "ACCEPTED"
	QuoteRejected QuoteStatus = "REJECTED"
)

// QuoteTier 报价档位。
type QuoteTier string

const (
	TierGood   QuoteTier = "GOOD"
	TierBetter QuoteTier = "BETTER"
	TierBest   QuoteTier = "BEST"
)

// Quote 表示一份三档报价，隶属于单个工单
// 同一工单允许多位水管工各自报价，但同一水管工只能报价一次。
type Quote struct {
	ID                string      `gorm:"primaryKey" json:"id"`
	JobID             string      `gorm:"index;uniqueIndex:idx_quote_job_plumber" json:"job_id"`
	PlumberID         string      `gorm:"uniqueIndex:idx_quote_job_plumber" json:"plumber_id"`
	GoodTitle         string      `json:"good_title"`
	GoodDescription   string      `json:"good_description"`
	GoodPrice         float64     `json:"good_price"`
	BetterTitle       string      `json:"better_title"`
	BetterDescription string      `json:"better_description"`
	BetterPrice       float64     `json:"better_price"`
	BestTitle         string      `json:"best_title"`
	BestDescription   string      `json:"best_description"`
	BestPrice         float64     `json:"best_price"`
	SelectedTier      *QuoteTier  `json:"selected_tier,omitempty"`
	Status            QuoteStatus `json:"status"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// TierPrice 返回指定档位的价格。
func (q Quote) TierPrice(t QuoteTier) float64 {
	switch t {
	case TierBetter:
		return q.BetterPrice
	case TierBest:
		return q.BestPrice
	default:
		return q.GoodPrice
	}
}

// Photo 表示工单照片，引用磁盘上已保存的文件。
type Photo struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	JobID        string    `gorm:"index" json:"job_id"`
	UploadedByID string    `json:"uploaded_by_id"`
	Filename     string    `json:"filename"`
	URL          string    `json:"url"`
	Caption      string    `json:"caption,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Review 表示业主对水管工的评价，同一 (工单, 作者) 至多一条。
type Review struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	JobID     string    `gorm:"index;uniqueIndex:idx_review_job_author" json:"job_id"`
	AuthorID  string    `gorm:"uniqueIndex:idx_review_job_author" json:"author_id"`
	TargetID  string    `gorm:"index" json:"target_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
