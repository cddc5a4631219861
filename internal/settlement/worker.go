package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"forge-market/internal/model"
	"forge-market/internal/notifier"
	"forge-market/internal/storage"
)

// Config 用于结算调度配置。
type Config struct {
	Interval  string `yaml:"interval" json:"interval"`
	Timeout   string `yaml:"timeout" json:"timeout"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
	BaseXP    int    `yaml:"base_xp" json:"base_xp"`
}

// Notifier 用于发送结算通知。
type Notifier interface {
	Notify(ctx context.Context, settled []notifier.Settlement) error
}

// Worker 周期性扫描已完成工单，生成收入流水、发放经验并解锁徽章。
// 工单已完成且报价被接受、但还没有流水时才结算，JobID 唯一索引保证幂等。
type Worker struct {
	store     *storage.Store
	notif     Notifier
	interval  time.Duration
	timeout   time.Duration
	batchSize int
	baseXP    int
	running   atomic.Bool
	newTicker func(time.Duration) ticker
	now       func() time.Time
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewWorker 创建 Worker，解析配置的间隔与超时。
func NewWorker(store *storage.Store, notif Notifier, cfg Config) *Worker {
	interval := 5 * time.Minute
	if cfg.Interval != "" {
		if d, err := time.ParseDuration(cfg.Interval); err == nil && d > 0 {
			interval = d
		}
	}
	timeout := 30 * time.Second
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	baseXP := cfg.BaseXP
	if baseXP <= 0 {
		baseXP = 100
	}

	return &Worker{
		store:     store,
		notif:     notif,
		interval:  interval,
		timeout:   timeout,
		batchSize: batch,
		baseXP:    baseXP,
		newTicker: defaultTicker,
		now:       time.Now,
	}
}

// Start 启动结算循环，直到上下文取消。
func (w *Worker) Start(ctx context.Context) error {
	if w.store == nil {
		return fmt.Errorf("settlement worker missing store")
	}

	g, ctx := errgroup.WithContext(ctx)

	tick := w.newTicker(w.interval)
	ch := tick.C()

	g.Go(func() error {
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ch:
				if _, err := w.runOnce(ctx); err != nil {
					return err
				}
			drain:
				for {
					select {
					case <-ch:
						continue
					default:
						break drain
					}
				}
			}
		}
	})

	return g.Wait()
}

// RunOnce 对外暴露单次结算接口，便于手动触发。
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	return w.runOnce(ctx)
}

func (w *Worker) runOnce(ctx context.Context) (int, error) {
	if w.running.Swap(true) {
		return 0, nil
	}
	defer w.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	jobs, err := w.store.ListUnsettledJobs(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list unsettled jobs: %w", err)
	}

	settled := make([]notifier.Settlement, 0, len(jobs))
	for _, job := range jobs {
		record, ok, err := w.settleJob(ctx, job)
		if err != nil {
			return len(settled), err
		}
		if ok {
			settled = append(settled, record)
		}
	}

	if w.notif != nil && len(settled) > 0 {
		if err := w.notif.Notify(ctx, settled); err != nil {
			return len(settled), fmt.Errorf("notify: %w", err)
		}
	}
	return len(settled), nil
}

// settleJob 结算单个工单；没有被接受的报价时跳过，等待下一轮。
func (w *Worker) settleJob(ctx context.Context, job model.Job) (notifier.Settlement, bool, error) {
	quote, err := w.store.GetAcceptedQuote(ctx, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notifier.Settlement{}, false, nil
		}
		return notifier.Settlement{}, false, fmt.Errorf("accepted quote for job %s: %w", job.ID, err)
	}

	tier := model.TierGood
	if quote.SelectedTier != nil {
		tier = *quote.SelectedTier
	}
	amount := quote.TierPrice(tier)
	xp := w.xpFor(job.Urgency)

	plumberID := *job.AssignedToID
	createdAt := w.now()
	if job.CompletedAt != nil {
		createdAt = *job.CompletedAt
	}

	var profileID string
	err = w.store.Transaction(ctx, func(tx *storage.Store) error {
		earning := &model.Earning{
			PlumberID: plumberID,
			JobID:     job.ID,
			Amount:    amount,
			XPAwarded: xp,
			CreatedAt: createdAt,
		}
		if err := tx.CreateEarning(ctx, earning); err != nil {
			return err
		}

		profile, err := tx.GetProfileByUserID(ctx, plumberID)
		if err != nil {
			return err
		}
		profileID = profile.ID
		newXP := profile.XP + xp
		return tx.SaveProgress(ctx, profile.ID, newXP, model.LevelForXP(newXP))
	})
	if err != nil {
		return notifier.Settlement{}, false, fmt.Errorf("settle job %s: %w", job.ID, err)
	}

	if err := w.awardBadges(ctx, profileID, plumberID, job); err != nil {
		return notifier.Settlement{}, false, err
	}

	user, err := w.store.GetUser(ctx, plumberID)
	if err != nil {
		return notifier.Settlement{}, false, fmt.Errorf("settle job %s: %w", job.ID, err)
	}

	return notifier.Settlement{
		PlumberEmail: user.Email,
		PlumberName:  user.FirstName + " " + user.LastName,
		JobTitle:     job.Title,
		Amount:       amount,
		XPAwarded:    xp,
	}, true, nil
}

// xpFor 按紧急程度放大基础经验值。
func (w *Worker) xpFor(urgency model.JobUrgency) int {
	switch urgency {
	case model.UrgencyMedium:
		return w.baseXP * 3 / 2
	case model.UrgencyHigh:
		return w.baseXP * 2
	case model.UrgencyEmergency:
		return w.baseXP * 3
	default:
		return w.baseXP
	}
}

func defaultTicker(d time.Duration) ticker {
	t := time.NewTicker(d)
	return tickerWrapper{t}
}

type tickerWrapper struct {
	*time.Ticker
}

func (t tickerWrapper) C() <-chan time.Time { return t.Ticker.C }
func (t tickerWrapper) Stop()               { t.Ticker.Stop() }
