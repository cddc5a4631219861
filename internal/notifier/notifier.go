package notifier

import (
	"context"
	"log"
	"os"
)

// Settlement 一条已结算工单的通知内容。
type Settlement struct {
	PlumberEmail string
	PlumberName  string
	JobTitle     string
	Amount       float64
	XPAwarded    int
}

// LogNotifier 仅打印结算结果，适合开发阶段使用。
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier 创建日志通知器，未提供 logger 时默认输出到标准输出。
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.New(os.Stdout, "[notify] ", log.LstdFlags)
	}
	return &LogNotifier{logger: logger}
}

// Notify 逐条打印结算信息。
func (n LogNotifier) Notify(ctx context.Context, settled []Settlement) error {
	if len(settled) == 0 {
		return nil
	}
	for _, s := range settled {
		n.logger.Printf("settled: %s earned %.2f (+%d XP) for %q", s.PlumberEmail, s.Amount, s.XPAwarded, s.JobTitle)
	}
	return nil
}
