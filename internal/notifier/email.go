package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailConfig 邮件配置。
type EmailConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	From     string `yaml:"from" json:"from"`
	Subject  string `yaml:"subject" json:"subject"`
}

// EmailMessage 表示一封邮件。
type EmailMessage struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// EmailSender 抽象发送接口，便于测试替换。
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// SMTPClient 封装 SMTP 发送。
type SMTPClient struct {
	addr string
	auth smtp.Auth
}

func NewSMTPClient(cfg EmailConfig) *SMTPClient {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPClient{addr: addr, auth: auth}
}

func (c *SMTPClient) Send(ctx context.Context, msg EmailMessage) error {
	data := buildEmailData(msg)
	return smtp.SendMail(c.addr, c.auth, msg.From, msg.To, []byte(data))
}

// EmailNotifier 按水管工分组发送结算邮件。
type EmailNotifier struct {
	cfg    EmailConfig
	sender EmailSender
}

// NewEmailNotifier 创建 EmailNotifier。
func NewEmailNotifier(cfg EmailConfig, sender EmailSender) *EmailNotifier {
	if sender == nil {
		sender = NewSMTPClient(cfg)
	}
	if cfg.Subject == "" {
		cfg.Subject = "Forge earnings update"
	}
	return &EmailNotifier{cfg: cfg, sender: sender}
}

// Notify 将结算结果按收件人分组后逐一发送，空列表直接跳过。
func (n EmailNotifier) Notify(ctx context.Context, settled []Settlement) error {
	if len(settled) == 0 {
		return nil
	}

	byEmail := make(map[string][]Settlement)
	for _, s := range settled {
		if s.PlumberEmail == "" {
			continue
		}
		byEmail[s.PlumberEmail] = append(byEmail[s.PlumberEmail], s)
	}

	for email, items := range byEmail {
		msg := EmailMessage{
			From:    n.cfg.From,
			To:      []string{email},
			Subject: n.cfg.Subject,
			Body:    buildBody(items),
		}
		if err := n.sender.Send(ctx, msg); err != nil {
			return fmt.Errorf("send settlement mail to %s: %w", email, err)
		}
	}
	return nil
}

func buildBody(settled []Settlement) string {
	var b strings.Builder
	b.WriteString("Settled jobs:\n")
	for _, s := range settled {
		b.WriteString(fmt.Sprintf("- %s: %.2f (+%d XP)\n", s.JobTitle, s.Amount, s.XPAwarded))
	}
	return b.String()
}

func buildEmailData(msg EmailMessage) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s\r\n", msg.From))
	b.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ",")))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)
	return b.String()
}
