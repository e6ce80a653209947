package mailer

import (
	"gopkg.in/gomail.v2"

	"quince/internal/config"
)

// Mailer SMTP 邮件发送封装
type Mailer struct {
	cfg *config.SMTPConfig
}

// New 创建邮件发送器
func New(cfg *config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Send 发送一封纯文本邮件，htmlBody 非空时附加 HTML 版本
func (m *Mailer) Send(to, subject, plainBody, htmlBody string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", plainBody)
	if htmlBody != "" {
		msg.AddAlternative("text/html", htmlBody)
	}

	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	return dialer.DialAndSend(msg)
}

// Sender 发送接口，供 service 层注入（测试用 stub 替换）
type Sender interface {
	Send(to, subject, plainBody, htmlBody string) error
}
