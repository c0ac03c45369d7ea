package notify

import (
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"grass_auto/internal/config"
)

// Email sends the run summary over SMTP.
type Email struct {
	cfg config.NotifyConfig
}

func NewEmail(cfg config.NotifyConfig) *Email {
	return &Email{cfg: cfg}
}

func (n *Email) RunFinished(s Summary) error {
	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.From)
	m.SetHeader("To", n.cfg.To)
	m.SetHeader("Subject", fmt.Sprintf("grass_auto %s run finished: %d/%d ok", s.Mode, s.Succeeded, s.Accounts))
	m.SetBody("text/plain", fmt.Sprintf(
		"mode: %s\naccounts: %d\nsucceeded: %d\nfailed: %d\ntotal points: %.2f\nelapsed: %s\n",
		s.Mode, s.Accounts, s.Succeeded, s.Failed, s.TotalPoints, s.Elapsed.Round(time.Second)))

	port := n.cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	d := gomail.NewDialer(n.cfg.SMTPHost, port, n.cfg.From, n.cfg.Password)
	return d.DialAndSend(m)
}
