package notify

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/nodewatch/storj-node-monitor/infrastructure/logging"
	"github.com/nodewatch/storj-node-monitor/internal/model"
)

// EmailConfig parameterizes the SMTP adapter. No SMTP client library
// appears anywhere in the retrieval pack, so this adapter is built directly
// on stdlib net/smtp and crypto/tls.
type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	UseTLS   bool // true: implicit TLS (SMTPS); false: plaintext/STARTTLS
	From     string
	To       []string
}

// EmailAdapter sends one email per alert via SMTP.
type EmailAdapter struct {
	cfg EmailConfig
	log *logging.Logger
}

// NewEmailAdapter creates an adapter, or nil if cfg is not usable (no host
// or no recipients) so callers can skip wiring it without a nil check at
// every call site.
func NewEmailAdapter(cfg EmailConfig, log *logging.Logger) *EmailAdapter {
	if cfg.Host == "" || len(cfg.To) == 0 {
		return nil
	}
	return &EmailAdapter{cfg: cfg, log: log}
}

// Send composes and delivers a plaintext alert email. Errors are logged,
// never returned — the interface contract is best-effort.
func (e *EmailAdapter) Send(alertType string, severity model.Severity, message string, details map[string]interface{}) {
	if err := e.send(alertType, severity, message); err != nil && e.log != nil {
		e.log.WithError(err).Warn("email notification failed")
	}
}

func (e *EmailAdapter) send(alertType string, severity model.Severity, message string) error {
	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	subject := fmt.Sprintf("[%s] storj-node-monitor alert: %s", strings.ToUpper(string(severity)), alertType)
	body := fmt.Sprintf("To: %s\r\nFrom: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		strings.Join(e.cfg.To, ", "), e.cfg.From, subject, message)

	var auth smtp.Auth
	if e.cfg.User != "" {
		auth = smtp.PlainAuth("", e.cfg.User, e.cfg.Password, e.cfg.Host)
	}

	if !e.cfg.UseTLS {
		return smtp.SendMail(addr, auth, e.cfg.From, e.cfg.To, []byte(body))
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: e.cfg.Host})
	if err != nil {
		return fmt.Errorf("dial smtps: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(e.cfg.From); err != nil {
		return err
	}
	for _, to := range e.cfg.To {
		if err := client.Rcpt(to); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
