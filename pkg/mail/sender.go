package mail

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/diaspora-enterprise/website/pkg/config"
)

// Sender composes and delivers notification emails.
type Sender interface {
	Send(receivers []string, subject, body string) error
	GetHost() string
	GetPort() int
}

type sender struct {
	cfg           config.Mail
	auth          AuthStrategy
	senderAddress string
	senderName    string
	timeout       time.Duration
	log           *zap.SugaredLogger
}

// NewSender creates a mail sender. Each Send opens its own authenticated
// connection and closes it after submission; tokens is consulted when no
// static SMTP password is configured and may be nil when one is.
func NewSender(cfg config.Config, tokens TokenSource, log *zap.SugaredLogger) Sender {
	mailCfg := cfg.Mail

	senderAddr := mailCfg.SenderAddress
	if senderAddr == "" {
		senderAddr = "noreply@diasporaenterprise.com"
	}
	senderName := mailCfg.SenderName
	if senderName == "" {
		senderName = cfg.Site.Name
	}

	timeout := time.Duration(mailCfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	auth := NewAuthStrategy(mailCfg, tokens)
	mechanism := "none"
	if auth != nil {
		mechanism = auth.Mechanism()
	}
	log.Infow("Initializing mail sender",
		"host", mailCfg.Host, "port", mailCfg.Port,
		"tlsMode", mailCfg.TLSMode, "mechanism", mechanism)

	return &sender{
		cfg:           mailCfg,
		auth:          auth,
		senderAddress: senderAddr,
		senderName:    senderName,
		timeout:       timeout,
		log:           log,
	}
}

func (s *sender) Send(receivers []string, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.senderAddress, s.senderName)
	msg.SetHeader("To", receivers...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	// Failures always propagate; retry policy lives in the queue.
	transport := NewTransport(s.cfg, s.auth, s.log)
	return transport.Send(ctx, s.senderAddress, receivers, msg)
}

func (s *sender) GetHost() string {
	return s.cfg.Host
}

func (s *sender) GetPort() int {
	return s.cfg.Port
}
