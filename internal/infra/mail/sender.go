package mail

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Dispatcher sends one message per call over SMTP. It never retries and
// never returns an error: transport failures come back as a failed Result.
type Dispatcher struct {
	Dialer          dialer
	From            string
	FromName        string
	MessageIDDomain string
	logger          *zap.Logger
}

func NewDispatcher(host string, port int, user, password, from, fromName, messageIDDomain string, logger *zap.Logger) *Dispatcher {
	return NewDispatcherWithDialer(gomail.NewDialer(host, port, user, password), from, fromName, messageIDDomain, logger)
}

func NewDispatcherWithDialer(d dialer, from, fromName, messageIDDomain string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if messageIDDomain == "" {
		messageIDDomain = domainOf(from)
	}
	return &Dispatcher{
		Dialer:          d,
		From:            from,
		FromName:        fromName,
		MessageIDDomain: messageIDDomain,
		logger:          logger,
	}
}

func (s *Dispatcher) Send(ctx context.Context, email OutboundEmail) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("smtp transport panicked", zap.String("to", email.To), zap.Any("panic", r))
			res = Result{Success: false, Error: fmt.Sprintf("transport panic: %v", r)}
		}
	}()

	if err := ctx.Err(); err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	if strings.TrimSpace(email.To) == "" {
		return Result{Success: false, Error: "recipient address is empty"}
	}

	id := email.MessageID
	if id == "" {
		id = uuid.NewString()
	}
	messageID := fmt.Sprintf("<%s@%s>", id, s.MessageIDDomain)

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.From, s.FromName)
	if email.ToName != "" {
		m.SetAddressHeader("To", email.To, email.ToName)
	} else {
		m.SetHeader("To", email.To)
	}
	m.SetHeader("Subject", email.Subject)
	m.SetHeader("Message-Id", messageID)
	if email.Text != "" {
		m.SetBody("text/plain", email.Text)
		m.AddAlternative("text/html", email.HTML)
	} else {
		m.SetBody("text/html", email.HTML)
	}

	if err := s.Dialer.DialAndSend(m); err != nil {
		s.logger.Warn("smtp send failed", zap.String("to", email.To), zap.Error(err))
		return Result{Success: false, Error: fmt.Sprintf("smtp send: %v", err)}
	}

	return Result{Success: true, ProviderMessageID: messageID}
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return strings.Trim(addr[i+1:], "> ")
	}
	return "localhost"
}
