package email

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Domenick1991/slotbooking/internal/kafka"
	"go.uber.org/zap"
)

var subjects = map[string]string{
	"booking_confirmed":    "Your appointment is confirmed",
	"slot_conflict_refund": "Your appointment could not be honored and was fully refunded",
}

// Sender renders notification messages. Delivery goes to the log until an SMTP
// relay is configured.
type Sender struct {
	log *zap.Logger
}

func NewSender(log *zap.Logger) *Sender {
	return &Sender{log: log}
}

func (s *Sender) Send(ctx context.Context, msg kafka.NotificationMessage) error {
	if msg.Recipient == "" {
		s.log.Warn("dropping notification without recipient", zap.String("template", msg.TemplateID))
		return nil
	}
	subject, body := Render(msg)
	s.log.Info("send email",
		zap.String("to", msg.Recipient),
		zap.String("template", msg.TemplateID),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}

func Render(msg kafka.NotificationMessage) (string, string) {
	subject, ok := subjects[msg.TemplateID]
	if !ok {
		subject = msg.TemplateID
	}

	keys := make([]string, 0, len(msg.Variables))
	for k := range msg.Variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, msg.Variables[k])
	}
	return subject, b.String()
}
