// Package notify sends weather advisory alerts to farmers.
package notify

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"agri-pipeline/internal/common/logger"
	"agri-pipeline/internal/common/metrics"
	"agri-pipeline/internal/common/validation"
	"agri-pipeline/internal/models"
)

const (
	channelSMS = "sms"

	// DefaultMaxMessageChars keeps an alert within four concatenated segments.
	DefaultMaxMessageChars = 612
)

// SMSSender is satisfied by *aws.SNSClient.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) (string, error)
}

type SMSNotifier struct {
	sender   SMSSender
	maxChars int
	logger   logger.Logger
}

func NewSMSNotifier(sender SMSSender, maxChars int, log logger.Logger) *SMSNotifier {
	if maxChars <= 0 {
		maxChars = DefaultMaxMessageChars
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &SMSNotifier{sender: sender, maxChars: maxChars, logger: log}
}

// NotifyAdvisory texts tips to phone using their English text.
func (n *SMSNotifier) NotifyAdvisory(ctx context.Context, phone, location string, tips []models.AdvisoryTip) error {
	if len(tips) == 0 {
		return nil
	}
	if !validation.ValidatePhone(phone) {
		metrics.NotificationsSent.WithLabelValues(channelSMS, metrics.OutcomeSkipped).Inc()
		return fmt.Errorf("invalid alert phone number")
	}

	message := FormatAdvisory(location, tips, n.maxChars)
	id, err := n.sender.SendSMS(ctx, phone, message)
	if err != nil {
		metrics.NotificationsSent.WithLabelValues(channelSMS, metrics.OutcomeFailure).Inc()
		return err
	}

	metrics.NotificationsSent.WithLabelValues(channelSMS, metrics.OutcomeSuccess).Inc()
	n.logger.Info("advisory alert sent", map[string]interface{}{
		"messageId": id,
		"location":  location,
		"tips":      len(tips),
	})
	return nil
}

// FormatAdvisory renders tips as a numbered list, cut to maxChars runes.
func FormatAdvisory(location string, tips []models.AdvisoryTip, maxChars int) string {
	var b strings.Builder
	b.WriteString("Weather alert")
	if location != "" {
		b.WriteString(" for " + location)
	}
	b.WriteString(":")
	for i, tip := range tips {
		fmt.Fprintf(&b, "\n%d. %s", i+1, strings.TrimSpace(tip.Title))
		if advice := strings.TrimSpace(tip.Advice); advice != "" {
			b.WriteString(" - " + advice)
		}
	}

	msg := b.String()
	if maxChars <= 0 || utf8.RuneCountInString(msg) <= maxChars {
		return msg
	}
	runes := []rune(msg)
	if maxChars <= 3 {
		return string(runes[:maxChars])
	}
	return string(runes[:maxChars-3]) + "..."
}
