package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pcnpilot/pcn-service/internal/config"
	"github.com/pcnpilot/pcn-service/internal/events"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketEscalated, n.handleTicketEscalated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventStatusCheckCompleted, n.handleStatusCheckCompleted)
	n.dispatcher.Subscribe(events.EventLetterFlagged, n.handleLetterFlagged)
	n.dispatcher.Subscribe(events.EventIssuerGenerationDone, n.handleIssuerGenerationDone)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event, "We are now tracking your PCN.")
	return nil
}

func (n *NotificationService) handleTicketEscalated(ctx context.Context, event events.Event) error {
	body := "Your fine has left the discount period."
	if payload, ok := event.Payload.(events.TicketEscalatedPayload); ok {
		body = fmt.Sprintf("The 14-day discount window has ended. The amount due has increased from %s to %s.",
			FormatPence(payload.DiscountAmount), FormatPence(payload.FullAmount))
	}
	n.logger.Info("TicketEscalated", zap.String("ticket_id", event.TicketID), zap.String("body", body))
	n.sendEmailNotificationStub(ctx, event, body)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketStatusChanged", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleStatusCheckCompleted(ctx context.Context, event events.Event) error {
	n.logger.Info("StatusCheckCompleted", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleLetterFlagged(ctx context.Context, event events.Event) error {
	n.logger.Warn("LetterFlagged", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleIssuerGenerationDone(ctx context.Context, event events.Event) error {
	n.logger.Info("IssuerGenerationDone", zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event, body string) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)),
		zap.String("body", body))
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}

// FormatPence renders an amount held in pence as a pound string, e.g. 6000
// becomes £60.00.
func FormatPence(pence int64) string {
	return fmt.Sprintf("£%d.%02d", pence/100, pence%100)
}
