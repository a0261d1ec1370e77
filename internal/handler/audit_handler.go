package handler

import (
	"context"

	"cv-search-be/internal/pkg/logger"
	"cv-search-be/pkg/events"
	pkgnats "cv-search-be/pkg/nats"
)

// AuditHandler consumes query lifecycle events from JetStream and writes
// them to a dedicated audit log, keeping the main application log clean.
type AuditHandler struct {
	subscriber *pkgnats.Subscriber
	logger     logger.ILogger
}

func NewAuditHandler(subscriber *pkgnats.Subscriber, log logger.ILogger) *AuditHandler {
	return &AuditHandler{
		subscriber: subscriber,
		logger:     log,
	}
}

// Start registers the durable audit consumer. Safe to call with a nil
// subscriber when NATS is unavailable.
func (h *AuditHandler) Start() error {
	if h.subscriber == nil {
		return nil
	}
	return h.subscriber.Subscribe("events.>", "audit-logger", h.handle)
}

func (h *AuditHandler) handle(ctx context.Context, event events.Event) error {
	h.logger.Info("audit", event.EventType(), event.Payload())
	return nil
}
