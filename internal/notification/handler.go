package notification

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/shopfront/internal/domain/order"
	"github.com/example/shopfront/internal/model"
)

// Sender sends the two notification emails. *email.Service satisfies it.
type Sender interface {
	SendOrderConfirmation(to, orderNumber string, totalAmount int64, items []model.OrderItem) error
	SendStatusChange(to, orderNumber string, newStatus model.OrderStatus) error
}

// Handler turns consumed order lifecycle events into email notifications.
type Handler struct {
	sender Sender
}

func NewHandler(sender Sender) *Handler {
	return &Handler{sender: sender}
}

// HandleEvent processes one decoded event from the order lifecycle topic.
// Unknown event types are skipped so producers can add new ones without
// breaking the notifier.
func (h *Handler) HandleEvent(ctx context.Context, orderID string, env order.Envelope) error {
	switch env.Type {
	case order.EventOrderPlaced:
		return h.handleOrderPlaced(env)
	case order.EventOrderStatusChanged:
		return h.handleStatusChanged(env)
	default:
		return nil
	}
}

func (h *Handler) handleOrderPlaced(env order.Envelope) error {
	var e order.OrderPlaced
	if err := json.Unmarshal(env.Data, &e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal OrderPlaced event: %v", err)
		return err
	}

	log.Printf("[Notifier] Processing OrderPlaced event for order %s, user %s", e.OrderNumber, e.UserEmail)

	if err := h.sender.SendOrderConfirmation(e.UserEmail, e.OrderNumber, e.TotalAmount, e.Items); err != nil {
		log.Printf("[Notifier] Failed to send email to %s: %v", e.UserEmail, err)
		return err
	}

	log.Printf("[Notifier] Order confirmation email sent to %s for order %s", e.UserEmail, e.OrderNumber)
	return nil
}

func (h *Handler) handleStatusChanged(env order.Envelope) error {
	var e order.OrderStatusChanged
	if err := json.Unmarshal(env.Data, &e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal OrderStatusChanged event: %v", err)
		return err
	}

	log.Printf("[Notifier] Processing status change %s -> %s for order %s", e.OldStatus, e.NewStatus, e.OrderNumber)

	if err := h.sender.SendStatusChange(e.UserEmail, e.OrderNumber, e.NewStatus); err != nil {
		log.Printf("[Notifier] Failed to send email to %s: %v", e.UserEmail, err)
		return err
	}

	return nil
}
