package email

import (
	"fmt"
	"net/smtp"

	"github.com/example/shopfront/internal/model"
)

// Service handles email sending via SMTP
type Service struct {
	host string
	port string
	from string
}

// NewService creates a new email service
func NewService(host, port, from string) *Service {
	return &Service{
		host: host,
		port: port,
		from: from,
	}
}

// SendOrderConfirmation sends an order confirmation email
func (s *Service) SendOrderConfirmation(to, orderNumber string, totalAmount int64, items []model.OrderItem) error {
	subject := fmt.Sprintf("Order confirmation %s", orderNumber)
	body := BuildOrderConfirmationBody(orderNumber, totalAmount, items)
	return s.send(to, subject, body)
}

// SendStatusChange sends a notification about an order status change
func (s *Service) SendStatusChange(to, orderNumber string, newStatus model.OrderStatus) error {
	subject := fmt.Sprintf("Order %s is now %s", orderNumber, newStatus)
	body := BuildStatusChangeBody(orderNumber, newStatus)
	return s.send(to, subject, body)
}

func (s *Service) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return smtp.SendMail(addr, nil, s.from, []string{to}, []byte(msg))
}
