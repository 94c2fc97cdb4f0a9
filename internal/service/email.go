package service

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/logger"
)

type emailService struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func NewEmailService(host string, port int, username, password, from string) EmailService {
	return &emailService{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

func (s *emailService) SendOverdueReminder(ctx context.Context, to, customer, reference string, lines []ReminderLine) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\nThe following equipment on rental %s is past its return date:\n\n", customer, reference)
	writeReminderLines(&b, lines, true)
	b.WriteString("\nLate fees accrue for every day past the end date. Please return the equipment as soon as possible.\n\nBest regards,\nThe Rental Team")

	return s.send(to, fmt.Sprintf("Overdue rental %s", reference), b.String())
}

func (s *emailService) SendReturnReminder(ctx context.Context, to, customer, reference string, lines []ReminderLine) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\nA reminder that the following equipment on rental %s is due back soon:\n\n", customer, reference)
	writeReminderLines(&b, lines, false)
	b.WriteString("\nBest regards,\nThe Rental Team")

	return s.send(to, fmt.Sprintf("Return reminder for rental %s", reference), b.String())
}

func (s *emailService) SendLowStockAlert(ctx context.Context, to string, lines []StockLine) error {
	var b strings.Builder
	b.WriteString("The following equipment is running low on available units:\n\n")
	for _, l := range lines {
		fmt.Fprintf(&b, "  %s (%s): %d available\n", l.EquipmentName, l.EquipmentCode, l.Available)
	}

	return s.send(to, "Low stock alert", b.String())
}

func (s *emailService) send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(s.host, s.port, s.username, s.password)

	logger.ExternalServiceCall("smtp", "DialAndSend", "to", to, "subject", subject)
	err := d.DialAndSend(m)
	logger.ExternalServiceResult("smtp", "DialAndSend", err, "to", to)
	if err != nil {
		return fmt.Errorf("failed to send email via gomail: %w", err)
	}
	return nil
}

func writeReminderLines(b *strings.Builder, lines []ReminderLine, late bool) {
	for _, l := range lines {
		fmt.Fprintf(b, "  %s, due %s", l.EquipmentName, l.EndDate.Format(domain.DateLayout))
		if late && l.DaysLate > 0 {
			fmt.Fprintf(b, " (%d days late)", l.DaysLate)
		}
		if len(l.SerialCodes) > 0 {
			fmt.Fprintf(b, ", units %s", strings.Join(l.SerialCodes, ", "))
		}
		b.WriteString("\n")
	}
}
