// Package sender отправляет письма пользователям: одноразовые коды
// и напоминания об истекающих подписках.
package sender

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/helpmespeak/helpmespeak-backend/internal/config"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/sl"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/smtp"
	"github.com/helpmespeak/helpmespeak-backend/internal/models"
)

// Transport устанавливает соединение с SMTP сервером.
type Transport interface {
	Connect() (smtp.Client, error)
	GetSMTPUser() string
}

// Service реализует отправку писем через SMTP.
type Service struct {
	transport Transport
	otpCfg    config.OTP
	log       *slog.Logger
}

// New создает новый экземпляр Service.
func New(transport Transport, otpCfg config.OTP, log *slog.Logger) *Service {
	return &Service{
		transport: transport,
		otpCfg:    otpCfg,
		log:       log,
	}
}

// SendOTPEmail отправляет письмо с одноразовым кодом. Тема и текст зависят
// от назначения кода, срок действия берется из настроек.
func (s *Service) SendOTPEmail(email, code, purpose string) error {
	verifyMinutes := int(s.otpCfg.VerificationTTL.Minutes())
	resetMinutes := int(s.otpCfg.ResetTTL.Minutes())

	var subject, bodyText string
	switch purpose {
	case models.OTPPurposeVerification:
		subject = "Verify your HelpMeSpeak account"
		bodyText = fmt.Sprintf("Hello!\n\nYour email verification code is: %s\n\n"+
			"The code expires in %d minutes.\n\nHelpMeSpeak Team", code, verifyMinutes)
	case models.OTPPurposeReset:
		subject = "Reset your HelpMeSpeak password"
		bodyText = fmt.Sprintf("Hello!\n\nYour password reset code is: %s\n\n"+
			"The code expires in %d minutes. If you did not request a password reset, "+
			"please ignore this email.\n\nHelpMeSpeak Team", code, resetMinutes)
	case models.OTPPurpose2FA:
		subject = "Your HelpMeSpeak login code"
		bodyText = fmt.Sprintf("Hello!\n\nYour login verification code is: %s\n\n"+
			"The code expires in %d minutes.\n\nHelpMeSpeak Team", code, verifyMinutes)
	default:
		return fmt.Errorf("unknown otp purpose: %s", purpose)
	}

	return s.sendEmail([]string{email}, subject, bodyText)
}

// SendExpiringSubscriptionNotice отправляет напоминание об истекающей подписке.
// Вызывается потребителем очереди уведомлений, body содержит JSON сообщения.
func (s *Service) SendExpiringSubscriptionNotice(body []byte) error {
	var message models.ExpiringSubscription
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	name := message.FullName
	if name == "" {
		name = message.Email
	}
	subject := "Your HelpMeSpeak subscription is about to expire"
	bodyText := fmt.Sprintf("Hello, %s!\n\nYour %s subscription expires on %s.\n\n"+
		"Renew it in the app to keep access to all lessons.\n\nHelpMeSpeak Team",
		name, message.PlanName, message.RenewalDate.Format("02 Jan 2006"))

	return s.sendEmail([]string{message.Email}, subject, bodyText)
}

func (s *Service) sendEmail(to []string, subject, bodyText string) error {
	msg := strings.Join([]string{
		"From: " + s.transport.GetSMTPUser(),
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(s.transport.GetSMTPUser()); err != nil {
		s.log.Error("failed to set MAIL FROM", "from", s.transport.GetSMTPUser(), "error", sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", "recipient", addr, "error", sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get data writer", sl.Err(err))
		return err
	}

	_, err = wc.Write([]byte(msg))
	if err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		s.log.Error("failed to close data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", "to", to)
	return nil
}
