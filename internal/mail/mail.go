// Package mail delivers the rendered digest over SMTP.
package mail

import (
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/newspulse/newspulse/internal/logger"
)

const (
	maxAttempts = 3
	dialTimeout = 10 * time.Second
)

// Settings carries the SMTP account and recipient for digest delivery.
type Settings struct {
	Host       string
	Port       int
	Username   string
	Password   string
	SenderName string
	To         string
}

// Send delivers one HTML email with retry logic.
func Send(settings Settings, subject, htmlBody string) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = sendOnce(settings, subject, htmlBody)
		if lastErr == nil {
			logger.Info("digest email sent", "to", settings.To, "attempt", attempt)
			return nil
		}
		logger.Warn("email delivery failed",
			"attempt", attempt, "max_attempts", maxAttempts, "error", lastErr)

		if attempt < maxAttempts {
			// Exponential backoff: 2^attempt seconds
			waitTime := time.Duration(1<<attempt) * time.Second
			time.Sleep(waitTime)
		}
	}
	return fmt.Errorf("failed to send email after %d attempts: %w", maxAttempts, lastErr)
}

// sendOnce does one delivery attempt. Port 465 speaks TLS from the first
// byte; anything else starts in plaintext and upgrades with STARTTLS.
func sendOnce(settings Settings, subject, htmlBody string) error {
	addr := net.JoinHostPort(settings.Host, strconv.Itoa(settings.Port))
	tlsConfig := &tls.Config{ServerName: settings.Host}

	var client *smtp.Client
	if settings.Port == 465 {
		conn, err := tls.DialWithDialer(&net.Dialer{Timeout: dialTimeout}, "tcp", addr, tlsConfig)
		if err != nil {
			return fmt.Errorf("failed to open TLS connection: %w", err)
		}
		client, err = smtp.NewClient(conn, settings.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("smtp handshake failed: %w", err)
		}
	} else {
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		client, err = smtp.NewClient(conn, settings.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("smtp handshake failed: %w", err)
		}
		if err = client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return fmt.Errorf("starttls failed: %w", err)
		}
	}
	defer client.Close()

	auth := smtp.PlainAuth("", settings.Username, settings.Password, settings.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth failed: %w", err)
	}
	if err := client.Mail(settings.Username); err != nil {
		return fmt.Errorf("smtp MAIL failed: %w", err)
	}
	if err := client.Rcpt(settings.To); err != nil {
		return fmt.Errorf("smtp RCPT failed: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}
	if _, err = w.Write(buildMessage(settings, subject, htmlBody)); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}
	return client.Quit()
}

// buildMessage assembles the RFC 5322 message. Subject and sender name may
// carry non-ASCII text, so both are Q-encoded.
func buildMessage(settings Settings, subject, htmlBody string) []byte {
	from := settings.Username
	if settings.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", settings.SenderName), settings.Username)
	}

	var msg strings.Builder
	msg.WriteString("From: " + from + "\r\n")
	msg.WriteString("To: " + settings.To + "\r\n")
	msg.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	msg.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)
	return []byte(msg.String())
}
