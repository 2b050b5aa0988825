// Package mailer delivers generated documents as email attachments over SMTP.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"golang.org/x/time/rate"
)

var ErrNotConfigured = errors.New("mailer: not configured")

// Config holds the SMTP account and the destination of dispatched documents.
type Config struct {
	Host          string
	Port          int
	User          string
	Pass          string
	FromName      string
	FromAddress   string
	To            []string
	PGPPublicKey  string
	RatePerMinute int
}

func (c *Config) configured() bool {
	return c != nil && c.Host != "" && c.FromAddress != "" && len(c.To) > 0
}

// Message is a fully composed email ready for the wire.
type Message struct {
	From    string
	To      []string
	Subject string
	Header  string
	Body    string
}

// Mailer sends emails via SMTP.
type Mailer struct {
	mu      sync.RWMutex
	cfg     *Config
	limiter *rate.Limiter
	sendFn  func(Message) error
}

func New(cfg *Config) *Mailer {
	m := &Mailer{}
	m.Reconfigure(cfg)
	m.sendFn = m.sendSMTP
	return m
}

// Reconfigure swaps the SMTP settings used by subsequent sends.
func (m *Mailer) Reconfigure(cfg *Config) {
	limit := rate.Inf
	if cfg != nil && cfg.RatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RatePerMinute))
	}
	m.mu.Lock()
	m.cfg = cfg
	m.limiter = rate.NewLimiter(limit, 1)
	m.mu.Unlock()
}

func (m *Mailer) config() (*Config, *rate.Limiter) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg, m.limiter
}

// Send emails the file at path as an attachment to the configured
// destination, encrypted with PGP/MIME when a public key is set.
func (m *Mailer) Send(ctx context.Context, path string) error {
	cfg, limiter := m.config()
	if !cfg.configured() {
		return ErrNotConfigured
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	att := attachment{Filename: filepath.Base(path), ContentType: contentType(path), Data: data}
	text := fmt.Sprintf("Please find attached %s.\r\n", att.Filename)

	header, body, err := buildMultipart(text, att)
	if err != nil {
		return err
	}
	if cfg.PGPPublicKey != "" {
		header, body, err = buildEncrypted(header, body, cfg.PGPPublicKey)
		if err != nil {
			return fmt.Errorf("pgp encryption: %w", err)
		}
	}

	if err := limiter.Wait(ctx); err != nil {
		return err
	}
	return m.sendFn(Message{
		From:    formatAddress(cfg.FromName, cfg.FromAddress),
		To:      cfg.To,
		Subject: "Request for payment " + strings.TrimSuffix(att.Filename, filepath.Ext(att.Filename)),
		Header:  header,
		Body:    body,
	})
}

// CanEncrypt reports whether the configured public key can be used.
func (m *Mailer) CanEncrypt() error {
	cfg, _ := m.config()
	if cfg == nil || cfg.PGPPublicKey == "" {
		return errors.New("mailer: no PGP public key configured")
	}
	if _, err := openpgp.ReadArmoredKeyRing(strings.NewReader(cfg.PGPPublicKey)); err != nil {
		return fmt.Errorf("mailer: cannot parse PGP public key: %w", err)
	}
	return nil
}

// Ping reports whether the mailer has enough settings to send.
func (m *Mailer) Ping() error {
	cfg, _ := m.config()
	if !cfg.configured() {
		return ErrNotConfigured
	}
	return nil
}

func (m *Mailer) formatMessage(msg Message) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: %s\r\n", msg.Header)
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return b.String()
}

func (m *Mailer) sendSMTP(msg Message) error {
	cfg, _ := m.config()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	var auth smtp.Auth
	if cfg.User != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)
	}
	return smtp.SendMail(addr, auth, cfg.FromAddress, msg.To, []byte(m.formatMessage(msg)))
}

func formatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", name, addr)
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".xml":
		return "application/xml"
	case ".zip":
		return "application/zip"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
