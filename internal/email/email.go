// Package email provides email sending functionality
package email

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	TemplateWelcome        = "welcome"
	TemplateSponsorRecruit = "sponsor_recruit"
)

// Config holds email configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
	UseTLS   bool
}

// Service handles email sending
type Service struct {
	config    *Config
	templates map[string]*template.Template
	log       *logrus.Entry
}

// NewService creates a new email service
func NewService(config *Config) *Service {
	return &Service{
		config:    config,
		templates: loadTemplates(),
		log:       logrus.WithField("component", "email"),
	}
}

// Email represents an email message
type Email struct {
	To       []string
	CC       []string
	BCC      []string
	Subject  string
	Body     string
	HTMLBody string
}

// WelcomeData holds data for the position-secured email
type WelcomeData struct {
	Name              string
	FormattedPosition string
	SponsorName       string
	PositionURL       string
}

// SponsorRecruitData holds data for the email a sponsor gets when someone
// they referred takes a position
type SponsorRecruitData struct {
	SponsorName       string
	RecruitName       string
	FormattedPosition string
	TeamURL           string
}

const layout = `
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #f59e0b; color: white; padding: 24px; border-radius: 8px 8px 0 0; }
        .content { background: #f9fafb; padding: 24px; border-radius: 0 0 8px 8px; }
        .position { font-size: 32px; font-weight: bold; color: #b45309; }
        .btn { display: inline-block; background: #f59e0b; color: white; padding: 12px 20px; text-decoration: none; border-radius: 6px; margin-top: 16px; }
        .footer { margin-top: 24px; font-size: 12px; color: #6b7280; text-align: center; }
    </style>
</head>
<body>
<div class="container">
    {{template "body" .}}
    <div class="footer">
        <p>This email was sent from PowerLine</p>
    </div>
</div>
</body>
</html>
`

func loadTemplates() map[string]*template.Template {
	parse := func(name, body string) *template.Template {
		t := template.Must(template.New(name).Parse(layout))
		return template.Must(t.New("body").Parse(body))
	}

	return map[string]*template.Template{
		TemplateWelcome: parse(TemplateWelcome, `
    <div class="header"><h2>Your PowerLine position is secured</h2></div>
    <div class="content">
        <p>Hi {{.Name}},</p>
        <p>Welcome to the PowerLine. Your place in the queue is</p>
        <p class="position">{{.FormattedPosition}}</p>
        {{if .SponsorName}}<p>Your sponsor is <strong>{{.SponsorName}}</strong>. Reach out to learn about the opportunity.</p>{{end}}
        <p>Share your invitation with others and watch the queue grow behind you.</p>
        <a href="{{.PositionURL}}" class="btn">View my position</a>
    </div>`),
		TemplateSponsorRecruit: parse(TemplateSponsorRecruit, `
    <div class="header"><h2>New team member</h2></div>
    <div class="content">
        <p>Hi {{.SponsorName}},</p>
        <p><strong>{{.RecruitName}}</strong> just joined the PowerLine with your referral and holds position {{.FormattedPosition}}.</p>
        <a href="{{.TeamURL}}" class="btn">See my team</a>
    </div>`),
	}
}

// Render executes a template into an HTML body
func (s *Service) Render(templateName string, data interface{}) (string, error) {
	tmpl, ok := s.templates[templateName]
	if !ok {
		return "", fmt.Errorf("template not found: %s", templateName)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("template execution error: %w", err)
	}
	return body.String(), nil
}

// compose renders the RFC 5322 message. Non-ASCII subjects and sender names
// are Q-encoded.
func (s *Service) compose(email *Email, now time.Time) []byte {
	var msg bytes.Buffer
	header := func(name, value string) {
		msg.WriteString(name + ": " + value + "\r\n")
	}

	from := (&mail.Address{Name: s.config.FromName, Address: s.config.From}).String()
	header("From", from)
	header("To", strings.Join(email.To, ", "))
	if len(email.CC) > 0 {
		header("Cc", strings.Join(email.CC, ", "))
	}
	header("Subject", mime.QEncoding.Encode("utf-8", email.Subject))
	header("Date", now.Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%d.%s>", now.UnixNano(), s.config.From))
	header("MIME-Version", "1.0")

	contentType, body := "text/plain", email.Body
	if email.HTMLBody != "" {
		contentType, body = "text/html", email.HTMLBody
	}
	header("Content-Type", contentType+"; charset=UTF-8")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return msg.Bytes()
}

// Send sends an email. Without a configured host it logs and returns nil.
func (s *Service) Send(email *Email) error {
	if s.config.Host == "" {
		s.log.WithField("to", email.To).Debug("Email not configured, skipping send")
		return nil
	}

	recipients := make([]string, 0, len(email.To)+len(email.CC)+len(email.BCC))
	recipients = append(recipients, email.To...)
	recipients = append(recipients, email.CC...)
	recipients = append(recipients, email.BCC...)

	msg := s.compose(email, time.Now())
	auth := smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	if !s.config.UseTLS {
		// smtp.SendMail upgrades with STARTTLS when the server offers it
		return smtp.SendMail(addr, auth, s.config.From, recipients, msg)
	}
	return s.sendImplicitTLS(addr, auth, recipients, msg)
}

// sendImplicitTLS talks SMTP over a TLS connection from the first byte
// (port 465 style).
func (s *Service) sendImplicitTLS(addr string, auth smtp.Auth, recipients []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.config.Host, MinVersion: tls.VersionTLS12})
	if err != nil {
		return fmt.Errorf("TLS dial error: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("SMTP client error: %w", err)
	}
	defer client.Close()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("auth error: %w", err)
	}
	if err := client.Mail(s.config.From); err != nil {
		return fmt.Errorf("mail error: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data error: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write error: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close error: %w", err)
	}
	return client.Quit()
}

// SendWithTemplate sends an email using a template
func (s *Service) SendWithTemplate(to []string, subject, templateName string, data interface{}) error {
	body, err := s.Render(templateName, data)
	if err != nil {
		return err
	}
	return s.Send(&Email{
		To:       to,
		Subject:  subject,
		HTMLBody: body,
	})
}

// ============================================
// Email Queue
// ============================================

// TemplateSender delivers a rendered template. *Service implements it.
type TemplateSender interface {
	SendWithTemplate(to []string, subject, templateName string, data interface{}) error
}

const (
	queueSize  = 1000
	maxRetries = 3
)

// EmailQueue sends emails from a pool of background workers
type EmailQueue struct {
	sender  TemplateSender
	queue   chan *queuedEmail
	done    chan struct{}
	wg      sync.WaitGroup
	backoff time.Duration
	log     *logrus.Entry
}

type queuedEmail struct {
	to           []string
	subject      string
	templateName string
	data         interface{}
	retries      int
}

// NewEmailQueue creates a new email queue
func NewEmailQueue(sender TemplateSender, workers int) *EmailQueue {
	if workers < 1 {
		workers = 1
	}
	q := &EmailQueue{
		sender:  sender,
		queue:   make(chan *queuedEmail, queueSize),
		done:    make(chan struct{}),
		backoff: 2 * time.Second,
		log:     logrus.WithField("component", "email"),
	}

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

func (q *EmailQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case email := <-q.queue:
			q.deliver(email)
		case <-q.done:
			return
		}
	}
}

func (q *EmailQueue) deliver(email *queuedEmail) {
	err := q.sender.SendWithTemplate(email.to, email.subject, email.templateName, email.data)
	if err == nil {
		return
	}

	log := q.log.WithError(err).WithFields(logrus.Fields{"template": email.templateName, "retries": email.retries})
	if email.retries >= maxRetries {
		log.Error("Email send failed, giving up")
		return
	}
	log.Warn("Email send failed, retrying")

	email.retries++
	select {
	case <-time.After(q.backoff * time.Duration(email.retries)):
	case <-q.done:
		return
	}
	select {
	case q.queue <- email:
	default:
		log.Error("Email queue full, dropping retry")
	}
}

// Enqueue adds an email to the queue. It never blocks; when the queue is
// full the email is dropped and logged.
func (q *EmailQueue) Enqueue(to []string, subject, templateName string, data interface{}) {
	select {
	case q.queue <- &queuedEmail{to: to, subject: subject, templateName: templateName, data: data}:
	default:
		q.log.WithField("template", templateName).Error("Email queue full, dropping email")
	}
}

// Stop stops the email queue workers and waits for them to exit
func (q *EmailQueue) Stop() {
	close(q.done)
	q.wg.Wait()
}
