// Package email sends new-comment notifications via SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"time"

	"folio/internal/comments"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

// NewService creates a new email service
func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) fromHeader() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	return s.config.From
}

// SendHTMLEmail sends a multipart email with a plain text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}
	if len(to) == 0 {
		return fmt.Errorf("email has no recipients")
	}

	boundary := "boundary-folio"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", s.fromHeader())
	fmt.Fprintf(&msg, "Subject: %s\r\n", sanitizeHeader(subject))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", textBody)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return s.send(s.server, s.auth, s.config.From, to, msg.Bytes())
}

// sanitizeHeader keeps user-supplied text from starting new header lines.
func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

type commentEmailData struct {
	SiteName  string
	Page      string
	PageURL   string
	Author    string
	Content   string
	Timestamp string
}

// CommentNotifier mails every new comment to the site owner.
type CommentNotifier struct {
	svc      *Service
	to       []string
	siteName string
	siteURL  string
}

// NewCommentNotifier addresses notifications to the comma-separated
// recipients in to. siteURL, when set, is used to link the page.
func NewCommentNotifier(svc *Service, to, siteName, siteURL string) *CommentNotifier {
	var recipients []string
	for _, addr := range strings.Split(to, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	if siteName == "" {
		siteName = "Folio"
	}
	return &CommentNotifier{svc: svc, to: recipients, siteName: siteName, siteURL: strings.TrimRight(siteURL, "/")}
}

func (n *CommentNotifier) CommentCreated(c comments.Comment) error {
	data := commentEmailData{
		SiteName:  n.siteName,
		Page:      c.Page,
		Author:    c.Author,
		Content:   c.Content,
		Timestamp: c.CreatedAt.UTC().Format(time.RFC1123),
	}
	if n.siteURL != "" {
		data.PageURL = n.siteURL + "/blog/" + c.Page
	}

	html, err := renderTemplate(commentEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render comment template: %w", err)
	}
	text := fmt.Sprintf("%s commented on %s at %s:\n\n%s", c.Author, c.Page, data.Timestamp, c.Content)
	subject := fmt.Sprintf("New comment on %s", c.Page)
	return n.svc.SendHTMLEmail(n.to, subject, text, html)
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const commentEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>New comment on {{.Page}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .comment { background: #f5f5f5; padding: 12px 16px; border-left: 3px solid #0066cc; white-space: pre-wrap; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.SiteName}}</h1>
    </div>

    <p><strong>{{.Author}}</strong> commented on
    {{if .PageURL}}<a href="{{.PageURL}}">{{.Page}}</a>{{else}}{{.Page}}{{end}}
    at {{.Timestamp}}:</p>

    <div class="comment">{{.Content}}</div>

    <div class="footer">
        <p>You receive this because you are listed as the site's comment contact.</p>
    </div>
</body>
</html>`
