package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/carlmjohnson/requests"
)

// DefaultEndpoint is the SendGrid v3 mail send endpoint.
const DefaultEndpoint = "https://api.sendgrid.com/v3/mail/send"

const httpRequestTimeout = 30 * time.Second

// Metrics receives send instrumentation.
type Metrics interface {
	EmailSendCompleted(outcome string)
}

type noopMetrics struct{}

func (noopMetrics) EmailSendCompleted(string) {}

// Attachment is a file attached to a report email.
type Attachment struct {
	Filename    string
	ContentType string
	// Path to the file on disk. Read at send time.
	Path string
}

// Message is a plain-text report email.
type Message struct {
	Subject     string
	Content     string
	Sender      string
	Recipients  []string
	Attachments []Attachment
}

// Client sends report emails through SendGrid.
type Client struct {
	apiKey   string
	endpoint string

	httpClient *http.Client
	metrics    Metrics
}

type Option func(*Client)

// WithEndpoint overrides the mail send endpoint.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithMetrics(m Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: httpRequestTimeout},
		metrics:    noopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             emailAddress      `json:"from"`
	Subject          string            `json:"subject"`
	Content          []contentPart     `json:"content"`
	Attachments      []attachmentPart  `json:"attachments,omitempty"`
}

type personalization struct {
	To []emailAddress `json:"to"`
}

type emailAddress struct {
	Email string `json:"email"`
}

type contentPart struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type attachmentPart struct {
	Content     string `json:"content"`
	Type        string `json:"type,omitempty"`
	Filename    string `json:"filename"`
	Disposition string `json:"disposition"`
}

// Send delivers a message. Any non-2xx response is an error; there is no
// retry here, a failed email fails the run.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if len(msg.Recipients) == 0 {
		return fmt.Errorf("no recipients")
	}
	if msg.Sender == "" {
		return fmt.Errorf("no sender")
	}

	req, err := c.buildRequest(msg)
	if err != nil {
		c.metrics.EmailSendCompleted("error")
		return err
	}

	var statusCode int
	err = requests.
		URL(c.endpoint).
		Client(c.httpClient).
		Bearer(c.apiKey).
		BodyJSON(req).
		AddValidator(func(resp *http.Response) error {
			statusCode = resp.StatusCode
			return nil
		}).
		Fetch(ctx)
	if err != nil {
		c.metrics.EmailSendCompleted("error")
		return fmt.Errorf("send email: %w", err)
	}
	if statusCode < 200 || statusCode >= 300 {
		c.metrics.EmailSendCompleted("error")
		return fmt.Errorf("send email: status %d", statusCode)
	}

	c.metrics.EmailSendCompleted("succeeded")
	log.Printf("email: sent %q to %d recipients, status %d", msg.Subject, len(msg.Recipients), statusCode)
	return nil
}

func (c *Client) buildRequest(msg Message) (sendRequest, error) {
	to := make([]emailAddress, len(msg.Recipients))
	for i, r := range msg.Recipients {
		to[i] = emailAddress{Email: r}
	}

	req := sendRequest{
		Personalizations: []personalization{{To: to}},
		From:             emailAddress{Email: msg.Sender},
		Subject:          msg.Subject,
		Content:          []contentPart{{Type: "text/plain", Value: msg.Content}},
	}

	for _, att := range msg.Attachments {
		data, err := os.ReadFile(att.Path)
		if err != nil {
			return sendRequest{}, fmt.Errorf("read attachment %s: %w", att.Filename, err)
		}
		contentType := att.ContentType
		if contentType == "" {
			contentType = "text/csv"
		}
		req.Attachments = append(req.Attachments, attachmentPart{
			Content:     base64.StdEncoding.EncodeToString(data),
			Type:        contentType,
			Filename:    att.Filename,
			Disposition: "attachment",
		})
	}

	return req, nil
}
