// Package client is the typed HTTP client sitectl uses against the website
// admin API.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to one website deployment.
type Client struct {
	rest *resty.Client
}

type Option func(*Client) error

func New(server string, opts ...Option) (*Client, error) {
	if server == "" {
		return nil, errors.New("server is required")
	}
	if _, err := url.Parse(server); err != nil {
		return nil, fmt.Errorf("invalid server: %w", err)
	}

	rest := resty.New().
		SetBaseURL(server).
		SetTimeout(30 * time.Second).
		SetHeader("User-Agent", "sitectl").
		SetHeader("Accept", "application/json")

	c := &Client{rest: rest}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// WithToken sets the Bearer session token on every request.
func WithToken(token string) Option {
	return func(c *Client) error {
		c.rest.SetAuthToken(token)
		return nil
	}
}

// WithTLSConfig configures a custom CA bundle or disables verification.
func WithTLSConfig(caFile string, insecureSkipTLSVerify bool) Option {
	return func(c *Client) error {
		tlsConfig := &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: insecureSkipTLSVerify,
		}
		if caFile != "" {
			data, err := os.ReadFile(caFile)
			if err != nil {
				return fmt.Errorf("failed to read CA file: %w", err)
			}
			pool := x509.NewCertPool()
			if ok := pool.AppendCertsFromPEM(data); !ok {
				return errors.New("failed to parse CA file")
			}
			tlsConfig.RootCAs = pool
		}
		c.rest.SetTLSClientConfig(tlsConfig)
		return nil
	}
}

// HTTPError is a non-2xx response from the API.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func wrapError(resp *resty.Response) error {
	apiErr, _ := resp.Error().(*apiError)
	msg := ""
	if apiErr != nil {
		msg = apiErr.Error
	}
	if msg == "" {
		msg = resp.Status()
	}
	code := ""
	if apiErr != nil {
		code = apiErr.Code
	}
	return &HTTPError{StatusCode: resp.StatusCode(), Message: msg, Code: code}
}

// Contact mirrors the admin API contact payload.
type Contact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	Read      bool      `json:"read"`
	Notes     string    `json:"notes,omitempty"`
}

type ContactList struct {
	Contacts []Contact `json:"contacts"`
	Count    int       `json:"count"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type TestMailResult struct {
	Receiver  string `json:"receiver"`
	Host      string `json:"host"`
	Mechanism string `json:"mechanism"`
}

type Stats struct {
	Total  int `json:"total"`
	Unread int `json:"unread"`
}

// ListOptions narrow a contact listing.
type ListOptions struct {
	Read   *bool
	Query  string
	Limit  int
	Offset int
}

// Login exchanges the admin password for a session token.
func (c *Client) Login(ctx context.Context, password string) (*LoginResult, error) {
	var result LoginResult
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"password": password}).
		SetResult(&result).
		SetError(&apiError{}).
		Post("/api/admin/login")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, wrapError(resp)
	}
	return &result, nil
}

// ListContacts retrieves contact submissions, newest first.
func (c *Client) ListContacts(ctx context.Context, opts ListOptions) (*ContactList, error) {
	req := c.rest.R().
		SetContext(ctx).
		SetResult(&ContactList{}).
		SetError(&apiError{})

	if opts.Read != nil {
		req.SetQueryParam("read", strconv.FormatBool(*opts.Read))
	}
	if opts.Query != "" {
		req.SetQueryParam("q", opts.Query)
	}
	if opts.Limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		req.SetQueryParam("offset", strconv.Itoa(opts.Offset))
	}

	resp, err := req.Get("/api/admin/contacts")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, wrapError(resp)
	}
	return resp.Result().(*ContactList), nil
}

// GetContact retrieves one submission by id.
func (c *Client) GetContact(ctx context.Context, id string) (*Contact, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&Contact{}).
		SetError(&apiError{}).
		Get("/api/admin/contacts/" + url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, wrapError(resp)
	}
	return resp.Result().(*Contact), nil
}

// MarkRead flags a submission as handled.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.postReadState(ctx, id, "read")
}

// MarkUnread puts a submission back in the unread set.
func (c *Client) MarkUnread(ctx context.Context, id string) error {
	return c.postReadState(ctx, id, "unread")
}

func (c *Client) postReadState(ctx context.Context, id, action string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetError(&apiError{}).
		Post("/api/admin/contacts/" + url.PathEscape(id) + "/" + action)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return wrapError(resp)
	}
	return nil
}

// GetStats retrieves the submission counters.
func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&Stats{}).
		SetError(&apiError{}).
		Get("/api/admin/stats")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, wrapError(resp)
	}
	return resp.Result().(*Stats), nil
}

// SendTestMail asks the server to push a delivery check through its SMTP
// transport.
func (c *Client) SendTestMail(ctx context.Context, receiver string) (*TestMailResult, error) {
	req := c.rest.R().
		SetContext(ctx).
		SetResult(&TestMailResult{}).
		SetError(&apiError{})
	if receiver != "" {
		req.SetBody(map[string]string{"receiver": receiver})
	}

	resp, err := req.Post("/api/admin/testmail")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, wrapError(resp)
	}
	return resp.Result().(*TestMailResult), nil
}
