// Package identity acquires OAuth2 access tokens for the mail provider via
// the client-credentials grant and caches them per credential identity.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/diaspora-enterprise/website/pkg/audit"
	"github.com/diaspora-enterprise/website/pkg/metrics"
)

// DefaultScope is the Office 365 SMTP application scope.
const DefaultScope = "https://outlook.office365.com/.default"

// ErrCredentialsNotConfigured is returned when any of clientID, clientSecret
// or tenantID is missing. It is never retried; fix the configuration.
var ErrCredentialsNotConfigured = errors.New(
	"oauth2 credentials not configured: clientID, clientSecret and tenantID are all required")

// TokenAcquisitionError reports a client-credentials grant the identity
// provider rejected or could not satisfy. Code and Description carry the
// provider-supplied error payload when available.
type TokenAcquisitionError struct {
	Code        string
	Description string
}

func (e *TokenAcquisitionError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("token acquisition failed: %s", e.Code)
	}
	return fmt.Sprintf("token acquisition failed: %s: %s", e.Code, e.Description)
}

// Credentials identifies the service principal used for the
// client-credentials grant.
type Credentials struct {
	ClientID     string
	ClientSecret string
	TenantID     string
}

// Complete reports whether all required fields are set.
func (c Credentials) Complete() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.TenantID != ""
}

// CacheKey identifies the cache slot for this credential identity.
// The secret deliberately stays out of the key.
func (c Credentials) CacheKey() string {
	return c.ClientID + ":" + c.TenantID
}

// AuthorityTokenURL derives the token endpoint from the tenant id.
func AuthorityTokenURL(tenantID string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID)
}

// Auditor records token lifecycle events. *audit.Service satisfies it; a nil
// auditor disables auditing.
type Auditor interface {
	Emit(event *audit.Event)
}

// Provider acquires and caches access tokens. The cache is shared by every
// concurrent sender holding the same Provider; one exclusive lock serializes
// all lookups and acquisitions, so at most one grant round-trip is in flight
// per process.
//
// The provider does not track token expiry: a cached token is trusted until
// ClearCache is called. A stale token surfaces as an SMTP authentication
// rejection, which the caller may answer with ClearCache and a retry.
type Provider struct {
	creds    Credentials
	tokenURL string
	scopes   []string
	client   *http.Client
	log      *zap.SugaredLogger
	auditor  Auditor

	mu    sync.Mutex
	cache map[string]string
}

// Option customizes a Provider.
type Option func(*Provider)

// WithTokenURL overrides the derived authority token endpoint.
func WithTokenURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.tokenURL = url
		}
	}
}

// WithScopes overrides the requested scopes.
func WithScopes(scopes []string) Option {
	return func(p *Provider) {
		if len(scopes) > 0 {
			p.scopes = scopes
		}
	}
}

// WithHTTPClient overrides the HTTP client used for the grant round trip.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.client = client
		}
	}
}

// WithAuditor records token acquisitions and rejections as audit events.
func WithAuditor(a Auditor) Option {
	return func(p *Provider) {
		p.auditor = a
	}
}

// NewProvider creates a token provider for the given credentials.
func NewProvider(creds Credentials, log *zap.SugaredLogger, opts ...Option) *Provider {
	p := &Provider{
		creds:    creds,
		tokenURL: AuthorityTokenURL(creds.TenantID),
		scopes:   []string{DefaultScope},
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      log.Named("identity"),
		cache:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AccessToken returns a bearer token for the configured credentials.
// Cache hits return without any network call; a miss performs exactly one
// client-credentials grant and stores the result. Nothing is cached on
// failure.
func (p *Provider) AccessToken(ctx context.Context) (string, error) {
	if !p.creds.Complete() {
		return "", ErrCredentialsNotConfigured
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := p.creds.CacheKey()
	if token, ok := p.cache[key]; ok {
		p.log.Debug("Using cached OAuth2 access token")
		metrics.TokenCacheHits.Inc()
		return token, nil
	}
	metrics.TokenCacheMisses.Inc()

	p.log.Infow("Acquiring OAuth2 access token from identity provider",
		"tokenURL", p.tokenURL, "clientID", p.creds.ClientID)

	token, err := p.acquire(ctx)
	if err != nil {
		var acqErr *TokenAcquisitionError
		code := "request_failed"
		description := err.Error()
		if errors.As(err, &acqErr) {
			code = acqErr.Code
			description = acqErr.Description
		}
		metrics.TokenAcquisitionFailures.WithLabelValues(code).Inc()
		p.emit(audit.NewEvent(audit.EventTokenRejected).
			WithSubject(p.creds.ClientID).
			WithDetail("code", code).
			WithDetail("description", description))
		p.log.Errorw("Failed to acquire OAuth2 access token", "error", err)
		return "", err
	}

	p.cache[key] = token
	p.emit(audit.NewEvent(audit.EventTokenAcquired).WithSubject(p.creds.ClientID))
	p.log.Info("OAuth2 access token acquired and cached")
	return token, nil
}

func (p *Provider) emit(event *audit.Event) {
	if p.auditor != nil {
		p.auditor.Emit(event)
	}
}

// acquire performs the single grant round trip. Callers hold the lock.
func (p *Provider) acquire(ctx context.Context) (string, error) {
	cc := &clientcredentials.Config{
		ClientID:     p.creds.ClientID,
		ClientSecret: p.creds.ClientSecret,
		TokenURL:     p.tokenURL,
		Scopes:       p.scopes,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	token, err := cc.Token(ctx)
	if err != nil {
		return "", asAcquisitionError(err)
	}
	if token.AccessToken == "" {
		return "", &TokenAcquisitionError{Code: "invalid_response", Description: "grant response carried no access token"}
	}
	return token.AccessToken, nil
}

// ClearCache drops every cached token. Used for forced refresh after a
// server-side rejection and for test isolation.
func (p *Provider) ClearCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string]string)
	p.log.Info("OAuth2 token cache cleared")
}

// asAcquisitionError maps transport-level grant failures onto the
// provider-supplied error payload when one exists.
func asAcquisitionError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		code := retrieveErr.ErrorCode
		desc := retrieveErr.ErrorDescription
		if code == "" {
			code = "invalid_response"
			desc = string(retrieveErr.Body)
		}
		return &TokenAcquisitionError{Code: code, Description: desc}
	}
	return &TokenAcquisitionError{Code: "request_failed", Description: err.Error()}
}
