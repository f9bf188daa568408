package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/diaspora-enterprise/website/pkg/config"
	"github.com/diaspora-enterprise/website/pkg/metrics"
)

// State tracks the transport connection lifecycle.
type State string

const (
	StateClosed         State = "closed"
	StateConnecting     State = "connecting"
	StateTLSNegotiating State = "tlsNegotiating"
	StateAuthenticating State = "authenticating"
	StateOpen           State = "open"
)

// AuthStrategy produces the SMTP credential exchange for a connection.
// Two variants exist: PasswordAuth for a static username/password pair and
// OAuth2Auth for a bearer token obtained from the identity provider.
type AuthStrategy interface {
	// Mechanism names the SASL mechanism, used for logging and metrics.
	Mechanism() string
	// ClientAuth returns the smtp.Auth to run against the server. It may
	// perform network I/O (token acquisition).
	ClientAuth(ctx context.Context) (smtp.Auth, error)
}

// PasswordAuth authenticates with a static username and password.
type PasswordAuth struct {
	Username string
	Password string
	Host     string
}

func (a PasswordAuth) Mechanism() string { return "PLAIN" }

func (a PasswordAuth) ClientAuth(_ context.Context) (smtp.Auth, error) {
	return smtp.PlainAuth("", a.Username, a.Password, a.Host), nil
}

// OAuth2Auth authenticates with SASL XOAUTH2 using a token from the
// identity provider. The token is fetched per connection attempt and never
// held beyond the exchange.
type OAuth2Auth struct {
	// User is the mailbox the token is bound to.
	User   string
	Tokens TokenSource
}

// TokenSource supplies bearer tokens for the XOAUTH2 exchange.
// pkg/identity.Provider satisfies it.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

func (a OAuth2Auth) Mechanism() string { return "XOAUTH2" }

func (a OAuth2Auth) ClientAuth(ctx context.Context) (smtp.Auth, error) {
	token, err := a.Tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return XOAUTH2Auth(a.User, token), nil
}

// NewAuthStrategy selects the credential exchange for the given mail
// configuration: a static username/password pair wins when both are set,
// otherwise the OAuth2 token source is used. Returns nil when neither is
// available, meaning the connection stays unauthenticated.
func NewAuthStrategy(cfg config.Mail, tokens TokenSource) AuthStrategy {
	if cfg.Username != "" && cfg.Password != "" {
		return PasswordAuth{Username: cfg.Username, Password: cfg.Password, Host: cfg.Host}
	}
	if tokens != nil {
		user := cfg.Username
		if user == "" {
			user = cfg.SenderAddress
		}
		return OAuth2Auth{User: user, Tokens: tokens}
	}
	return nil
}

// Transport owns one SMTP connection: connect, TLS negotiation,
// authentication and message submission. Each concurrent sender owns its own
// Transport; nothing is shared between instances except the token source.
type Transport struct {
	host      string
	port      int
	tlsMode   string
	tlsConfig *tls.Config
	timeout   time.Duration
	localName string

	auth         AuthStrategy
	failSilently bool
	log          *zap.SugaredLogger

	mu     sync.Mutex
	state  State
	conn   net.Conn
	client *smtp.Client
}

// TransportOption customizes a Transport.
type TransportOption func(*Transport)

// WithFailSilently makes Open and Send log failures and report them as a
// boolean signal instead of returning the error.
func WithFailSilently(silent bool) TransportOption {
	return func(t *Transport) { t.failSilently = silent }
}

// WithLocalName sets the hostname sent in the EHLO greeting.
func WithLocalName(name string) TransportOption {
	return func(t *Transport) {
		if name != "" {
			t.localName = name
		}
	}
}

// WithTLSClientConfig overrides the TLS configuration used for implicit TLS
// and the STARTTLS upgrade.
func WithTLSClientConfig(cfg *tls.Config) TransportOption {
	return func(t *Transport) {
		if cfg != nil {
			t.tlsConfig = cfg
		}
	}
}

// NewTransport creates a transport for the given mail server configuration.
// The connection is not established until Open or Send.
func NewTransport(cfg config.Mail, auth AuthStrategy, log *zap.SugaredLogger, opts ...TransportOption) *Transport {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	t := &Transport{
		host:    cfg.Host,
		port:    cfg.Port,
		tlsMode: cfg.TLSMode,
		tlsConfig: &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
		timeout:   timeout,
		localName: "localhost",
		auth:      auth,
		log:       log.Named("smtp"),
		state:     StateClosed,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Host returns the configured SMTP host.
func (t *Transport) Host() string { return t.host }

// Port returns the configured SMTP port.
func (t *Transport) Port() int { return t.port }

// State returns the current connection state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Open establishes the connection and authenticates. It is idempotent: when
// the transport is already open it returns (false, nil) without touching the
// connection. On success it returns (true, nil).
//
// On failure the partially established connection is torn down best-effort
// and the transport returns to the closed state. With failSilently set the
// error is logged and (false, nil) is returned instead.
func (t *Transport) Open(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateOpen {
		return false, nil
	}

	if err := t.open(ctx); err != nil {
		t.teardown()
		if t.failSilently {
			t.log.Errorw("Suppressed SMTP connection failure",
				"host", t.host, "port", t.port, "error", err)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// open runs the connect/TLS/auth sequence. Callers hold the lock and are
// responsible for teardown on error.
func (t *Transport) open(ctx context.Context) error {
	addr := net.JoinHostPort(t.host, strconv.Itoa(t.port))
	dialer := &net.Dialer{Timeout: t.timeout}

	t.state = StateConnecting
	t.log.Debugw("Connecting to SMTP server", "addr", addr, "tlsMode", t.tlsMode)

	var conn net.Conn
	var err error
	if t.tlsMode == config.TLSModeImplicit {
		t.state = StateTLSNegotiating
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, t.tlsConfig)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return &TransportError{Op: "connect", Err: err}
	}
	t.conn = conn

	_ = conn.SetDeadline(time.Now().Add(t.timeout))

	client, err := smtp.NewClient(conn, t.host)
	if err != nil {
		return &TransportError{Op: "handshake", Err: err}
	}
	t.client = client

	if err := client.Hello(t.localName); err != nil {
		return &TransportError{Op: "handshake", Err: err}
	}

	if t.tlsMode == config.TLSModeStartTLS {
		t.state = StateTLSNegotiating
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return &TransportError{Op: "starttls",
				Err: errors.New("server does not advertise STARTTLS")}
		}
		if err := client.StartTLS(t.tlsConfig); err != nil {
			return &TransportError{Op: "starttls", Err: err}
		}
	}

	if t.auth != nil {
		t.state = StateAuthenticating
		if err := t.authenticate(ctx, client); err != nil {
			return err
		}
	}

	t.state = StateOpen
	t.log.Debugw("SMTP connection open", "addr", addr)
	return nil
}

func (t *Transport) authenticate(ctx context.Context, client *smtp.Client) error {
	if ok, _ := client.Extension("AUTH"); !ok {
		return &TransportError{Op: "auth",
			Err: errors.New("server does not advertise AUTH")}
	}

	auth, err := t.auth.ClientAuth(ctx)
	if err != nil {
		// Token acquisition errors pass through unchanged so callers can
		// distinguish them from server-side rejections.
		return err
	}

	if err := client.Auth(auth); err != nil {
		var protoErr *textproto.Error
		if errors.As(err, &protoErr) {
			metrics.MailAuthFailures.WithLabelValues(t.host, t.auth.Mechanism()).Inc()
			return &AuthenticationError{Code: protoErr.Code, Message: protoErr.Msg}
		}
		return &TransportError{Op: "auth", Err: err}
	}
	return nil
}

// Send delivers one message: it opens the connection if needed, submits the
// message and, when this call created the connection, closes it again.
// With failSilently set all failures are logged and swallowed.
func (t *Transport) Send(ctx context.Context, from string, to []string, msg io.WriterTo) error {
	opened, err := t.Open(ctx)
	if err != nil {
		return err
	}
	if t.State() != StateOpen {
		// Open failed silently; nothing to send on.
		return nil
	}

	err = t.transmit(from, to, msg)
	if opened {
		if closeErr := t.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	if err != nil && t.failSilently {
		t.log.Errorw("Suppressed SMTP send failure",
			"host", t.host, "recipients", len(to), "error", err)
		return nil
	}
	return err
}

func (t *Transport) transmit(from string, to []string, msg io.WriterTo) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateOpen || t.client == nil {
		return &TransportError{Op: "send", Err: errors.New("transport is not open")}
	}
	_ = t.conn.SetDeadline(time.Now().Add(t.timeout))

	if err := t.client.Mail(from); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	for _, rcpt := range to {
		if err := t.client.Rcpt(rcpt); err != nil {
			return &TransportError{Op: "send", Err: err}
		}
	}
	w, err := t.client.Data()
	if err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	if _, err := msg.WriteTo(w); err != nil {
		_ = w.Close()
		return &TransportError{Op: "send", Err: err}
	}
	if err := w.Close(); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// Close shuts the connection down, preferring a clean QUIT. Safe to call on
// a closed transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateClosed {
		return nil
	}

	var err error
	if t.client != nil {
		if err = t.client.Quit(); err != nil {
			err = t.client.Close()
		}
	}
	t.client = nil
	t.conn = nil
	t.state = StateClosed
	return err
}

// teardown releases a partially established connection, swallowing
// close-time errors. Callers hold the lock.
func (t *Transport) teardown() {
	if t.client != nil {
		_ = t.client.Close()
	} else if t.conn != nil {
		_ = t.conn.Close()
	}
	t.client = nil
	t.conn = nil
	t.state = StateClosed
}
