// Package xero connects the app to a Xero organisation with the OAuth 2.0
// authorization code flow and reads invoices from the accounting API.
package xero

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	AccessTokenTTL  = 30 * time.Minute
	RefreshTokenTTL = 60 * 24 * time.Hour
	stateTTL        = 10 * time.Minute
)

var (
	// ErrAuthentication wraps every failure of the OAuth flow and of the API
	// calls made with its tokens.
	ErrAuthentication = errors.New("error occurred during authentication")
	// ErrTenantSelection means several organisations are connected and the
	// user has to pick one.
	ErrTenantSelection = errors.New("more than one Xero organisation is connected")
	// ErrNotConnected means no usable token is stored and the user has to log
	// in again.
	ErrNotConnected = errors.New("no usable refresh token, log in to Xero first")

	errStateMismatch = errors.New("oauth state does not match")
)

type Config struct {
	ClientID       string
	ClientSecret   string
	RedirectURL    string
	Scopes         []string
	AuthorizeURL   string
	TokenURL       string
	APIBaseURL     string
	ConnectionsURL string
	CookieSecret   []byte
	SecureCookie   bool
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithClock replaces time.Now for cookie expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.jar.now = now
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type Client struct {
	config Config
	oauth  *oauth2.Config
	jar    *cookieJar
	http   *http.Client
	logger *zap.Logger
}

func New(config Config, opts ...Option) *Client {
	c := &Client{
		config: config,
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       config.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.AuthorizeURL,
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		jar: &cookieJar{
			secret: config.CookieSecret,
			secure: config.SecureCookie,
			now:    time.Now,
		},
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ParseScopes splits a space or comma separated scope list.
func ParseScopes(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n'
	})
}

type AuthResult struct {
	Connected bool
	// LoginURL is set when the user still has to log in.
	LoginURL string
}

// Authorize runs one step of the login flow for the request. A stored
// refresh token means the user is connected. A callback carrying a code is
// checked against the state cookie and exchanged for tokens. Anything else
// starts a new login.
func (c *Client) Authorize(w http.ResponseWriter, r *http.Request) (AuthResult, error) {
	if _, ok := c.jar.get(r, cookieRefresh); ok {
		return AuthResult{Connected: true}, nil
	}

	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		return AuthResult{}, c.fail("authorize", fmt.Errorf("provider returned %s", reason))
	}

	code := q.Get("code")
	if code == "" {
		state := uuid.NewString()
		if err := c.jar.set(w, cookieState, state, stateTTL); err != nil {
			return AuthResult{}, c.fail("store state", err)
		}
		url := c.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "login"))
		return AuthResult{LoginURL: url}, nil
	}

	expected, ok := c.jar.get(r, cookieState)
	if !ok || expected != q.Get("state") {
		return AuthResult{}, c.fail("verify state", errStateMismatch)
	}
	c.jar.clear(w, cookieState)

	token, err := c.oauth.Exchange(c.context(r.Context()), code)
	if err != nil {
		return AuthResult{}, c.fail("exchange code", err)
	}
	if err := c.saveToken(w, token); err != nil {
		return AuthResult{}, c.fail("store tokens", err)
	}

	c.logger.Info("xero login completed")
	return AuthResult{Connected: true}, nil
}

// AccessToken returns a usable access token, refreshing it when the stored
// one has expired.
func (c *Client) AccessToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if access, ok := c.jar.get(r, cookieAccess); ok {
		return access, nil
	}

	refresh, ok := c.jar.get(r, cookieRefresh)
	if !ok {
		return "", c.fail("refresh", ErrNotConnected)
	}

	source := c.oauth.TokenSource(c.context(r.Context()), &oauth2.Token{RefreshToken: refresh})
	token, err := source.Token()
	if err != nil {
		return "", c.fail("refresh", fmt.Errorf("%w: %w", ErrNotConnected, err))
	}
	if err := c.saveToken(w, token); err != nil {
		return "", c.fail("store tokens", err)
	}

	c.logger.Debug("xero access token refreshed")
	return token.AccessToken, nil
}

// Logout forgets every stored token and the chosen tenant.
func (c *Client) Logout(w http.ResponseWriter) {
	for _, name := range []string{cookieAccess, cookieRefresh, cookieTenant, cookieState} {
		c.jar.clear(w, name)
	}
}

func (c *Client) saveToken(w http.ResponseWriter, token *oauth2.Token) error {
	if token.AccessToken == "" || token.RefreshToken == "" {
		return errors.New("token response is missing a token")
	}
	if err := c.jar.set(w, cookieAccess, token.AccessToken, AccessTokenTTL); err != nil {
		return err
	}
	return c.jar.set(w, cookieRefresh, token.RefreshToken, RefreshTokenTTL)
}

func (c *Client) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

func (c *Client) fail(step string, err error) error {
	c.logger.Warn("xero request failed", zap.String("step", step), zap.Error(err))
	return fmt.Errorf("%w: %s: %w", ErrAuthentication, step, err)
}
