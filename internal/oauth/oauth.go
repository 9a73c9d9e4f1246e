package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"raremblems/internal/assert"
	"raremblems/internal/telemetry"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("raremblems.internal.oauth")

// ErrAuthFailure is returned when the token endpoint does not hand out an access token.
var ErrAuthFailure = errors.New("oauth failed, check client id/secret and redirect url")

const (
	report_gateway_exchange = "gateway.exchange"
	report_gateway_refresh  = "gateway.refresh"
	report_gateway_callback = "gateway.callback"
)

type Token struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	TokenType        string `json:"token_type,omitempty"`
	ExpiresIn        int    `json:"expires_in,omitempty"`
	RefreshExpiresIn int    `json:"refresh_expires_in,omitempty"`
	MembershipId     string `json:"membership_id,omitempty"`
}

type Options struct {
	ClientId     string
	ClientSecret string
	AuthorizeUrl string
	TokenUrl     string
	// RedirectUri must point at this machine, the listener binds to its host:port
	// and serves its path.
	RedirectUri string
	// CallbackTimeout bounds the wait for the browser redirect, 0 waits until
	// the context is done.
	CallbackTimeout time.Duration
	// when both are set the callback listener serves TLS.
	TlsCertFile string
	TlsKeyFile  string
}

// Gateway runs the authorization code flow against a local loopback redirect.
type Gateway struct {
	opts       Options
	redirect   *url.URL
	listenAddr string
	http       *resty.Client
	tel        telemetry.API
}

func NewGateway(opts Options, tel telemetry.API) (Gateway, error) {
	assert.NotNil(tel, "telemetry")

	tel = telemetry.NewScopedAPI("oauth", tel)

	redirect, err := url.Parse(opts.RedirectUri)
	if err != nil {
		return Gateway{}, fmt.Errorf("parse redirect uri: %w", err)
	}
	if redirect.Path == "" {
		redirect.Path = "/"
	}

	listenAddr := redirect.Host
	if redirect.Port() == "" {
		port := "80"
		if redirect.Scheme == "https" {
			port = "443"
		}
		listenAddr = net.JoinHostPort(redirect.Hostname(), port)
	}

	client := resty.New()
	client.SetTimeout(time.Second * 30)
	telemetry.InstrumentResty(client, tel)

	return Gateway{
		opts:       opts,
		redirect:   redirect,
		listenAddr: listenAddr,
		http:       client,
		tel:        tel,
	}, nil
}

// LoginUrl is the url the user opens to authorize the application.
func (g Gateway) LoginUrl(state string) (string, error) {
	endpoint, err := url.Parse(g.opts.AuthorizeUrl)
	if err != nil {
		return "", err
	}

	values := endpoint.Query()
	values.Set("client_id", g.opts.ClientId)
	values.Set("response_type", "code")
	values.Set("redirect_uri", g.opts.RedirectUri)
	if state != "" {
		values.Set("state", state)
	}
	endpoint.RawQuery = values.Encode()

	return endpoint.String(), nil
}

func (g Gateway) requestToken(ctx context.Context, reportId string, form url.Values) (Token, error) {
	res, err := g.http.R().
		SetContext(ctx).
		SetBody(form.Encode()).
		SetHeader("content-type", "application/x-www-form-urlencoded").
		Post(g.opts.TokenUrl)
	if err != nil {
		g.tel.ReportBroken(reportId, fmt.Errorf("fetch: %w", err))
		return Token{}, err
	}
	if res.IsError() {
		g.tel.ReportBroken(reportId, fmt.Errorf("status: %s", res.Status()), res.String())
		return Token{}, fmt.Errorf("%w: token endpoint returned %s", ErrAuthFailure, res.Status())
	}

	var token Token
	err = json.Unmarshal(res.Body(), &token)
	if err != nil {
		g.tel.ReportBroken(reportId, fmt.Errorf("unmarshal: %w", err))
		return Token{}, fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}
	if token.AccessToken == "" {
		g.tel.ReportBroken(reportId, fmt.Errorf("no access token in response"))
		return Token{}, ErrAuthFailure
	}
	return token, nil
}

// Exchange trades an authorization code for tokens.
func (g Gateway) Exchange(ctx context.Context, code string) (Token, error) {
	ctx, span := tracer.Start(ctx, "Exchange")
	defer span.End()

	form := url.Values{}
	form.Set("client_id", g.opts.ClientId)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_secret", g.opts.ClientSecret)
	form.Set("redirect_uri", g.opts.RedirectUri)

	token, err := g.requestToken(ctx, report_gateway_exchange, form)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to exchange authorization code")
		return Token{}, err
	}
	return token, nil
}

// RefreshSession trades a refresh token for a new access token. When the response
// carries no refresh token the original one is kept.
func (g Gateway) RefreshSession(ctx context.Context, refreshToken string) (Token, error) {
	ctx, span := tracer.Start(ctx, "RefreshSession")
	defer span.End()

	form := url.Values{}
	form.Set("client_id", g.opts.ClientId)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_secret", g.opts.ClientSecret)

	token, err := g.requestToken(ctx, report_gateway_refresh, form)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to refresh token")
		return Token{}, err
	}
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	span.SetAttributes(attribute.Int("expires_in", token.ExpiresIn))
	return token, nil
}
