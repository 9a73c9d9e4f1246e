package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel/codes"
)

// ErrCallbackTimeout is returned when no authorization code arrives within Options.CallbackTimeout.
var ErrCallbackTimeout = errors.New("timed out waiting for the oauth redirect")

// ObtainSession starts the callback listener, calls prompt with the url the user must
// open, waits for the redirect and exchanges the code it carries for tokens.
func (g Gateway) ObtainSession(ctx context.Context, prompt func(loginUrl string)) (Token, error) {
	ctx, span := tracer.Start(ctx, "ObtainSession")
	defer span.End()

	code, err := g.waitForCode(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to receive authorization code")
		return Token{}, err
	}
	return g.Exchange(ctx, code)
}

func (g Gateway) waitForCode(ctx context.Context, prompt func(loginUrl string)) (string, error) {
	state, err := random.String(16)
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}

	codeChan := make(chan string, 1)
	listener, err := newCallbackListener(g.listenAddr, g.redirect.Path, state, codeChan, g.tel)
	if err != nil {
		return "", err
	}
	serveErrs := make(chan error, 1)
	listener.serve(g.opts.TlsCertFile, g.opts.TlsKeyFile, serveErrs)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		err := listener.shutdown(shutdownCtx)
		if err != nil {
			g.tel.ReportWarning(report_gateway_callback, fmt.Errorf("shutdown listener: %w", err))
		}
	}()

	loginUrl, err := g.LoginUrl(state)
	if err != nil {
		return "", err
	}
	g.tel.ReportDebug("waiting for oauth redirect", listener.Addr().String(), g.redirect.Path)
	prompt(loginUrl)

	var timeout <-chan time.Time
	if g.opts.CallbackTimeout > 0 {
		timer := time.NewTimer(g.opts.CallbackTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case code := <-codeChan:
		return code, nil
	case err := <-serveErrs:
		return "", fmt.Errorf("callback listener: %w", err)
	case <-timeout:
		return "", ErrCallbackTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
