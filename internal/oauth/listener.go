package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"raremblems/internal/telemetry"
	"time"

	"github.com/go-chi/chi/v5"
)

const callbackAcknowledgement = "You can close this tab now."

// callbackListener serves the redirect route and hands the first authorization
// code it sees to codes. Every other path is a 404.
type callbackListener struct {
	server   *http.Server
	listener net.Listener
	state    string
	codes    chan<- string
	tel      telemetry.API
}

// newCallbackListener binds addr right away so the port is taken before the user is
// sent to the authorize page. codes should have a capacity of 1, a code that cannot
// be delivered immediately is dropped.
func newCallbackListener(addr, route, state string, codes chan<- string, tel telemetry.API) (*callbackListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	l := &callbackListener{
		listener: ln,
		state:    state,
		codes:    codes,
		tel:      tel,
	}

	router := chi.NewRouter()
	router.Get(route, l.handleCallback)

	l.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: time.Second * 10,
	}
	return l, nil
}

func (l *callbackListener) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if l.state != "" && query.Get("state") != l.state {
		l.tel.ReportWarning(report_gateway_callback, fmt.Errorf("state mismatch"))
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(callbackAcknowledgement))

	code := query.Get("code")
	if code == "" {
		l.tel.ReportWarning(report_gateway_callback, fmt.Errorf("redirect without code"))
		return
	}
	select {
	case l.codes <- code:
	default:
		l.tel.ReportDebug("dropping extra authorization code")
	}
}

func (l *callbackListener) Addr() net.Addr {
	return l.listener.Addr()
}

// serve runs the server in the background, an unexpected server error is sent to errs.
func (l *callbackListener) serve(certFile, keyFile string, errs chan<- error) {
	go func() {
		var err error
		if certFile != "" && keyFile != "" {
			err = l.server.ServeTLS(l.listener, certFile, keyFile)
		} else {
			err = l.server.Serve(l.listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
}

func (l *callbackListener) shutdown(ctx context.Context) error {
	return l.server.Shutdown(ctx)
}
