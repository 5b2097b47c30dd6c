package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/pkg/errors"
)

// Login opens a local listener on CallbackPort, waits for the OAuth
// redirect to land on /callback, exchanges the returned code, persists
// the resulting token pair, and returns the new user access token.
// The caller is responsible for opening AuthURL(state) in a browser
// before calling Login -- that step is a CLI concern (spec §12), not
// this package's.
func (a *Authenticator) Login(ctx context.Context, expectedState string) (string, error) {
	port := a.CallbackPort
	if port == 0 {
		port = DefaultCallbackPort
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return "", errors.Wrapf(err, "listen on callback port %d", port)
	}

	type result struct {
		token string
		err   error
	}
	done := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != expectedState {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			done <- result{err: errors.New("callback state mismatch")}
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			done <- result{err: errors.New("callback missing code")}
			return
		}

		exchanged, err := a.exchangeCode(r.Context(), code)
		if err != nil {
			http.Error(w, "token exchange failed", http.StatusInternalServerError)
			done <- result{err: err}
			return
		}
		if err := a.saveTokens(exchanged.AccessToken, exchanged.RefreshToken); err != nil {
			http.Error(w, "failed to persist token", http.StatusInternalServerError)
			done <- result{err: err}
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<h1>Login successful</h1><p>You can close this window and return to the terminal.</p>")
		done <- result{token: exchanged.AccessToken}
	})

	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)
	defer srv.Close()

	select {
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "login cancelled waiting for callback")
	case res := <-done:
		if res.err != nil {
			return "", errors.Wrap(res.err, "oauth callback")
		}
		return res.token, nil
	}
}
