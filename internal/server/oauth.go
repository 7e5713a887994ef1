package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/desertthunder/crate/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/oauth2"
)

// OAuthResult contains the result of an OAuth authorization flow.
type OAuthResult struct {
	Token *oauth2.Token
	err   error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler handles the loopback redirect of a PKCE authorization code flow.
type OAuthHandler struct {
	flow       *auth.PKCEFlow
	service    string
	resultChan chan OAuthResult
	once       sync.Once

	mu          sync.Mutex
	callbackHit bool
}

// NewOAuthHandler creates a handler that completes flow when the provider redirects back.
func NewOAuthHandler(flow *auth.PKCEFlow, service string) *OAuthHandler {
	return &OAuthHandler{
		flow:       flow,
		service:    service,
		resultChan: make(chan OAuthResult, 1),
	}
}

// CallbackRouter mounts h at /callback.
func CallbackRouter(h *OAuthHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/callback", h.ServeHTTP)
	return r
}

// ServeHTTP handles the OAuth callback request.
//
// Only the first callback is processed. The state check and code exchange are delegated to
// [auth.PKCEFlow.Exchange].
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		err := fmt.Errorf("authorization denied: %s %s", e, q.Get("error_description"))
		h.Send(OAuthResult{err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), exchangeTimeout)
	defer cancel()

	token, err := h.flow.Exchange(ctx, q.Get("state"), q.Get("code"))
	if err != nil {
		h.Send(OAuthResult{err: err})
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	h.Send(OAuthResult{Token: token})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = successPage.Execute(w, h.service)
}

// Send sends the OAuth result through the channel (only once).
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving OAuth flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}

const exchangeTimeout = 30 * time.Second

var successPage = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Authorization Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ Connected to {{.}}</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`))
