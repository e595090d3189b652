package graph

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const graphScope = "https://graph.microsoft.com/.default"

// tokenSource hands out cached client-credentials tokens. reset drops the
// cache so the next call fetches a fresh token, used after a 401.
type tokenSource struct {
	cfg        *clientcredentials.Config
	httpClient *http.Client

	mu  sync.Mutex
	src oauth2.TokenSource
}

func newTokenSource(tokenURL, clientID, clientSecret string, httpClient *http.Client) *tokenSource {
	return &tokenSource{
		httpClient: httpClient,
		cfg: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{graphScope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
	}
}

// Token returns a valid access token, fetching one when the cached token
// is missing or expired. It is safe for concurrent use.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	if ts.src == nil {
		// The source outlives this call; keep it off the request context.
		tctx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, ts.httpClient)
		ts.src = ts.cfg.TokenSource(tctx)
	}
	src := ts.src
	ts.mu.Unlock()

	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("failed to acquire token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned an empty access token")
	}
	return tok.AccessToken, nil
}

func (ts *tokenSource) reset() {
	ts.mu.Lock()
	ts.src = nil
	ts.mu.Unlock()
}
