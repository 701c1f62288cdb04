package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/sheets/v4"
)

const defaultCallbackAddr = "localhost:8080"

// AuthConfig describes the interactive OAuth2 flow used to obtain a refresh token.
type AuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenFile    string
	CallbackAddr string
	Timeout      time.Duration
}

func oauthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       []string{sheets.SpreadsheetsScope},
	}
}

// Authorize returns a token for the configured client. A saved token is reused and
// refreshed when expired; otherwise the consent URL is written to out and a local
// callback server waits for the authorization code.
func Authorize(ctx context.Context, cfg AuthConfig, out io.Writer) (*oauth2.Token, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("client ID and client secret are required")
	}
	if cfg.CallbackAddr == "" {
		cfg.CallbackAddr = defaultCallbackAddr
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}

	if cfg.TokenFile != "" {
		if token, err := LoadToken(cfg.TokenFile); err == nil {
			slog.Info("loaded saved token", "file", cfg.TokenFile)
			return refreshIfNeeded(ctx, cfg, token)
		}
	}

	token, err := authorizeInteractive(ctx, cfg, out)
	if err != nil {
		return nil, err
	}
	if cfg.TokenFile != "" {
		if err := saveToken(cfg.TokenFile, token); err != nil {
			slog.Warn("failed to save token", "file", cfg.TokenFile, "error", err)
		}
	}
	return token, nil
}

func authorizeInteractive(ctx context.Context, cfg AuthConfig, out io.Writer) (*oauth2.Token, error) {
	conf := oauthConfig(cfg.ClientID, cfg.ClientSecret, "http://"+cfg.CallbackAddr+"/callback")

	codes := make(chan string, 1)
	errs := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errs <- errors.New("no authorization code received")
			http.Error(w, "Authentication failed: no authorization code received.", http.StatusBadRequest)
			return
		}
		codes <- code
		_, _ = fmt.Fprintln(w, "Authentication complete. You can close this window.")
	})

	server := &http.Server{Addr: cfg.CallbackAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("failed to start callback server: %w", err)
		}
	}()
	defer func() {
		if err := server.Shutdown(context.Background()); err != nil {
			slog.Warn("error shutting down callback server", "error", err)
		}
	}()

	authURL := conf.AuthCodeURL("finhelper", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	_, _ = fmt.Fprintf(out, "Open this URL to authorize Google Sheets access:\n\n  %s\n\n", authURL)

	var code string
	select {
	case code = <-codes:
	case err := <-errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(cfg.Timeout):
		return nil, fmt.Errorf("no authorization received within %s", cfg.Timeout)
	}

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}

func refreshIfNeeded(ctx context.Context, cfg AuthConfig, token *oauth2.Token) (*oauth2.Token, error) {
	if token.Valid() {
		return token, nil
	}

	fresh, err := oauthConfig(cfg.ClientID, cfg.ClientSecret, "").TokenSource(ctx, token).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	if cfg.TokenFile != "" {
		if err := saveToken(cfg.TokenFile, fresh); err != nil {
			slog.Warn("failed to save refreshed token", "error", err)
		}
	}
	return fresh, nil
}

// LoadToken reads a token saved by Authorize.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, err
	}
	token := &oauth2.Token{}
	if err := json.Unmarshal(data, token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return token, nil
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
