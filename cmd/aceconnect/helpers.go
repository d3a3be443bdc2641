package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	aceconnect "github.com/Zainktk/ace-connect-web"
)

// newClient builds a client whose session token lives in
// ~/.aceconnect/session.toml.
func newClient() (*aceconnect.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	path, err := sessionPath()
	if err != nil {
		return nil, err
	}
	return aceconnect.NewClient(
		aceconnect.WithBaseURL(resolveBaseURL(cfg)),
		aceconnect.WithLogger(logger),
		aceconnect.WithTokenStore(aceconnect.NewFileTokenStore(path)),
		aceconnect.WithAuthFailureHandler(func(err error) {
			fmt.Fprintln(os.Stderr, "Session expired. Run 'aceconnect login' again.")
		}),
	), nil
}

// getSessionClient returns a client with the persisted session restored.
func getSessionClient(ctx context.Context) (*aceconnect.Client, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	sess, err := client.Auth.Restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	if sess == nil {
		return nil, fmt.Errorf("not logged in; run 'aceconnect login <email>' first")
	}
	return client, nil
}

func cmdContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
