package queueaccess

import (
	"fmt"

	"docket/internal/api"
	"docket/internal/config"
	"docket/internal/queue"
)

// Session bundles a queue access handle with its cleanup function.
type Session struct {
	Access Access
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback prefers API-backed access when the daemon answers a health
// probe, then falls back to opening the queue database directly. The probe
// returns nil when no API endpoint is configured or the daemon is down.
func OpenWithFallback(
	cfg *config.Config,
	probe func() (*api.Client, error),
	openStore func() (*queue.Store, error),
) (Session, error) {
	if probe != nil {
		if client, err := probe(); err == nil && client != nil {
			return Session{Access: NewAPIAccess(client)}, nil
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open queue store: no store opener configured")
	}
	store, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open queue store: %w", err)
	}
	return Session{
		Access: NewStoreAccess(store, cfg),
		close:  store.Close,
	}, nil
}
