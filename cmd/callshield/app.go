package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/fennsaji/call-shield-sub001/internal/adapter/devicestore"
	"github.com/fennsaji/call-shield-sub001/internal/adapter/notifier"
	"github.com/fennsaji/call-shield-sub001/internal/adapter/remote"
	"github.com/fennsaji/call-shield-sub001/internal/behavior"
	"github.com/fennsaji/call-shield-sub001/internal/breaker"
	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
	"github.com/fennsaji/call-shield-sub001/internal/lookup"
	"github.com/fennsaji/call-shield-sub001/internal/screening"
)

var errNoBackend = errors.New("no backend configured (set API_BASE_URL and DEVICE_TOKEN)")

// deviceApp holds the collaborators a command needs for one invocation.
type deviceApp struct {
	store     *devicestore.Store
	hasher    *domain.Hasher
	remote    *remote.Client
	tokenHash string
}

func openApp(ctx context.Context) (*deviceApp, error) {
	store, err := devicestore.Open(ctx, deviceCfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}

	app := &deviceApp{
		store:  store,
		hasher: domain.NewHasher(deviceCfg.HashSalt),
	}

	if deviceCfg.APIBaseURL != "" && deviceCfg.DeviceToken != "" {
		app.tokenHash = hashDeviceToken(deviceCfg.DeviceToken)

		rc := remote.DefaultConfig(deviceCfg.APIBaseURL, app.tokenHash)
		rc.LookupTimeout = deviceCfg.RemoteTimeout
		app.remote = remote.New(rc, log)
	}
	return app, nil
}

func (a *deviceApp) Close() {
	if err := a.store.Close(); err != nil {
		log.Error("failed to close device store", "error", err)
	}
}

func (a *deviceApp) backend() (*remote.Client, error) {
	if a.remote == nil {
		return nil, errNoBackend
	}
	return a.remote, nil
}

func (a *deviceApp) analyzer() *behavior.Analyzer {
	return behavior.NewAnalyzer(a.store, behavior.DefaultThresholds(), log)
}

// orchestrator assembles the screening pipeline. Close it before exit so
// history writes complete.
func (a *deviceApp) orchestrator() (*screening.Orchestrator, error) {
	contacts := devicestore.NewContactSet()
	if deviceCfg.ContactsFile != "" {
		loaded, err := devicestore.LoadContacts(deviceCfg.ContactsFile, a.hasher)
		if err != nil {
			return nil, err
		}
		contacts = loaded
	}

	var client ports.ReputationClient
	if a.remote != nil {
		client = a.remote
	}

	cb := breaker.New(breaker.Config{
		Name:             "reputation_lookup",
		WindowSize:       deviceCfg.BreakerWindow,
		FailureThreshold: deviceCfg.BreakerFailureThreshold,
		ReopenAfter:      deviceCfg.BreakerReopenAfter,
	})

	cfg := screening.DefaultConfig()
	cfg.Timeout = deviceCfg.ScreenTimeout

	return screening.NewOrchestrator(screening.Deps{
		Hasher:      a.hasher,
		Whitelist:   a.store.Whitelist(),
		Blocklist:   a.store.Blocklist(),
		Prefixes:    a.store,
		Preferences: a.store,
		Contacts:    contacts,
		Reputation:  lookup.NewRepository(a.store, client, cb, log),
		Behavior:    a.analyzer(),
		History:     a.store,
		Notifier:    notifier.NewLogNotifier(log),
	}, cfg, log), nil
}

// hashDeviceToken derives the 64-hex device identifier the backend expects.
func hashDeviceToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
