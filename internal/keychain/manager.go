// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain stores precinct's secrets, the language-model API key and
// a default database DSN, in the OS credential store: macOS Keychain,
// Windows Credential Manager, or the Secret Service / KWallet / pass on Linux.
// Nothing secret is ever written to the config file.
package keychain

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "precinct"

// Keys used for storing secrets in the OS keychain.
const (
	KeyAPIKey = "llm_api_key"
	KeyDBDSN  = "db_dsn"
)

// ErrNotFound is returned when no value is stored under a key.
var ErrNotFound = errors.New("not found in keychain")

// Global keychain manager instance
var (
	globalManager *Manager
	mu            sync.Mutex
)

// Manager provides thread-safe access to one keyring.
type Manager struct {
	mu   sync.RWMutex
	ring keyring.Keyring
}

// New wraps an already opened keyring. Tests use keyring.NewArrayKeyring.
func New(ring keyring.Keyring) *Manager {
	return &Manager{ring: ring}
}

// GetManager returns the process-wide manager over the OS keyring, opening
// it on first use. A failed open is retried on the next call.
func GetManager() (*Manager, error) {
	mu.Lock()
	defer mu.Unlock()

	if globalManager != nil {
		return globalManager, nil
	}
	ring, err := openRing()
	if err != nil {
		return nil, err
	}
	globalManager = New(ring)
	return globalManager, nil
}

// openRing opens the OS keyring using native platform backends only.
// There is no encrypted-file fallback.
func openRing() (keyring.Keyring, error) {
	var allowed []keyring.BackendType
	switch runtime.GOOS {
	case "darwin":
		allowed = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		allowed = []keyring.BackendType{keyring.WinCredBackend}
	case "linux", "freebsd", "openbsd":
		allowed = []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.PassBackend}
	default:
		return nil, fmt.Errorf("secure storage not supported on %s", runtime.GOOS)
	}

	cfg := keyring.Config{
		ServiceName:             ServiceName,
		AllowedBackends:         allowed,
		PassPrefix:              ServiceName,
		WinCredPrefix:           ServiceName,
		LibSecretCollectionName: "login",
		KWalletAppID:            ServiceName,
		KWalletFolder:           ServiceName,
	}
	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open OS keychain: %w", err)
	}
	return ring, nil
}

func (m *Manager) set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: ServiceName + " " + key})
}

func (m *Manager) get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, err := m.ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	v := strings.TrimSpace(string(it.Data))
	if v == "" {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Manager) remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return err
	}
	return nil
}

// SaveAPIKey stores the language-model API key.
func (m *Manager) SaveAPIKey(key string) error { return m.set(KeyAPIKey, key) }

// LoadAPIKey returns the stored API key or ErrNotFound.
func (m *Manager) LoadAPIKey() (string, error) { return m.get(KeyAPIKey) }

// ClearAPIKey removes the stored API key.
func (m *Manager) ClearAPIKey() error { return m.remove(KeyAPIKey) }

// SaveDBDSN stores the database DSN in the keychain.
func (m *Manager) SaveDBDSN(dsn string) error { return m.set(KeyDBDSN, dsn) }

// LoadDBDSN returns the stored DSN or ErrNotFound.
func (m *Manager) LoadDBDSN() (string, error) { return m.get(KeyDBDSN) }

// ClearDB removes the stored DSN.
func (m *Manager) ClearDB() error { return m.remove(KeyDBDSN) }

// ClearAll removes every secret precinct stores.
func (m *Manager) ClearAll() error {
	return errors.Join(m.ClearAPIKey(), m.ClearDB())
}
