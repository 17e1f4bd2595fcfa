package fair

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	defaultService = "lotto-desk"
	vaultAccount   = "fair"

	partServerSeed = "serverseed"
	partNonce      = "nonce"
)

// Vault keeps the active server seed and nonce in the OS keychain, falling
// back to a 0600 JSON file where no keychain is available.
type Vault struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

func NewVault(serviceName, fallbackPath string) *Vault {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = defaultService
	}
	return &Vault{
		service:      serviceName,
		fallbackPath: fallbackPath,
	}
}

// ServerSeed returns the active seed, generating and storing one if none exists.
func (v *Vault) ServerSeed() (string, error) {
	seed, err := v.get(partServerSeed)
	if err == nil && seed != "" {
		return seed, nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return "", err
	}
	seed, err = newServerSeed()
	if err != nil {
		return "", err
	}
	if err := v.set(partServerSeed, seed); err != nil {
		return "", err
	}
	return seed, nil
}

// Rotate replaces the server seed, resets the nonce and returns the old seed
// so past draws can be verified.
func (v *Vault) Rotate() (string, error) {
	previous, err := v.ServerSeed()
	if err != nil {
		return "", err
	}
	next, err := newServerSeed()
	if err != nil {
		return "", err
	}
	if err := v.set(partServerSeed, next); err != nil {
		return "", err
	}
	if err := v.SaveNonce(0); err != nil {
		return "", err
	}
	return previous, nil
}

// Nonce returns the last persisted nonce, zero when none was stored.
func (v *Vault) Nonce() (uint64, error) {
	raw, err := v.get(partNonce)
	if errors.Is(err, keyring.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n uint64
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return 0, fmt.Errorf("fair: stored nonce %q: %w", raw, err)
	}
	return n, nil
}

func (v *Vault) SaveNonce(n uint64) error {
	return v.set(partNonce, fmt.Sprintf("%d", n))
}

func (v *Vault) key(part string) string {
	return fmt.Sprintf("%s/%s", vaultAccount, part)
}

func (v *Vault) set(part, value string) error {
	if err := keyring.Set(v.service, v.key(part), value); err == nil {
		return nil
	} else if !isKeyringUnavailable(err) {
		return fmt.Errorf("fair: keyring set %s: %w", part, err)
	}
	return v.setFallback(part, value)
}

func (v *Vault) get(part string) (string, error) {
	val, err := keyring.Get(v.service, v.key(part))
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("fair: keyring get %s: %w", part, err)
	}

	fallback, ferr := v.getFallback(part)
	if ferr == nil {
		return fallback, nil
	}
	if errors.Is(err, keyring.ErrNotFound) || errors.Is(ferr, keyring.ErrNotFound) {
		return "", keyring.ErrNotFound
	}
	return "", ferr
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

func (v *Vault) setFallback(part, value string) error {
	if strings.TrimSpace(v.fallbackPath) == "" {
		return fmt.Errorf("fair: keyring unavailable and no fallback path configured")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.readFallbackUnlocked()
	if err != nil {
		return err
	}
	data[part] = value
	return v.writeFallbackUnlocked(data)
}

func (v *Vault) getFallback(part string) (string, error) {
	if strings.TrimSpace(v.fallbackPath) == "" {
		return "", fmt.Errorf("fair: fallback path not configured")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.readFallbackUnlocked()
	if err != nil {
		return "", err
	}
	val, ok := data[part]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return val, nil
}

func (v *Vault) readFallbackUnlocked() (map[string]string, error) {
	out := map[string]string{}
	raw, err := os.ReadFile(v.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("fair: read fallback secrets: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("fair: decode fallback secrets: %w", err)
	}
	return out, nil
}

func (v *Vault) writeFallbackUnlocked(data map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(v.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("fair: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("fair: encode fallback secrets: %w", err)
	}
	if err := os.WriteFile(v.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("fair: write fallback secrets: %w", err)
	}
	return nil
}

func newServerSeed() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("fair: generate server seed: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
