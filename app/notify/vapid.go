package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	webpush "github.com/SherClockHolmes/webpush-go"
	"gopkg.in/yaml.v3"
)

type VAPIDKeys struct {
	PublicKey  string `yaml:"public_key"`
	PrivateKey string `yaml:"private_key"`
}

// LoadOrCreateVAPIDKeys reads the key pair from path, generating and storing
// a new one on first start. Changing keys invalidates every subscription.
func LoadOrCreateVAPIDKeys(path string) (*VAPIDKeys, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		var keys VAPIDKeys
		if err := yaml.Unmarshal(data, &keys); err != nil {
			return nil, fmt.Errorf("failed to parse VAPID keys: %w", err)
		}
		if keys.PublicKey == "" || keys.PrivateKey == "" {
			return nil, fmt.Errorf("VAPID key file %s is incomplete", path)
		}
		return &keys, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read VAPID keys: %w", err)
	}

	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return nil, fmt.Errorf("failed to generate VAPID keys: %w", err)
	}
	keys := &VAPIDKeys{PublicKey: publicKey, PrivateKey: privateKey}

	data, err = yaml.Marshal(keys)
	if err != nil {
		return nil, fmt.Errorf("failed to encode VAPID keys: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create VAPID key directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write VAPID keys: %w", err)
	}

	slog.Info("Generated new VAPID key pair", "path", path)
	return keys, nil
}
