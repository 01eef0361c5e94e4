// Package identity manages a device's persistent Ed25519 keypair.
//
// A device's identity is its Ed25519 public key, encoded as the device_id
// used throughout the rest of lansync (spec.md's Peer.DeviceID). The
// private key is sealed at rest with a passphrase-derived key so that the
// keystore file alone does not leak it.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// KeyPair is a device's long-lived signing identity.
type KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// DeviceID returns the base64url-encoded public key, used as the stable
// device identifier across restarts and across the wire.
func (k *KeyPair) DeviceID() string {
	return base64.RawURLEncoding.EncodeToString(k.PublicKey)
}

// Generate creates a fresh Ed25519 keypair.
func Generate() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate keypair: %w", err)
	}
	return &KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// Sign signs data with the device's private key.
func (k *KeyPair) Sign(data []byte) []byte {
	return ed25519.Sign(k.PrivateKey, data)
}

// Verify checks a signature against a device's public key.
func Verify(pub ed25519.PublicKey, data, sig []byte) bool {
	return ed25519.Verify(pub, data, sig)
}

// GetDefaultKeystorePath returns the default keystore directory, following
// the same platform conventions (APPDATA on Windows, XDG_DATA_HOME or
// ~/.local/share elsewhere) as the rest of the lansync ambient stack.
func GetDefaultKeystorePath() string {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, "lansync", "keys")
	}
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "lansync", "keys")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "lansync", "keys")
}

// LoadOrCreate loads the keypair sealed at keystorePath, generating and
// persisting a new one if the file doesn't exist yet.
func LoadOrCreate(keystorePath, passphrase string) (*KeyPair, error) {
	// SaveKey writes an unencrypted key to keystorePath+".insecure".
	path := keystorePath
	if passphrase == "" {
		path += ".insecure"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		kp, err := Generate()
		if err != nil {
			return nil, err
		}
		if err := SaveKey(kp.PrivateKey, keystorePath, passphrase); err != nil {
			return nil, err
		}
		return kp, nil
	}

	priv, err := LoadKey(path, passphrase)
	if err != nil {
		return nil, err
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}
