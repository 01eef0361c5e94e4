package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Time      = 3
	argon2Memory    = 64 * 1024
	argon2Threads   = 4
	argon2KeyLen    = 32
	saltSize        = 32
	keystoreVersion = 1
)

// ErrInvalidPassphrase is returned when the passphrase fails to open the keystore.
var ErrInvalidPassphrase = errors.New("identity: invalid passphrase or corrupted keystore")

// KeystoreEntry is the on-disk, JSON-encoded sealed private key.
type KeystoreEntry struct {
	Version       int    `json:"version"`
	KDF           string `json:"kdf"`
	Argon2Time    uint32 `json:"argon2_time"`
	Argon2Memory  uint32 `json:"argon2_memory"`
	Argon2Threads uint8  `json:"argon2_threads"`
	Salt          []byte `json:"salt"`
	Nonce         []byte `json:"nonce"`
	Ciphertext    []byte `json:"ciphertext"`
}

// SaveKey seals and writes an Ed25519 private key to keystorePath.
//
// An empty passphrase stores the key unencrypted, with a ".insecure" suffix
// appended to the path — useful for tests and throwaway dev devices only.
func SaveKey(privateKey ed25519.PrivateKey, keystorePath, passphrase string) error {
	if len(privateKey) != ed25519.PrivateKeySize {
		return errors.New("identity: private key must be 64 bytes")
	}

	if err := os.MkdirAll(filepath.Dir(keystorePath), 0700); err != nil {
		return fmt.Errorf("identity: create keystore dir: %w", err)
	}

	var data []byte
	if passphrase == "" {
		data = []byte(privateKey)
		keystorePath += ".insecure"
	} else {
		entry, err := sealKey(privateKey, passphrase)
		if err != nil {
			return fmt.Errorf("identity: seal key: %w", err)
		}
		data, err = json.MarshalIndent(entry, "", "  ")
		if err != nil {
			return fmt.Errorf("identity: marshal keystore entry: %w", err)
		}
	}

	if err := os.WriteFile(keystorePath, data, 0600); err != nil {
		return fmt.Errorf("identity: write keystore file: %w", err)
	}
	return nil
}

// LoadKey reads and unseals an Ed25519 private key from keystorePath.
func LoadKey(keystorePath, passphrase string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(keystorePath)
	if err != nil {
		return nil, fmt.Errorf("identity: read keystore file: %w", err)
	}

	if filepath.Ext(keystorePath) == ".insecure" {
		if len(data) != ed25519.PrivateKeySize {
			return nil, errors.New("identity: invalid unencrypted keystore size")
		}
		return ed25519.PrivateKey(data), nil
	}

	var entry KeystoreEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("identity: unmarshal keystore entry: %w", err)
	}
	return unsealKey(&entry, passphrase)
}

func sealKey(privateKey ed25519.PrivateKey, passphrase string) (*KeystoreEntry, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	derivedKey := argon2.IDKey([]byte(passphrase), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, privateKey, nil)

	return &KeystoreEntry{
		Version:       keystoreVersion,
		KDF:           "argon2id",
		Argon2Time:    argon2Time,
		Argon2Memory:  argon2Memory,
		Argon2Threads: argon2Threads,
		Salt:          salt,
		Nonce:         nonce,
		Ciphertext:    ciphertext,
	}, nil
}

func unsealKey(entry *KeystoreEntry, passphrase string) (ed25519.PrivateKey, error) {
	if entry.Version != keystoreVersion {
		return nil, fmt.Errorf("identity: unsupported keystore version %d", entry.Version)
	}
	if entry.KDF != "argon2id" {
		return nil, fmt.Errorf("identity: unsupported KDF %q", entry.KDF)
	}

	derivedKey := argon2.IDKey([]byte(passphrase), entry.Salt, entry.Argon2Time, entry.Argon2Memory, entry.Argon2Threads, argon2KeyLen)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(entry.Nonce) != gcm.NonceSize() {
		return nil, ErrInvalidPassphrase
	}

	plaintext, err := gcm.Open(nil, entry.Nonce, entry.Ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidPassphrase
	}
	if len(plaintext) != ed25519.PrivateKeySize {
		return nil, errors.New("identity: unsealed key has invalid size")
	}
	return ed25519.PrivateKey(plaintext), nil
}
