package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
	"gopkg.in/yaml.v3"

	"github.com/usermigrate/migrator/pkg/encoding"
	"github.com/usermigrate/migrator/pkg/logging"
)

// scryptN, scryptR, and scryptP are the cost parameters used to derive a
// secretbox key from an operator-supplied passphrase. These match the
// interactive-login parameters recommended by the golang.org/x/crypto/scrypt
// package documentation.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1

	saltSize = 16
)

// deriveKey turns a passphrase and salt into a secretbox key.
func deriveKey(passphrase string, salt []byte) (*[32]byte, error) {
	raw, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("unable to derive encryption key: %w", err)
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// sealString encrypts plaintext with a key derived from passphrase,
// returning a single base64 token carrying the salt and nonce alongside
// the ciphertext.
func sealString(plaintext, passphrase string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("unable to generate salt: %w", err)
	}
	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return "", err
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("unable to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nil, []byte(plaintext), &nonce, key)
	payload := append(append(salt, nonce[:]...), sealed...)
	return base64.StdEncoding.EncodeToString(payload), nil
}

// openString reverses sealString.
func openString(token, passphrase string) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("malformed encrypted value: %w", err)
	}
	if len(payload) < saltSize+24 {
		return "", fmt.Errorf("malformed encrypted value: too short")
	}
	salt, rest := payload[:saltSize], payload[saltSize:]
	var nonce [24]byte
	copy(nonce[:], rest[:24])
	sealed := rest[24:]

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return "", err
	}
	opened, ok := secretbox.Open(nil, sealed, &nonce, key)
	if !ok {
		return "", fmt.Errorf("unable to decrypt value: wrong passphrase or corrupted data")
	}
	return string(opened), nil
}

// encryptedFile is the on-disk shape of a fully-encrypted configuration
// file, written in place of the plaintext YAML by EncryptFile.
type encryptedFile struct {
	Encrypted string `yaml:"encrypted"`
}

// EncryptFile re-encrypts the whole configuration file at path with
// passphrase, replacing its plaintext contents. This backs the
// `--encrypt-all` CLI flag. Decrypting such a file back into a loadable
// Config is left to an external credential-decryption collaborator; this
// package only ever seals, never opens, a configuration in place.
func EncryptFile(path, passphrase string) error {
	plaintext, err := readRawFile(path)
	if err != nil {
		return err
	}
	token, err := sealString(string(plaintext), passphrase)
	if err != nil {
		return err
	}
	return encoding.MarshalAndSave(path, logging.RootLogger, func() ([]byte, error) {
		return yaml.Marshal(encryptedFile{Encrypted: token})
	})
}

// EncryptCredentialField encrypts only the configuration's credential
// field in place, leaving the rest of the document in plaintext. This
// backs the `--encrypt-pass` CLI flag.
func EncryptCredentialField(path, passphrase string) error {
	configuration := &Config{}
	if err := encoding.LoadAndUnmarshalYAML(path, configuration); err != nil {
		return fmt.Errorf("unable to load configuration: %w", err)
	}
	if configuration.CredentialReference == "" {
		return fmt.Errorf("configuration has no credential_reference to encrypt")
	}
	token, err := sealString(configuration.CredentialReference, passphrase)
	if err != nil {
		return err
	}
	configuration.CredentialReference = token
	return encoding.MarshalAndSave(path, logging.RootLogger, func() ([]byte, error) {
		return yaml.Marshal(configuration)
	})
}

func readRawFile(path string) ([]byte, error) {
	var data []byte
	err := encoding.LoadAndUnmarshal(path, func(raw []byte) error {
		data = raw
		return nil
	})
	return data, err
}
