// Copyright © 2018 One Concern

package config

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// Key seals and opens stored passwords
type Key [keySize]byte

// NewKey generates a random key
func NewKey() (*Key, error) {
	var k Key
	if _, err := io.ReadFull(rand.Reader, k[:]); err != nil {
		return nil, err
	}
	return &k, nil
}

// ReadKey reads a base64 encoded key from a file
func ReadKey(fs afero.Fs, path string) (*Key, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, ErrInvalidKey.Wrap(err)
	}
	if len(raw) != keySize {
		return nil, ErrInvalidKey.Wrapf("expected %d bytes in %s, got %d", keySize, path, len(raw))
	}
	var k Key
	copy(k[:], raw)
	return &k, nil
}

// WriteKey saves a key to a file, readable by its owner only
func WriteKey(fs afero.Fs, path string, k *Key) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return afero.WriteFile(fs, path, []byte(base64.StdEncoding.EncodeToString(k[:])+"\n"), 0600)
}

// ReadOrCreateKey reads a key file, or creates one when it does not exist yet
func ReadOrCreateKey(fs afero.Fs, path string) (*Key, error) {
	k, err := ReadKey(fs, path)
	if err == nil {
		return k, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	if k, err = NewKey(); err != nil {
		return nil, err
	}
	if err = WriteKey(fs, path, k); err != nil {
		return nil, err
	}
	return k, nil
}

// Seal a secret. The result is base64 encoded and starts with a random nonce.
func Seal(k *Key, secret string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	k2 := [keySize]byte(*k)
	sealed := secretbox.Seal(nonce[:], []byte(secret), &nonce, &k2)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open a secret sealed with the same key
func Open(k *Key, sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrSealedPassword.Wrap(err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrSealedPassword.Wrapf("sealed secret is too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	k2 := [keySize]byte(*k)
	opened, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &k2)
	if !ok {
		return "", ErrSealedPassword.Wrapf("could not open sealed secret with this key")
	}
	return string(opened), nil
}

// SetPassword stores a password sealed with a key, replacing any clear password
func (c *RepositoryConfig) SetPassword(k *Key, password string) error {
	sealed, err := Seal(k, password)
	if err != nil {
		return err
	}
	c.EncryptedPassword = sealed
	c.Password = ""
	return nil
}

// Credentials returns the user and clear password for this repository.
//
// The key is only needed when the password is sealed.
func (c RepositoryConfig) Credentials(k *Key) (string, string, error) {
	if c.EncryptedPassword == "" {
		return c.User, c.Password, nil
	}
	if k == nil {
		return "", "", ErrInvalidKey.Wrapf("a key is required to open the password of %q", c.ID)
	}
	password, err := Open(k, c.EncryptedPassword)
	if err != nil {
		return "", "", err
	}
	return c.User, password, nil
}
