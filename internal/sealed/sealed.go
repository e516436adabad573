// Package sealed protects the directory API client credentials at rest.
// The key:secret pair is age-encrypted to a passphrase (scrypt) and
// stored base64-armored in the config file; the operator supplies the
// passphrase at startup to unseal it.
package sealed

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"filippo.io/age"
)

// Seal encrypts plaintext to the passphrase and returns standard base64
// ciphertext suitable for a config-file string field.
func Seal(plaintext []byte, passphrase string) (string, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return "", fmt.Errorf("build scrypt recipient: %w", err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return "", fmt.Errorf("start encryption: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return "", fmt.Errorf("write plaintext: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize encryption: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Unseal decrypts base64 ciphertext produced by Seal. A wrong passphrase
// surfaces as a decryption error; callers should treat any failure as
// fatal at startup.
func Unseal(armored string, passphrase string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(armored)
	if err != nil {
		return nil, fmt.Errorf("decode sealed value: %w", err)
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("build scrypt identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypt sealed value: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read decrypted value: %w", err)
	}
	return plaintext, nil
}
