package crypto

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
)

// AgeDecryptor decrypts age-encrypted backup archives.
type AgeDecryptor struct {
	identities []age.Identity
}

// NewAgeDecryptor creates a decryptor from a private key file path.
func NewAgeDecryptor(privateKeyPath string) (*AgeDecryptor, error) {
	keyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read age private key from %s: %w", privateKeyPath, err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(keyData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse age identities: %w", err)
	}

	if len(identities) == 0 {
		return nil, fmt.Errorf("no age identities found in %s", privateKeyPath)
	}

	return &AgeDecryptor{identities: identities}, nil
}

// Decrypt wraps the reader with age decryption.
// The returned reader must be fully consumed.
func (d *AgeDecryptor) Decrypt(r io.Reader) (io.Reader, error) {
	decrypted, err := age.Decrypt(r, d.identities...)
	if err != nil {
		return nil, fmt.Errorf("age decryption failed: %w", err)
	}
	return decrypted, nil
}
