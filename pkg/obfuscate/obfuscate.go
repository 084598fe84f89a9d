// Package obfuscate scrambles payloads with a keystream derived from a
// shared passphrase.
//
// This is NOT encryption. There is no nonce, no authentication, and the
// keystream is the same for every message under one passphrase. It only
// keeps payloads from being readable at a glance on a trusted network.
package obfuscate

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// ErrEmptyPassphrase is reported when obfuscation is enabled but no
// passphrase has been configured.
var ErrEmptyPassphrase = errors.New("obfuscate: enabled without a passphrase")

// Settings is the sender/receiver obfuscation configuration.
type Settings struct {
	Enabled    bool
	Passphrase string
}

// Active reports whether payloads should be transformed.
func (s Settings) Active() bool { return s.Enabled && s.Passphrase != "" }

// Validate rejects an enabled configuration without a passphrase.
func (s Settings) Validate() error {
	if s.Enabled && s.Passphrase == "" {
		return ErrEmptyPassphrase
	}
	return nil
}

// Transform XORs data with the passphrase keystream. It is its own inverse.
// Empty data or an empty passphrase return data unchanged.
func Transform(data []byte, passphrase string) []byte {
	if len(data) == 0 || passphrase == "" {
		return data
	}
	ks := keystream(passphrase, len(data))
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ ks[i%len(ks)]
	}
	return out
}

// keystream chains SHA-256 blocks: k0 = H(p), kn = H(kn-1).
func keystream(passphrase string, n int) []byte {
	block := sha256.Sum256([]byte(passphrase))
	ks := make([]byte, 0, (n/sha256.Size+1)*sha256.Size)
	ks = append(ks, block[:]...)
	for len(ks) < n {
		block = sha256.Sum256(block[:])
		ks = append(ks, block[:]...)
	}
	return ks
}

// TransformText obfuscates text and returns it base64 encoded.
func TransformText(text, passphrase string) string {
	if text == "" || passphrase == "" {
		return text
	}
	return base64.StdEncoding.EncodeToString(Transform([]byte(text), passphrase))
}

// RevertText undoes TransformText. Input that is not valid base64 is
// returned unchanged.
func RevertText(encoded, passphrase string) string {
	if encoded == "" || passphrase == "" {
		return encoded
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return encoded
	}
	return string(Transform(raw, passphrase))
}

// CodesMatch compares a received code with the local one. Both must be set.
func CodesMatch(received, local string) bool {
	return received != "" && local != "" && received == local
}
