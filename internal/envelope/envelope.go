// Package envelope seals serialized state into a base64 token using a
// symmetric AES cipher and opens such tokens again.
//
// Algorithms are named the way OpenSSL names them ("aes-256-gcm",
// "aes-128-cbc", ...). Any name containing "gcm" selects authenticated mode;
// the 16 byte tag is appended to the ciphertext before base64 encoding.
package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/GabrielNunesIT/emitterkit/internal/model"
)

// TagSize is the GCM authentication tag length embedded in sealed tokens.
const TagSize = 16

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrKeySize              = errors.New("key size does not match algorithm")
	ErrIVSize               = errors.New("invalid iv size")
	ErrCiphertext           = errors.New("malformed ciphertext")
)

type mode int

const (
	modeCBC mode = iota
	modeGCM
)

type params struct {
	mode mode
	key  []byte
	iv   []byte
	tag  []byte
}

// Seal encrypts plaintext and returns a base64 token.
func Seal(plaintext string, fs model.FormatSettings) (string, error) {
	p, err := parse(fs)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(p.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	var out []byte
	switch p.mode {
	case modeGCM:
		gcm, err := cipher.NewGCMWithNonceSize(block, len(p.iv))
		if err != nil {
			return "", fmt.Errorf("creating gcm: %w", err)
		}
		out = gcm.Seal(nil, p.iv, []byte(plaintext), nil)
	default:
		if len(p.iv) != aes.BlockSize {
			return "", fmt.Errorf("%w: cbc needs %d bytes, got %d", ErrIVSize, aes.BlockSize, len(p.iv))
		}
		padded := pad([]byte(plaintext), aes.BlockSize)
		out = make([]byte, len(padded))
		cipher.NewCBCEncrypter(block, p.iv).CryptBlocks(out, padded)
	}

	return base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a token produced by Seal. The embedded tag is tried first;
// fs.Tag, when set, authenticates tokens that were sealed without one.
func Open(token string, fs model.FormatSettings) (string, error) {
	p, err := parse(fs)
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}

	block, err := aes.NewCipher(p.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	switch p.mode {
	case modeGCM:
		gcm, err := cipher.NewGCMWithNonceSize(block, len(p.iv))
		if err != nil {
			return "", fmt.Errorf("creating gcm: %w", err)
		}
		var plain []byte
		err = errors.New("token shorter than tag")
		if len(data) >= TagSize {
			plain, err = gcm.Open(nil, p.iv, data, nil)
		}
		if err != nil && len(p.tag) > 0 {
			detached := append(bytes.Clone(data), p.tag...)
			plain, err = gcm.Open(nil, p.iv, detached, nil)
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
		}
		return string(plain), nil
	default:
		if len(p.iv) != aes.BlockSize {
			return "", fmt.Errorf("%w: cbc needs %d bytes, got %d", ErrIVSize, aes.BlockSize, len(p.iv))
		}
		if len(data) == 0 || len(data)%aes.BlockSize != 0 {
			return "", fmt.Errorf("%w: not a multiple of the block size", ErrCiphertext)
		}
		plain := make([]byte, len(data))
		cipher.NewCBCDecrypter(block, p.iv).CryptBlocks(plain, data)
		plain, err = unpad(plain, aes.BlockSize)
		if err != nil {
			return "", err
		}
		return string(plain), nil
	}
}

func parse(fs model.FormatSettings) (params, error) {
	alg := strings.ToLower(fs.Algorithm)
	var p params

	var bits int
	switch {
	case strings.HasPrefix(alg, "aes-128"), strings.HasPrefix(alg, "aes128"):
		bits = 128
	case strings.HasPrefix(alg, "aes-192"), strings.HasPrefix(alg, "aes192"):
		bits = 192
	case strings.HasPrefix(alg, "aes-256"), strings.HasPrefix(alg, "aes256"):
		bits = 256
	default:
		return p, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, fs.Algorithm)
	}

	switch {
	case strings.Contains(alg, "gcm"):
		p.mode = modeGCM
	case strings.Contains(alg, "cbc"):
		p.mode = modeCBC
	default:
		return p, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, fs.Algorithm)
	}

	var err error
	if p.key, err = base64.StdEncoding.DecodeString(fs.Key); err != nil {
		return p, fmt.Errorf("decoding key: %w", err)
	}
	if len(p.key)*8 != bits {
		return p, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrKeySize, fs.Algorithm, bits/8, len(p.key))
	}

	if p.iv, err = base64.StdEncoding.DecodeString(fs.IV); err != nil {
		return p, fmt.Errorf("decoding iv: %w", err)
	}
	if len(p.iv) == 0 {
		return p, fmt.Errorf("%w: iv is empty", ErrIVSize)
	}

	if fs.Tag != "" {
		if p.tag, err = base64.StdEncoding.DecodeString(fs.Tag); err != nil {
			return p, fmt.Errorf("decoding tag: %w", err)
		}
		if len(p.tag) != TagSize {
			return p, fmt.Errorf("%w: tag must be %d bytes", ErrCiphertext, TagSize)
		}
	}

	return p, nil
}

// pad applies PKCS#7 padding.
func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrCiphertext)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrCiphertext)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrCiphertext)
		}
	}
	return b[:len(b)-n], nil
}

// EncodeJSON marshals v and seals the JSON when fs.Encrypted.
func EncodeJSON(v any, fs model.FormatSettings) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshaling state: %w", err)
	}
	if !fs.Encrypted {
		return string(raw), nil
	}
	token, err := Seal(string(raw), fs)
	if err != nil {
		return "", fmt.Errorf("sealing state: %w", err)
	}
	return token, nil
}

// DecodeJSON opens state when fs.Encrypted and unmarshals it into v.
func DecodeJSON(state string, fs model.FormatSettings, v any) error {
	plain := state
	if fs.Encrypted {
		var err error
		if plain, err = Open(state, fs); err != nil {
			return fmt.Errorf("opening state: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(plain), v); err != nil {
		return fmt.Errorf("parsing state: %w", err)
	}
	return nil
}
