package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	mnemonicScheme  = "argon2id-aesgcm"
	mnemonicVersion = "v=1"
)

// ErrInvalidCiphertext signals a malformed or tampered encrypted mnemonic.
var ErrInvalidCiphertext = fmt.Errorf("invalid encrypted mnemonic")

// KDFParams captures the Argon2id parameters embedded in each ciphertext.
type KDFParams struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLen     uint32
}

// DefaultKDFParams is used for new ciphertexts.
var DefaultKDFParams = KDFParams{
	Memory:      64 * 1024,
	Time:        1,
	Parallelism: 4,
	SaltLen:     16,
}

const keyLen = 32

// EncryptMnemonic seals a custodial account mnemonic with a key derived from
// secret. The output is self-describing:
// $argon2id-aesgcm$v=1$m=..,t=..,p=..$<salt>$<nonce|ciphertext>.
func EncryptMnemonic(mnemonic, secret string) (string, error) {
	if mnemonic == "" {
		return "", fmt.Errorf("mnemonic cannot be empty")
	}
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}

	params := DefaultKDFParams
	salt := make([]byte, params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	aead, err := newAEAD(secret, salt, params)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(mnemonic), nil)

	return fmt.Sprintf("$%s$%s$m=%d,t=%d,p=%d$%s$%s",
		mnemonicScheme, mnemonicVersion,
		params.Memory, params.Time, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sealed),
	), nil
}

// DecryptMnemonic reverses EncryptMnemonic.
func DecryptMnemonic(encoded, secret string) (string, error) {
	params, salt, sealed, err := decodeCiphertext(encoded)
	if err != nil {
		return "", err
	}
	aead, err := newAEAD(secret, salt, params)
	if err != nil {
		return "", err
	}
	if len(sealed) < aead.NonceSize() {
		return "", ErrInvalidCiphertext
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plain), nil
}

func newAEAD(secret string, salt []byte, params KDFParams) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(secret), salt, params.Time, params.Memory, params.Parallelism, keyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return aead, nil
}

func decodeCiphertext(encoded string) (KDFParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != mnemonicScheme || parts[2] != mnemonicVersion {
		return KDFParams{}, nil, nil, ErrInvalidCiphertext
	}

	var params KDFParams
	for _, token := range strings.Split(parts[3], ",") {
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			return KDFParams{}, nil, nil, ErrInvalidCiphertext
		}
		switch key {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return KDFParams{}, nil, nil, ErrInvalidCiphertext
			}
			params.Memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return KDFParams{}, nil, nil, ErrInvalidCiphertext
			}
			params.Time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil {
				return KDFParams{}, nil, nil, ErrInvalidCiphertext
			}
			params.Parallelism = uint8(v)
		}
	}
	if params.Memory == 0 || params.Time == 0 || params.Parallelism == 0 {
		return KDFParams{}, nil, nil, ErrInvalidCiphertext
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return KDFParams{}, nil, nil, ErrInvalidCiphertext
	}
	sealed, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return KDFParams{}, nil, nil, ErrInvalidCiphertext
	}
	params.SaltLen = uint32(len(salt))
	return params, salt, sealed, nil
}
