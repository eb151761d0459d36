package federation

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Sealed-object format: a fixed header carrying the key-derivation salt,
// then the AES-GCM nonce, then the ciphertext. The header travels with
// every object, so a reader needs only the password to open an archive
// written under any salt.
const (
	encryptionNonceSize  = 12
	encryptionSaltSize   = 32
	encryptionKeySize    = 32
	encryptionIterations = 100000

	sealedVersion    = 1
	sealedHeaderSize = 4 + 1 + encryptionSaltSize
)

var sealedMagic = [4]byte{'C', 'F', 'E', 'D'}

var (
	// ErrNotSealed reports an object without the sealed header.
	ErrNotSealed = errors.New("object is not sealed")
	// ErrSealedVersion reports a sealed object from an unknown format version.
	ErrSealedVersion = errors.New("unsupported sealed object version")
)

// EncryptionConfig configures at-rest encryption of archived results.
type EncryptionConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Key is a hex-encoded 32 byte AES-256 key. Takes precedence over
	// Password when both are set.
	Key string `json:"key,omitempty" yaml:"key,omitempty"`

	// Password derives the key via PBKDF2 when Key is unset.
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// Encryptor seals and opens archive objects with AES-256-GCM.
type Encryptor struct {
	password string
	aead     cipher.AEAD
	salt     [encryptionSaltSize]byte
}

// NewEncryptor builds an encryptor from the configuration. It returns
// (nil, nil) when encryption is disabled; a nil *Encryptor is a valid
// "store plaintext" archive setting.
func NewEncryptor(cfg EncryptionConfig) (*Encryptor, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Key != "" {
		key, err := hex.DecodeString(cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("decoding encryption key: %w", err)
		}
		return NewKeyEncryptor(key)
	}
	if cfg.Password == "" {
		return nil, errors.New("encryption enabled but no key or password configured")
	}

	var salt [encryptionSaltSize]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	aead, err := deriveAEAD(cfg.Password, salt[:])
	if err != nil {
		return nil, err
	}
	return &Encryptor{password: cfg.Password, aead: aead, salt: salt}, nil
}

// NewKeyEncryptor builds an encryptor from a raw AES-256 key. Objects it
// seals carry a zero salt; opening them requires the same key.
func NewKeyEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != encryptionKeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes", encryptionKeySize)
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	return &Encryptor{aead: aead}, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func deriveAEAD(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, encryptionIterations, encryptionKeySize, sha256.New)
	return newAEAD(key)
}

// Salt returns the key-derivation salt written into sealed objects.
func (e *Encryptor) Salt() []byte {
	return e.salt[:]
}

// Seal encrypts plaintext into a self-describing sealed object.
func (e *Encryptor) Seal(plaintext []byte) ([]byte, error) {
	out := make([]byte, sealedHeaderSize, sealedHeaderSize+encryptionNonceSize+len(plaintext)+e.aead.Overhead())
	copy(out[0:4], sealedMagic[:])
	out[4] = sealedVersion
	copy(out[5:], e.salt[:])

	nonce := make([]byte, encryptionNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out = append(out, nonce...)
	return e.aead.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts a sealed object. In password mode, objects sealed under an
// older salt are opened by re-deriving their key from the password.
func (e *Encryptor) Open(object []byte) ([]byte, error) {
	salt, rest, err := splitSealed(object)
	if err != nil {
		return nil, err
	}
	aead := e.aead
	if e.password != "" && !bytes.Equal(salt, e.salt[:]) {
		if aead, err = deriveAEAD(e.password, salt); err != nil {
			return nil, err
		}
	}
	return openWith(aead, rest)
}

// OpenSealed decrypts a sealed object given only the password, deriving
// the key from the object's own salt.
func OpenSealed(password string, object []byte) ([]byte, error) {
	salt, rest, err := splitSealed(object)
	if err != nil {
		return nil, err
	}
	aead, err := deriveAEAD(password, salt)
	if err != nil {
		return nil, err
	}
	return openWith(aead, rest)
}

// IsSealed reports whether the object starts with the sealed magic.
func IsSealed(object []byte) bool {
	return len(object) >= 4 && bytes.Equal(object[:4], sealedMagic[:])
}

func splitSealed(object []byte) (salt, rest []byte, err error) {
	if len(object) < sealedHeaderSize || !IsSealed(object) {
		return nil, nil, ErrNotSealed
	}
	if object[4] != sealedVersion {
		return nil, nil, fmt.Errorf("%w: %d", ErrSealedVersion, object[4])
	}
	return object[5:sealedHeaderSize], object[sealedHeaderSize:], nil
}

func openWith(aead cipher.AEAD, rest []byte) ([]byte, error) {
	if len(rest) < encryptionNonceSize {
		return nil, errors.New("sealed object truncated")
	}
	nonce, ciphertext := rest[:encryptionNonceSize], rest[encryptionNonceSize:]
	return aead.Open(nil, nonce, ciphertext, nil)
}
