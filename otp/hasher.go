package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Hasher turns a plaintext code into a stored digest and checks candidates
// against it. Compare must run in time independent of where a mismatch
// occurs.
type Hasher interface {
	Hash(code string) (string, error)
	Compare(hash, code string) (bool, error)
}

// BcryptHasher is the default hasher.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) cost() int {
	if h.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return h.Cost
}

func (h BcryptHasher) Hash(code string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(code), h.cost())
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (h BcryptHasher) Compare(hash, code string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

const (
	argonAlgorithmID        = "argon2id"
	minArgonMemoryKB uint32 = 8 * 1024
	minArgonSaltLen  uint32 = 16
	minArgonKeyLen   uint32 = 16
)

// Argon2Hasher stores codes as argon2id PHC strings.
type Argon2Hasher struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Hasher is sized for short-lived secrets rather than passwords.
func DefaultArgon2Hasher() Argon2Hasher {
	return Argon2Hasher{
		Memory:      19 * 1024,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Validate checks the parameters against the accepted floor.
func (a Argon2Hasher) Validate() error {
	switch {
	case a.Memory < minArgonMemoryKB:
		return errors.New("argon2 memory must be >= 8192 KB")
	case a.Time < 1:
		return errors.New("argon2 time must be >= 1")
	case a.Parallelism < 1:
		return errors.New("argon2 parallelism must be >= 1")
	case a.SaltLength < minArgonSaltLen:
		return errors.New("argon2 salt length must be >= 16")
	case a.KeyLength < minArgonKeyLen:
		return errors.New("argon2 key length must be >= 16")
	}
	return nil
}

func (a Argon2Hasher) Hash(code string) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}

	salt := make([]byte, a.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(code), salt, a.Time, a.Memory, a.Parallelism, a.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argonAlgorithmID,
		argon2.Version,
		a.Memory,
		a.Time,
		a.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (a Argon2Hasher) Compare(hash, code string) (bool, error) {
	p, err := parseArgonPHC(hash)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(code), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(computed, p.key) == 1, nil
}

type argonPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parseArgonPHC(encoded string) (*argonPHC, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}
	if parts[1] != argonAlgorithmID {
		return nil, errors.New("unsupported algorithm")
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, errors.New("unsupported argon2 version")
	}

	var p argonPHC
	for _, pair := range strings.Split(parts[3], ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, errors.New("invalid parameter entry")
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("invalid %s parameter", name)
		}
		switch name {
		case "m":
			p.memory = uint32(n)
		case "t":
			p.time = uint32(n)
		case "p":
			if n > 255 {
				return nil, errors.New("invalid p parameter")
			}
			p.parallelism = uint8(n)
		default:
			return nil, errors.New("unsupported parameter")
		}
	}
	if p.memory < minArgonMemoryKB || p.time == 0 || p.parallelism == 0 {
		return nil, errors.New("missing parameters")
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(p.salt) < int(minArgonSaltLen) {
		return nil, errors.New("invalid salt")
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(p.key) == 0 {
		return nil, errors.New("invalid hash")
	}
	return &p, nil
}
