package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Password hashing (Argon2id, PHC-encoded).
//
// Hashes are stored as:
//
//	$argon2id$v=19$m=<KiB>,t=<iters>,p=<threads>$<salt-b64>$<key-b64>
//
// Verify decodes the stored parameters, so parameter upgrades only affect
// newly written hashes.

var (
	// ErrPasswordTooShort is returned for passwords under the minimum length.
	ErrPasswordTooShort = errors.New("password too short")
	// ErrPasswordTooLong is returned for pathologically long passwords.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrInvalidHash is returned when a stored hash cannot be decoded.
	ErrInvalidHash = errors.New("invalid argon2id hash format")
)

const (
	minPasswordLen = 8
	maxPasswordLen = 256
)

// Argon2idParams defines Argon2id hashing parameters.
type Argon2idParams struct {
	MemoryKiB uint32
	Time      uint32
	Threads   uint8
	SaltLen   uint32
	KeyLen    uint32
}

// DefaultArgon2idParams returns parameters balancing security and latency
// for an interactive login path.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		MemoryKiB: 64 * 1024,
		Time:      2,
		Threads:   2,
		SaltLen:   16,
		KeyLen:    32,
	}
}

// HashPassword returns a PHC-style Argon2id hash string.
func HashPassword(passwordPlain string, p Argon2idParams) (string, error) {
	if len(passwordPlain) < minPasswordLen {
		return "", ErrPasswordTooShort
	}
	if len(passwordPlain) > maxPasswordLen {
		return "", ErrPasswordTooLong
	}
	p = sanitizeParams(p)

	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(passwordPlain), salt, p.Time, p.MemoryKiB, p.Threads, p.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.MemoryKiB, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword checks a password against a PHC Argon2id hash in constant
// time over the derived keys.
func VerifyPassword(passwordPlain, encodedPHC string) (bool, error) {
	if len(passwordPlain) > maxPasswordLen {
		return false, ErrPasswordTooLong
	}

	p, salt, key, err := decodePHC(encodedPHC)
	if err != nil {
		return false, err
	}

	got := argon2.IDKey([]byte(passwordPlain), salt, p.Time, p.MemoryKiB, p.Threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(got, key) == 1, nil
}

func sanitizeParams(p Argon2idParams) Argon2idParams {
	def := DefaultArgon2idParams()
	if p.MemoryKiB < 8*1024 {
		p.MemoryKiB = def.MemoryKiB
	}
	if p.Time == 0 {
		p.Time = def.Time
	}
	if p.Threads == 0 {
		p.Threads = def.Threads
	}
	if p.SaltLen < 8 {
		p.SaltLen = def.SaltLen
	}
	if p.KeyLen < 16 {
		p.KeyLen = def.KeyLen
	}
	return p
}

func decodePHC(encoded string) (Argon2idParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	var p Argon2idParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Time, &p.Threads); err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	// Anti-DoS: refuse hashes demanding absurd work factors.
	if p.MemoryKiB > 1<<21 || p.Time > 16 || p.Threads == 0 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < 8 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) < 16 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	return p, salt, key, nil
}
