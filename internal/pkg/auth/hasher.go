package auth

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"golang.org/x/crypto/argon2"
)

// argon2id parameters shared with previously stored user build statistics.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// UserHasher turns an end-user id into the opaque key under which build
// statistics are stored.
type UserHasher interface {
	Hash(userID int64) string
}

type Argon2Hasher struct {
	salt []byte
}

func NewArgon2Hasher(salt string) *Argon2Hasher {
	return &Argon2Hasher{salt: []byte(salt)}
}

// Hash returns the PHC-encoded argon2id digest of the decimal user id.
func (h *Argon2Hasher) Hash(userID int64) string {
	key := argon2.IDKey([]byte(strconv.FormatInt(userID, 10)), h.salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}
