// Package idgen generates short, human-readable identifiers for
// process-lifetime objects that need a stable handle but no persistence:
// buffer instance IDs, loopback pipeline IDs, and the like.
package idgen

import (
	"math/rand"

	"github.com/teris-io/shortid"
	"go.uber.org/atomic"
)

// Alphabet for generating IDs similar to shortid.DEFAULT_ABC.
// NOTE: len(idABC) > 0x3f - see Tie().
const idABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var (
	sid  *shortid.Shortid
	rtie atomic.Int32
)

// Init seeds the generator. Call once at agent start.
func Init(seed uint64) {
	sid = shortid.MustNew(4 /*worker*/, idABC, seed)
}

// NewOrEmpty generates an ID like New, or returns "" if Init hasn't run
// yet. Components constructed before the process calls Init (e.g. in
// tests that never touch idgen directly) get an empty, harmless id
// rather than a panic.
func NewOrEmpty() string {
	if sid == nil {
		return ""
	}
	return New()
}

// New generates a unique, human-readable ID, e.g. for a CircularBuffer
// instance or a loopback pipeline.
func New() (id string) {
	var h, t string
	id = sid.MustGenerate()
	if !isAlpha(id[0]) {
		h = string(rune('A' + rand.Int()%26))
	}
	c := id[len(id)-1]
	if c == '-' || c == '_' {
		t = string(rune('a' + rand.Int()%26))
	}
	return h + id + t
}

// Valid reports whether id has the shape New() produces.
func Valid(id string) bool {
	const idlen = 9 // per https://github.com/teris-io/shortid#id-length
	return len(id) >= idlen && isAlpha(id[0])
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Tie returns a short, monotonically-varying tie-breaker, useful when two
// events race for the same logical slot (e.g. two adapters reconnecting
// in the same instant).
func Tie() string {
	tie := rtie.Add(1)
	b0 := idABC[tie&0x3f]
	b1 := idABC[-tie&0x3f]
	b2 := idABC[(tie>>2)&0x3f]
	return string([]byte{b0, b1, b2})
}
