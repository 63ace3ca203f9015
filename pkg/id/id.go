// Package id issues time-sortable identifiers for positions and trades.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator hands out monotonic ULIDs. It is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewGenerator seeds a monotonic entropy source from crypto/rand.
func NewGenerator() *Generator {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)}
}

// NewAt returns an id whose timestamp is t. Ids created for the same
// millisecond sort in creation order.
func (g *Generator) NewAt(t time.Time) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, err := ulid.New(ulid.Timestamp(t.UTC()), g.entropy)
	if err != nil {
		return "", fmt.Errorf("ulid: %w", err)
	}
	return v.String(), nil
}

var std = NewGenerator()

// New returns an id stamped with the current time.
func New() string {
	s, err := std.NewAt(time.Now())
	if err != nil {
		// only possible when the monotonic entropy overflows within one millisecond
		panic(err)
	}
	return s
}

// NewAt returns an id stamped with t from the shared generator.
func NewAt(t time.Time) (string, error) { return std.NewAt(t) }

// Time extracts the creation time encoded in s.
func Time(s string) (time.Time, error) {
	v, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(v.Time()), nil
}
