package sonar

import (
	"fmt"

	"github.com/google/uuid"
)

// IDAllocator hands out backend resource names. Each sensor owns one so that
// several sensors can share a backend without name collisions.
type IDAllocator interface {
	Next(kind string) string
}

// NameArena prefixes every name with a per-instance id.
type NameArena struct {
	prefix string
	next   uint64
}

func NewNameArena(owner string) *NameArena {
	return &NameArena{prefix: owner + "-" + uuid.NewString()[:8]}
}

func (a *NameArena) Next(kind string) string {
	a.next++
	return fmt.Sprintf("%s/%s_%d", a.prefix, kind, a.next)
}

func (a *NameArena) Prefix() string {
	return a.prefix
}
