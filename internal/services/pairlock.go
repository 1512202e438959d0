package services

import (
	"bytes"
	"hash/fnv"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const lockStripes = 256

// pairLocks serializes graph operations on the same unordered user pair
// within this process. Storage updates are already conditional; the lock
// keeps a read-then-write toggle from interleaving with itself.
type pairLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (p *pairLocks) lock(a, b primitive.ObjectID) func() {
	if bytes.Compare(b[:], a[:]) < 0 {
		a, b = b, a
	}
	h := fnv.New32a()
	_, _ = h.Write(a[:])
	_, _ = h.Write(b[:])
	m := &p.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
