// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// package coalesced is a Go implementation of a hash set using coalesced
// hashing with a cellar. See
// https://en.wikipedia.org/wiki/Coalesced_hashing and Vitter's "Implementations
// for Coalesced Hashing" (CACM 1982).
//
// # Coalesced Hashing
//
// A coalesced hash table stores every key inside a single array of slots,
// like open addressing, but resolves collisions the way separate chaining
// does: each slot carries a link to the next slot of its collision chain.
// Because overflow keys are stored in free slots of the same array, chains
// belonging to different home slots can merge ("coalesce"). Lookups only
// ever walk the chain starting at a key's home slot, so they never touch
// slots that did not collide with that home.
//
// The slot array has three regions:
//
//	[0, primary)                 primary region, addressed by hash(key)%primary
//	[primary, primary+cellar)    cellar, never addressed by the hash
//	primary+cellar               sentinel, ends iteration
//
// The cellar holds the first overflow keys so that coalescing is delayed:
// as long as the cellar has room, a colliding key never occupies a slot in
// the primary region that some other key will later hash to. The cellar is a
// fixed fraction of the primary region (0.1628 by default, close to Vitter's
// optimum of 0.86 address factor at high load). Free slots for overflow are
// handed out from the top of the cellar downwards using a cursor. Once the
// cursor reaches the primary region, overflow keys are placed in the highest
// free primary slot instead.
//
// # Deletion
//
// Deleting from a coalesced table cannot simply free the slot, because later
// slots of the same chain would become unreachable. The chain is instead cut
// in front of the deleted slot and its suffix is re-homed: every suffix key
// whose home slot is the freed slot (the "hole") moves into it, which moves
// the hole to the slot it vacated, and every other suffix key is appended to
// the chain of its own home slot. See Set.Erase for details.
//
// # Growth
//
// Before an insertion the set ensures that the number of keys stays at or
// below maxLoadFactor*(primary+cellar). If it would not, the primary region
// grows to 2*primary+1 (repeatedly if needed), the cellar is recomputed and
// every key is reinserted into the new table in slot order.
package coalesced

import (
	"fmt"
	"io"
	"math/rand/v2"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

const (
	debug = false

	// defaultPrimarySize is the primary region size of a new or cleared set.
	defaultPrimarySize = 7
)

const (
	// DefaultMaxLoadFactor is the maximum fraction of the primary region and
	// cellar a Set fills before growing.
	DefaultMaxLoadFactor = 0.7
	// DefaultCellarRatio is the size of the cellar relative to the primary
	// region.
	DefaultCellarRatio = 0.1628
)

type slotState uint8

const (
	slotFree slotState = iota
	slotOccupied
	slotSentinel
)

func (s slotState) String() string {
	switch s {
	case slotFree:
		return "free"
	case slotOccupied:
		return "used"
	case slotSentinel:
		return "end"
	default:
		return fmt.Sprintf("slotState(%d)", uint8(s))
	}
}

// Slot holds a key and its chain link.
type Slot[K comparable] struct {
	key   K
	state slotState
	// next is the index+1 of the next slot in the collision chain, or 0 if
	// this slot terminates its chain. The offset keeps the zero Slot a free
	// slot without a link.
	next int
}

func (s *Slot[K]) occupied() bool {
	return s.state == slotOccupied
}

func (s *Slot[K]) chainNext() (int, bool) {
	return s.next - 1, s.next != 0
}

func (s *Slot[K]) setChainNext(i int) {
	s.next = i + 1
}

func (s *Slot[K]) clearChainNext() {
	s.next = 0
}

// release turns the slot back into a free slot, dropping the key so it can
// be garbage collected.
func (s *Slot[K]) release() {
	*s = Slot[K]{}
}

// Set is an unordered set of unique keys with Insert, Contains, Erase and
// All operations, implemented with coalesced hashing and a cellar. By
// default a Set[K] hashes keys with hash/maphash, though a different hash
// function can be specified using the WithHash option.
//
// A Set is NOT goroutine-safe. Mutating a Set invalidates every Iterator
// obtained from it before the mutation.
type Set[K comparable] struct {
	hash hashFn[K]
	seed uintptr
	// The allocator to use for the slots slice.
	allocator Allocator[K]

	maxLoadFactor float64
	cellarRatio   float64

	// slots is primary+cellar+1 in length. slots[primary+cellar] is always
	// the sentinel.
	slots   []Slot[K]
	primary int
	cellar  int
	// lastFree is the cursor used to hand out cellar slots for overflow keys.
	// It starts at the sentinel index and only moves downwards. Once it
	// reaches primary the cellar has been used up and overflow keys are
	// placed in the highest free primary slot.
	lastFree int
	// The number of occupied slots (i.e. the number of keys in the set).
	used int
	// gen is incremented on every structural mutation and is used to detect
	// use of stale iterators.
	gen uint64
}

// New constructs a new Set with room for initialCapacity keys before the
// first resize. If initialCapacity is 0 the set starts out with the default
// primary size of 7. The zero value for a Set is not usable.
func New[K comparable](initialCapacity int, options ...option[K]) *Set[K] {
	s := &Set[K]{
		hash:          defaultHasher[K](),
		seed:          uintptr(rand.Uint64()),
		allocator:     defaultAllocator[K]{},
		maxLoadFactor: DefaultMaxLoadFactor,
		cellarRatio:   DefaultCellarRatio,
	}

	for _, op := range options {
		op.apply(s)
	}
	if !(s.maxLoadFactor > 0 && s.maxLoadFactor <= 1) {
		panic(fmt.Sprintf("coalesced: max load factor %v not in (0, 1]", s.maxLoadFactor))
	}
	if !(s.cellarRatio >= 0) {
		panic(fmt.Sprintf("coalesced: negative cellar ratio %v", s.cellarRatio))
	}

	s.resize(defaultPrimarySize)
	if initialCapacity > 0 {
		s.reserve(initialCapacity)
	}
	s.checkInvariants()
	return s
}

// Of constructs a new Set containing keys. Duplicate keys are only stored
// once.
func Of[K comparable](keys ...K) *Set[K] {
	s := New[K](0)
	s.InsertAll(keys...)
	return s
}

// Close closes the set, releasing any memory back to its configured
// allocator. It is unnecessary to close a set using the default allocator.
// It is invalid to use a Set after it has been closed, though Close itself is
// idempotent.
func (s *Set[K]) Close() {
	if s.slots != nil {
		s.allocator.FreeSlots(s.slots)
		s.slots = nil
	}
	s.primary, s.cellar, s.lastFree, s.used = 0, 0, 0, 0
	s.gen++
}

// Len returns the number of keys in the set.
func (s *Set[K]) Len() int {
	return s.used
}

// Empty returns true if the set contains no keys.
func (s *Set[K]) Empty() bool {
	return s.used == 0
}

// Capacity returns the number of slots keys can be stored in, i.e. the size
// of the primary region plus the size of the cellar.
func (s *Set[K]) Capacity() int {
	return s.primary + s.cellar
}

// Contains returns true if key is present in the set.
func (s *Set[K]) Contains(key K) bool {
	_, ok := s.find(key)
	return ok
}

// Find returns an iterator positioned at key, or End() and false if the key
// is not present.
func (s *Set[K]) Find(key K) (Iterator[K], bool) {
	if i, ok := s.find(key); ok {
		return s.iteratorAt(i), true
	}
	return s.End(), false
}

// Insert inserts key into the set. It returns an iterator positioned at the
// key and whether the key was inserted. If the key was already present the
// existing element is left untouched and inserted is false.
func (s *Set[K]) Insert(key K) (_ Iterator[K], inserted bool) {
	// Insert is find composed with place. Placement requires the key to be
	// absent; violating that would store the key twice.
	if i, ok := s.find(key); ok {
		return s.iteratorAt(i), false
	}
	s.reserve(s.used + 1)
	i := s.place(key)
	s.gen++
	s.checkInvariants()
	return s.iteratorAt(i), true
}

// InsertAll inserts every key of keys that is not already present.
func (s *Set[K]) InsertAll(keys ...K) {
	for _, key := range keys {
		if _, ok := s.find(key); ok {
			continue
		}
		s.reserve(s.used + 1)
		s.place(key)
		s.gen++
	}
	s.checkInvariants()
}

// Delete removes key from the set, returning false if it was not present.
func (s *Set[K]) Delete(key K) bool {
	return s.Erase(key) == 1
}

// Clear removes all keys from the set, returning it to the size of a newly
// constructed set. The options the set was constructed with are retained.
func (s *Set[K]) Clear() {
	if s.slots != nil {
		s.allocator.FreeSlots(s.slots)
		s.slots = nil
	}
	s.used = 0
	s.resize(defaultPrimarySize)
	s.gen++
	s.checkInvariants()
}

// Clone returns a deep copy of the set. The copy is built by reinserting
// every key into a fresh table, so no slot is shared between the two sets.
func (s *Set[K]) Clone() *Set[K] {
	c := &Set[K]{
		hash:          s.hash,
		seed:          uintptr(rand.Uint64()),
		allocator:     s.allocator,
		maxLoadFactor: s.maxLoadFactor,
		cellarRatio:   s.cellarRatio,
	}
	c.resize(defaultPrimarySize)
	c.reserve(s.used)
	for i := range s.slots {
		if sl := &s.slots[i]; sl.occupied() {
			c.place(sl.key)
		}
	}
	c.checkInvariants()
	return c
}

// Equal returns true if s and other contain the same keys. The comparison
// does not depend on the layout of either table.
func (s *Set[K]) Equal(other *Set[K]) bool {
	if s.used != other.used {
		return false
	}
	for i := range other.slots {
		if sl := &other.slots[i]; sl.occupied() && !s.Contains(sl.key) {
			return false
		}
	}
	return true
}

// All calls yield sequentially for each key present in the set, in
// ascending slot order. If yield returns false, iteration stops. The set must
// not be mutated during iteration; doing so causes All to panic once yield
// returns. All has the signature of a range-over-func iterator:
//
//	for k := range s.All {
//	  fmt.Println(k)
//	}
func (s *Set[K]) All(yield func(key K) bool) {
	gen := s.gen
	for i := 0; i < s.primary+s.cellar; i++ {
		sl := &s.slots[i]
		if !sl.occupied() {
			continue
		}
		if !yield(sl.key) {
			return
		}
		if s.gen != gen {
			panic("coalesced: set mutated during All")
		}
	}
}

// Erase removes key from the set, returning the number of keys removed (0 or
// 1). Erasing an absent key is not an error.
func (s *Set[K]) Erase(key K) int {
	p, ok := s.find(key)
	if !ok {
		if debug {
			fmt.Printf("erase(%v): not-found\n", key)
		}
		return 0
	}
	home := s.home(key)

	if debug {
		fmt.Printf("erase(%v): index=%d home=%d\n", key, p, home)
	}

	// The key sits in its home slot and nothing follows it: nothing else can
	// depend on this slot.
	if _, hasNext := s.slots[p].chainNext(); p == home && !hasNext {
		s.slots[p].release()
		s.erased()
		return 1
	}

	// Cut the chain in front of p. p is reachable from home because find
	// walked there, and no other chain links into p since every slot has at
	// most one predecessor.
	if p != home {
		pred := home
		for {
			next, ok := s.slots[pred].chainNext()
			if !ok {
				panic(fmt.Sprintf("coalesced: slot %d not reachable from home %d\n%s",
					p, home, s.debugString()))
			}
			if next == p {
				break
			}
			pred = next
		}
		s.slots[pred].clearChainNext()
	}

	// p terminated its chain.
	if _, hasNext := s.slots[p].chainNext(); !hasNext {
		s.slots[p].release()
		s.erased()
		return 1
	}

	// p is in the middle of a chain. Collect the suffix behind p before any
	// link is modified.
	var suffix []int
	for i, ok := s.slots[p].chainNext(); ok; i, ok = s.slots[i].chainNext() {
		suffix = append(suffix, i)
	}
	s.slots[p].release()

	// Re-home the suffix in chain order. The hole is the free slot left
	// behind by the erased key, or by the last key moved into the previous
	// hole.
	hole := p
	for _, i := range suffix {
		sl := &s.slots[i]
		sl.clearChainNext()
		h := s.home(sl.key)
		if h == hole {
			if debug {
				fmt.Printf("erase(compact): %v %d -> %d\n", sl.key, i, hole)
			}
			// The key hashes to the hole: move it there, and the slot it
			// vacated becomes the new hole.
			s.slots[hole] = Slot[K]{key: sl.key, state: slotOccupied}
			sl.release()
			hole = i
			continue
		}
		// The key's home holds a different key. Keep the key where it is and
		// append it to the end of the chain starting at its home.
		t := s.terminal(h)
		if debug {
			fmt.Printf("erase(relink): %v at %d appended to %d (home %d)\n", sl.key, i, t, h)
		}
		s.slots[t].setChainNext(i)
	}
	s.erased()
	return 1
}

func (s *Set[K]) erased() {
	s.used--
	s.gen++
	s.checkInvariants()
}

// home returns the home slot of key: hash(key) mod primary.
func (s *Set[K]) home(key K) int {
	h := s.hash(noescape(&key), s.seed)
	return int(h % uintptr(s.primary))
}

// find returns the index of the slot holding key.
func (s *Set[K]) find(key K) (int, bool) {
	if s.primary == 0 {
		return 0, false
	}
	i := s.home(key)
	if debug {
		fmt.Printf("find(%v): home=%d\n", key, i)
	}
	if !s.slots[i].occupied() {
		return 0, false
	}
	for {
		if s.slots[i].key == key {
			return i, true
		}
		next, ok := s.slots[i].chainNext()
		if !ok {
			return 0, false
		}
		i = next
	}
}

// terminal returns the last slot of the chain starting at i.
func (s *Set[K]) terminal(i int) int {
	for steps := 0; ; steps++ {
		next, ok := s.slots[i].chainNext()
		if !ok {
			return i
		}
		if steps > s.primary+s.cellar {
			panic(fmt.Sprintf("coalesced: cycle in chain through slot %d\n%s", i, s.debugString()))
		}
		i = next
	}
}

// place stores a key known not to be in the table and returns its slot. Used
// by Insert after it has failed to find an existing key, and by resize.
func (s *Set[K]) place(key K) int {
	home := s.home(key)
	if debug {
		fmt.Printf("place(%v): home=%d\n", key, home)
	}

	sl := &s.slots[home]
	switch sl.state {
	case slotFree:
		sl.key = key
		sl.state = slotOccupied
		s.used++
		if debug {
			fmt.Printf("place(home): index=%d used=%d\n", home, s.used)
		}
		return home
	case slotSentinel:
		panic(fmt.Sprintf("coalesced: key %v hashed to the sentinel\n%s", key, s.debugString()))
	}

	// Collision: walk to the end of the chain passing through home and link a
	// newly allocated slot behind it.
	t := s.terminal(home)
	i := s.allocate()
	s.slots[i] = Slot[K]{key: key, state: slotOccupied}
	s.slots[t].setChainNext(i)
	s.used++
	if debug {
		fmt.Printf("place(overflow): index=%d after=%d used=%d last-free=%d\n", i, t, s.used, s.lastFree)
	}
	return i
}

// allocate returns a free slot for an overflow key. The cellar is consumed
// from the top down. Once the cursor has passed the cellar, the primary
// region is scanned from its top for a free slot.
//
// Under adversarial hash distributions the primary scan can visit a large
// part of the table on every overflow insertion.
func (s *Set[K]) allocate() int {
	for s.lastFree > s.primary {
		s.lastFree--
		if !s.slots[s.lastFree].occupied() {
			return s.lastFree
		}
	}
	for i := s.primary - 1; i >= 0; i-- {
		if !s.slots[i].occupied() {
			return i
		}
	}
	// Cellar slots above the cursor are only free again after an erase. The
	// load factor keeps us from getting here unless the primary region is
	// full.
	for i := s.primary + s.cellar - 1; i >= s.primary; i-- {
		if !s.slots[i].occupied() {
			return i
		}
	}
	panic(fmt.Sprintf("coalesced: no free slot for overflow (used=%d capacity=%d)\n%s",
		s.used, s.primary+s.cellar, s.debugString()))
}

// reserve ensures room for n keys without violating the max load factor,
// growing the primary region to 2*primary+1 until it does and rehashing if
// any growth was necessary.
func (s *Set[K]) reserve(n int) {
	primary := s.primary
	if !s.exceedsLoad(n, primary) {
		return
	}
	for s.exceedsLoad(n, primary) {
		primary = 2*primary + 1
	}
	s.resize(primary)
}

func (s *Set[K]) exceedsLoad(n, primary int) bool {
	return float64(n) > float64(primary+cellarSize(primary, s.cellarRatio))*s.maxLoadFactor
}

func cellarSize(primary int, ratio float64) int {
	return int(float64(primary) * ratio)
}

// resize allocates a table with the specified primary size and places each
// key of the old table into it in increasing slot order, then discards the
// old table.
func (s *Set[K]) resize(newPrimary int) {
	newCellar := cellarSize(newPrimary, s.cellarRatio)
	oldSlots, oldUsed := s.slots, s.used

	s.slots = s.allocator.AllocSlots(newPrimary + newCellar + 1)
	for i := range s.slots {
		s.slots[i] = Slot[K]{}
	}
	s.slots[newPrimary+newCellar].state = slotSentinel

	if debug {
		fmt.Printf("resize: primary=%d->%d  cellar=%d->%d  used=%d\n",
			s.primary, newPrimary, s.cellar, newCellar, s.used)
	}

	s.primary = newPrimary
	s.cellar = newCellar
	s.lastFree = newPrimary + newCellar
	s.used = 0
	s.gen++

	for i := range oldSlots {
		if sl := &oldSlots[i]; sl.occupied() {
			s.place(sl.key)
		}
	}
	if s.used != oldUsed {
		panic(fmt.Sprintf("coalesced: resize placed %d of %d keys", s.used, oldUsed))
	}
	if oldSlots != nil {
		s.allocator.FreeSlots(oldSlots)
	}
}

func (s *Set[K]) checkInvariants() {
	if invariants {
		n := s.primary + s.cellar
		if len(s.slots) != n+1 {
			panic(fmt.Sprintf("invariant failed: %d slots, expected %d\n%s", len(s.slots), n+1, s.debugString()))
		}
		if st := s.slots[n].state; st != slotSentinel {
			panic(fmt.Sprintf("invariant failed: slot(%d): expected sentinel, but found %s\n%s", n, st, s.debugString()))
		}

		// Every slot has at most one predecessor and no chain leaves the table.
		preds := make([]int, n)
		var used int
		for i := 0; i < n; i++ {
			sl := &s.slots[i]
			switch sl.state {
			case slotSentinel:
				panic(fmt.Sprintf("invariant failed: slot(%d): unexpected sentinel\n%s", i, s.debugString()))
			case slotFree:
				if _, ok := sl.chainNext(); ok {
					panic(fmt.Sprintf("invariant failed: slot(%d): free slot with chain link\n%s", i, s.debugString()))
				}
				continue
			}
			used++
			if next, ok := sl.chainNext(); ok {
				if next < 0 || next >= n {
					panic(fmt.Sprintf("invariant failed: slot(%d): chain link %d out of range\n%s", i, next, s.debugString()))
				}
				if !s.slots[next].occupied() {
					panic(fmt.Sprintf("invariant failed: slot(%d): chain link to free slot %d\n%s", i, next, s.debugString()))
				}
				preds[next]++
				if preds[next] > 1 {
					panic(fmt.Sprintf("invariant failed: slot(%d): multiple predecessors\n%s", next, s.debugString()))
				}
			}
		}

		if used != s.used {
			panic(fmt.Sprintf("invariant failed: found %d used slots, but used count is %d\n%s",
				used, s.used, s.debugString()))
		}
		if float64(s.used) > float64(n)*s.maxLoadFactor {
			panic(fmt.Sprintf("invariant failed: used=%d exceeds load bound of %d slots at %v\n%s",
				s.used, n, s.maxLoadFactor, s.debugString()))
		}

		// For every occupied slot, verify we can retrieve the key from its
		// home slot and that it is found at this index (i.e. it is unique).
		for i := 0; i < n; i++ {
			sl := &s.slots[i]
			if !sl.occupied() {
				continue
			}
			j, ok := s.find(sl.key)
			if !ok {
				panic(fmt.Sprintf("invariant failed: slot(%d): %v not found [home=%d]\n%s",
					i, sl.key, s.home(sl.key), s.debugString()))
			}
			if j != i {
				panic(fmt.Sprintf("invariant failed: slot(%d): %v also found at slot %d\n%s",
					i, sl.key, j, s.debugString()))
			}
		}
	}
}

// Dump writes the state of every slot of the table to w: its index, whether
// it is free, used or the sentinel, the key, and the slot its chain links
// to. The format is meant for debugging and is not stable.
func (s *Set[K]) Dump(w io.Writer) error {
	_, err := io.WriteString(w, s.debugString())
	return err
}

// String returns the same representation as Dump.
func (s *Set[K]) String() string {
	return s.debugString()
}

var dumpConfig = spew.ConfigState{
	Indent:                  " ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

func (s *Set[K]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "primary=%d  cellar=%d  used=%d  last-free=%d\n",
		s.primary, s.cellar, s.used, s.lastFree)
	for i := range s.slots {
		sl := &s.slots[i]
		switch sl.state {
		case slotOccupied:
			fmt.Fprintf(&buf, "  %4d: %s", i, dumpConfig.Sprint(sl.key))
		default:
			fmt.Fprintf(&buf, "  %4d: -%s", i, sl.state)
		}
		if next, ok := sl.chainNext(); ok {
			fmt.Fprintf(&buf, " -> %d", next)
		}
		buf.WriteString("\n")
	}
	return buf.String()
}
