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

package coalesced

import "fmt"

// Iterator is a position in the slot array of a Set. Iterators visit the
// occupied slots in ascending index order and end at the sentinel slot,
// which is the position returned by Set.End. Iterators are comparable:
//
//	for it := s.Begin(); it != s.End(); it.Next() {
//	  fmt.Println(it.Key())
//	}
//
// Any mutation of the set (a successful Insert or Erase, Clear, or a resize)
// invalidates all of its iterators. Using an invalidated iterator panics.
type Iterator[K comparable] struct {
	s     *Set[K]
	index int
	gen   uint64
}

// Begin returns an iterator positioned at the first occupied slot, or End()
// if the set is empty.
func (s *Set[K]) Begin() Iterator[K] {
	it := s.iteratorAt(0)
	it.skip()
	return it
}

// End returns the iterator positioned at the sentinel slot.
func (s *Set[K]) End() Iterator[K] {
	return s.iteratorAt(s.primary + s.cellar)
}

func (s *Set[K]) iteratorAt(i int) Iterator[K] {
	return Iterator[K]{s: s, index: i, gen: s.gen}
}

// Key returns the key the iterator is positioned at.
func (it Iterator[K]) Key() K {
	it.check()
	sl := &it.s.slots[it.index]
	if !sl.occupied() {
		panic(fmt.Sprintf("coalesced: dereferencing iterator at %s slot %d", sl.state, it.index))
	}
	return sl.key
}

// Done returns true if the iterator is positioned at the end of the set.
func (it Iterator[K]) Done() bool {
	it.check()
	return it.s.slots[it.index].state == slotSentinel
}

// Next advances the iterator to the next occupied slot, or to the end of the
// set. Advancing an iterator that is already at the end panics.
func (it *Iterator[K]) Next() {
	it.check()
	if it.s.slots[it.index].state == slotSentinel {
		panic("coalesced: advancing iterator past the end")
	}
	it.index++
	it.skip()
}

func (it *Iterator[K]) skip() {
	for {
		switch it.s.slots[it.index].state {
		case slotOccupied, slotSentinel:
			return
		}
		it.index++
	}
}

func (it Iterator[K]) check() {
	if it.s == nil {
		panic("coalesced: use of zero Iterator")
	}
	if it.gen != it.s.gen {
		panic(fmt.Sprintf("coalesced: iterator invalidated by mutation (generation %d, set at %d)",
			it.gen, it.s.gen))
	}
}
