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

// option provide an interface to do work on Set while it is being created.
type option[K comparable] interface {
	apply(s *Set[K])
}

type hashOption[K comparable] struct {
	hash func(key *K, seed uintptr) uintptr
}

func (op hashOption[K]) apply(s *Set[K]) {
	s.hash = op.hash
}

// WithHash is an option to specify the hash function to use for a Set[K].
// The home slot of a key is hash(key, seed) modulo the primary region size.
func WithHash[K comparable](hash func(key *K, seed uintptr) uintptr) option[K] {
	return hashOption[K]{hash}
}

type maxLoadFactorOption[K comparable] struct {
	maxLoadFactor float64
}

func (op maxLoadFactorOption[K]) apply(s *Set[K]) {
	s.maxLoadFactor = op.maxLoadFactor
}

// WithMaxLoadFactor is an option to specify the fraction of the primary
// region and cellar that may be occupied before the set grows. It must be in
// (0, 1]; the default is 0.7.
func WithMaxLoadFactor[K comparable](maxLoadFactor float64) option[K] {
	return maxLoadFactorOption[K]{maxLoadFactor}
}

type cellarRatioOption[K comparable] struct {
	cellarRatio float64
}

func (op cellarRatioOption[K]) apply(s *Set[K]) {
	s.cellarRatio = op.cellarRatio
}

// WithCellarRatio is an option to specify the size of the cellar relative to
// the primary region. The cellar size is floor(primary*ratio). A ratio of 0
// disables the cellar, so every overflow key is stored in the primary
// region. The default is 0.1628.
func WithCellarRatio[K comparable](cellarRatio float64) option[K] {
	return cellarRatioOption[K]{cellarRatio}
}

// Allocator specifies an interface for allocating and releasing memory used
// by a Set. The default allocator utilizes Go's builtin make() and allows the
// GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that slots be
// freed then Set.Close must be called in order to ensure FreeSlots is called
// for the final table.
type Allocator[K comparable] interface {
	// AllocSlots should return a slice equivalent to make([]Slot[K], n).
	AllocSlots(n int) []Slot[K]

	// FreeSlots can optional release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by AllocSlots.
	FreeSlots(v []Slot[K])
}

type defaultAllocator[K comparable] struct{}

func (defaultAllocator[K]) AllocSlots(n int) []Slot[K] {
	return make([]Slot[K], n)
}

func (defaultAllocator[K]) FreeSlots(v []Slot[K]) {
}

type allocatorOption[K comparable] struct {
	allocator Allocator[K]
}

func (op allocatorOption[K]) apply(s *Set[K]) {
	s.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Set[K].
func WithAllocator[K comparable](allocator Allocator[K]) option[K] {
	return allocatorOption[K]{allocator}
}
