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

import (
	"hash/maphash"
	"unsafe"
)

type hashFn[K comparable] func(key *K, seed uintptr) uintptr

// hashSeed is shared by all sets; each set mixes in its own seed.
var hashSeed = maphash.MakeSeed()

// defaultHasher returns a hash function for K using the same hashing Go uses
// for comparable values in builtin maps.
func defaultHasher[K comparable]() hashFn[K] {
	return func(key *K, seed uintptr) uintptr {
		return mix(uintptr(maphash.Comparable(hashSeed, *key)) ^ seed)
	}
}

// mix is the 64-bit finalizer of MurmurHash3. It spreads the set's seed over
// all bits so that the residue modulo the primary size changes with it.
func mix(h uintptr) uintptr {
	x := uint64(h)
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return uintptr(x)
}

// noescape hides a pointer from escape analysis.  noescape is
// the identity function but escape analysis doesn't think the
// output depends on the input.  noescape is inlined and currently
// compiles down to zero instructions.
// USE CAREFULLY!
//
//go:nosplit
//go:nocheckptr
func noescape[T any](p *T) *T {
	x := uintptr(unsafe.Pointer(p))
	return (*T)(unsafe.Pointer(x ^ 0))
}
