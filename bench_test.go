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
	"fmt"
	"io"
	"strconv"
	"testing"

	"github.com/aclements/go-perfevent/perfbench"
)

func BenchmarkSetIter(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int", benchSizes(benchmarkRuntimeMapIter[int64], genKeys[int64]))
	})
	b.Run("impl=coalescedSet", func(b *testing.B) {
		b.Run("t=Int", benchSizes(benchmarkCoalescedSetIter[int64], genKeys[int64]))
	})
}

func BenchmarkSetContainsHit(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapContainsHit[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapContainsHit[string], genKeys[string]))
	})
	b.Run("impl=coalescedSet", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkCoalescedSetContainsHit[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkCoalescedSetContainsHit[string], genKeys[string]))
	})
}

func BenchmarkSetContainsMiss(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapContainsMiss[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapContainsMiss[string], genKeys[string]))
	})
	b.Run("impl=coalescedSet", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkCoalescedSetContainsMiss[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkCoalescedSetContainsMiss[string], genKeys[string]))
	})
}

func BenchmarkSetInsertGrow(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapInsertGrow[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapInsertGrow[string], genKeys[string]))
	})
	b.Run("impl=coalescedSet", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkCoalescedSetInsertGrow[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkCoalescedSetInsertGrow[string], genKeys[string]))
	})
}

func BenchmarkSetInsertPreAllocate(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapInsertPreAllocate[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapInsertPreAllocate[string], genKeys[string]))
	})
	b.Run("impl=coalescedSet", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkCoalescedSetInsertPreAllocate[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkCoalescedSetInsertPreAllocate[string], genKeys[string]))
	})
}

func BenchmarkSetInsertErase(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapInsertErase[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapInsertErase[string], genKeys[string]))
	})
	b.Run("impl=coalescedSet", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkCoalescedSetInsertErase[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkCoalescedSetInsertErase[string], genKeys[string]))
	})
}

type benchTypes interface {
	int64 | string
}

func benchSizes[T benchTypes](
	f func(b *testing.B, n int, genKeys func(start, end int) []T), genKeys func(start, end int) []T,
) func(*testing.B) {
	var cases = []int{
		6, 12, 18, 24, 30,
		64,
		128,
		256,
		512,
		1024,
		2048,
		4096,
		8192,
		1 << 16,
	}

	return func(b *testing.B) {
		for _, n := range cases {
			b.Run("len="+strconv.Itoa(n), func(b *testing.B) { f(b, n, genKeys) })
		}
	}
}

func genKeys[T benchTypes](start, end int) []T {
	keys := make([]T, end-start)
	for i := range keys {
		switch k := any(&keys[i]).(type) {
		case *int64:
			*k = int64(start + i)
		case *string:
			*k = strconv.Itoa(start + i)
		default:
			panic("not reached")
		}
	}
	return keys
}

func benchmarkRuntimeMapIter[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := make(map[T]struct{}, n)
	for _, k := range genKeys(0, n) {
		m[k] = struct{}{}
	}
	b.ResetTimer()
	var tmp T
	for i := 0; i < b.N; i++ {
		for k := range m {
			tmp += k
		}
	}
}

func benchmarkCoalescedSetIter[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	s := New[T](n)
	s.InsertAll(genKeys(0, n)...)
	b.ResetTimer()
	perfbench.Open(b)
	var tmp T
	for i := 0; i < b.N; i++ {
		s.All(func(k T) bool {
			tmp += k
			return true
		})
	}
}

func benchmarkRuntimeMapContainsMiss[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]struct{})
	miss := genKeys(-n, 0)
	for _, k := range genKeys(0, n) {
		m[k] = struct{}{}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m[miss[i%len(miss)]]
	}
}

func benchmarkCoalescedSetContainsMiss[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	s := New[T](0)
	miss := genKeys(-n, 0)
	s.InsertAll(genKeys(0, n)...)
	b.ResetTimer()
	perfbench.Open(b)
	var ok bool
	for i := 0; i < b.N; i++ {
		ok = s.Contains(miss[i%len(miss)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapContainsHit[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]struct{}, n)
	for _, k := range genKeys(0, n) {
		m[k] = struct{}{}
	}

	// Go's builtin map has an optimization to avoid string comparisons if
	// there is pointer equality. Defeat this optimization to get a better
	// apples-to-apples comparison.
	keys := genKeys(0, n)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m[keys[i%n]]
	}
}

func benchmarkCoalescedSetContainsHit[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	s := New[T](n)
	s.InsertAll(genKeys(0, n)...)
	keys := genKeys(0, n)
	b.ResetTimer()
	perfbench.Open(b)
	var ok bool
	for i := 0; i < b.N; i++ {
		ok = s.Contains(keys[i%n])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapInsertGrow[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	keys := genKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := make(map[T]struct{})
		for _, k := range keys {
			m[k] = struct{}{}
		}
	}
}

func benchmarkCoalescedSetInsertGrow[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	keys := genKeys(0, n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		s := New[T](0)
		for _, k := range keys {
			s.Insert(k)
		}
	}
}

func benchmarkRuntimeMapInsertPreAllocate[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	keys := genKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := make(map[T]struct{}, n)
		for _, k := range keys {
			m[k] = struct{}{}
		}
	}
}

func benchmarkCoalescedSetInsertPreAllocate[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	keys := genKeys(0, n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		s := New[T](n)
		for _, k := range keys {
			s.Insert(k)
		}
	}
}

func benchmarkRuntimeMapInsertErase[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]struct{}, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = struct{}{}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		j := i % n
		delete(m, keys[j])
		m[keys[j]] = struct{}{}
	}
}

func benchmarkCoalescedSetInsertErase[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	s := New[T](n)
	keys := genKeys(0, n)
	s.InsertAll(keys...)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		j := i % n
		s.Erase(keys[j])
		s.Insert(keys[j])
	}
}
