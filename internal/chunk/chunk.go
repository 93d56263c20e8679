// Package chunk turns a fully buffered body back into a sequence of bounded
// writes, so cached and freshly fetched bodies leave the proxy the same way.
package chunk

import "iter"

// DefaultSize is the largest chunk emitted when no size is configured.
const DefaultSize = 8192

// Split yields buf front to back in chunks of at most size bytes. An empty
// buf yields nothing. Chunks alias buf and must not be modified.
func Split(buf []byte, size int) iter.Seq[[]byte] {
	if size <= 0 {
		size = DefaultSize
	}
	return func(yield func([]byte) bool) {
		rest := buf
		for len(rest) > 0 {
			n := min(size, len(rest))
			if !yield(rest[:n:n]) {
				return
			}
			rest = rest[n:]
		}
	}
}

// Count returns how many chunks Split yields for a body of n bytes.
func Count(n, size int) int {
	if size <= 0 {
		size = DefaultSize
	}
	if n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}
