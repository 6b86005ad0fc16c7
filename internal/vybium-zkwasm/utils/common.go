package utils

// CeilDiv returns ceil(n / d) for positive d
func CeilDiv(n, d int) int {
	return (n + d - 1) / d
}

// PadLength returns the smallest multiple of step that is >= n, and at least step
func PadLength(n, step int) int {
	if n <= 0 {
		return step
	}
	return CeilDiv(n, step) * step
}

// Chunk splits s into consecutive chunks of size n; len(s) must be a multiple of n
func Chunk[T any](s []T, n int) [][]T {
	out := make([][]T, 0, CeilDiv(len(s), n))
	for i := 0; i < len(s); i += n {
		out = append(out, s[i:min(i+n, len(s))])
	}
	return out
}
