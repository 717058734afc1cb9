package lnutils

// Ptr returns a pointer to a copy of v.
func Ptr[T any](v T) *T {
	return &v
}

// Map applies f to every element of s and returns the results in order. A
// nil slice maps to nil.
func Map[T1, T2 any](s []T1, f func(T1) T2) []T2 {
	if s == nil {
		return nil
	}

	out := make([]T2, len(s))
	for i, v := range s {
		out[i] = f(v)
	}

	return out
}
