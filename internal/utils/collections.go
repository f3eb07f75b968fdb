package utils

func Keys[T comparable, U any](m map[T]U) []T {
	keys := make([]T, len(m))

	i := 0
	for key := range m {
		keys[i] = key
		i++
	}

	return keys
}

func Contains[T comparable](slice []T, value T) bool {
	for _, el := range slice {
		if el == value {
			return true
		}
	}

	return false
}

func Max[T int64 | uint64](a, b T) T {
	if a > b {
		return a
	}

	return b
}
