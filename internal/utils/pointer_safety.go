package utils

// Value dereferences v, returning the zero value for nil.
func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

func Ptr[T any](v T) *T {
	return &v
}

// Copy returns a pointer to a copy of *v, or nil.
func Copy[T any](v *T) *T {
	if v == nil {
		return nil
	}
	return Ptr(*v)
}
