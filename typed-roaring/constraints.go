package typedRoaring

// Integer types that can be stored in a roaring bitmap. Values must fit in a uint32.
type BitConstraint interface {
	~int | ~int32 | ~int64 | ~uint32
}
