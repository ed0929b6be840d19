package testutils

// Axis returns a unit vector of dims dimensions along dimension i.
func Axis(dims, i int) []float32 {
	v := make([]float32, dims)
	v[i] = 1
	return v
}
