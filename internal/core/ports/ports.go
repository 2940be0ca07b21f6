package ports

// ProgressFunc receives upload progress already scaled to the client's band.
type ProgressFunc func(progress int)

// Report is safe to call on a nil ProgressFunc.
func (f ProgressFunc) Report(progress int) {
	if f != nil {
		f(progress)
	}
}
