package mainloop

type ErrAlreadyServing struct{}

func (ErrAlreadyServing) Error() string {
	return "the loop is already being served"
}

type ErrClosed struct{}

func (ErrClosed) Error() string {
	return "the loop is closed"
}

type ErrNilFunc struct{}

func (ErrNilFunc) Error() string {
	return "a nil task was submitted"
}
