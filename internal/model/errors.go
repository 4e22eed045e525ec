package model

// ValidationError reports a request that cannot succeed as given.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func invalid(msg string) error {
	return &ValidationError{msg: msg}
}
