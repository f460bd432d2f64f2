package errorx

import (
	"errors"
)

// Persistable marks a failure whose state change must still be stored,
// such as a rejected code whose attempt has to be counted.
// Repositories commit the mutation and hand the error back to the caller.
type Persistable struct {
	Err error
}

func (e *Persistable) Error() string { return e.Err.Error() }
func (e *Persistable) Unwrap() error { return e.Err }

// NewPersistable returns nil for a nil err, never a typed nil.
func NewPersistable(err error) error {
	if err == nil {
		return nil
	}
	return &Persistable{Err: err}
}

func IsPersistable(err error) bool {
	var p *Persistable
	return errors.As(err, &p)
}
