package errorx

import "fmt"

// Wrap prefixes err with the operation name. A nil err stays nil.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
