package database

import (
	"errors"

	"gorm.io/gorm"
)

// Retry runs op and retries it once on failure. A missing record is a result,
// not a failure, and is never retried. Sweep code paths use this so a
// transient store hiccup costs an item one cycle instead of failing it
// outright.
func Retry(op func() error) error {
	err := op()
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		err = op()
	}
	return err
}
