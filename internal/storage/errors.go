package storage

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a looked-up row does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert collides with an existing primary key
var ErrDuplicate = errors.New("duplicate row")

const pqUniqueViolation = "23505"

// classify maps driver errors onto package sentinels
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return ErrDuplicate
	}
	return err
}
