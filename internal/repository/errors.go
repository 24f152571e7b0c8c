package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Sentinel errors surfaced by repositories whose transactional checks must
// be distinguished by the service layer.
var (
	ErrDuplicateCode   = errors.New("course code already exists")
	ErrDuplicateEmail  = errors.New("email already exists")
	ErrAlreadyEnrolled = errors.New("student already enrolled")
	ErrNoSeats         = errors.New("no seats left")
	ErrNotEnrolled     = errors.New("student not enrolled")
)

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
