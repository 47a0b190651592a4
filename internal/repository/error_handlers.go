package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/amplimindcc/backend-sub000/internal/errdefs"
)

const uniqueViolation = "23505"

func handleError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", pqErr.Constraint, errdefs.ErrAlreadyExists)
	}
	return err
}
