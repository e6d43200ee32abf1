package service

import (
	"errors"

	"qalam-backend/internal/repository"
	appErrors "qalam-backend/pkg/errors"
)

// Translate maps store errors to application errors. AppErrors keep their
// type; anything unrecognised becomes INTERNAL with action as context.
func Translate(err error, action string) error {
	if err == nil {
		return nil
	}

	var notFound repository.ErrNotFound
	var conflict repository.ErrConflict
	var forbidden repository.ErrForbidden
	var appErr *appErrors.AppError
	switch {
	case errors.As(err, &appErr):
		return appErrors.Wrap(err, action)
	case errors.As(err, &notFound):
		return appErrors.NewNotFound(notFound.Resource + " not found")
	case errors.As(err, &forbidden):
		return appErrors.NewForbidden(forbidden.Reason)
	case errors.As(err, &conflict):
		return appErrors.NewConflict("the " + conflict.Resource + " was modified concurrently, please retry")
	default:
		return appErrors.NewInternal(action, err)
	}
}
