package repository

import (
	"errors"

	"github.com/amirasaad/escrow/pkg/repository"
	"gorm.io/gorm"
)

// MapGormError converts GORM errors to repository errors so the services
// never see driver details. It walks the error chain.
func MapGormError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return repository.ErrDuplicate
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repository.ErrNotFound
	}
	return err
}

// WrapError runs a GORM operation and maps its error.
//
//	err := WrapError(func() error {
//	    return s.db.WithContext(ctx).Create(&row).Error
//	})
func WrapError(op func() error) error {
	return MapGormError(op())
}
