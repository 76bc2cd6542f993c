package config

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validate = validator.New()

// Validate 使用 validate tag 校验结构体
func Validate(object any) error {
	if object == nil {
		return nil
	}
	if err := validate.Struct(object); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return nil
		}
		return errors.Wrap(err, "validate failed")
	}
	return nil
}
