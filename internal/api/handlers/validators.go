package handlers

import (
	"github.com/Marga-Ghale/powerline-backend/internal/types"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators installs the queue-specific binding tags on gin's
// validator engine.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.RegisterValidation("queue_status", func(fl validator.FieldLevel) bool {
		return types.IsValidPositionStatus(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("enroll_source", func(fl validator.FieldLevel) bool {
		return types.IsValidSource(fl.Field().String())
	})
}
