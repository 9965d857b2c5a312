package handler

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validate      *validator.Validate
)

// Validator returns the shared request validator. Field names in errors come
// from the form tag.
func Validator() *validator.Validate {
	validatorOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// taskRequest is the form of POST /InsecureDeserialization/task.
// Token is nil when the parameter is absent; an empty value is still a token.
type taskRequest struct {
	Token  *string `form:"token" validate:"required"`
	UserID string  `form:"-" validate:"max=128"`
}
