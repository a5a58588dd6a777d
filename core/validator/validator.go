package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// singleton
var validate *validator.Validate

func getValidator() *validator.Validate {
	if validate == nil {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}
	return validate
}

func ValidateStruct(f interface{}) error {
	err := getValidator().Struct(f)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}

	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		switch e.Tag() {
		case "required":
			msgs = append(msgs, e.Field()+" must be set")
		case "oneof":
			msgs = append(msgs, e.Field()+" must be one of: "+e.Param())
		default:
			msgs = append(msgs, e.Error())
		}
	}
	return errors.New(strings.Join(msgs, " and "))
}

func ValidateOneOf(value string, enums ...string) error {
	return getValidator().Var(value, "omitempty,oneof="+strings.Join(enums, " "))
}
