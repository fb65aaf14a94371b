package protocol

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dmitrijs2005/contactsync/internal/common"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	// report json names, not Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a create request. Failures wrap common.ErrInvalidRequest.
func (r *CreateContactRequest) Validate() error {
	return validationError(validate.Struct(r))
}

// Validate checks an update request. Failures wrap common.ErrInvalidRequest.
func (r *UpdateContactRequest) Validate() error {
	if err := validationError(validate.Struct(r)); err != nil {
		return err
	}
	if r.EditedAt == nil {
		return fmt.Errorf("%w: editedAt is required", common.ErrInvalidRequest)
	}
	return nil
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("%w: %v", common.ErrInvalidRequest, err)
	}
	fields := make([]string, 0, len(ve))
	for _, fe := range ve {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", common.ErrInvalidRequest, strings.Join(fields, ", "))
}
