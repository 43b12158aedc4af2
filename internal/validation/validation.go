package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/Freeeeeet/engagement_service/internal/errdefs"
	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/go-playground/validator/v10"
)

var texts = map[string]string{
	"required": "this field is required",
	"notblank": "must not be blank",
	"plan":     "unknown plan",
	"role":     "unknown role",
	"nefield":  "must differ from the other party",
	"max":      "is too long",
}

// Validator проверяет входные структуры и возвращает *errdefs.ValidationError
type Validator struct {
	validate *validator.Validate
}

// New создаёт валидатор с пользовательскими тегами
func New() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = validate.RegisterValidation("plan", func(fl validator.FieldLevel) bool {
		return model.Plan(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return model.Role(fl.Field().String()).Valid()
	})

	return &Validator{validate: validate}
}

// Struct валидирует структуру
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errdefs.Invalid("%v", err)
	}

	fields := make([]errdefs.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		text, ok := texts[fe.Tag()]
		if !ok {
			text = "failed on " + fe.Tag()
		}
		fields = append(fields, errdefs.FieldError{Field: fe.Field(), Error: text})
	}

	return &errdefs.ValidationError{Fields: fields}
}
