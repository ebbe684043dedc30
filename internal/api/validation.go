package api

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/alecgard/taskforge/internal/apperr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeBody reads the JSON body into v and runs its validate tags.
func decodeBody(r *http.Request, v any) error {
	if err := readJSON(r, v); err != nil {
		return err
	}
	if n, ok := v.(interface{ normalize() }); ok {
		n.normalize()
	}
	return validateStruct(v)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	issues := make([]apperr.Issue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, apperr.Issue{Path: fe.Field(), Message: ruleMessage(fe)})
	}
	return apperr.InvalidBody(issues...)
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uuid":
		return "must be a uuid"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "failed the " + fe.Tag() + " rule"
	}
}

// uuidParams reads the named chi URL parameters, requiring each to be a uuid.
func uuidParams(r *http.Request, names ...string) ([]string, error) {
	values := make([]string, len(names))
	var issues []apperr.Issue
	for i, name := range names {
		values[i] = chi.URLParam(r, name)
		if err := validate.Var(values[i], "required,uuid"); err != nil {
			issues = append(issues, apperr.Issue{Path: name, Message: "must be a uuid"})
		}
	}
	if len(issues) > 0 {
		return nil, apperr.InvalidParams(issues...)
	}
	return values, nil
}
