package form

import (
	"errors"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/pelicanworks/trove/internal/domain"
)

// formFieldNames maps struct fields to the wire field names callers see.
var formFieldNames = map[string]string{
	"ProductID": "productId",
	"VariantID": "variantId",
	"Price":     "variantPrice",
	"Quantity":  "variantQuantity",
	"Status":    "variantStatus",
}

// Validator checks parsed form records against their schema.
type Validator struct {
	v *validator.Validate
}

// NewValidator builds a Validator. decimal.Decimal fields validate through
// their float64 value so numeric tags apply to them.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	return &Validator{v: v}
}

// VariantForm validates a parsed variant payload. It returns a
// domain.ValidationError carrying one message per invalid field, or nil.
func (va *Validator) VariantForm(f VariantForm) error {
	err := va.v.Struct(f)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.Invalid("variant.validate", err.Error())
	}

	ve := &domain.ValidationError{Op: "variant.validate", Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		name := formFieldNames[fe.StructField()]
		if name == "" {
			name = fe.StructField()
		}
		ve.Fields[name] = messageFor(fe)
	}
	return ve
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return "must be a positive number"
	case "gte":
		return "must be a non-negative number"
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}
