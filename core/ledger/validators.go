package ledger

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-fees/core"
)

var (
	paymentMethodTag  = "paymethod"
	paymentMethodText = "invalid payment method"

	referenceRequiredTag  = "refrequired"
	referenceRequiredText = "a reference is required for non-cash payments"
)

// InitValidators registers the ledger validation tags and texts.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(paymentMethodTag, paymentMethodValidation)
	core.RegisterCustomTranslation(validate, translator, paymentMethodTag, paymentMethodText)

	validate.RegisterStructValidation(newPaymentStructValidation, NewPayment{})
	core.RegisterCustomTranslation(validate, translator, referenceRequiredTag, referenceRequiredText)
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.Clean()
	return validate.Struct(np)
}

func paymentMethodValidation(fl validator.FieldLevel) bool {
	return Method(fl.Field().String()).Valid()
}

// newPaymentStructValidation requires a reference for every method but cash.
func newPaymentStructValidation(sl validator.StructLevel) {
	np := sl.Current().Interface().(NewPayment)
	if np.Reference == "" && np.Method != MethodCash {
		sl.ReportError(np.Reference, "reference", "Reference", referenceRequiredTag, "")
	}
}
