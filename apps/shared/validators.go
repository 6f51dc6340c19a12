// Package shared wires what the api and admin apps have in common.
package shared

import (
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/ledger"
)

// NewValidator returns a validator with the english translations and every custom tag registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")

	core.InitValidators(validate, translator)
	ledger.InitValidators(validate, translator)
	return validate, translator
}
