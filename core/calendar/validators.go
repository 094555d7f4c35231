package calendar

import (
	"reflect"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/esmeraldinha/backend/core"
)

var (
	dayTypeTag  = "daytype"
	dayTypeText = "{0} must be a known day type"

	stageIDTag  = "stageid"
	stageIDText = "{0} must be one of I, II, III, IV"
)

// InitValidators registers the calendar validation tags. Call after core.InitValidators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	// validate dates and nullable strings by their string values
	validate.RegisterCustomTypeFunc(func(v reflect.Value) interface{} {
		if d, ok := v.Interface().(Date); ok && !d.IsZero() {
			return d.String()
		}
		return ""
	}, Date{})
	validate.RegisterCustomTypeFunc(func(v reflect.Value) interface{} {
		if s, ok := v.Interface().(null.String); ok && s.Valid {
			return s.String
		}
		return ""
	}, null.String{})

	_ = validate.RegisterValidation(dayTypeTag, dayTypeValidation)
	core.RegisterCustomTranslation(validate, translator, dayTypeTag, dayTypeText)

	_ = validate.RegisterValidation(stageIDTag, stageIDValidation)
	core.RegisterCustomTranslation(validate, translator, stageIDTag, stageIDText)

	validate.RegisterStructValidation(stageStructValidation, Stage{})
}

func dayTypeValidation(fl validator.FieldLevel) bool {
	_, err := ParseDayType(fl.Field().String())
	return err == nil
}

func stageIDValidation(fl validator.FieldLevel) bool {
	_, err := ParseStageID(fl.Field().String())
	return err == nil
}

// stageStructValidation checks that a stage does not end before it starts.
func stageStructValidation(sl validator.StructLevel) {
	s, ok := sl.Current().Interface().(Stage)
	if !ok || s.StartDate.IsZero() || s.EndDate.IsZero() {
		return
	}
	if s.EndDate.Before(s.StartDate) {
		sl.ReportError(s.EndDate, "end_date", "EndDate", "gtefield", "start_date")
	}
}
