package creator

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
)

// displayNamePattern is the alphanumeric-plus-underscore-and-hyphen shape
// required of every display_name.
var displayNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var (
	validate *validator.Validate
	trans    ut.Translator
	once     sync.Once
)

// setup lazily constructs and caches the validator, registering the
// "displayname" tag and an English translator so field errors come back
// human readable.
func setup() {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		validate.RegisterValidation("displayname", func(fl validator.FieldLevel) bool {
			return displayNamePattern.MatchString(fl.Field().String())
		})

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		locale := en.New()
		uni := ut.New(locale, locale)
		trans, _ = uni.GetTranslator("en")
		entranslations.RegisterDefaultTranslations(validate, trans)
	})
}

// Validate checks the provided struct against its `validate` tags,
// returning a map of field name to human readable message on failure.
func Validate(val any) map[string]string {
	setup()

	if err := validate.Struct(val); err != nil {
		verrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"error": err.Error()}
		}

		fields := make(map[string]string, len(verrors))
		for _, fe := range verrors {
			fields[fe.Field()] = fe.Translate(trans)
		}

		return fields
	}

	return nil
}

// ValidateDisplayName can be used outside of struct validation (for example
// on a path parameter) to check a display_name in isolation.
func ValidateDisplayName(name string) error {
	if len(name) < 3 || len(name) > 255 {
		return fmt.Errorf("display_name must be between 3 and 255 characters")
	}
	if !displayNamePattern.MatchString(name) {
		return fmt.Errorf("display_name must be alphanumeric plus '_' and '-'")
	}
	return nil
}
