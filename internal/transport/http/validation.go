package http

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"live-arena-service/internal/domain"
)

// payloadValidator checks inbound websocket and API payloads and renders
// failures with json field names.
type payloadValidator struct {
	validate *validator.Validate
	trans    ut.Translator
}

func newPayloadValidator() *payloadValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	locale := en.New()
	trans, _ := ut.New(locale, locale).GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)
	return &payloadValidator{validate: v, trans: trans}
}

// Struct returns nil or an error wrapping domain.ErrInvalidPayload.
func (p *payloadValidator) Struct(dst any) error {
	err := p.validate.Struct(dst)
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidPayload, p.describe(err))
}

func (p *payloadValidator) describe(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fe.Translate(p.trans))
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}
