package validator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/pt_BR"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	ptbr_translations "github.com/go-playground/validator/v10/translations/pt_BR"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// trans is the singleton Portuguese translator for validation errors.
var trans ut.Translator

// Setup registers the validator with Portuguese translations on Gin's binding engine.
// Call once during application startup.
func Setup() {
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		// Use JSON tag name for field names in error messages.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		locale := pt_BR.New()
		uni := ut.New(locale, locale)
		trans, _ = uni.GetTranslator("pt_BR")
		_ = ptbr_translations.RegisterDefaultTranslations(v, trans)
	}
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name → human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			if trans != nil {
				fields[fe.Field()] = fe.Translate(trans)
			} else {
				fields[fe.Field()] = fe.Error()
			}
		}
		return fields
	}

	fields["detail"] = err.Error()
	return fields
}

// Bind strictly decodes the JSON body into dst and validates it. Unknown
// fields, trailing data and type mismatches are rejected.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst any) map[string]string {
	if c.Request.Body == nil {
		return map[string]string{"detail": "corpo da requisição vazio"}
	}
	if err := Decode(io.LimitReader(c.Request.Body, maxBodyBytes), dst); err != nil {
		return TranslateErrors(err)
	}
	if err := binding.Validator.ValidateStruct(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}

// Decode reads exactly one JSON value into dst.
func Decode(r io.Reader, dst any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("corpo da requisição vazio")
		}
		return fmt.Errorf("json inválido: %w", err)
	}
	if dec.More() {
		return errors.New("json inválido: dados após o objeto")
	}
	return nil
}

// DecodeAndValidate is Bind for payloads that do not arrive as an HTTP body,
// such as WebSocket frames.
func DecodeAndValidate(data []byte, dst any) map[string]string {
	if err := Decode(bytes.NewReader(data), dst); err != nil {
		return TranslateErrors(err)
	}
	if err := binding.Validator.ValidateStruct(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}
