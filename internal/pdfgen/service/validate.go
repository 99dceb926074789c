package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	pdfgendomain "github.com/smallbiznis/htmlpdf/internal/pdfgen/domain"
	"github.com/smallbiznis/htmlpdf/internal/renderer"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("csslength", func(fl validator.FieldLevel) bool {
		_, err := renderer.ParseLength(fl.Field().String())
		return err == nil
	})
	return v
}

// decodeRequest parses and validates a render body. Every problem is
// reported as a field error.
func decodeRequest(v *validator.Validate, body []byte) (*pdfgendomain.GenerateRequest, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &pdfgendomain.ValidationError{Fields: []pdfgendomain.FieldError{{
			Field: "body", Code: "required", Message: "request body is required",
		}}}
	}

	var req pdfgendomain.GenerateRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&req); err != nil {
		return nil, decodeError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, &pdfgendomain.ValidationError{Fields: []pdfgendomain.FieldError{{
			Field: "body", Code: "invalid_json", Message: "request body must be a single JSON object",
		}}}
	}

	if err := v.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		fields := make([]pdfgendomain.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fieldError(fe))
		}
		return nil, &pdfgendomain.ValidationError{Fields: fields}
	}
	return &req, nil
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return &pdfgendomain.ValidationError{Fields: []pdfgendomain.FieldError{{
			Field:   field,
			Code:    "invalid_type",
			Message: fmt.Sprintf("expected %s", typeErr.Type.String()),
		}}}
	}
	return &pdfgendomain.ValidationError{Fields: []pdfgendomain.FieldError{{
		Field: "body", Code: "invalid_json", Message: "request body is not valid JSON",
	}}}
}

// fieldError strips the struct name from the namespace: GenerateRequest.margin.top -> margin.top.
func fieldError(fe validator.FieldError) pdfgendomain.FieldError {
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}

	code := fe.Tag()
	var message string
	switch fe.Tag() {
	case "required":
		message = "is required"
	case "oneof":
		code = "invalid_enum"
		message = "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gte":
		code = "too_small"
		message = "must be at least " + fe.Param()
	case "lte":
		code = "too_large"
		message = "must be at most " + fe.Param()
	case "max":
		code = "too_long"
		message = "must be at most " + fe.Param() + " characters"
	case "csslength":
		code = "invalid_length"
		message = "must be a CSS length such as 20mm, 1in, 96px or 12pt"
	default:
		message = "is invalid"
	}
	return pdfgendomain.FieldError{Field: field, Code: code, Message: message}
}
