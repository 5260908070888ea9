package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/jmehdipour/sms-inbox/internal/model"
)

// Upper bounds in characters. The identifier bounds match the store's column widths.
const (
	MaxTextLength      = 4096
	MaxMessageIDLength = 255
	MaxMSISDNLength    = 32
	MaxTSLength        = 64
)

var msisdnRe = regexp.MustCompile(`^\+[0-9]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool {
		return msisdnRe.MatchString(fl.Field().String())
	})
	return v
}

// Error is returned for any payload that cannot become a message record.
type Error struct {
	Field  string
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

type payload struct {
	MessageID string  `json:"message_id" validate:"required,max=255"`
	From      string  `json:"from"       validate:"required,max=32,msisdn"`
	To        string  `json:"to"         validate:"required,max=32,msisdn"`
	TS        *string `json:"ts"         validate:"required,max=64"`
	Text      *string `json:"text"       validate:"omitempty,max=4096"`
}

// Parse decodes a raw webhook body into a message record. Values are kept exactly
// as received; created_at is left for the store to assign.
func Parse(raw []byte) (model.Message, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.Message{}, decodeError(err)
	}

	if err := validate.Struct(p); err != nil {
		return model.Message{}, fieldError(err)
	}

	return model.Message{
		MessageID: p.MessageID,
		From:      p.From,
		To:        p.To,
		TS:        *p.TS,
		Text:      p.Text,
	}, nil
}

func decodeError(err error) *Error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return &Error{Field: typeErr.Field, Reason: "must be a " + typeErr.Type.String(), Cause: err}
	}
	return &Error{Reason: "body must be a JSON object", Cause: err}
}

func fieldError(err error) *Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &Error{Reason: "invalid payload", Cause: err}
	}

	fe := verrs[0]
	field := jsonName(fe.StructField())
	switch fe.Tag() {
	case "required":
		return &Error{Field: field, Reason: "field required", Cause: err}
	case "msisdn":
		return &Error{Field: field, Reason: "must match ^\\+\\d+$", Cause: err}
	case "max":
		return &Error{Field: field, Reason: fmt.Sprintf("must be at most %s characters", fe.Param()), Cause: err}
	default:
		return &Error{Field: field, Reason: "invalid value", Cause: err}
	}
}

func jsonName(structField string) string {
	switch structField {
	case "MessageID":
		return "message_id"
	case "From":
		return "from"
	case "To":
		return "to"
	case "TS":
		return "ts"
	case "Text":
		return "text"
	default:
		return structField
	}
}
