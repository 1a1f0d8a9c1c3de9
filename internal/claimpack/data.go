package claimpack

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/angelmondragon/packclaim/pkg/enums"
	pkgerrors "github.com/angelmondragon/packclaim/pkg/errors"
)

// ClaimPackData is the claim-pack job payload. Step is the resume cursor; an
// empty step means the job has not started.
type ClaimPackData struct {
	PackID uuid.UUID           `json:"packId" validate:"required"`
	UserID *uuid.UUID          `json:"userId,omitempty"`
	Step   enums.ClaimPackStep `json:"step,omitempty" validate:"omitempty,claim_step"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("claim_step", func(fl validator.FieldLevel) bool {
		return enums.ClaimPackStep(fl.Field().String()).IsValid()
	})
	return v
}

// CurrentStep returns the step to run next.
func (d ClaimPackData) CurrentStep() enums.ClaimPackStep {
	if d.Step == "" {
		return enums.FirstClaimPackStep()
	}
	return d.Step
}

// Validate checks the payload shape.
func (d ClaimPackData) Validate() error {
	if err := validate.Struct(d); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// Encode validates and marshals the payload.
func (d ClaimPackData) Encode() (json.RawMessage, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode claim pack payload")
	}
	return raw, nil
}

// DecodeClaimPackData parses and validates a stored payload. Malformed
// payloads are validation errors and are never retried.
func DecodeClaimPackData(raw json.RawMessage) (ClaimPackData, error) {
	var data ClaimPackData
	if err := json.Unmarshal(raw, &data); err != nil {
		return ClaimPackData{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid claim pack payload")
	}
	if err := data.Validate(); err != nil {
		return ClaimPackData{}, err
	}
	return data, nil
}

func formatValidationErrors(err error) *pkgerrors.Error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = validationMessage(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid claim pack payload").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid claim pack payload")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "claim_step":
		return fmt.Sprintf("unknown step %q", fe.Value())
	}
	return "is invalid"
}
