package validator_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yusufsyaifudin/bulkmail/pkg/validator"
)

func TestSimplestr(t *testing.T) {
	testCases := []struct {
		Str string `validate:"required"`
		Err bool
	}{
		{
			Str: "",
			Err: true,
		},
		{
			Str: "abc",
			Err: false,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Str, func(t *testing.T) {
			err := validator.Validate(testCase)
			if !testCase.Err {
				assert.NoError(t, err)
				return
			}

			assert.Error(t, err)
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	assert.Error(t, validator.Validate(nil))
}

func TestFieldErrors(t *testing.T) {
	type form struct {
		Subject string `schema:"subject" validate:"required,min=3"`
		Quota   int    `json:"recipients_per_sender" validate:"min=1,max=100"`
		Email   string `json:"user_email" validate:"omitempty,email"`
	}

	err := validator.Validate(form{Subject: "hi", Quota: 101, Email: "nope"})
	require.Error(t, err)

	fields := validator.FieldErrors(err)
	assert.Equal(t, []validator.FieldError{
		{Field: "subject", Rule: "min", Param: "3", Message: "subject must be at least 3 characters"},
		{Field: "recipients_per_sender", Rule: "max", Param: "100", Message: "recipients_per_sender must be at most 100"},
		{Field: "user_email", Rule: "email", Message: "user_email must be a valid email address"},
	}, fields)

	assert.Nil(t, validator.FieldErrors(errors.New("other")))
	assert.Nil(t, validator.FieldErrors(nil))
}
