package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shippingForm struct {
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Quantity int    `json:"quantity" validate:"gte=1,lte=99"`
}

func TestValidate_Success(t *testing.T) {
	err := Validate(shippingForm{FullName: "Ada Lovelace", Email: "ada@example.com", Quantity: 2})
	assert.NoError(t, err)
}

func TestValidate_MissingRequired_UsesJSONName(t *testing.T) {
	err := Validate(shippingForm{Quantity: 1})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Equal(t, "is required", fields["fullName"])
}

func TestValidate_InvalidEmail(t *testing.T) {
	err := Validate(shippingForm{FullName: "Ada", Email: "not-an-email", Quantity: 1})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be a valid email address", valErr.Fields()["email"])
}

func TestValidate_OutOfRange(t *testing.T) {
	err := Validate(shippingForm{FullName: "Ada", Quantity: 200})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields()["quantity"], "99")
}

func TestValidate_MultipleErrors(t *testing.T) {
	err := Validate(shippingForm{})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Contains(t, fields, "fullName")
	assert.Contains(t, fields, "quantity")
}

func TestValidationError_ErrorString(t *testing.T) {
	err := Validate(shippingForm{Quantity: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field 'fullName'")
	assert.Contains(t, err.Error(), "is required")
}

func TestVar_ReportsGivenField(t *testing.T) {
	err := Var("quantity", 0, "gt=0")

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be greater than 0", valErr.Fields()["quantity"])

	assert.NoError(t, Var("quantity", 3, "gt=0"))
}

func TestMinMessage_StringVsNumber(t *testing.T) {
	type form struct {
		Name  string `json:"name" validate:"min=3"`
		Count int    `json:"count" validate:"min=2"`
	}
	err := Validate(form{Name: "ab", Count: 1})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be at least 3 characters", valErr.Fields()["name"])
	assert.Equal(t, "must be at least 2", valErr.Fields()["count"])
}

func TestDecodeAndValidate_Success(t *testing.T) {
	body := `{"fullName":"Ada","quantity":3}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	var dst shippingForm
	require.NoError(t, DecodeAndValidate(req, &dst))
	assert.Equal(t, "Ada", dst.FullName)
	assert.Equal(t, 3, dst.Quantity)
}

func TestDecodeAndValidate_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{broken`))

	var dst shippingForm
	err := DecodeAndValidate(req, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}

func TestDecodeAndValidate_UnknownField(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"fullName":"Ada","quantity":1,"admin":true}`))

	var dst shippingForm
	err := DecodeAndValidate(req, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")
}

func TestDecodeAndValidate_ValidationFails(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":1}`))

	var dst shippingForm
	err := DecodeAndValidate(req, &dst)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestDecode_DoesNotValidate(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":0}`))

	var dst shippingForm
	require.NoError(t, Decode(req, &dst))
	assert.Equal(t, 0, dst.Quantity)
}
