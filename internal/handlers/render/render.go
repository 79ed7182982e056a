package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
)

const (
	ValidationErrorType = "validation_failed"
	DecodingErrorType   = "decoding_failed"
	ServiceErrorType    = "service_error"
)

// MaxBodySize caps request bodies. Credential requests are tiny
const MaxBodySize = 64 << 10

var validate = validator.New()

func init() {
	configureValidator(validate)
}

type Struct any

type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Messages per validation tag. Tags not listed get "Invalid value"
var tagMessages = map[string]func(validator.FieldError) string{
	"required": func(validator.FieldError) string { return "This field is required" },
	"min": func(fe validator.FieldError) string {
		return fmt.Sprintf("Value is too short (minimum %s)", fe.Param())
	},
	"max": func(fe validator.FieldError) string {
		return fmt.Sprintf("Value is too long (maximum %s)", fe.Param())
	},
	"username": func(validator.FieldError) string { return "Only letters, digits, '.', '_' and '-' allowed" },
}

func JSON(w http.ResponseWriter, data any) {
	write(w, http.StatusOK, data)
}

func Created(w http.ResponseWriter, data any) {
	write(w, http.StatusCreated, data)
}

func ServiceError(w http.ResponseWriter, message string, code int) {
	write(w, code, ErrorResponse{Error: ServiceErrorType, Message: message})
}

// DecodeError renders 400 with a message depending on what went wrong while reading JSON
func DecodeError(w http.ResponseWriter, err error) {
	var (
		typeErr     *json.UnmarshalTypeError
		tooLargeErr *http.MaxBytesError
		message     string
	)

	switch {
	case errors.Is(err, io.EOF):
		message = "Request body is empty"
	case errors.As(err, &tooLargeErr):
		message = fmt.Sprintf("Request body is too large (maximum %d bytes)", tooLargeErr.Limit)
	case errors.As(err, &typeErr):
		message = fmt.Sprintf("Invalid data type for field '%s'", typeErr.Field)
	default:
		message = fmt.Sprintf("Failed to parse JSON: %s", err.Error())
	}

	write(w, http.StatusBadRequest, ErrorResponse{Error: DecodingErrorType, Message: message})
}

func ValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	response := ErrorResponse{
		Error:   ValidationErrorType,
		Message: "Request validation failed",
		Fields:  make(map[string]string, len(errs)),
	}

	for _, fe := range errs {
		message := "Invalid value"
		if msg, ok := tagMessages[fe.Tag()]; ok {
			message = msg(fe)
		}
		response.Fields[fe.Field()] = message
	}

	write(w, http.StatusBadRequest, response)
}

// LimitBody wraps request body so reading more than MaxBodySize fails
func LimitBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
}

// BindAndValidate decodes JSON request body into T and validates it using struct tags.
// On failure the error response is already written.
func BindAndValidate[T Struct](w http.ResponseWriter, r *http.Request) (T, error) {
	var value T

	LimitBody(w, r)
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		DecodeError(w, err)
		return value, err
	}

	if err := validate.Struct(value); err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			ServiceError(w, "Request can't be validated", http.StatusInternalServerError)
			return value, err
		}
		ValidationErrors(w, errs)
		return value, err
	}

	return value, nil
}

// write encodes data first so an encoding failure still yields a clean 500.
// Responses carry credentials and must never be cached.
func write(w http.ResponseWriter, code int, data any) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}
