package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeProductNotFound      Code = "PRODUCT_NOT_FOUND"
	CodeProductAlreadyExists Code = "PRODUCT_ALREADY_EXISTS"
	CodeEmptyStock           Code = "EMPTY_PRODUCT_STOCK"
	CodeLowStock             Code = "LOW_PRODUCT_STOCK"
	CodeCartNotFound         Code = "CART_NOT_FOUND"
	CodeEmptyCart            Code = "EMPTY_CART"
	CodeProductNotInCart     Code = "PRODUCT_NOT_IN_CART"
	CodeWrongParameter       Code = "WRONG_PARAMETER"
	CodeDate                 Code = "DATE_ERROR"
	CodeExistingReview       Code = "EXISTING_REVIEW"
	CodeNoReview             Code = "NO_REVIEW"
	CodeStorage              Code = "STORAGE_FAILURE"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		Retryable:      false,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeUnauthorized: {
		HTTPStatus:     http.StatusUnauthorized,
		Retryable:      false,
		PublicMessage:  "authentication required",
		DetailsAllowed: false,
	},
	CodeForbidden: {
		HTTPStatus:     http.StatusForbidden,
		Retryable:      false,
		PublicMessage:  "access denied",
		DetailsAllowed: false,
	},
	CodeNotFound: {
		HTTPStatus:     http.StatusNotFound,
		Retryable:      false,
		PublicMessage:  "resource not found",
		DetailsAllowed: false,
	},
	CodeConflict: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      false,
		PublicMessage:  "conflict detected",
		DetailsAllowed: false,
	},
	CodeStateConflict: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "state transition disallowed",
		DetailsAllowed: true,
	},
	CodeIdempotency: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      false,
		PublicMessage:  "idempotency key reused",
		DetailsAllowed: true,
	},
	CodeRateLimit: {
		HTTPStatus:     http.StatusTooManyRequests,
		Retryable:      false,
		PublicMessage:  "rate limit exceeded",
		DetailsAllowed: false,
	},
	CodeInternal: {
		HTTPStatus:     http.StatusInternalServerError,
		Retryable:      true,
		PublicMessage:  "internal server error",
		DetailsAllowed: false,
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},
	CodeProductNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "product not found",
	},
	CodeProductAlreadyExists: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "product already exists",
	},
	CodeEmptyStock: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "product stock is empty",
		DetailsAllowed: true,
	},
	CodeLowStock: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "product stock cannot satisfy the requested quantity",
		DetailsAllowed: true,
	},
	CodeCartNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "cart not found",
	},
	CodeEmptyCart: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "cart is empty",
	},
	CodeProductNotInCart: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "product not in cart",
	},
	CodeWrongParameter: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "wrong parameter combination",
		DetailsAllowed: true,
	},
	CodeDate: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "invalid date",
		DetailsAllowed: true,
	},
	CodeExistingReview: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "review already exists",
	},
	CodeNoReview: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "review not found",
	},
	CodeStorage: {
		HTTPStatus:    http.StatusServiceUnavailable,
		Retryable:     true,
		PublicMessage: "storage unavailable",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether err carries the provided code anywhere in its chain.
func Is(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// Storage wraps a store failure so it surfaces as STORAGE_FAILURE. Errors that are
// already typed pass through unchanged.
func Storage(err error, message string) error {
	if err == nil {
		return nil
	}
	if As(err) != nil {
		return err
	}
	return Wrap(CodeStorage, err, message)
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
