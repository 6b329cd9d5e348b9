package b2

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"gitlab.com/sympolymathesy/ogimage"
)

// maxErrorBody bounds the raw body kept when an error response is not JSON.
const maxErrorBody = 256

// ErrorResponse is the structured error body B2 returns on failed calls.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "code: '%s', ", e.Code)
	if e.Message != "" {
		fmt.Fprintf(&b, "message: '%s', ", e.Message)
	}
	fmt.Fprintf(&b, "status: %d", e.Status)
	return b.String()
}

// parseErrorResponse reads the error body of a failed call. Bodies that are
// not B2 error JSON (a proxy's HTML page, an empty 503) are folded into an
// ErrorResponse built from the status line, so a failure always has one.
func parseErrorResponse(resp *resty.Response) *ErrorResponse {
	var e ErrorResponse
	if err := json.Unmarshal(resp.Body(), &e); err != nil || e.Code == "" {
		message := strings.TrimSpace(string(resp.Body()))
		if len(message) > maxErrorBody {
			message = message[:maxErrorBody]
		}
		return &ErrorResponse{
			Status:  resp.StatusCode(),
			Code:    statusCode(resp.StatusCode()),
			Message: message,
		}
	}
	if e.Status == 0 {
		e.Status = resp.StatusCode()
	}
	return &e
}

func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "unknown"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode parses a JSON success body into v and checks its required fields.
// Every failure is EDESERIALIZE and names the offending field where known.
func decode(call string, body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return ogimage.WrapError(err, ogimage.EDESERIALIZE,
				"%s: field %q: cannot use %s as %s", call, typeErr.Field, typeErr.Value, typeErr.Type)
		}
		return ogimage.WrapError(err, ogimage.EDESERIALIZE, "%s: malformed response body", call)
	}

	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return ogimage.WrapError(err, ogimage.EDESERIALIZE,
				"%s: missing required field %q", call, fieldPath(verrs[0]))
		}
		return ogimage.WrapError(err, ogimage.EDESERIALIZE, "%s: invalid response body", call)
	}
	return nil
}

// fieldPath drops the struct name from a validator namespace, leaving the
// JSON path of the field.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
