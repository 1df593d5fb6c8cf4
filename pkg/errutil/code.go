package errutil

import "net/http"

// CoreStatus is a small, transport-independent status vocabulary shared by
// HTTP and gRPC handlers. Each BaseError carries exactly one CoreStatus.
type CoreStatus string

const (
	StatusOK                  CoreStatus = "ok"
	StatusUnknown             CoreStatus = "unknown"
	StatusBadRequest          CoreStatus = "bad_request"
	StatusValidationFailed    CoreStatus = "validation_failed"
	StatusUnauthorized        CoreStatus = "unauthorized"
	StatusForbidden           CoreStatus = "forbidden"
	StatusNotFound            CoreStatus = "not_found"
	StatusConflict            CoreStatus = "conflict"
	StatusUnprocessableEntity CoreStatus = "unprocessable_entity"
	StatusUnsupportedMediaType CoreStatus = "unsupported_media_type"
	StatusTooManyRequests     CoreStatus = "too_many_requests"
	StatusClientClosedRequest CoreStatus = "client_closed_request"
	StatusInternal            CoreStatus = "internal"
	StatusNotImplemented      CoreStatus = "not_implemented"
	StatusBadGateway          CoreStatus = "bad_gateway"
	StatusServiceUnavailable  CoreStatus = "service_unavailable"
	StatusTimeout             CoreStatus = "timeout"
	StatusGatewayTimeout      CoreStatus = "gateway_timeout"

	// StatusFailedPrecondition marks a persisted state or upstream response that
	// contradicts an invariant the caller relied on (wrong order price, wrong
	// item count). Retrying without changing the input will not help.
	StatusFailedPrecondition CoreStatus = "failed_precondition"
	// StatusInvalidArgument marks a caller-supplied value that can never
	// succeed (empty publisher id, non-positive amount, unknown provider).
	StatusInvalidArgument CoreStatus = "invalid_argument"
	// StatusDataLoss marks persisted state that failed to decode into its
	// expected shape.
	StatusDataLoss CoreStatus = "data_loss"
	// StatusUnavailable marks a transient failure of an external
	// collaborator that is expected to succeed on retry.
	StatusUnavailable CoreStatus = "unavailable"
)

// HTTPStatus converts the CoreStatus to its closest net/http status code,
// the HTTP-side counterpart to GRPCCode.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusOK:
		return http.StatusOK
	case StatusBadRequest, StatusInvalidArgument:
		return http.StatusBadRequest
	case StatusValidationFailed:
		return http.StatusUnprocessableEntity
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusForbidden:
		return http.StatusForbidden
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict:
		return http.StatusConflict
	case StatusUnprocessableEntity, StatusFailedPrecondition:
		return http.StatusUnprocessableEntity
	case StatusUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case StatusTooManyRequests:
		return http.StatusTooManyRequests
	case StatusClientClosedRequest:
		return 499
	case StatusNotImplemented:
		return http.StatusNotImplemented
	case StatusBadGateway:
		return http.StatusBadGateway
	case StatusServiceUnavailable, StatusUnavailable:
		return http.StatusServiceUnavailable
	case StatusTimeout:
		return http.StatusRequestTimeout
	case StatusGatewayTimeout:
		return http.StatusGatewayTimeout
	case StatusDataLoss:
		return http.StatusInternalServerError
	case StatusInternal, StatusUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
