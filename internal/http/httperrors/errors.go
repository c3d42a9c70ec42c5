package httperrors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dropDatabas3/signon/internal/flow"
)

// errorResponse estructura interna para la serialización JSON.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// WriteError escribe una respuesta HTTP basada en el error proporcionado.
// Maneja automáticamente errores de tipo *AppError y errores genéricos.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	resp := errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// FromFlowError mapea los errores tipados del motor de flujo a AppError,
// preservando la causa para los logs.
func FromFlowError(err error) *AppError {
	var fe *flow.Error
	if !errors.As(err, &fe) {
		return FromError(err)
	}
	switch fe.Kind {
	case flow.KindConfiguration:
		return ErrProviderMisconfigured.WithCause(err)
	case flow.KindCallback:
		return ErrCallbackRejected.WithDetail(fe.Msg).WithCause(err)
	case flow.KindTokenExchange, flow.KindTokenRequest:
		return ErrExchangeFailed.WithDetail(fe.Msg).WithCause(err)
	case flow.KindProfileResolution:
		return ErrProfileUnavailable.WithDetail(fe.Msg).WithCause(err)
	default:
		return ErrInternalServerError.WithCause(err)
	}
}
