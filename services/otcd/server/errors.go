package server

import (
	"errors"
	"net/http"

	"otcswap/core/state"
	"otcswap/native/bank"
	nativecommon "otcswap/native/common"
	"otcswap/native/otc"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code     string `json:"code"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// classify maps an engine error onto an HTTP status and a stable code.
func classify(err error) (int, string) {
	if typed, ok := otc.AsError(err); ok {
		if typed == otc.ErrOfferNotFound {
			return http.StatusNotFound, typed.Code
		}
		switch typed.Category {
		case otc.CategoryAuthorization:
			return http.StatusForbidden, typed.Code
		case otc.CategoryInput:
			return http.StatusBadRequest, typed.Code
		case otc.CategoryState, otc.CategoryCapacity:
			return http.StatusConflict, typed.Code
		case otc.CategoryArithmetic:
			return http.StatusUnprocessableEntity, typed.Code
		case otc.CategoryConfiguration:
			return http.StatusServiceUnavailable, typed.Code
		case otc.CategoryCustody:
			return http.StatusInternalServerError, typed.Code
		}
		return http.StatusInternalServerError, typed.Code
	}
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, "ModulePaused"
	case errors.Is(err, bank.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "InsufficientBalance"
	case errors.Is(err, bank.ErrBalanceOverflow):
		return http.StatusUnprocessableEntity, "BalanceOverflow"
	case errors.Is(err, state.ErrConflict):
		return http.StatusServiceUnavailable, "Conflict"
	}
	return http.StatusInternalServerError, "Internal"
}
