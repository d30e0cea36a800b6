package handler

import (
	"net/http"

	"github.com/kelani/settled/internal/errHandler"
	"github.com/kelani/settled/internal/response"
)

type healthCheckHandler struct {
	err *errHandler.ErrorHandler
}

func NewHealthCheckHandler(err *errHandler.ErrorHandler) *healthCheckHandler {
	return &healthCheckHandler{
		err: err,
	}
}
func (h *healthCheckHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	message := "Up and grateful"

	err := response.JSONOkResponse(w, nil, message, nil)
	if err != nil {
		h.err.ServerError(w, r, err)
	}
}
