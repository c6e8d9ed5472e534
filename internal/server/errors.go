package server

import (
	"net/http"

	"github.com/go-chi/render"
)

type ErrResponse struct {
	Err            error `json:"-"`
	HTTPStatusCode int   `json:"-"`

	StatusText string `json:"status"`
	ErrorText  string `json:"error,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func errResponse(code int, status string, err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: code,
		StatusText:     status,
		ErrorText:      err.Error(),
	}
}

func ErrInvalidRequest(err error) render.Renderer {
	return errResponse(http.StatusBadRequest, "Invalid request.", err)
}

func ErrNotFound(err error) render.Renderer {
	return errResponse(http.StatusNotFound, "Not found.", err)
}

func ErrConflict(err error) render.Renderer {
	return errResponse(http.StatusConflict, "Turn in progress.", err)
}

func ErrInternal(err error) render.Renderer {
	return errResponse(http.StatusInternalServerError, "Internal error.", err)
}
