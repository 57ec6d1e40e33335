package handlers

import (
	"net/http"

	"github.com/voxbridge/voxbridge/pkg/gateway/apierror"
	"github.com/voxbridge/voxbridge/pkg/gateway/mw"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	apierror.Write(w, reqID, &apierror.Error{
		Type:    apierror.ErrNotFound,
		Message: "not found",
	})
}
