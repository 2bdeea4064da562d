package handler

import "net/http"

// HandleHealth answers load balancer health checks. It does not touch the store.
//
// HTTP: GET /healthz
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, "ok")
}
