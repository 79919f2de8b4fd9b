package api

import (
	"fmt"
	"net/http"
	"time"
)

// NewServer creates the *http.Server for the wallet API.
func NewServer(port uint16, deps Deps) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewRouter(deps),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
