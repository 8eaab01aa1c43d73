package backend

import (
	"net/http"

	"github.com/gorilla/handlers"
)

// compressed wraps a list handler with gzip/deflate compression, if the client accepts it
func compressed(h http.HandlerFunc) http.Handler {
	return handlers.CompressHandler(h)
}
