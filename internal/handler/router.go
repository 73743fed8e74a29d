package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/config"
	"github.com/weiawesome/wes-io-live/chat-relay/pkg/log"
)

// NewRouter assembles the HTTP and websocket routes behind CORS and request
// logging.
func NewRouter(httpHandler *HTTPHandler, wsHandler *WSHandler, corsCfg config.CORSConfig, logger zerolog.Logger) http.Handler {
	r := mux.NewRouter()
	wsHandler.RegisterRoutes(r)
	httpHandler.RegisterRoutes(r)

	c := cors.New(cors.Options{
		AllowedOrigins: corsCfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	})

	return log.HTTPMiddleware(logger)(c.Handler(r))
}
