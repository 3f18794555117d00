package httpserver

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/emeka/bulksms-back/internal/http/handlers"
	"github.com/emeka/bulksms-back/internal/http/middleware"
)

type RouterDependencies struct {
	API            *handlers.API
	Logger         zerolog.Logger
	AuthToken      string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(deps RouterDependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", deps.API.Health)
	mux.HandleFunc("POST /v1/uploads", deps.API.CreateUpload)
	mux.HandleFunc("GET /v1/uploads/{jobID}/contacts", deps.API.PreviewContacts)
	mux.HandleFunc("POST /v1/sends", deps.API.CreateSend)
	mux.HandleFunc("GET /v1/sends/{jobID}", deps.API.SendProgress)
	mux.HandleFunc("GET /v1/sends/{jobID}/errors", deps.API.SendErrors)

	handler := http.Handler(mux)
	handler = middleware.Auth(deps.AuthToken)(handler)
	handler = middleware.RateLimit(deps.RateLimitRPS, deps.RateLimitBurst)(handler)
	handler = middleware.CORS(deps.CORSOrigins)(handler)
	handler = middleware.Trace(deps.Logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}
