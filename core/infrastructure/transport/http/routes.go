package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyperterse/hypercluster/core/domain/interfaces"
	"github.com/hyperterse/hypercluster/core/infrastructure/transport/http/dto"
	"github.com/hyperterse/hypercluster/core/infrastructure/transport/http/handlers"
	httpmiddleware "github.com/hyperterse/hypercluster/core/infrastructure/transport/http/middleware"
	"github.com/hyperterse/hypercluster/core/logger"
)

// Routes bundles what RegisterRoutes mounts.
type Routes struct {
	Store    interfaces.ProductStore
	Notifier handlers.EventNotifier
	// Realtime serves the websocket endpoint. Optional.
	Realtime http.Handler
}

// RegisterRoutes registers all HTTP routes
func RegisterRoutes(r chi.Router, routes Routes) {
	log := logger.New("routes")

	var registered []string

	r.Get("/heartbeat", handleHeartbeat)
	registered = append(registered, "GET /heartbeat")

	r.Handle("/metrics", promhttp.Handler())
	registered = append(registered, "GET /metrics")

	if routes.Realtime != nil {
		r.Handle("/ws", routes.Realtime)
		registered = append(registered, "GET /ws (websocket)")
	}

	products := handlers.NewProductHandler(routes.Store, routes.Notifier)
	r.Route("/api/productos", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(httpmiddleware.Tracing)

		r.Get("/", products.List)
		r.Post("/", products.Create)
		r.Get("/{id}", products.Get)
		r.Put("/{id}", products.Update)
		r.Delete("/{id}", products.Delete)
	})
	registered = append(registered,
		"GET /api/productos",
		"POST /api/productos",
		"GET /api/productos/{id}",
		"PUT /api/productos/{id}",
		"DELETE /api/productos/{id}",
	)

	log.Debugf("Routes registered: %d", len(registered))
	for _, route := range registered {
		log.Debugf("  %s", route)
	}
}

func handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	handlers.NewBaseHandler("http").WriteSuccess(w, dto.HealthResponse{Success: true})
}
