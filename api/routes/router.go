package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	products "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/reviews"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const serviceName = "storefront-api"

// NewRouter wires every HTTP route. redisP may be nil when redis is not configured.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	gatherer prometheus.Gatherer,
	productService products.Service,
	cartService cart.Service,
	reviewService reviews.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Tracing(serviceName),
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	staff := middleware.RequireRole(logg, enums.RoleManager, enums.RoleAdmin)
	customer := middleware.RequireRole(logg, enums.RoleCustomer)
	anyone := middleware.RequireRole(logg, enums.RoleCustomer, enums.RoleManager, enums.RoleAdmin)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": redisP,
		}, logg))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.With(anyone).Get("/ping", controllers.PrivatePing())

		r.Route("/v1/products", func(r chi.Router) {
			r.With(anyone).Get("/available", controllers.ProductList(productService, true, logg))
			r.Group(func(r chi.Router) {
				r.Use(staff)
				r.Get("/", controllers.ProductList(productService, false, logg))
				r.Post("/", controllers.ProductRegister(productService, logg))
				r.Delete("/", controllers.ProductDeleteAll(productService, logg))
				r.Patch("/{model}", controllers.ProductChangeQuantity(productService, logg))
				r.Patch("/{model}/sell", controllers.ProductSell(productService, logg))
				r.Delete("/{model}", controllers.ProductDelete(productService, logg))
			})
		})

		r.Route("/v1/carts", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(customer)
				r.Get("/", controllers.CartCurrent(cartService, logg))
				r.Post("/", controllers.CartAddProduct(cartService, logg))
				r.Patch("/", controllers.CartCheckout(cartService, logg))
				r.Get("/history", controllers.CartHistory(cartService, logg))
				r.Delete("/current", controllers.CartClear(cartService, logg))
				r.Delete("/products/{model}", controllers.CartRemoveProduct(cartService, logg))
			})
			r.With(staff).Get("/all", controllers.CartListAll(cartService, logg))
			r.With(staff).Delete("/", controllers.CartDeleteAll(cartService, logg))
		})

		r.Route("/v1/reviews", func(r chi.Router) {
			r.With(staff).Delete("/", controllers.ReviewDeleteAll(reviewService, logg))
			r.With(anyone).Get("/{model}", controllers.ReviewList(reviewService, logg))
			r.With(customer).Post("/{model}", controllers.ReviewAdd(reviewService, logg))
			r.With(customer).Delete("/{model}", controllers.ReviewDeleteOwn(reviewService, logg))
			r.With(staff).Delete("/{model}/all", controllers.ReviewDeleteForProduct(reviewService, logg))
		})
	})

	return r
}
