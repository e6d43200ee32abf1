package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"qalam-backend/internal/auth"
	"qalam-backend/internal/middleware"
	"qalam-backend/internal/observability"
	"qalam-backend/pkg/api"
)

// RouterConfig holds the HTTP settings the router needs.
type RouterConfig struct {
	AllowedOrigins       []string
	EnableCircuitBreaker bool
}

// Router creates and configures the HTTP router
type Router struct {
	config  RouterConfig
	tokens  *auth.TokenService
	auth    *AuthHandler
	users   *UserHandler
	posts   *PostHandler
	uploads *UploadHandler
	health  *HealthHandler
	metrics *observability.Collector
	tracer  trace.Tracer
	logger  *zap.Logger
}

// RouterOption configures optional router middleware.
type RouterOption func(*Router)

// WithMetrics records request metrics and serves them on /metrics.
func WithMetrics(c *observability.Collector) RouterOption {
	return func(rt *Router) { rt.metrics = c }
}

// WithTracing starts a server span for every request.
func WithTracing(t trace.Tracer) RouterOption {
	return func(rt *Router) { rt.tracer = t }
}

// NewRouter creates a new router instance
func NewRouter(
	config RouterConfig,
	tokens *auth.TokenService,
	authHandler *AuthHandler,
	userHandler *UserHandler,
	postHandler *PostHandler,
	uploadHandler *UploadHandler,
	healthHandler *HealthHandler,
	logger *zap.Logger,
	opts ...RouterOption,
) *Router {
	rt := &Router{
		config:  config,
		tokens:  tokens,
		auth:    authHandler,
		users:   userHandler,
		posts:   postHandler,
		uploads: uploadHandler,
		health:  healthHandler,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.Recovery(rt.logger))
	router.Use(middleware.Logger(rt.logger))
	if rt.tracer != nil {
		router.Use(middleware.Tracing(rt.tracer, otel.GetTextMapPropagator()))
	}
	if rt.metrics != nil {
		router.Use(middleware.Metrics(rt.metrics))
	}
	if rt.config.EnableCircuitBreaker {
		router.Use(middleware.CircuitBreaker(middleware.DefaultCircuitBreakerConfig("http"), rt.logger))
	}

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", rt.health.Health)
	router.Get("/swagger.json", api.SwaggerHandler())
	if rt.metrics != nil {
		router.Handle("/metrics", rt.metrics.Handler())
	}

	// Public routes
	router.Route("/auth", func(r chi.Router) {
		r.Post("/signup", rt.auth.Signup)
		r.Post("/login", rt.auth.Login)
		r.Get("/{provider}", rt.auth.OAuthStart)
		r.Get("/{provider}/callback", rt.auth.OAuthCallback)
	})
	router.Post("/upload/signup", rt.uploads.SignupURL)

	// Authenticated routes
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(rt.tokens, rt.logger))

		r.Get("/profile", rt.users.Me)
		r.Get("/profile-picture-url", rt.users.ProfilePictureURL)

		r.Route("/users", func(r chi.Router) {
			r.Get("/", rt.users.List)
			r.Get("/profile/{username}", rt.users.Profile)
			r.Get("/profile/{username}/friends", rt.users.ProfileFriends)
			r.Put("/profile/avatar", rt.users.UpdateAvatar)
			r.Delete("/delete", rt.users.Delete)

			r.Get("/friends", rt.users.Friends)
			r.Post("/friends/add/{friendId}", rt.users.AddFriend)
			r.Delete("/friends/remove/{friendId}", rt.users.RemoveFriend)
			r.Get("/friends/check/{friendId}", rt.users.CheckFriend)
		})

		r.Post("/upload/presigned-url", rt.uploads.PresignedURL)
		r.Post("/upload/refresh-url", rt.uploads.RefreshURL)
		r.Get("/signed-url/*", rt.uploads.SignedURL)

		r.Route("/posts", func(r chi.Router) {
			r.Post("/", rt.posts.Create)
			r.Get("/", rt.posts.Feed)
			r.Get("/my-posts", rt.posts.Mine)
			r.Get("/{authorId}/posts", rt.posts.ByAuthor)
			r.Get("/{postId}", rt.posts.Get)
			r.Delete("/{postId}", rt.posts.Delete)

			r.Get("/{postId}/comments", rt.posts.Comments)
			r.Post("/{postId}/comments", rt.posts.AddComment)
			r.Delete("/{postId}/comments/{commentId}", rt.posts.DeleteComment)

			r.Get("/{postId}/like-status", rt.posts.LikeStatus)
			r.Post("/{postId}/like", rt.posts.Like)
			r.Delete("/{postId}/like", rt.posts.Unlike)
		})
	})

	return router
}
