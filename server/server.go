package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Altmerian/jackpot/auth"
	"github.com/Altmerian/jackpot/config"
	"github.com/Altmerian/jackpot/logging"
	"github.com/Altmerian/jackpot/middleware"
	"github.com/Altmerian/jackpot/pkg/jackpot"
)

// App is the HTTP face of the jackpot engine.
type App struct {
	engine     *gin.Engine
	config     *config.Config
	logger     zerolog.Logger
	httpServer *http.Server
	onShutdown []func()

	query *jackpot.QueryService
	feed  *jackpot.Feed

	jackpotHandler    *JackpotHandler
	betHandler        *BetHandler
	evaluationHandler *EvaluationHandler
}

// Options holds server dependencies.
type Options struct {
	Config        *config.Config
	Logger        zerolog.Logger
	Contributions *jackpot.ContributionService
	Evaluations   *jackpot.EvaluationService
	Query         *jackpot.QueryService
	Feed          *jackpot.Feed
	// Bets defaults to applying contributions synchronously.
	Bets BetPublisher
}

const healthTimeout = 2 * time.Second

// New creates the application and its handlers. Routes are added by
// RegisterHealthCheck and RegisterJackpotRoutes.
func New(opts Options) *App {
	if opts.Config.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	bets := opts.Bets
	if bets == nil {
		bets = NewDirectBetPublisher(opts.Contributions)
	}

	return &App{
		engine:            gin.New(),
		config:            opts.Config,
		logger:            opts.Logger,
		query:             opts.Query,
		feed:              opts.Feed,
		jackpotHandler:    NewJackpotHandler(opts.Query, opts.Feed, opts.Logger),
		betHandler:        NewBetHandler(bets, opts.Contributions, opts.Query, opts.Logger),
		evaluationHandler: NewEvaluationHandler(opts.Evaluations, opts.Logger),
	}
}

// UseCommonMiddlewares adds common middlewares to the application
func (a *App) UseCommonMiddlewares() {
	// Recovery middleware (must be first)
	a.engine.Use(middleware.Recovery(a.logger))
	a.engine.Use(middleware.TraceID())
	a.engine.Use(middleware.Logging(a.logger))

	if a.config.Server.EnableCORS {
		a.engine.Use(middleware.CORS(a.config.Server.CORSOrigins...))
	}
}

// RegisterHealthCheck adds health check endpoints. /health only reports the
// process is up; /api/health also reads the jackpot store.
func (a *App) RegisterHealthCheck() {
	a.engine.GET("/health", a.liveness)
	a.engine.GET("/api/health", a.readiness)
}

func (a *App) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"service":   a.config.Environment,
	})
}

func (a *App) readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	body := gin.H{
		"timestamp": time.Now(),
		"service":   a.config.Environment,
		"store":     a.config.Store.Driver,
	}
	if a.feed != nil {
		body["streams"] = a.feed.Listeners()
	}

	jackpots, err := a.query.List(ctx)
	if err != nil {
		log := logging.FromContext(c.Request.Context(), a.logger)
		log.Error().Err(err).Msg("Health check failed to read jackpots")
		body["status"] = "unhealthy"
		body["error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "healthy"
	body["jackpots"] = len(jackpots)
	c.JSON(http.StatusOK, body)
}

// RegisterJackpotRoutes registers the jackpot API.
//
// Routes registered:
//   - POST /api/bets                   -> BetHandler.PublishBet
//   - POST /api/contributions          -> BetHandler.Contribute
//   - GET  /api/evaluations            -> EvaluationHandler.Evaluate
//   - GET  /api/jackpots               -> JackpotHandler.List
//   - GET  /api/jackpots/:id           -> JackpotHandler.Get
//   - GET  /api/jackpots/:id/rewards   -> JackpotHandler.Rewards
//   - GET  /api/jackpots/updates       -> JackpotHandler.StreamUpdates (SSE)
//   - GET  /api/jackpots/updates/ws    -> JackpotHandler.StreamUpdatesWebSocket (WebSocket)
//
// Bets, contributions and evaluations move money and require a bearer token
// when a JWT secret is configured.
func (a *App) RegisterJackpotRoutes() {
	api := a.engine.Group("/api")

	// Streams are long lived and skip the request timeout.
	api.GET("/jackpots/updates", a.jackpotHandler.StreamUpdates)
	api.GET("/jackpots/updates/ws", a.jackpotHandler.StreamUpdatesWebSocket)

	timed := api.Group("", middleware.Timeout(a.config.Server.RequestTimeout))
	{
		timed.GET("/jackpots", a.jackpotHandler.List)
		timed.GET("/jackpots/:id", a.jackpotHandler.Get)
		timed.GET("/jackpots/:id/rewards", a.jackpotHandler.Rewards)
	}

	writes := timed.Group("")
	if a.config.JWT.Secret != "" {
		writes.Use(auth.JWTMiddleware(a.config.JWT.Secret, a.logger))
	} else {
		a.logger.Warn().Msg("JWT secret not configured, write routes are unauthenticated")
	}
	{
		writes.POST("/bets", a.betHandler.PublishBet)
		writes.POST("/contributions", a.betHandler.Contribute)
		writes.GET("/evaluations", a.evaluationHandler.Evaluate)
	}

	a.logger.Info().Msg("Jackpot routes registered: /api")
}

// Router returns the Gin engine for custom route registration
func (a *App) Router() *gin.Engine {
	return a.engine
}

// OnShutdown registers a function to be called on shutdown
func (a *App) OnShutdown(fn func()) {
	a.onShutdown = append(a.onShutdown, fn)
}

func (a *App) newHTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.engine,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}
}

// Run starts the HTTP server and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunWithContext(ctx)
}

// RunWithContext starts the HTTP server and shuts it down when ctx is done.
func (a *App) RunWithContext(ctx context.Context) error {
	a.httpServer = a.newHTTPServer()

	errChan := make(chan error, 1)
	go func() {
		a.logger.Info().
			Int("port", a.config.Server.Port).
			Str("environment", a.config.Environment).
			Msg("Starting HTTP server")

		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return a.shutdown()
	case err := <-errChan:
		return err
	}
}

func (a *App) shutdown() error {
	a.logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Streams never go idle on their own.
	a.jackpotHandler.Close()

	// Stop accepting requests before closing their dependencies.
	err := a.httpServer.Shutdown(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("Error during server shutdown")
	}

	for i := len(a.onShutdown) - 1; i >= 0; i-- {
		a.onShutdown[i]()
	}

	a.logger.Info().Msg("Server shutdown complete")
	return err
}
