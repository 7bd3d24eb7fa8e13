package router

import (
	"time"

	"tillpos/internal/config"
	"tillpos/internal/handler"
	"tillpos/internal/infra"
	"tillpos/internal/middleware"
	"tillpos/internal/repository"
	"tillpos/internal/service"
	"tillpos/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, mailer *infra.Mailer, dispatcher *worker.Dispatcher) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // 1000 req/min per IP

	// ── Repositories ─────────────────────────────────────────────────────────
	operatorRepo := repository.NewOperatorRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	cartRepo := repository.NewCartRepository(rdb, time.Duration(cfg.CartTTLMinutes)*time.Minute)

	// ── Services ─────────────────────────────────────────────────────────────
	authSvc := service.NewAuthService(operatorRepo, cfg)
	sessionSvc := service.NewSessionService(sessionRepo, saleRepo, dispatcher, cfg.AllowNegativeBalance)
	checkoutSvc := service.NewCheckoutService(cartRepo, saleRepo, sessionSvc, dispatcher)

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(authSvc)
	operatorsH := handler.NewOperatorsHandler(authSvc)
	sessionH := handler.NewSessionHandler(sessionSvc)
	checkoutH := handler.NewCheckoutHandler(checkoutSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(db, rdb, mailer))

	// Auth (public)
	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", middleware.LoginRateLimiter(), authH.Login)
		auth.POST("/refresh", authH.Refresh)
	}

	// Protected routes
	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	v1 := r.Group("/v1", jwtMW)
	{
		// Roles: cashier, supervisor, admin — declared per-endpoint
		session := v1.Group("/session")
		{
			session.POST("/open", middleware.RequireRole("cashier", "supervisor", "admin"), sessionH.Open)
			session.POST("/close", middleware.RequireRole("cashier", "supervisor", "admin"), sessionH.Close)
			session.POST("/supply", middleware.RequireRole("cashier", "supervisor", "admin"), sessionH.Supply)
			session.POST("/withdraw", middleware.RequireRole("cashier", "supervisor", "admin"), sessionH.Withdraw)
			session.GET("/active", middleware.RequireRole("cashier", "supervisor", "admin"), sessionH.Active)
			session.GET("/:id/ledger", middleware.RequireRole("cashier", "supervisor", "admin"), sessionH.Ledger)
			session.GET("/history", middleware.RequireRole("supervisor", "admin"), sessionH.History)
		}

		cart := v1.Group("/cart", middleware.RequireRole("cashier", "supervisor", "admin"))
		{
			cart.GET("", checkoutH.GetCart)
			cart.DELETE("", checkoutH.ClearCart)
			cart.POST("/items", checkoutH.AddItem)
			cart.PATCH("/items/:product_id", checkoutH.UpdateQuantity)
			cart.DELETE("/items/:product_id", checkoutH.RemoveItem)
			cart.POST("/discount", checkoutH.SetDiscount)
		}

		v1.POST("/checkout", middleware.RequireRole("cashier", "supervisor", "admin"), checkoutH.Checkout)
		v1.GET("/sales", middleware.RequireRole("cashier", "supervisor", "admin"), checkoutH.ListSales)
		v1.GET("/sales/:id", middleware.RequireRole("cashier", "supervisor", "admin"), checkoutH.GetSale)

		operators := v1.Group("/operators", middleware.RequireRole("admin"))
		{
			operators.POST("", operatorsH.Create)
			operators.GET("", operatorsH.List)
			operators.PUT("/:id", operatorsH.Update)
			operators.DELETE("/:id", operatorsH.Deactivate)
			operators.PATCH("/:id/reactivate", operatorsH.Reactivate)
		}
	}

	// Swagger UI — only enabled outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
