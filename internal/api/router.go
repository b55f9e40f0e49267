package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"vending-backend/config"
	"vending-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, deps Deps) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(deps)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Short response cache for the read-heavy list endpoints the kiosk
	// frontends poll.
	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	// The live channel sits outside the rate-limited API group.
	r.GET("/ws", handler.ServeWS)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/machines", caching, handler.GetMachines)
		api.POST("/machines", handler.CreateMachine)
		api.GET("/machines/online", caching, handler.GetOnlineMachines)
		api.GET("/machines/dashboard", caching, handler.GetDashboard)
		api.GET("/machines/:id", handler.GetMachine)
		api.GET("/machines/:id/temperature", handler.GetTemperatureHistory)
		api.GET("/machines/:id/products", caching, handler.GetMachineProducts)

		api.GET("/products", caching, handler.GetProducts)
		api.POST("/products", handler.CreateProduct)
		api.GET("/products/:id", handler.GetProduct)
		api.PATCH("/products/:id", handler.UpdateProduct)
		api.DELETE("/products/:id", handler.DeleteProduct)
		api.POST("/products/:id/machines/:machineId/stock", handler.SetStock)

		api.POST("/payments/create", handler.CreatePayment)
		api.POST("/payments/notification", handler.PaymentNotification)
		api.GET("/payments/status/:orderId", handler.GetPaymentStatus)
		api.POST("/payments/cancel/:orderId", handler.CancelPayment)
		api.GET("/payments/transactions", handler.GetTransactions)
		api.GET("/payments/transaction/:orderId", handler.GetTransaction)

		api.GET("/mqtt/status", handler.GetBrokerStatus)
		api.POST("/mqtt/publish", handler.Publish)
		api.POST("/mqtt/dispense", handler.Dispense)
		api.POST("/mqtt/resubscribe", handler.Resubscribe)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)

		api.POST("/advisor/sessions", handler.StartAdvisorSession)
		api.POST("/advisor/sessions/:id/answers", handler.AnswerAdvisorQuestion)
		api.GET("/advisor/sessions/:id/result", handler.GetAdvisorResult)

		api.GET("/users", handler.GetUsers)
		api.POST("/users", handler.CreateUser)
		api.GET("/users/:id", handler.GetUser)
	}

	return r
}
