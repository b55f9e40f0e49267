package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"vending-backend/internal/advisor"
	"vending-backend/internal/bus"
	"vending-backend/internal/dispense"
	"vending-backend/internal/payment"
	"vending-backend/internal/store"
	"vending-backend/internal/telemetry"
	"vending-backend/internal/ws"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	webpush   *webpush.Options
	bus       bus.Client
	hub       *ws.Hub
	ingestor  *telemetry.Ingestor
	commander *dispense.Commander
	payments  *payment.Service
	advisor   *advisor.Service
}

// Deps bundles the services the router exposes over HTTP.
type Deps struct {
	Store     store.Store
	Webpush   *webpush.Options
	Bus       bus.Client
	Hub       *ws.Hub
	Ingestor  *telemetry.Ingestor
	Commander *dispense.Commander
	Payments  *payment.Service
	Advisor   *advisor.Service
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		store:     d.Store,
		webpush:   d.Webpush,
		bus:       d.Bus,
		hub:       d.Hub,
		ingestor:  d.Ingestor,
		commander: d.Commander,
		payments:  d.Payments,
		advisor:   d.Advisor,
	}
}
