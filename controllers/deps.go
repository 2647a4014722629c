package controllers

import (
	"context"

	"mobileshop-backend/cache"
	"mobileshop-backend/config"
	"mobileshop-backend/database"
	"mobileshop-backend/events"
	"mobileshop-backend/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Dependencies are the collaborators handlers use besides the database.
type Dependencies struct {
	Cache          *cache.Client // nil disables caching and locks
	Publisher      events.Publisher
	Logger         *logrus.Logger
	CurrencySymbol string
}

var deps = Dependencies{
	Publisher:      events.NewNopPublisher(nil),
	Logger:         config.GetLogger(),
	CurrencySymbol: "₹",
}

// Configure installs handler dependencies. Zero fields keep their defaults.
func Configure(d Dependencies) {
	deps.Cache = d.Cache
	if d.Publisher != nil {
		deps.Publisher = d.Publisher
	}
	if d.Logger != nil {
		deps.Logger = d.Logger
	}
	if d.CurrencySymbol != "" {
		deps.CurrencySymbol = d.CurrencySymbol
	}
}

// publishAfterCommit emits an event once the request transaction has committed.
// Publishing failures are logged, never returned: the data is already saved.
func publishAfterCommit(c *fiber.Ctx, t events.EventType, key string, payload any) {
	userID := middlewares.UserID(c)
	database.AfterCommit(c, func() {
		evt, err := events.NewEvent(t, key, userID, payload)
		if err != nil {
			config.LogError(deps.Logger, "controllers", "publishAfterCommit", string(t), key, err)
			return
		}
		if err := deps.Publisher.Publish(context.Background(), evt); err != nil {
			config.LogError(deps.Logger, "controllers", "publishAfterCommit", string(t), key, err)
		}
	})
}

// invalidateLookupAfterCommit drops cached lookups for serviceID after commit.
func invalidateLookupAfterCommit(c *fiber.Ctx, serviceID string) {
	database.AfterCommit(c, func() {
		deps.Cache.InvalidateService(context.Background(), serviceID)
	})
}

// invalidatePhoneLookupAfterCommit drops the phone-only lookup for phone after commit.
func invalidatePhoneLookupAfterCommit(c *fiber.Ctx, phone string) {
	database.AfterCommit(c, func() {
		deps.Cache.InvalidatePhone(context.Background(), phone)
	})
}
