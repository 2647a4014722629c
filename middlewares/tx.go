package middlewares

import (
	"mobileshop-backend/config"
	"mobileshop-backend/database"

	"github.com/gofiber/fiber/v2"
)

// RequestTx runs the rest of the chain inside one DB transaction: commit when the
// handler returns nil, rollback otherwise. Hooks queued with database.AfterCommit
// run only after a successful commit.
// Order: after IsAuthenticatedHeader() and Idempotency(), so idempotency records
// aren't tied to the handler TX.
func RequestTx() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		tx := database.DB.WithContext(c.UserContext()).Begin()
		if tx.Error != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to begin transaction")
		}

		defer func() {
			defer database.RunFinally(c)
			if r := recover(); r != nil {
				_ = tx.Rollback()
				database.DiscardAfterCommit(c)
				panic(r) // re-panic after rollback so the recover middleware can answer
			}
			if err != nil {
				_ = tx.Rollback()
				database.DiscardAfterCommit(c)
				return
			}
			if e := tx.Commit().Error; e != nil {
				config.LogError(config.GetLogger(), "middlewares", "RequestTx", "commit", c.Path(), e)
				database.DiscardAfterCommit(c)
				err = fiber.NewError(fiber.StatusInternalServerError, "transaction commit failed")
				return
			}
			database.RunAfterCommit(c)
		}()

		database.SetTx(c, tx)
		err = c.Next()
		return err
	}
}
