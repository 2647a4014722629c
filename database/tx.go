package database

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	txLocal          = "tx"
	afterCommitLocal = "afterCommit"
	finallyLocal     = "txFinally"
)

// GetDB returns the request's transaction when middlewares.RequestTx opened one,
// otherwise the shared DB.
func GetDB(c *fiber.Ctx) (*gorm.DB, error) {
	if v := c.Locals(txLocal); v != nil {
		if tx, ok := v.(*gorm.DB); ok && tx != nil {
			return tx, nil
		}
	}
	if DB == nil {
		return nil, errors.New("database not initialized")
	}
	return DB.WithContext(c.UserContext()), nil
}

// SetTx stores the per-request transaction.
func SetTx(c *fiber.Ctx, tx *gorm.DB) {
	c.Locals(txLocal, tx)
}

// AfterCommit defers fn until the request transaction commits; it is dropped
// on rollback. Without a transaction fn runs immediately.
func AfterCommit(c *fiber.Ctx, fn func()) {
	if c.Locals(txLocal) == nil {
		fn()
		return
	}
	hooks, _ := c.Locals(afterCommitLocal).([]func())
	c.Locals(afterCommitLocal, append(hooks, fn))
}

// RunAfterCommit runs and clears the hooks queued by AfterCommit.
func RunAfterCommit(c *fiber.Ctx) {
	hooks, _ := c.Locals(afterCommitLocal).([]func())
	c.Locals(afterCommitLocal, nil)
	for _, fn := range hooks {
		fn()
	}
}

// DiscardAfterCommit drops queued hooks after a rollback.
func DiscardAfterCommit(c *fiber.Ctx) {
	c.Locals(afterCommitLocal, nil)
}

// Finally queues fn to run once the request transaction has ended, committed or
// not. Without a transaction fn runs immediately.
func Finally(c *fiber.Ctx, fn func()) {
	if c.Locals(txLocal) == nil {
		fn()
		return
	}
	hooks, _ := c.Locals(finallyLocal).([]func())
	c.Locals(finallyLocal, append(hooks, fn))
}

// RunFinally runs and clears the hooks queued by Finally, last queued first.
func RunFinally(c *fiber.Ctx) {
	hooks, _ := c.Locals(finallyLocal).([]func())
	c.Locals(finallyLocal, nil)
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}
