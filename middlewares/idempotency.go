package middlewares

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"mobileshop-backend/database"
	"mobileshop-backend/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const idempotencyHeader = "Idempotency-Key"

// A pending record older than this is treated as abandoned by a crashed request.
const idempotencyPendingTimeout = 2 * time.Minute

// Idempotency replays the stored response for a repeated Idempotency-Key on mutating
// methods. It runs its own short transactions so the record survives a handler rollback.
func Idempotency() fiber.Handler {
	return func(c *fiber.Ctx) error {
		method := strings.ToUpper(c.Method())
		if method != fiber.MethodPost && method != fiber.MethodPut && method != fiber.MethodPatch && method != fiber.MethodDelete {
			return c.Next()
		}

		key := strings.TrimSpace(c.Get(idempotencyHeader))
		if key == "" {
			return c.Next()
		}
		if len(key) > 128 {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key too long")
		}

		userID := UserID(c)
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "auth context missing")
		}

		path := c.OriginalURL()
		reqHash := requestHash(method, path, c.Body(), userID)

		// Phase 1: find or create the pending record
		var existing models.IdempotencyKey
		replayed, created := false, false
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where(&models.IdempotencyKey{Key: key}).First(&existing).Error; err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return fiber.NewError(fiber.StatusInternalServerError, "idempotency lookup failed")
				}
				rec := models.IdempotencyKey{
					Key:         key,
					RequestHash: reqHash,
					Method:      method,
					Path:        path,
					UserID:      userID,
				}
				res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
				if res.Error != nil {
					return fiber.NewError(fiber.StatusInternalServerError, "idempotency create failed")
				}
				if res.RowsAffected == 0 {
					// lost the insert race: read the winner's record
					if err := tx.Where(&models.IdempotencyKey{Key: key}).First(&existing).Error; err != nil {
						return fiber.NewError(fiber.StatusInternalServerError, "idempotency create failed")
					}
				} else {
					existing, created = rec, true
				}
			}

			if existing.RequestHash != reqHash {
				return fiber.NewError(fiber.StatusConflict, "Idempotency-Key reuse with different request")
			}
			if existing.ResponseStatus != 0 {
				replayed = true
				return nil
			}
			if !created {
				if time.Since(existing.CreatedAt) < idempotencyPendingTimeout {
					return fiber.NewError(fiber.StatusConflict, "a request with this Idempotency-Key is still in progress")
				}
				// take over the abandoned record
				return tx.Model(&models.IdempotencyKey{}).Where("id = ?", existing.ID).
					Update("created_at", time.Now().UTC()).Error
			}
			return nil
		})
		if err != nil {
			return err
		}
		if replayed {
			c.Set("Idempotent-Replayed", "true")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(existing.ResponseStatus).Send(existing.ResponseBody)
		}

		if err := c.Next(); err != nil {
			// failed requests are not recorded; the client may retry with the same key
			_ = database.DB.Where(&models.IdempotencyKey{Key: key}).Where("response_status = ?", 0).Delete(&models.IdempotencyKey{}).Error
			return err
		}

		// Phase 2: store the response, best effort
		now := time.Now().UTC()
		status := c.Response().StatusCode()
		resp := c.Response().Body()
		blob := make([]byte, len(resp))
		copy(blob, resp)

		_ = database.DB.Model(&models.IdempotencyKey{}).
			Where(&models.IdempotencyKey{Key: key}).
			Updates(map[string]any{
				"response_status": status,
				"response_body":   blob,
				"completed_at":    &now,
			}).Error

		return nil
	}
}

func requestHash(method, path string, body []byte, userID string) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'\n'})
	h.Write([]byte(path))
	h.Write([]byte{'\n'})
	h.Write(body)
	h.Write([]byte{'\n'})
	h.Write([]byte(userID))
	return hex.EncodeToString(h.Sum(nil))
}
