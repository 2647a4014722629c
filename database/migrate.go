package database

import (
	"fmt"

	"mobileshop-backend/models"

	"gorm.io/gorm"
)

// Migrate applies (idempotent) schema migrations:
// - AutoMigrate (tables/columns/index tags)
// - on postgres, basic CHECK constraints on money and stock columns
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Customer{},
		&models.Product{},
		&models.Dealer{},
		&models.Purchase{},
		&models.PurchaseItem{},
		&models.ServiceRecord{},
		&models.ServicePart{},
		&models.Bill{},
		&models.BillItem{},
		&models.Payment{},
		&models.IdempotencyKey{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}

	if db.Dialector.Name() != "postgres" {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		checks := []struct{ table, name, expr string }{
			{"products", "chk_products_prices_nonneg", "sell_price >= 0 AND cost_price >= 0"},
			{"products", "chk_products_stock_nonneg", "stock >= 0"},
			{"payments", "chk_payments_amount_pos", "amount > 0"},
			{"bills", "chk_bills_balance_nonneg", "balance_due >= 0"},
			{"bill_items", "chk_bill_items_net_nonneg", "net >= 0"},
		}
		for _, c := range checks {
			stmt := fmt.Sprintf(`DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM pg_constraint
		WHERE conrelid = '%[1]s'::regclass
		  AND conname  = '%[2]s'
	) THEN
		ALTER TABLE %[1]s ADD CONSTRAINT %[2]s CHECK (%[3]s);
	END IF;
END $$;`, c.table, c.name, c.expr)
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("check constraint migration failed on %s: %w", c.name, err)
			}
		}
		return nil
	})
}
