package models

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// NextNumber returns the next "<PREFIX>-<YYYYMMDD>-<NNNN>" document number for day,
// continuing from the highest number already stored in column of model.
func NextNumber(db *gorm.DB, model any, column, prefix string, day time.Time) (string, error) {
	stem := fmt.Sprintf("%s-%s-", prefix, day.UTC().Format("20060102"))

	var last string
	err := db.Model(model).
		Select(column).
		Where(column+" LIKE ?", stem+"%").
		// numbers grow past four digits; a longer suffix is always the later one
		Order("LENGTH(" + column + ") DESC").
		Order(column + " DESC").
		Limit(1).
		Row().Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	next := 1
	if last != "" {
		n, convErr := strconv.Atoi(strings.TrimPrefix(last, stem))
		if convErr != nil {
			return "", fmt.Errorf("malformed document number %q: %w", last, convErr)
		}
		next = n + 1
	}
	return fmt.Sprintf("%s%04d", stem, next), nil
}

func NextBillNumber(db *gorm.DB, prefix string, day time.Time) (string, error) {
	return NextNumber(db, &Bill{}, "bill_number", prefix, day)
}

func NextPurchaseNumber(db *gorm.DB, day time.Time) (string, error) {
	return NextNumber(db, &Purchase{}, "purchase_number", "PO", day)
}
