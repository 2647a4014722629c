package controllers

import (
	"fmt"
	"time"

	"mobileshop-backend/database"
	"mobileshop-backend/models"
	"mobileshop-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
)

const billsSheet = "Bills"

var billExportHeadings = []string{
	"Bill Number", "Kind", "Billed At", "Customer", "Phone", "Payment Method",
	"Subtotal", "Line Discounts", "Bill Discount", "Taxable Base",
	"Tax Half A", "Tax Half B", "Tax Total", "Grand Total", "Prepaid", "Paid", "Balance Due",
}

func billCells(b models.Bill) []any {
	return []any{
		b.BillNumber, b.Kind, b.BilledAt.Format("2006-01-02 15:04"), b.CustomerName, b.CustomerPhone, b.PaymentMethod,
		b.SubtotalGross, b.LineDiscountTotal, b.BillDiscountAmount, b.TaxableBase,
		b.TaxHalfA, b.TaxHalfB, b.TaxTotal, b.GrandTotal, b.AmountPrepaid, b.PaidTotal, b.BalanceDue,
	}
}

// writeBillsSheet renders bills as one row each under a heading row.
func writeBillsSheet(bills []models.Bill) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", billsSheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(billsSheet, "A1", &billExportHeadings); err != nil {
		return nil, err
	}
	for i, b := range bills {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := billCells(b)
		if err := f.SetSheetRow(billsSheet, cell, &row); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// GET /api/bills/export?kind=&from=&to=
func ExportBills(c *fiber.Ctx) error {
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	q := db.Model(&models.Bill{})
	if kind := c.Query("kind"); kind != "" {
		q = q.Where("kind = ?", kind)
	}
	from, to := utils.ParseDateRange(c.Query("from"), c.Query("to"))
	if !from.IsZero() {
		q = q.Where("billed_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("billed_at <= ?", to)
	}

	var bills []models.Bill
	if err := q.Order("billed_at ASC, id ASC").Find(&bills).Error; err != nil {
		return err
	}

	f, err := writeBillsSheet(bills)
	if err != nil {
		return err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return err
	}

	name := fmt.Sprintf("bills-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Send(buf.Bytes())
}
