package billing

import "strings"

// Mode selects the bill workflow a Calculator serves.
type Mode string

const (
	ModeSales      Mode = "sales"
	ModeService    Mode = "service"
	ModeSecondHand Mode = "second_hand"
)

// ParseMode maps a bill kind string to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSales:
		return ModeSales, true
	case ModeService:
		return ModeService, true
	case ModeSecondHand:
		return ModeSecondHand, true
	}
	return "", false
}

// Prefix is the bill number prefix for the mode.
func (m Mode) Prefix() string {
	switch m {
	case ModeService:
		return "SV"
	case ModeSecondHand:
		return "SH"
	default:
		return "SB"
	}
}

// MovesStock reports whether bills of this mode take product-backed lines out of stock.
func (m Mode) MovesStock() bool {
	return m == ModeSales || m == ModeSecondHand
}

// Input is the drafting state of one bill.
type Input struct {
	Lines []LineItem
	// Draft is the row currently being edited; it counts only while Active.
	Draft         *LineItem
	Adjustment    BillAdjustment
	LaborCharge   float64
	AmountPrepaid float64
}

// Calculator is the single summary engine behind every bill kind.
type Calculator struct {
	mode Mode
}

func NewCalculator(mode Mode) *Calculator {
	return &Calculator{mode: mode}
}

func (c *Calculator) Mode() Mode { return c.mode }

// IncludesLabor reports whether Lines appends a labor line for in.
func (c *Calculator) IncludesLabor(in Input) bool {
	return c.mode == ModeService && nonNegative(in.LaborCharge) > 0
}

// Lines returns the effective line list: committed lines, the draft when active,
// then the labor line for service bills. The caller's slice is never modified.
func (c *Calculator) Lines(in Input) []LineItem {
	lines := WithDraft(in.Lines, in.Draft)
	if c.IncludesLabor(in) {
		lines = append(lines, LaborLine(in.LaborCharge))
	}
	return lines
}

// Compute recomputes the summary from scratch. Safe to call on every input change.
func (c *Calculator) Compute(in Input) InvoiceSummary {
	s := ComputeSummary(c.Lines(in), in.Adjustment, in.AmountPrepaid)
	s.Mode = c.mode
	return s
}

// WithDraft copies lines and appends draft when it is active.
func WithDraft(lines []LineItem, draft *LineItem) []LineItem {
	out := make([]LineItem, len(lines), len(lines)+2)
	copy(out, lines)
	if draft != nil && draft.Active() {
		out = append(out, *draft)
	}
	return out
}

// LaborLine is the untaxed, undiscounted line carrying a service labor charge.
func LaborLine(charge float64) LineItem {
	return LineItem{
		Quantity:     1,
		UnitPrice:    nonNegative(charge),
		DiscountKind: DiscountNone,
	}
}
