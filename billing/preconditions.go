package billing

import (
	"fmt"
	"strings"
)

const (
	PaymentCash         = "cash"
	PaymentCard         = "card"
	PaymentUPI          = "upi"
	PaymentBankTransfer = "bank_transfer"
	PaymentCredit       = "credit"
)

var paymentMethods = map[string]bool{
	PaymentCash:         true,
	PaymentCard:         true,
	PaymentUPI:          true,
	PaymentBankTransfer: true,
	PaymentCredit:       true,
}

// ValidPaymentMethod reports whether m is an accepted payment method.
func ValidPaymentMethod(m string) bool {
	return paymentMethods[strings.ToLower(strings.TrimSpace(m))]
}

// PreconditionError is a user-facing reason a bill cannot be saved.
type PreconditionError struct {
	Field   string
	Message string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Precondition builds a PreconditionError.
func Precondition(field, message string) error {
	return &PreconditionError{Field: field, Message: message}
}

// SaveRequest is what the save workflow checks before calling the engine or storage.
type SaveRequest struct {
	Mode          Mode
	CustomerName  string
	ServiceID     string
	PaymentMethod string
	// Lines is the effective line list (draft already folded in).
	Lines []LineItem
}

// CheckPreconditions returns the first failing precondition, or nil.
func CheckPreconditions(r SaveRequest) error {
	if !hasActiveLine(r.Lines) {
		return Precondition("items", "at least one line item is required")
	}
	if strings.TrimSpace(r.CustomerName) == "" {
		return Precondition("customer_name", "customer name is required")
	}
	if r.Mode == ModeService && strings.TrimSpace(r.ServiceID) == "" {
		return Precondition("service_id", "service id is required for service bills")
	}
	if !ValidPaymentMethod(r.PaymentMethod) {
		return Precondition("payment_method", "payment method must be one of cash, card, upi, bank_transfer, credit")
	}
	return nil
}

func hasActiveLine(lines []LineItem) bool {
	for _, l := range lines {
		if l.Active() {
			return true
		}
	}
	return false
}
