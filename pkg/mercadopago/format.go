package mercadopago

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var statusDescriptions = map[string]string{
	StatusPending:     "Pago pendiente",
	StatusApproved:    "Pago aprobado",
	StatusAuthorized:  "Pago autorizado",
	StatusInProcess:   "Pago en proceso",
	StatusInMediation: "Pago en mediación",
	StatusRejected:    "Pago rechazado",
	StatusCancelled:   "Pago cancelado",
	StatusRefunded:    "Pago reembolsado",
	StatusChargedBack: "Contracargo",
}

// StatusDescription returns the customer facing (es-AR) text for a status
func StatusDescription(status, detail string) string {
	if d, ok := statusDescriptions[status]; ok {
		return d
	}
	return fmt.Sprintf("Estado: %s (%s)", status, detail)
}

// Statuses a payment may move to once it reached a settled one. Missing
// statuses accept any change.
var transitions = map[string][]string{
	StatusApproved:    {StatusInMediation, StatusRefunded, StatusChargedBack},
	StatusInMediation: {StatusApproved, StatusRefunded, StatusChargedBack},
	StatusRejected:    {StatusApproved, StatusAuthorized},
	StatusCancelled:   {StatusApproved, StatusAuthorized},
	StatusRefunded:    {},
	StatusChargedBack: {},
}

// CanTransition reports whether a payment in status from may take status
// to. Notifications arrive out of order, so a settled payment never moves
// back to pending or in_process.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	allowed, settled := transitions[from]
	if !settled {
		return true
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

var currencySymbols = map[string]string{
	"ARS": "$",
	"USD": "US$",
	"EUR": "€",
	"BRL": "R$",
}

// FormatAmount renders amount the es-AR way, e.g. "$ 1.234,50"
func FormatAmount(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = "ARS"
	}
	symbol, ok := currencySymbols[currency]
	if !ok {
		symbol = currency
	}

	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}

	fixed := amount.StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}
	return fmt.Sprintf("%s%s %s,%s", sign, symbol, grouped.String(), frac)
}
