// Package receipt renders 58mm ESC/POS receipt text. Rendering is a pure
// function over a ReceiptView; callers assemble the view and handle I/O.
package receipt

import (
	"fmt"
	"strings"

	"sukoopos/backend/internal/domain"
)

// 58mm thermal paper fits 32 characters per line.
const lineWidth = 32

const (
	escInit    = "\x1b\x40"
	escCenter  = "\x1b\x61\x01"
	escLeft    = "\x1b\x61\x00"
	escBoldOn  = "\x1b\x45\x01"
	escBoldOff = "\x1b\x45\x00"
)

const (
	shopName    = "SUKOO COFFEE"
	shopTagline = "Kopi enak, harga bersahabat"
)

func Render(view domain.ReceiptView) string {
	var b strings.Builder

	b.WriteString(escInit)
	b.WriteString(escCenter)
	b.WriteString(escBoldOn)
	b.WriteString(shopName + "\n")
	b.WriteString(escBoldOff)
	b.WriteString(shopTagline + "\n")
	b.WriteString(escLeft)
	b.WriteString(divider())

	b.WriteString(pair("No", view.InvoiceNo))
	b.WriteString(pair("Tgl", view.CreatedAt.Format("02/01/2006 15:04")))
	b.WriteString(pair("Kasir", view.Cashier))
	b.WriteString(divider())

	for _, item := range view.Items {
		b.WriteString(clip(item.Name) + "\n")
		left := fmt.Sprintf("  %d x %s", item.Qty, Rupiah(item.Price))
		b.WriteString(row(left, Rupiah(item.Subtotal)))
	}
	b.WriteString(divider())

	b.WriteString(escBoldOn)
	b.WriteString(row("TOTAL", Rupiah(view.Total)))
	b.WriteString(escBoldOff)
	b.WriteString(pair("Bayar", strings.ToUpper(view.PaymentMethod)))

	if c := view.Customer; c != nil {
		b.WriteString(divider())
		b.WriteString(pair("Member", c.Name))
		if c.PointsRedeemed > 0 {
			b.WriteString(row("Poin dipakai", fmt.Sprintf("-%d", c.PointsRedeemed)))
		}
		if c.PointsEarned > 0 {
			b.WriteString(row("Poin masuk", fmt.Sprintf("+%d", c.PointsEarned)))
		}
		b.WriteString(row("Saldo poin", fmt.Sprintf("%d", c.PointsBalance)))
	}

	b.WriteString(divider())
	b.WriteString(escCenter)
	b.WriteString("Terima kasih!\n")
	b.WriteString("Sampai jumpa lagi\n")
	b.WriteString(escLeft)
	b.WriteString("\n\n\n")
	return b.String()
}

// Rupiah formats an amount with dot thousand separators, e.g. 15.000.
func Rupiah(amount int64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}
	digits := fmt.Sprintf("%d", amount)
	var parts []string
	for len(digits) > 3 {
		parts = append([]string{digits[len(digits)-3:]}, parts...)
		digits = digits[:len(digits)-3]
	}
	parts = append([]string{digits}, parts...)
	out := strings.Join(parts, ".")
	if negative {
		return "-" + out
	}
	return out
}

func divider() string {
	return strings.Repeat("-", lineWidth) + "\n"
}

// row left-aligns one value and right-aligns the other on a single line.
func row(left, right string) string {
	gap := lineWidth - len(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right + "\n"
}

func pair(label, value string) string {
	return clip(fmt.Sprintf("%-6s: %s", label, value)) + "\n"
}

// clip truncates to the paper width by rune so a long multibyte name is
// never cut mid-character.
func clip(s string) string {
	runes := []rune(s)
	if len(runes) > lineWidth {
		return string(runes[:lineWidth])
	}
	return s
}
