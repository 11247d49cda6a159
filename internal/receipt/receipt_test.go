package receipt

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"sukoopos/backend/internal/domain"
)

func sampleView() domain.ReceiptView {
	return domain.ReceiptView{
		InvoiceNo:     "SK-20260315-A1B2C3",
		CreatedAt:     time.Date(2026, 3, 15, 9, 41, 0, 0, time.UTC),
		Cashier:       "kasir",
		PaymentMethod: "cash",
		Total:         37000,
		Items: []domain.ReceiptItem{
			{Name: "Espresso", Qty: 1, Price: 15000, Subtotal: 15000},
			{Name: "Kopi Susu Gula Aren", Qty: 1, Price: 22000, Subtotal: 22000},
		},
	}
}

func TestRenderBasicReceipt(t *testing.T) {
	text := Render(sampleView())

	for _, want := range []string{
		"SUKOO COFFEE",
		"SK-20260315-A1B2C3",
		"15/03/2026 09:41",
		"Espresso",
		"Kopi Susu Gula Aren",
		"TOTAL",
		"37.000",
		"CASH",
		"Terima kasih!",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("receipt missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Member") {
		t.Fatalf("receipt without customer must not have a member section")
	}
}

func TestRenderMemberSection(t *testing.T) {
	view := sampleView()
	view.Customer = &domain.ReceiptCustomer{
		Name:           "Dewi",
		Phone:          "081234567890",
		PointsEarned:   2,
		PointsRedeemed: 10,
		PointsBalance:  5,
	}

	text := Render(view)
	for _, want := range []string{"Member", "Dewi", "-10", "+2", "Saldo poin"} {
		if !strings.Contains(text, want) {
			t.Fatalf("receipt missing %q:\n%s", want, text)
		}
	}
}

func TestRenderLinesFitPaperWidth(t *testing.T) {
	view := sampleView()
	view.Items = append(view.Items, domain.ReceiptItem{
		Name:     "Nama Produk Yang Sangat Panjang Sekali Melebihi Kertas",
		Qty:      1,
		Price:    10000,
		Subtotal: 10000,
	})

	for _, line := range strings.Split(Render(view), "\n") {
		// Strip ESC/POS control sequences before measuring.
		clean := line
		for _, esc := range []string{escInit, escCenter, escLeft, escBoldOn, escBoldOff} {
			clean = strings.ReplaceAll(clean, esc, "")
		}
		if utf8.RuneCountInString(clean) > lineWidth {
			t.Fatalf("line exceeds %d chars: %q", lineWidth, clean)
		}
	}
}

func TestRenderClipsMultibyteNameOnRuneBoundary(t *testing.T) {
	view := sampleView()
	view.Items[0].Name = strings.Repeat("Es Kopi Susu Spésial ", 3)

	text := Render(view)
	if !utf8.ValidString(text) {
		t.Fatalf("receipt contains invalid UTF-8:\n%q", text)
	}
	for _, line := range strings.Split(text, "\n") {
		clean := line
		for _, esc := range []string{escInit, escCenter, escLeft, escBoldOn, escBoldOff} {
			clean = strings.ReplaceAll(clean, esc, "")
		}
		if utf8.RuneCountInString(clean) > lineWidth {
			t.Fatalf("line exceeds %d chars: %q", lineWidth, clean)
		}
	}
}

func TestRupiahFormatting(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{500, "500"},
		{15000, "15.000"},
		{1250000, "1.250.000"},
		{-22000, "-22.000"},
	}
	for _, c := range cases {
		if got := Rupiah(c.in); got != c.want {
			t.Fatalf("Rupiah(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}
