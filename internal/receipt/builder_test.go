package receipt

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"barpos/internal/core"

	"github.com/shopspring/decimal"
)

func sampleOrder() *core.Order {
	variant := int64(1)
	return &core.Order{
		ID:         42,
		ClientName: "Mesa 4",
		OpenedAt:   time.Date(2026, 8, 30, 21, 15, 0, 0, time.UTC),
		Status:     core.StatusOpen,
		Total:      decimal.NewFromInt(205),
		Lines: []core.OrderLine{
			{ProductID: 1, VariantID: &variant, ProductName: "Tequila Reposado", VariantName: "Shot",
				Quantity: 2, UnitPrice: decimal.NewFromInt(50)},
			{ProductID: 2, ProductName: "Cerveza Clara",
				Quantity: 3, UnitPrice: decimal.NewFromInt(35)},
		},
	}
}

func closedOrder() *core.Order {
	o := sampleOrder()
	method := core.PaymentCash
	paid := decimal.NewFromInt(250)
	change := decimal.NewFromInt(45)
	now := o.OpenedAt.Add(time.Hour)
	o.Status = core.StatusClosed
	o.PaymentMethod = &method
	o.AmountPaid = &paid
	o.Change = &change
	o.ClosedAt = &now
	return o
}

// bodyLines strips ESC/POS control bytes and returns the printable lines.
func bodyLines(t *testing.T, ticket []byte) []string {
	t.Helper()
	body := bytes.TrimPrefix(ticket, escInit)
	if i := bytes.Index(body, escCut); i >= 0 {
		body = body[:i]
	}
	return strings.Split(strings.TrimRight(string(body), "\n"), "\n")
}

func TestRender_PendingBanner(t *testing.T) {
	ticket := Render(sampleOrder(), DefaultLayout())

	text := string(ticket)
	if !strings.Contains(text, "C U E N T A  P E N D I E N T E") {
		t.Error("Open order ticket must carry the pending banner")
	}
	if strings.Contains(text, "P A G A D O\n") {
		t.Error("Open order ticket must not carry the paid banner")
	}
	if !strings.Contains(text, "Cuenta #42") {
		t.Error("Ticket must carry the order number")
	}
	if !strings.Contains(text, "Cliente: Mesa 4") {
		t.Error("Ticket must carry the client name")
	}
}

func TestRender_PaidBanner(t *testing.T) {
	ticket := Render(closedOrder(), DefaultLayout())

	text := string(ticket)
	if !strings.Contains(text, "P A G A D O") {
		t.Error("Closed order ticket must carry the paid banner")
	}
	if !strings.Contains(text, "Pago: Efectivo") {
		t.Error("Ticket must name the payment method")
	}
	if !strings.Contains(text, "250.00") || !strings.Contains(text, "45.00") {
		t.Error("Ticket must carry amount paid and change")
	}
}

func TestRender_LinesFitWidth(t *testing.T) {
	layout := DefaultLayout()
	ticket := Render(closedOrder(), layout)

	for _, line := range bodyLines(t, ticket) {
		if len([]rune(line)) > layout.Width {
			t.Errorf("Line exceeds %d columns: %q", layout.Width, line)
		}
	}
}

func TestRender_ItemAmountsRightAligned(t *testing.T) {
	ticket := Render(sampleOrder(), DefaultLayout())

	var itemLine string
	for _, line := range bodyLines(t, ticket) {
		if strings.HasPrefix(line, "2x Tequila") {
			itemLine = line
			break
		}
	}
	if itemLine == "" {
		t.Fatal("Item line not found on ticket")
	}
	if !strings.HasSuffix(itemLine, "100.00") {
		t.Errorf("Expected subtotal at line end, got %q", itemLine)
	}
	if len(itemLine) != DefaultLayout().Width {
		t.Errorf("Expected item line padded to %d, got %d", DefaultLayout().Width, len(itemLine))
	}
}

func TestRender_TruncatesLongNames(t *testing.T) {
	o := sampleOrder()
	o.Lines[0].ProductName = strings.Repeat("Mezcal Artesanal de Oaxaca ", 3)

	layout := DefaultLayout()
	for _, line := range bodyLines(t, Render(o, layout)) {
		if len([]rune(line)) > layout.Width {
			t.Errorf("Long name overflowed the ticket: %q", line)
		}
	}
}

func TestRender_EndsWithCut(t *testing.T) {
	ticket := Render(sampleOrder(), DefaultLayout())
	if !bytes.HasSuffix(ticket, escCut) {
		t.Error("Ticket must end with the cut sequence")
	}
	if !bytes.HasPrefix(ticket, escInit) {
		t.Error("Ticket must start with the init sequence")
	}
}
