// Package receipt renders orders as fixed-width tickets for ESC/POS thermal
// printers. Rendering is pure: it takes the order and a Layout and returns
// bytes, so it can be tested without a printer or a database.
package receipt

import (
	"bytes"
	"fmt"
	"strings"

	"barpos/internal/core"

	"github.com/shopspring/decimal"
)

// ESC/POS control sequences.
var (
	escInit = []byte{0x1B, 0x40}             // initialize printer
	escCut  = []byte{0x1D, 0x56, 0x42, 0x00} // feed and partial cut
)

// Layout carries the ticket's presentation settings as an explicit value
// rather than package-level state, so adapters can print different formats
// side by side.
type Layout struct {
	Width      int      // characters per line; 40 for 80mm paper
	Header     []string // centered lines above the ticket body
	Footer     string   // centered line under the totals
	DateFormat string   // Go reference layout for the opened-at stamp
}

// DefaultLayout matches 80mm thermal paper at 40 columns.
func DefaultLayout() Layout {
	return Layout{
		Width:      40,
		Header:     []string{"BAR POS", "Ticket de venta"},
		Footer:     "¡Gracias por su visita!",
		DateFormat: "02/01/2006 15:04",
	}
}

// Render builds the full printable ticket for an order. Open orders carry a
// pending banner; closed orders carry the paid banner with payment details.
func Render(order *core.Order, l Layout) []byte {
	if l.Width <= 0 {
		l = DefaultLayout()
	}

	var b bytes.Buffer
	b.Write(escInit)

	for _, h := range l.Header {
		writeCentered(&b, h, l.Width)
	}
	writeSeparator(&b, l.Width)

	writeLine(&b, fmt.Sprintf("Cuenta #%d", order.ID))
	writeLine(&b, "Cliente: "+order.ClientName)
	writeLine(&b, order.OpenedAt.Format(l.DateFormat))
	writeSeparator(&b, l.Width)

	for _, line := range order.Lines {
		writeItem(&b, line, l.Width)
	}
	writeSeparator(&b, l.Width)

	writeAmount(&b, "TOTAL", order.Total, l.Width)

	if order.Status == core.StatusClosed {
		writeSeparator(&b, l.Width)
		writeCentered(&b, "P A G A D O", l.Width)
		if order.PaymentMethod != nil {
			writeLine(&b, "Pago: "+paymentLabel(*order.PaymentMethod))
		}
		if order.AmountPaid != nil {
			writeAmount(&b, "Recibido", *order.AmountPaid, l.Width)
		}
		if order.Change != nil {
			writeAmount(&b, "Cambio", *order.Change, l.Width)
		}
	} else {
		writeSeparator(&b, l.Width)
		writeCentered(&b, "C U E N T A  P E N D I E N T E", l.Width)
	}

	if l.Footer != "" {
		writeSeparator(&b, l.Width)
		writeCentered(&b, l.Footer, l.Width)
	}

	b.WriteString("\n\n")
	b.Write(escCut)
	return b.Bytes()
}

// writeItem prints one order line: quantity and name on the left, the
// subtotal right-aligned. Long names are truncated, never wrapped, so the
// amount column stays put.
func writeItem(b *bytes.Buffer, line core.OrderLine, width int) {
	name := line.ProductName
	if line.VariantName != "" {
		name += " " + line.VariantName
	}
	label := []rune(fmt.Sprintf("%dx %s", line.Quantity, name))

	amount := line.Subtotal().StringFixed(2)
	maxLabel := width - len(amount) - 1
	if maxLabel < 1 {
		maxLabel = 1
	}
	if len(label) > maxLabel {
		label = label[:maxLabel]
	}
	pad := width - len(label) - len(amount)
	b.WriteString(string(label) + strings.Repeat(" ", pad) + amount + "\n")
}

func writeAmount(b *bytes.Buffer, label string, amount decimal.Decimal, width int) {
	value := "$" + amount.StringFixed(2)
	pad := width - len([]rune(label)) - len(value)
	if pad < 1 {
		pad = 1
	}
	b.WriteString(label + strings.Repeat(" ", pad) + value + "\n")
}

func writeCentered(b *bytes.Buffer, s string, width int) {
	runes := []rune(s)
	if len(runes) >= width {
		b.WriteString(string(runes[:width]) + "\n")
		return
	}
	pad := (width - len(runes)) / 2
	b.WriteString(strings.Repeat(" ", pad) + s + "\n")
}

func writeSeparator(b *bytes.Buffer, width int) {
	b.WriteString(strings.Repeat("-", width) + "\n")
}

func writeLine(b *bytes.Buffer, s string) {
	b.WriteString(s + "\n")
}

func paymentLabel(method string) string {
	if method == core.PaymentCard {
		return "Tarjeta"
	}
	return "Efectivo"
}
