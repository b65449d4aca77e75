// Package slip renders packing slips for paid orders.
package slip

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"

	"storefront/internal/model"
)

const qrSize = 256

// Render writes a one-page A4 PDF for order to w. The QR code encodes the
// order id so the parcel can be scanned back to the order.
func Render(w io.Writer, order *model.Order) error {
	if order == nil {
		return fmt.Errorf("order is nil")
	}

	qrPNG, err := qrcode.Encode(order.ID.String(), qrcode.Medium, qrSize)
	if err != nil {
		return fmt.Errorf("failed to encode order qr code: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Packing slip "+order.ID.String(), true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, "Packing Slip")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 7, "Order: "+order.ID.String())
	pdf.Ln(6)
	pdf.Cell(0, 7, "Placed: "+order.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
	pdf.Ln(6)
	pdf.Cell(0, 7, "Status: "+order.Status.String())
	pdf.Ln(10)

	imageOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("order-qr", imageOpts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("order-qr", 160, 12, 35, 35, false, imageOpts, 0, "")

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 7, "Ship to")
	pdf.Ln(7)
	pdf.SetFont("Arial", "", 11)
	for _, line := range addressLines(order.ShippingAddress) {
		pdf.Cell(0, 6, line)
		pdf.Ln(6)
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(100, 8, "Item", "B", 0, "L", false, 0, "")
	pdf.CellFormat(25, 8, "Qty", "B", 0, "R", false, 0, "")
	pdf.CellFormat(30, 8, "Price", "B", 0, "R", false, 0, "")
	pdf.CellFormat(30, 8, "Line total", "B", 1, "R", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	for _, item := range order.Items {
		name := item.Name
		if item.Flavor != "" {
			name += " (" + item.Flavor + ")"
		}
		pdf.CellFormat(100, 7, name, "", 0, "L", false, 0, "")
		pdf.CellFormat(25, 7, fmt.Sprintf("%d", item.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(30, 7, item.Price.StringFixed(2), "", 0, "R", false, 0, "")
		pdf.CellFormat(30, 7, item.LineTotal().StringFixed(2), "", 1, "R", false, 0, "")
	}

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(155, 9, "Total", "T", 0, "R", false, 0, "")
	pdf.CellFormat(30, 9, order.Total.String(), "T", 1, "R", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write packing slip: %w", err)
	}
	return nil
}

func addressLines(a model.ShippingAddress) []string {
	street := a.Street
	if a.Apartment != "" {
		street += ", " + a.Apartment
	}
	city := strings.TrimSpace(strings.Join(nonEmpty(a.City, a.State, a.PostalCode), " "))

	return nonEmpty(
		strings.TrimSpace(a.FirstName+" "+a.LastName),
		street,
		city,
		a.Country,
		a.Phone,
	)
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
