// Package receipts renders the single-page PDF receipt stored on a paid order.
package receipts

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/charityconnect/charityconnect-backend/pkg/money"
)

const (
	qrSize       = 256
	qrImageName  = "verify-qr"
	dateLayout   = "2006-01-02 15:04"
	marginMM     = 20.0
	lineHeightMM = 7.0
)

// BeneficiaryLine is one charity's share of the event proceeds.
type BeneficiaryLine struct {
	CharityName string
	Percent     int
}

// ReceiptData is everything printed on a receipt. Zero values are omitted.
type ReceiptData struct {
	OrderID        uint
	Email          string
	Qty            int
	UnitPriceCents int64
	DonationCents  int64
	TotalCents     int64
	OrderedAt      time.Time
	PaidAt         *time.Time
	EventTitle     string
	EventStartsAt  time.Time
	Venue          string
	Beneficiaries  []BeneficiaryLine
	VerifyURL      string
}

// Renderer produces receipt bytes.
type Renderer interface {
	Render(data ReceiptData) ([]byte, error)
}

// RenderFunc adapts a function to Renderer.
type RenderFunc func(data ReceiptData) ([]byte, error)

func (f RenderFunc) Render(data ReceiptData) ([]byte, error) {
	return f(data)
}

// Builder lays out receipts with fpdf.
type Builder struct {
	now func() time.Time
}

// NewBuilder returns a receipt builder.
func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// VerifyURL is the public verification link encoded in the QR code.
func VerifyURL(baseURL string, orderID uint) string {
	return fmt.Sprintf("%s/api/v1/orders/%d/verify", strings.TrimRight(baseURL, "/"), orderID)
}

func (b *Builder) Render(data ReceiptData) ([]byte, error) {
	if data.OrderID == 0 {
		return nil, errors.New("receipt requires an order id")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("CharityConnect Receipt %d", data.OrderID), true)
	pdf.SetCreator("CharityConnect", true)
	pdf.SetMargins(marginMM, marginMM, marginMM)
	pdf.SetAutoPageBreak(false, marginMM)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, "CharityConnect Receipt", "", 1, "L", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "", 11)
	line := func(text string) {
		pdf.CellFormat(0, lineHeightMM, tr(text), "", 1, "L", false, 0, "")
	}

	line(fmt.Sprintf("Order ID: %d", data.OrderID))
	line("Event: " + data.EventTitle)
	if !data.EventStartsAt.IsZero() {
		line("Event date: " + data.EventStartsAt.Format(dateLayout))
	}
	if data.Venue != "" {
		line("Venue: " + data.Venue)
	}
	ordered := data.OrderedAt
	if ordered.IsZero() {
		ordered = b.now()
	}
	line("Order date: " + ordered.Format(dateLayout))
	if data.PaidAt != nil {
		line("Paid: " + data.PaidAt.Format(dateLayout))
	}
	if data.Email != "" {
		line("Email: " + data.Email)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	line("Items")
	pdf.SetFont("Helvetica", "", 11)
	ticketTotal := data.UnitPriceCents * int64(data.Qty)
	line(fmt.Sprintf("Ticket × %d @ %s = %s", data.Qty, money.Format(data.UnitPriceCents), money.Format(ticketTotal)))
	if data.DonationCents > 0 {
		line("Donation " + money.Format(data.DonationCents))
	}
	pdf.SetFont("Helvetica", "B", 11)
	line("Total " + money.Format(data.TotalCents))
	pdf.Ln(4)

	if len(data.Beneficiaries) > 0 {
		pdf.SetFont("Helvetica", "B", 12)
		line("Beneficiary allocation")
		pdf.SetFont("Helvetica", "", 11)
		shares := estimatedShares(data.TotalCents, data.Beneficiaries)
		for i, row := range data.Beneficiaries {
			text := fmt.Sprintf("%s: %d%%", row.CharityName, row.Percent)
			if shares != nil {
				text += fmt.Sprintf(" (est. %s)", money.Format(shares[i]))
			}
			line(text)
		}
		pdf.Ln(4)
	}

	if data.VerifyURL != "" {
		png, err := qrcode.Encode(data.VerifyURL, qrcode.Medium, qrSize)
		if err != nil {
			return nil, fmt.Errorf("encode verify qr: %w", err)
		}
		pdf.RegisterImageOptionsReader(qrImageName, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(png))
		y := pdf.GetY()
		pdf.ImageOptions(qrImageName, marginMM, y, 40, 40, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
		pdf.SetY(y + 42)
		pdf.SetFont("Helvetica", "", 9)
		line("Verify: " + data.VerifyURL)
		pdf.Ln(4)
	}

	pdf.SetFont("Helvetica", "I", 10)
	line("Thank you for supporting charity via CharityConnect.")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// estimatedShares returns nil when the allocation does not sum to 100.
func estimatedShares(total int64, lines []BeneficiaryLine) []int64 {
	percents := make([]int, len(lines))
	for i, l := range lines {
		percents[i] = l.Percent
	}
	shares, err := money.Allocate(total, percents)
	if err != nil {
		return nil
	}
	return shares
}
