package retirement

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"carbon-scribe/credit-registry/internal/ledger"
)

// CertificateOptions controls the PDF layout
type CertificateOptions struct {
	PageSize   string
	FontFamily string
	DateFormat string
	Issuer     string
}

// DefaultCertificateOptions returns the layout used by the API
func DefaultCertificateOptions() CertificateOptions {
	return CertificateOptions{
		PageSize:   "A4",
		FontFamily: "Arial",
		DateFormat: "2006-01-02 15:04:05 UTC",
		Issuer:     "Carbon Credit Registry",
	}
}

// RenderCertificate loads the certificate for tokenID and renders it as a
// single landscape PDF page
func (r *Registry) RenderCertificate(ctx context.Context, tokenID ledger.TokenID, opts CertificateOptions) ([]byte, error) {
	cert, err := r.VerifyRetirement(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	out, err := WriteCertificatePDF(cert, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to render certificate: %w", err)
	}
	return out, nil
}

// WriteCertificatePDF renders cert
func WriteCertificatePDF(cert *Certificate, opts CertificateOptions) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", opts.PageSize, "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(fmt.Sprintf("Retirement certificate %s", cert.TokenID), true)
	pdf.SetCreator(opts.Issuer, true)
	pdf.AddPage()

	w, h := pdf.GetPageSize()
	pdf.SetDrawColor(34, 139, 34)
	pdf.SetLineWidth(1.5)
	pdf.Rect(10, 10, w-20, h-20, "D")

	pdf.SetY(30)
	pdf.SetFont(opts.FontFamily, "B", 26)
	pdf.SetTextColor(34, 139, 34)
	pdf.CellFormat(0, 14, "Certificate of Carbon Credit Retirement", "", 1, "C", false, 0, "")

	pdf.SetFont(opts.FontFamily, "", 12)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 8, opts.Issuer, "", 1, "C", false, 0, "")
	pdf.Ln(10)

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont(opts.FontFamily, "", 14)
	pdf.CellFormat(0, 8, "This certifies that", "", 1, "C", false, 0, "")
	pdf.SetFont(opts.FontFamily, "B", 18)
	pdf.CellFormat(0, 10, companyLabel(cert), "", 1, "C", false, 0, "")
	pdf.SetFont(opts.FontFamily, "", 14)
	pdf.CellFormat(0, 8, fmt.Sprintf("permanently retired %d tonnes of CO2", cert.CO2Tonnes), "", 1, "C", false, 0, "")
	pdf.Ln(12)

	rows := [][2]string{
		{"Token ID", cert.TokenID.String()},
		{"Retired at", cert.RetiredAt.UTC().Format(opts.DateFormat)},
		{"Ledger proof", cert.Proof},
	}
	if cert.CertificateURI != "" {
		rows = append(rows, [2]string{"Certificate URI", cert.CertificateURI})
	}
	for _, row := range rows {
		pdf.SetX(40)
		pdf.SetFont(opts.FontFamily, "B", 11)
		pdf.CellFormat(45, 7, row[0]+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Courier", "", 10)
		pdf.CellFormat(0, 7, row[1], "", 1, "L", false, 0, "")
	}

	pdf.SetY(-25)
	pdf.SetFont(opts.FontFamily, "I", 8)
	pdf.SetTextColor(128, 128, 128)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated %s", time.Now().UTC().Format(opts.DateFormat)), "", 0, "C", false, 0, "")

	if err := pdf.Error(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func companyLabel(cert *Certificate) string {
	if cert.CompanyName == "" {
		return string(cert.Company)
	}
	return fmt.Sprintf("%s (%s)", cert.CompanyName, cert.Company)
}
