package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// GatePass is the printable card a student shows at the gate.
type GatePass struct {
	LeaveID     string
	StudentName string
	Room        string
	Reason      string
	Code        string
	ValidFrom   time.Time
	ValidUntil  time.Time
	IssuedAt    time.Time
}

// RenderGatePass draws a single A5 gate pass.
func (e *PDFExporter) RenderGatePass(p GatePass) ([]byte, error) {
	if p.Code == "" {
		return nil, fmt.Errorf("gate pass requires a code")
	}
	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(8, 10, 8)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, "HOSTEL GATE PASS", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 9)
	rows := [][2]string{
		{"Student", p.StudentName},
		{"Room", p.Room},
		{"Reason", truncate(p.Reason, 48)},
		{"Valid from", p.ValidFrom.Format("02 Jan 2006 15:04 MST")},
		{"Valid until", p.ValidUntil.Format("02 Jan 2006 15:04 MST")},
		{"Issued", p.IssuedAt.Format("02 Jan 2006 15:04 MST")},
	}
	for _, row := range rows {
		pdf.CellFormat(26, 6, row[0], "", 0, "", false, 0, "")
		pdf.CellFormat(0, 6, row[1], "", 1, "", false, 0, "")
	}

	pdf.Ln(4)
	pdf.SetFont("Courier", "B", 28)
	pdf.CellFormat(0, 16, p.Code, "1", 1, "C", false, 0, "")
	pdf.Ln(2)
	pdf.SetFont("Arial", "I", 7)
	pdf.MultiCell(0, 4, "Single use. Present this code to security when leaving. Ref "+p.LeaveID, "", "C", false)

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render gate pass: %w", err)
	}
	return buf.Bytes(), nil
}
