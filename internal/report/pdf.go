package report

import (
	"bytes"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"forcetrial/internal/analysis"
	"forcetrial/internal/trial"
)

const (
	pdfMargin     = 15.0
	pdfLineHeight = 7.0
)

// WritePDF writes a one-document summary of the trial: the statistics
// block, the plot (when plotPNG is non-empty), and the peak table.
func WritePDF(w io.Writer, snap trial.Snapshot, rep *analysis.Report, plotPNG []byte) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Summary Stats for "+rep.TrialID, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, pdfLineHeight, fmt.Sprintf("%d samples, peak interval %d, min peak height %g",
		snap.Len(), rep.Options.PeakInterval, rep.Options.MinHeight), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	stats := [][2]string{
		{labelMax, formatFloat(rep.Stats.Max)},
		{labelMin, formatFloat(rep.Stats.Min)},
		{labelMean, formatFloat(rep.Stats.Mean)},
		{labelStdDev, rep.Stats.StdDev.String()},
		{labelPeakMean, rep.Stats.PeakMean.String()},
	}
	pdf.SetFont("Helvetica", "", 11)
	for _, kv := range stats {
		pdf.CellFormat(50, pdfLineHeight, kv[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, pdfLineHeight, kv[1], "1", 1, "R", false, 0, "")
	}
	pdf.Ln(5)

	if len(plotPNG) > 0 {
		opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
		pdf.RegisterImageOptionsReader("trial-plot", opts, bytes.NewReader(plotPNG))
		pageW, _ := pdf.GetPageSize()
		pdf.ImageOptions("trial-plot", pdfMargin, pdf.GetY(), pageW-2*pdfMargin, 0, true, opts, 0, "")
		pdf.Ln(5)
	}

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, pdfLineHeight, labelPeaks, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(220, 220, 220)
	pdf.CellFormat(40, pdfLineHeight, labelPeakTime, "1", 0, "C", true, 0, "")
	pdf.CellFormat(40, pdfLineHeight, labelPeakForce, "1", 1, "C", true, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, p := range rep.Peaks {
		pdf.CellFormat(40, pdfLineHeight, formatFloat(p.Elapsed), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, pdfLineHeight, formatFloat(p.Value), "1", 1, "R", false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("writing pdf: %w", err)
	}
	return nil
}
