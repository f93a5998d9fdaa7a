package service

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/BrandonDHaskell/gatelog/internal/gatelog/types"
)

const (
	ExportSheetName   = "Vehicle History"
	ExportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	exportColumnWidth = 22

	DefaultExportTimeLayout = "02/01/2006, 15:04:05"
)

// ExportHeaders is the exact column order of the history export.
var ExportHeaders = []string{
	"ID",
	"License Plate",
	"Number of People",
	"Purpose",
	"Approved By",
	"Entry Time",
	"Exit Time",
	"Status",
	"Security Personnel ID",
}

type ExportConfig struct {
	TimeLayout string
	Location   *time.Location
}

// Artifact is a finished export file.
type Artifact struct {
	FileName    string
	ContentType string
	Data        []byte
}

type Exporter struct {
	layout string
	loc    *time.Location
}

func NewExporter(cfg ExportConfig) *Exporter {
	e := &Exporter{layout: cfg.TimeLayout, loc: cfg.Location}
	if strings.TrimSpace(e.layout) == "" {
		e.layout = DefaultExportTimeLayout
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	return e
}

// Rows maps entries to export rows, one per entry, in ExportHeaders order.
// Number of People stays numeric; an absent exit time renders as N/A.
func (x *Exporter) Rows(entries []types.LogEntry) [][]any {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		exit := "N/A"
		if e.ExitTime != nil {
			exit = x.formatTime(*e.ExitTime)
		}
		rows = append(rows, []any{
			e.ID,
			e.LicensePlate,
			e.NumPeople,
			e.Purpose,
			e.ApprovedBy,
			x.formatTime(e.EntryTime),
			exit,
			string(e.Status),
			e.SecurityPersonnelID,
		})
	}
	return rows
}

func (x *Exporter) formatTime(t time.Time) string {
	return t.In(x.loc).Format(x.layout)
}

// FileName is vehicle_history_<date>.xlsx for the export date.
func (x *Exporter) FileName(at time.Time) string {
	return fmt.Sprintf("vehicle_history_%s.xlsx", at.In(x.loc).Format("2006-01-02"))
}

// Build writes a single-sheet workbook with a header row followed by the
// entries.
func (x *Exporter) Build(entries []types.LogEntry, at time.Time) (Artifact, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ExportSheetName); err != nil {
		return Artifact{}, fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(ExportHeaders))
	for i, h := range ExportHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(ExportSheetName, "A1", &header); err != nil {
		return Artifact{}, fmt.Errorf("write header: %w", err)
	}

	for i, row := range x.Rows(entries) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return Artifact{}, err
		}
		if err := f.SetSheetRow(ExportSheetName, cell, &row); err != nil {
			return Artifact{}, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(ExportSheetName, "A", "I", exportColumnWidth); err != nil {
		return Artifact{}, fmt.Errorf("set column width: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return Artifact{}, fmt.Errorf("write workbook: %w", err)
	}

	return Artifact{
		FileName:    x.FileName(at),
		ContentType: ExportContentType,
		Data:        buf.Bytes(),
	}, nil
}
