// Package export writes availability workbooks for the resource catalog.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reservation-engine/internal/availability"
	"reservation-engine/internal/interval"
	"reservation-engine/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet  = "Resources"
	maxSheetName  = 31
	cellTimeStamp = "2006-01-02 15:04"
)

var stateColors = map[availability.State]string{
	availability.StateAvailable: "#E2EFDA",
	availability.StateReserved:  "#F8CBAD",
	availability.StateBlackout:  "#D9D9D9",
	availability.StatePast:      "#EDEDED",
}

// Source is the read side of the reservation service used by the exporter.
type Source interface {
	Resources(ctx context.Context) ([]*models.Resource, error)
	ProjectAvailability(ctx context.Context, resourceID int64, from, to, now time.Time) ([]availability.Segment, error)
	AvailableSlots(ctx context.Context, resourceID int64, from, to time.Time, slot time.Duration, now time.Time) ([]interval.Interval, error)
}

type Exporter struct {
	source Source
	dir    string
	logger *zerolog.Logger
}

func NewExporter(source Source, dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{source: source, dir: dir, logger: logger}
}

// WriteAvailability creates a workbook covering [from, from+days) with a
// summary sheet and one sheet of projected segments per resource. Archived
// resources appear only in the summary.
func (e *Exporter) WriteAvailability(ctx context.Context, from time.Time, days int, now time.Time) (string, error) {
	if days <= 0 {
		days = models.DefaultExportDays
	}
	to := from.AddDate(0, 0, days)

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	resources, err := e.source.Resources(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting resources: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	_ = f.SetCellValue(summarySheet, "A1", fmt.Sprintf("Period: %s - %s",
		from.Format(cellTimeStamp), to.Format(cellTimeStamp)))
	_ = f.MergeCell(summarySheet, "A1", "G1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(summarySheet, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	_ = f.SetSheetRow(summarySheet, "A2", &[]any{"ID", "Name", "Mode", "Approval", "Status", "Free hours", "Free slots"})
	_ = f.SetCellStyle(summarySheet, "A2", "G2", headerStyle)
	_ = f.SetColWidth(summarySheet, "B", "B", 25)

	stateStyles := make(map[availability.State]int, len(stateColors))
	for state, color := range stateColors {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			return "", fmt.Errorf("error creating style: %w", err)
		}
		stateStyles[state] = id
	}

	used := map[string]bool{summarySheet: true}
	for i, res := range resources {
		row := i + 3
		var free time.Duration
		var slots []interval.Interval

		if !res.Archived() {
			segments, err := e.source.ProjectAvailability(ctx, res.ID, from, to, now)
			if err != nil {
				return "", fmt.Errorf("error projecting resource %d: %w", res.ID, err)
			}
			slots, err = e.source.AvailableSlots(ctx, res.ID, from, to, 0, now)
			if err != nil {
				return "", fmt.Errorf("error listing slots of resource %d: %w", res.ID, err)
			}

			sheet := sheetName(res, used)
			if _, err := f.NewSheet(sheet); err != nil {
				return "", fmt.Errorf("error creating sheet: %w", err)
			}
			free = writeSegments(f, sheet, segments, res.Location(), headerStyle, stateStyles)
		}

		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetSheetRow(summarySheet, cell, &[]any{
			res.ID, res.Name, string(res.Mode), approvalLabel(res), string(res.Status),
			free.Hours(), len(slots),
		})
	}
	f.SetActiveSheet(0)

	fileName := fmt.Sprintf("availability_%s_%dd.xlsx", from.Format("2006-01-02"), days)
	filePath := filepath.Join(e.dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("resources", len(resources)).Msg("Availability workbook created")
	return filePath, nil
}

// writeSegments fills one resource sheet and returns the total available time.
func writeSegments(f *excelize.File, sheet string, segments []availability.Segment, loc *time.Location, headerStyle int, stateStyles map[availability.State]int) time.Duration {
	_ = f.SetSheetRow(sheet, "A1", &[]any{"Start", "End", "State", "Hours"})
	_ = f.SetCellStyle(sheet, "A1", "D1", headerStyle)
	_ = f.SetColWidth(sheet, "A", "B", 20)

	var free time.Duration
	for i, seg := range segments {
		row := i + 2
		cell, _ := excelize.CoordinatesToCellName(1, row)
		length := seg.End.Sub(seg.Start)
		_ = f.SetSheetRow(sheet, cell, &[]any{
			seg.Start.In(loc).Format(cellTimeStamp),
			seg.End.In(loc).Format(cellTimeStamp),
			string(seg.State),
			length.Hours(),
		})
		if style, ok := stateStyles[seg.State]; ok {
			stateCell, _ := excelize.CoordinatesToCellName(3, row)
			_ = f.SetCellStyle(sheet, stateCell, stateCell, style)
		}
		if seg.State == availability.StateAvailable {
			free += length
		}
	}
	return free
}

func approvalLabel(res *models.Resource) string {
	if res.RequiresApproval() {
		return "required"
	}
	return "auto"
}

// sheetName derives a unique, excel-safe sheet name for res.
func sheetName(res *models.Resource, used map[string]bool) string {
	name := strings.NewReplacer(":", " ", "\\", " ", "/", " ", "?", " ", "*", " ", "[", "(", "]", ")").
		Replace(fmt.Sprintf("%d %s", res.ID, res.Name))
	name = strings.TrimSpace(name)
	if r := []rune(name); len(r) > maxSheetName {
		name = string(r[:maxSheetName])
	}
	for base, n := name, 2; used[name]; n++ {
		suffix := fmt.Sprintf(" %d", n)
		r := []rune(base)
		if len(r)+len(suffix) > maxSheetName {
			r = r[:maxSheetName-len(suffix)]
		}
		name = string(r) + suffix
	}
	used[name] = true
	return name
}
