// Package export writes an instance's audit trail as an XLSX workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/approvalflow/internal/domain/entity"
)

// Sheet names
const (
	SheetSummary  = "Summary"
	SheetActions  = "Actions"
	SheetProgress = "Progress"
)

const timeLayout = "2006-01-02 15:04:05"

// Ledger is everything recorded for one instance
type Ledger struct {
	Instance *entity.ApprovalInstance
	Version  *entity.WorkflowVersion
	Actions  []*entity.ApprovalAction
	Progress []*entity.StepProgress
}

// LedgerWriter renders ledgers with excelize
type LedgerWriter struct {
	logger *zap.Logger
}

// NewLedgerWriter creates a ledger writer
func NewLedgerWriter(logger *zap.Logger) *LedgerWriter {
	return &LedgerWriter{logger: logger}
}

// Write renders the ledger and writes the workbook to w
func (lw *LedgerWriter) Write(w io.Writer, ledger Ledger) error {
	if ledger.Instance == nil {
		return fmt.Errorf("ledger has no instance")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	for _, name := range []string{SheetActions, SheetProgress} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	steps := stepNames(ledger.Version)

	if err := lw.writeSummary(f, ledger.Instance); err != nil {
		return err
	}

	actionRows := [][]interface{}{{"Time", "Step", "Cycle", "Actor", "Action", "Comments"}}
	for _, a := range ledger.Actions {
		actionRows = append(actionRows, []interface{}{
			a.CreatedAt.Format(timeLayout),
			steps.name(a.StepID),
			a.Cycle,
			a.ActorID,
			entity.ActionPresentation(a.ActionType).Label,
			a.Comments,
		})
	}
	if err := writeRows(f, SheetActions, actionRows); err != nil {
		return err
	}

	progressRows := [][]interface{}{{"Step", "Cycle", "Outcome", "Entered", "Resolved"}}
	for _, p := range ledger.Progress {
		progressRows = append(progressRows, []interface{}{
			steps.name(p.StepID),
			p.Cycle,
			string(p.Outcome),
			p.EnteredAt.Format(timeLayout),
			formatTime(p.ResolvedAt),
		})
	}
	if err := writeRows(f, SheetProgress, progressRows); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	lw.logger.Info("Ledger exported",
		zap.Int64("instance_id", ledger.Instance.ID),
		zap.Int("actions", len(ledger.Actions)),
		zap.Int("progress", len(ledger.Progress)))
	return nil
}

func (lw *LedgerWriter) writeSummary(f *excelize.File, instance *entity.ApprovalInstance) error {
	rows := [][]interface{}{
		{"Instance", instance.ID},
		{"Subject", instance.DisplayName},
		{"Approvable", instance.Approvable.String()},
		{"Workflow", instance.WorkflowID},
		{"Version", instance.WorkflowVersionID},
		{"Status", entity.StatusPresentation(instance.Status).Label},
		{"Submitted by", instance.SubmittedBy},
		{"Submitted at", formatTime(instance.SubmittedAt)},
		{"Completed at", formatTime(instance.CompletedAt)},
	}
	return writeRows(f, SheetSummary, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

type stepIndex map[int64]string

func stepNames(version *entity.WorkflowVersion) stepIndex {
	idx := make(stepIndex)
	if version == nil {
		return idx
	}
	for _, s := range version.Steps {
		idx[s.ID] = s.Name
	}
	return idx
}

func (s stepIndex) name(id int64) string {
	if name, ok := s[id]; ok {
		return name
	}
	return fmt.Sprintf("step %d", id)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timeLayout)
}
