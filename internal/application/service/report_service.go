package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/bangunpro/rab-approval/internal/application/port"
)

// ReportService renders the approval register: every instance with its
// step ledger, as an Excel workbook for the finance office.
type ReportService interface {
	BuildApprovalRegister(ctx context.Context, status string) (*excelize.File, error)
}

type reportServiceImpl struct {
	instanceRepo port.InstanceRepository
	stepRepo     port.StepRepository
	logger       Logger
}

// NewReportService creates a new ReportService
func NewReportService(
	instanceRepo port.InstanceRepository,
	stepRepo port.StepRepository,
	logger Logger,
) ReportService {
	return &reportServiceImpl{
		instanceRepo: instanceRepo,
		stepRepo:     stepRepo,
		logger:       logger,
	}
}

const registerSheet = "Approval Register"

var registerHeaders = []string{
	"Instance ID", "Entity Type", "Entity ID", "Total Amount (IDR)",
	"Status", "Submitter", "Submitted", "Completed",
	"Step", "Step Name", "Required Role", "Step Status", "Decision", "Approver", "Decided At",
}

// BuildApprovalRegister renders instances (optionally filtered by status)
// and their ledgers, one row per step
func (s *reportServiceImpl) BuildApprovalRegister(ctx context.Context, status string) (*excelize.File, error) {
	instances, err := s.instanceRepo.List(ctx, status, 1000, 0)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(registerSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	for col, h := range registerHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(registerSheet, cell, h); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	row := 2
	for _, inst := range instances {
		steps, err := s.stepRepo.GetByInstanceID(ctx, inst.ID)
		if err != nil {
			return nil, fmt.Errorf("load ledger for %s: %w", inst.ID, err)
		}

		completed := ""
		if inst.CompletedAt != nil {
			completed = inst.CompletedAt.Format(time.RFC3339)
		}

		base := []interface{}{
			inst.ID, inst.EntityType, inst.EntityID, inst.TotalAmount,
			inst.OverallStatus, inst.SubmitterID,
			inst.SubmittedAt.Format(time.RFC3339), completed,
		}

		if len(steps) == 0 {
			if err := s.writeRow(f, row, base); err != nil {
				return nil, err
			}
			row++
			continue
		}

		for _, step := range steps {
			decidedAt := ""
			if step.ApprovedAt != nil {
				decidedAt = step.ApprovedAt.Format(time.RFC3339)
			}
			values := append(append([]interface{}{}, base...),
				step.StepNumber, step.Name, step.RequiredRole,
				step.Status, step.Decision, step.ApproverID, decidedAt,
			)
			if err := s.writeRow(f, row, values); err != nil {
				return nil, err
			}
			row++
		}
	}

	s.logger.Info("Approval register built",
		"instances", len(instances),
		"rows", row-2,
	)
	return f, nil
}

func (s *reportServiceImpl) writeRow(f *excelize.File, row int, values []interface{}) error {
	for col, v := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		if err := f.SetCellValue(registerSheet, cell, v); err != nil {
			return fmt.Errorf("write cell %s: %w", cell, err)
		}
	}
	return nil
}
