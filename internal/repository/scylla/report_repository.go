package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"alerto-service/internal/model"
	"alerto-service/internal/util"
)

// ReportRepository persists the slice of report state the gateway owns:
// identity, municipality, disaster summary and verification status.
type ReportRepository struct {
	client *ScyllaClient
}

func NewReportRepository(client *ScyllaClient) *ReportRepository {
	return &ReportRepository{client: client}
}

func (r *ReportRepository) Create(ctx context.Context, report *model.Report) error {
	now := time.Now().UTC()
	report.CreatedAt = now
	report.UpdatedAt = now
	if report.VerificationStatus == "" {
		report.VerificationStatus = model.StatusPending
	}

	query := r.client.Prepared.CreateReport.Bind(
		report.ID, report.ReporterID, report.Anonymous, report.Municipality,
		report.DisasterType, report.Severity, report.Description,
		string(report.VerificationStatus), report.CreatedAt, report.UpdatedAt,
	).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to create report",
			zap.String("report_id", report.ID),
			zap.String("reporter_id", report.ReporterID),
			zap.Error(err))
		return fmt.Errorf("failed to create report: %w", err)
	}

	util.Info("Report created",
		zap.String("report_id", report.ID),
		zap.String("municipality", report.Municipality),
		zap.String("disaster_type", report.DisasterType))
	return nil
}

// Get returns (nil, nil) when the report does not exist
func (r *ReportRepository) Get(ctx context.Context, reportID string) (*model.Report, error) {
	query := r.client.Prepared.GetReport.
		Bind(reportID).
		WithContext(ctx)

	var (
		report model.Report
		status string
	)
	err := r.client.ScanWithRetry(query,
		&report.ID, &report.ReporterID, &report.Anonymous, &report.Municipality,
		&report.DisasterType, &report.Severity, &report.Description,
		&status, &report.CreatedAt, &report.UpdatedAt)

	if err == gocql.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		util.Error("Failed to read report",
			zap.String("report_id", reportID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	report.VerificationStatus = model.VerificationStatus(status)
	return &report, nil
}

func (r *ReportRepository) UpdateVerification(ctx context.Context, reportID string, status model.VerificationStatus) error {
	query := r.client.Prepared.UpdateVerification.
		Bind(string(status), time.Now().UTC(), reportID).
		WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to update verification status",
			zap.String("report_id", reportID),
			zap.String("status", string(status)),
			zap.Error(err))
		return fmt.Errorf("failed to update verification status: %w", err)
	}

	util.Info("Verification status updated",
		zap.String("report_id", reportID),
		zap.String("status", string(status)))
	return nil
}
