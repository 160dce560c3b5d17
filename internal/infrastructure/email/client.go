// Package email sends operator reports through Resend.
package email

import (
	"context"
	"fmt"
	"time"

	"github.com/resendlabs/resend-go"

	"github.com/AtRiskMedia/threshold/internal/infrastructure/email/templates"
)

// CycleReport summarises one promotion evaluator run for operators.
type CycleReport struct {
	Trigger                       string
	RanAt                         time.Time
	Duration                      time.Duration
	ProfilesProcessed             int
	InsightsGenerated             int
	StaleVisitorsProcessed        int
	ThresholdAlertsGenerated      int
	PromotionProbabilitiesUpdated int
	DigestsGenerated              int
	Errors                        []string
}

// Service defines the interface for sending operator emails, allowing for
// mock implementations in tests.
type Service interface {
	SendCycleReport(ctx context.Context, report CycleReport) error
}

// ResendClient is the concrete implementation of Service using the Resend API.
type ResendClient struct {
	client    *resend.Client
	toEmail   string
	fromEmail string
	fromName  string
}

// NewService creates a Resend-backed service delivering to toEmail.
func NewService(apiKey, toEmail, fromEmail, fromName string) (Service, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if toEmail == "" {
		return nil, fmt.Errorf("operator email is required")
	}
	return &ResendClient{
		client:    resend.NewClient(apiKey),
		toEmail:   toEmail,
		fromEmail: fromEmail,
		fromName:  fromName,
	}, nil
}

// SendCycleReport composes and sends the evaluator cycle report.
func (c *ResendClient) SendCycleReport(ctx context.Context, report CycleReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", c.fromName, c.fromEmail),
		To:      []string{c.toEmail},
		Subject: Subject(report),
		Html:    RenderCycleReport(report),
	}

	if _, err := c.client.Emails.Send(params); err != nil {
		return fmt.Errorf("failed to send cycle report via Resend: %w", err)
	}
	return nil
}

// Subject returns the email subject for a report.
func Subject(report CycleReport) string {
	if len(report.Errors) > 0 {
		return fmt.Sprintf("Promotion cycle: %d insights, %d errors", report.InsightsGenerated, len(report.Errors))
	}
	return fmt.Sprintf("Promotion cycle: %d insights", report.InsightsGenerated)
}

// RenderCycleReport returns the full HTML body for a report.
func RenderCycleReport(report CycleReport) string {
	content := templates.GetCycleReportContent(templates.CycleReportProps{
		Trigger:  report.Trigger,
		RanAt:    report.RanAt.UTC().Format(time.RFC1123),
		Duration: report.Duration.Round(time.Millisecond).String(),
		Rows: []templates.ReportRow{
			{Label: "Profiles processed", Value: report.ProfilesProcessed},
			{Label: "Stale visitors processed", Value: report.StaleVisitorsProcessed},
			{Label: "Promotion probabilities updated", Value: report.PromotionProbabilitiesUpdated},
			{Label: "Threshold alerts generated", Value: report.ThresholdAlertsGenerated},
			{Label: "Digests generated", Value: report.DigestsGenerated},
			{Label: "Insights generated", Value: report.InsightsGenerated},
		},
		Errors: report.Errors,
	})

	return templates.GetEmailLayout(templates.EmailLayoutProps{
		Preheader: Subject(report),
		Title:     "Promotion cycle report",
		Content:   content,
	})
}
