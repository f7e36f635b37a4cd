// Package notify implements the send_report_notification worker task: it
// resolves the report and its owner's address, renders the email, and
// delivers through the configured EmailProvider.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/external"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/scan"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// ReportSource resolves report rows.
type ReportSource interface {
	GetByID(ctx context.Context, id string) (*types.Report, error)
}

// MonitorSource resolves monitor rows, for the query text in the subject.
type MonitorSource interface {
	GetByID(ctx context.Context, id string) (*types.Monitor, error)
}

// AddressBook resolves a user's email address. An empty address with nil
// error means the user has no deliverable address.
type AddressBook interface {
	EmailForUser(ctx context.Context, userID string) (string, error)
}

// Notifier delivers report notifications.
type Notifier struct {
	reports  ReportSource
	monitors MonitorSource
	users    AddressBook
	provider external.EmailProvider
	logger   *slog.Logger
}

// NewNotifier wires the notification pipeline.
func NewNotifier(
	reports ReportSource,
	monitors MonitorSource,
	users AddressBook,
	provider external.EmailProvider,
	logger *slog.Logger,
) *Notifier {
	return &Notifier{
		reports:  reports,
		monitors: monitors,
		users:    users,
		provider: provider,
		logger:   logger,
	}
}

// Notify delivers the email for one report.
//
// Data problems (report gone, user without an address) are terminal: they
// log and return nil so the job is acked instead of retried forever.
// Provider failures propagate for redelivery.
func (n *Notifier) Notify(ctx context.Context, job types.NotificationJob) error {
	report, err := n.reports.GetByID(ctx, job.ReportID)
	if err != nil {
		return err
	}
	if report == nil {
		n.logger.WarnContext(ctx, "notification skipped, report gone", "report_id", job.ReportID)
		return nil
	}

	email, err := n.users.EmailForUser(ctx, report.UserID)
	if err != nil {
		return err
	}
	if email == "" {
		n.logger.WarnContext(ctx, "notification skipped, user has no address",
			"report_id", report.ID,
			"user_id", report.UserID,
		)
		return nil
	}

	query := n.queryText(ctx, report.MonitorID)
	msg := renderMessage(report, query)

	msgID, err := n.provider.Send(ctx, external.EmailMessage{
		To:          email,
		Subject:     msg.subject,
		TextBody:    msg.text,
		HTMLBody:    msg.html,
		ReferenceID: report.ID,
	})
	if err != nil {
		return err
	}

	n.logger.InfoContext(ctx, "report notification delivered",
		"report_id", report.ID,
		"message_id", msgID,
	)
	return nil
}

// queryText resolves the monitor's query for the subject line. A missing
// monitor degrades to a generic subject instead of failing the delivery.
func (n *Notifier) queryText(ctx context.Context, monitorID string) string {
	m, err := n.monitors.GetByID(ctx, monitorID)
	if err != nil || m == nil {
		return ""
	}
	return m.QueryText
}

type renderedMessage struct {
	subject string
	text    string
	html    string
}

// renderMessage builds the notification subject and bodies.
func renderMessage(report *types.Report, query string) renderedMessage {
	subject := "Your monitor report is ready"
	summary := fmt.Sprintf("Your report contains %d items.", report.ItemCount)
	if query != "" {
		subject = fmt.Sprintf("New report for %q", query)
		summary = scan.SummaryLine(query, report.ItemCount)
	}

	var text strings.Builder
	text.WriteString(summary)
	text.WriteString("\n")
	if report.ArtifactURL != nil {
		fmt.Fprintf(&text, "\nDownload the full report: %s\n", *report.ArtifactURL)
	}

	var html strings.Builder
	fmt.Fprintf(&html, "<p>%s</p>", summary)
	if report.ArtifactURL != nil {
		fmt.Fprintf(&html, `<p><a href="%s">Download the full report</a></p>`, *report.ArtifactURL)
	}

	return renderedMessage{
		subject: subject,
		text:    text.String(),
		html:    html.String(),
	}
}

// NewHandler adapts the Notifier to the queue handler signature. A payload
// that does not decode is permanent, so it is logged and acked.
func NewHandler(n *Notifier, logger *slog.Logger) func(ctx context.Context, job types.JobEnvelope) error {
	return func(ctx context.Context, job types.JobEnvelope) error {
		var notifJob types.NotificationJob
		if err := json.Unmarshal(job.Payload, &notifJob); err != nil {
			logger.ErrorContext(ctx, "discarding notification job with malformed payload",
				"job_id", job.JobID,
				"error", err.Error(),
			)
			return nil
		}
		return n.Notify(ctx, notifJob)
	}
}
