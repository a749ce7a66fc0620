package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/xela07ax/estate-integrity/internal/alert"
	"github.com/xela07ax/estate-integrity/internal/domain"
)

func okMark() string {
	return color.New(color.FgGreen).Sprint("✓")
}

func severityColor(s domain.Severity) *color.Color {
	switch s {
	case domain.SeverityCritical:
		return color.New(color.FgHiRed, color.Bold)
	case domain.SeverityHigh:
		return color.New(color.FgRed)
	case domain.SeverityMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

func severityTag(s domain.Severity) string {
	return severityColor(s).Sprintf("%-8s", s)
}

func tenantStatusTag(s domain.TenantStatus) string {
	switch s {
	case domain.TenantScanned:
		return color.New(color.FgGreen).Sprint("scanned")
	case domain.TenantSkipped:
		return color.New(color.FgYellow).Sprint("skipped")
	default:
		return color.New(color.FgRed).Sprint(string(s))
	}
}

func runStatusTag(s *domain.RunStatus) string {
	switch {
	case s == nil:
		return color.New(color.FgBlue).Sprint("running")
	case *s == domain.RunSuccess:
		return color.New(color.FgGreen).Sprint("success")
	default:
		return color.New(color.FgRed).Sprint(string(*s))
	}
}

func deliveryLine(d domain.Delivery) string {
	if d.Sent {
		line := color.New(color.FgGreen).Sprintf("sent via %s", d.Provider)
		if d.Reason != "" {
			line += " (" + d.Reason + ")"
		}
		return line
	}
	return color.New(color.FgHiBlack).Sprintf("not sent: %s", d.Reason)
}

func printRunResult(w io.Writer, res *domain.RunResult) {
	title := "Run " + res.RunID
	if res.Summary.DryRun {
		title += color.New(color.FgHiMagenta).Sprint(" [dry-run]")
	}
	fmt.Fprintln(w, title)
	printSummary(w, &res.Summary)
}

func printSummary(w io.Writer, s *domain.RunSummary) {
	fmt.Fprintf(w, "  tenants: %d  findings: %d  new/escalated: %d  resolved: %d\n",
		s.TenantCount, s.FindingCount, s.ArisingFindingCount, s.ResolvedCount)
	fmt.Fprintf(w, "  severity: %s %d  %s %d  %s %d  %s %d\n",
		severityColor(domain.SeverityCritical).Sprint("critical"), s.BySeverity.Critical,
		severityColor(domain.SeverityHigh).Sprint("high"), s.BySeverity.High,
		severityColor(domain.SeverityMedium).Sprint("medium"), s.BySeverity.Medium,
		severityColor(domain.SeverityLow).Sprint("low"), s.BySeverity.Low)

	if len(s.Tenants) > 0 {
		fmt.Fprintln(w)
		for _, t := range s.Tenants {
			fmt.Fprintf(w, "  %-20s %s findings=%d arising=%d resolved=%d\n",
				t.TenantID, tenantStatusTag(t.Status), t.FindingCount, t.ArisingCount, t.ResolvedCount)
			if len(t.Missing) > 0 {
				fmt.Fprintf(w, "      missing: %v\n", t.Missing)
			}
			if t.Error != "" {
				fmt.Fprintf(w, "      error: %s\n", color.New(color.FgRed).Sprint(t.Error))
			}
		}
	}

	if len(s.TopArising) > 0 {
		fmt.Fprintln(w)
		for _, a := range s.TopArising {
			fmt.Fprintf(w, "  %s %s/%s/%s: %s\n",
				severityColor(a.Finding.Severity).Sprint(alert.Label(a)),
				a.Finding.TenantID, a.Finding.Rule, a.Finding.EntityKey, a.Finding.Title)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  email:    %s\n", deliveryLine(s.EmailNotification))
	fmt.Fprintf(w, "  whatsapp: %s\n", deliveryLine(s.WhatsAppNotification))
}

func printExceptions(w io.Writer, list []domain.Exception) {
	for _, ex := range list {
		status := color.New(color.FgGreen).Sprint("resolved")
		if ex.Status == domain.ExceptionOpen {
			status = color.New(color.FgRed).Sprint("open    ")
		}
		fmt.Fprintf(w, "%s %s %s/%s/%s  %s\n",
			status, severityTag(ex.Severity), ex.TenantID, ex.Rule, ex.EntityKey, ex.Title)
		fmt.Fprintf(w, "    first seen %s, last seen %s\n",
			ex.FirstSeenAt.Format(time.DateTime), ex.LastSeenAt.Format(time.DateTime))
	}
}

func printRuns(w io.Writer, list []domain.AgentRun) {
	for _, r := range list {
		took := "-"
		if r.FinishedAt != nil {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s  %s  %-9s %-10s scope=%s took=%s\n",
			r.StartedAt.Format(time.DateTime), r.ID, runStatusTag(r.Status), r.TriggerSource, r.TenantScope, took)
		if r.Error != "" {
			fmt.Fprintf(w, "    error: %s\n", color.New(color.FgRed).Sprint(r.Error))
		}
	}
}
