package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/AtRiskMedia/threshold/internal/application/services"
)

const (
	cyan       = "\033[38;2;86;182;194m"  // One Dark Cyan: #56B6C2
	cyanBright = "\033[38;2;97;228;240m"  // Brighter Cyan: #61E4F0
	dimCyan    = "\033[38;2;47;91;102m"   // Dim Cyan: #2F5B66
	grey       = "\033[38;2;110;118;129m" // Brighter Grey: #6E7681
	dimGrey    = "\033[38;2;75;82;99m"    // Darker Grey: #4B5263
	success    = "\033[38;2;62;130;144m"  // Dim Cyan: #3E8290
	errorRed   = "\033[38;2;224;108;117m" // One Dark Red: #E06C75
	white      = "\033[38;2;171;178;191m" // One Dark Foreground: #ABB2BF
	reset      = "\033[0m"
	bold       = "\033[1m"
)

// Reporter renders promotion cycle summaries for a terminal.
type Reporter struct {
	w     io.Writer
	color bool
}

func NewReporter(w io.Writer, color bool) *Reporter {
	return &Reporter{w: w, color: color}
}

func (r *Reporter) paint(codes ...string) string {
	if !r.color {
		return ""
	}
	return strings.Join(codes, "")
}

func (r *Reporter) LogHeader(title string) {
	fmt.Fprintf(r.w, "%s✓ %s %s\n", r.paint(bold, cyan), strings.ToUpper(title), r.paint(reset))
}

func (r *Reporter) LogError(message string) {
	fmt.Fprintf(r.w, "%s✖ ERROR: %s%s%s\n", r.paint(bold, errorRed), r.paint(grey), message, r.paint(reset))
}

// CycleReport writes the counters and errors of one cycle.
func (r *Reporter) CycleReport(summary *services.CycleSummary) {
	r.LogHeader("promotion cycle")
	fmt.Fprintf(r.w, "%s▓ %s | trigger: %s%s%s\n",
		r.paint(bold, dimCyan), summary.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"),
		r.paint(cyanBright), summary.Trigger, r.paint(reset))

	rows := []struct {
		label string
		value int
	}{
		{"profiles processed", summary.Results.ProfilesProcessed},
		{"stale visitors", summary.Results.StaleVisitorsProcessed},
		{"probabilities updated", summary.Results.PromotionProbabilitiesUpdated},
		{"threshold alerts", summary.Results.ThresholdAlertsGenerated},
		{"digests", summary.Results.DigestsGenerated},
		{"insights generated", summary.Results.InsightsGenerated},
	}
	for _, row := range rows {
		valueColor := r.paint(cyan)
		if row.value == 0 {
			valueColor = r.paint(dimGrey)
		}
		fmt.Fprintf(r.w, "%s✦ %s%-22s%s%d%s\n", r.paint(success), r.paint(grey), row.label+":", valueColor, row.value, r.paint(reset))
	}

	for _, msg := range summary.Results.Errors {
		r.LogError(msg)
	}

	status := "completed"
	if len(summary.Results.Errors) > 0 {
		status = fmt.Sprintf("completed with %d errors", len(summary.Results.Errors))
	}
	fmt.Fprintf(r.w, "%s✦ %s%s in %s%s\n", r.paint(success, bold), r.paint(white), status, summary.Duration, r.paint(reset))
}
