package templates

import (
	"bytes"
	"html/template"
	"log"
)

// ReportRow is one labelled count in a cycle report.
type ReportRow struct {
	Label string
	Value int
}

type CycleReportProps struct {
	Trigger  string
	RanAt    string
	Duration string
	Rows     []ReportRow
	Errors   []string
}

var cycleReportTemplate = template.Must(template.New("cycleReport").Parse(`
<h2 style="font-size: 20px; margin: 0 0 16px 0;">Promotion cycle ({{.Trigger}})</h2>
<p style="margin: 0 0 16px 0; color: #555;">{{.RanAt}} &middot; {{.Duration}}</p>
<table role="presentation" border="0" cellpadding="4" cellspacing="0" style="width: 100%; margin-bottom: 16px;">
{{- range .Rows}}
  <tr><td>{{.Label}}</td><td style="text-align: right; font-weight: bold;">{{.Value}}</td></tr>
{{- end}}
</table>
{{- if .Errors}}
<p style="margin: 0 0 8px 0; color: #b42318; font-weight: bold;">{{len .Errors}} error(s)</p>
<ul style="margin: 0; padding-left: 20px; color: #b42318;">
{{- range .Errors}}
  <li>{{.}}</li>
{{- end}}
</ul>
{{- end}}`))

// GetCycleReportContent renders the body of an evaluator cycle report. All
// values are escaped.
func GetCycleReportContent(props CycleReportProps) string {
	var buf bytes.Buffer
	if err := cycleReportTemplate.Execute(&buf, props); err != nil {
		log.Printf("Error executing cycle report template: %v", err)
		return `<div style="color: red;">Report template error</div>`
	}
	return buf.String()
}
