package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"

	"github.com/google/uuid"

	"VolGuard/internal/domain/models"
)

// DefaultSubject is used when configuration leaves the subject empty.
const DefaultSubject = "Daily Portfolio Volatility Update"

const textBody = `Hello {{.Name}},

This is your daily portfolio volatility update for client ID {{.ClientID}}.

Holdings (predicted 30-day volatility):
{{- if .Lines}}
  Ticker   Qty    Predicted Vol
{{- range .Lines}}
  {{pad .Instrument 7}} {{pad (qty .Quantity) 5}} {{pct .Volatility}}
{{- end}}
{{- else}}
  (No holdings or no volatility data available.)
{{- end}}

Portfolio predicted 30-day volatility: {{pctv .Portfolio}}
Target volatility:                    {{pctv .Target}}
Accepted range:                       {{pctv .Lower}} - {{pctv .Upper}}

Risk status: You are currently {{.Status}} your agreed volatility band.

Best regards,
Your Portfolio Monitoring System`

const htmlBody = `<html>
<body style="font-family: Arial; font-size:14px;">
  <p>Hello {{.Name}},</p>
  <p>This is your daily portfolio volatility update for client ID <b>{{.ClientID}}</b>.</p>
  <h3>Holdings (predicted 30-day volatility)</h3>
  {{- if .Lines}}
  <table border="1" cellpadding="4" cellspacing="0">
    <tr><th>Ticker</th><th>Qty</th><th>Predicted 30d Vol</th></tr>
    {{- range .Lines}}
    <tr><td>{{.Instrument}}</td><td style="text-align:right;">{{qty .Quantity}}</td><td style="text-align:right;">{{pct .Volatility}}</td></tr>
    {{- end}}
  </table>
  {{- else}}
  <p>No holdings or volatility data available.</p>
  {{- end}}
  <h3>Portfolio volatility summary</h3>
  <p><b>Portfolio predicted 30-day volatility:</b> {{pctv .Portfolio}}<br/>
     <b>Target volatility:</b> {{pctv .Target}}<br/>
     <b>Accepted range:</b> {{pctv .Lower}} - {{pctv .Upper}}<br/>
     <b>Status:</b> <span style="color:{{.Color}};">{{.Status}} band</span>
  </p>
  <p>Best regards,<br/><i>Your Portfolio Monitoring System</i></p>
</body>
</html>`

var funcs = map[string]any{
	"pct":  Percent,
	"pctv": func(v float64) string { return Percent(&v) },
	"qty":  func(q float64) string { return fmt.Sprintf("%d", int64(q)) },
	"pad":  func(s string, n int) string { return fmt.Sprintf("%-*s", n, s) },
}

var (
	textTmpl = template.Must(template.New("text").Funcs(template.FuncMap(funcs)).Parse(textBody))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Funcs(htmltemplate.FuncMap(funcs)).Parse(htmlBody))
)

// Percent renders a volatility as a percentage with two decimals, or N/A when absent.
func Percent(v *float64) string {
	if v == nil || models.IsMissing(*v) {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", *v*100)
}

type view struct {
	Name      string
	ClientID  string
	Lines     []models.HoldingVolatility
	Portfolio float64
	Target    float64
	Lower     float64
	Upper     float64
	Status    string
	Color     string
}

// Composer renders assessments into notifications.
type Composer struct {
	subject string
	sender  string
	newID   func() string
}

type Option func(*Composer)

func WithSubject(s string) Option {
	return func(c *Composer) {
		if strings.TrimSpace(s) != "" {
			c.subject = s
		}
	}
}

func WithSender(addr string) Option {
	return func(c *Composer) { c.sender = addr }
}

func NewComposer(opts ...Option) *Composer {
	c := &Composer{subject: DefaultSubject, newID: uuid.NewString}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compose renders the text and HTML bodies for one client assessment.
func (c *Composer) Compose(client models.ClientProfile, a models.PortfolioRiskAssessment) (models.Notification, error) {
	v := view{
		Name:      client.Name,
		ClientID:  client.ClientID,
		Lines:     a.Holdings,
		Portfolio: a.PortfolioVolatility,
		Target:    a.TargetVolatility,
		Lower:     a.LowerBound,
		Upper:     a.UpperBound,
		Status:    "OUTSIDE",
		Color:     "red",
	}
	if v.Name == "" {
		v.Name = "Client"
	}
	if a.WithinBand {
		v.Status, v.Color = "WITHIN", "green"
	}

	var text, html bytes.Buffer
	if err := textTmpl.Execute(&text, v); err != nil {
		return models.Notification{}, fmt.Errorf("render text body: %w", err)
	}
	if err := htmlTmpl.Execute(&html, v); err != nil {
		return models.Notification{}, fmt.Errorf("render html body: %w", err)
	}
	return models.Notification{
		ID:        c.newID(),
		ClientID:  client.ClientID,
		Sender:    c.sender,
		Recipient: client.ContactAddress,
		Subject:   c.subject,
		Text:      text.String(),
		HTML:      html.String(),
	}, nil
}
