package cmd

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"text/template"
	"time"

	"gitlab.com/ucmsv2/idbroker/internal/domain/loginsession"
)

var (
	subjectTmpl = template.Must(template.New("subject").Parse(
		"Code: {{.Code}} - Finish logging in to {{.ClientID}}"))

	bodyTmpl = template.Must(template.New("body").Parse(`Enter your login code:

{{.Code}}

Or click this link:

{{.Link}}
{{if .Validity}}
The code is valid for {{.Validity}}.
{{end}}`))
)

type messageData struct {
	Code     string
	ClientID string
	Link     string
	Validity string
}

// ConfirmURL builds <base>/confirm?session=<id>&code=<code> with both values query-escaped.
func ConfirmURL(baseURL string, id loginsession.ID, code string) string {
	return strings.TrimRight(baseURL, "/") +
		"/confirm?session=" + url.QueryEscape(id.String()) +
		"&code=" + url.QueryEscape(code)
}

func renderMessage(data messageData) (subject, body string, err error) {
	var buf bytes.Buffer
	if err := subjectTmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	subject = buf.String()

	buf.Reset()
	if err := bodyTmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}

	return subject, buf.String(), nil
}

func humanizeTTL(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
