package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"
)

const resetSubject = "Restablecer contraseña"

var resetHTML = htmltemplate.Must(htmltemplate.New("reset.html").Parse(
	`<p>Has solicitado restablecer tu contraseña.</p>
<p><a href="{{.URL}}">Haz clic aquí para crear una nueva</a> (válido {{.Validity}}).</p>
<p>Si no has sido tú, ignora este mensaje.</p>
`))

var resetText = texttemplate.Must(texttemplate.New("reset.txt").Parse(
	`Has solicitado restablecer tu contraseña.

Abre este enlace para crear una nueva (válido {{.Validity}}):
{{.URL}}

Si no has sido tú, ignora este mensaje.
`))

type resetData struct {
	URL      string
	Validity string
}

// resetBodies renders the HTML and plain text parts of the recovery mail.
func resetBodies(resetURL string, ttl time.Duration) (html, text string, err error) {
	data := resetData{URL: resetURL, Validity: validity(ttl)}

	var h, t bytes.Buffer
	if err := resetHTML.Execute(&h, data); err != nil {
		return "", "", err
	}
	if err := resetText.Execute(&t, data); err != nil {
		return "", "", err
	}
	return h.String(), t.String(), nil
}

func validity(ttl time.Duration) string {
	switch {
	case ttl == time.Hour:
		return "1 hora"
	case ttl > time.Hour && ttl%time.Hour == 0:
		return fmt.Sprintf("%d horas", int(ttl/time.Hour))
	default:
		return fmt.Sprintf("%d minutos", int(ttl.Round(time.Minute)/time.Minute))
	}
}
