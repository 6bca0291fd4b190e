package email

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/racealert/race-alert/internal/alert"
)

var registrationOpenHTML = template.Must(template.New("registration_open").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>{{.RaceName}} registration is open</h2>
  <p>Registration for <strong>{{.RaceName}}</strong> just opened. Spots for
  major marathons can fill within hours, so register as soon as you can.</p>
  <p><a href="{{.RaceURL}}" style="display: inline-block; padding: 12px 24px; background: #16a34a; color: #fff; text-decoration: none; border-radius: 6px;">Register now</a></p>
  <p style="color: #666; font-size: 13px;">You received this because you subscribed to race registration alerts.{{if .UnsubscribeURL}} <a href="{{.UnsubscribeURL}}">Unsubscribe</a>.{{end}}</p>
</body>
</html>`))

var welcomeHTML = template.Must(template.New("welcome").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>You're on the list</h2>
  <p>We'll email you the moment registration opens for any of the
  {{.RaceCount}} races we watch.</p>
  <p style="color: #666; font-size: 13px;">Didn't sign up?{{if .UnsubscribeURL}} <a href="{{.UnsubscribeURL}}">Unsubscribe</a>.{{end}}</p>
</body>
</html>`))

type registrationOpenData struct {
	RaceName       string
	RaceURL        string
	UnsubscribeURL string
}

type welcomeData struct {
	RaceCount      int
	UnsubscribeURL string
}

func unsubscribeURL(baseURL string) string {
	if baseURL == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/api/unsubscribe"
}

func renderRegistrationOpen(race alert.Race, baseURL string) (html, text string, err error) {
	var buf strings.Builder
	data := registrationOpenData{
		RaceName:       race.Name,
		RaceURL:        race.URL,
		UnsubscribeURL: unsubscribeURL(baseURL),
	}
	if err := registrationOpenHTML.Execute(&buf, data); err != nil {
		return "", "", err
	}

	text = fmt.Sprintf(
		"%s registration is open!\n\nRegister now: %s\n\nSpots can fill fast.",
		race.Name, race.URL)
	return buf.String(), text, nil
}

func renderWelcome(raceCount int, baseURL string) (html, text string, err error) {
	var buf strings.Builder
	data := welcomeData{
		RaceCount:      raceCount,
		UnsubscribeURL: unsubscribeURL(baseURL),
	}
	if err := welcomeHTML.Execute(&buf, data); err != nil {
		return "", "", err
	}

	text = fmt.Sprintf(
		"You're subscribed to race registration alerts for %d races.", raceCount)
	return buf.String(), text, nil
}
