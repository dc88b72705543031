// Package web renders the embeddable challenge widget.
package web

import (
	"math"
	"net/url"

	"github.com/a-h/templ"

	"github.com/creditpath/captchad/lib/challenge"
	"github.com/creditpath/captchad/lib/localization"
)

// Widget renders an HTML fragment showing rec with a form that posts the
// answer to verifyPath and a link back to widgetPath for a new challenge.
func Widget(rec *challenge.Record, verifyPath, widgetPath string, localizer *localization.SimpleLocalizer) templ.Component {
	return widget(rec, verifyPath, refreshURL(widgetPath, rec.SessionID), localizer)
}

func refreshURL(widgetPath, sessionID string) string {
	return widgetPath + "?" + url.Values{"sessionId": {sessionID}}.Encode()
}

func minutes(rec *challenge.Record) int {
	return int(math.Ceil(rec.ExpiresAt.Sub(rec.CreatedAt).Minutes()))
}

func prompt(rec *challenge.Record, localizer *localization.SimpleLocalizer) string {
	if rec.Format == challenge.FormatPlain {
		return localizer.T("widget_prompt_arith")
	}

	return localizer.T("widget_prompt_text")
}
