// Package notify provides implementations of services.Notifier.
//
//   - LogNotifier writes every command to zerolog; useful for local runs.
//   - WebhookNotifier posts commands as JSON to a chat bridge that executes
//     them against the chat platform.
//   - Hub fans commands out to WebSocket dashboards.
//   - Multi composes a primary notifier with any number of mirrors.
//
// presentation.go builds the platform-neutral view of an announcement that
// the webhook and hub payloads carry.
package notify

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-rescue-dispatch/internal/domain"
)

// Control ids carried by the announcement buttons.
const (
	ControlTakeCase    = "take_case"
	ControlMarkSuccess = "mark_success"
	ControlMarkFailed  = "mark_failed"
)

// ThreadAutoArchiveMinutes is the inactivity window after which the platform
// archives a case thread on its own.
const ThreadAutoArchiveMinutes = 60

// Field is one labelled row of an announcement.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Control is an interactive button on an announcement.
type Control struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Style    string `json:"style"`
	Disabled bool   `json:"disabled"`
}

// Presentation is the rendered form of a case announcement.
type Presentation struct {
	Content  string    `json:"content,omitempty"`
	Title    string    `json:"title"`
	Color    string    `json:"color"`
	Fields   []Field   `json:"fields"`
	Footer   string    `json:"footer"`
	Controls []Control `json:"controls"`
}

// Present renders c in the given state. A zero RenderState renders the fresh
// announcement, including the responder role mention when roleID is set.
func Present(c domain.Case, state domain.RenderState, roleID string) Presentation {
	p := Presentation{
		Title:  "🪖 Rescue Request",
		Color:  "red",
		Fields: formFields(c.Form),
		Footer: "Requester: " + c.RequesterID,
	}

	switch state.Kind {
	case domain.RenderClaimed:
		p.Title = "🚑 Rescuer en route"
		p.Color = "orange"
	case domain.RenderResolved:
		icon, color := "❌", "red"
		if state.Outcome == domain.StatusSucceeded {
			icon, color = "✅", "green"
		}
		p.Title = fmt.Sprintf("%s Rescue %s", icon, cases.Title(language.English).String(string(state.Outcome)))
		p.Color = color
	default:
		p.Content = "🚨 New rescue request from <@" + c.RequesterID + ">"
		if roleID != "" {
			p.Content = "<@&" + roleID + "> " + p.Content
		}
	}

	p.Controls = []Control{
		{ID: ControlTakeCase, Label: "Take case", Style: "primary"},
		{ID: ControlMarkSuccess, Label: "Succeeded", Style: "success"},
		{ID: ControlMarkFailed, Label: "Failed", Style: "danger"},
	}
	if state.ControlsDisabled {
		for i := range p.Controls {
			p.Controls[i].Disabled = true
		}
	}
	return p
}

// ThreadName is the display name of a case thread.
func ThreadName(c domain.Case) string {
	return fmt.Sprintf("Rescue #%s — %s", c.ID, c.RequesterID)
}

func formFields(f domain.RequestForm) []Field {
	return []Field{
		{Name: "🪖 Cause", Value: f.Cause},
		{Name: "🪖 Galaxy/System", Value: f.GalaxySystem},
		{Name: "🪖 Location", Value: f.Location},
		{Name: "🪖 Time remaining", Value: f.TimeRemaining},
		{Name: "🪖 Hazards?", Value: f.Hazards},
	}
}
