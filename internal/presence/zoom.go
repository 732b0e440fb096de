package presence

import (
	"context"
	"net/http"
)

// DefaultZoomURL is the Zoom presence endpoint.
const DefaultZoomURL = "https://api.zoom.us/v2/users/me/presence_status"

// Zoom reads presence from the Zoom API and maps it onto Graph names.
type Zoom struct {
	URL    string
	client *http.Client
}

// NewZoom returns a Zoom provider.
func NewZoom(client *http.Client) *Zoom {
	return &Zoom{URL: DefaultZoomURL, client: defaultClient(client)}
}

// Fetch returns the mapped availability and activity.
func (z *Zoom) Fetch(ctx context.Context, token string) (State, error) {
	var body struct {
		Status string `json:"status"`
	}
	if err := getJSON(ctx, z.client, z.URL, token, &body); err != nil {
		return State{}, err
	}
	return State{Availability: zoomAvailability(body.Status), Activity: zoomActivity(body.Status)}, nil
}

func zoomAvailability(status string) string {
	switch status {
	case "Available":
		return Available
	case "Away", "Out_of_Office":
		return Away
	case "Do_Not_Disturb":
		return DoNotDisturb
	case "Busy", "In_A_Zoom_Meeting", "On_A_Call", "Presenting", "In_Calendar_Event":
		return Busy
	case "Offline":
		return Offline
	}
	return Unknown
}

func zoomActivity(status string) string {
	switch status {
	case "In_A_Zoom_Meeting":
		return "In a Meeting"
	case "On_A_Call":
		return "On a Call"
	case "Presenting":
		return "Presenting"
	case "In_Calendar_Event":
		return "Calendar Event"
	case "Out_of_Office":
		return "Out of Office"
	case "Do_Not_Disturb":
		return "Do Not Disturb"
	}
	return ""
}
