package presence

import (
	"context"
	"net/http"
)

// DefaultGraphURL is the Microsoft Graph presence endpoint.
const DefaultGraphURL = "https://graph.microsoft.com/v1.0/me/presence"

// Graph reads Teams presence from Microsoft Graph.
type Graph struct {
	URL    string
	client *http.Client
}

// NewGraph returns a Graph provider.
func NewGraph(client *http.Client) *Graph {
	return &Graph{URL: DefaultGraphURL, client: defaultClient(client)}
}

// Fetch returns the current availability and activity.
func (g *Graph) Fetch(ctx context.Context, token string) (State, error) {
	var body struct {
		Availability string `json:"availability"`
		Activity     string `json:"activity"`
	}
	if err := getJSON(ctx, g.client, g.URL, token, &body); err != nil {
		return State{}, err
	}
	if body.Availability == "" {
		body.Availability = Unknown
	}
	return State{Availability: body.Availability, Activity: body.Activity}, nil
}
