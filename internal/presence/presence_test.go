package presence

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/thefoeyouknow/Teams-Pod/internal/settings"
)

func server(t *testing.T, code int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("authorization header: %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGraphFetch(t *testing.T) {
	srv := server(t, 200, `{"availability":"Busy","activity":"InACall"}`)
	g := NewGraph(srv.Client())
	g.URL = srv.URL

	got, err := g.Fetch(context.Background(), "tok")
	if err != nil {
		t.Fatal(err)
	}
	if got != (State{Availability: Busy, Activity: "InACall"}) {
		t.Errorf("got %+v", got)
	}
	if got.String() != "Busy (InACall)" {
		t.Errorf("String: %q", got.String())
	}
}

func TestGraphUnauthorized(t *testing.T) {
	srv := server(t, 401, `{"error":{"code":"InvalidAuthenticationToken"}}`)
	g := NewGraph(srv.Client())
	g.URL = srv.URL

	if _, err := g.Fetch(context.Background(), "tok"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestGraphServerError(t *testing.T) {
	srv := server(t, 503, `busy`)
	g := NewGraph(srv.Client())
	g.URL = srv.URL

	_, err := g.Fetch(context.Background(), "tok")
	if err == nil || errors.Is(err, ErrUnauthorized) {
		t.Errorf("got %v, want a transient error", err)
	}
}

func TestGraphEmptyAvailability(t *testing.T) {
	srv := server(t, 200, `{}`)
	g := NewGraph(srv.Client())
	g.URL = srv.URL

	got, err := g.Fetch(context.Background(), "tok")
	if err != nil || got.Availability != Unknown {
		t.Errorf("got %+v, %v", got, err)
	}
}

func TestZoomMapping(t *testing.T) {
	tests := []struct {
		status       string
		availability string
		activity     string
	}{
		{"Available", Available, ""},
		{"Away", Away, ""},
		{"Do_Not_Disturb", DoNotDisturb, "Do Not Disturb"},
		{"In_A_Zoom_Meeting", Busy, "In a Meeting"},
		{"On_A_Call", Busy, "On a Call"},
		{"Presenting", Busy, "Presenting"},
		{"In_Calendar_Event", Busy, "Calendar Event"},
		{"Out_of_Office", Away, "Out of Office"},
		{"Offline", Offline, ""},
		{"Something_New", Unknown, ""},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			srv := server(t, 200, `{"status":"`+tt.status+`"}`)
			z := NewZoom(srv.Client())
			z.URL = srv.URL
			got, err := z.Fetch(context.Background(), "tok")
			if err != nil {
				t.Fatal(err)
			}
			if got.Availability != tt.availability || got.Activity != tt.activity {
				t.Errorf("got %+v, want %s/%q", got, tt.availability, tt.activity)
			}
		})
	}
}

func TestLabel(t *testing.T) {
	if Label(DoNotDisturb) != "Do Not Disturb" || Label(BeRightBack) != "Be Right Back" {
		t.Error("label mismatch")
	}
	if Label("Whatever") != "Unknown" {
		t.Error("unknown availability should label Unknown")
	}
}

func TestNewSelectsPlatform(t *testing.T) {
	if _, ok := New(settings.PlatformZoom, nil).(*Zoom); !ok {
		t.Error("want Zoom")
	}
	if _, ok := New(settings.PlatformTeams, nil).(*Graph); !ok {
		t.Error("want Graph")
	}
}
