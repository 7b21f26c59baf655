package http

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Converse/internal/app"
	"github.com/dkeye/Converse/internal/config"
	"github.com/dkeye/Converse/internal/core"
	"github.com/dkeye/Converse/internal/domain"
)

func setup(t *testing.T) (*gin.Engine, *core.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	static := t.TempDir()
	for _, name := range []string{"index.html", "room.html"} {
		if err := os.WriteFile(filepath.Join(static, name), []byte("<html>"+name+"</html>"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	rooms := core.NewRegistry()
	router := app.NewRouter(rooms, app.NewSessions(), nil, nil)
	cfg := &config.Config{Mode: "test", StaticPath: static, Secret: "test-secret"}
	return SetupRouter(context.Background(), cfg, router), rooms
}

func TestRoomsListing(t *testing.T) {
	engine, rooms := setup(t)
	rooms.Join("beta", 2, "h2")
	rooms.Join("alpha", 1, "h1")
	rooms.Join("alpha", 3, "h3")

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(nethttp.MethodGet, "/rooms", nil))
	if w.Code != nethttp.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got []domain.RoomInfo
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	want := []domain.RoomInfo{{ID: "alpha", Participants: 2}, {ID: "beta", Participants: 1}}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("rooms = %+v", got)
	}
	if body := strings.TrimSpace(w.Body.String()); body != `[["alpha",2],["beta",1]]` {
		t.Errorf("wire form = %s", body)
	}
}

func TestLobbyFormRedirects(t *testing.T) {
	engine, _ := setup(t)
	form := url.Values{"roomId": {"my room"}}
	req := httptest.NewRequest(nethttp.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != nethttp.StatusSeeOther || w.Header().Get("Location") != "/room/my%20room" {
		t.Fatalf("status=%d location=%q", w.Code, w.Header().Get("Location"))
	}

	req = httptest.NewRequest(nethttp.MethodPost, "/", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != nethttp.StatusBadRequest {
		t.Fatalf("empty room status = %d", w.Code)
	}
}

func TestRoomPageRemembersLastRoom(t *testing.T) {
	engine, _ := setup(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(nethttp.MethodGet, "/room/lounge", nil))
	if w.Code != nethttp.StatusOK || !strings.Contains(w.Body.String(), "room.html") {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}

	req := httptest.NewRequest(nethttp.MethodGet, "/api/whoami", nil)
	for _, c := range w.Result().Cookies() {
		req.AddCookie(c)
	}
	w2 := httptest.NewRecorder()
	engine.ServeHTTP(w2, req)
	var who struct {
		ClientToken string `json:"client_token"`
		LastRoom    string `json:"last_room"`
	}
	if err := json.Unmarshal(w2.Body.Bytes(), &who); err != nil {
		t.Fatal(err)
	}
	if who.LastRoom != "lounge" || who.ClientToken == "" {
		t.Fatalf("whoami = %+v", who)
	}
}

func TestHealth(t *testing.T) {
	engine, _ := setup(t)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(nethttp.MethodGet, "/health", nil))
	if w.Code != nethttp.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}
