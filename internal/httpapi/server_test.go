package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dokzlo13/fujitsud/internal/adapter"
	"github.com/dokzlo13/fujitsud/internal/climate"
	"github.com/dokzlo13/fujitsud/internal/state"
)

type fakeController struct {
	mu       sync.Mutex
	requests []adapter.Request
	result   adapter.Result
	err      error
}

func (c *fakeController) Control(_ context.Context, req adapter.Request) (adapter.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	res := c.result
	res.ID = req.ID
	return res, c.err
}

func (c *fakeController) State() adapter.State {
	return adapter.State{Available: true, Mode: climate.HVACModeHeat, TargetTemperature: 21, CurrentTemperature: 19}
}

func (c *fakeController) Traits() adapter.Traits { return adapter.DefaultTraits() }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetState(t *testing.T) {
	s := NewServer("127.0.0.1", 0, &fakeController{}, 0)

	rec := do(t, s.Handler(), http.MethodGet, "/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var st adapter.State
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Mode != climate.HVACModeHeat || st.TargetTemperature != 21 {
		t.Errorf("state = %+v", st)
	}
}

func TestGetTraits(t *testing.T) {
	s := NewServer("127.0.0.1", 0, &fakeController{}, 0)

	rec := do(t, s.Handler(), http.MethodGet, "/traits", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"min_temperature":16`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestPostControl(t *testing.T) {
	ctrl := &fakeController{result: adapter.Result{Staged: state.Fields(state.FieldPower, state.FieldMode)}}
	s := NewServer("127.0.0.1", 0, ctrl, 0)
	id := uuid.New()

	body := `{"id":"` + id.String() + `","mode":"cool","temperature":23.5,"fan_mode":"low","swing_step":2}`
	rec := do(t, s.Handler(), http.MethodPost, "/control", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	if len(ctrl.requests) != 1 {
		t.Fatalf("Control calls = %d", len(ctrl.requests))
	}
	req := ctrl.requests[0]
	if req.ID != id || req.Source != SourceHTTP {
		t.Errorf("id/source = %v/%q", req.ID, req.Source)
	}
	if *req.Mode != climate.HVACModeCool || *req.Temperature != 23.5 || *req.FanMode != climate.HAFanLow || *req.SwingStep != 2 {
		t.Errorf("request = %+v", req)
	}
	if req.SwingMode != nil {
		t.Error("swing mode should be unset")
	}
	if !strings.Contains(rec.Body.String(), `"staged":"power|mode"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestPostControlErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		result adapter.Result
		want   int
	}{
		{"bad_json", `{`, nil, adapter.Result{}, http.StatusBadRequest},
		{"bad_mode", `{"mode":"blast"}`, nil, adapter.Result{}, http.StatusBadRequest},
		{"bad_id", `{"id":"nope","mode":"cool"}`, nil, adapter.Result{}, http.StatusBadRequest},
		{"empty", `{}`, nil, adapter.Result{}, http.StatusBadRequest},
		{"unsupported", `{"mode":"dry"}`, adapter.ErrUnsupportedMode, adapter.Result{}, http.StatusUnprocessableEntity},
		{"dropped", `{"temperature":20}`, nil, adapter.Result{Dropped: state.Fields(state.FieldTemperature)}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer("127.0.0.1", 0, &fakeController{err: tt.err, result: tt.result}, 0)
			rec := do(t, s.Handler(), http.MethodPost, "/control", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestPostControlRateLimited(t *testing.T) {
	ctrl := &fakeController{}
	s := NewServer("127.0.0.1", 0, ctrl, 1)
	h := s.Handler()

	if rec := do(t, h, http.MethodPost, "/control", `{"mode":"heat"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("first status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/control", `{"mode":"cool"}`); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", rec.Code)
	}
	if len(ctrl.requests) != 1 {
		t.Errorf("Control calls = %d, want 1", len(ctrl.requests))
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := NewServer("127.0.0.1", 0, &fakeController{}, 0)
	if rec := do(t, s.Handler(), http.MethodGet, "/control", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := NewServer("127.0.0.1", 0, &fakeController{}, 0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, time.Second) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
