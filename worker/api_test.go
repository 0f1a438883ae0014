package worker_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/realDragonium/Slumber/core"
	"github.com/realDragonium/Slumber/mc"
	"github.com/realDragonium/Slumber/worker"
)

type testReloadable struct {
	err     error
	reloads int
}

func (r *testReloadable) Reload() error {
	r.reloads++
	return r.err
}

func TestAPI_WakeAndSleep(t *testing.T) {
	server := newFakeServer(core.Sleeping)
	handler := worker.NewAPI(server).Handler()

	tt := []struct {
		method string
		path   string
		code   int
		state  core.ServerState
	}{
		{method: http.MethodGet, path: "/wake", code: http.StatusMethodNotAllowed, state: core.Sleeping},
		{method: http.MethodPost, path: "/sleep", code: http.StatusConflict, state: core.Sleeping},
		{method: http.MethodPost, path: "/wake", code: http.StatusOK, state: core.Starting},
		{method: http.MethodPost, path: "/wake", code: http.StatusConflict, state: core.Starting},
	}
	for _, tc := range tt {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != tc.code {
			t.Errorf("%s %s: expected %d but got %d", tc.method, tc.path, tc.code, rec.Code)
		}
		if server.State() != tc.state {
			t.Errorf("%s %s: expected state %v but got %v", tc.method, tc.path, tc.state, server.State())
		}
	}

	server.SetState(core.Running)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sleep", nil))
	if rec.Code != http.StatusOK || server.State() != core.Stopping {
		t.Errorf("sleep while running: code %d, state %v", rec.Code, server.State())
	}
}

func TestAPI_Status(t *testing.T) {
	server := newFakeServer(core.Running)
	server.SetStatus(mc.ResponseJSON{Version: mc.VersionJSON{Name: "1.17.1", Protocol: 756}})
	server.ConnOpened()
	server.ConnOpened()

	rec := httptest.NewRecorder()
	worker.NewAPI(server).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var status worker.StatusJSON
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	expected := worker.StatusJSON{State: "Running", Connections: 2, Version: "1.17.1", Protocol: 756}
	if diff := cmp.Diff(expected, status); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestAPI_StatusShowsFailure(t *testing.T) {
	server := newFakeServer(core.Starting)
	server.Fail(core.ErrStartTimeout)

	rec := httptest.NewRecorder()
	worker.NewAPI(server).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var status worker.StatusJSON
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.State != "Sleeping" || status.Failure != core.ErrStartTimeout.Error() {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestAPI_Reload(t *testing.T) {
	ok := &testReloadable{}
	failing := &testReloadable{err: errors.New("broken json")}

	rec := httptest.NewRecorder()
	worker.NewAPI(newFakeServer(core.Sleeping), ok).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reload", nil))
	if rec.Code != http.StatusOK || ok.reloads != 1 {
		t.Errorf("expected a successful reload but got %d (%d reloads)", rec.Code, ok.reloads)
	}

	rec = httptest.NewRecorder()
	worker.NewAPI(newFakeServer(core.Sleeping), ok, failing).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reload", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 but got %d", rec.Code)
	}
	if ok.reloads != 2 || failing.reloads != 1 {
		t.Error("every snapshot should be reloaded even when one fails")
	}
}
