package worker

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/realDragonium/Slumber/core"
	"go.uber.org/multierr"
)

// Reloadable is a snapshot which can be read again from disk.
type Reloadable interface {
	Reload() error
}

// Lifecycle is the part of the server the api exposes.
type Lifecycle interface {
	core.Server
	Connections() int64
}

type StatusJSON struct {
	State       string `json:"state"`
	Connections int64  `json:"connections"`
	Failure     string `json:"failure,omitempty"`
	Version     string `json:"version,omitempty"`
	Protocol    int    `json:"protocol,omitempty"`
}

func NewAPI(server Lifecycle, snapshots ...Reloadable) *API {
	return &API{
		lifecycle: server,
		snapshots: snapshots,
	}
}

type API struct {
	lifecycle Lifecycle
	snapshots []Reloadable
}

func (api *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/wake", api.wakeHandler)
	mux.HandleFunc("/sleep", api.sleepHandler)
	mux.HandleFunc("/status", api.statusHandler)
	mux.HandleFunc("/reload", api.reloadHandler)
	return mux
}

func (api *API) wakeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !api.lifecycle.Wake() {
		http.Error(w, "server is "+api.lifecycle.State().String(), http.StatusConflict)
		return
	}
	w.WriteHeader(200)
	fmt.Fprintln(w, "success")
}

func (api *API) sleepHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !api.lifecycle.Sleep() {
		http.Error(w, "server is "+api.lifecycle.State().String(), http.StatusConflict)
		return
	}
	w.WriteHeader(200)
	fmt.Fprintln(w, "success")
}

func (api *API) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := StatusJSON{
		State:       api.lifecycle.State().String(),
		Connections: api.lifecycle.Connections(),
	}
	if err := api.lifecycle.Failure(); err != nil {
		status.Failure = err.Error()
	}
	if probed, ok := api.lifecycle.Status(); ok {
		status.Version = probed.Version.Name
		status.Protocol = probed.Version.Protocol
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (api *API) reloadHandler(w http.ResponseWriter, r *http.Request) {
	var err error
	for _, snapshot := range api.snapshots {
		err = multierr.Append(err, snapshot.Reload())
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.WriteHeader(200)
	fmt.Fprintln(w, "success")
}
