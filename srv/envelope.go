// Package srv is the gateway (C9): HTTP routing, request auth, and the
// WebSocket upgrade, fronting reg/doc/trig/hub.
package srv

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/algorealm/triggr/errs"
)

// envelope is the success response shape of spec §6.
type envelope struct {
	Data    interface{} `json:"data"`
	Status  int         `json:"status"`
	Message string      `json:"message,omitempty"`
	Time    string      `json:"timestamp"`
}

// errEnvelope is the error response shape of spec §6.
type errEnvelope struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Time    string      `json:"timestamp"`
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, envelope{Data: data, Status: status, Time: now()})
}

func writeError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	writeJSON(w, kind.Status(), errEnvelope{Code: kind.String(), Message: err.Error(), Time: now()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }
