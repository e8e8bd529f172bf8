package srv

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/algorealm/triggr/dsl"
	"github.com/algorealm/triggr/errs"
	"github.com/algorealm/triggr/trig"
)

// maxSourceLen is the DSL source size cap of spec §6.
const maxSourceLen = 32 * 1024

type saveTriggerBody struct {
	ID           string `json:"id"`
	ContractAddr string `json:"contract_addr"`
	Description  string `json:"description"`
	Trigger      string `json:"trigger"`
}

// saveTrigger handles POST /api/trigger: compiles the DSL source against
// the caller's project schema and only persists it if it compiles, per
// spec §4.4's "the stripped source is stored" rule.
func (s *Server) saveTrigger(w http.ResponseWriter, r *http.Request) {
	p, _ := projectFrom(r)
	var body saveTriggerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errs.Wrap(errs.Validation, err, "invalid trigger body"))
		return
	}
	if len(body.Trigger) > maxSourceLen {
		writeError(w, errs.New(errs.Validation, "trigger source exceeds %d bytes", maxSourceLen))
		return
	}
	if body.ID == "" {
		writeError(w, errs.New(errs.Validation, "trigger id is required"))
		return
	}
	if _, err := s.Triggers.Get(p.ID, body.ID); err == nil {
		writeError(w, errs.New(errs.Conflict, "trigger %s already exists", body.ID))
		return
	}
	script, stripped, err := dsl.Parse(body.Trigger)
	if err != nil {
		writeError(w, errs.Wrap(errs.Validation, err, "trigger parse failed"))
		return
	}
	if _, err := dsl.Compile(script, p.Schema); err != nil {
		writeError(w, errs.Wrap(errs.Validation, err, "trigger compile failed"))
		return
	}
	t := trig.Trigger{
		ID:          body.ID,
		ProjectID:   p.ID,
		Description: body.Description,
		Source:      stripped,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.Triggers.Create(t); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.Index.Activate(t, p.Schema); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, t)
}

func (s *Server) listTriggers(w http.ResponseWriter, r *http.Request) {
	p, _ := projectFrom(r)
	ts, err := s.Triggers.List(p.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, ts)
}

func (s *Server) getTrigger(w http.ResponseWriter, r *http.Request) {
	p, _ := projectFrom(r)
	t, err := s.Triggers.Get(p.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, t)
}

func (s *Server) deleteTrigger(w http.ResponseWriter, r *http.Request) {
	p, _ := projectFrom(r)
	id := r.PathValue("id")
	if err := s.Triggers.Delete(p.ID, id); err != nil {
		writeError(w, err)
		return
	}
	s.Index.Remove(p.ID, id)
	writeData(w, http.StatusOK, map[string]string{"deleted": id})
}

type triggerStateBody struct {
	Active bool `json:"active"`
}

func (s *Server) updateTriggerState(w http.ResponseWriter, r *http.Request) {
	p, _ := projectFrom(r)
	id := r.PathValue("id")
	var body triggerStateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errs.Wrap(errs.Validation, err, "invalid body"))
		return
	}
	t, err := s.Triggers.SetActive(p.ID, id, body.Active)
	if err != nil {
		writeError(w, err)
		return
	}
	if body.Active {
		if _, err := s.Index.Activate(t, p.Schema); err != nil {
			writeError(w, err)
			return
		}
	} else {
		s.Index.Remove(p.ID, id)
	}
	writeData(w, http.StatusOK, t)
}
