package srv

import (
	"io"
	"net/http"

	"github.com/algorealm/triggr/errs"
)

// createProject handles POST /api/console/project: a multipart form with
// project_name, contract_addr, description, and a contracts_json file,
// per spec §4.9.
func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeError(w, errs.Wrap(errs.Validation, err, "invalid multipart form"))
		return
	}
	name := r.FormValue("project_name")
	contractAddr := r.FormValue("contract_addr")
	description := r.FormValue("description")
	if name == "" || contractAddr == "" {
		writeError(w, errs.New(errs.Validation, "project_name and contract_addr are required"))
		return
	}
	file, _, err := r.FormFile("contracts_json")
	if err != nil {
		writeError(w, errs.Wrap(errs.Validation, err, "contracts_json file is required"))
		return
	}
	defer file.Close()
	descriptor, err := io.ReadAll(file)
	if err != nil {
		writeError(w, errs.Wrap(errs.Validation, err, "reading contracts_json"))
		return
	}

	p, secret, err := s.Projects.CreateProject(ownerFrom(r), name, description, contractAddr, descriptor)
	if err != nil {
		writeError(w, err)
		return
	}
	s.Cache.Set(p.ID, p.Schema)
	writeData(w, http.StatusCreated, map[string]interface{}{"project": p, "secret": secret})
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	ps, err := s.Projects.ListProjects(ownerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, ps)
}

// getProjectByKey and deleteProjectByKey take the project's API key in the
// path, per spec §4.9 (`GET /api/console/project/{api_key}`); the owner
// check enforces that only the project's own owner can read or remove it.
func (s *Server) getProjectByKey(w http.ResponseWriter, r *http.Request) {
	p, err := s.Projects.VerifyAPIKey(r.PathValue("api_key"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Projects.CheckOwnership(ownerFrom(r), p.ID); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

func (s *Server) deleteProjectByKey(w http.ResponseWriter, r *http.Request) {
	p, err := s.Projects.VerifyAPIKey(r.PathValue("api_key"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Projects.CheckOwnership(ownerFrom(r), p.ID); err != nil {
		writeError(w, err)
		return
	}
	// Cascades to the project's triggers, per spec §4.3.
	triggers, err := s.Triggers.List(p.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Triggers.DeleteAllForProject(p.ID); err != nil {
		writeError(w, err)
		return
	}
	for _, t := range triggers {
		s.Index.Remove(p.ID, t.ID)
	}
	if err := s.Docs.DeleteAllForProject(p.ID); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Projects.DeleteProject(p.ID); err != nil {
		writeError(w, err)
		return
	}
	s.Cache.Evict(p.ID)
	writeData(w, http.StatusOK, map[string]string{"deleted": p.ID})
}
