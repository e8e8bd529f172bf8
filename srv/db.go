package srv

import (
	"encoding/json"
	"net/http"

	"github.com/algorealm/triggr/doc"
	"github.com/algorealm/triggr/errs"
)

func (s *Server) listCollections(w http.ResponseWriter, r *http.Request) {
	p, _ := projectFrom(r)
	metas, err := s.Docs.ListCollections(p.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, metas)
}

type insertBody struct {
	ID   string    `json:"id,omitempty"`
	Data doc.Value `json:"data"`
}

func (s *Server) insertDocument(w http.ResponseWriter, r *http.Request) {
	p, _ := projectFrom(r)
	coll := r.PathValue("name")
	var body insertBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errs.Wrap(errs.Validation, err, "invalid document body"))
		return
	}
	if _, err := s.Docs.CreateCollection(p.ID, coll); err != nil {
		writeError(w, err)
		return
	}
	d, err := s.Docs.InsertDoc(p.ID, coll, body.ID, body.Data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, d)
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	p, _ := projectFrom(r)
	docs, err := s.Docs.ListDocs(p.ID, r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, docs)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	p, _ := projectFrom(r)
	d, err := s.Docs.GetDoc(p.ID, r.PathValue("name"), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, d)
}

// updateDocument handles PUT /api/db/collections/{name}/docs/{id}: a full
// upsert (put_doc, spec §4.2), matching the original server's update()
// which overwrites by key rather than merging.
func (s *Server) updateDocument(w http.ResponseWriter, r *http.Request) {
	p, _ := projectFrom(r)
	var data doc.Value
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeError(w, errs.Wrap(errs.Validation, err, "invalid document body"))
		return
	}
	d, err := s.Docs.PutDoc(p.ID, r.PathValue("name"), r.PathValue("id"), data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, d)
}

// patchDocument handles PATCH /api/db/collections/{name}/docs/{id}: a
// shallow merge into an existing document (patch_doc, spec §4.2). Unlike
// PUT it does not upsert: it is NotFound if the document is absent.
func (s *Server) patchDocument(w http.ResponseWriter, r *http.Request) {
	p, _ := projectFrom(r)
	var data doc.Value
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeError(w, errs.Wrap(errs.Validation, err, "invalid document body"))
		return
	}
	d, err := s.Docs.PatchDoc(p.ID, r.PathValue("name"), r.PathValue("id"), data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, d)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	p, _ := projectFrom(r)
	if err := s.Docs.DeleteDoc(p.ID, r.PathValue("name"), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"deleted": r.PathValue("id")})
}
