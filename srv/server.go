package srv

import (
	"net/http"
	"time"

	"github.com/algorealm/triggr/doc"
	"github.com/algorealm/triggr/hub"
	"github.com/algorealm/triggr/hub/wshub"
	"github.com/algorealm/triggr/log"
	"github.com/algorealm/triggr/reg"
	"github.com/algorealm/triggr/trig"
)

// Server wires the gateway's dependencies; Routes builds the HTTP surface
// described in spec §4.9.
type Server struct {
	Projects *reg.Store
	Cache    *reg.Cache
	Docs     *doc.Store
	Triggers *trig.Store
	Index    *trig.Index
	Bus      *hub.Bus
	Log      log.Logger

	RequestTimeout time.Duration
	HubQueueDepth  int
}

// Routes builds the full gateway mux, per spec §4.9 and §6.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.health)

	mux.HandleFunc("POST /api/console/project", s.requireBearer(s.createProject))
	mux.HandleFunc("GET /api/console/projects", s.requireBearer(s.listProjects))
	mux.HandleFunc("GET /api/console/project/{api_key}", s.requireBearer(s.getProjectByKey))
	mux.HandleFunc("DELETE /api/console/project/{api_key}", s.requireBearer(s.deleteProjectByKey))

	mux.HandleFunc("GET /api/db/collections", s.requireAPIKey(s.listCollections))
	mux.HandleFunc("POST /api/db/collections/{name}/docs", s.requireAPIKey(s.insertDocument))
	mux.HandleFunc("GET /api/db/collections/{name}/docs", s.requireAPIKey(s.listDocuments))
	mux.HandleFunc("GET /api/db/collections/{name}/docs/{id}", s.requireAPIKey(s.getDocument))
	mux.HandleFunc("PUT /api/db/collections/{name}/docs/{id}", s.requireAPIKey(s.updateDocument))
	mux.HandleFunc("PATCH /api/db/collections/{name}/docs/{id}", s.requireAPIKey(s.patchDocument))
	mux.HandleFunc("DELETE /api/db/collections/{name}/docs/{id}", s.requireAPIKey(s.deleteDocument))

	mux.HandleFunc("POST /api/trigger", s.requireAPIKey(s.saveTrigger))
	mux.HandleFunc("GET /api/trigger/{contract_addr}", s.requireAPIKey(s.listTriggers))
	mux.HandleFunc("GET /api/trigger/{contract_addr}/{id}", s.requireAPIKey(s.getTrigger))
	mux.HandleFunc("DELETE /api/trigger/{contract_addr}/{id}", s.requireAPIKey(s.deleteTrigger))
	mux.HandleFunc("PUT /api/trigger/{contract_addr}/{id}/state", s.requireAPIKey(s.updateTriggerState))

	mux.HandleFunc("GET /ws", s.requireAPIKey(s.ws))

	return cors(s.withTimeout(mux))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ws(w http.ResponseWriter, r *http.Request) {
	wshub.Serve(s.Bus, s.HubQueueDepth, s.Log)(w, r)
}
