package srv

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/algorealm/triggr/errs"
	"github.com/algorealm/triggr/reg"
)

type ctxKey int

const (
	ctxOwner ctxKey = iota
	ctxProject
)

// requireBearer extracts an opaque bearer token and treats its value as
// the caller's owner id. Validating it against an external identity
// provider is out of scope (spec §1): the node only ever sees the token.
func (s *Server) requireBearer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		tok := strings.TrimPrefix(auth, "Bearer ")
		if tok == "" || tok == auth {
			writeError(w, errs.New(errs.Unauthorized, "missing bearer token"))
			return
		}
		ctx := context.WithValue(r.Context(), ctxOwner, tok)
		next(w, r.WithContext(ctx))
	}
}

// requireAPIKey resolves the x-api-key header (or ?api_key= query, for
// browser WebSocket clients) through reg.Store.VerifyAPIKey, whose key
// cache spares repeat callers the project-bucket scan, and refreshes the
// resolved project's schema in s.Cache.
func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("x-api-key")
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}
		if key == "" {
			writeError(w, errs.New(errs.Unauthorized, "missing api key"))
			return
		}
		p, err := s.Projects.VerifyAPIKey(key)
		if err != nil {
			writeError(w, err)
			return
		}
		s.Cache.Set(p.ID, p.Schema)
		ctx := context.WithValue(r.Context(), ctxProject, p)
		next(w, r.WithContext(ctx))
	}
}

func ownerFrom(r *http.Request) string {
	v, _ := r.Context().Value(ctxOwner).(string)
	return v
}

func projectFrom(r *http.Request) (reg.Project, bool) {
	v, ok := r.Context().Value(ctxProject).(reg.Project)
	return v, ok
}

// cors applies a permissive CORS layer for browser console access,
// matching the original server's Axum CORS layer.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, x-api-key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// timeoutWriter guards against a handler writing after the deadline has
// already fired and the timeout response has been sent.
type timeoutWriter struct {
	http.ResponseWriter
	mu        *sync.Mutex
	timedOut  *bool
}

func (w *timeoutWriter) WriteHeader(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if *w.timedOut {
		return
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *timeoutWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if *w.timedOut {
		return len(b), nil
	}
	return w.ResponseWriter.Write(b)
}

// withTimeout bounds handler execution to the per-request deadline of
// spec §5 (default 30s, set by Server.RequestTimeout): if the handler has
// not responded by the deadline, the client gets a Timeout envelope
// instead of hanging or getting whatever the handler eventually writes.
func (s *Server) withTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.RequestTimeout)
		defer cancel()

		var mu sync.Mutex
		timedOut := false
		tw := &timeoutWriter{ResponseWriter: w, mu: &mu, timedOut: &timedOut}

		done := make(chan struct{})
		go func() {
			defer close(done)
			next.ServeHTTP(tw, r.WithContext(ctx))
		}()

		select {
		case <-done:
		case <-ctx.Done():
			mu.Lock()
			timedOut = true
			writeError(w, errs.New(errs.Timeout, "request exceeded %s deadline", s.RequestTimeout))
			mu.Unlock()
		}
	})
}
