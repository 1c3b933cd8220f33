package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/ocisql/internal/database"
	"github.com/koustreak/ocisql/internal/errs"
)

type environmentRequest struct {
	Int64    *bool `json:"int64,omitempty"`
	Prefetch *int  `json:"prefetch,omitempty"`
}

type connectRequest struct {
	Source   string `json:"source"`
	User     string `json:"user"`
	Password string `json:"password"`
	Async    bool   `json:"async"`
}

type executeRequest struct {
	SQL string `json:"sql"`
}

type resumeRequest struct {
	Pending string `json:"pending"`
}

type autoCommitRequest struct {
	On bool `json:"on"`
}

type fetchRequest struct {
	Mode string `json:"mode"`
}

type idResponse struct {
	ID     string `json:"id"`
	Status int    `json:"status"`
}

type closedResponse struct {
	Closed bool `json:"closed"`
}

type statusResponse struct {
	Status int `json:"status"`
}

// executeResponse carries exactly one of Cursor, Pending or RowsAffected.
type executeResponse struct {
	Status       int    `json:"status"`
	Cursor       string `json:"cursor,omitempty"`
	Pending      string `json:"pending,omitempty"`
	RowsAffected *int64 `json:"rows_affected,omitempty"`
}

type fetchResponse struct {
	Status int            `json:"status"`
	Done   bool           `json:"done"`
	Row    []any          `json:"row,omitempty"`
	Named  map[string]any `json:"named,omitempty"`
}

type columnsResponse struct {
	Names        []string                              `json:"names"`
	Types        []string                              `json:"types"`
	Descriptions map[string]database.ColumnDescription `json:"descriptions"`
}

func (s *Server) createEnvironment(w http.ResponseWriter, r *http.Request) {
	var req environmentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	int64Mode, prefetch := s.cfg.Int64, s.cfg.Prefetch
	if req.Int64 != nil {
		int64Mode = *req.Int64
	}
	if req.Prefetch != nil {
		prefetch = *req.Prefetch
	}

	env, err := database.NewEnvironment(s.lib,
		database.WithLogger(s.log),
		database.WithInt64(int64Mode),
		database.WithPrefetch(prefetch),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: s.refs.envs.add(env)})
}

func (s *Server) closeEnvironment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	env, err := s.refs.envs.get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	closed, err := env.Close()
	if err != nil {
		writeError(w, err)
		return
	}
	s.refs.envs.remove(id)
	writeJSON(w, http.StatusOK, closedResponse{Closed: closed})
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	env, err := s.refs.envs.get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req connectRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if !req.Async {
		conn, err := env.Connect(r.Context(), req.Source, req.User, req.Password)
		if err != nil {
			writeError(w, err)
			return
		}
		id := s.refs.conns.add(connRef{env: env, conn: conn})
		writeJSON(w, http.StatusCreated, idResponse{ID: id, Status: int(database.StatusSuccess)})
		return
	}

	conn, status, err := env.ConnectAsync(r.Context(), req.Source, req.User, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	id := s.refs.conns.add(connRef{env: env, conn: conn})
	writeJSON(w, http.StatusAccepted, idResponse{ID: id, Status: int(status)})
}

func (s *Server) pollConnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ref, err := s.refs.conns.get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	_, status, err := ref.env.PollConnect(ref.conn)
	if err != nil {
		if errs.IsDatabase(err) {
			// the failed logon handle is gone for good
			s.refs.conns.remove(id)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id, Status: int(status)})
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request) {
	ref, err := s.refs.conns.get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req executeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := ref.conn.Execute(r.Context(), req.SQL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.executeResult(ref.conn, res))
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	ref, err := s.refs.conns.get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req resumeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := s.refs.pending.get(req.Pending)
	if err != nil {
		writeError(w, err)
		return
	}
	// the token stays valid for the connection that issued it
	if p.conn != ref.conn {
		writeError(w, errs.Argument("statement handle expected"))
		return
	}
	res, err := p.conn.Resume(r.Context(), p.pending)
	if err != nil {
		s.refs.pending.remove(req.Pending)
		writeError(w, err)
		return
	}
	if res.Pending != nil {
		writeJSON(w, http.StatusOK, executeResponse{Status: int(res.Status), Pending: req.Pending})
		return
	}
	s.refs.pending.remove(req.Pending)
	writeJSON(w, http.StatusOK, s.executeResult(p.conn, res))
}

// executeResult registers whatever handle res carries.
func (s *Server) executeResult(conn *database.Connection, res *database.Result) executeResponse {
	out := executeResponse{Status: int(res.Status)}
	switch {
	case res.Cursor != nil:
		out.Cursor = s.refs.cursors.add(res.Cursor)
	case res.Pending != nil:
		out.Pending = s.refs.pending.add(pendingRef{conn: conn, pending: res.Pending})
	default:
		n := res.RowsAffected
		out.RowsAffected = &n
	}
	return out
}

func (s *Server) commit(w http.ResponseWriter, r *http.Request) {
	s.transaction(w, r, (*database.Connection).Commit)
}

func (s *Server) rollback(w http.ResponseWriter, r *http.Request) {
	s.transaction(w, r, (*database.Connection).Rollback)
}

func (s *Server) transaction(w http.ResponseWriter, r *http.Request, op func(*database.Connection, context.Context) (database.Status, error)) {
	ref, err := s.refs.conns.get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	status, err := op(ref.conn, r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: int(status)})
}

func (s *Server) setAutoCommit(w http.ResponseWriter, r *http.Request) {
	ref, err := s.refs.conns.get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req autoCommitRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	status, err := ref.conn.SetAutoCommit(r.Context(), req.On)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: int(status)})
}

func (s *Server) abort(w http.ResponseWriter, r *http.Request) {
	s.interrupt(w, r, (*database.Connection).Abort)
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	s.interrupt(w, r, (*database.Connection).Reset)
}

func (s *Server) interrupt(w http.ResponseWriter, r *http.Request, op func(*database.Connection) error) {
	ref, err := s.refs.conns.get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := op(ref.conn); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) closeConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ref, err := s.refs.conns.get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	closed, err := ref.conn.Close()
	if err != nil {
		writeError(w, err)
		return
	}
	s.refs.conns.remove(id)
	writeJSON(w, http.StatusOK, closedResponse{Closed: closed})
}

func (s *Server) fetch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cur, err := s.refs.cursors.get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	var req fetchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var out fetchResponse
	if req.Mode == "" {
		row, status, err := cur.Fetch(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		out = fetchResponse{Status: int(status), Row: row}
	} else {
		rec, status, err := cur.FetchInto(r.Context(), &database.Record{}, req.Mode)
		if err != nil {
			writeError(w, err)
			return
		}
		out.Status = int(status)
		if rec != nil {
			out.Row, out.Named = rec.Values, rec.Named
		}
	}

	if cur.Closed() {
		// exhausted: the cursor closed itself
		out.Done = true
		s.refs.cursors.remove(id)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) columns(w http.ResponseWriter, r *http.Request) {
	cur, err := s.refs.cursors.get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var out columnsResponse
	if out.Names, err = cur.GetColumnNames(); err != nil {
		writeError(w, err)
		return
	}
	if out.Types, err = cur.GetColumnTypes(); err != nil {
		writeError(w, err)
		return
	}
	if out.Descriptions, err = cur.GetColumnDescriptions(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) closeCursor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cur, err := s.refs.cursors.get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	closed := cur.Close()
	s.refs.cursors.remove(id)
	writeJSON(w, http.StatusOK, closedResponse{Closed: closed})
}
