package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loykin/apidesk/internal/envvars"
	"github.com/loykin/apidesk/internal/ledger"
	"github.com/loykin/apidesk/internal/tabs"
	"github.com/loykin/apidesk/internal/workspace"
)

const maxUploadBytes = 32 << 20

func (s *Server) routes(g *gin.RouterGroup) {
	g.GET("/tabs", s.listTabs)
	g.DELETE("/tabs", s.closeAll)
	g.POST("/tabs/select", s.selectTab)
	g.POST("/tabs/activate", s.activateTab)
	g.POST("/tabs/close", s.closeTabs)
	g.POST("/tabs/reorder", s.reorderTab)
	g.GET("/tabs/current", s.currentTab)
	g.PATCH("/tabs/current/request", s.patchRequest)
	g.POST("/tabs/current/response", s.recordResponse)
	g.GET("/tabs/current/rendered", s.renderedRequest)

	g.GET("/env", s.listEnv)
	g.POST("/env", s.addEnv)
	g.PATCH("/env/:id", s.patchEnv)
	g.DELETE("/env/:id", s.deleteEnv)
	g.POST("/env/refresh", s.refreshEnv)

	g.POST("/files", s.uploadFile)
	g.GET("/files/:id", s.getFile)
	g.DELETE("/files/:id", s.deleteFile)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ---- tabs ----

type ledgerBody struct {
	Entries []ledger.Entry `json:"entries"`
	Active  string         `json:"active"`
}

func toLedgerBody(st ledger.State) ledgerBody {
	if st.Entries == nil {
		st.Entries = []ledger.Entry{}
	}
	return ledgerBody{Entries: st.Entries, Active: st.Active}
}

type viewBody struct {
	State    string         `json:"state"`
	Key      string         `json:"key,omitempty"`
	Document *tabs.Document `json:"document,omitempty"`
}

func toViewBody(v workspace.View) viewBody {
	return viewBody{State: v.State.String(), Key: v.Key, Document: v.Document}
}

func (s *Server) listTabs(c *gin.Context) {
	c.JSON(http.StatusOK, toLedgerBody(s.ws.Ledger.Snapshot()))
}

type selectRequest struct {
	Method string `json:"method" binding:"required"`
	Path   string `json:"path" binding:"required"`
}

func (s *Server) selectTab(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if err := s.ws.Sync.Select(c.Request.Context(), req.Method, req.Path); err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, toViewBody(s.ws.Sync.View()))
}

type keyRequest struct {
	Key  string   `json:"key"`
	Keys []string `json:"keys"`
}

func (s *Server) activateTab(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Key == "" {
		abort(c, http.StatusBadRequest, errors.New("key is required"))
		return
	}
	if err := s.ws.Sync.ActivateTab(c.Request.Context(), req.Key); err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, toViewBody(s.ws.Sync.View()))
}

func (s *Server) closeTabs(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	keys := req.Keys
	if req.Key != "" {
		keys = append(keys, req.Key)
	}
	if len(keys) == 0 {
		abort(c, http.StatusBadRequest, errors.New("key or keys is required"))
		return
	}
	if err := s.ws.Sync.CloseTabs(c.Request.Context(), keys); err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, toLedgerBody(s.ws.Ledger.Snapshot()))
}

func (s *Server) closeAll(c *gin.Context) {
	if err := s.ws.Sync.CloseAll(c.Request.Context()); err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, toLedgerBody(s.ws.Ledger.Snapshot()))
}

type reorderRequest struct {
	Key   string `json:"key" binding:"required"`
	Index int    `json:"index"`
}

func (s *Server) reorderTab(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if !s.ws.Ledger.Reorder(req.Key, req.Index) {
		abort(c, http.StatusNotFound, errors.New("tab not open"))
		return
	}
	c.JSON(http.StatusOK, toLedgerBody(s.ws.Ledger.Snapshot()))
}

func (s *Server) currentTab(c *gin.Context) {
	c.JSON(http.StatusOK, toViewBody(s.ws.Sync.View()))
}

type requestPatch struct {
	URL         *string        `json:"url"`
	Headers     *[]tabs.Pair   `json:"headers"`
	QueryParams *[]tabs.Pair   `json:"queryParams"`
	Body        *string        `json:"body"`
	BodyType    *tabs.BodyType `json:"bodyType"`
	RawType     *tabs.RawType  `json:"rawType"`
	Mode        *tabs.EditMode `json:"mode"`
}

func (p requestPatch) apply(r *tabs.Request) {
	if p.URL != nil {
		r.URL = *p.URL
	}
	if p.Headers != nil {
		r.Headers = *p.Headers
	}
	if p.QueryParams != nil {
		r.QueryParams = *p.QueryParams
	}
	if p.Body != nil {
		r.Body = *p.Body
	}
	if p.BodyType != nil {
		r.BodyType = *p.BodyType
	}
	if p.RawType != nil {
		r.RawType = *p.RawType
	}
	if p.Mode != nil {
		r.Mode = *p.Mode
	}
}

func (s *Server) patchRequest(c *gin.Context) {
	var patch requestPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	doc, err := s.ws.Sync.UpdateRequest(patch.apply)
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) recordResponse(c *gin.Context) {
	var resp tabs.Response
	if err := c.ShouldBindJSON(&resp); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	doc, err := s.ws.Sync.SetLastResponse(resp)
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) renderedRequest(c *gin.Context) {
	req, err := s.ws.Sync.RenderRequest()
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusUnprocessableEntity
		}
		abort(c, status, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// ---- environment ----

type envBody struct {
	Variables []envvars.Resolved `json:"variables"`
	Uptime    string             `json:"uptime,omitempty"`
}

func (s *Server) envSnapshot() envBody {
	return envBody{Variables: s.ws.Env.Vars().Vars(), Uptime: s.ws.Env.Uptime()}
}

func (s *Server) listEnv(c *gin.Context) {
	c.JSON(http.StatusOK, s.envSnapshot())
}

type envRequest struct {
	Name  *string `json:"name"`
	Value *string `json:"value"`
}

func (s *Server) addEnv(c *gin.Context) {
	var req envRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == nil || *req.Name == "" {
		abort(c, http.StatusBadRequest, errors.New("name is required"))
		return
	}
	value := ""
	if req.Value != nil {
		value = *req.Value
	}
	id := s.ws.Env.Vars().Add(*req.Name, value)
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) patchEnv(c *gin.Context) {
	var req envRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	id := c.Param("id")
	vars := s.ws.Env.Vars()
	ok := true
	if req.Name != nil {
		ok = vars.UpdateName(id, *req.Name) && ok
	}
	if req.Value != nil {
		ok = vars.UpdateValue(id, *req.Value) && ok
	}
	if !ok {
		abort(c, http.StatusConflict, errors.New("variable not found or read-only"))
		return
	}
	c.JSON(http.StatusOK, s.envSnapshot())
}

func (s *Server) deleteEnv(c *gin.Context) {
	if !s.ws.Env.Vars().Delete(c.Param("id")) {
		abort(c, http.StatusConflict, errors.New("variable not found or read-only"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) refreshEnv(c *gin.Context) {
	if err := s.ws.Env.Refresh(c.Request.Context()); err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		abort(c, status, err)
		return
	}
	c.JSON(http.StatusOK, s.envSnapshot())
}

// ---- files ----

func (s *Server) uploadFile(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadBytes+1))
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if len(data) > maxUploadBytes {
		abort(c, http.StatusRequestEntityTooLarge, errors.New("file too large"))
		return
	}
	id, err := s.ws.Files.Upload(c.Request.Context(), data)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) getFile(c *gin.Context) {
	data, ok, err := s.ws.Files.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		abort(c, http.StatusNotFound, errors.New("file not found"))
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (s *Server) deleteFile(c *gin.Context) {
	if err := s.ws.Files.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, workspace.ErrNoDocument):
		return http.StatusConflict
	case errors.Is(err, tabs.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, envvars.ErrNoSource):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
