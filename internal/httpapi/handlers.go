package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rustyclaw/core/internal/common/apperr"
	"github.com/rustyclaw/core/internal/common/logger"
	ctxcompose "github.com/rustyclaw/core/internal/context"
	"github.com/rustyclaw/core/internal/eventbus/wsfanout"
	"github.com/rustyclaw/core/internal/taskmgr"
	"github.com/rustyclaw/core/internal/thread"
)

type handlers struct {
	deps   Deps
	logger *logger.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "rustyclawd"})
}

func statusFor(err error) int {
	switch apperr.Of(err) {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindPermission, apperr.KindAccessDenied:
		return http.StatusForbidden
	case apperr.KindWrongCredential, apperr.KindVaultLocked:
		return http.StatusUnauthorized
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func (h *handlers) getSession(c *gin.Context) {
	key := c.Param("key")
	if s, ok := h.deps.Sessions.Get(key); ok {
		c.JSON(http.StatusOK, s)
		return
	}
	s, ok, err := h.deps.Sessions.GetArchivedSession(key)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session: " + key})
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handlers) sessionHistory(c *gin.Context) {
	key := c.Param("key")
	limit, _ := strconv.Atoi(c.Query("limit"))
	includeTools := c.Query("include_tools") == "true"

	msgs, err := h.deps.Sessions.History(key, limit, includeTools)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *handlers) addMessage(c *gin.Context) {
	key := c.Param("key")
	var body struct {
		Role    string `json:"role" binding:"required"`
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.deps.Sessions.AddMessage(key, body.Role, body.Content); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) archiveSession(c *gin.Context) {
	key := c.Param("key")
	if err := h.deps.Sessions.ArchiveSession(key); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) listArchivedSessions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.deps.Sessions.ListArchivedSessions(limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handlers) listThreads(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Threads.List())
}

func (h *handlers) getThread(c *gin.Context) {
	t, ok := h.deps.Threads.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown thread: " + c.Param("id")})
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *handlers) switchForeground(c *gin.Context) {
	if err := h.deps.Threads.SwitchForeground(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) globalContext(c *gin.Context) {
	c.String(http.StatusOK, h.deps.Threads.BuildGlobalContext())
}

func (h *handlers) threadEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	wsfanout.Stream[thread.Event](conn, h.deps.Threads, h.logger, c.Request.Context().Done())
}

func (h *handlers) listTasks(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Tasks.List())
}

func (h *handlers) getTask(c *gin.Context) {
	handle, err := h.deps.Tasks.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handle.Info())
}

func (h *handlers) controlTask(c *gin.Context) {
	var body struct {
		Kind     string  `json:"kind" binding:"required"`
		Text     string  `json:"text"`
		Progress float64 `json:"progress"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd := taskmgr.Control{Kind: taskmgr.ControlKind(body.Kind), Text: body.Text, Progress: body.Progress}
	if err := h.deps.Tasks.Dispatch(c.Param("id"), cmd); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) taskEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	wsfanout.Stream[taskmgr.Event](conn, h.deps.Tasks, h.logger, c.Request.Context().Done())
}

func (h *handlers) vaultStatus(c *gin.Context) {
	if h.deps.Vault == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vault not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"locked": h.deps.Vault.IsLocked()})
}

func (h *handlers) composeContext(c *gin.Context) {
	if h.deps.Composer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "context composer not configured"})
		return
	}
	req := ctxcompose.Request{
		WorkspaceDir: h.deps.WorkspaceDir,
		SessionType:  ctxcompose.SessionType(c.DefaultQuery("session_type", string(ctxcompose.SessionMain))),
		Toggles: ctxcompose.Toggles{
			Soul:        c.Query("soul") == "true",
			Agents:      c.Query("agents") == "true",
			Tools:       c.Query("tools") == "true",
			Identity:    c.Query("identity") == "true",
			User:        c.Query("user") == "true",
			Memory:      c.Query("memory") == "true",
			Heartbeat:   c.Query("heartbeat") == "true",
			InjectDaily: c.Query("inject_daily") == "true",
		},
		ParentSessionKey: c.Query("parent_session_key"),
		Task:             c.Query("task"),
		Label:            c.Query("label"),
	}
	c.String(http.StatusOK, h.deps.Composer.Compose(req))
}

func (h *handlers) invokeTool(c *gin.Context) {
	if h.deps.Dispatcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tool dispatcher not configured"})
		return
	}
	var args map[string]any
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&args); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	result, err := h.deps.Dispatcher.Invoke(c.Request.Context(), c.Param("name"), args, h.deps.WorkspaceDir)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}
