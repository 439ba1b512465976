package http

import (
	"encoding/json"
	nethttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Notify/internal/app/orch"
	"github.com/dkeye/Notify/internal/domain"
)

// API is the in-cluster surface used by the request-handling layer to keep
// the membership cache in sync and to push events.
type API struct {
	Orch *orch.Orchestrator
}

func (a *API) Register(g *gin.RouterGroup) {
	g.PUT("/conversations/:id/members/:user_id", a.addMember)
	g.DELETE("/conversations/:id/members/:user_id", a.removeMember)
	g.POST("/conversations/:id/messages", a.postMessage)
	g.POST("/users/:user_id/notify", a.notify)
	g.POST("/calls", a.startCall)
	g.GET("/calls/:call_id/participants", a.callParticipants)
	g.GET("/stats", a.stats)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(nethttp.StatusBadRequest, gin.H{"error": msg})
}

func memberParams(c *gin.Context) (domain.ConversationID, domain.UserID, bool) {
	cid, err := domain.ParseConversationID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid conversation id")
		return 0, 0, false
	}
	uid, err := domain.ParseUserID(c.Param("user_id"))
	if err != nil {
		badRequest(c, "invalid user_id")
		return 0, 0, false
	}
	return cid, uid, true
}

func (a *API) addMember(c *gin.Context) {
	cid, uid, ok := memberParams(c)
	if !ok {
		return
	}
	a.Orch.JoinConversation(cid, uid)
	c.Status(nethttp.StatusNoContent)
}

func (a *API) removeMember(c *gin.Context) {
	cid, uid, ok := memberParams(c)
	if !ok {
		return
	}
	a.Orch.LeaveConversation(cid, uid)
	c.Status(nethttp.StatusNoContent)
}

type messageRequest struct {
	Message json.RawMessage `json:"message" binding:"required"`
}

func (a *API) postMessage(c *gin.Context) {
	cid, err := domain.ParseConversationID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid conversation id")
		return
	}
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "missing or invalid message")
		return
	}
	res, err := a.Orch.PostMessage(cid, req.Message)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("post message")
		badRequest(c, err.Error())
		return
	}
	c.JSON(nethttp.StatusOK, res)
}

type notifyRequest struct {
	Payload domain.Payload `json:"payload" binding:"required"`
}

func (a *API) notify(c *gin.Context) {
	uid, err := domain.ParseUserID(c.Param("user_id"))
	if err != nil {
		badRequest(c, "invalid user_id")
		return
	}
	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "missing or invalid payload")
		return
	}
	res, err := a.Orch.Notify(uid, req.Payload)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(nethttp.StatusOK, res)
}

func (a *API) startCall(c *gin.Context) {
	var req orch.CallStart
	if err := c.ShouldBindJSON(&req); err != nil || req.Call <= 0 {
		badRequest(c, "missing or invalid call")
		return
	}
	res, err := a.Orch.StartCall(req)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(nethttp.StatusOK, res)
}

func (a *API) callParticipants(c *gin.Context) {
	call, err := domain.ParseCallID(c.Param("call_id"))
	if err != nil {
		badRequest(c, "invalid call_id")
		return
	}
	c.JSON(nethttp.StatusOK, gin.H{"call_id": call, "participants": a.Orch.CallParticipants(call)})
}

func (a *API) stats(c *gin.Context) {
	c.JSON(nethttp.StatusOK, a.Orch.Stats())
}
