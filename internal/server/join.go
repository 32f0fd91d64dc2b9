package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	joindomain "github.com/openatrium/atrium/internal/join/domain"
)

type RequestJoinRequest struct {
	Message string `json:"message"`
}

type ResolveJoinRequest struct {
	UserID   string `json:"user_id"`
	Decision string `json:"decision"` // approve | deny
}

type JoinByCodeRequest struct {
	Code string `json:"code"`
}

func (s *Server) JoinPublicCommunity(c *gin.Context) {
	err := s.joinSvc.JoinPublic(c.Request.Context(), currentUserID(c), trimID(c, "id"))
	s.recordJoinAttempt(c, "public", err)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "joined"})
}

func (s *Server) RequestJoinCommunity(c *gin.Context) {
	var req RequestJoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err := s.joinSvc.RequestJoin(c.Request.Context(), currentUserID(c), trimID(c, "id"), req.Message)
	s.recordJoinAttempt(c, "request", err)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "pending"})
}

func (s *Server) ListJoinRequests(c *gin.Context) {
	requests, err := s.joinSvc.ListPending(c.Request.Context(), currentUserID(c), trimID(c, "id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

func (s *Server) ResolveJoinRequest(c *gin.Context) {
	var req ResolveJoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	// A denial deletes the request, so the decision must be spelled out
	// rather than defaulted.
	var approve bool
	switch strings.ToLower(strings.TrimSpace(req.Decision)) {
	case "approve":
		approve = true
	case "deny":
		approve = false
	default:
		AbortWithError(c, invalidRequestError())
		return
	}

	err := s.joinSvc.ResolveRequest(c.Request.Context(), currentUserID(c), trimID(c, "id"), joindomain.ResolveRequest{
		UserID:  req.UserID,
		Approve: approve,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}

func (s *Server) JoinCommunityByCode(c *gin.Context) {
	var req JoinByCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.joinSvc.JoinWithCode(c.Request.Context(), currentUserID(c), req.Code)
	s.recordJoinAttempt(c, "code", err)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) recordJoinAttempt(c *gin.Context, path string, err error) {
	if s.obsMetrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.obsMetrics.RecordJoinAttempt(c.Request.Context(), path, result)
}
