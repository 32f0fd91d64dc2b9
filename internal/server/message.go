package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openatrium/atrium/pkg/db/pagination"
)

type PostMessageRequest struct {
	Body string `json:"body"`
}

func (s *Server) PostCommunityMessage(c *gin.Context) {
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	view, err := s.messageSvc.Post(c.Request.Context(), currentUserID(c), trimID(c, "id"), req.Body)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (s *Server) ListCommunityMessages(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.messageSvc.List(c.Request.Context(), currentUserID(c), trimID(c, "id"), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
