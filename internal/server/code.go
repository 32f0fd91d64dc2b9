package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetCommunityCode(c *gin.Context) {
	code, err := s.inviteSvc.GetCode(c.Request.Context(), currentUserID(c), trimID(c, "id"), c.Query("type"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, code)
}

func (s *Server) RotateCommunityCode(c *gin.Context) {
	code, err := s.inviteSvc.RotateCode(c.Request.Context(), currentUserID(c), trimID(c, "id"), c.Query("type"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordCodeRotation(c.Request.Context(), code.Type)
	}
	c.JSON(http.StatusOK, code)
}
