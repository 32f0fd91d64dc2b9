package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	communitydomain "github.com/openatrium/atrium/internal/community/domain"
)

type CreateCommunityRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Type        string `json:"type"`
}

type UpdateCommunityRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Image       *string `json:"image"`
}

type UpdateRolesRequest struct {
	UserID string `json:"user_id"`
	Action string `json:"action"`
	Role   string `json:"role"`
}

type CommunityActionRequest struct {
	Action string `json:"action"`
}

func (s *Server) CreateCommunity(c *gin.Context) {
	var req CreateCommunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	userID := currentUserID(c)
	user, err := s.authsvc.UserByID(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	community, err := s.communitySvc.Create(c.Request.Context(), userID, communitydomain.CreateCommunityRequest{
		InstitutionID: user.InstitutionID,
		Name:          req.Name,
		Description:   req.Description,
		Image:         req.Image,
		Type:          req.Type,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, community)
}

func (s *Server) GetCommunity(c *gin.Context) {
	community, err := s.communitySvc.Get(c.Request.Context(), trimID(c, "id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, community)
}

// ListCommunities returns every community of the caller's institution for
// the discovery screen.
func (s *Server) ListCommunities(c *gin.Context) {
	user, err := s.authsvc.UserByID(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.communitySvc.ListDiscoverable(c.Request.Context(), user.InstitutionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"communities": items})
}

func (s *Server) ListMyCommunities(c *gin.Context) {
	items, err := s.communitySvc.ListMine(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"communities": items})
}

func (s *Server) UpdateCommunity(c *gin.Context) {
	var req UpdateCommunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err := s.communitySvc.UpdateInfo(c.Request.Context(), currentUserID(c), trimID(c, "id"), communitydomain.UpdateCommunityRequest{
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) GetCommunityRoles(c *gin.Context) {
	state, err := s.communitySvc.RoleState(c.Request.Context(), trimID(c, "id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) UpdateCommunityRoles(c *gin.Context) {
	var req UpdateRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	state, err := s.communitySvc.UpdateRole(c.Request.Context(), currentUserID(c), trimID(c, "id"), communitydomain.UpdateRoleRequest{
		UserID: req.UserID,
		Action: req.Action,
		Role:   req.Role,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.obsMetrics != nil {
		role := strings.ToUpper(strings.TrimSpace(req.Role))
		if strings.EqualFold(req.Action, "demote") {
			role = communitydomain.RoleMember
		}
		s.obsMetrics.RecordRoleTransition(c.Request.Context(), role)
	}

	c.JSON(http.StatusOK, state)
}

func (s *Server) PerformCommunityAction(c *gin.Context) {
	var req CommunityActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	action, err := communitydomain.ParseAction(strings.TrimSpace(req.Action))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	err = s.communitySvc.PerformAction(c.Request.Context(), currentUserID(c), trimID(c, "id"), action)
	if s.obsMetrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		s.obsMetrics.RecordCommunityAction(c.Request.Context(), string(action), result)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
