package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	institutiondomain "github.com/openatrium/atrium/internal/institution/domain"
)

type CreateInstitutionRequest struct {
	Name   string `json:"name"`
	Image  string `json:"image"`
	Secret string `json:"secret"`
}

type JoinInstitutionRequest struct {
	Code string `json:"code"`
}

func (s *Server) CreateInstitution(c *gin.Context) {
	var req CreateInstitutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	institution, err := s.institutionSvc.Create(c.Request.Context(), institutiondomain.CreateInstitutionRequest{
		Name:   req.Name,
		Image:  req.Image,
		Secret: req.Secret,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, institution)
}

func (s *Server) GetInstitution(c *gin.Context) {
	institution, err := s.institutionSvc.Get(c.Request.Context(), trimID(c, "id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, institution)
}

func (s *Server) JoinInstitution(c *gin.Context) {
	var req JoinInstitutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.institutionSvc.JoinByCode(c.Request.Context(), currentUserID(c), req.Code)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) ListInstitutionCodes(c *gin.Context) {
	codes, err := s.institutionSvc.ListCodes(c.Request.Context(), currentUserID(c), trimID(c, "id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"codes": codes})
}
