package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	seqdomain "github.com/smallbiznis/erpcore/internal/sequence/domain"
)

type generateRequest struct {
	Context map[string]any `json:"context"`
}

type overrideRequest struct {
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

type resetRequest struct {
	NewValue *int64 `json:"new_value"`
	Reason   string `json:"reason"`
}

func (s *Server) CreateSequence(c *gin.Context) {
	var req seqdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.TenantID = tenantID(c)
	req.Actor = actor(c)

	resp, err := s.sequenceSvc.CreateSequence(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListSequences(c *gin.Context) {
	var query struct {
		Name        string `form:"name"`
		ResetPeriod string `form:"reset_period"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.sequenceSvc.ListSequences(c.Request.Context(), seqdomain.ListRequest{
		TenantID:    tenantID(c),
		Name:        strings.TrimSpace(query.Name),
		ResetPeriod: strings.TrimSpace(query.ResetPeriod),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSequence(c *gin.Context) {
	resp, err := s.sequenceSvc.GetSequence(c.Request.Context(), tenantID(c), c.Param("name"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateSequence(c *gin.Context) {
	var req seqdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.TenantID = tenantID(c)
	req.Actor = actor(c)
	req.Name = c.Param("name")

	resp, err := s.sequenceSvc.UpdateSequence(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteSequence(c *gin.Context) {
	err := s.sequenceSvc.DeleteSequence(c.Request.Context(), seqdomain.DeleteRequest{
		TenantID: tenantID(c),
		Name:     c.Param("name"),
		Actor:    actor(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) GenerateNumber(c *gin.Context) {
	var req generateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	number, err := s.sequenceSvc.Generate(c.Request.Context(), seqdomain.GenerateRequest{
		TenantID:     tenantID(c),
		SequenceName: c.Param("name"),
		Context:      req.Context,
		Actor:        actor(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": number})
}

// PreviewNumber accepts the context as a JSON body (POST) or as query
// parameters (GET).
func (s *Server) PreviewNumber(c *gin.Context) {
	var values map[string]any
	if c.Request.Method == http.MethodPost && c.Request.ContentLength != 0 {
		var req generateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		values = req.Context
	} else {
		values = make(map[string]any)
		for key, vals := range c.Request.URL.Query() {
			if len(vals) > 0 {
				values[key] = vals[0]
			}
		}
	}

	resp, err := s.sequenceSvc.Preview(c.Request.Context(), seqdomain.PreviewRequest{
		TenantID:     tenantID(c),
		SequenceName: c.Param("name"),
		Context:      values,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) OverrideNumber(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entry, err := s.sequenceSvc.Override(c.Request.Context(), seqdomain.OverrideRequest{
		TenantID:     tenantID(c),
		SequenceName: c.Param("name"),
		Value:        strings.TrimSpace(req.Value),
		Reason:       strings.TrimSpace(req.Reason),
		Actor:        actor(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": entry})
}

func (s *Server) ResetSequence(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.NewValue == nil {
		AbortWithError(c, newValidationError("new_value", "required", "new_value is required"))
		return
	}

	resp, err := s.sequenceSvc.Reset(c.Request.Context(), seqdomain.ResetRequest{
		TenantID:     tenantID(c),
		SequenceName: c.Param("name"),
		NewValue:     *req.NewValue,
		Reason:       strings.TrimSpace(req.Reason),
		Actor:        actor(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSequenceLogs(c *gin.Context) {
	var query struct {
		Override  string `form:"override"`
		PageToken string `form:"page_token"`
		PageSize  string `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	override, err := parseOptionalBool(query.Override)
	if err != nil {
		AbortWithError(c, newValidationError("override", "invalid_override_filter", "invalid override filter"))
		return
	}
	pageSize, err := parseOptionalInt(query.PageSize, 0)
	if err != nil || pageSize < 0 {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "invalid page size"))
		return
	}

	resp, err := s.sequenceSvc.ListLogs(c.Request.Context(), seqdomain.ListLogsRequest{
		TenantID:     tenantID(c),
		SequenceName: c.Param("name"),
		Override:     override,
		PageToken:    strings.TrimSpace(query.PageToken),
		PageSize:     pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ValidatePattern(c *gin.Context) {
	var req seqdomain.ValidatePatternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result := s.sequenceSvc.ValidatePattern(c.Request.Context(), req)
	c.JSON(http.StatusOK, gin.H{"data": result})
}
