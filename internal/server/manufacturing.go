package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	mfgdomain "github.com/smallbiznis/erpcore/internal/manufacturing/domain"
)

const maxBatchExplosions = 100

func (s *Server) CreateProduct(c *gin.Context) {
	var req mfgdomain.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.TenantID = tenantID(c)
	req.Actor = actor(c)

	resp, err := s.mfgSvc.CreateProduct(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListProducts(c *gin.Context) {
	var query struct {
		Type string `form:"type"`
		Code string `form:"code"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.mfgSvc.ListProducts(c.Request.Context(), mfgdomain.ListProductsRequest{
		TenantID: tenantID(c),
		Type:     strings.TrimSpace(query.Type),
		Code:     strings.TrimSpace(query.Code),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetProduct(c *gin.Context) {
	resp, err := s.mfgSvc.GetProduct(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListProductBOMs(c *gin.Context) {
	resp, err := s.mfgSvc.ListBOMs(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) WhereUsed(c *gin.Context) {
	resp, err := s.mfgSvc.WhereUsed(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateBOM(c *gin.Context) {
	var req mfgdomain.CreateBOMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.TenantID = tenantID(c)
	req.Actor = actor(c)

	resp, err := s.mfgSvc.CreateBOM(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetBOM(c *gin.Context) {
	resp, err := s.mfgSvc.GetBOM(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AddBOMItem(c *gin.Context) {
	var req mfgdomain.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.TenantID = tenantID(c)
	req.Actor = actor(c)
	req.BOMID = c.Param("id")

	resp, err := s.mfgSvc.AddItem(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ActivateBOM(c *gin.Context) {
	resp, err := s.mfgSvc.Activate(c.Request.Context(), s.transitionRequest(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ObsoleteBOM(c *gin.Context) {
	resp, err := s.mfgSvc.Obsolete(c.Request.Context(), s.transitionRequest(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) transitionRequest(c *gin.Context) mfgdomain.TransitionRequest {
	return mfgdomain.TransitionRequest{
		TenantID: tenantID(c),
		Actor:    actor(c),
		BOMID:    c.Param("id"),
	}
}

func (s *Server) ExplodeBOM(c *gin.Context) {
	quantity, err := parseQuantity(c.Query("quantity"))
	if err != nil {
		AbortWithError(c, newValidationError("quantity", mfgdomain.ErrInvalidQuantity.Error(), "quantity must be a decimal number"))
		return
	}

	bomID := c.Param("id")
	reqs, err := s.mfgSvc.Explode(c.Request.Context(), tenantID(c), bomID, quantity)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": mfgdomain.ExplosionResult{
		BOMID:        bomID,
		Quantity:     quantity,
		Requirements: reqs,
	}})
}

func (s *Server) ExplodeMany(c *gin.Context) {
	var req struct {
		Explosions []mfgdomain.ExplosionRequest `json:"explosions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(req.Explosions) == 0 || len(req.Explosions) > maxBatchExplosions {
		AbortWithError(c, newValidationError("explosions", "invalid_explosions", fmt.Sprintf("between 1 and %d explosions are required", maxBatchExplosions)))
		return
	}

	resp, err := s.mfgSvc.ExplodeMany(c.Request.Context(), tenantID(c), req.Explosions)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) BOMCost(c *gin.Context) {
	resp, err := s.mfgSvc.CalculateCost(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RequirementSheet(c *gin.Context) {
	quantity, err := parseQuantity(c.Query("quantity"))
	if err != nil {
		AbortWithError(c, newValidationError("quantity", mfgdomain.ErrInvalidQuantity.Error(), "quantity must be a decimal number"))
		return
	}

	bomID := c.Param("id")
	doc, err := s.mfgSvc.RequirementSheet(c.Request.Context(), tenantID(c), bomID, quantity)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.DataFromReader(http.StatusOK, -1, "application/pdf", doc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`inline; filename="requirements-%s.pdf"`, bomID),
	})
}
