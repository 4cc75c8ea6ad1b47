package controllers

import (
	"net/http"

	"github.com/Mark23Dev/project-nexus/services/order-service/models"
	"github.com/Mark23Dev/project-nexus/services/order-service/services"
	"github.com/gin-gonic/gin"
)

type ProductController struct {
	productService services.ProductService
}

func NewProductController(productService services.ProductService) *ProductController {
	RegisterValidators()
	return &ProductController{productService: productService}
}

// ListProducts returns a page of the catalog. ?available=true hides disabled
// products.
func (pc *ProductController) ListProducts(ctx *gin.Context) {
	page, limit := parsePaginationParams(ctx)
	onlyAvailable := ctx.Query("available") == "true"

	result, err := pc.productService.ListProducts(ctx.Request.Context(), page, limit, onlyAvailable)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

func (pc *ProductController) PatchProduct(ctx *gin.Context) {
	p, ok := principalOrAbort(ctx)
	if !ok {
		return
	}
	productID, ok := parseIDParam(ctx, "product")
	if !ok {
		return
	}

	var patch models.ProductPatch
	if err := ctx.ShouldBindJSON(&patch); err != nil {
		badRequest(ctx, "Invalid request", err)
		return
	}

	product, err := pc.productService.PatchProduct(ctx.Request.Context(), p, productID, patch)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"product": models.NewProductView(product)})
}

func (pc *ProductController) DisableProduct(ctx *gin.Context) {
	p, ok := principalOrAbort(ctx)
	if !ok {
		return
	}
	productID, ok := parseIDParam(ctx, "product")
	if !ok {
		return
	}

	product, err := pc.productService.DisableProduct(ctx.Request.Context(), p, productID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"product": models.NewProductView(product)})
}

func (pc *ProductController) DeleteProduct(ctx *gin.Context) {
	p, ok := principalOrAbort(ctx)
	if !ok {
		return
	}
	productID, ok := parseIDParam(ctx, "product")
	if !ok {
		return
	}

	if err := pc.productService.DeleteProduct(ctx.Request.Context(), p, productID); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}
