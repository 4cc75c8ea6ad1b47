package controllers

import (
	"net/http"

	"github.com/Mark23Dev/project-nexus/services/order-service/models"
	"github.com/Mark23Dev/project-nexus/services/order-service/services"
	"github.com/gin-gonic/gin"
)

const idempotencyKeyHeader = "Idempotency-Key"

type OrderController struct {
	orderService services.OrderService
}

func NewOrderController(orderService services.OrderService) *OrderController {
	RegisterValidators()
	return &OrderController{orderService: orderService}
}

// CreateOrder handles order creation requests
func (oc *OrderController) CreateOrder(ctx *gin.Context) {
	p, ok := principalOrAbort(ctx)
	if !ok {
		return
	}

	var req models.CreateOrderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request", err)
		return
	}

	order, created, err := oc.orderService.CreateOrder(ctx.Request.Context(), p, req, ctx.GetHeader(idempotencyKeyHeader))
	if err != nil {
		respondError(ctx, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	setETag(ctx, order.Version)
	ctx.Header("Location", "/orders/"+order.ID.String())
	ctx.JSON(status, gin.H{"order": models.NewOrderView(order)})
}

// GetOrders returns the caller's orders, or every order for administrators.
func (oc *OrderController) GetOrders(ctx *gin.Context) {
	p, ok := principalOrAbort(ctx)
	if !ok {
		return
	}
	page, limit := parsePaginationParams(ctx)

	result, err := oc.orderService.ListOrders(ctx.Request.Context(), p, page, limit)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

func (oc *OrderController) GetOrderByID(ctx *gin.Context) {
	p, ok := principalOrAbort(ctx)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(ctx, "order")
	if !ok {
		return
	}

	order, err := oc.orderService.GetOrder(ctx.Request.Context(), p, orderID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	setETag(ctx, order.Version)
	ctx.JSON(http.StatusOK, gin.H{"order": models.NewOrderView(order)})
}

// ReplaceItems swaps the full item set of a pending order.
func (oc *OrderController) ReplaceItems(ctx *gin.Context) {
	p, ok := principalOrAbort(ctx)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(ctx, "order")
	if !ok {
		return
	}
	version, ok := parseIfMatch(ctx)
	if !ok {
		return
	}

	var req models.ReplaceItemsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request", err)
		return
	}

	order, err := oc.orderService.ReplaceItems(ctx.Request.Context(), p, orderID, req.Items, version)
	oc.respondOrder(ctx, order, err)
}

func (oc *OrderController) UpdateAddresses(ctx *gin.Context) {
	p, ok := principalOrAbort(ctx)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(ctx, "order")
	if !ok {
		return
	}
	version, ok := parseIfMatch(ctx)
	if !ok {
		return
	}

	var patch models.AddressPatch
	if err := ctx.ShouldBindJSON(&patch); err != nil {
		badRequest(ctx, "Invalid request", err)
		return
	}

	order, err := oc.orderService.UpdateAddresses(ctx.Request.Context(), p, orderID, patch, version)
	oc.respondOrder(ctx, order, err)
}

func (oc *OrderController) ChangeStatus(ctx *gin.Context) {
	p, ok := principalOrAbort(ctx)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(ctx, "order")
	if !ok {
		return
	}
	version, ok := parseIfMatch(ctx)
	if !ok {
		return
	}

	var req models.ChangeStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request", err)
		return
	}

	order, err := oc.orderService.ChangeStatus(ctx.Request.Context(), p, orderID, req.Status, version)
	oc.respondOrder(ctx, order, err)
}

func (oc *OrderController) DeleteOrder(ctx *gin.Context) {
	p, ok := principalOrAbort(ctx)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(ctx, "order")
	if !ok {
		return
	}
	version, ok := parseIfMatch(ctx)
	if !ok {
		return
	}

	if err := oc.orderService.DeleteOrder(ctx.Request.Context(), p, orderID, version); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (oc *OrderController) respondOrder(ctx *gin.Context, order *models.Order, err error) {
	if err != nil {
		respondError(ctx, err)
		return
	}
	setETag(ctx, order.Version)
	ctx.JSON(http.StatusOK, gin.H{"order": models.NewOrderView(order)})
}
