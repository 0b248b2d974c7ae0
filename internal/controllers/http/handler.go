package http

import (
	"context"
	"io"
	"net/http"

	"campus-takeout/internal/domain"
	"campus-takeout/internal/infra/auth"
	"campus-takeout/internal/infra/wechatpay"
	"campus-takeout/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxNotifyBody = 64 << 10

type Handler struct {
	orders   *services.OrderService
	apps     *services.ApplicationService
	verifier auth.Verifier
	wechat   wechatpay.ClientInterface
	log      *zap.Logger
	ping     func(ctx context.Context) error
}

func NewHandler(
	orders *services.OrderService,
	apps *services.ApplicationService,
	verifier auth.Verifier,
	wechat wechatpay.ClientInterface,
	log *zap.Logger,
) *Handler {
	return &Handler{orders: orders, apps: apps, verifier: verifier, wechat: wechat, log: log}
}

// WithHealthCheck makes /healthz report the result of ping.
func (h *Handler) WithHealthCheck(ping func(ctx context.Context) error) *Handler {
	h.ping = ping
	return h
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Health)

	authed := Authenticate(h.verifier, h.log)

	order := r.Group("/order")
	order.POST("/wechat-notify", h.WechatNotify)
	{
		customer := order.Group("", authed)
		customer.POST("/create", h.CreateOrder)
		customer.POST("/detail", h.OrderDetail)
		customer.POST("/list", h.ListOrders)
		customer.POST("/cancel", h.CancelOrder)
		customer.POST("/pay", h.PayOrder)
		customer.POST("/update-status", h.DeliveryUpdateStatus)
	}
	{
		shop := order.Group("/shop", authed, RequireRole(h.log, auth.RoleShop))
		shop.POST("/orders", h.ShopOrders)
		shop.POST("/detail", h.ShopOrderDetail)
		shop.POST("/update-status", h.ShopUpdateStatus)
		shop.POST("/batch-update", h.ShopBatchUpdate)
	}

	user := r.Group("/user", authed)
	user.POST("/apply-delivery", h.apply(domain.ApplicationDelivery))
	user.POST("/apply-receiver", h.apply(domain.ApplicationReceiver))
	user.POST("/my-applications", h.MyApplications)

	admin := r.Group("/admin", authed, RequireRole(h.log, auth.RoleAdmin))
	admin.POST("/review-application", h.ReviewApplication)
}

func (h *Handler) Health(c *gin.Context) {
	if h.ping != nil {
		if err := h.ping(c.Request.Context()); err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, Response{Code: Code(domain.KindInternal), Message: "unhealthy"})
			return
		}
	}
	success(c, "ok", nil)
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var req domain.CreateOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.log, bindError(err))
		return
	}
	id, _ := identityFrom(c)
	order, err := h.orders.Create(c.Request.Context(), id.UserID, req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, "order created", newCreateOrderResponse(order))
}

func (h *Handler) OrderDetail(c *gin.Context) {
	var req OrderIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.log, bindError(err))
		return
	}
	id, _ := identityFrom(c)
	order, err := h.orders.Detail(c.Request.Context(), id.UserID, req.OrderID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, "success", order)
}

func (h *Handler) ListOrders(c *gin.Context) {
	var req ListOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.log, bindError(err))
		return
	}
	id, _ := identityFrom(c)
	page, err := h.orders.List(c.Request.Context(), id.UserID, req.Status, req.Page, req.Limit)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, "success", newOrderListResponse(page))
}

func (h *Handler) CancelOrder(c *gin.Context) {
	var req CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.log, bindError(err))
		return
	}
	id, _ := identityFrom(c)
	order, err := h.orders.Cancel(c.Request.Context(), id.UserID, req.OrderID, req.Reason)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, "order cancelled", newStatusResponse(order))
}

func (h *Handler) PayOrder(c *gin.Context) {
	var req PayOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.log, bindError(err))
		return
	}
	id, _ := identityFrom(c)
	res, err := h.orders.Pay(c.Request.Context(), services.PaymentRequest{
		OrderID:  req.OrderID,
		UserID:   id.UserID,
		Method:   req.PaymentMethod,
		Amount:   *req.Amount,
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		fail(c, h.log, err)
		return
	}
	msg := res.Message
	if msg == "" {
		msg = "payment successful"
	}
	success(c, msg, newPayResponse(req.OrderID, res))
}

func (h *Handler) DeliveryUpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.log, bindError(err))
		return
	}
	id, _ := identityFrom(c)
	order, err := h.orders.DeliveryUpdateStatus(c.Request.Context(), id.UserID, req.OrderID, req.Status)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, "status updated", newStatusResponse(order))
}

// WechatNotify handles the payment platform's XML callback. Only faults a
// retry could fix are answered with FAIL.
func (h *Handler) WechatNotify(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotifyBody))
	if err != nil {
		h.notifyAck(c, false, "read body failed")
		return
	}
	n, err := h.wechat.ParseNotify(body)
	if err != nil {
		h.log.Warn("rejected payment notify", zap.Error(err))
		h.notifyAck(c, false, "invalid notify")
		return
	}

	order, err := h.orders.SettleNotification(c.Request.Context(), n)
	switch {
	case err == nil:
		h.log.Info("payment notify settled",
			zap.String("order_number", order.OrderNumber),
			zap.String("transaction_id", n.TransactionID))
		h.notifyAck(c, true, "OK")
	case domain.IsKind(err, domain.KindInternal):
		h.log.Error("payment notify failed", zap.String("order_number", n.OrderNumber), zap.Error(err))
		h.notifyAck(c, false, "retry")
	default:
		h.log.Warn("payment notify not applied", zap.String("order_number", n.OrderNumber), zap.Error(err))
		h.notifyAck(c, true, "OK")
	}
}

func (h *Handler) notifyAck(c *gin.Context, accepted bool, msg string) {
	c.Data(http.StatusOK, "application/xml; charset=utf-8", wechatpay.AckXML(accepted, msg))
}

func (h *Handler) ShopOrders(c *gin.Context) {
	var req ShopOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.log, bindError(err))
		return
	}
	id, _ := identityFrom(c)
	page, err := h.orders.ShopOrders(c.Request.Context(), id.UserID, services.ShopOrderQuery{
		Status:      req.Status,
		OrderNumber: req.OrderNumber,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Page:        req.Page,
		Limit:       req.Limit,
	})
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, "success", newOrderListResponse(page))
}

func (h *Handler) ShopOrderDetail(c *gin.Context) {
	var req OrderIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.log, bindError(err))
		return
	}
	id, _ := identityFrom(c)
	order, err := h.orders.ShopDetail(c.Request.Context(), id.UserID, req.OrderID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, "success", order)
}

func (h *Handler) ShopUpdateStatus(c *gin.Context) {
	var req ShopUpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.log, bindError(err))
		return
	}
	id, _ := identityFrom(c)
	order, err := h.orders.ShopUpdateStatus(c.Request.Context(), id.UserID, services.ShopStatusUpdate{
		OrderID:        req.OrderID,
		Status:         req.Status,
		Reason:         req.Reason,
		DeliveryUserID: req.DeliveryUserID,
	})
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, "status updated", newStatusResponse(order))
}

func (h *Handler) ShopBatchUpdate(c *gin.Context) {
	var req BatchUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.log, bindError(err))
		return
	}
	id, _ := identityFrom(c)
	res, err := h.orders.ShopBatchUpdate(c.Request.Context(), id.UserID, req.OrderIDs, services.BatchAction(req.Action), req.Reason)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, "batch processed", res)
}

func (h *Handler) apply(t domain.ApplicationType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ApplyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, h.log, bindError(err))
			return
		}
		id, _ := identityFrom(c)
		app, err := h.apps.Apply(c.Request.Context(), id.UserID, t, req.form())
		if err != nil {
			fail(c, h.log, err)
			return
		}
		success(c, "application submitted", app)
	}
}

func (h *Handler) MyApplications(c *gin.Context) {
	id, _ := identityFrom(c)
	apps, err := h.apps.MyApplications(c.Request.Context(), id.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, "success", apps)
}

func (h *Handler) ReviewApplication(c *gin.Context) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.log, bindError(err))
		return
	}
	id, _ := identityFrom(c)
	app, err := h.apps.Review(c.Request.Context(), id.UserID, req.ApplicationID, services.ReviewAction(req.Action), req.Comment)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	success(c, "application reviewed", app)
}
