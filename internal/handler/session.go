package handler

import (
	"net/http"
	"strconv"

	"tillpos/internal/apierror"
	"tillpos/internal/dto"
	"tillpos/internal/middleware"
	"tillpos/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type SessionHandler struct{ svc service.SessionService }

func NewSessionHandler(svc service.SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// Open godoc
// @Summary Opens a new cash session
// @Tags session
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.OpenSessionRequest true "Opening data"
// @Success 201 {object} dto.SessionReportResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/session/open [post]
func (h *SessionHandler) Open(c *gin.Context) {
	var req dto.OpenSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	operatorID, ok := operatorFromClaims(c)
	if !ok {
		return
	}

	resp, err := h.svc.Open(c.Request.Context(), operatorID, req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Close godoc
// @Summary Closes the operator's open cash session and returns the Z-report
// @Tags session
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.CloseSessionResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/session/close [post]
func (h *SessionHandler) Close(c *gin.Context) {
	operatorID, ok := operatorFromClaims(c)
	if !ok {
		return
	}
	resp, err := h.svc.Close(c.Request.Context(), operatorID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Supply godoc
// @Summary Records a cash supply into the open session
// @Tags session
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.SupplyRequest true "Supply data"
// @Success 200 {object} dto.BalanceResponse
// @Failure 400 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/session/supply [post]
func (h *SessionHandler) Supply(c *gin.Context) {
	var req dto.SupplyRequest
	if !bindAndValidate(c, &req) {
		return
	}
	operatorID, ok := operatorFromClaims(c)
	if !ok {
		return
	}
	resp, err := h.svc.Supply(c.Request.Context(), operatorID, req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Withdraw godoc
// @Summary Records a cash withdrawal from the open session
// @Tags session
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.WithdrawRequest true "Withdrawal data"
// @Success 200 {object} dto.BalanceResponse
// @Failure 400 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Failure 422 {object} apierror.APIError
// @Router /v1/session/withdraw [post]
func (h *SessionHandler) Withdraw(c *gin.Context) {
	var req dto.WithdrawRequest
	if !bindAndValidate(c, &req) {
		return
	}
	operatorID, ok := operatorFromClaims(c)
	if !ok {
		return
	}
	resp, err := h.svc.Withdraw(c.Request.Context(), operatorID, req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Active returns the currently open cash session for the authenticated operator.
func (h *SessionHandler) Active(c *gin.Context) {
	operatorID, ok := operatorFromClaims(c)
	if !ok {
		return
	}
	resp, err := h.svc.Active(c.Request.Context(), operatorID)
	if err != nil {
		c.JSON(http.StatusNotFound, apierror.New("No active session"))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Ledger returns the ordered movement list of a session.
func (h *SessionHandler) Ledger(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid session id"))
		return
	}
	resp, err := h.svc.Ledger(c.Request.Context(), id)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// History returns a paginated list of closed cash sessions.
func (h *SessionHandler) History(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	resp, err := h.svc.History(c.Request.Context(), page, limit)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// operatorFromClaims extracts the operator id from the JWT; writes the error
// response when the token carries a malformed id.
func operatorFromClaims(c *gin.Context) (uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid user id"))
		return uuid.Nil, false
	}
	return id, true
}
