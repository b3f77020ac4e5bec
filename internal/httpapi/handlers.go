package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"cart-dialer/internal/auth"
	"cart-dialer/internal/calls"
	"cart-dialer/internal/contacts"
	"cart-dialer/internal/reconcile"
	"cart-dialer/internal/reporting"
	"cart-dialer/pkg/logger"
)

// CallTrigger places and logs one call; *batch.Runner satisfies it.
type CallTrigger interface {
	ProcessOne(ctx context.Context, rec contacts.ContactRecord) (calls.CallOutcome, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Calls   CallTrigger
	Events  *reconcile.Service
	Reports *reporting.Service
	LogPath string

	// Ready reports dependency health; nil means always ready.
	Ready func(ctx context.Context) error
}

func (h Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h Handlers) Readiness(c *gin.Context) {
	if h.Ready != nil {
		if err := h.Ready(c.Request.Context()); err != nil {
			logger.FromGin(c).Warn("readiness check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// --- Calls ---

// callRequest accepts both the CSV column names and the field names of the
// older /call-customer endpoint. Items may be a string or a list; total may be
// a string or a number.
type callRequest struct {
	Name          string          `json:"name"`
	CustomerName  string          `json:"customer_name"`
	Phone         string          `json:"phone"`
	PhoneNumber   string          `json:"phone_number"`
	Items         json.RawMessage `json:"items"`
	CartItems     json.RawMessage `json:"cart_items"`
	Total         json.RawMessage `json:"total"`
	CartTotal     json.RawMessage `json:"cart_total"`
	Reason        string          `json:"reason"`
	Language      string          `json:"language"`
	AbandonedDate string          `json:"abandoned_date"`
	Location      string          `json:"location"`
	Timezone      string          `json:"timezone"`
}

func (r callRequest) record() (contacts.ContactRecord, error) {
	items, err := itemsText(firstRaw(r.Items, r.CartItems))
	if err != nil {
		return contacts.ContactRecord{}, fmt.Errorf("items: %w", err)
	}
	total, err := totalText(firstRaw(r.Total, r.CartTotal))
	if err != nil {
		return contacts.ContactRecord{}, fmt.Errorf("total: %w", err)
	}
	return contacts.ContactRecord{
		Name:          firstString(r.Name, r.CustomerName),
		Phone:         firstString(r.Phone, r.PhoneNumber),
		CartItems:     items,
		CartTotal:     total,
		Reason:        r.Reason,
		Language:      r.Language,
		AbandonedDate: r.AbandonedDate,
		Location:      r.Location,
		Timezone:      r.Timezone,
	}, nil
}

// PlaceCall mirrors a one-row batch run: the outcome is logged like any other.
func (h Handlers) PlaceCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dialer not configured"})
		return
	}
	var req callRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	rec, err := req.record()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	log := logger.FromGin(c)
	operator, _ := auth.Operator(c.Request.Context())

	out, err := h.Calls.ProcessOne(c.Request.Context(), rec)
	if err != nil && out.Status == "" {
		log.Warn("call not dispatched", "err", err, "operator", operator)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "call not dispatched"})
		return
	}
	log.Info("call triggered", "operator", operator, "status", out.Status, "call_id", out.CallID)
	if err != nil {
		log.Error("call log append failed", "err", err, "call_id", out.CallID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "outcome not logged", "outcome": out})
		return
	}

	switch out.Status {
	case calls.OutcomeInitiated:
		c.JSON(http.StatusOK, gin.H{"outcome": out})
	case calls.OutcomeSkipped:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": out.Error, "outcome": out})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": out.Error, "outcome": out})
	}
}

// CallStatus returns the reconciled provider view of a placed call.
func (h Handlers) CallStatus(c *gin.Context) {
	if h.Events == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status store not configured"})
		return
	}
	st, ok, err := h.Events.State(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		logger.FromGin(c).Error("status lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status lookup failed"})
		return
	}
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no status events for call"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// Report summarises the server's own call log.
func (h Handlers) Report(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	out, err := h.Reports.Summary(c.Request.Context(), reporting.SummaryRequest{LogPath: h.LogPath})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.FromGin(c).Error("report failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstRaw(vals ...json.RawMessage) json.RawMessage {
	for _, v := range vals {
		if len(v) > 0 && string(v) != "null" {
			return v
		}
	}
	return nil
}

func itemsText(raw json.RawMessage) (string, error) {
	if raw == nil {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return "", errors.New("must be a string or a list of strings")
	}
	return strings.Join(list, ", "), nil
}

func totalText(raw json.RawMessage) (string, error) {
	if raw == nil {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", errors.New("must be a string or a number")
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}
