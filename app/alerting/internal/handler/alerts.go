package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/ingest"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/lk2023060901/fleetalert/pkg/util/durationx"
	"github.com/lk2023060901/fleetalert/pkg/web"
	weberrors "github.com/lk2023060901/fleetalert/pkg/web/errors"
)

type snoozeRequest struct {
	Duration string `json:"duration" binding:"required,duration"`
	Reason   string `json:"reason"`
}

type resolveRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) list(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		web.Error(c, weberrors.CodeInvalidParams, err.Error())
		return
	}
	views, err := h.svc.List(c.Request.Context(), callerID(c), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	web.Success(c, gin.H{"items": views, "limit": f.Limit, "offset": f.Offset})
}

func (h *Handler) counts(c *gin.Context) {
	counts, err := h.svc.Counts(c.Request.Context(), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	web.Success(c, counts)
}

func (h *Handler) get(c *gin.Context) {
	v, err := h.svc.Get(c.Request.Context(), callerID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	web.Success(c, v)
}

func (h *Handler) acknowledge(c *gin.Context) {
	ctx := logger.WithAlertID(c.Request.Context(), c.Param("id"))
	v, err := h.svc.Acknowledge(ctx, callerID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	web.Success(c, v)
}

func (h *Handler) snooze(c *gin.Context) {
	var req snoozeRequest
	if !web.BindAndValidate(c, &req) {
		return
	}
	d, _ := durationx.Parse(req.Duration)
	ctx := logger.WithAlertID(c.Request.Context(), c.Param("id"))
	v, err := h.svc.Snooze(ctx, callerID(c), c.Param("id"), d, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	web.Success(c, v)
}

func (h *Handler) resolve(c *gin.Context) {
	var req resolveRequest
	if c.Request.ContentLength > 0 && !web.BindAndValidate(c, &req) {
		return
	}
	ctx := logger.WithAlertID(c.Request.Context(), c.Param("id"))
	v, err := h.svc.Resolve(ctx, callerID(c), c.Param("id"), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	web.Success(c, v)
}

// ingestFacts 事实入队后立即返回 202
func (h *Handler) ingestFacts(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		web.Error(c, weberrors.CodeInvalidParams, "read body: "+err.Error())
		return
	}
	facts, err := ingest.Decode(body)
	if err != nil {
		h.writeError(c, err)
		return
	}
	for i, f := range facts {
		if err := f.Validate(); err != nil {
			web.Error(c, weberrors.CodeInvalidParams, "facts["+strconv.Itoa(i)+"]: "+err.Error())
			return
		}
	}
	if err := h.intake.Submit(c.Request.Context(), facts); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, web.Response{
		Code:      weberrors.CodeOK,
		Message:   "accepted",
		Data:      gin.H{"accepted": len(facts)},
		RequestID: logger.RequestIDFrom(c.Request.Context()),
	})
}

func (h *Handler) health(c *gin.Context) {
	status := make(map[string]string, len(h.checks))
	healthy := true
	for name, ping := range h.checks {
		if err := ping(c.Request.Context()); err != nil {
			healthy = false
			status[name] = err.Error()
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, web.Response{Code: weberrors.CodeUnavailable, Message: "unhealthy", Data: status})
		return
	}
	web.Success(c, status)
}

func parseFilter(c *gin.Context) (model.Filter, error) {
	f := model.Filter{
		Limit:  web.GetQueryInt(c, "limit", 100),
		Offset: web.GetQueryInt(c, "offset", 0),
	}
	if f.Limit <= 0 || f.Offset < 0 {
		return f, errInvalidParam("limit/offset")
	}
	var err error
	if f.Severities, err = parseList(c.Query("severity"), model.Severity.Valid); err != nil {
		return f, errInvalidParam("severity")
	}
	if f.Categories, err = parseList(c.Query("category"), model.Category.Valid); err != nil {
		return f, errInvalidParam("category")
	}
	if f.Statuses, err = parseList(c.Query("status"), model.Status.Valid); err != nil {
		return f, errInvalidParam("status")
	}
	if v := c.Query("vessel_id"); v != "" {
		f.VesselID = &v
	}
	if v := c.Query("overdue"); v != "" {
		if f.Overdue, err = strconv.ParseBool(v); err != nil {
			return f, errInvalidParam("overdue")
		}
	}
	return f, nil
}

// parseList 解析逗号分隔的枚举列表
func parseList[T ~string](raw string, valid func(T) bool) ([]T, error) {
	if raw == "" {
		return nil, nil
	}
	var out []T
	for _, part := range strings.Split(raw, ",") {
		v := T(strings.ToUpper(strings.TrimSpace(part)))
		if !valid(v) {
			v = T(strings.ToLower(strings.TrimSpace(part)))
		}
		if !valid(v) {
			return nil, errInvalidParam(part)
		}
		out = append(out, v)
	}
	return out, nil
}

type errInvalidParam string

func (e errInvalidParam) Error() string {
	return "invalid query parameter: " + string(e)
}
