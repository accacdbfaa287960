package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"doclocker/internal/service"
)

// ScanLogs queries the scan audit log. Supervisors see their department only.
//
//	@Summary	Query scan logs
//	@Tags		logs
//	@Produce	json
//	@Param		document_id	query		string	false	"document id"
//	@Param		user_id		query		string	false	"scanner user id"
//	@Param		qr_id		query		string	false	"QR id"
//	@Param		department	query		string	false	"department"
//	@Param		success		query		bool	false	"outcome"
//	@Param		from		query		string	false	"RFC 3339 time or YYYY-MM-DD"
//	@Param		to			query		string	false	"RFC 3339 time or YYYY-MM-DD"
//	@Param		sort		query		string	false	"sort field, prefix with - for descending"
//	@Param		limit		query		int		false	"page size (max 500)"	default(50)
//	@Param		offset		query		int		false	"page offset"			default(0)
//	@Success	200			{object}	service.ScanLogPage
//	@Failure	400			{object}	errorPayload
//	@Failure	403			{object}	errorPayload
//	@Security	BearerAuth
//	@Router		/logs/scan [get]
func ScanLogs(svc service.ScanLogService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorOf(c)
		if err != nil {
			return respondError(c, err)
		}

		limit, err := strconv.Atoi(c.Query("limit", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		in := service.ScanLogQueryInput{
			DocumentID:    c.Query("document_id"),
			ScannerUserID: c.Query("user_id"),
			QRID:          c.Query("qr_id"),
			Department:    c.Query("department"),
			From:          c.Query("from"),
			To:            c.Query("to"),
			Sort:          c.Query("sort"),
			Limit:         limit,
			Offset:        offset,
		}
		if raw := c.Query("success"); raw != "" {
			ok, err := strconv.ParseBool(raw)
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", "success must be true or false")
			}
			in.Success = &ok
		}

		page, err := svc.Query(c.UserContext(), actor, in)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(page)
	}
}

// ScanAnalytics returns dashboard totals for 24h, 7d or 30d.
//
//	@Summary	Scan analytics
//	@Tags		logs
//	@Produce	json
//	@Param		timeRange	query		string	false	"24h, 7d or 30d"	default(7d)
//	@Success	200			{object}	service.Analytics
//	@Failure	400			{object}	errorPayload
//	@Security	BearerAuth
//	@Router		/logs/analytics [get]
func ScanAnalytics(svc service.ScanLogService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorOf(c)
		if err != nil {
			return respondError(c, err)
		}

		a, err := svc.Analytics(c.UserContext(), actor, c.Query("timeRange"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(a)
	}
}

// ScanAggregate counts scans grouped by department, document or hour.
//
//	@Summary	Aggregate scan logs
//	@Tags		logs
//	@Produce	json
//	@Param		groupBy		query		string	true	"department, document or hour"
//	@Param		from		query		string	false	"RFC 3339 time or YYYY-MM-DD"
//	@Param		to			query		string	false	"RFC 3339 time or YYYY-MM-DD"
//	@Param		department	query		string	false	"department"
//	@Success	200			{array}		model.ScanBucket
//	@Failure	400			{object}	errorPayload
//	@Security	BearerAuth
//	@Router		/logs/aggregate [get]
func ScanAggregate(svc service.ScanLogService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorOf(c)
		if err != nil {
			return respondError(c, err)
		}

		buckets, err := svc.Aggregate(c.UserContext(), actor, service.AggregateInput{
			GroupBy:    c.Query("groupBy"),
			From:       c.Query("from"),
			To:         c.Query("to"),
			Department: c.Query("department"),
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(buckets)
	}
}
