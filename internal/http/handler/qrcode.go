package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"doclocker/internal/service"
)

type bindRequest struct {
	DocumentID string `json:"document_id"`
}

func bindTarget(c *fiber.Ctx) (string, error) {
	var req bindRequest
	if err := c.BodyParser(&req); err != nil {
		return "", writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
	}
	if req.DocumentID == "" {
		return "", writeError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", "document_id is required")
	}
	return req.DocumentID, nil
}

// CreateQRCode binds a new QR code to a document that has none.
//
//	@Summary	Create a QR binding
//	@Tags		qrcodes
//	@Accept		json
//	@Produce	json
//	@Param		body	body		bindRequest	true	"target document"
//	@Success	201		{object}	model.QRBinding
//	@Failure	409		{object}	errorPayload
//	@Security	BearerAuth
//	@Router		/qrcodes [post]
func CreateQRCode(svc service.QRCodeService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorOf(c)
		if err != nil {
			return respondError(c, err)
		}
		docID, err := bindTarget(c)
		if docID == "" {
			return err
		}

		b, err := svc.Bind(c.UserContext(), actor, docID)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(b)
	}
}

// RegenerateQRCode deactivates the document's current code and issues a new one.
//
//	@Summary	Regenerate a QR binding
//	@Tags		qrcodes
//	@Accept		json
//	@Produce	json
//	@Param		body	body		bindRequest	true	"target document"
//	@Success	201		{object}	model.QRBinding
//	@Failure	404		{object}	errorPayload
//	@Security	BearerAuth
//	@Router		/qrcodes/regenerate [post]
func RegenerateQRCode(svc service.QRCodeService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorOf(c)
		if err != nil {
			return respondError(c, err)
		}
		docID, err := bindTarget(c)
		if docID == "" {
			return err
		}

		b, err := svc.Regenerate(c.UserContext(), actor, docID)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(b)
	}
}

// GetQRCode returns a binding with its document summary and PNG image.
//
//	@Summary	Get a QR binding
//	@Tags		qrcodes
//	@Produce	json
//	@Param		qrId	path		string	true	"QR id"
//	@Success	200		{object}	service.QRCodeDetails
//	@Failure	404		{object}	errorPayload
//	@Security	BearerAuth
//	@Router		/qrcodes/{qrId} [get]
func GetQRCode(svc service.QRCodeService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorOf(c)
		if err != nil {
			return respondError(c, err)
		}

		d, err := svc.Get(c.UserContext(), actor, c.Params("qrId"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(d)
	}
}

// ViewQRCode handles a scan. Every outcome is written to the scan log.
//
//	@Summary	Scan a QR code
//	@Tags		qrcodes
//	@Produce	json
//	@Param		qrId	path		string	true	"QR id"
//	@Success	200		{object}	service.ViewResult
//	@Failure	403		{object}	errorPayload
//	@Failure	404		{object}	errorPayload
//	@Failure	410		{object}	errorPayload
//	@Failure	429		{object}	errorPayload
//	@Security	BearerAuth
//	@Router		/qrcodes/{qrId}/view [get]
func ViewQRCode(svc service.QRCodeService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorOf(c)
		if err != nil {
			return respondError(c, err)
		}

		// The scan context outlives the request in the recorder queue, and
		// fiber strings alias a buffer that is reused once the handler returns.
		res, err := svc.View(c.UserContext(), actor, utils.CopyString(c.Params("qrId")), service.ScanContext{
			IP:        utils.CopyString(c.IP()),
			UserAgent: utils.CopyString(c.Get(fiber.HeaderUserAgent)),
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	}
}

// DeactivateQRCode permanently disables a code. Admin only.
//
//	@Summary	Deactivate a QR code
//	@Tags		qrcodes
//	@Param		qrId	path	string	true	"QR id"
//	@Success	204
//	@Failure	403	{object}	errorPayload
//	@Failure	404	{object}	errorPayload
//	@Security	BearerAuth
//	@Router		/qrcodes/{qrId} [delete]
func DeactivateQRCode(svc service.QRCodeService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorOf(c)
		if err != nil {
			return respondError(c, err)
		}

		if err := svc.Deactivate(c.UserContext(), actor, c.Params("qrId")); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// QRCodeStats summarises scans of one code.
//
//	@Summary	QR scan statistics
//	@Tags		qrcodes
//	@Produce	json
//	@Param		qrId	path		string	true	"QR id"
//	@Success	200		{object}	service.QRStats
//	@Failure	403		{object}	errorPayload
//	@Failure	404		{object}	errorPayload
//	@Security	BearerAuth
//	@Router		/qrcodes/{qrId}/stats [get]
func QRCodeStats(svc service.QRCodeService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorOf(c)
		if err != nil {
			return respondError(c, err)
		}

		st, err := svc.Stats(c.UserContext(), actor, c.Params("qrId"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(st)
	}
}
