package handler

import (
	"fmt"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"doclocker/internal/apperr"
	"doclocker/internal/http/middleware"
	"doclocker/internal/model"
	"doclocker/internal/repository"
	"doclocker/internal/service"
)

// Query parameters that are never treated as filters.
var reservedListParams = []string{"limit", "offset", "sort"}

// actorOf returns the authenticated caller or an UNAUTHORIZED error.
func actorOf(c *fiber.Ctx) (model.Actor, error) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return model.Actor{}, apperr.New(apperr.KindUnauthorized, "authentication required")
	}
	return actor, nil
}

// documentID validates the :id path parameter.
func documentID(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// openFormFile opens the multipart "file" field as a service.FileInput.
// The caller must close the returned file.
func openFormFile(c *fiber.Ctx) (service.FileInput, multipart.File, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return service.FileInput{}, nil, writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
	}

	f, err := fh.Open()
	if err != nil {
		return service.FileInput{}, nil, writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
	}

	ct := fh.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	return service.FileInput{
		Reader:      f,
		Filename:    fh.Filename,
		ContentType: ct,
		Size:        fh.Size,
	}, f, nil
}

// formRoles collects access_roles from repeated or comma-separated form values.
func formRoles(c *fiber.Ctx) []model.Role {
	form, err := c.MultipartForm()
	if err != nil {
		return nil
	}
	var roles []model.Role
	for _, v := range form.Value["access_roles"] {
		for _, r := range strings.Split(v, ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, model.Role(r))
			}
		}
	}
	return roles
}

// ListDocuments lists documents visible to the caller.
//
//	@Summary	List documents
//	@Tags		documents
//	@Produce	json
//	@Param		limit	query		int		false	"page size (max 100)"	default(10)
//	@Param		offset	query		int		false	"page offset"			default(0)
//	@Param		sort	query		string	false	"sort field, prefix with - for descending"
//	@Success	200		{object}	service.DocumentListResult
//	@Failure	400		{object}	errorPayload
//	@Security	BearerAuth
//	@Router		/documents [get]
func ListDocuments(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorOf(c)
		if err != nil {
			return respondError(c, err)
		}

		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}
		filters, err := repository.ParseFilters(c.Queries(), reservedListParams...)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_FILTER", "invalid filter")
		}

		res, err := svc.List(c.UserContext(), actor, service.ListQuery{
			Filters: filters,
			Sort:    c.Query("sort"),
			Limit:   limit,
			Offset:  offset,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	}
}

// UploadDocument creates a document from a multipart upload.
//
//	@Summary	Upload a document
//	@Tags		documents
//	@Accept		multipart/form-data
//	@Produce	json
//	@Param		file			formData	file	true	"document file"
//	@Param		title			formData	string	true	"title"
//	@Param		description		formData	string	false	"description"
//	@Param		department		formData	string	true	"owning department"
//	@Param		machine_id		formData	string	false	"machine identifier"
//	@Param		access_roles	formData	string	false	"comma-separated roles"
//	@Param		notes			formData	string	false	"notes for version 1"
//	@Success	201				{object}	model.Document
//	@Failure	400				{object}	errorPayload
//	@Failure	403				{object}	errorPayload
//	@Security	BearerAuth
//	@Router		/documents [post]
func UploadDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorOf(c)
		if err != nil {
			return respondError(c, err)
		}

		file, f, err := openFormFile(c)
		if f == nil {
			return err
		}
		defer f.Close()

		doc, err := svc.Create(c.UserContext(), actor, service.CreateDocumentInput{
			Title:       c.FormValue("title"),
			Description: c.FormValue("description"),
			Department:  c.FormValue("department"),
			MachineID:   c.FormValue("machine_id"),
			AccessRoles: formRoles(c),
			Notes:       c.FormValue("notes"),
			File:        file,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

// GetDocument returns one document with its version history.
//
//	@Summary	Get a document
//	@Tags		documents
//	@Produce	json
//	@Param		id	path		string	true	"document id"
//	@Success	200	{object}	model.Document
//	@Failure	400	{object}	errorPayload
//	@Failure	404	{object}	errorPayload
//	@Security	BearerAuth
//	@Router		/documents/{id} [get]
func GetDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorOf(c)
		if err != nil {
			return respondError(c, err)
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		doc, err := svc.Get(c.UserContext(), actor, id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(doc)
	}
}

// UpdateDocument patches document metadata.
//
//	@Summary	Update document metadata
//	@Tags		documents
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string					true	"document id"
//	@Param		body	body		service.MetadataPatch	true	"fields to change"
//	@Success	200		{object}	model.Document
//	@Failure	400		{object}	errorPayload
//	@Failure	403		{object}	errorPayload
//	@Failure	404		{object}	errorPayload
//	@Security	BearerAuth
//	@Router		/documents/{id} [put]
func UpdateDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorOf(c)
		if err != nil {
			return respondError(c, err)
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		var patch service.MetadataPatch
		if err := c.BodyParser(&patch); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		doc, err := svc.UpdateMetadata(c.UserContext(), actor, id, patch)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(doc)
	}
}

// DeleteDocument removes a document, its stored files and its QR bindings.
// Files that could not be removed are reported as warnings.
//
//	@Summary	Delete a document
//	@Tags		documents
//	@Produce	json
//	@Param		id	path		string	true	"document id"
//	@Success	200	{object}	service.DeleteResult
//	@Failure	403	{object}	errorPayload
//	@Failure	404	{object}	errorPayload
//	@Security	BearerAuth
//	@Router		/documents/{id} [delete]
func DeleteDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorOf(c)
		if err != nil {
			return respondError(c, err)
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		res, err := svc.Delete(c.UserContext(), actor, id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	}
}

// AddVersion uploads a new version of an existing document.
//
//	@Summary	Add a document version
//	@Tags		documents
//	@Accept		multipart/form-data
//	@Produce	json
//	@Param		id		path		string	true	"document id"
//	@Param		file	formData	file	true	"new version file"
//	@Param		notes	formData	string	false	"version notes"
//	@Success	200		{object}	model.Document
//	@Failure	400		{object}	errorPayload
//	@Failure	403		{object}	errorPayload
//	@Failure	409		{object}	errorPayload
//	@Security	BearerAuth
//	@Router		/documents/{id}/versions [post]
func AddVersion(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorOf(c)
		if err != nil {
			return respondError(c, err)
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		file, f, err := openFormFile(c)
		if f == nil {
			return err
		}
		defer f.Close()

		doc, err := svc.AddVersion(c.UserContext(), actor, id, file, c.FormValue("notes"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(doc)
	}
}

// ListVersions returns the version history of a document, oldest first.
//
//	@Summary	List document versions
//	@Tags		documents
//	@Produce	json
//	@Param		id	path		string	true	"document id"
//	@Success	200	{array}		model.Version
//	@Failure	404	{object}	errorPayload
//	@Security	BearerAuth
//	@Router		/documents/{id}/versions [get]
func ListVersions(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorOf(c)
		if err != nil {
			return respondError(c, err)
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		versions, err := svc.ListVersions(c.UserContext(), actor, id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(versions)
	}
}

// DownloadVersion streams the stored file of one version.
//
//	@Summary	Download a version file
//	@Tags		documents
//	@Produce	octet-stream
//	@Param		id		path	string	true	"document id"
//	@Param		version	path	int		true	"version number"
//	@Success	200
//	@Failure	404	{object}	errorPayload
//	@Failure	502	{object}	errorPayload
//	@Security	BearerAuth
//	@Router		/documents/{id}/versions/{version}/file [get]
func DownloadVersion(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorOf(c)
		if err != nil {
			return respondError(c, err)
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		n, err := strconv.Atoi(c.Params("version"))
		if err != nil || n < 1 {
			return writeError(c, fiber.StatusBadRequest, "INVALID_VERSION", "invalid version number")
		}

		vf, err := svc.OpenVersion(c.UserContext(), actor, id, n)
		if err != nil {
			return respondError(c, err)
		}

		c.Set(fiber.HeaderContentType, vf.Version.ContentType)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", vf.Version.OriginalFilename))
		size := int(vf.Info.Size)
		if size <= 0 {
			size = -1
		}
		// fasthttp closes the body once it has been written.
		return c.SendStream(vf.Body, size)
	}
}
