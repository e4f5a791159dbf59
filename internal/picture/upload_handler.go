// Package picture exposes the photo ingestion endpoints.
package picture

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tdeslauriers/carapace/pkg/connect"
	"github.com/tdeslauriers/carapace/pkg/jwt"
	"github.com/tdeslauriers/carapace/pkg/validate"
	"github.com/tdeslauriers/halide/internal/pipeline"
	"github.com/tdeslauriers/halide/internal/util"
	"github.com/tdeslauriers/halide/pkg/api"
)

var writePhotosAllowed = []string{"w:halide:*", "w:halide:photos:*"}

// maxUploadBytes caps the in-memory multipart buffer for a single upload.
const maxUploadBytes = 64 << 20

// UploadHandler is the interface for the photo upload and folder import
// endpoint handlers.
type UploadHandler interface {

	// HandleUpload handles a single-photo multipart upload request.
	HandleUpload(w http.ResponseWriter, r *http.Request)

	// HandleImport handles a bulk folder import request.
	HandleImport(w http.ResponseWriter, r *http.Request)
}

// NewUploadHandler creates a new upload handler instance, returning a pointer
// to the concrete implementation.
func NewUploadHandler(p pipeline.Service, s2s, iam jwt.Verifier) UploadHandler {
	return &uploadHandler{
		pipeline: p,
		s2s:      s2s,
		iam:      iam,

		logger: slog.Default().
			With(slog.String(util.PackageKey, util.PackagePicture)).
			With(slog.String(util.ComponentKey, util.ComponentUploadHandler)).
			With(slog.String(util.ServiceKey, util.ServiceGallery)),
	}
}

var _ UploadHandler = (*uploadHandler)(nil)

// uploadHandler is a concrete implementation of the UploadHandler interface.
type uploadHandler struct {
	pipeline pipeline.Service
	s2s      jwt.Verifier
	iam      jwt.Verifier

	logger *slog.Logger
}

// HandleUpload is the concrete implementation of the interface method which
// handles a single-photo multipart upload request.
func (h *uploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {

	// get telemetry from request
	tel := connect.ObtainTelemetry(r, h.logger)
	log := h.logger.With(tel.TelemetryFields()...)

	// add telemetry to context for downstream calls + service functions
	ctx := context.WithValue(r.Context(), connect.TelemetryKey, tel)

	if r.Method != http.MethodPost {
		log.Error(fmt.Sprintf("unsupported method %s for endpoint %s", r.Method, r.URL.Path))
		e := connect.ErrorHttp{
			StatusCode: http.StatusMethodNotAllowed,
			Message:    fmt.Sprintf("unsupported method %s for endpoint %s", r.Method, r.URL.Path),
		}
		e.SendJsonErr(w)
		return
	}

	// validate s2s token
	svcToken := r.Header.Get("Service-Authorization")
	authedSvc, err := h.s2s.BuildAuthorized(writePhotosAllowed, svcToken)
	if err != nil {
		log.Error("failed to validate s2s token", "err", err.Error())
		connect.RespondAuthFailure(connect.S2s, err, w)
		return
	}
	log = log.With("requesting_service", authedSvc.Claims.Subject)

	// validate iam token
	accessToken := r.Header.Get("Authorization")
	authedUser, err := h.iam.BuildAuthorized(writePhotosAllowed, accessToken)
	if err != nil {
		log.Error("failed to validate iam token", "err", err.Error())
		connect.RespondAuthFailure(connect.User, err, w)
		return
	}
	log = log.With("actor", authedUser.Claims.Subject)

	cmd, raw, err := parseUploadForm(r)
	if err != nil {
		log.Error("failed to parse upload form", "err", err.Error())
		e := connect.ErrorHttp{
			StatusCode: http.StatusBadRequest,
			Message:    err.Error(),
		}
		e.SendJsonErr(w)
		return
	}

	// tokens carry an opaque uuid subject for real users; service accounts
	// fall back to the system identity inside the pipeline
	if validate.IsValidUuid(authedUser.Claims.Subject) {
		cmd.UploadedBy = authedUser.Claims.Subject
	}

	if err := cmd.Validate(); err != nil {
		log.Error("failed to validate upload command", "err", err.Error())
		e := connect.ErrorHttp{
			StatusCode: http.StatusUnprocessableEntity,
			Message:    err.Error(),
		}
		e.SendJsonErr(w)
		return
	}

	result := h.pipeline.Upload(ctx, cmd, raw)
	if result.Error != "" {
		log.Error(fmt.Sprintf("upload of '%s' failed", cmd.OriginalFileName), "err", result.Error)
		e := connect.ErrorHttp{
			StatusCode: http.StatusUnprocessableEntity,
			Message:    result.Error,
		}
		e.SendJsonErr(w)
		return
	}

	status := http.StatusCreated
	if result.Skipped {
		status = http.StatusOK
		log.Info(fmt.Sprintf("upload of '%s' skipped: %s", cmd.OriginalFileName, result.Reason))
	} else {
		log.Info(fmt.Sprintf("uploaded '%s' as photo record '%s'", cmd.OriginalFileName, result.Photo.Id))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		log.Error("failed to encode upload result to json", "err", err.Error())
		e := connect.ErrorHttp{
			StatusCode: http.StatusInternalServerError,
			Message:    "failed to encode upload result to json",
		}
		e.SendJsonErr(w)
		return
	}
}

// HandleImport is the concrete implementation of the interface method which
// handles a bulk folder import request.
func (h *uploadHandler) HandleImport(w http.ResponseWriter, r *http.Request) {

	// get telemetry from request
	tel := connect.ObtainTelemetry(r, h.logger)
	log := h.logger.With(tel.TelemetryFields()...)

	// add telemetry to context for downstream calls + service functions
	ctx := context.WithValue(r.Context(), connect.TelemetryKey, tel)

	if r.Method != http.MethodPost {
		log.Error(fmt.Sprintf("unsupported method %s for endpoint %s", r.Method, r.URL.Path))
		e := connect.ErrorHttp{
			StatusCode: http.StatusMethodNotAllowed,
			Message:    fmt.Sprintf("unsupported method %s for endpoint %s", r.Method, r.URL.Path),
		}
		e.SendJsonErr(w)
		return
	}

	// validate s2s token
	svcToken := r.Header.Get("Service-Authorization")
	authedSvc, err := h.s2s.BuildAuthorized(writePhotosAllowed, svcToken)
	if err != nil {
		log.Error("failed to validate s2s token", "err", err.Error())
		connect.RespondAuthFailure(connect.S2s, err, w)
		return
	}
	log = log.With("requesting_service", authedSvc.Claims.Subject)

	// validate iam token
	accessToken := r.Header.Get("Authorization")
	authedUser, err := h.iam.BuildAuthorized(writePhotosAllowed, accessToken)
	if err != nil {
		log.Error("failed to validate iam token", "err", err.Error())
		connect.RespondAuthFailure(connect.User, err, w)
		return
	}
	log = log.With("actor", authedUser.Claims.Subject)

	// decode the request body into the ImportCmd struct
	var cmd api.ImportCmd
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		log.Error("failed to decode request body", "err", err.Error())
		e := connect.ErrorHttp{
			StatusCode: http.StatusBadRequest,
			Message:    "failed to decode request body",
		}
		e.SendJsonErr(w)
		return
	}

	if validate.IsValidUuid(authedUser.Claims.Subject) {
		cmd.UploadedBy = authedUser.Claims.Subject
	}

	// validate the incoming data
	if err := cmd.Validate(); err != nil {
		log.Error("failed to validate import command", "err", err.Error())
		e := connect.ErrorHttp{
			StatusCode: http.StatusUnprocessableEntity,
			Message:    err.Error(),
		}
		e.SendJsonErr(w)
		return
	}

	report, err := h.pipeline.ImportFolder(ctx, &cmd)
	if err != nil {
		log.Error(fmt.Sprintf("import of folder '%s' failed", cmd.Path), "err", err.Error())
		e := connect.ErrorHttp{
			StatusCode: http.StatusUnprocessableEntity,
			Message:    err.Error(),
		}
		e.SendJsonErr(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		log.Error("failed to encode import report to json", "err", err.Error())
		e := connect.ErrorHttp{
			StatusCode: http.StatusInternalServerError,
			Message:    "failed to encode import report to json",
		}
		e.SendJsonErr(w)
		return
	}
}

// parseUploadForm reads the multipart upload form: the file part holds the
// raw bytes, the remaining fields populate the command.
func parseUploadForm(r *http.Request) (*api.UploadCmd, []byte, error) {

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, fmt.Errorf("failed to parse multipart form: %v", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, fmt.Errorf("upload form is missing the file part: %v", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read uploaded file: %v", err)
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = r.FormValue("mime_type")
	}

	var tags []string
	if field := strings.TrimSpace(r.FormValue("tags")); field != "" {
		for _, tag := range strings.Split(field, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}

	cmd := &api.UploadCmd{
		Csrf:             r.FormValue("csrf"),
		OriginalFileName: header.Filename,
		MimeType:         mimeType,
		AlbumId:          r.FormValue("album_id"),
		Title:            r.FormValue("title"),
		Description:      r.FormValue("description"),
		Tags:             tags,
		Replace:          r.FormValue("replace_if_exists") == "true",
	}

	return cmd, raw, nil
}
