package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/stocker-io/stocker-sdk/modules/migration/services"
	"github.com/stocker-io/stocker-sdk/pkg/application"
	"github.com/stocker-io/stocker-sdk/pkg/composables"
	"github.com/stocker-io/stocker-sdk/pkg/httpapi"
	"github.com/stocker-io/stocker-sdk/pkg/middleware"
)

type MigrationController struct {
	app       application.Application
	sessions  *services.SessionService
	uploads   *services.UploadService
	ledger    *services.LedgerService
	commits   *services.CommitService
	mappings  *services.MappingService
	templates *services.TemplateService
	basePath  string
}

func NewMigrationController(app application.Application) application.Controller {
	return &MigrationController{
		app:       app,
		sessions:  app.Service(services.SessionService{}).(*services.SessionService),
		uploads:   app.Service(services.UploadService{}).(*services.UploadService),
		ledger:    app.Service(services.LedgerService{}).(*services.LedgerService),
		commits:   app.Service(services.CommitService{}).(*services.CommitService),
		mappings:  app.Service(services.MappingService{}).(*services.MappingService),
		templates: app.Service(services.TemplateService{}).(*services.TemplateService),
		basePath:  "/api/tenant/data-migration",
	}
}

func (c *MigrationController) Key() string {
	return c.basePath
}

func (c *MigrationController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.Use(middleware.RequireTenant(), middleware.ProvideUser())

	router.HandleFunc("/sessions", c.CreateSession).Methods(http.MethodPost)
	router.HandleFunc("/sessions", c.ListSessions).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}", c.GetSession).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}", c.DeleteSession).Methods(http.MethodDelete)
	router.HandleFunc("/sessions/{id}/cancel", c.CancelSession).Methods(http.MethodPost)

	router.HandleFunc("/sessions/{id}/upload", c.UploadChunk).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}/upload/complete", c.CompleteUpload).Methods(http.MethodPost)

	router.HandleFunc("/sessions/{id}/mapping", c.SetMapping).Methods(http.MethodPut)
	router.HandleFunc("/sessions/{id}/mapping/suggestions", c.MappingSuggestions).Methods(http.MethodPost)

	router.HandleFunc("/sessions/{id}/validate", c.StartValidation).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}/preview", c.Preview).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}/statistics", c.Statistics).Methods(http.MethodGet)

	router.HandleFunc("/sessions/{id}/records/bulk", c.BulkUpdateRecords).Methods(http.MethodPatch)
	router.HandleFunc("/sessions/{id}/records/{recordId}", c.UpdateRecord).Methods(http.MethodPatch)

	router.HandleFunc("/sessions/{id}/commit", c.Commit).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}/progress", c.Progress).Methods(http.MethodGet)

	router.HandleFunc("/templates/excel/{entityType}", c.ExcelTemplate).Methods(http.MethodGet)
}

func (c *MigrationController) CreateSession(w http.ResponseWriter, r *http.Request) {
	tenantID, userID, ok := c.identity(w, r)
	if !ok {
		return
	}

	var dto CreateSessionDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	sess, err := c.sessions.Create(r.Context(), tenantID, userID, services.CreateSessionInput{
		SourceType:  dto.SourceType,
		EntityTypes: dto.EntityTypes,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, sess)
}

func (c *MigrationController) ListSessions(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := c.identity(w, r)
	if !ok {
		return
	}

	params := services.ListSessionsParams{
		Status: strings.TrimSpace(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	}

	page, err := c.sessions.List(r.Context(), tenantID, params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, page)
}

func (c *MigrationController) GetSession(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := c.identity(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	sess, err := c.sessions.Get(r.Context(), tenantID, sessionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"session": sess,
		"expired": c.sessions.IsExpired(sess),
	})
}

func (c *MigrationController) DeleteSession(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := c.identity(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := c.sessions.Delete(r.Context(), tenantID, sessionID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *MigrationController) CancelSession(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := c.identity(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	sess, err := c.sessions.Cancel(r.Context(), tenantID, sessionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, sess)
}

func (c *MigrationController) UploadChunk(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := c.identity(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var dto UploadChunkDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	result, err := c.uploads.UploadChunk(r.Context(), tenantID, sessionID, services.UploadChunkInput{
		EntityType:          dto.EntityType,
		ChunkIndex:          dto.ChunkIndex,
		TotalChunksDeclared: dto.TotalChunksDeclared,
		Rows:                dto.Rows,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, result)
}

func (c *MigrationController) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := c.identity(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	sess, err := c.sessions.CompleteUpload(r.Context(), tenantID, sessionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, sess)
}

func (c *MigrationController) SetMapping(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := c.identity(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var dto SetMappingDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	if err := c.sessions.SetMapping(r.Context(), tenantID, sessionID, dto.MappingConfig); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *MigrationController) MappingSuggestions(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := c.identity(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var dto MappingSuggestionsDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	suggestions, err := c.mappings.Suggest(r.Context(), tenantID, sessionID, dto.EntityType, dto.Columns)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (c *MigrationController) StartValidation(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := c.identity(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	sess, err := c.commits.StartValidation(r.Context(), tenantID, sessionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusAccepted, sess)
}

func (c *MigrationController) Preview(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := c.identity(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	filter := services.RecordFilter{
		EntityType: strings.TrimSpace(r.URL.Query().Get("entityType")),
		Status:     strings.TrimSpace(r.URL.Query().Get("status")),
		UserAction: strings.TrimSpace(r.URL.Query().Get("userAction")),
		Limit:      queryInt(r, "limit", 0),
		Offset:     queryInt(r, "offset", 0),
	}

	page, err := c.ledger.Preview(r.Context(), tenantID, sessionID, filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, page)
}

func (c *MigrationController) Statistics(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := c.identity(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	stats, err := c.ledger.Statistics(r.Context(), tenantID, sessionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{"statistics": stats})
}

func (c *MigrationController) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := c.identity(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	recordID, ok := pathUUID(w, r, "recordId")
	if !ok {
		return
	}

	var dto UpdateRecordDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	rec, err := c.ledger.UpdateRecord(r.Context(), tenantID, sessionID, recordID, services.UpdateRecordInput{
		UserAction: dto.UserAction,
		FixedData:  dto.FixedData,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, rec)
}

func (c *MigrationController) BulkUpdateRecords(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := c.identity(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var dto BulkUpdateRecordsDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	result, err := c.ledger.BulkUpdateRecords(r.Context(), tenantID, sessionID, services.BulkUpdateInput{
		RecordIDs:  dto.RecordIDs,
		UserAction: dto.UserAction,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, result)
}

func (c *MigrationController) Commit(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := c.identity(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var dto CommitDTO
	if r.ContentLength != 0 {
		if !decodeBody(w, r, &dto) {
			return
		}
	}

	result, err := c.commits.Commit(r.Context(), tenantID, sessionID, services.CommitInput{
		ImportOptions: dto.ImportOptions,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusAccepted, result)
}

func (c *MigrationController) Progress(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := c.identity(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	progress, err := c.commits.Progress(r.Context(), tenantID, sessionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, progress)
}

func (c *MigrationController) ExcelTemplate(w http.ResponseWriter, r *http.Request) {
	entityType := mux.Vars(r)["entityType"]

	data, err := c.templates.ExcelTemplate(entityType)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", entityType+"-template.xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (c *MigrationController) identity(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	tenantID, err := composables.UseTenantID(r.Context())
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusUnauthorized, "MIGRATION_NO_TENANT", "tenant is required", nil)
		return uuid.Nil, uuid.Nil, false
	}
	userID, _ := composables.UseUserID(r.Context())
	return tenantID, userID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dto any) bool {
	if err := json.NewDecoder(r.Body).Decode(dto); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "MIGRATION_INVALID_JSON", "invalid json body", nil)
		return false
	}
	if err := validate.Struct(dto); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, services.CodeValidation, err.Error(), nil)
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, services.CodeValidation, "invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		_ = httpapi.WriteError(w, svcErr.Status, svcErr.Code, svcErr.Message, nil)
		return
	}
	composables.UseLogger(r.Context()).WithError(err).Error("unhandled service error")
	_ = httpapi.WriteError(w, http.StatusInternalServerError, services.CodeInternal, "internal error", nil)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
