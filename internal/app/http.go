package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"casavia/api/internal/auth"
	"casavia/api/internal/authpw"
	"casavia/api/internal/intelligence"
	"casavia/api/internal/rbac"
	"casavia/api/internal/store"
)

const maxUploadBytes = 20 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/verify-email" {
		s.handleAuthVerifyEmail(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password/request" {
		s.handleAuthRequestReset(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password" {
		s.handleAuthResetPassword(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "userName": session.UserName, "userId": session.UserID, "role": session.Role})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"accessToken":  session.Token,
			"refreshToken": session.RefreshToken,
			"userId":       session.UserID,
			"userName":     session.UserName,
			"role":         session.Role,
			"expiresAt":    session.ExpiresAt.Unix(),
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		session := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				session = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	// Public marketing surface — no authentication.
	if strings.HasPrefix(r.URL.Path, "/api/public/") {
		s.handlePublic(w, r)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		if !s.service.Can(session.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		s.handleSearch(w, r, false)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/summary" {
		if !s.service.Can(session.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		summary, err := s.service.Summary(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not load summary", nil)
			return
		}
		writeJSON(w, http.StatusOK, summaryPayload(summary))
		return
	}

	if r.URL.Path == "/api/settings" {
		s.handleSettings(w, r, session)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/audit-events" {
		if !s.service.Can(session.Role, rbac.ActionAdmin) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		limit, err := intParam(r, "limit", 100)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		events, err := s.service.ListAuditEvents(r.Context(), r.URL.Query().Get("entity"), r.URL.Query().Get("entityId"), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not load audit events", nil)
			return
		}
		payloads := make([]map[string]any, 0, len(events))
		for _, event := range events {
			payloads = append(payloads, auditPayload(event))
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": payloads})
		return
	}

	if strings.HasPrefix(r.URL.Path, "/api/intelligence/") {
		s.handleIntelligence(w, r, session)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 2 && parts[0] == "api" {
		switch parts[1] {
		case "properties":
			s.handleProperties(w, r, session, parts[2:])
			return
		case "neighborhoods":
			s.handleNeighborhoods(w, r, session, parts[2:])
			return
		case "owners":
			s.handleOwners(w, r, session, parts[2:])
			return
		case "clients":
			s.handleClients(w, r, session, parts[2:])
			return
		case "transactions":
			s.handleTransactions(w, r, session, parts[2:])
			return
		case "inquiries":
			s.handleInquiries(w, r, session, parts[2:])
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// Public marketing endpoints.

func (s *HTTPServer) handlePublic(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)[2:] // strip api/public

	switch {
	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "properties":
		filter, err := propertyFilterFromQuery(r)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		items, err := s.service.PublicListProperties(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list properties", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"properties": propertyListPayload(items, true)})
		return

	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "properties":
		property, images, err := s.service.PublicGetProperty(r.Context(), parts[1])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		payload := publicPropertyPayload(property)
		payload["images"] = imageListPayload(images)
		writeJSON(w, http.StatusOK, payload)
		return

	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "neighborhoods":
		items, err := s.service.ListNeighborhoods(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list neighborhoods", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"neighborhoods": neighborhoodListPayload(items)})
		return

	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "neighborhoods":
		item, err := s.service.GetNeighborhoodBySlug(r.Context(), parts[1])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, neighborhoodPayload(item))
		return

	case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "inquiries":
		if !s.service.AllowInquiry(r.Context(), clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many inquiries, try again later", nil)
			return
		}
		var body struct {
			Name       string `json:"name"`
			Email      string `json:"email"`
			Phone      string `json:"phone"`
			Message    string `json:"message"`
			PropertyID string `json:"propertyId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		input := InquiryInput{Name: body.Name, Email: body.Email, Phone: body.Phone, Message: body.Message}
		if body.PropertyID != "" {
			input.PropertyID = &body.PropertyID
		}
		inquiry, err := s.service.SubmitInquiry(r.Context(), input)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": inquiry.ID, "status": inquiry.Status})
		return

	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "search":
		s.handleSearch(w, r, true)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, public bool) {
	limit, err := intParam(r, "limit", 20)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	response, err := s.service.Search(r.Context(), q, r.URL.Query().Get("type"), r.URL.Query().Get("city"), limit, offset, public)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// Back-office collections.

func (s *HTTPServer) handleProperties(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		if !s.service.Can(session.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		filter, err := propertyFilterFromQuery(r)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		filter.Status = r.URL.Query().Get("status")
		items, err := s.service.ListProperties(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list properties", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"properties": propertyListPayload(items, false)})
		return

	case len(rest) == 0 && r.Method == http.MethodPost:
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		input, err := propertyInputFromBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.CreateProperty(r.Context(), input, session.UserName)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, propertyPayload(created))
		return

	case len(rest) == 1 && r.Method == http.MethodGet:
		if !s.service.Can(session.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		property, err := s.service.GetProperty(r.Context(), rest[0])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		images, err := s.service.ListPropertyImages(r.Context(), property.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not load images", nil)
			return
		}
		payload := propertyPayload(property)
		payload["images"] = imageListPayload(images)
		writeJSON(w, http.StatusOK, payload)
		return

	case len(rest) == 1 && r.Method == http.MethodPut:
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		input, err := propertyInputFromBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updated, err := s.service.UpdateProperty(r.Context(), rest[0], input, session.UserName)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, propertyPayload(updated))
		return

	case len(rest) == 1 && r.Method == http.MethodDelete:
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		if err := s.service.DeleteProperty(r.Context(), rest[0], session.UserName); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return

	case len(rest) == 2 && r.Method == http.MethodPost && (rest[1] == "publish" || rest[1] == "unpublish"):
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		status := "published"
		if rest[1] == "unpublish" {
			status = "draft"
		}
		if err := s.service.UpdatePropertyStatus(r.Context(), rest[0], status, session.UserName); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": status})
		return

	case len(rest) == 2 && r.Method == http.MethodPost && rest[1] == "status":
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var body struct {
			Status string `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.UpdatePropertyStatus(r.Context(), rest[0], body.Status, session.UserName); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": body.Status})
		return

	case len(rest) == 2 && r.Method == http.MethodPost && rest[1] == "price":
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var body struct {
			PriceCents int64 `json:"priceCents"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.UpdatePropertyPrice(r.Context(), rest[0], body.PriceCents, session.UserName); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "priceCents": body.PriceCents})
		return

	case len(rest) == 2 && r.Method == http.MethodGet && rest[1] == "export":
		if !s.service.Can(session.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		result, err := s.service.ExportPropertyFlyer(r.Context(), rest[0])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return

	case len(rest) == 2 && r.Method == http.MethodPost && rest[1] == "images":
		s.handleImageUpload(w, r, session, rest[0])
		return

	case len(rest) == 3 && r.Method == http.MethodDelete && rest[1] == "images":
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		if err := s.service.RemovePropertyImage(r.Context(), rest[0], rest[2], session.UserName); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return

	case len(rest) == 4 && r.Method == http.MethodPost && rest[1] == "images" && rest[3] == "cover":
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		if err := s.service.SetPropertyCover(r.Context(), rest[0], rest[2], session.UserName); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleImageUpload(w http.ResponseWriter, r *http.Request, session Session, propertyID string) {
	if !s.service.Can(session.Role, rbac.ActionWrite) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var data []byte
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", `expected a multipart "file" field`, nil)
			return
		}
		defer file.Close()
		data, err = io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read upload", nil)
			return
		}
	} else {
		var err error
		data, err = io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read upload", nil)
			return
		}
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "empty upload", nil)
		return
	}

	image, err := s.service.AddPropertyImage(r.Context(), propertyID, data, session.UserName)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, imagePayload(image))
}

func (s *HTTPServer) handleNeighborhoods(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		if !s.service.Can(session.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		items, err := s.service.ListNeighborhoods(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list neighborhoods", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"neighborhoods": neighborhoodListPayload(items)})
		return

	case len(rest) == 0 && r.Method == http.MethodPost:
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var body neighborhoodBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.CreateNeighborhood(r.Context(), body.input(), session.UserName)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, neighborhoodPayload(created))
		return

	case len(rest) == 1 && r.Method == http.MethodGet:
		if !s.service.Can(session.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		item, err := s.service.GetNeighborhood(r.Context(), rest[0])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, neighborhoodPayload(item))
		return

	case len(rest) == 1 && r.Method == http.MethodPut:
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var body neighborhoodBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updated, err := s.service.UpdateNeighborhood(r.Context(), rest[0], body.input(), session.UserName)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, neighborhoodPayload(updated))
		return

	case len(rest) == 1 && r.Method == http.MethodDelete:
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		if err := s.service.DeleteNeighborhood(r.Context(), rest[0], session.UserName); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleOwners(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		if !s.service.Can(session.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		items, err := s.service.ListOwners(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list owners", nil)
			return
		}
		payloads := make([]map[string]any, 0, len(items))
		for _, item := range items {
			payloads = append(payloads, ownerPayload(item))
		}
		writeJSON(w, http.StatusOK, map[string]any{"owners": payloads})
		return

	case len(rest) == 0 && r.Method == http.MethodPost:
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var body ownerBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.CreateOwner(r.Context(), body.input(), session.UserName)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, ownerPayload(created))
		return

	case len(rest) == 1 && r.Method == http.MethodGet:
		if !s.service.Can(session.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		item, err := s.service.GetOwner(r.Context(), rest[0])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, ownerPayload(item))
		return

	case len(rest) == 1 && r.Method == http.MethodPut:
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var body ownerBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updated, err := s.service.UpdateOwner(r.Context(), rest[0], body.input(), session.UserName)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, ownerPayload(updated))
		return

	case len(rest) == 1 && r.Method == http.MethodDelete:
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		if err := s.service.DeleteOwner(r.Context(), rest[0], session.UserName); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleClients(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		if !s.service.Can(session.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		items, err := s.service.ListClients(r.Context(), r.URL.Query().Get("stage"))
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		payloads := make([]map[string]any, 0, len(items))
		for _, item := range items {
			payloads = append(payloads, clientPayload(item))
		}
		writeJSON(w, http.StatusOK, map[string]any{"clients": payloads})
		return

	case len(rest) == 0 && r.Method == http.MethodPost:
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var body clientBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.CreateClient(r.Context(), body.record(), session.UserName)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, clientPayload(created))
		return

	case len(rest) == 1 && r.Method == http.MethodGet:
		if !s.service.Can(session.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		item, err := s.service.GetClient(r.Context(), rest[0])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, clientPayload(item))
		return

	case len(rest) == 1 && r.Method == http.MethodPut:
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var body clientBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updated, err := s.service.UpdateClient(r.Context(), rest[0], body.input(), session.UserName)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, clientPayload(updated))
		return

	case len(rest) == 2 && r.Method == http.MethodPost && rest[1] == "stage":
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var body struct {
			Stage string `json:"stage"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.UpdateClientStage(r.Context(), rest[0], body.Stage, session.UserName); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "stage": body.Stage})
		return

	case len(rest) == 1 && r.Method == http.MethodDelete:
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		if err := s.service.DeleteClient(r.Context(), rest[0], session.UserName); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleTransactions(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if !s.service.Can(session.Role, rbac.ActionFinance) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		limit, err := intParam(r, "limit", 100)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		items, err := s.service.ListTransactions(r.Context(), r.URL.Query().Get("propertyId"), r.URL.Query().Get("clientId"), r.URL.Query().Get("status"), limit)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		payloads := make([]map[string]any, 0, len(items))
		for _, item := range items {
			payloads = append(payloads, transactionPayload(item))
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": payloads})
		return

	case len(rest) == 0 && r.Method == http.MethodPost:
		var body transactionBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.CreateTransaction(r.Context(), body.input(), session.UserName)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, transactionPayload(created))
		return

	case len(rest) == 1 && r.Method == http.MethodGet:
		item, err := s.service.GetTransaction(r.Context(), rest[0])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, transactionPayload(item))
		return

	case len(rest) == 2 && r.Method == http.MethodPost && rest[1] == "status":
		var body struct {
			Status string `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.UpdateTransactionStatus(r.Context(), rest[0], body.Status, session.UserName); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": body.Status})
		return

	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteTransaction(r.Context(), rest[0], session.UserName); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleInquiries(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		if !s.service.Can(session.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		limit, err := intParam(r, "limit", 100)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		items, err := s.service.ListInquiries(r.Context(), r.URL.Query().Get("status"), limit)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		payloads := make([]map[string]any, 0, len(items))
		for _, item := range items {
			payloads = append(payloads, inquiryPayload(item))
		}
		writeJSON(w, http.StatusOK, map[string]any{"inquiries": payloads})
		return

	case len(rest) == 2 && r.Method == http.MethodPost && rest[1] == "status":
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var body struct {
			Status string `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.UpdateInquiryStatus(r.Context(), rest[0], body.Status, session.UserName); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": body.Status})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleSettings(w http.ResponseWriter, r *http.Request, session Session) {
	switch r.Method {
	case http.MethodGet:
		if !s.service.Can(session.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		settings, err := s.service.GetSettings(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not load settings", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
		return

	case http.MethodPut:
		if !s.service.Can(session.Role, rbac.ActionAdmin) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var body map[string]any
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		settings, err := s.service.SaveSettings(r.Context(), body, session.UserName)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

// Intelligence chat surface. Mutations only run through the confirm step,
// so the whole surface requires write access.

func (s *HTTPServer) handleIntelligence(w http.ResponseWriter, r *http.Request, session Session) {
	if !s.service.Can(session.Role, rbac.ActionWrite) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/intelligence/chat":
		var body struct {
			Message string `json:"message"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if strings.TrimSpace(body.Message) == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "message is required", nil)
			return
		}
		reply, err := s.service.Chat(r.Context(), session, body.Message)
		if err != nil {
			s.writeIntelligenceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
		return

	case r.Method == http.MethodPost && r.URL.Path == "/api/intelligence/confirm":
		var body struct {
			ActionID string `json:"actionId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		reply, err := s.service.ConfirmAction(r.Context(), session, body.ActionID)
		if err != nil {
			s.writeIntelligenceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
		return

	case r.Method == http.MethodPost && r.URL.Path == "/api/intelligence/cancel":
		reply, err := s.service.CancelAction(session)
		if err != nil {
			s.writeIntelligenceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
		return

	case r.Method == http.MethodGet && r.URL.Path == "/api/intelligence/pending":
		action, ok := s.service.PendingAction(session)
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"pending": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"pending": map[string]any{
			"id":        action.ID,
			"summary":   action.Summary,
			"expiresAt": action.ExpiresAt.UTC().Format(time.RFC3339),
		}})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) writeIntelligenceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, intelligence.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many messages, slow down", nil)
	case errors.Is(err, intelligence.ErrNoPending):
		writeError(w, http.StatusNotFound, "NO_PENDING_ACTION", "There is no pending action to confirm", nil)
	default:
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
	}
}

// Request plumbing.

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func int64Param(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func propertyFilterFromQuery(r *http.Request) (store.PropertyFilter, error) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		return store.PropertyFilter{}, fmt.Errorf("limit must be an integer")
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		return store.PropertyFilter{}, fmt.Errorf("offset must be an integer")
	}
	minBedrooms, err := intParam(r, "minBedrooms", 0)
	if err != nil {
		return store.PropertyFilter{}, fmt.Errorf("minBedrooms must be an integer")
	}
	minPrice, err := int64Param(r, "minPrice")
	if err != nil {
		return store.PropertyFilter{}, fmt.Errorf("minPrice must be an integer amount of cents")
	}
	maxPrice, err := int64Param(r, "maxPrice")
	if err != nil {
		return store.PropertyFilter{}, fmt.Errorf("maxPrice must be an integer amount of cents")
	}
	query := r.URL.Query()
	return store.PropertyFilter{
		City:           query.Get("city"),
		NeighborhoodID: query.Get("neighborhoodId"),
		Type:           query.Get("type"),
		MinPriceCents:  minPrice,
		MaxPriceCents:  maxPrice,
		MinBedrooms:    minBedrooms,
		Query:          strings.TrimSpace(query.Get("q")),
		Limit:          limit,
		Offset:         offset,
	}, nil
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// Request body shapes shared by create and update handlers.

type propertyBody struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Type           string   `json:"type"`
	Status         string   `json:"status"`
	PriceCents     int64    `json:"priceCents"`
	Currency       string   `json:"currency"`
	Bedrooms       int      `json:"bedrooms"`
	Bathrooms      int      `json:"bathrooms"`
	AreaM2         float64  `json:"areaM2"`
	Address        string   `json:"address"`
	City           string   `json:"city"`
	NeighborhoodID *string  `json:"neighborhoodId"`
	OwnerID        *string  `json:"ownerId"`
	Features       []string `json:"features"`
}

func propertyInputFromBody(r *http.Request) (PropertyInput, error) {
	var body propertyBody
	if err := decodeBody(r, &body); err != nil {
		return PropertyInput{}, err
	}
	return PropertyInput{
		Title:          body.Title,
		Description:    body.Description,
		Type:           body.Type,
		Status:         body.Status,
		PriceCents:     body.PriceCents,
		Currency:       body.Currency,
		Bedrooms:       body.Bedrooms,
		Bathrooms:      body.Bathrooms,
		AreaM2:         body.AreaM2,
		Address:        body.Address,
		City:           body.City,
		NeighborhoodID: body.NeighborhoodID,
		OwnerID:        body.OwnerID,
		Features:       body.Features,
	}, nil
}

type neighborhoodBody struct {
	Name        string   `json:"name"`
	City        string   `json:"city"`
	Description string   `json:"description"`
	HeroImage   string   `json:"heroImageUrl"`
	Highlights  []string `json:"highlights"`
}

func (b neighborhoodBody) input() NeighborhoodInput {
	return NeighborhoodInput{
		Name:        b.Name,
		City:        b.City,
		Description: b.Description,
		HeroImage:   b.HeroImage,
		Highlights:  b.Highlights,
	}
}

type ownerBody struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Notes string `json:"notes"`
}

func (b ownerBody) input() OwnerInput {
	return OwnerInput{Name: b.Name, Email: b.Email, Phone: b.Phone, Notes: b.Notes}
}

type clientBody struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Stage          string `json:"stage"`
	BudgetMinCents int64  `json:"budgetMinCents"`
	BudgetMaxCents int64  `json:"budgetMaxCents"`
	Notes          string `json:"notes"`
}

func (b clientBody) record() store.Client {
	return store.Client{
		Name:           b.Name,
		Email:          b.Email,
		Phone:          b.Phone,
		Stage:          b.Stage,
		BudgetMinCents: b.BudgetMinCents,
		BudgetMaxCents: b.BudgetMaxCents,
		Notes:          b.Notes,
	}
}

func (b clientBody) input() ClientInput {
	return ClientInput{
		Name:           b.Name,
		Email:          b.Email,
		Phone:          b.Phone,
		Stage:          b.Stage,
		BudgetMinCents: b.BudgetMinCents,
		BudgetMaxCents: b.BudgetMaxCents,
		Notes:          b.Notes,
	}
}

type transactionBody struct {
	PropertyID  *string `json:"propertyId"`
	ClientID    *string `json:"clientId"`
	Kind        string  `json:"kind"`
	Status      string  `json:"status"`
	AmountCents int64   `json:"amountCents"`
	Currency    string  `json:"currency"`
	OccurredOn  string  `json:"occurredOn"`
	Notes       string  `json:"notes"`
}

func (b transactionBody) input() TransactionInput {
	return TransactionInput{
		PropertyID:  b.PropertyID,
		ClientID:    b.ClientID,
		Kind:        b.Kind,
		Status:      b.Status,
		AmountCents: b.AmountCents,
		Currency:    b.Currency,
		OccurredOn:  b.OccurredOn,
		Notes:       b.Notes,
	}
}

// Auth handlers for email/password authentication.

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	authSvc := s.service.AuthPasswordService()
	if authSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
		return
	}

	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	resp, err := authSvc.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		if errors.Is(err, authpw.ErrEmailExists) {
			writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
		return
	}

	s.service.NotifyVerification(r.Context(), body.Email, resp.VerificationToken)

	response := map[string]any{
		"userId":  resp.UserID,
		"message": "Please check your email to verify your account",
	}
	// Dev bypass: include verification token when email is not configured.
	if !s.service.SMTPConfigured() {
		response["devVerificationToken"] = resp.VerificationToken
		response["message"] = "Account created. Verify your email to continue."
	}

	writeJSON(w, http.StatusCreated, response)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	authSvc := s.service.AuthPasswordService()
	if authSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
		return
	}

	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	resp, err := authSvc.SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		return
	}

	if resp.RequiresVerify {
		writeError(w, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Please verify your email before signing in", nil)
		return
	}

	session, err := s.service.CreateSession(r.Context(), resp.User.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SESSION_FAILED", "Failed to create session", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"role":         session.Role,
		"expiresAt":    session.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleAuthVerifyEmail(w http.ResponseWriter, r *http.Request) {
	authSvc := s.service.AuthPasswordService()
	if authSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
		return
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	if err := authSvc.VerifyEmail(r.Context(), body.Token); err != nil {
		writeError(w, http.StatusBadRequest, "VERIFICATION_FAILED", err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Email verified successfully",
	})
}

func (s *HTTPServer) handleAuthRequestReset(w http.ResponseWriter, r *http.Request) {
	authSvc := s.service.AuthPasswordService()
	if authSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
		return
	}

	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	token, _ := authSvc.RequestPasswordReset(r.Context(), body.Email)
	if token != "" {
		s.service.NotifyPasswordReset(r.Context(), body.Email, token)
	}

	response := map[string]any{
		"message": "If an account exists, a reset email has been sent",
	}
	// Dev bypass: surface the token when email is not configured.
	if !s.service.SMTPConfigured() && token != "" {
		response["devResetToken"] = token
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	authSvc := s.service.AuthPasswordService()
	if authSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
		return
	}

	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	if err := authSvc.ResetPassword(r.Context(), authpw.ResetPasswordRequest{
		Token:       body.Token,
		NewPassword: body.NewPassword,
	}); err != nil {
		writeError(w, http.StatusBadRequest, "RESET_FAILED", err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Password reset successfully",
	})
}
