// Package server exposes the gate operations over HTTP. Identity comes
// from the verified bearer token; nothing in a request body can claim a
// different caller.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"confessly/internal/app"
	"confessly/internal/apperr"
	"confessly/internal/ratelimit"
	"confessly/internal/usertoken"
	"confessly/internal/util"
	"confessly/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                        *app.App
	TokenVerifier              *usertoken.Verifier
	RedisAddr                  string
	RedisPassword              string
	TrustedProxyCIDRs          []string
	SubmitRateLimitPerMinute   int
	ReactionRateLimitPerMinute int
	ReportRateLimitPerMinute   int
	PurchaseRateLimitPerMinute int
}

// Server exposes HTTP endpoints for the confession backend.
type Server struct {
	app             *app.App
	tokenVerifier   *usertoken.Verifier
	mux             *http.ServeMux
	trustedProxies  *util.TrustedProxies
	submitLimiter   *ratelimit.FixedWindowLimiter
	reactionLimiter *ratelimit.FixedWindowLimiter
	reportLimiter   *ratelimit.FixedWindowLimiter
	purchaseLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	submitLimit := cfg.SubmitRateLimitPerMinute
	if submitLimit <= 0 {
		submitLimit = 10
	}
	reactionLimit := cfg.ReactionRateLimitPerMinute
	if reactionLimit <= 0 {
		reactionLimit = 60
	}
	reportLimit := cfg.ReportRateLimitPerMinute
	if reportLimit <= 0 {
		reportLimit = 20
	}
	purchaseLimit := cfg.PurchaseRateLimitPerMinute
	if purchaseLimit <= 0 {
		purchaseLimit = 10
	}
	rateWindow := time.Minute
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		prefix := "confessly:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, rateWindow)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	submitLimiter, err := newLimiter("submit", submitLimit)
	if err != nil {
		return nil, err
	}
	reactionLimiter, err := newLimiter("reaction", reactionLimit)
	if err != nil {
		return nil, err
	}
	reportLimiter, err := newLimiter("report", reportLimit)
	if err != nil {
		return nil, err
	}
	purchaseLimiter, err := newLimiter("purchase", purchaseLimit)
	if err != nil {
		return nil, err
	}
	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	s := &Server{
		app:             cfg.App,
		tokenVerifier:   cfg.TokenVerifier,
		mux:             http.NewServeMux(),
		trustedProxies:  trustedProxies,
		submitLimiter:   submitLimiter,
		reactionLimiter: reactionLimiter,
		reportLimiter:   reportLimiter,
		purchaseLimiter: purchaseLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	handler := util.WithSecurityHeaders(util.WithCORS(s.mux))
	return util.WithRequestID(util.WithRequestLog("confessly", handler))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.Handle("/api/confessions", s.authenticated(s.handleSubmit))
	s.mux.Handle("/api/confessions/", s.authenticated(s.handleConfessionAction))
	s.mux.Handle("/api/purchases/verify", s.authenticated(s.handleVerifyPurchase))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.authorize(r)
		if !ok {
			s.audit(r, "confessly.authorize", "fail")
			writeError(w, http.StatusUnauthorized, "User must be logged in.")
			return
		}
		next(w, r, userID)
	})
}

func (s *Server) authorize(r *http.Request) (string, bool) {
	token, ok := bearerToken(r)
	if !ok {
		s.audit(r, "confessly.token.verify", "fail", "reason", "missing_token")
		return "", false
	}
	if s.tokenVerifier == nil {
		s.audit(r, "confessly.token.verify", "fail", "reason", "verifier_unavailable")
		return "", false
	}
	subject, err := s.tokenVerifier.VerifySubject(token)
	if err != nil || subject == "" {
		s.audit(r, "confessly.token.verify", "fail", "reason", "invalid_signature_or_claims")
		return "", false
	}
	return subject, true
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.submitLimiter, "too many submissions") {
		s.audit(r, "confessly.submit", "rate_limited", "user_id", userID)
		return
	}
	var req app.SubmitConfessionInput
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	confession, err := s.app.SubmitConfession(r.Context(), userID, req)
	if err != nil {
		s.audit(r, "confessly.submit", "fail", "user_id", userID, "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "confessly.submit", "success", "user_id", userID, "confession_id", confession.ID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":      true,
		"confessionId": confession.ID,
	})
}

// handleConfessionAction dispatches /api/confessions/{id}/reactions and
// /api/confessions/{id}/reports.
func (s *Server) handleConfessionAction(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/confessions/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	confessionID := parts[0]
	switch parts[1] {
	case "reactions":
		s.handleToggleReaction(w, r, userID, confessionID)
	case "reports":
		s.handleSubmitReport(w, r, userID, confessionID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleToggleReaction(w http.ResponseWriter, r *http.Request, userID, confessionID string) {
	if !s.allowRate(w, r, s.reactionLimiter, "too many reactions") {
		s.audit(r, "confessly.reaction", "rate_limited", "user_id", userID)
		return
	}
	var req reactionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	action, err := s.app.ToggleReaction(r.Context(), userID, confessionID, domain.ReactionKind(req.ReactionType))
	if err != nil {
		s.audit(r, "confessly.reaction", "fail", "user_id", userID, "reason", err.Error())
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"action":  string(action),
	})
}

func (s *Server) handleSubmitReport(w http.ResponseWriter, r *http.Request, userID, confessionID string) {
	if !s.allowRate(w, r, s.reportLimiter, "too many reports") {
		s.audit(r, "confessly.report", "rate_limited", "user_id", userID)
		return
	}
	var req reportRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.SubmitReport(r.Context(), userID, confessionID, req.Reason); err != nil {
		s.audit(r, "confessly.report", "fail", "user_id", userID, "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "confessly.report", "success", "user_id", userID, "confession_id", confessionID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleVerifyPurchase(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.purchaseLimiter, "too many purchase claims") {
		s.audit(r, "confessly.purchase", "rate_limited", "user_id", userID)
		return
	}
	var req app.VerifyPurchaseInput
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.VerifyPurchase(r.Context(), userID, req); err != nil {
		s.audit(r, "confessly.purchase", "fail", "user_id", userID, "product_id", req.ProductID, "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "confessly.purchase", "success", "user_id", userID, "product_id", req.ProductID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type reactionRequest struct {
	ReactionType string `json:"reactionType"`
}

type reportRequest struct {
	Reason string `json:"reason"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	msg := "internal error"
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	writeError(w, statusForKind(kind), msg)
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindInvalidArgument:
		return http.StatusBadRequest
	case apperr.KindFailedPrecondition:
		return http.StatusPreconditionFailed
	case apperr.KindResourceExhausted:
		return http.StatusTooManyRequests
	case apperr.KindAlreadyExists:
		return http.StatusConflict
	case apperr.KindPermissionDenied:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", s.clientIP(r),
		"request_id", util.RequestIDFromRequest(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + s.clientIP(r)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIP(r, s.trustedProxies)
}
