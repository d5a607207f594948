// Package http exposes the REST surface: session auth, profile and device
// management, QR issuance, and QR redemption.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ohwonsuk/lockmoment-sub001/internal/auth"
	"github.com/ohwonsuk/lockmoment-sub001/internal/config"
	"github.com/ohwonsuk/lockmoment-sub001/internal/crypto"
	"github.com/ohwonsuk/lockmoment-sub001/internal/errs"
	"github.com/ohwonsuk/lockmoment-sub001/internal/model"
	"github.com/ohwonsuk/lockmoment-sub001/internal/qrsign"
	"github.com/ohwonsuk/lockmoment-sub001/internal/repository"
	"github.com/ohwonsuk/lockmoment-sub001/internal/service"
)

type Server struct {
	cfg      config.Config
	repo     repository.Querier
	txr      repository.TxRunner
	issuer   *service.Issuer
	scanner  *service.Scanner
	sessions *service.SessionMinter
	ids      service.IDGenerator
	logger   *zap.Logger
}

func NewServer(cfg config.Config, repo repository.Querier, txr repository.TxRunner, issuer *service.Issuer, scanner *service.Scanner, sessions *service.SessionMinter, ids service.IDGenerator, logger *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		repo:     repo,
		txr:      txr,
		issuer:   issuer,
		scanner:  scanner,
		sessions: sessions,
		ids:      ids,
		logger:   logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/anonymous", s.handleAnonymous)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)

	r.With(s.authMiddleware).Get("/me", s.handleGetMe)
	r.With(s.authMiddleware).Put("/me", s.handleUpdateMe)
	r.With(s.authMiddleware).Post("/me/pin", s.handleSetPin)
	r.With(s.authMiddleware).Post("/me/pin/verify", s.handleVerifyPin)

	r.With(s.authMiddleware).Post("/devices", s.handleRegisterDevice)
	r.With(s.authMiddleware).Get("/children", s.handleListChildren)

	r.With(s.authMiddleware).Post("/qr/issue", s.handleIssue)
	r.With(s.authMiddleware).Post("/qr/link/issue", s.handleIssueLink)
	r.With(s.optionalAuth).Post("/qr/scan", s.handleScan)

	return r
}

type anonymousRequest struct {
	DeviceUUID  string            `json:"deviceUuid"`
	Platform    string            `json:"platform"`
	Permissions map[string]string `json:"permissions,omitempty"`
}

type sessionResponse struct {
	UserID       string `json:"userId"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// handleAnonymous bootstraps a device-bound anonymous principal. If the
// device uuid is already registered the existing owner is reused, so
// reinstalls do not mint duplicate accounts.
func (s *Server) handleAnonymous(w http.ResponseWriter, r *http.Request) {
	var req anonymousRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.DeviceUUID = strings.TrimSpace(req.DeviceUUID)
	if req.DeviceUUID == "" {
		writeError(w, http.StatusBadRequest, "missing_device_uuid")
		return
	}
	if req.Permissions == nil {
		req.Permissions = map[string]string{}
	}

	now := time.Now().UTC()
	var userID string
	err := s.txr.InTx(r.Context(), func(q repository.Querier) error {
		existing, err := q.GetDeviceByIdentifier(r.Context(), req.DeviceUUID)
		if err == nil {
			userID = existing.UserID
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		user := model.User{
			ID:        s.ids.NewID(),
			Provider:  model.ProviderAnonymous,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := q.CreateUser(r.Context(), user); err != nil {
			return err
		}
		device := model.Device{
			ID:          s.ids.NewID(),
			UserID:      user.ID,
			DeviceUUID:  req.DeviceUUID,
			Platform:    req.Platform,
			Permissions: req.Permissions,
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := q.CreateDevice(r.Context(), device); err != nil {
			return err
		}
		userID = user.ID
		return nil
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	role, err := s.repo.GetPrimaryRole(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	session, err := s.sessions.Mint(userID, role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:       userID,
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
	})
}

type loginRequest struct {
	Provider    string  `json:"provider"`
	ProviderSub string  `json:"providerSub"`
	Name        *string `json:"name,omitempty"`
	Phone       *string `json:"phone,omitempty"`
}

// handleLogin resolves or creates the principal behind a social identity.
// Verification of the provider assertion happens upstream at the gateway;
// this endpoint trusts the (provider, sub) pair it receives.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	provider := model.AuthProvider(strings.TrimSpace(strings.ToLower(req.Provider)))
	if provider != model.ProviderGoogle && provider != model.ProviderApple {
		writeError(w, http.StatusBadRequest, "unsupported_provider")
		return
	}
	if strings.TrimSpace(req.ProviderSub) == "" {
		writeError(w, http.StatusBadRequest, "missing_provider_sub")
		return
	}

	now := time.Now().UTC()
	user, err := s.repo.GetUserByProviderSub(r.Context(), provider, req.ProviderSub)
	if errors.Is(err, pgx.ErrNoRows) {
		user = model.User{
			ID:          s.ids.NewID(),
			Provider:    provider,
			ProviderSub: &req.ProviderSub,
			Name:        req.Name,
			Phone:       req.Phone,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err = s.repo.CreateUser(r.Context(), user)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	role, err := s.repo.GetPrimaryRole(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	session, err := s.sessions.Mint(user.ID, role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:       user.ID,
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "missing_refresh_token")
		return
	}

	claims, err := auth.ParseToken(s.cfg.JWTSecret, req.RefreshToken, auth.TypeRefresh)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_refresh_token")
		return
	}
	if _, err := s.repo.GetUserByID(r.Context(), claims.UserID); err != nil {
		writeError(w, http.StatusUnauthorized, "user_not_found")
		return
	}
	role, err := s.repo.GetPrimaryRole(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	// Refresh rotates only the access token; the presented refresh token
	// stays valid until its own expiry.
	access, err := s.sessions.MintAccess(claims.UserID, role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:       claims.UserID,
		AccessToken:  access,
		RefreshToken: req.RefreshToken,
	})
}

type userSummary struct {
	ID              string  `json:"id"`
	Provider        string  `json:"provider"`
	Name            *string `json:"name,omitempty"`
	Phone           *string `json:"phone,omitempty"`
	BirthYear       *int    `json:"birthYear,omitempty"`
	Role            string  `json:"role,omitempty"`
	ProfileComplete bool    `json:"profileComplete"`
	HasPin          bool    `json:"hasPin"`
}

func (s *Server) userSummary(ctx context.Context, userID string) (userSummary, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return userSummary{}, err
	}
	role, err := s.repo.GetPrimaryRole(ctx, userID)
	if err != nil {
		return userSummary{}, err
	}
	return userSummary{
		ID:              user.ID,
		Provider:        string(user.Provider),
		Name:            user.Name,
		Phone:           user.Phone,
		BirthYear:       user.BirthYear,
		Role:            role,
		ProfileComplete: user.ProfileComplete(),
		HasPin:          user.PinHash != nil,
	}, nil
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	summary, err := s.userSummary(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type updateMeRequest struct {
	Phone     *string `json:"phone,omitempty"`
	Name      *string `json:"name,omitempty"`
	BirthYear *int    `json:"birthYear,omitempty"`
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req updateMeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Phone == nil && req.Name == nil && req.BirthYear == nil {
		writeError(w, http.StatusBadRequest, "empty_update")
		return
	}

	if err := s.repo.UpdateProfile(r.Context(), claims.UserID, req.Phone, req.Name, req.BirthYear, time.Now().UTC()); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	summary, err := s.userSummary(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type pinRequest struct {
	Pin string `json:"pin"`
}

func (s *Server) handleSetPin(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req pinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if len(req.Pin) < 4 {
		writeError(w, http.StatusBadRequest, "pin_too_short")
		return
	}

	hash, err := crypto.HashPin(req.Pin)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if err := s.repo.SetPinHash(r.Context(), claims.UserID, hash, time.Now().UTC()); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVerifyPin(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req pinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	user, err := s.repo.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user_not_found")
		return
	}
	if user.PinHash == nil {
		writeError(w, http.StatusNotFound, "pin_not_set")
		return
	}
	if err := crypto.CheckPin(*user.PinHash, req.Pin); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_pin")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

type registerDeviceRequest struct {
	DeviceUUID  string            `json:"deviceUuid"`
	Platform    string            `json:"platform"`
	Permissions map[string]string `json:"permissions,omitempty"`
}

type deviceResponse struct {
	ID         string `json:"id"`
	DeviceUUID string `json:"deviceUuid"`
	Platform   string `json:"platform"`
	Active     bool   `json:"active"`
}

// handleRegisterDevice binds a device to the caller. A uuid that already
// exists is repointed, which is how a child's phone follows the account
// through reinstalls.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req registerDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.DeviceUUID = strings.TrimSpace(req.DeviceUUID)
	if req.DeviceUUID == "" {
		writeError(w, http.StatusBadRequest, "missing_device_uuid")
		return
	}
	if req.Permissions == nil {
		req.Permissions = map[string]string{}
	}

	now := time.Now().UTC()
	device, err := s.repo.UpsertDeviceByUUID(r.Context(), model.Device{
		ID:          s.ids.NewID(),
		UserID:      claims.UserID,
		DeviceUUID:  req.DeviceUUID,
		Platform:    req.Platform,
		Permissions: req.Permissions,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, deviceResponse{
		ID:         device.ID,
		DeviceUUID: device.DeviceUUID,
		Platform:   device.Platform,
		Active:     device.Active,
	})
}

type childSummary struct {
	ChildID   string  `json:"childId"`
	Nickname  *string `json:"nickname,omitempty"`
	Name      *string `json:"name,omitempty"`
	BirthYear *int    `json:"birthYear,omitempty"`
}

func (s *Server) handleListChildren(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	relations, err := s.repo.ListRelationsByParent(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	children := make([]childSummary, 0, len(relations))
	for _, rel := range relations {
		summary := childSummary{ChildID: rel.ChildID, Nickname: rel.Nickname}
		if child, err := s.repo.GetUserByID(r.Context(), rel.ChildID); err == nil {
			summary.Name = child.Name
			summary.BirthYear = child.BirthYear
		}
		children = append(children, summary)
	}
	writeJSON(w, http.StatusOK, children)
}

type issueRequest struct {
	Purpose    string        `json:"purpose"`
	TargetType *string       `json:"targetType,omitempty"`
	TargetID   *string       `json:"targetId,omitempty"`
	PresetID   *string       `json:"presetId,omitempty"`
	Lock       *lockSpec     `json:"lock,omitempty"`
	Schedule   *scheduleSpec `json:"schedule,omitempty"`
	MaxUses    *int          `json:"maxUses,omitempty"`
}

type lockSpec struct {
	Kind              *string  `json:"kind,omitempty"`
	DurationMinutes   *int     `json:"durationMinutes,omitempty"`
	AllowedApps       []string `json:"allowedApps,omitempty"`
	BlockedApps       []string `json:"blockedApps,omitempty"`
	BlockedCategories []string `json:"blockedCategories,omitempty"`
}

type scheduleSpec struct {
	Start string   `json:"start"`
	End   string   `json:"end"`
	Days  []string `json:"days,omitempty"`
}

type issueResponse struct {
	Success bool   `json:"success"`
	QRID    string `json:"qrId"`
	Exp     int64  `json:"exp"`
	Sig     string `json:"sig"`
	Payload string `json:"payload"`
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req issueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	purpose := model.TokenPurpose(req.Purpose)
	switch purpose {
	case model.PurposeDeviceLock, model.PurposeAttendance, model.PurposeLockAttend:
	default:
		writeError(w, http.StatusBadRequest, "invalid_purpose")
		return
	}
	if req.MaxUses != nil && *req.MaxUses < 1 {
		writeError(w, http.StatusBadRequest, "invalid_max_uses")
		return
	}
	if req.Schedule != nil && (req.Schedule.Start == "" || req.Schedule.End == "") {
		writeError(w, http.StatusBadRequest, "invalid_schedule")
		return
	}

	svcReq := service.IssueRequest{
		Purpose:    purpose,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		PresetID:   req.PresetID,
		MaxUses:    req.MaxUses,
	}
	if req.Lock != nil {
		spec := service.LockSpec{
			DurationMinutes:   req.Lock.DurationMinutes,
			AllowedApps:       req.Lock.AllowedApps,
			BlockedApps:       req.Lock.BlockedApps,
			BlockedCategories: req.Lock.BlockedCategories,
		}
		if req.Lock.Kind != nil {
			kind := model.LockKind(*req.Lock.Kind)
			if kind != model.LockKindFull && kind != model.LockKindApps {
				writeError(w, http.StatusBadRequest, "invalid_lock_kind")
				return
			}
			spec.Kind = &kind
		}
		svcReq.Lock = &spec
	}
	if req.Schedule != nil {
		svcReq.Schedule = &service.ScheduleSpec{
			Start: req.Schedule.Start,
			End:   req.Schedule.End,
			Days:  req.Schedule.Days,
		}
	}

	issued, err := s.issuer.IssuePolicyToken(r.Context(), claims.UserID, svcReq)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	tokensIssued.WithLabelValues(string(purpose)).Inc()
	writeJSON(w, http.StatusOK, issueResponse{
		Success: true,
		QRID:    issued.QRID,
		Exp:     issued.Exp,
		Sig:     issued.Sig,
		Payload: issued.Payload,
	})
}

type issueLinkRequest struct {
	Type      string `json:"type"`
	ChildName string `json:"childName,omitempty"`
	BirthYear int    `json:"birthYear,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type issueLinkResponse struct {
	Success bool   `json:"success"`
	QRID    string `json:"qrId"`
	Exp     int64  `json:"exp"`
	Payload string `json:"payload"`
}

func (s *Server) handleIssueLink(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req issueLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	kind := qrsign.LinkKind(req.Type)
	if kind != qrsign.KindChildRegistration && kind != qrsign.KindParentLink {
		writeError(w, http.StatusBadRequest, "invalid_link_type")
		return
	}

	signed, raw, err := s.issuer.IssueLinkToken(r.Context(), claims.UserID, service.LinkRequest{
		Kind:      kind,
		ChildName: req.ChildName,
		BirthYear: req.BirthYear,
		Phone:     req.Phone,
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	tokensIssued.WithLabelValues(string(kind)).Inc()
	writeJSON(w, http.StatusOK, issueLinkResponse{
		Success: true,
		QRID:    signed.QRID,
		Exp:     signed.Exp,
		Payload: raw,
	})
}

type scanRequest struct {
	Payload    string `json:"payload"`
	DeviceUUID string `json:"deviceUuid"`
}

type registrationInfo struct {
	UserID       string  `json:"userId"`
	Kind         string  `json:"kind"`
	Transferred  bool    `json:"transferred"`
	AccessToken  *string `json:"accessToken,omitempty"`
	RefreshToken *string `json:"refreshToken,omitempty"`
}

type scanResponse struct {
	Success          bool                  `json:"success"`
	Purpose          string                `json:"purpose,omitempty"`
	LockPolicy       *service.PolicyResult `json:"lockPolicy,omitempty"`
	RegistrationInfo *registrationInfo     `json:"registrationInfo,omitempty"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Payload == "" || strings.TrimSpace(req.DeviceUUID) == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	var authedUserID *string
	if claims := claimsFromContext(r.Context()); claims != nil {
		authedUserID = &claims.UserID
	}

	result, err := s.scanner.Scan(r.Context(), authedUserID, req.Payload, strings.TrimSpace(req.DeviceUUID))
	if err != nil {
		scansTotal.WithLabelValues(outcomeLabel(err)).Inc()
		s.writeFailure(w, r, err)
		return
	}
	scansTotal.WithLabelValues("ok").Inc()

	resp := scanResponse{Success: true}
	if result.Registration != nil {
		info := registrationInfo{
			UserID:      result.Registration.UserID,
			Kind:        result.Registration.Kind,
			Transferred: result.Registration.Transferred,
		}
		if session := result.Registration.Session; session != nil {
			info.AccessToken = &session.AccessToken
			info.RefreshToken = &session.RefreshToken
		}
		resp.RegistrationInfo = &info
	} else {
		resp.Purpose = string(result.Purpose)
		resp.LockPolicy = result.LockPolicy
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeFailure maps service errors onto the wire contract. Schedule
// violations carry the human-readable reason; everything else uses a stable
// short code.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var schedErr *errs.ScheduleError
	if errors.As(err, &schedErr) {
		writeError(w, http.StatusForbidden, schedErr.Reason)
		return
	}

	switch {
	case errors.Is(err, errs.ErrMalformedPayload):
		writeError(w, http.StatusBadRequest, "invalid_payload")
	case errors.Is(err, errs.ErrExpired):
		writeError(w, http.StatusBadRequest, "expired_token")
	case errors.Is(err, errs.ErrInvalidSignature):
		writeError(w, http.StatusUnauthorized, "invalid_signature")
	case errors.Is(err, errs.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, errs.ErrScheduleViolation):
		writeError(w, http.StatusForbidden, "outside_schedule")
	case errors.Is(err, errs.ErrUseLimitExceeded):
		writeError(w, http.StatusForbidden, "use_limit_exceeded")
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, errs.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already_exists")
	default:
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, errs.ErrMalformedPayload):
		return "malformed"
	case errors.Is(err, errs.ErrExpired):
		return "expired"
	case errors.Is(err, errs.ErrInvalidSignature):
		return "bad_signature"
	case errors.Is(err, errs.ErrScheduleViolation):
		return "outside_schedule"
	case errors.Is(err, errs.ErrUseLimitExceeded):
		return "use_limit"
	case errors.Is(err, errs.ErrNotFound):
		return "not_found"
	case errors.Is(err, errs.ErrAlreadyExists):
		return "conflict"
	case errors.Is(err, errs.ErrUnauthenticated):
		return "unauthenticated"
	default:
		return "error"
	}
}

// authMiddleware requires a valid access token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, token, auth.TypeAccess)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// optionalAuth attaches claims when a bearer token is present. A token that
// is present but invalid is still rejected; absence is fine.
func (s *Server) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, token, auth.TypeAccess)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "message": message})
}
