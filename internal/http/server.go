package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"helpdesk/internal/auth"
	"helpdesk/internal/config"
	"helpdesk/internal/crypto"
	"helpdesk/internal/model"
	"helpdesk/internal/repository"
)

type Server struct {
	cfg   config.Config
	store *repository.Store
	redis *redis.Client
}

func NewServer(cfg config.Config, store *repository.Store, redisClient *redis.Client) *Server {
	return &Server{
		cfg:   cfg,
		store: store,
		redis: redisClient,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.With(s.authMiddleware).Get("/user/profile", s.handleProfile)

		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.handleListAccounts)
			r.Post("/", s.handleCreateAccount)
			r.With(s.authMiddleware, s.requireAdmin).Delete("/{username}", s.handleDeleteAccount)
		})

		r.Route("/servers", func(r chi.Router) {
			r.With(s.authMiddleware).Get("/", s.handleListServers)
			r.With(s.authMiddleware, s.requireAdmin).Post("/", s.handleCreateServer)
			r.With(s.authMiddleware, s.requireAdmin).Put("/{serverID}", s.handleUpdateServer)
		})

		r.Route("/requests", func(r chi.Router) {
			r.Get("/", s.handleListRequests)
			r.With(s.authMiddleware).Post("/", s.handleCreateRequest)
			r.With(s.authMiddleware, s.requireAdmin).Put("/{requestID}", s.handleUpdateRequestStatus)
		})

		r.Route("/issues", func(r chi.Router) {
			r.With(s.authMiddleware).Get("/", s.handleListIssues)
			r.With(s.authMiddleware).Post("/", s.handleCreateIssue)
			r.With(s.authMiddleware, s.requireAdmin).Put("/{issueID}", s.handleUpdateIssueStatus)
		})

		r.Route("/allocations", func(r chi.Router) {
			r.With(s.authMiddleware).Get("/", s.handleListAllocations)
			r.With(s.authMiddleware, s.requireAdmin).Post("/", s.handleCreateAllocation)
		})
	})

	return r
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string         `json:"token"`
	Account accountSummary `json:"account"`
}

type accountSummary struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Phone     *string `json:"phone,omitempty"`
	Role      string  `json:"role"`
	CreatedOn int64   `json:"createdOn"`
}

func mapAccountSummary(account model.Account) accountSummary {
	return accountSummary{
		ID:        account.ID,
		Username:  account.Username,
		Name:      account.Name,
		Email:     account.Email,
		Phone:     account.Phone,
		Role:      account.Role,
		CreatedOn: account.CreatedAt.Unix(),
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Username = strings.TrimSpace(strings.ToLower(req.Username))
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	ip := clientIP(r)
	if s.loginBlocked(r.Context(), req.Username, ip) {
		writeError(w, http.StatusTooManyRequests, "too_many_attempts")
		return
	}

	account, err := s.store.GetAccountByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Same response as a wrong password so usernames cannot be
			// enumerated through the login route.
			s.recordLoginFailure(r.Context(), req.Username, ip)
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if err := crypto.CheckPassword(account.PasswordHash, req.Password); err != nil {
		s.recordLoginFailure(r.Context(), req.Username, ip)
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	s.clearLoginFailures(r.Context(), req.Username, ip)

	token, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, auth.Claims{
		AccountID: account.ID,
		Username:  account.Username,
		Role:      account.Role,
		Name:      account.Name,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:   token,
		Account: mapAccountSummary(account),
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": map[string]string{
			"id":       claims.AccountID,
			"username": claims.Username,
			"role":     claims.Role,
			"name":     claims.Name,
		},
	})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	limit := 20
	offset := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	role := strings.TrimSpace(strings.ToLower(r.URL.Query().Get("role")))

	accounts, err := s.store.ListAccounts(r.Context(), limit, offset, role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	summaries := make([]accountSummary, 0, len(accounts))
	for _, account := range accounts {
		summaries = append(summaries, mapAccountSummary(account))
	}
	writeJSON(w, http.StatusOK, summaries)
}

type createAccountRequest struct {
	Username string  `json:"username"`
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Role     string  `json:"role"`
	Password string  `json:"password"`
	Phone    *string `json:"phone,omitempty"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	req.Username = strings.TrimSpace(strings.ToLower(req.Username))
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Role = strings.TrimSpace(strings.ToLower(req.Role))
	if req.Username == "" || req.Name == "" || req.Email == "" || req.Role == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if !isValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "invalid_role")
		return
	}

	// Signup is open for standard roles; minting an admin account requires
	// an admin token.
	if req.Role == "admin" {
		claims, errCode := s.optionalClaims(r)
		if errCode != "" {
			writeError(w, http.StatusUnauthorized, errCode)
			return
		}
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		if claims.Role != "admin" {
			writeError(w, http.StatusForbidden, "admin_only")
			return
		}
	}

	if _, err := s.store.GetAccountByUsername(r.Context(), req.Username); err == nil {
		writeError(w, http.StatusConflict, "username_exists")
		return
	} else if !errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "password_hash_failed")
		return
	}

	account := model.Account{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		Role:         req.Role,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateAccountWithProfile(r.Context(), account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeError(w, http.StatusConflict, "username_exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, mapAccountSummary(account))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	username := strings.TrimSpace(strings.ToLower(chi.URLParam(r, "username")))
	if username == "" {
		writeError(w, http.StatusBadRequest, "missing_username")
		return
	}
	if username == claims.Username {
		writeError(w, http.StatusBadRequest, "cannot_delete_self")
		return
	}

	deleted, err := s.store.DeleteAccount(r.Context(), username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "user_not_found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type serverSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	Status    string `json:"status"`
	CPUCores  int    `json:"cpuCores"`
	MemoryGB  int    `json:"memoryGb"`
	StorageGB int    `json:"storageGb"`
	CreatedOn int64  `json:"createdOn"`
}

func mapServerSummary(server model.Server) serverSummary {
	return serverSummary{
		ID:        server.ID,
		Name:      server.Name,
		Location:  server.Location,
		Status:    server.Status,
		CPUCores:  server.CPUCores,
		MemoryGB:  server.MemoryGB,
		StorageGB: server.StorageGB,
		CreatedOn: server.CreatedAt.Unix(),
	}
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.store.ListServers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	summaries := make([]serverSummary, 0, len(servers))
	for _, server := range servers {
		summaries = append(summaries, mapServerSummary(server))
	}
	writeJSON(w, http.StatusOK, summaries)
}

type createServerRequest struct {
	Name      string `json:"name"`
	Location  string `json:"location"`
	Status    string `json:"status"`
	CPUCores  int    `json:"cpuCores"`
	MemoryGB  int    `json:"memoryGb"`
	StorageGB int    `json:"storageGb"`
}

func (s *Server) handleCreateServer(w http.ResponseWriter, r *http.Request) {
	var req createServerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Status = strings.TrimSpace(strings.ToLower(req.Status))
	if req.Name == "" || req.Location == "" || req.Status == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	server := model.Server{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Location:  req.Location,
		Status:    req.Status,
		CPUCores:  req.CPUCores,
		MemoryGB:  req.MemoryGB,
		StorageGB: req.StorageGB,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateServer(r.Context(), server); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeError(w, http.StatusConflict, "server_exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, mapServerSummary(server))
}

type updateServerRequest struct {
	Name     *string `json:"name,omitempty"`
	Location *string `json:"location,omitempty"`
	Status   *string `json:"status,omitempty"`
}

func (s *Server) handleUpdateServer(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "serverID")
	if serverID == "" {
		writeError(w, http.StatusBadRequest, "missing_server_id")
		return
	}

	var req updateServerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	update := repository.ServerUpdate{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name != "" {
			update.Name = &name
		}
	}
	if req.Location != nil {
		location := strings.TrimSpace(*req.Location)
		if location != "" {
			update.Location = &location
		}
	}
	if req.Status != nil {
		status := strings.TrimSpace(strings.ToLower(*req.Status))
		if status != "" {
			update.Status = &status
		}
	}

	server, err := s.store.UpdateServer(r.Context(), serverID, update)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "server_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, mapServerSummary(server))
}

type requestSummary struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	CreatedOn   int64  `json:"createdOn"`
	UpdatedOn   int64  `json:"updatedOn"`
}

func mapRequestSummary(request model.Request) requestSummary {
	return requestSummary{
		ID:          request.ID,
		Username:    request.Username,
		Type:        request.Type,
		Description: request.Description,
		Priority:    request.Priority,
		Status:      request.Status,
		CreatedOn:   request.CreatedAt.Unix(),
		UpdatedOn:   request.UpdatedAt.Unix(),
	}
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	limit := 100
	offset := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	status := strings.TrimSpace(strings.ToLower(r.URL.Query().Get("status")))

	requests, err := s.store.ListRequests(r.Context(), limit, offset, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	summaries := make([]requestSummary, 0, len(requests))
	for _, request := range requests {
		summaries = append(summaries, mapRequestSummary(request))
	}
	writeJSON(w, http.StatusOK, summaries)
}

type createRequestRequest struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req createRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	req.Type = strings.TrimSpace(req.Type)
	req.Priority = strings.TrimSpace(strings.ToLower(req.Priority))
	if req.Type == "" || req.Description == "" || req.Priority == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if !isValidPriority(req.Priority) {
		writeError(w, http.StatusBadRequest, "invalid_priority")
		return
	}

	now := time.Now().UTC()
	request := model.Request{
		ID:          uuid.NewString(),
		AccountID:   claims.AccountID,
		Username:    claims.Username,
		Type:        req.Type,
		Description: req.Description,
		Priority:    req.Priority,
		Status:      "pending",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateRequest(r.Context(), request); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, mapRequestSummary(request))
}

type updateRequestStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateRequestStatus(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	if requestID == "" {
		writeError(w, http.StatusBadRequest, "missing_request_id")
		return
	}

	var req updateRequestStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	status := strings.TrimSpace(strings.ToLower(req.Status))
	switch status {
	case "approved", "rejected", "pending":
	default:
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}

	updated, err := s.store.UpdateRequestStatus(r.Context(), requestID, status, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !updated {
		writeError(w, http.StatusNotFound, "request_not_found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

type issueSummary struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	ServerID    *string `json:"serverId,omitempty"`
	ServerName  *string `json:"serverName,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Priority    string  `json:"priority"`
	Status      string  `json:"status"`
	CreatedOn   int64   `json:"createdOn"`
}

func mapIssueSummary(issue model.Issue) issueSummary {
	return issueSummary{
		ID:          issue.ID,
		Username:    issue.Username,
		ServerID:    issue.ServerID,
		ServerName:  issue.ServerName,
		Title:       issue.Title,
		Description: issue.Description,
		Priority:    issue.Priority,
		Status:      issue.Status,
		CreatedOn:   issue.CreatedAt.Unix(),
	}
}

func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	// Admins see every issue; everyone else only their own.
	accountID := claims.AccountID
	if claims.Role == "admin" {
		accountID = ""
	}

	issues, err := s.store.ListIssues(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	summaries := make([]issueSummary, 0, len(issues))
	for _, issue := range issues {
		summaries = append(summaries, mapIssueSummary(issue))
	}
	writeJSON(w, http.StatusOK, summaries)
}

type createIssueRequest struct {
	ServerID    *string `json:"serverId,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Priority    string  `json:"priority"`
}

func (s *Server) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req createIssueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Priority = strings.TrimSpace(strings.ToLower(req.Priority))
	if req.Title == "" || req.Description == "" || req.Priority == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if !isValidPriority(req.Priority) {
		writeError(w, http.StatusBadRequest, "invalid_priority")
		return
	}

	issue := model.Issue{
		ID:          uuid.NewString(),
		AccountID:   claims.AccountID,
		Username:    claims.Username,
		ServerID:    req.ServerID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Status:      "open",
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateIssue(r.Context(), issue); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, mapIssueSummary(issue))
}

type updateIssueStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateIssueStatus(w http.ResponseWriter, r *http.Request) {
	issueID := chi.URLParam(r, "issueID")
	if issueID == "" {
		writeError(w, http.StatusBadRequest, "missing_issue_id")
		return
	}

	var req updateIssueStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	status := strings.TrimSpace(strings.ToLower(req.Status))
	switch status {
	case "open", "in_progress", "resolved":
	default:
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}

	updated, err := s.store.UpdateIssueStatus(r.Context(), issueID, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !updated {
		writeError(w, http.StatusNotFound, "issue_not_found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

type allocationSummary struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	ServerID     string `json:"serverId"`
	ServerName   string `json:"serverName"`
	ResourceType string `json:"resourceType"`
	StartsOn     int64  `json:"startsOn"`
	EndsOn       int64  `json:"endsOn"`
	Status       string `json:"status"`
}

func (s *Server) handleListAllocations(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	accountID := claims.AccountID
	if claims.Role == "admin" {
		accountID = ""
	}

	allocations, err := s.store.ListAllocations(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	summaries := make([]allocationSummary, 0, len(allocations))
	for _, allocation := range allocations {
		summaries = append(summaries, allocationSummary{
			ID:           allocation.ID,
			Username:     allocation.Username,
			ServerID:     allocation.ServerID,
			ServerName:   allocation.ServerName,
			ResourceType: allocation.ResourceType,
			StartsOn:     allocation.StartsAt.Unix(),
			EndsOn:       allocation.EndsAt.Unix(),
			Status:       allocation.Status,
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

type createAllocationRequest struct {
	Username     string `json:"username"`
	ServerID     string `json:"serverId"`
	ResourceType string `json:"resourceType"`
	StartsOn     int64  `json:"startsOn"`
	EndsOn       int64  `json:"endsOn"`
}

func (s *Server) handleCreateAllocation(w http.ResponseWriter, r *http.Request) {
	var req createAllocationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	req.Username = strings.TrimSpace(strings.ToLower(req.Username))
	if req.Username == "" || req.ServerID == "" || req.ResourceType == "" || req.StartsOn == 0 || req.EndsOn == 0 {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if req.EndsOn <= req.StartsOn {
		writeError(w, http.StatusBadRequest, "invalid_window")
		return
	}

	account, err := s.store.GetAccountByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	allocation := model.Allocation{
		ID:           uuid.NewString(),
		AccountID:    account.ID,
		Username:     account.Username,
		ServerID:     req.ServerID,
		ResourceType: req.ResourceType,
		StartsAt:     time.Unix(req.StartsOn, 0).UTC(),
		EndsAt:       time.Unix(req.EndsOn, 0).UTC(),
		Status:       "active",
	}
	if err := s.store.CreateAllocation(r.Context(), allocation); err != nil {
		writeError(w, http.StatusBadRequest, "allocation_create_failed")
		return
	}

	writeJSON(w, http.StatusCreated, allocationSummary{
		ID:           allocation.ID,
		Username:     allocation.Username,
		ServerID:     allocation.ServerID,
		ServerName:   allocation.ServerName,
		ResourceType: allocation.ResourceType,
		StartsOn:     allocation.StartsAt.Unix(),
		EndsOn:       allocation.EndsAt.Unix(),
		Status:       allocation.Status,
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "token_expired")
				return
			}
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || claims.Role != "admin" {
			writeError(w, http.StatusForbidden, "admin_only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// optionalClaims parses the bearer token when one is attached. A missing
// header is not an error; a bad token is.
func (s *Server) optionalClaims(r *http.Request) (*auth.Claims, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ""
	}
	token := bearerToken(header)
	if token == "" {
		return nil, "missing_token"
	}
	claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, "token_expired"
		}
		return nil, "invalid_token"
	}
	return claims, ""
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func isValidRole(role string) bool {
	switch role {
	case "admin", "student", "staff":
		return true
	default:
		return false
	}
}

func isValidPriority(priority string) bool {
	switch priority {
	case "low", "medium", "high":
		return true
	default:
		return false
	}
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
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

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return ""
}
