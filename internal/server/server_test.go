package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	authdomain "github.com/openatrium/atrium/internal/auth/domain"
	"github.com/openatrium/atrium/internal/auth/session"
	communitydomain "github.com/openatrium/atrium/internal/community/domain"
	"github.com/openatrium/atrium/internal/config"
	institutiondomain "github.com/openatrium/atrium/internal/institution/domain"
	invitecodedomain "github.com/openatrium/atrium/internal/invitecode/domain"
	joindomain "github.com/openatrium/atrium/internal/join/domain"
	messagedomain "github.com/openatrium/atrium/internal/message/domain"
	"github.com/openatrium/atrium/pkg/db/pagination"
	"gorm.io/gorm"
)

var errNotStubbed = errors.New("not stubbed")

type fakeAuthService struct {
	signupFn       func(ctx context.Context, req authdomain.SignupRequest) (*authdomain.User, error)
	loginFn        func(ctx context.Context, req authdomain.LoginRequest) (*authdomain.LoginResult, error)
	logoutFn       func(ctx context.Context, rawToken string) error
	authenticateFn func(ctx context.Context, rawToken string) (*authdomain.Session, error)
	userByIDFn     func(ctx context.Context, id snowflake.ID) (*authdomain.User, error)
}

func (f *fakeAuthService) Signup(ctx context.Context, req authdomain.SignupRequest) (*authdomain.User, error) {
	if f.signupFn == nil {
		return nil, errNotStubbed
	}
	return f.signupFn(ctx, req)
}

func (f *fakeAuthService) Login(ctx context.Context, req authdomain.LoginRequest) (*authdomain.LoginResult, error) {
	if f.loginFn == nil {
		return nil, errNotStubbed
	}
	return f.loginFn(ctx, req)
}

func (f *fakeAuthService) Logout(ctx context.Context, rawToken string) error {
	if f.logoutFn == nil {
		return errNotStubbed
	}
	return f.logoutFn(ctx, rawToken)
}

func (f *fakeAuthService) Authenticate(ctx context.Context, rawToken string) (*authdomain.Session, error) {
	if f.authenticateFn == nil {
		return nil, authdomain.ErrInvalidSession
	}
	return f.authenticateFn(ctx, rawToken)
}

func (f *fakeAuthService) UserByID(ctx context.Context, id snowflake.ID) (*authdomain.User, error) {
	if f.userByIDFn == nil {
		return nil, errNotStubbed
	}
	return f.userByIDFn(ctx, id)
}

type fakeCommunityService struct {
	createFn        func(ctx context.Context, userID snowflake.ID, req communitydomain.CreateCommunityRequest) (*communitydomain.CommunityResponse, error)
	updateRoleFn    func(ctx context.Context, actorID snowflake.ID, communityID string, req communitydomain.UpdateRoleRequest) (*communitydomain.RoleState, error)
	performActionFn func(ctx context.Context, actorID snowflake.ID, communityID string, action communitydomain.Action) error
}

func (f *fakeCommunityService) Create(ctx context.Context, userID snowflake.ID, req communitydomain.CreateCommunityRequest) (*communitydomain.CommunityResponse, error) {
	if f.createFn == nil {
		return nil, errNotStubbed
	}
	return f.createFn(ctx, userID, req)
}

func (f *fakeCommunityService) Get(context.Context, string) (*communitydomain.CommunityResponse, error) {
	return nil, errNotStubbed
}

func (f *fakeCommunityService) ListMine(context.Context, snowflake.ID) ([]communitydomain.ListItem, error) {
	return nil, errNotStubbed
}

func (f *fakeCommunityService) ListDiscoverable(context.Context, snowflake.ID) ([]communitydomain.ListItem, error) {
	return nil, errNotStubbed
}

func (f *fakeCommunityService) UpdateInfo(context.Context, snowflake.ID, string, communitydomain.UpdateCommunityRequest) error {
	return errNotStubbed
}

func (f *fakeCommunityService) RoleState(context.Context, string) (*communitydomain.RoleState, error) {
	return nil, errNotStubbed
}

func (f *fakeCommunityService) UpdateRole(ctx context.Context, actorID snowflake.ID, communityID string, req communitydomain.UpdateRoleRequest) (*communitydomain.RoleState, error) {
	if f.updateRoleFn == nil {
		return nil, errNotStubbed
	}
	return f.updateRoleFn(ctx, actorID, communityID, req)
}

func (f *fakeCommunityService) SetRole(context.Context, snowflake.ID, snowflake.ID, string) error {
	return errNotStubbed
}

func (f *fakeCommunityService) SetRoleTx(context.Context, *gorm.DB, snowflake.ID, snowflake.ID, string) error {
	return errNotStubbed
}

func (f *fakeCommunityService) PerformAction(ctx context.Context, actorID snowflake.ID, communityID string, action communitydomain.Action) error {
	if f.performActionFn == nil {
		return errNotStubbed
	}
	return f.performActionFn(ctx, actorID, communityID, action)
}

func (f *fakeCommunityService) IsAdmin(context.Context, snowflake.ID, snowflake.ID) (bool, error) {
	return false, errNotStubbed
}

type fakeJoinService struct {
	joinWithCodeFn   func(ctx context.Context, userID snowflake.ID, code string) (*joindomain.JoinResult, error)
	resolveRequestFn func(ctx context.Context, actorID snowflake.ID, communityID string, req joindomain.ResolveRequest) error
}

func (f *fakeJoinService) JoinPublic(context.Context, snowflake.ID, string) error {
	return errNotStubbed
}

func (f *fakeJoinService) RequestJoin(context.Context, snowflake.ID, string, string) error {
	return errNotStubbed
}

func (f *fakeJoinService) ListPending(context.Context, snowflake.ID, string) ([]joindomain.RequestView, error) {
	return nil, errNotStubbed
}

func (f *fakeJoinService) ResolveRequest(ctx context.Context, actorID snowflake.ID, communityID string, req joindomain.ResolveRequest) error {
	if f.resolveRequestFn == nil {
		return errNotStubbed
	}
	return f.resolveRequestFn(ctx, actorID, communityID, req)
}

func (f *fakeJoinService) JoinWithCode(ctx context.Context, userID snowflake.ID, code string) (*joindomain.JoinResult, error) {
	if f.joinWithCodeFn == nil {
		return nil, errNotStubbed
	}
	return f.joinWithCodeFn(ctx, userID, code)
}

type fakeInviteService struct{}

func (fakeInviteService) GetCode(context.Context, snowflake.ID, string, string) (*invitecodedomain.CodeResponse, error) {
	return nil, errNotStubbed
}

func (fakeInviteService) RotateCode(context.Context, snowflake.ID, string, string) (*invitecodedomain.CodeResponse, error) {
	return nil, errNotStubbed
}

func (fakeInviteService) Resolve(context.Context, string) (*invitecodedomain.InviteCode, error) {
	return nil, errNotStubbed
}

type fakeMessageService struct{}

func (fakeMessageService) Post(context.Context, snowflake.ID, string, string) (*messagedomain.MessageView, error) {
	return nil, errNotStubbed
}

func (fakeMessageService) List(context.Context, snowflake.ID, string, pagination.Pagination) (*messagedomain.MessagePage, error) {
	return nil, errNotStubbed
}

type fakeInstitutionService struct{}

func (fakeInstitutionService) Create(context.Context, institutiondomain.CreateInstitutionRequest) (*institutiondomain.InstitutionResponse, error) {
	return nil, errNotStubbed
}

func (fakeInstitutionService) Get(context.Context, string) (*institutiondomain.InstitutionResponse, error) {
	return nil, errNotStubbed
}

func (fakeInstitutionService) JoinByCode(context.Context, snowflake.ID, string) (*institutiondomain.JoinInstitutionResult, error) {
	return nil, errNotStubbed
}

func (fakeInstitutionService) ListCodes(context.Context, snowflake.ID, string) ([]institutiondomain.InstitutionCode, error) {
	return nil, errNotStubbed
}

type fakes struct {
	auth      *fakeAuthService
	community *fakeCommunityService
	join      *fakeJoinService
}

func newTestServer(t *testing.T) (*Server, *gin.Engine, *fakes) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fakes{
		auth:      &fakeAuthService{},
		community: &fakeCommunityService{},
		join:      &fakeJoinService{},
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	srv := NewServer(ServerParams{
		Gin:            engine,
		Cfg:            config.Config{},
		Authsvc:        f.auth,
		Sessions:       session.NewManager(config.Config{}),
		GenID:          node,
		InstitutionSvc: fakeInstitutionService{},
		CommunitySvc:   f.community,
		InviteSvc:      fakeInviteService{},
		JoinSvc:        f.join,
		MessageSvc:     fakeMessageService{},
	})
	return srv, engine, f
}

// loggedIn stubs Authenticate so requests carrying the session cookie run as
// the given user.
func loggedIn(f *fakes, userID snowflake.ID) {
	f.auth.authenticateFn = func(_ context.Context, rawToken string) (*authdomain.Session, error) {
		if rawToken != "test-token" {
			return nil, authdomain.ErrInvalidSession
		}
		return &authdomain.Session{UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
}

func doJSON(engine *gin.Engine, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: "test-token"})
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func errorType(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return resp.Error.Type
}

func TestSignupHandler(t *testing.T) {
	_, engine, f := newTestServer(t)

	f.auth.signupFn = func(_ context.Context, req authdomain.SignupRequest) (*authdomain.User, error) {
		return &authdomain.User{ID: 42, Username: req.Username, Email: req.Email, Name: req.Name}, nil
	}

	w := doJSON(engine, http.MethodPost, "/api/auth/signup", gin.H{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "correct horse",
	}, false)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (%s)", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"username":"alice"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestSignupHandlerBadJSON(t *testing.T) {
	_, engine, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if got := errorType(t, w); got != "validation_error" {
		t.Fatalf("error type = %q, want validation_error", got)
	}
}

func TestLoginSetsSessionCookie(t *testing.T) {
	_, engine, f := newTestServer(t)

	f.auth.loginFn = func(_ context.Context, req authdomain.LoginRequest) (*authdomain.LoginResult, error) {
		return &authdomain.LoginResult{
			User:      &authdomain.UserView{ID: "42", Username: req.Username},
			RawToken:  "test-token",
			ExpiresAt: time.Now().Add(time.Hour),
		}, nil
	}

	w := doJSON(engine, http.MethodPost, "/api/auth/login", gin.H{
		"username": "alice",
		"password": "correct horse",
	}, false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", w.Code, w.Body.String())
	}

	var found bool
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == session.DefaultCookieName && cookie.Value == "test-token" {
			found = true
			if !cookie.HttpOnly {
				t.Fatal("session cookie must be http only")
			}
		}
	}
	if !found {
		t.Fatal("expected a session cookie on login")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	_, engine, f := newTestServer(t)

	f.auth.loginFn = func(context.Context, authdomain.LoginRequest) (*authdomain.LoginResult, error) {
		return nil, authdomain.ErrInvalidCredentials
	}

	w := doJSON(engine, http.MethodPost, "/api/auth/login", gin.H{
		"username": "alice",
		"password": "wrong",
	}, false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if got := errorType(t, w); got != "unauthorized" {
		t.Fatalf("error type = %q, want unauthorized", got)
	}
}

func TestAuthRequired(t *testing.T) {
	_, engine, f := newTestServer(t)

	w := doJSON(engine, http.MethodGet, "/api/auth/me", nil, false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status without cookie = %d, want 401", w.Code)
	}

	userID := snowflake.ID(42)
	loggedIn(f, userID)
	f.auth.userByIDFn = func(_ context.Context, id snowflake.ID) (*authdomain.User, error) {
		if id != userID {
			t.Fatalf("UserByID called with %v, want %v", id, userID)
		}
		return &authdomain.User{ID: id, Username: "alice"}, nil
	}

	w = doJSON(engine, http.MethodGet, "/api/auth/me", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status with cookie = %d, want 200 (%s)", w.Code, w.Body.String())
	}
}

func TestPerformCommunityActionStatuses(t *testing.T) {
	_, engine, f := newTestServer(t)
	loggedIn(f, 42)

	cases := []struct {
		action     string
		serviceErr error
		wantStatus int
		wantType   string
	}{
		{"delete", communitydomain.ErrProtectedCommunity, http.StatusUnprocessableEntity, "protected_community"},
		{"leave", communitydomain.ErrLastAdmin, http.StatusUnprocessableEntity, "invalid_transition"},
		{"leave", communitydomain.ErrMemberNotFound, http.StatusNotFound, "not_found"},
		{"clear-chat", communitydomain.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"clear-chat", nil, http.StatusOK, ""},
	}
	for _, tc := range cases {
		f.community.performActionFn = func(context.Context, snowflake.ID, string, communitydomain.Action) error {
			return tc.serviceErr
		}
		w := doJSON(engine, http.MethodPost, "/api/communities/123/actions", gin.H{"action": tc.action}, true)
		if w.Code != tc.wantStatus {
			t.Fatalf("action %q with %v: status = %d, want %d", tc.action, tc.serviceErr, w.Code, tc.wantStatus)
		}
		if tc.wantType != "" {
			if got := errorType(t, w); got != tc.wantType {
				t.Fatalf("action %q: error type = %q, want %q", tc.action, got, tc.wantType)
			}
		}
	}
}

func TestPerformCommunityActionRejectsUnknown(t *testing.T) {
	_, engine, f := newTestServer(t)
	loggedIn(f, 42)

	w := doJSON(engine, http.MethodPost, "/api/communities/123/actions", gin.H{"action": "explode"}, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if got := errorType(t, w); got != "validation_error" {
		t.Fatalf("error type = %q, want validation_error", got)
	}
}

func TestJoinByCodeConflict(t *testing.T) {
	_, engine, f := newTestServer(t)
	loggedIn(f, 42)

	f.join.joinWithCodeFn = func(context.Context, snowflake.ID, string) (*joindomain.JoinResult, error) {
		return nil, communitydomain.ErrAlreadyMember
	}

	w := doJSON(engine, http.MethodPost, "/api/communities/join", gin.H{"code": "abc123"}, true)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if got := errorType(t, w); got != "conflict" {
		t.Fatalf("error type = %q, want conflict", got)
	}
}

func TestResolveJoinRequestDecision(t *testing.T) {
	_, engine, f := newTestServer(t)
	loggedIn(f, 42)

	var captured *joindomain.ResolveRequest
	f.join.resolveRequestFn = func(_ context.Context, _ snowflake.ID, _ string, req joindomain.ResolveRequest) error {
		captured = &req
		return nil
	}

	// A missing or unknown decision must not reach the service; denial
	// deletes the request, so nothing may be defaulted.
	for _, body := range []gin.H{
		{"user_id": "77"},
		{"user_id": "77", "decision": "maybe"},
	} {
		captured = nil
		w := doJSON(engine, http.MethodPatch, "/api/communities/123/requests", body, true)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("decision %v: status = %d, want 400", body["decision"], w.Code)
		}
		if got := errorType(t, w); got != "validation_error" {
			t.Fatalf("decision %v: error type = %q, want validation_error", body["decision"], got)
		}
		if captured != nil {
			t.Fatalf("decision %v: service called with %+v", body["decision"], *captured)
		}
	}

	w := doJSON(engine, http.MethodPatch, "/api/communities/123/requests", gin.H{"user_id": "77", "decision": "deny"}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("deny: status = %d, want 200", w.Code)
	}
	if captured == nil || captured.Approve {
		t.Fatalf("deny: captured = %+v, want Approve=false", captured)
	}

	w = doJSON(engine, http.MethodPatch, "/api/communities/123/requests", gin.H{"user_id": "77", "decision": "Approve"}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("approve: status = %d, want 200", w.Code)
	}
	if captured == nil || !captured.Approve {
		t.Fatalf("approve: captured = %+v, want Approve=true", captured)
	}
}

func TestMapErrorTaxonomy(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
	}{
		{communitydomain.ErrInvalidCommunity, http.StatusBadRequest},
		{authdomain.ErrSessionExpired, http.StatusUnauthorized},
		{institutiondomain.ErrInvalidSecret, http.StatusForbidden},
		{joindomain.ErrRequestNotFound, http.StatusNotFound},
		{gorm.ErrRecordNotFound, http.StatusNotFound},
		{invitecodedomain.ErrInvalidCode, http.StatusConflict},
		{joindomain.ErrDuplicateRequest, http.StatusConflict},
		{institutiondomain.ErrAlreadyEnrolled, http.StatusConflict},
		{communitydomain.ErrLastAdmin, http.StatusUnprocessableEntity},
		{ErrRateLimited, http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := mapError(tc.err)
		if status != tc.wantStatus {
			t.Fatalf("mapError(%v) = %d, want %d", tc.err, status, tc.wantStatus)
		}
	}
}
