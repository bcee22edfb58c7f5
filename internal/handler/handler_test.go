package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/accountkeeper/internal/apperror"
	"github.com/sakif/accountkeeper/internal/auth"
	"github.com/sakif/accountkeeper/internal/handler"
	"github.com/sakif/accountkeeper/internal/logging"
	"github.com/sakif/accountkeeper/internal/model"
	"github.com/sakif/accountkeeper/internal/service"
	"github.com/sakif/accountkeeper/internal/session"
)

// fakeAccounts returns canned results and records what it was called with.
type fakeAccounts struct {
	err error

	signup   service.SignupRequest
	ip       string
	code     string
	reset    service.ResetRequest
	redeem   service.RedeemRequest
	change   service.ChangeRequest
	prefs    model.UserPreferences
	login    service.LoginRequest
	pwLogin  service.PasswordLoginRequest
	ghUser   *auth.GitHubUser
	loggedIn string
	closed   bool
	sc       *session.Context
}

var okResult = &model.MessageResult{Success: true, Message: "ok"}

func (f *fakeAccounts) Initiate(_ context.Context, sc *session.Context, req service.SignupRequest, ip string) (*model.MessageResult, error) {
	f.signup, f.ip, f.sc = req, ip, sc
	return okResult, f.err
}

func (f *fakeAccounts) Confirm(_ context.Context, code string) (*model.MessageResult, error) {
	f.code = code
	return okResult, f.err
}

func (f *fakeAccounts) Login(ctx context.Context, sc *session.Context, req service.LoginRequest) (*model.LoginResult, error) {
	f.login, f.sc = req, sc
	f.loggedIn, _ = auth.UserNameFromContext(ctx)
	if f.err != nil {
		return nil, f.err
	}
	name := f.loggedIn
	if name == "" {
		name = model.AnonymousUser
	}
	return &model.LoginResult{Success: f.loggedIn != "", UserName: name}, nil
}

func (f *fakeAccounts) PasswordLogin(_ context.Context, sc *session.Context, req service.PasswordLoginRequest, ip string) (*service.AuthResult, error) {
	f.pwLogin, f.ip, f.sc = req, ip, sc
	if f.err != nil {
		return nil, f.err
	}
	return &service.AuthResult{
		Login: &model.LoginResult{Success: true, UserName: req.UserName},
		Token: "tok-" + req.UserName,
	}, nil
}

func (f *fakeAccounts) GitHubLogin(_ context.Context, sc *session.Context, gh *auth.GitHubUser, _ service.LoginRequest) (*service.AuthResult, error) {
	f.ghUser, f.sc = gh, sc
	if f.err != nil {
		return nil, f.err
	}
	return &service.AuthResult{
		Login: &model.LoginResult{Success: true, UserName: gh.Login},
		Token: "tok-" + gh.Login,
	}, nil
}

func (f *fakeAccounts) Logout(sc *session.Context) {
	f.sc = sc
	sc.Reset()
}

func (f *fakeAccounts) RequestReset(_ context.Context, req service.ResetRequest, ip string) (*model.MessageResult, error) {
	f.reset, f.ip = req, ip
	return okResult, f.err
}

func (f *fakeAccounts) RedeemReset(_ context.Context, req service.RedeemRequest, ip string) (*model.MessageResult, error) {
	f.redeem, f.ip = req, ip
	return okResult, f.err
}

func (f *fakeAccounts) ChangePassword(_ context.Context, sc *session.Context, req service.ChangeRequest) (*model.MessageResult, error) {
	f.change, f.sc = req, sc
	return okResult, f.err
}

func (f *fakeAccounts) SavePreferences(_ context.Context, sc *session.Context, prefs model.UserPreferences) (*model.MessageResult, error) {
	f.prefs, f.sc = prefs, sc
	return okResult, f.err
}

func (f *fakeAccounts) CloseAccount(_ context.Context, sc *session.Context) (*model.MessageResult, error) {
	f.sc = sc
	f.closed = f.err == nil
	return okResult, f.err
}

type fakeGitHub struct {
	user *auth.GitHubUser
	err  error
}

func (g *fakeGitHub) AuthURL(state string) string {
	return "https://github.example/authorize?state=" + state
}

func (g *fakeGitHub) Exchange(_ context.Context, code string) (*auth.GitHubUser, error) {
	return g.user, g.err
}

func newTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	require.NoError(t, err)
	return tokens
}

// request builds a request carrying sc as its session.
func request(method, target, body string, sc *session.Context) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(session.WithContext(req.Context(), sc))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var resp handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// =========================================================================
// ACCOUNT HANDLER
// =========================================================================

func TestAccountHandler_Signup(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		fake := &fakeAccounts{}
		h := handler.NewAccountHandler(fake, logging.Discard())
		sc := session.New()

		req := request(http.MethodPost, "/api/signup", `{"userName":"alice","password":"Passw0rd!","email":"alice@x.com","captcha":"12345"}`, sc)
		req.RemoteAddr = "203.0.113.9:51234"
		rec := httptest.NewRecorder()
		h.HandleSignup(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, service.SignupRequest{UserName: "alice", Password: "Passw0rd!", Email: "alice@x.com", Captcha: "12345"}, fake.signup)
		assert.Equal(t, "203.0.113.9", fake.ip)
		assert.Same(t, sc, fake.sc)
	})

	t.Run("malformed body", func(t *testing.T) {
		fake := &fakeAccounts{}
		h := handler.NewAccountHandler(fake, logging.Discard())

		rec := httptest.NewRecorder()
		h.HandleSignup(rec, request(http.MethodPost, "/api/signup", `{"userName":`, session.New()))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation_error", decodeError(t, rec).Error)
		assert.Empty(t, fake.signup.UserName, "service not called")
	})

	t.Run("unknown field", func(t *testing.T) {
		h := handler.NewAccountHandler(&fakeAccounts{}, logging.Discard())
		rec := httptest.NewRecorder()
		h.HandleSignup(rec, request(http.MethodPost, "/api/signup", `{"username":"alice"}`, session.New()))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAccountHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
		wantMsg    string
	}{
		{"validation", apperror.ValidationFailed("userName", "Sorry, you can't be everyone."), http.StatusBadRequest, "validation_error", "Sorry, you can't be everyone."},
		{"conflict", apperror.Conflict("account", "alice"), http.StatusConflict, "conflict", "account conflict with id alice"},
		{"not found", apperror.Concealed(apperror.ErrNotFound, "Signup code is invalid or has already been used."), http.StatusNotFound, "not_found", "Signup code is invalid or has already been used."},
		{"expired", apperror.Expired("Password reset code has expired."), http.StatusGone, "expired", "Password reset code has expired."},
		{"rate limited", apperror.RateLimited("Too many attempts."), http.StatusTooManyRequests, "rate_limited", "Too many attempts."},
		{"forbidden", apperror.Forbidden("The admin account cannot be closed."), http.StatusForbidden, "forbidden", "The admin account cannot be closed."},
		{"internal", assert.AnError, http.StatusInternalServerError, "internal_error", "An internal error occurred"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewAccountHandler(&fakeAccounts{err: tt.err}, logging.Discard())

			rec := httptest.NewRecorder()
			h.HandleConfirm(rec, request(http.MethodGet, "/api/signup/confirm?signupCode=abc", "", session.New()))

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.wantKind, resp.Error)
			assert.Equal(t, tt.wantMsg, resp.Message)
		})
	}
}

func TestAccountHandler_Confirm(t *testing.T) {
	fake := &fakeAccounts{}
	h := handler.NewAccountHandler(fake, logging.Discard())

	rec := httptest.NewRecorder()
	h.HandleConfirm(rec, request(http.MethodGet, "/api/signup/confirm?signupCode=c0de", "", session.New()))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "c0de", fake.code)
}

func TestAccountHandler_Captcha(t *testing.T) {
	h := handler.NewAccountHandler(&fakeAccounts{}, logging.Discard())
	sc := session.New()

	rec := httptest.NewRecorder()
	h.HandleCaptcha(rec, request(http.MethodGet, "/api/captcha", "", sc))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body["captcha"], 5)
	assert.Equal(t, body["captcha"], sc.CaptchaExpected)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestAccountHandler_ResetRequestFailuresLookAlike(t *testing.T) {
	const msg = "Wrong user name and/or email."
	var bodies []string

	for _, kind := range []error{apperror.ErrNotFound, apperror.ErrUnauthorized} {
		h := handler.NewAccountHandler(&fakeAccounts{err: apperror.Concealed(kind, msg)}, logging.Discard())
		rec := httptest.NewRecorder()
		h.HandleResetRequest(rec, request(http.MethodPost, "/api/password/reset-request", `{"userName":"alice","email":"a@x.com"}`, session.New()))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		bodies = append(bodies, rec.Body.String())
	}
	assert.Equal(t, bodies[0], bodies[1])
	assert.Contains(t, bodies[0], msg)
}

func TestAccountHandler_Reset(t *testing.T) {
	fake := &fakeAccounts{}
	h := handler.NewAccountHandler(fake, logging.Discard())

	req := request(http.MethodPost, "/api/password/reset", `{"passCode":"1700000000000","newPassword":"N3w-Passw0rd"}`, session.New())
	req.RemoteAddr = "198.51.100.7:1000"
	rec := httptest.NewRecorder()
	h.HandleReset(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.RedeemRequest{PassCode: "1700000000000", NewPassword: "N3w-Passw0rd"}, fake.redeem)
	assert.Equal(t, "198.51.100.7", fake.ip)
}

func TestAccountHandler_ChangeAndPreferences(t *testing.T) {
	fake := &fakeAccounts{}
	h := handler.NewAccountHandler(fake, logging.Discard())
	sc := session.New()

	rec := httptest.NewRecorder()
	h.HandleChangePassword(rec, request(http.MethodPost, "/api/password/change", `{"newPassword":"N3w-Passw0rd"}`, sc))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "N3w-Passw0rd", fake.change.NewPassword)

	rec = httptest.NewRecorder()
	h.HandleSavePreferences(rec, request(http.MethodPut, "/api/preferences", `{"advancedMode":true,"lastVisitedNode":"/root/alice/x"}`, sc))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.UserPreferences{AdvancedMode: true, LastVisitedNode: "/root/alice/x"}, fake.prefs)
	assert.Same(t, sc, fake.sc)
}

func TestAccountHandler_CloseAccountClearsToken(t *testing.T) {
	fake := &fakeAccounts{}
	h := handler.NewAccountHandler(fake, logging.Discard())

	rec := httptest.NewRecorder()
	h.HandleCloseAccount(rec, request(http.MethodDelete, "/api/account", "", session.New()))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, fake.closed)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.TokenCookie, cookies[0].Name)
	assert.Negative(t, cookies[0].MaxAge)
}

// =========================================================================
// AUTH HANDLER
// =========================================================================

func TestAuthHandler_Login(t *testing.T) {
	fake := &fakeAccounts{}
	h := handler.NewAuthHandler(fake, newTokens(t), nil, logging.Discard())

	rec := httptest.NewRecorder()
	h.HandleLogin(rec, request(http.MethodPost, "/api/login", `{"userName":"alice","password":"Passw0rd!","tzOffset":-60,"dst":true}`, session.New()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.PasswordLoginRequest{
		UserName:     "alice",
		Password:     "Passw0rd!",
		LoginRequest: service.LoginRequest{TzOffset: -60, DST: true},
	}, fake.pwLogin)

	var res model.LoginResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, "alice", res.UserName)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.TokenCookie, cookies[0].Name)
	assert.Equal(t, "tok-alice", cookies[0].Value)
}

func TestAuthHandler_LoginRejected(t *testing.T) {
	fake := &fakeAccounts{err: apperror.Concealed(apperror.ErrUnauthorized, "Wrong user name or password.")}
	h := handler.NewAuthHandler(fake, newTokens(t), nil, logging.Discard())

	rec := httptest.NewRecorder()
	h.HandleLogin(rec, request(http.MethodPost, "/api/login", `{"userName":"alice","password":"bad"}`, session.New()))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies(), "no token on failure")
	assert.Equal(t, "Wrong user name or password.", decodeError(t, rec).Message)
}

func TestAuthHandler_Session(t *testing.T) {
	t.Run("empty body is anonymous", func(t *testing.T) {
		fake := &fakeAccounts{}
		h := handler.NewAuthHandler(fake, newTokens(t), nil, logging.Discard())

		rec := httptest.NewRecorder()
		h.HandleSession(rec, request(http.MethodPost, "/api/session", "", session.New()))

		require.Equal(t, http.StatusOK, rec.Code)
		var res model.LoginResult
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
		assert.False(t, res.Success)
		assert.Equal(t, model.AnonymousUser, res.UserName)
	})

	t.Run("token identity and clock info", func(t *testing.T) {
		fake := &fakeAccounts{}
		h := handler.NewAuthHandler(fake, newTokens(t), nil, logging.Discard())

		req := request(http.MethodPost, "/api/session", `{"tzOffset":300}`, session.New())
		req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserName: "alice", Generation: 1}))
		rec := httptest.NewRecorder()
		h.HandleSession(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", fake.loggedIn)
		assert.Equal(t, 300, fake.login.TzOffset)
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	fake := &fakeAccounts{}
	h := handler.NewAuthHandler(fake, newTokens(t), nil, logging.Discard())
	sc := session.New()
	sc.UserName = "alice"

	rec := httptest.NewRecorder()
	h.HandleLogout(rec, request(http.MethodPost, "/api/logout", "", sc))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, sc.Anonymous())
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestAuthHandler_GitHubFlow(t *testing.T) {
	fake := &fakeAccounts{}
	gh := &fakeGitHub{user: &auth.GitHubUser{ID: 42, Login: "octocat"}}
	h := handler.NewAuthHandler(fake, newTokens(t), gh, logging.Discard())

	rec := httptest.NewRecorder()
	h.HandleGitHubLogin(rec, request(http.MethodGet, "/auth/github/login", "", session.New()))
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	var stateCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "oauth_state" {
			stateCookie = c
		}
	}
	require.NotNil(t, stateCookie)
	assert.Equal(t, state, stateCookie.Value)

	t.Run("state mismatch", func(t *testing.T) {
		req := request(http.MethodGet, "/auth/github/callback?code=x&state=forged", "", session.New())
		req.AddCookie(stateCookie)
		rec := httptest.NewRecorder()
		h.HandleGitHubCallback(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Nil(t, fake.ghUser)
	})

	t.Run("success", func(t *testing.T) {
		req := request(http.MethodGet, "/auth/github/callback?code=x&state="+state, "", session.New())
		req.AddCookie(stateCookie)
		rec := httptest.NewRecorder()
		h.HandleGitHubCallback(rec, req)

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
		require.NotNil(t, fake.ghUser)
		assert.Equal(t, "octocat", fake.ghUser.Login)

		var token string
		for _, c := range rec.Result().Cookies() {
			if c.Name == auth.TokenCookie {
				token = c.Value
			}
		}
		assert.Equal(t, "tok-octocat", token)
	})

	t.Run("denied", func(t *testing.T) {
		req := request(http.MethodGet, "/auth/github/callback?error=access_denied&state="+state, "", session.New())
		req.AddCookie(stateCookie)
		rec := httptest.NewRecorder()
		h.HandleGitHubCallback(rec, req)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.True(t, strings.HasSuffix(rec.Header().Get("Location"), "auth=denied"))
	})

	t.Run("local account conflict", func(t *testing.T) {
		fake.err = &apperror.AppError{Err: apperror.ErrConflict, Message: "An account with this user name already exists."}
		defer func() { fake.err = nil }()

		req := request(http.MethodGet, "/auth/github/callback?code=x&state="+state, "", session.New())
		req.AddCookie(stateCookie)
		rec := httptest.NewRecorder()
		h.HandleGitHubCallback(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}
