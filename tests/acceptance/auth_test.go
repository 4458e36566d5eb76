package acceptance

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/hobbystash/account-service/internal/dto"
)

func (s *Suite) TestRegister_Success() {
	resp := s.postJSON("/api/v1/auth/register", dto.RegisterRequest{
		Email:    "Test@Example.com",
		Password: "Password123",
	})
	defer resp.Body.Close()

	s.Equal(http.StatusCreated, resp.StatusCode)

	// No auto-login: a message, no tokens, no cookie
	var successResp dto.SuccessResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&successResp))
	s.NotEmpty(successResp.Message)
	s.Nil(refreshCookie(resp))

	// Stored lowercased and unverified, with a pending verification token
	var email string
	var verified bool
	err := s.Postgres.DB.QueryRow(
		`SELECT email, is_email_verified FROM users WHERE lower(email) = 'test@example.com'`,
	).Scan(&email, &verified)
	s.Require().NoError(err)
	s.Equal("test@example.com", email)
	s.False(verified)
	s.NotEmpty(s.verificationTokenFor("test@example.com"))
}

func (s *Suite) TestRegister_DuplicateEmailAnyCasing() {
	s.registerUser("duplicate@example.com", "Password123")

	resp := s.postJSON("/api/v1/auth/register", dto.RegisterRequest{
		Email:    "DUPLICATE@example.com",
		Password: "Password123",
	})
	defer resp.Body.Close()

	s.Equal(http.StatusConflict, resp.StatusCode)

	var errResp dto.ErrorResponse
	json.NewDecoder(resp.Body).Decode(&errResp)
	s.Equal("Conflict", errResp.Error)
}

func (s *Suite) TestRegister_InvalidEmail() {
	resp := s.postJSON("/api/v1/auth/register", dto.RegisterRequest{
		Email:    "invalid-email",
		Password: "Password123",
	})
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestRegister_WeakPassword() {
	resp := s.postJSON("/api/v1/auth/register", dto.RegisterRequest{
		Email:    "weak@example.com",
		Password: "alllowercase",
	})
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestLogin_Success() {
	s.registerUser("login@example.com", "Password123")

	authResp, cookie := s.loginUser("login@example.com", "Password123")

	s.NotEmpty(authResp.AccessToken)
	s.Equal("Bearer", authResp.TokenType)
	s.NotZero(authResp.ExpiresIn)
	s.Equal("login@example.com", authResp.User.Email)
	s.NotEmpty(authResp.User.ID)
	s.NotEmpty(cookie.Value)

	s.Equal(1, s.activeSessionCount("login@example.com"))
}

func (s *Suite) TestLogin_UnknownEmailAndWrongPasswordLookAlike() {
	s.registerUser("victim@example.com", "Password123")

	unknownResp := s.postJSON("/api/v1/auth/login", dto.LoginRequest{
		Email:    "ghost@example.com",
		Password: "Password123",
	})
	unknownBody, _ := io.ReadAll(unknownResp.Body)
	unknownResp.Body.Close()

	wrongResp := s.postJSON("/api/v1/auth/login", dto.LoginRequest{
		Email:    "victim@example.com",
		Password: "WrongPassword1",
	})
	wrongBody, _ := io.ReadAll(wrongResp.Body)
	wrongResp.Body.Close()

	s.Equal(http.StatusUnauthorized, unknownResp.StatusCode)
	s.Equal(http.StatusUnauthorized, wrongResp.StatusCode)
	s.Equal(string(unknownBody), string(wrongBody), "Responses must not reveal which part was wrong")
}

func (s *Suite) TestGetMe_Success() {
	s.registerUser("getme@example.com", "Password123")
	authResp, _ := s.loginUser("getme@example.com", "Password123")

	req, _ := http.NewRequest(http.MethodGet, s.BaseURL+"/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+authResp.AccessToken)

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	var userResp dto.UserResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&userResp))
	s.Equal("getme@example.com", userResp.Email)
	s.NotEmpty(userResp.ID)
	s.NotEmpty(userResp.CreatedAt)
	s.False(userResp.IsEmailVerified)
}

func (s *Suite) TestGetMe_NoToken() {
	req, _ := http.NewRequest(http.MethodGet, s.BaseURL+"/api/v1/auth/me", nil)

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestGetMe_InvalidToken() {
	req, _ := http.NewRequest(http.MethodGet, s.BaseURL+"/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestRefresh_RotatesSecret() {
	s.registerUser("refresh@example.com", "Password123")
	_, cookie := s.loginUser("refresh@example.com", "Password123")

	resp := s.postJSON("/api/v1/auth/refresh", struct{}{}, withCookie(cookie))
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	var authResp dto.AuthResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&authResp))
	s.NotEmpty(authResp.AccessToken)

	next := refreshCookie(resp)
	s.Require().NotNil(next)
	s.NotEqual(cookie.Value, next.Value, "Refresh must hand back a different secret")

	// Still exactly one live session
	s.Equal(1, s.activeSessionCount("refresh@example.com"))
}

func (s *Suite) TestRefresh_NoCookie() {
	resp := s.postJSON("/api/v1/auth/refresh", struct{}{})
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestRefresh_ReuseKillsEverySession() {
	s.registerUser("reuse@example.com", "Password123")
	_, original := s.loginUser("reuse@example.com", "Password123")

	first := s.postJSON("/api/v1/auth/refresh", struct{}{}, withCookie(original))
	first.Body.Close()
	s.Require().Equal(http.StatusOK, first.StatusCode)
	successor := refreshCookie(first)
	s.Require().NotNil(successor)

	// Replaying the original secret trips reuse detection
	replay := s.postJSON("/api/v1/auth/refresh", struct{}{}, withCookie(original))
	replay.Body.Close()
	s.Equal(http.StatusUnauthorized, replay.StatusCode)

	s.Equal(0, s.activeSessionCount("reuse@example.com"))

	// The successor died in the purge too
	after := s.postJSON("/api/v1/auth/refresh", struct{}{}, withCookie(successor))
	after.Body.Close()
	s.Equal(http.StatusUnauthorized, after.StatusCode)
}

func (s *Suite) TestLogout_RevokesPresentedSession() {
	s.registerUser("logout@example.com", "Password123")
	authResp, cookie := s.loginUser("logout@example.com", "Password123")

	resp := s.postJSON("/api/v1/auth/logout", struct{}{}, withBearer(authResp.AccessToken), withCookie(cookie))
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(0, s.activeSessionCount("logout@example.com"))

	// Logged out, not attacked: the dead cookie is plain invalid
	refresh := s.postJSON("/api/v1/auth/refresh", struct{}{}, withCookie(cookie))
	refresh.Body.Close()
	s.Equal(http.StatusUnauthorized, refresh.StatusCode)

	// Idempotent
	again := s.postJSON("/api/v1/auth/logout", struct{}{}, withBearer(authResp.AccessToken), withCookie(cookie))
	again.Body.Close()
	s.Equal(http.StatusOK, again.StatusCode)
}

func (s *Suite) TestLogoutAll_RevokesEveryDevice() {
	s.registerUser("everywhere@example.com", "Password123")
	authResp, _ := s.loginUser("everywhere@example.com", "Password123")
	_, _ = s.loginUser("everywhere@example.com", "Password123")

	s.Require().Equal(2, s.activeSessionCount("everywhere@example.com"))

	resp := s.postJSON("/api/v1/auth/logout-all", struct{}{}, withBearer(authResp.AccessToken))
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(0, s.activeSessionCount("everywhere@example.com"))
}

func (s *Suite) TestSessions_ListsDevicesAndFlagsCurrent() {
	s.registerUser("devices@example.com", "Password123")
	authResp, cookie := s.loginUser("devices@example.com", "Password123")
	_, _ = s.loginUser("devices@example.com", "Password123")

	req, _ := http.NewRequest(http.MethodGet, s.BaseURL+"/api/v1/auth/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+authResp.AccessToken)
	req.AddCookie(cookie)

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	var body struct {
		Sessions []struct {
			ID      string `json:"id"`
			Current bool   `json:"current"`
		} `json:"sessions"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	s.Require().Len(body.Sessions, 2)

	current := 0
	for _, session := range body.Sessions {
		if session.Current {
			current++
		}
	}
	s.Equal(1, current)
}

func (s *Suite) TestVerifyEmail_SingleUse() {
	s.registerUser("verify@example.com", "Password123")
	token := s.verificationTokenFor("verify@example.com")

	resp := s.postJSON("/api/v1/auth/verify-email", dto.VerifyEmailRequest{Token: token})
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	var verified bool
	err := s.Postgres.DB.QueryRow(
		`SELECT is_email_verified FROM users WHERE lower(email) = 'verify@example.com'`,
	).Scan(&verified)
	s.Require().NoError(err)
	s.True(verified)

	// Replay
	replay := s.postJSON("/api/v1/auth/verify-email", dto.VerifyEmailRequest{Token: token})
	replay.Body.Close()
	s.Equal(http.StatusUnauthorized, replay.StatusCode)
}

func (s *Suite) TestForgotPassword_ResponseNeverLeaksExistence() {
	s.registerUser("exists@example.com", "Password123")

	knownResp := s.postJSON("/api/v1/auth/forgot-password", dto.ForgotPasswordRequest{Email: "exists@example.com"})
	knownBody, _ := io.ReadAll(knownResp.Body)
	knownResp.Body.Close()

	unknownResp := s.postJSON("/api/v1/auth/forgot-password", dto.ForgotPasswordRequest{Email: "ghost@example.com"})
	unknownBody, _ := io.ReadAll(unknownResp.Body)
	unknownResp.Body.Close()

	s.Equal(http.StatusOK, knownResp.StatusCode)
	s.Equal(http.StatusOK, unknownResp.StatusCode)
	s.Equal(string(knownBody), string(unknownBody), "Bodies must be byte-identical")
}

func (s *Suite) TestResetPassword_SingleUseAndFullLogout() {
	s.registerUser("reset@example.com", "Password123")
	_, _ = s.loginUser("reset@example.com", "Password123")

	forgot := s.postJSON("/api/v1/auth/forgot-password", dto.ForgotPasswordRequest{Email: "reset@example.com"})
	forgot.Body.Close()
	token := s.resetTokenFor("reset@example.com")

	resp := s.postJSON("/api/v1/auth/reset-password", dto.ResetPasswordRequest{
		Token:    token,
		Password: "NewPassword123",
	})
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	// Recovery logged every session out
	s.Equal(0, s.activeSessionCount("reset@example.com"))

	// Old password is dead, new one works
	oldLogin := s.postJSON("/api/v1/auth/login", dto.LoginRequest{Email: "reset@example.com", Password: "Password123"})
	oldLogin.Body.Close()
	s.Equal(http.StatusUnauthorized, oldLogin.StatusCode)

	_, _ = s.loginUser("reset@example.com", "NewPassword123")

	// The token was spent
	replay := s.postJSON("/api/v1/auth/reset-password", dto.ResetPasswordRequest{
		Token:    token,
		Password: "AnotherPass123",
	})
	replay.Body.Close()
	s.Equal(http.StatusUnauthorized, replay.StatusCode)
}

func (s *Suite) TestChangePassword_RevokesSessions() {
	s.registerUser("changepw@example.com", "Password123")
	authResp, _ := s.loginUser("changepw@example.com", "Password123")

	wrong := s.postJSON("/api/v1/auth/change-password", dto.ChangePasswordRequest{
		CurrentPassword: "WrongPassword1",
		NewPassword:     "NewPassword123",
	}, withBearer(authResp.AccessToken))
	wrong.Body.Close()
	s.Equal(http.StatusForbidden, wrong.StatusCode)

	resp := s.postJSON("/api/v1/auth/change-password", dto.ChangePasswordRequest{
		CurrentPassword: "Password123",
		NewPassword:     "NewPassword123",
	}, withBearer(authResp.AccessToken))
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	s.Equal(0, s.activeSessionCount("changepw@example.com"))
	_, _ = s.loginUser("changepw@example.com", "NewPassword123")
}

func (s *Suite) TestDeleteAccount_RequiresPassword() {
	s.registerUser("goodbye@example.com", "Password123")
	authResp, _ := s.loginUser("goodbye@example.com", "Password123")

	wrong, err := http.NewRequest(http.MethodDelete, s.BaseURL+"/api/v1/auth/account", jsonBody(s, dto.DeleteAccountRequest{Password: "WrongPassword1"}))
	s.Require().NoError(err)
	wrong.Header.Set("Content-Type", "application/json")
	wrong.Header.Set("Authorization", "Bearer "+authResp.AccessToken)
	wrongResp, err := http.DefaultClient.Do(wrong)
	s.Require().NoError(err)
	wrongResp.Body.Close()
	s.Equal(http.StatusForbidden, wrongResp.StatusCode)

	del, err := http.NewRequest(http.MethodDelete, s.BaseURL+"/api/v1/auth/account", jsonBody(s, dto.DeleteAccountRequest{Password: "Password123"}))
	s.Require().NoError(err)
	del.Header.Set("Content-Type", "application/json")
	del.Header.Set("Authorization", "Bearer "+authResp.AccessToken)
	delResp, err := http.DefaultClient.Do(del)
	s.Require().NoError(err)
	delResp.Body.Close()
	s.Equal(http.StatusOK, delResp.StatusCode)

	// The account and its sessions are gone
	login := s.postJSON("/api/v1/auth/login", dto.LoginRequest{Email: "goodbye@example.com", Password: "Password123"})
	login.Body.Close()
	s.Equal(http.StatusUnauthorized, login.StatusCode)
}

func (s *Suite) TestLifecycle_EndToEnd() {
	s.registerUser("journey@example.com", "Password123")

	verify := s.postJSON("/api/v1/auth/verify-email", dto.VerifyEmailRequest{
		Token: s.verificationTokenFor("journey@example.com"),
	})
	verify.Body.Close()
	s.Require().Equal(http.StatusOK, verify.StatusCode)

	_, cookie := s.loginUser("journey@example.com", "Password123")

	refreshed := s.postJSON("/api/v1/auth/refresh", struct{}{}, withCookie(cookie))
	s.Require().Equal(http.StatusOK, refreshed.StatusCode)
	var refreshedAuth dto.AuthResponse
	s.Require().NoError(json.NewDecoder(refreshed.Body).Decode(&refreshedAuth))
	refreshed.Body.Close()
	successor := refreshCookie(refreshed)
	s.Require().NotNil(successor)

	logoutAll := s.postJSON("/api/v1/auth/logout-all", struct{}{}, withBearer(refreshedAuth.AccessToken))
	logoutAll.Body.Close()
	s.Require().Equal(http.StatusOK, logoutAll.StatusCode)

	// The post-rotation secret was revoked by logout-all, not reused, so
	// refreshing with it is a plain failure with no further fallout
	after := s.postJSON("/api/v1/auth/refresh", struct{}{}, withCookie(successor))
	after.Body.Close()
	s.Equal(http.StatusUnauthorized, after.StatusCode)
}
