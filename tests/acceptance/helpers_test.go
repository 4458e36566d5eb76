package acceptance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hobbystash/account-service/internal/dto"
)

const refreshCookieName = "refresh_token"

func jsonBody(s *Suite, body any) *bytes.Buffer {
	data, err := json.Marshal(body)
	s.Require().NoError(err)
	return bytes.NewBuffer(data)
}

func (s *Suite) postJSON(path string, body any, opts ...func(*http.Request)) *http.Response {
	data, err := json.Marshal(body)
	s.Require().NoError(err)

	req, err := http.NewRequest(http.MethodPost, s.BaseURL+path, bytes.NewBuffer(data))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	return resp
}

func withBearer(token string) func(*http.Request) {
	return func(req *http.Request) {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}
}

func withCookie(cookie *http.Cookie) func(*http.Request) {
	return func(req *http.Request) {
		if cookie != nil {
			req.AddCookie(cookie)
		}
	}
}

func refreshCookie(resp *http.Response) *http.Cookie {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == refreshCookieName && cookie.Value != "" {
			return cookie
		}
	}
	return nil
}

// registerUser creates an account through the API. No session comes back;
// login is a separate step.
func (s *Suite) registerUser(email, password string) {
	resp := s.postJSON("/api/v1/auth/register", dto.RegisterRequest{
		Email:    email,
		Password: password,
	})
	defer resp.Body.Close()
	s.Require().Equal(http.StatusCreated, resp.StatusCode, "Registration should succeed")
}

// loginUser authenticates and returns the response body plus the refresh
// cookie the session rides in.
func (s *Suite) loginUser(email, password string) (dto.AuthResponse, *http.Cookie) {
	resp := s.postJSON("/api/v1/auth/login", dto.LoginRequest{
		Email:    email,
		Password: password,
	})
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode, "Login should succeed")

	var authResp dto.AuthResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&authResp))

	cookie := refreshCookie(resp)
	s.Require().NotNil(cookie, "Login should set the refresh cookie")

	return authResp, cookie
}

// verificationTokenFor reads the pending verification token straight from
// the store; tests have no inbox.
func (s *Suite) verificationTokenFor(email string) string {
	var token string
	err := s.Postgres.DB.QueryRow(
		`SELECT verification_token FROM users WHERE lower(email) = lower($1)`, email,
	).Scan(&token)
	s.Require().NoError(err, "User should have a pending verification token")
	return token
}

func (s *Suite) resetTokenFor(email string) string {
	var token string
	err := s.Postgres.DB.QueryRow(
		`SELECT reset_token FROM users WHERE lower(email) = lower($1)`, email,
	).Scan(&token)
	s.Require().NoError(err, "User should have a pending reset token")
	return token
}

func (s *Suite) activeSessionCount(email string) int {
	var count int
	err := s.Postgres.DB.QueryRow(`
		SELECT count(*) FROM refresh_tokens rt
		JOIN users u ON u.id = rt.user_id
		WHERE lower(u.email) = lower($1) AND rt.revoked_at IS NULL AND rt.expires_at > now()
	`, email).Scan(&count)
	s.Require().NoError(err)
	return count
}
