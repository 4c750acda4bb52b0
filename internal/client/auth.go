package client

import (
	"context"
	"net/http"

	"github.com/chepyr/go-workboard/internal/models"
)

// FetchCSRFToken asks the API for a CSRF token and keeps it in the session.
func (c *Client) FetchCSRFToken(ctx context.Context) (string, error) {
	var out struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := c.do(ctx, "fetch csrf token", http.MethodGet, "/csrf/", nil, nil, &out); err != nil {
		return "", err
	}
	c.session.SetCSRFToken(out.CSRFToken)
	return out.CSRFToken, nil
}

// Login exchanges credentials for a token and stores it in the session.
func (c *Client) Login(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, &Error{Kind: KindValidation, Op: "login", Message: "username and password are required"}
	}
	in := map[string]string{"username": username, "password": password}
	var out struct {
		Token    string    `json:"token"`
		UserID   models.ID `json:"user_id"`
		Username string    `json:"username"`
		Email    string    `json:"email"`
	}
	if err := c.do(ctx, "login", http.MethodPost, "/login/", nil, in, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, &Error{Kind: KindServer, Op: "login", Message: "response carried no token"}
	}
	if out.Username == "" {
		out.Username = username
	}
	u := &models.User{ID: out.UserID, Username: out.Username, Email: out.Email}
	c.session.SetToken(out.Token)
	c.session.SetUser(u)
	c.log.WithField("user_id", u.ID).Info("logged in")
	return u, nil
}

// Logout revokes the token server side and clears the session. A token the
// server no longer accepts is cleared as well.
func (c *Client) Logout(ctx context.Context) error {
	if !c.session.Authenticated() {
		return nil
	}
	err := c.do(ctx, "logout", http.MethodPost, "/logout/", nil, nil, nil)
	if err != nil && KindOf(err) != KindUnauthorized {
		return err
	}
	c.session.Clear()
	return nil
}

// CurrentUser fetches the signed-in user and refreshes the session copy.
func (c *Client) CurrentUser(ctx context.Context) (*models.User, error) {
	var u models.User
	if err := c.do(ctx, "current user", http.MethodGet, "/users/me/", nil, nil, &u); err != nil {
		return nil, err
	}
	c.session.SetUser(&u)
	return &u, nil
}
