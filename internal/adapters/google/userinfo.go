// Package google resolves Google OAuth access tokens to the account email.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/samirrijal/carparkfinder/internal/pkg/metrics"
)

const DefaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// UserInfo implements ports.IdentityProvider.
type UserInfo struct {
	url  string
	http *http.Client
}

func NewUserInfo(url string, timeout time.Duration) *UserInfo {
	if url == "" {
		url = DefaultUserInfoURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &UserInfo{url: url, http: &http.Client{Timeout: timeout}}
}

type userInfoResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
}

// Email returns the address the token was issued for.
func (u *UserInfo) Email(ctx context.Context, accessToken string) (email string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveRemote("google.userinfo", start, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := u.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to retrieve user profile: %d", resp.StatusCode)
	}

	var info userInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decode userinfo: %w", err)
	}
	if info.Email == "" {
		return "", fmt.Errorf("unable to retrieve email address from Google")
	}
	return info.Email, nil
}
