package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/seatwise/seatwise/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxRequestRetries = 3

// retryDelays backs off 1s, 2s, 4s between attempts on 5xx and transport
// failures. 4xx responses are never retried.
var retryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

type client struct {
	baseURL     string
	authBaseURL string
	http        *http.Client
	limiter     *rate.Limiter
	log         *zap.Logger
}

// NewClient builds the directory HTTP client. The limiter is shared across
// all calls because the remote API rate-limits per account, not per endpoint.
func NewClient(cfg config.DirectoryConfig, log *zap.Logger) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 4
	}
	return &client{
		baseURL:     cfg.BaseURL,
		authBaseURL: cfg.AuthBaseURL,
		http:        &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
		log:         log.Named("directory.client"),
	}
}

type apiResponse struct {
	status int
	body   []byte
}

func (c *client) do(ctx context.Context, method, url string, headers map[string]string, payload any) (apiResponse, error) {
	var lastErr error

	for attempt := 0; attempt < maxRequestRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return apiResponse{}, &Error{Kind: KindNetwork, Message: ctx.Err().Error()}
			case <-time.After(retryDelays[attempt-1]):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return apiResponse{}, &Error{Kind: KindNetwork, Message: err.Error()}
		}

		var body io.Reader
		if payload != nil {
			raw, err := json.Marshal(payload)
			if err != nil {
				return apiResponse{}, err
			}
			body = bytes.NewReader(raw)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return apiResponse{}, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = &Error{Kind: KindNetwork, Message: err.Error()}
			c.log.Warn("directory request failed",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = &Error{Kind: KindNetwork, Message: readErr.Error()}
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = &Error{
				Kind:       KindServer,
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("server error %d", resp.StatusCode),
			}
			c.log.Warn("directory server error, retrying",
				zap.String("url", url),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			continue
		}

		return apiResponse{status: resp.StatusCode, body: raw}, nil
	}

	return apiResponse{}, lastErr
}

func classify(resp apiResponse) *Error {
	if resp.status >= 200 && resp.status < 300 {
		return nil
	}

	kind := KindValidation
	switch resp.status {
	case http.StatusConflict:
		kind = KindConflict
	case http.StatusUnauthorized:
		kind = KindUnauthorized
	case http.StatusForbidden:
		kind = KindPermission
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusUnprocessableEntity:
		kind = KindValidation
	}

	message := parseErrorMessage(resp.body)
	if message == "" {
		message = fmt.Sprintf("request failed with status %d", resp.status)
	}
	return &Error{Kind: kind, StatusCode: resp.status, Message: message}
}

func parseErrorMessage(body []byte) string {
	var envelope struct {
		Detail string `json:"detail"`
		Error  struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if envelope.Detail != "" {
		return envelope.Detail
	}
	if envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return envelope.Error.Code
}

func (c *client) authHeaders(accessToken, accountID string) map[string]string {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	if accountID != "" {
		headers["chatgpt-account-id"] = accountID
	}
	return headers
}

func (c *client) InviteMember(ctx context.Context, accessToken, accountID, email string) error {
	url := fmt.Sprintf("%s/accounts/%s/invites", c.baseURL, accountID)
	payload := map[string]any{
		"email_addresses": []string{email},
		"role":            "standard-user",
		"resend_emails":   true,
	}
	resp, err := c.do(ctx, http.MethodPost, url, c.authHeaders(accessToken, accountID), payload)
	if err != nil {
		return err
	}
	if apiErr := classify(resp); apiErr != nil {
		switch apiErr.StatusCode {
		case http.StatusConflict:
			apiErr.Message = "user is already a member of this team"
		case http.StatusUnprocessableEntity:
			apiErr.Message = "team is full or the email address is malformed"
		}
		return apiErr
	}
	return nil
}

func (c *client) ListMembers(ctx context.Context, accessToken, accountID string) ([]Member, error) {
	var all []Member
	offset := 0
	const limit = 50
	for {
		url := fmt.Sprintf("%s/accounts/%s/users?limit=%d&offset=%d", c.baseURL, accountID, limit, offset)
		resp, err := c.do(ctx, http.MethodGet, url, c.authHeaders(accessToken, ""), nil)
		if err != nil {
			return nil, err
		}
		if apiErr := classify(resp); apiErr != nil {
			return nil, apiErr
		}

		var page struct {
			Items []Member `json:"items"`
			Total int      `json:"total"`
		}
		if err := json.Unmarshal(resp.body, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if len(all) >= page.Total || len(page.Items) == 0 {
			return all, nil
		}
		offset += limit
	}
}

func (c *client) ListInvites(ctx context.Context, accessToken, accountID string) ([]Invite, error) {
	url := fmt.Sprintf("%s/accounts/%s/invites", c.baseURL, accountID)
	resp, err := c.do(ctx, http.MethodGet, url, c.authHeaders(accessToken, accountID), nil)
	if err != nil {
		return nil, err
	}
	if apiErr := classify(resp); apiErr != nil {
		return nil, apiErr
	}

	var page struct {
		Items []Invite `json:"items"`
	}
	if err := json.Unmarshal(resp.body, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (c *client) RevokeInvite(ctx context.Context, accessToken, accountID, email string) error {
	url := fmt.Sprintf("%s/accounts/%s/invites", c.baseURL, accountID)
	payload := map[string]any{"email_address": email}
	resp, err := c.do(ctx, http.MethodDelete, url, c.authHeaders(accessToken, accountID), payload)
	if err != nil {
		return err
	}
	if apiErr := classify(resp); apiErr != nil {
		return apiErr
	}
	return nil
}

func (c *client) RemoveMember(ctx context.Context, accessToken, accountID, userID string) error {
	url := fmt.Sprintf("%s/accounts/%s/users/%s", c.baseURL, accountID, userID)
	resp, err := c.do(ctx, http.MethodDelete, url, c.authHeaders(accessToken, accountID), nil)
	if err != nil {
		return err
	}
	if apiErr := classify(resp); apiErr != nil {
		switch apiErr.StatusCode {
		case http.StatusForbidden:
			apiErr.Message = "not allowed to remove this member (possibly the owner)"
		case http.StatusNotFound:
			apiErr.Message = "member not found"
		}
		return apiErr
	}
	return nil
}

func (c *client) ListAccounts(ctx context.Context, accessToken string) ([]AccountInfo, error) {
	url := c.baseURL + "/accounts/check/v4-2023-04-27"
	resp, err := c.do(ctx, http.MethodGet, url, c.authHeaders(accessToken, ""), nil)
	if err != nil {
		return nil, err
	}
	if apiErr := classify(resp); apiErr != nil {
		return nil, apiErr
	}

	var payload struct {
		Accounts map[string]struct {
			Account struct {
				Name            string `json:"name"`
				PlanType        string `json:"plan_type"`
				AccountUserRole string `json:"account_user_role"`
			} `json:"account"`
			Entitlement struct {
				SubscriptionPlan      string `json:"subscription_plan"`
				ExpiresAt             string `json:"expires_at"`
				HasActiveSubscription bool   `json:"has_active_subscription"`
			} `json:"entitlement"`
		} `json:"accounts"`
	}
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return nil, err
	}

	var accounts []AccountInfo
	for id, info := range payload.Accounts {
		if info.Account.PlanType != "team" {
			continue
		}
		accounts = append(accounts, AccountInfo{
			AccountID:        id,
			Name:             info.Account.Name,
			PlanType:         info.Account.PlanType,
			AccountUserRole:  info.Account.AccountUserRole,
			SubscriptionPlan: info.Entitlement.SubscriptionPlan,
			ExpiresAt:        info.Entitlement.ExpiresAt,
			ActiveSub:        info.Entitlement.HasActiveSubscription,
		})
	}
	return accounts, nil
}

func (c *client) RefreshWithRefreshToken(ctx context.Context, refreshToken, clientID string) (TokenPair, error) {
	url := c.authBaseURL + "/oauth/token"
	payload := map[string]any{
		"client_id":     clientID,
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	}
	resp, err := c.do(ctx, http.MethodPost, url, nil, payload)
	if err != nil {
		return TokenPair{}, err
	}
	if apiErr := classify(resp); apiErr != nil {
		return TokenPair{}, apiErr
	}

	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(resp.body, &tokens); err != nil {
		return TokenPair{}, err
	}
	if tokens.AccessToken == "" {
		return TokenPair{}, &Error{Kind: KindServer, Message: "refresh response missing access token"}
	}
	return TokenPair{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

func (c *client) RefreshWithSessionToken(ctx context.Context, sessionToken, accountID string) (TokenPair, error) {
	url := c.authBaseURL + "/api/auth/session"
	if accountID != "" {
		url += "?exchange_workspace_token=true&workspace_id=" + accountID
	}
	headers := map[string]string{
		"Cookie": "__Secure-next-auth.session-token=" + sessionToken,
	}
	resp, err := c.do(ctx, http.MethodGet, url, headers, nil)
	if err != nil {
		return TokenPair{}, err
	}
	if apiErr := classify(resp); apiErr != nil {
		return TokenPair{}, apiErr
	}

	var session struct {
		AccessToken  string `json:"accessToken"`
		SessionToken string `json:"sessionToken"`
	}
	if err := json.Unmarshal(resp.body, &session); err != nil {
		return TokenPair{}, err
	}
	if session.AccessToken == "" {
		return TokenPair{}, &Error{Kind: KindServer, Message: "session response missing access token"}
	}
	return TokenPair{AccessToken: session.AccessToken, SessionToken: session.SessionToken}, nil
}
