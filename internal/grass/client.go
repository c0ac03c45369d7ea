package grass

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"grass_auto/internal/config"
)

// Client is one account's handle to the rewards API. Every request goes
// through the account's own proxy; nothing is shared between sessions except
// the global rate limiter.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	log     *zap.Logger

	email    string
	deviceID string

	userID string
	token  string
}

// DeviceID derives the stable per-account device id the network sees. It
// must not change between runs or the cached login data would be useless.
func DeviceID(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(email)).String()
}

// NewClient builds a proxy-bound client. limiter is shared across all
// sessions to keep the aggregate request rate polite.
func NewClient(cfg config.APIConfig, log *zap.Logger, email, proxy string, limiter *rate.Limiter) *Client {
	c := &Client{
		limiter:  limiter,
		log:      log,
		email:    email,
		deviceID: DeviceID(email),
	}

	c.http = resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout()).
		SetRetryCount(cfg.Retry.Count).
		SetRetryWaitTime(cfg.Retry.Wait()).
		SetRetryMaxWaitTime(cfg.Retry.MaxWait()).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil || r == nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Content-Type", "application/json")
	if proxy != "" {
		c.http.SetProxy(proxy)
	}
	c.http.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if c.limiter != nil {
			return c.limiter.Wait(req.Context())
		}
		return nil
	})

	return c
}

func (c *Client) Email() string { return c.email }

func (c *Client) DeviceKey() string { return c.deviceID }

func (c *Client) UserID() string { return c.userID }

func (c *Client) Token() string { return c.token }

// SetCredentials primes the client from cached login data so callers can
// skip a fresh login.
func (c *Client) SetCredentials(userID, token string) {
	c.userID = userID
	c.token = token
	c.http.SetAuthToken(token)
}

// Close releases the session's connections. Mandatory on every worker exit
// path.
func (c *Client) Close() {
	c.http.GetClient().CloseIdleConnections()
}

// Register creates the account. captchaToken comes from the captcha
// capability; refCode is optional.
func (c *Client) Register(ctx context.Context, password, refCode, captchaToken string) error {
	var resp envelope[registerData]
	r, err := c.http.R().
		SetContext(ctx).
		SetBody(registerReq{
			Email:          c.email,
			Password:       password,
			Username:       c.email,
			ReferralCode:   refCode,
			RecaptchaToken: captchaToken,
		}).
		SetResult(&resp).
		SetError(&resp).
		Post("/register")
	if err != nil {
		return &RegistrationError{Email: c.email, Reason: err.Error()}
	}
	if r.IsError() || resp.Error != nil {
		return &RegistrationError{Email: c.email, Reason: resp.errMessage(r.Status())}
	}
	c.userID = resp.Result.Data.UserID
	return nil
}

// Login authenticates and remembers the issued bearer token.
func (c *Client) Login(ctx context.Context, password string) error {
	var resp envelope[loginData]
	r, err := c.http.R().
		SetContext(ctx).
		SetBody(loginReq{Username: c.email, Password: password}).
		SetResult(&resp).
		SetError(&resp).
		Post("/login")
	if err != nil {
		return &LoginError{Email: c.email, Reason: err.Error()}
	}
	if r.IsError() || resp.Error != nil {
		return &LoginError{Email: c.email, Reason: resp.errMessage(r.Status())}
	}
	c.SetCredentials(resp.Result.Data.UserID, resp.Result.Data.AccessToken)
	return nil
}

// RetrieveUser fetches the verification snapshot that gates the approve and
// wallet transitions. A rejected token comes back as a LoginError so the
// caller can fall through to a fresh login.
func (c *Client) RetrieveUser(ctx context.Context) (Profile, error) {
	var resp envelope[userData]
	r, err := c.http.R().
		SetContext(ctx).
		SetResult(&resp).
		SetError(&resp).
		Get("/retrieveUser")
	if err != nil {
		return Profile{}, fmt.Errorf("retrieve user: %w", err)
	}
	if r.StatusCode() == 401 || r.StatusCode() == 403 {
		return Profile{}, &LoginError{Email: c.email, Reason: "token rejected"}
	}
	if r.IsError() || resp.Error != nil {
		return Profile{}, fmt.Errorf("retrieve user: %s", resp.errMessage(r.Status()))
	}
	d := resp.Result.Data
	if c.userID == "" {
		c.userID = d.UserID
	}
	return Profile{
		UserID:         d.UserID,
		EmailVerified:  d.IsVerified,
		WalletAddress:  d.WalletAddress,
		WalletVerified: d.IsWalletAddressVerified,
	}, nil
}

// SendEmailVerification asks the network to mail the approval link.
func (c *Client) SendEmailVerification(ctx context.Context, captchaToken string) error {
	return c.post(ctx, "/sendEmailVerification", sendVerificationReq{RecaptchaToken: captchaToken})
}

// ConfirmEmail exchanges an approval link for email verification.
func (c *Client) ConfirmEmail(ctx context.Context, link string) error {
	token, err := tokenFromLink(link)
	if err != nil {
		return err
	}
	return c.post(ctx, "/confirmEmail", confirmTokenReq{Token: token})
}

// LinkWallet submits the wallet address for linking.
func (c *Client) LinkWallet(ctx context.Context, wallet string) error {
	return c.post(ctx, "/linkWallet", linkWalletReq{WalletAddress: wallet})
}

// SendWalletVerification mirrors SendEmailVerification against the wallet
// endpoint.
func (c *Client) SendWalletVerification(ctx context.Context) error {
	return c.post(ctx, "/sendWalletAddressEmailVerification", sendVerificationReq{})
}

// ConfirmWallet exchanges an approval link for wallet verification.
func (c *Client) ConfirmWallet(ctx context.Context, link string) error {
	token, err := tokenFromLink(link)
	if err != nil {
		return err
	}
	return c.post(ctx, "/confirmWalletAddress", confirmTokenReq{Token: token})
}

// ClaimRewards claims tier rewards. Already-claimed is not an error.
func (c *Client) ClaimRewards(ctx context.Context) error {
	err := c.post(ctx, "/claimReward", struct{}{})
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "already claimed") {
		c.log.Info("rewards already claimed", zap.String("email", c.email))
		return nil
	}
	return err
}

// Points polls the account's accumulated total.
func (c *Client) Points(ctx context.Context) (float64, error) {
	var resp envelope[pointsData]
	r, err := c.http.R().
		SetContext(ctx).
		SetResult(&resp).
		SetError(&resp).
		Get("/retrievePoints")
	if err != nil {
		return 0, fmt.Errorf("retrieve points: %w", err)
	}
	if r.StatusCode() >= 500 {
		return 0, ErrServiceDown
	}
	if r.IsError() || resp.Error != nil {
		return 0, fmt.Errorf("retrieve points: %s", resp.errMessage(r.Status()))
	}
	return resp.Result.Data.Points, nil
}

// ProxyScore reports the network's quality score for this device's IP.
// Zero threshold disables the check upstream; callers only see the raw score.
func (c *Client) ProxyScore(ctx context.Context) (int, error) {
	var resp envelope[[]deviceData]
	r, err := c.http.R().
		SetContext(ctx).
		SetResult(&resp).
		SetError(&resp).
		Get("/activeDevices")
	if err != nil {
		return 0, fmt.Errorf("active devices: %w", err)
	}
	if r.IsError() || resp.Error != nil {
		return 0, fmt.Errorf("active devices: %s", resp.errMessage(r.Status()))
	}
	for _, d := range resp.Result.Data {
		if d.DeviceID == c.deviceID {
			return d.IPScore, nil
		}
	}
	return 0, errors.New("device not listed yet")
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	var resp envelope[struct{}]
	r, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&resp).
		SetError(&resp).
		Post(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if r.StatusCode() >= 500 {
		return ErrServiceDown
	}
	if r.IsError() || resp.Error != nil {
		return fmt.Errorf("%s: %s", path, resp.errMessage(r.Status()))
	}
	return nil
}

// tokenFromLink pulls the verification token out of an approval link, either
// a ?token= query parameter or the last path segment.
func tokenFromLink(link string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", fmt.Errorf("bad approval link: %w", err)
	}
	if t := u.Query().Get("token"); t != "" {
		return t, nil
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) > 0 && parts[len(parts)-1] != "" {
		return parts[len(parts)-1], nil
	}
	return "", fmt.Errorf("approval link %q carries no token", link)
}

// Profile is the verification snapshot used to gate workflow transitions.
type Profile struct {
	UserID         string
	EmailVerified  bool
	WalletAddress  string
	WalletVerified bool
}
