package captcha

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"grass_auto/internal/config"
)

// Solver returns a recaptcha token for the configured site key. Providers
// are interchangeable; which one runs depends on which API key is set.
type Solver interface {
	Name() string
	Solve(ctx context.Context) (string, error)
}

var ErrNoProvider = errors.New("no captcha provider configured")

// New picks the first configured provider, in the order the keys are listed
// in the config.
func New(cfg config.CaptchaConfig) (Solver, error) {
	switch {
	case cfg.TwoCaptchaKey != "":
		return newRucaptchaStyle("2captcha", "https://2captcha.com", cfg.TwoCaptchaKey, cfg), nil
	case cfg.AntiCaptchaKey != "":
		return newTaskStyle("anticaptcha", "https://api.anti-captcha.com", cfg.AntiCaptchaKey, "RecaptchaV2TaskProxyless", cfg), nil
	case cfg.CapMonsterKey != "":
		return newTaskStyle("capmonster", "https://api.capmonster.cloud", cfg.CapMonsterKey, "RecaptchaV2TaskProxyless", cfg), nil
	case cfg.CapSolverKey != "":
		return newTaskStyle("capsolver", "https://api.capsolver.com", cfg.CapSolverKey, "ReCaptchaV2TaskProxyLess", cfg), nil
	case cfg.CaptchaAIKey != "":
		return newRucaptchaStyle("captchaai", "https://ocr.captchaai.com", cfg.CaptchaAIKey, cfg), nil
	default:
		return nil, ErrNoProvider
	}
}

// rucaptchaStyle speaks the in.php/res.php protocol shared by 2Captcha and
// CaptchaAI.
type rucaptchaStyle struct {
	name    string
	key     string
	siteKey string
	pageURL string
	http    *resty.Client
}

func newRucaptchaStyle(name, baseURL, key string, cfg config.CaptchaConfig) *rucaptchaStyle {
	return &rucaptchaStyle{
		name:    name,
		key:     key,
		siteKey: cfg.SiteKey,
		pageURL: cfg.PageURL,
		http:    resty.New().SetBaseURL(baseURL).SetTimeout(30 * time.Second),
	}
}

func (s *rucaptchaStyle) Name() string { return s.name }

func (s *rucaptchaStyle) Solve(ctx context.Context) (string, error) {
	var submit struct {
		Status  int    `json:"status"`
		Request string `json:"request"`
	}
	_, err := s.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":       s.key,
			"method":    "userrecaptcha",
			"googlekey": s.siteKey,
			"pageurl":   s.pageURL,
			"json":      "1",
		}).
		SetResult(&submit).
		Post("/in.php")
	if err != nil {
		return "", fmt.Errorf("%s submit: %w", s.name, err)
	}
	if submit.Status != 1 {
		return "", fmt.Errorf("%s submit rejected: %s", s.name, submit.Request)
	}

	taskID := submit.Request
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		var poll struct {
			Status  int    `json:"status"`
			Request string `json:"request"`
		}
		_, err := s.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"key":    s.key,
				"action": "get",
				"id":     taskID,
				"json":   "1",
			}).
			SetResult(&poll).
			Get("/res.php")
		if err != nil {
			return "", fmt.Errorf("%s poll: %w", s.name, err)
		}
		if poll.Status == 1 {
			return poll.Request, nil
		}
		if poll.Request != "CAPCHA_NOT_READY" {
			return "", fmt.Errorf("%s solve failed: %s", s.name, poll.Request)
		}
	}
}

// taskStyle speaks the createTask/getTaskResult protocol shared by
// AntiCaptcha, CapMonster and CapSolver.
type taskStyle struct {
	name     string
	key      string
	taskType string
	siteKey  string
	pageURL  string
	http     *resty.Client
}

func newTaskStyle(name, baseURL, key, taskType string, cfg config.CaptchaConfig) *taskStyle {
	return &taskStyle{
		name:     name,
		key:      key,
		taskType: taskType,
		siteKey:  cfg.SiteKey,
		pageURL:  cfg.PageURL,
		http:     resty.New().SetBaseURL(baseURL).SetTimeout(30 * time.Second),
	}
}

func (s *taskStyle) Name() string { return s.name }

func (s *taskStyle) Solve(ctx context.Context) (string, error) {
	var created struct {
		ErrorID          int    `json:"errorId"`
		ErrorDescription string `json:"errorDescription"`
		TaskID           any    `json:"taskId"`
	}
	_, err := s.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"clientKey": s.key,
			"task": map[string]any{
				"type":       s.taskType,
				"websiteURL": s.pageURL,
				"websiteKey": s.siteKey,
			},
		}).
		SetResult(&created).
		Post("/createTask")
	if err != nil {
		return "", fmt.Errorf("%s createTask: %w", s.name, err)
	}
	if created.ErrorID != 0 {
		return "", fmt.Errorf("%s createTask rejected: %s", s.name, created.ErrorDescription)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		var result struct {
			ErrorID          int    `json:"errorId"`
			ErrorDescription string `json:"errorDescription"`
			Status           string `json:"status"`
			Solution         struct {
				GRecaptchaResponse string `json:"gRecaptchaResponse"`
			} `json:"solution"`
		}
		_, err := s.http.R().
			SetContext(ctx).
			SetBody(map[string]any{
				"clientKey": s.key,
				"taskId":    created.TaskID,
			}).
			SetResult(&result).
			Post("/getTaskResult")
		if err != nil {
			return "", fmt.Errorf("%s getTaskResult: %w", s.name, err)
		}
		if result.ErrorID != 0 {
			return "", fmt.Errorf("%s solve failed: %s", s.name, result.ErrorDescription)
		}
		if result.Status == "ready" {
			return result.Solution.GRecaptchaResponse, nil
		}
	}
}
