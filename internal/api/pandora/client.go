package pandora

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/pangazer/internal/telemetry"
)

// DefaultBaseURL 云端接口根地址
const DefaultBaseURL = "https://pro.p-on.ru"

// oauthHeader 获取新令牌用的固定客户端凭据
const oauthHeader = "Basic cGNvbm5lY3Q6SW5mXzRlUm05X2ZfaEhnVl9zNg=="

// Config 云端客户端配置
type Config struct {
	BaseURL     string
	Username    string
	Password    string
	AccessToken string
	Language    string
	// UTCOffset 登录时上报的本地偏移（秒）
	UTCOffset int64
	Timeout   time.Duration
}

// Client 云端 HTTP 客户端，负责认证与全部 REST 接口
type Client struct {
	lg      *zap.Logger
	http    *http.Client
	baseURL string

	username  string
	password  string
	language  string
	utcOffset int64

	mu          sync.RWMutex
	accessToken string
	userID      int64
}

// NewClient 创建云端客户端
func NewClient(lg *zap.Logger, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Language == "" {
		cfg.Language = "ru"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		lg:          lg,
		http:        &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		username:    cfg.Username,
		password:    cfg.Password,
		language:    cfg.Language,
		utcOffset:   cfg.UTCOffset,
		accessToken: cfg.AccessToken,
	}
}

// BaseURL 接口根地址
func (c *Client) BaseURL() string { return c.baseURL }

// AccessToken 当前访问令牌
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken 替换访问令牌
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

// UserID 登录后服务端返回的用户标识
func (c *Client) UserID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values) (any, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) postForm(ctx context.Context, path string, params url.Values, form url.Values, header http.Header) (any, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	return c.do(req)
}

// do 执行请求并解码 JSON。服务端在失败时通过 error_text / status /
// action_result 描述原因；4xx 认证区间统一折算为认证错误。
func (c *Client) do(req *http.Request) (any, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var data any
	decodeErr := json.Unmarshal(raw, &data)

	status := responseStatus(data)
	if resp.StatusCode >= 400 && resp.StatusCode <= 403 {
		if status == "" {
			status = "unknown auth error"
		}
		return nil, fmt.Errorf("%s: %w", status, ErrAuthentication)
	}
	if resp.StatusCode >= 400 {
		if status != "" {
			return nil, &StatusError{Status: status}
		}
		return nil, fmt.Errorf("%s %s: status=%d body=%s", req.Method, req.URL.Path, resp.StatusCode, string(raw))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("bad JSON encoding: %w", ErrMalformedResponse)
	}
	return data, nil
}

// responseStatus 提取服务端载荷里的状态描述
func responseStatus(data any) string {
	m, ok := data.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"error_text", "status", "action_result"} {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func asDict(data any) (map[string]any, error) {
	m, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("response is not a mapping: %w", ErrMalformedResponse)
	}
	return m, nil
}

func asList(data any) ([]any, error) {
	l, ok := data.([]any)
	if !ok {
		return nil, fmt.Errorf("response is not a list: %w", ErrMalformedResponse)
	}
	return l, nil
}

func (c *Client) requireToken() (string, error) {
	token := c.AccessToken()
	if token == "" {
		return "", ErrMissingAccessToken
	}
	return token, nil
}

// CheckAccessToken 校验令牌有效性。令牌为空时校验当前令牌。
func (c *Client) CheckAccessToken(ctx context.Context, token string) error {
	if token == "" {
		var err error
		if token, err = c.requireToken(); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/iamalive",
		strings.NewReader(url.Values{"access_token": {token}}.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("check access token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("malformed checking response: %w", ErrMalformedResponse)
	}
	c.lg.Debug("received error for access token check", zap.Any("response", payload))

	status, _ := payload["status"].(string)
	switch {
	case status == "":
		return fmt.Errorf("error contains no status: %w", ErrAuthentication)
	case strings.Contains(status, "expired"):
		return fmt.Errorf("%s: %w", status, ErrSessionExpired)
	case strings.Contains(status, "wrong"):
		return fmt.Errorf("%s: %w", status, ErrInvalidAccessToken)
	default:
		return fmt.Errorf("%s: %w", status, ErrAuthentication)
	}
}

// FetchAccessToken 从服务端换取新的访问令牌
func (c *Client) FetchAccessToken(ctx context.Context) (string, error) {
	data, err := c.postForm(ctx, "/oauth/token", nil, url.Values{},
		http.Header{"Authorization": {oauthHeader}})
	if err != nil {
		return "", err
	}
	m, err := asDict(data)
	if err != nil {
		return "", err
	}
	token, _ := m["access_token"].(string)
	if token == "" {
		return "", fmt.Errorf("access token not present: %w", ErrMalformedResponse)
	}
	return token, nil
}

// ApplyAccessToken 用给定令牌登录，成功后令牌与用户标识生效
func (c *Client) ApplyAccessToken(ctx context.Context, token string) error {
	if c.username == "" || c.password == "" {
		return fmt.Errorf("username and password are required")
	}

	c.lg.Debug("authenticating access token")
	data, err := c.postForm(ctx, "/api/users/login", nil, url.Values{
		"login":        {c.username},
		"password":     {c.password},
		"lang":         {c.language},
		"v":            {"3"},
		"utc_offset":   {strconv.FormatInt(c.utcOffset/60, 10)},
		"access_token": {token},
	}, nil)
	if err != nil {
		return err
	}
	m, err := asDict(data)
	if err != nil {
		return err
	}
	userID, ok := telemetry.Values(m).Int64("user_id")
	if !ok {
		return fmt.Errorf("user id not present: %w", ErrMalformedResponse)
	}

	c.mu.Lock()
	c.userID = userID
	c.accessToken = token
	c.mu.Unlock()
	c.lg.Info("access token authentication successful")
	return nil
}

// Authenticate 完成认证，至多四步：给定令牌登录、既有令牌登录、
// 换取新令牌、新令牌登录
func (c *Client) Authenticate(ctx context.Context, token string) error {
	if token != "" {
		if err := c.ApplyAccessToken(ctx, token); err == nil {
			return nil
		} else {
			c.lg.Warn("authentication with provided access token failed", zap.Error(err))
		}
	}

	if existing := c.AccessToken(); existing != "" && existing != token {
		if err := c.ApplyAccessToken(ctx, existing); err == nil {
			return nil
		} else {
			c.lg.Warn("authentication with existing access token failed", zap.Error(err))
		}
	}

	fresh, err := c.FetchAccessToken(ctx)
	if err != nil {
		c.lg.Error("could not retrieve access token", zap.Error(err))
		return err
	}
	if err := c.ApplyAccessToken(ctx, fresh); err != nil {
		c.lg.Error("authentication with fetched access token failed", zap.Error(err))
		return err
	}
	return nil
}

// FetchDevices 拉取账号名下的设备属性列表
func (c *Client) FetchDevices(ctx context.Context) ([]map[string]any, error) {
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}
	c.lg.Debug("retrieving devices")
	data, err := c.getJSON(ctx, "/api/devices", url.Values{"access_token": {token}})
	if err != nil {
		return nil, err
	}
	items, err := asList(data)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// RemoteCommand 向目标设备下发远程指令，确认服务端已转发
func (c *Client) RemoteCommand(ctx context.Context, deviceID int64, command telemetry.CommandID, params map[string]any) error {
	token, err := c.requireToken()
	if err != nil {
		return err
	}
	c.lg.Info("sending command",
		zap.Int64("command", int64(command)),
		zap.Int64("device_id", deviceID))

	form := url.Values{
		"id":      {strconv.FormatInt(deviceID, 10)},
		"command": {strconv.FormatInt(int64(command), 10)},
	}
	if len(params) > 0 {
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode command params: %w", err)
		}
		form.Set("comm_params", string(encoded))
	}

	data, err := c.postForm(ctx, "/api/devices/command",
		url.Values{"access_token": {token}}, form, nil)
	if err != nil {
		return err
	}
	m, err := asDict(data)
	if err != nil {
		return err
	}

	status := "unknown error"
	if results, ok := m["action_result"].(map[string]any); ok {
		if s, ok := results[strconv.FormatInt(deviceID, 10)].(string); ok {
			status = s
		}
	}
	if status != "sent" {
		c.lg.Error("error sending command",
			zap.Int64("command", int64(command)),
			zap.Int64("device_id", deviceID),
			zap.String("status", status))
		return &StatusError{Status: status}
	}
	c.lg.Info("command sent",
		zap.Int64("command", int64(command)),
		zap.Int64("device_id", deviceID))
	return nil
}

// WakeUpDevice 唤醒目标设备
func (c *Client) WakeUpDevice(ctx context.Context, deviceID int64) error {
	token, err := c.requireToken()
	if err != nil {
		return err
	}
	c.lg.Info("waking up device", zap.Int64("device_id", deviceID))

	data, err := c.postForm(ctx, "/api/devices/wakeup",
		url.Values{"access_token": {token}},
		url.Values{"id": {strconv.FormatInt(deviceID, 10)}}, nil)
	if err != nil {
		return err
	}
	m, err := asDict(data)
	if err != nil {
		return err
	}
	status, _ := m["status"].(string)
	if status != "success" {
		if status == "" {
			status = "unknown error"
		}
		c.lg.Error("error waking up device",
			zap.Int64("device_id", deviceID), zap.String("status", status))
		return &StatusError{Status: status}
	}
	return nil
}

// FetchDeviceSystem 拉取设备系统信息
func (c *Client) FetchDeviceSystem(ctx context.Context, deviceID int64) (map[string]any, error) {
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}
	data, err := c.getJSON(ctx, "/api/devices/system", url.Values{
		"access_token": {token},
		"id":           {strconv.FormatInt(deviceID, 10)},
	})
	if err != nil {
		return nil, err
	}
	return asDict(data)
}

// FetchDeviceSettings 拉取设备设置，返回 dtime 最新的一份
func (c *Client) FetchDeviceSettings(ctx context.Context, deviceID int64) (map[string]any, error) {
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}
	data, err := c.getJSON(ctx, "/api/devices/settings", url.Values{
		"access_token": {token},
		"id":           {strconv.FormatInt(deviceID, 10)},
	})
	if err != nil {
		return nil, err
	}
	m, err := asDict(data)
	if err != nil {
		return nil, err
	}
	all, ok := m["device_settings"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("device_settings not retrieved: %w", ErrMalformedResponse)
	}
	entries, ok := all[strconv.FormatInt(deviceID, 10)].([]any)
	if !ok || len(entries) == 0 {
		return nil, fmt.Errorf("settings not retrieved: %w", ErrMalformedResponse)
	}

	settings := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		if em, ok := e.(map[string]any); ok {
			settings = append(settings, em)
		}
	}
	if len(settings) == 0 {
		return nil, fmt.Errorf("settings not retrieved: %w", ErrMalformedResponse)
	}
	sort.SliceStable(settings, func(i, j int) bool {
		a, _ := telemetry.Values(settings[i]).Int64("dtime")
		b, _ := telemetry.Values(settings[j]).Int64("dtime")
		return a < b
	})
	return settings[len(settings)-1], nil
}

// FetchTrackData 拉取指定轨迹的数据
func (c *Client) FetchTrackData(ctx context.Context, deviceID, trackID int64, hash string) (*telemetry.HTTPTrack, error) {
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}
	c.lg.Debug("retrieving track data",
		zap.Int64("device_id", deviceID), zap.Int64("track_id", trackID))

	params := url.Values{
		"access_token": {token},
		"dev_id":       {strconv.FormatInt(deviceID, 10)},
		"id":           {strconv.FormatInt(trackID, 10)},
		"only_items":   {"1"},
		"get_tank":     {"1"},
	}
	if hash != "" {
		params.Set("hash", hash)
	}
	data, err := c.getJSON(ctx, "/api/tracks/data", params)
	if err != nil {
		return nil, err
	}
	items, err := asList(data)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("empty track data: %w", ErrMalformedResponse)
	}
	first, ok := items[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("track entry is not a mapping: %w", ErrMalformedResponse)
	}
	return telemetry.NewHTTPTrack(c.lg, first)
}

// FetchEvents 拉取事件流，返回事件原始载荷。to 为零时取当前时刻加
// 一天以规避时区差异。
func (c *Client) FetchEvents(ctx context.Context, from, to int64, limit int, deviceID int64) ([]map[string]any, error) {
	if from < 0 {
		return nil, fmt.Errorf("from must not be less than zero")
	}
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}
	if to <= 0 {
		to = time.Now().Add(24 * time.Hour).Unix()
	}
	c.lg.Debug("fetching events", zap.Int64("from", from), zap.Int64("to", to))

	params := url.Values{
		"access_token": {token},
		"from":         {strconv.FormatInt(from, 10)},
		"to":           {strconv.FormatInt(to, 10)},
	}
	if deviceID != 0 {
		params.Set("id", strconv.FormatInt(deviceID, 10))
	}
	if limit != 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	data, err := c.getJSON(ctx, "/api/lenta", params)
	if err != nil {
		return nil, err
	}
	m, err := asDict(data)
	if err != nil {
		return nil, err
	}
	entries, _ := m["lenta"].([]any)
	events := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		wrapper, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if obj, ok := wrapper["obj"].(map[string]any); ok {
			events = append(events, obj)
		}
	}
	c.lg.Debug("received events", zap.Int("count", len(events)))
	return events, nil
}

// RequestUpdates 拉取自给定时刻以来的增量更新，原始载荷原样返回
func (c *Client) RequestUpdates(ctx context.Context, since int64) (map[string]any, error) {
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}
	data, err := c.getJSON(ctx, "/api/updates", url.Values{
		"access_token": {token},
		"ts":           {strconv.FormatInt(since, 10)},
	})
	if err != nil {
		return nil, err
	}
	return asDict(data)
}

// Geocode 反向地理编码，full 为真时返回完整载荷，否则返回短地址
func (c *Client) Geocode(ctx context.Context, latitude, longitude float64, language string, full bool) (string, map[string]any, error) {
	token, err := c.requireToken()
	if err != nil {
		return "", nil, err
	}
	if language == "" {
		language = c.language
	}
	data, err := c.getJSON(ctx, "/api/geo", url.Values{
		"access_token": {token},
		"lang":         {language},
		"lat":          {strconv.FormatFloat(latitude, 'f', -1, 64)},
		"lon":          {strconv.FormatFloat(longitude, 'f', -1, 64)},
	})
	if err != nil {
		return "", nil, err
	}
	m, err := asDict(data)
	if err != nil {
		return "", nil, err
	}
	if full {
		return "", m, nil
	}
	short, _ := m["short"].(string)
	return short, nil, nil
}
