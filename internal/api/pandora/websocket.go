package pandora

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/pangazer/internal/telemetry"
)

// DefaultReadTimeout 两条推送之间允许的最大静默时长
const DefaultReadTimeout = 180 * time.Second

// WSMessage 更新通道的一条推送
type WSMessage struct {
	Type telemetry.WSMessageType `json:"type"`
	Data map[string]any          `json:"data"`
}

// ListenerCallbacks 监听器生命周期回调
type ListenerCallbacks struct {
	// OnMessage 每条结构合法的推送调用一次，返回 false 要求立即
	// 重建连接
	OnMessage func(msg WSMessage) bool
	// OnConnect 连接建立后调用
	OnConnect func()
	// OnDisconnect 连接断开后调用，err 可为 nil
	OnDisconnect func(err error)
}

// Listener 更新 WebSocket 监听器：断线指数退避重连，认证失效时
// 自动重新认证
type Listener struct {
	lg     *zap.Logger
	client *Client

	callbacks   ListenerCallbacks
	readTimeout time.Duration
	autoReauth  bool

	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
}

// NewListener 创建监听器
func NewListener(lg *zap.Logger, client *Client, callbacks ListenerCallbacks) *Listener {
	return &Listener{
		lg:                lg,
		client:            client,
		callbacks:         callbacks,
		readTimeout:       DefaultReadTimeout,
		autoReauth:        true,
		reconnectDelay:    1 * time.Second,
		maxReconnectDelay: 30 * time.Second,
	}
}

// SetReadTimeout 调整推送静默上限，非正值关闭该检查
func (l *Listener) SetReadTimeout(d time.Duration) { l.readTimeout = d }

// SetAutoReauth 控制断线后是否自动重新认证
func (l *Listener) SetAutoReauth(enabled bool) { l.autoReauth = enabled }

// endpoint 组装 WS 地址，http(s) 根地址折算为 ws(s)
func (l *Listener) endpoint() (string, error) {
	token := l.client.AccessToken()
	if token == "" {
		return "", ErrMissingAccessToken
	}
	base := l.client.BaseURL()
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/v4/updates/ws?access_token=" + token, nil
}

// Run 持续监听直到 ctx 取消。每次断开按指数退避重连，必要时先校验
// 并刷新令牌。
func (l *Listener) Run(ctx context.Context) error {
	delay := l.reconnectDelay
	for {
		err := l.listenOnce(ctx)
		if ctx.Err() != nil {
			l.lg.Debug("ws listener stopped gracefully")
			return ctx.Err()
		}
		if l.callbacks.OnDisconnect != nil {
			l.callbacks.OnDisconnect(err)
		}
		if err != nil {
			l.lg.Error("ws connection lost", zap.Error(err))
		} else {
			l.lg.Debug("ws client closed")
			delay = l.reconnectDelay
		}

		if l.autoReauth {
			l.reauth(ctx)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > l.maxReconnectDelay {
			delay = l.maxReconnectDelay
		}
	}
}

// ListenOnce 监听单个连接直到其断开，不重连
func (l *Listener) ListenOnce(ctx context.Context) error {
	return l.listenOnce(ctx)
}

func (l *Listener) listenOnce(ctx context.Context) error {
	endpoint, err := l.endpoint()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode <= 403 {
			return ErrSessionExpired
		}
		return err
	}
	defer conn.Close()
	l.lg.Debug("websockets connected")
	if l.callbacks.OnConnect != nil {
		l.callbacks.OnConnect()
	}

	// ctx 取消时立刻掐断阻塞中的读取
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		if l.readTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(l.readTimeout)); err != nil {
				return err
			}
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}

		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			l.lg.Warn("unknown message data", zap.ByteString("message", raw))
			continue
		}
		if msg.Type == "" || msg.Data == nil {
			l.lg.Error("ws malformed data", zap.ByteString("message", raw))
			continue
		}
		l.lg.Debug("received ws message", zap.String("type", string(msg.Type)))
		if l.callbacks.OnMessage != nil && !l.callbacks.OnMessage(msg) {
			return nil
		}
	}
}

// reauth 校验当前令牌，认证错误时重新认证；临时性失败只记录，
// 留待下次重试
func (l *Listener) reauth(ctx context.Context) {
	l.lg.Debug("checking ws access token")
	err := l.client.CheckAccessToken(ctx, "")
	if err == nil {
		l.lg.Debug("ws access token still valid")
		return
	}
	if !errors.Is(err, ErrAuthentication) {
		l.lg.Error("temporary authentication error, will check again later", zap.Error(err))
		return
	}
	l.lg.Debug("performing authentication")
	if err := l.client.Authenticate(ctx, ""); err != nil {
		l.lg.Error("reauthentication failed", zap.Error(err))
	}
}
