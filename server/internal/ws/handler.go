// Package ws serves library clients over WebSocket.
package ws

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/gaspardpetit/libsync/core/logx"
	"github.com/gaspardpetit/libsync/sdk/base/auth"
	"github.com/gaspardpetit/libsync/server/internal/conn"
	"github.com/gaspardpetit/libsync/server/internal/dispatch"
	"github.com/gaspardpetit/libsync/server/internal/library"
	"github.com/gaspardpetit/libsync/server/internal/lifecycle"
	"github.com/gaspardpetit/libsync/server/internal/serverstate"
	"github.com/gaspardpetit/libsync/server/internal/storage"
)

// Query parameters of the connect URL.
const (
	ParamLibraryID = "libraryId"
	ParamClientID  = "clientId"
	ParamClientKey = "client_key"
)

// Options configures Handler.
type Options struct {
	Libraries       *library.Manager
	Lifecycle       *lifecycle.Lifecycle
	Dispatcher      *dispatch.Dispatcher
	QueueSize       int
	MaxMessageBytes int64
	// AllowedOrigins are host patterns accepted for cross-origin clients.
	AllowedOrigins []string
}

// Handler accepts /ws?libraryId=...&clientId=... connections. The connection
// is admitted with a client.connect handshake built from the query string and
// headers; every inbound frame is then dispatched in order.
func Handler(o Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if serverstate.IsDraining() {
			http.Error(w, "draining", http.StatusServiceUnavailable)
			return
		}
		q := r.URL.Query()
		libraryID := q.Get(ParamLibraryID)
		if !storage.ValidLibraryID(libraryID) {
			http.Error(w, "invalid or missing libraryId", http.StatusBadRequest)
			return
		}
		clientID := q.Get(ParamClientID)
		if clientID == "" {
			clientID = uuid.NewString()
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: o.AllowedOrigins})
		if err != nil {
			logx.Log.Error().Err(err).Str("remote", r.RemoteAddr).Msg("ws accept")
			return
		}
		defer func() { _ = c.Close(websocket.StatusInternalError, "server error") }()
		if o.MaxMessageBytes > 0 {
			c.SetReadLimit(o.MaxMessageBytes)
		}
		ctx := r.Context()
		detached := context.WithoutCancel(ctx)

		if _, err := o.Libraries.Acquire(ctx, libraryID); err != nil {
			logx.Log.Error().Err(err).Str("library_id", libraryID).Msg("open library")
			_ = c.Close(websocket.StatusInternalError, "library unavailable")
			return
		}
		defer o.Libraries.Release(detached, libraryID)

		cn := conn.New(libraryID, clientID, conn.RemoteInfo{Addr: r.RemoteAddr, UserAgent: r.UserAgent()}, o.QueueSize)
		if err := o.Lifecycle.Open(cn); err != nil {
			cn.Close()
			logx.Log.Warn().Err(err).Str("library_id", libraryID).Str("client_id", clientID).Msg("ws open")
			_ = c.Close(websocket.StatusPolicyViolation, "client already connected")
			return
		}
		reason := "transport closed"
		defer func() { o.Lifecycle.Disconnect(detached, cn, reason) }()

		go writeLoop(ctx, c, cn)

		o.Lifecycle.Admit(ctx, cn, lifecycle.Handshake(libraryID, clientID, handshakeData(r)))

		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				var ce websocket.CloseError
				if errors.As(err, &ce) {
					reason = ce.Reason
					if reason == "" {
						reason = "client closed"
					}
					lvl := logx.Log.Info()
					if ce.Code != websocket.StatusNormalClosure && ce.Code != websocket.StatusGoingAway {
						lvl = logx.Log.Warn()
					}
					lvl.Str("library_id", libraryID).Str("client_id", clientID).Int("code", int(ce.Code)).Str("reason", ce.Reason).Msg("ws closed")
				} else {
					logx.Log.Debug().Err(err).Str("library_id", libraryID).Str("client_id", clientID).Msg("ws read")
				}
				return
			}
			o.Dispatcher.Dispatch(ctx, cn, data)
		}
	}
}

func writeLoop(ctx context.Context, c *websocket.Conn, cn *conn.Connection) {
	for {
		select {
		case b := <-cn.Outbound():
			if err := c.Write(ctx, websocket.MessageText, b); err != nil {
				logx.Log.Debug().Err(err).Str("library_id", cn.LibraryID()).Str("client_id", cn.ClientID()).Msg("ws write")
				_ = c.Close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-cn.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// handshakeData exposes the query string and credentials of the upgrade
// request to client::before_connect hooks.
func handshakeData(r *http.Request) map[string]any {
	data := map[string]any{}
	for k, v := range r.URL.Query() {
		if k == ParamLibraryID || k == ParamClientID || len(v) == 0 {
			continue
		}
		data[k] = v[0]
	}
	if key, ok := data[ParamClientKey]; ok {
		delete(data, ParamClientKey)
		data["clientKey"] = key
	}
	if _, ok := data["clientKey"]; !ok {
		if tok := auth.ExtractBearer(r); tok != "" {
			data["clientKey"] = tok
		}
	}
	if ua := r.UserAgent(); ua != "" {
		data["userAgent"] = ua
	}
	return data
}
