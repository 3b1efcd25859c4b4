// Package dispatch validates inbound client messages, runs them through the
// connect gate and the handler table, and fans out the results.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gaspardpetit/libsync/core/logx"
	"github.com/gaspardpetit/libsync/sdk/api/spi"
	"github.com/gaspardpetit/libsync/sdk/base/inflight"
	"github.com/gaspardpetit/libsync/sdk/contracts/wire"
	"github.com/gaspardpetit/libsync/server/internal/conn"
	"github.com/gaspardpetit/libsync/server/internal/fanout"
	"github.com/gaspardpetit/libsync/server/internal/fields"
	"github.com/gaspardpetit/libsync/server/internal/handlers"
	"github.com/gaspardpetit/libsync/server/internal/lifecycle"
	"github.com/gaspardpetit/libsync/server/internal/metrics"
)

// Stores resolves the store of an open library.
type Stores interface {
	Store(libraryID string) (spi.Store, bool)
}

// Options configures a Dispatcher. Inflight is optional.
type Options struct {
	Fields    *fields.Registry
	Routes    *handlers.Table
	Lifecycle *lifecycle.Lifecycle
	Fanout    *fanout.Fanout
	Stores    Stores
	Inflight  *inflight.Counter
}

// Dispatcher routes messages. Dispatch is safe for concurrent use; callers
// preserve per-connection ordering by dispatching one message at a time.
type Dispatcher struct {
	fields   *fields.Registry
	routes   *handlers.Table
	life     *lifecycle.Lifecycle
	out      *fanout.Fanout
	stores   Stores
	inflight *inflight.Counter
}

func New(o Options) *Dispatcher {
	return &Dispatcher{
		fields:   o.Fields,
		routes:   o.Routes,
		life:     o.Lifecycle,
		out:      o.Fanout,
		stores:   o.Stores,
		inflight: o.Inflight,
	}
}

// Dispatch handles one raw frame from c. The reply always reaches c before the
// peers see the resulting event. Handlers run with a context that is not
// cancelled when the connection goes away.
func (d *Dispatcher) Dispatch(ctx context.Context, c *conn.Connection, raw []byte) {
	if d.inflight != nil {
		d.inflight.Inc()
		defer d.inflight.Dec()
	}
	start := time.Now()
	c.Touch()
	ctx = context.WithoutCancel(ctx)

	msg, err := d.parse(c, raw)
	if err != nil {
		d.fail(c, salvageRequestID(raw), msg.Action, start, err)
		return
	}
	res, err := d.run(ctx, c, msg)
	if err != nil {
		d.fail(c, msg.RequestID, msg.Action, start, err)
		return
	}
	_ = d.out.ToOriginator(c, wire.OK(msg.RequestID, res.Data))
	metrics.RecordMessage(msg.Action, wire.StatusOK, time.Since(start))

	if res.Event == "" {
		return
	}
	resource, verb := msg.Split()
	d.out.ToLibraryPeers(c.LibraryID(), c.ClientID(), res.Event, res.Payload)
	store, _ := d.stores.Store(c.LibraryID())
	d.out.ToAllPlugins(ctx, spi.ResourceEvent{
		EventName: res.Event,
		LibraryID: c.LibraryID(),
		ClientID:  c.ClientID(),
		Resource:  resource,
		Verb:      verb,
		Request:   msg.Payload.Data,
		Payload:   res.Payload,
		Store:     store,
	})
}

func (d *Dispatcher) parse(c *conn.Connection, raw []byte) (*wire.Message, error) {
	msg := &wire.Message{}
	if err := json.Unmarshal(raw, msg); err != nil {
		return msg, newError(MalformedMessage, "invalid JSON: %v", err)
	}
	switch {
	case msg.Action == "":
		return msg, newError(MalformedMessage, "missing action")
	case msg.RequestID == "":
		return msg, newError(MalformedMessage, "missing requestId")
	case msg.LibraryID == "":
		return msg, newError(MalformedMessage, "missing libraryId")
	case msg.LibraryID != c.LibraryID():
		return msg, newError(MalformedMessage, "libraryId %q does not match the connection", msg.LibraryID)
	case msg.ClientID != "" && msg.ClientID != c.ClientID():
		return msg, newError(MalformedMessage, "clientId %q does not match the connection", msg.ClientID)
	}
	msg.ClientID = c.ClientID()
	if msg.Payload.Data == nil {
		msg.Payload.Data = map[string]any{}
	}
	return msg, nil
}

func (d *Dispatcher) run(ctx context.Context, c *conn.Connection, msg *wire.Message) (handlers.Result, error) {
	resource, verb := msg.Split()
	if resource == "" || verb == "" {
		return handlers.Result{}, newError(UnsupportedAction, "cannot resolve action %q", msg.Action)
	}
	if missing := d.fields.Missing(verb, resource, msg.Payload.Data); len(missing) > 0 {
		return handlers.Result{}, &Error{Kind: MissingField, Msg: "missing required field(s)", Fields: missing}
	}
	if c.Status() != spi.StatusActive && !d.life.Admit(ctx, c, msg) {
		return handlers.Result{}, newError(VetoedByHook, "connection rejected")
	}
	if msg.Action == lifecycle.ActionConnect {
		return handlers.Result{Data: map[string]any{"clientId": c.ClientID(), "status": c.Status()}}, nil
	}
	route, ok := d.routes.Lookup(resource, verb)
	if !ok {
		return handlers.Result{}, newError(UnsupportedAction, "unsupported action %q", msg.Action)
	}
	store, ok := d.stores.Store(c.LibraryID())
	if !ok {
		return handlers.Result{}, newError(OperationFailed, "library %q is not open", c.LibraryID())
	}
	res, err := invoke(ctx, route, handlers.Request{
		LibraryID: c.LibraryID(),
		ClientID:  c.ClientID(),
		Data:      msg.Payload.Data,
		Store:     store,
	})
	if err != nil {
		return handlers.Result{}, &Error{Kind: OperationFailed, Msg: err.Error()}
	}
	return res, nil
}

func invoke(ctx context.Context, route handlers.Route, req handlers.Request) (res handlers.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return route.Handle(ctx, req)
}

func (d *Dispatcher) fail(c *conn.Connection, requestID, action string, start time.Time, err error) {
	kind := OperationFailed
	var de *Error
	if errors.As(err, &de) {
		kind = de.Kind
	}
	logx.Log.Debug().Err(err).
		Str("library_id", c.LibraryID()).
		Str("client_id", c.ClientID()).
		Str("request_id", requestID).
		Str("action", action).
		Str("kind", string(kind)).
		Msg("message failed")
	_ = d.out.ToOriginator(c, wire.Failure(requestID, string(kind), err.Error()))
	if action == "" || kind == MalformedMessage || kind == UnsupportedAction {
		action = "unknown"
	}
	metrics.RecordMessage(action, string(kind), time.Since(start))
}

// salvageRequestID extracts requestId from a frame that failed validation.
func salvageRequestID(raw []byte) string {
	var probe struct {
		RequestID any `json:"requestId"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return spi.IDString(probe.RequestID)
}
