package wsrouter

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
)

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type HandlerFunc func(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error

// ErrorFunc is called when a handler returns an error or an unknown
// message type is received. It must not close the connection.
type ErrorFunc func(ctx context.Context, conn *websocket.Conn, err error)

type WSRouter struct {
	routes  map[string]HandlerFunc
	onError ErrorFunc
}

func New(onError ErrorFunc) *WSRouter {
	return &WSRouter{
		routes:  make(map[string]HandlerFunc),
		onError: onError,
	}
}

func (r *WSRouter) Handle(messageType string, handler HandlerFunc) {
	r.routes[messageType] = handler
}

// ServeConn reads messages from the connection until it fails and routes
// each one by its type. The read error is returned to the caller so it can
// run its disconnect path.
func (r *WSRouter) ServeConn(ctx context.Context, conn *websocket.Conn) error {
	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		handler, ok := r.routes[msg.Type]
		if !ok {
			if r.onError != nil {
				r.onError(ctx, conn, &UnknownMessageTypeError{Type: msg.Type})
			}
			continue
		}

		msgCtx := context.WithValue(ctx, messageTypeKey, msg.Type)
		if err := handler(msgCtx, conn, msg.Payload); err != nil {
			if r.onError != nil {
				r.onError(msgCtx, conn, err)
			}
		}
	}
}
