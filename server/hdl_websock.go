/******************************************************************************
 *
 *  Description :
 *
 *    Handler of websocket connections: streams published content events for
 *    a single topic key to the connected client.
 *
 *****************************************************************************/

package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/discoursio/core/server/fanout"
	"github.com/discoursio/core/server/logs"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = idleSessionTimeout

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Inbound frames are ignored, anything longer than this is abuse.
	maxInboundFrame = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow connections from any Origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// readLoop consumes inbound frames so close and pong control messages are
// processed. Clients have nothing to say on this connection.
func readLoop(ws *websocket.Conn) {
	ws.SetReadLimit(maxInboundFrame)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func writeLoop(ws *websocket.Conn, sub *fanout.Subscription, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		// Break readLoop.
		ws.Close()
	}()

	for {
		select {
		case ev := <-sub.Events:
			raw, err := json.Marshal(ev)
			if err != nil {
				logs.Error.Println("ws: failed to serialize event:", err)
				continue
			}
			if err = wsWrite(ws, websocket.TextMessage, raw); err != nil {
				logs.Warning.Println("ws: writeLoop:", err)
				return
			}

		case <-stop:
			return

		case <-ticker.C:
			if err := wsWrite(ws, websocket.PingMessage, nil); err != nil {
				logs.Warning.Println("ws: writeLoop: ping/", err)
				return
			}
		}
	}
}

// wsWrite writes a message with the given message type and payload.
func wsWrite(ws *websocket.Conn, mt int, payload []byte) error {
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(mt, payload)
}

// serveWebSocket upgrades the connection and streams events published under
// the requested topic key until the client goes away.
func serveWebSocket(wrt http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		wrt.Header().Set("Allow", "GET")
		http.Error(wrt, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	topic := req.URL.Query().Get("topic")
	if topic == "" {
		http.Error(wrt, "missing topic", http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(wrt, req, nil)
	if _, ok := err.(websocket.HandshakeError); ok {
		logs.Warning.Println("ws: not a websocket handshake")
		return
	} else if err != nil {
		logs.Warning.Println("ws: failed to upgrade:", err)
		return
	}

	sub := globals.events.Subscribe(topic)
	defer globals.events.Unsubscribe(sub)

	stop := make(chan struct{})
	defer close(stop)

	go writeLoop(ws, sub, stop)
	readLoop(ws)
}
