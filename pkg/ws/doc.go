// Package ws provides the WebSocket transport layer for the Qiao framework.
//
// # Features
//
//   - Explicit per-connection state machine (awaiting_connect -> open -> closed)
//   - Type-safe endpoints with Go generics: one input and one output type per endpoint
//   - Single event goroutine per connection, so business callbacks never race
//   - Bounded send buffer with documented drop-oldest overflow policy
//   - Per-message compression negotiated from the Accept-Encoding header (gzip, deflate)
//   - Supervision-style error recovery via resume/stop directives
//   - Heartbeat (ping/pong) with configurable interval and read deadline
//   - Origin whitelist and pre-upgrade authentication hooks
//   - Pluggable metrics (Prometheus implementation included)
//
// # Basic Usage
//
// Define the handler set for an endpoint and create a server:
//
//	srv, err := ws.NewServer(&ws.Handlers[Ask, Tell]{
//	    Decode: func(data []byte, binary bool) (Ask, error) {
//	        var a Ask
//	        return a, json.Unmarshal(data, &a)
//	    },
//	    Encode: func(t Tell) ([]byte, error) { return json.Marshal(t) },
//	    OnMessage: func(p *ws.Pusher[Ask, Tell], in Ask) {
//	        p.Reply(Tell{Echo: in.Text})
//	    },
//	    OnClose: func(auth any, last Ask, ok bool) {
//	        // last is the final input handled before the close, ok reports
//	        // whether any input was handled at all
//	    },
//	}, ws.WithSendBuffer(64))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	http.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
//	    srv.Handle(w, r)
//	})
//
// # Connection Lifecycle
//
// Every connection starts in the awaiting_connect state. The server posts a
// connect event before the read pump starts, so the transition to open always
// happens before the first inbound frame is examined. Frames arriving before
// the connect event are dropped and counted. Once open, inbound frames are
// decoded and handed to OnMessage one at a time. Any close (peer close frame,
// server shutdown, Pusher.Stop, fatal error) moves the connection to closed,
// fires OnClose exactly once, and releases the socket. Closed is terminal.
//
// # Error Recovery
//
// Failures consult the optional OnError callback, which returns a directive:
//
//	OnError: func(err error) (ws.Directive, bool) {
//	    if errors.IsKind(err, errors.KindDecode) {
//	        return ws.Resume, true // skip the bad frame, keep the connection
//	    }
//	    return 0, false // unmatched
//	},
//
// Stream failures (decode errors, handler panics, socket errors) close the
// connection when the directive is missing or unmatched. Reply failures
// (encode errors) only log and resume, because a bad outbound message should
// not tear down an otherwise healthy connection. Restart is accepted but
// treated as Resume: a single connection cannot be restarted in place.
//
// # Backpressure
//
// Outbound messages pass through a fixed-capacity buffer (default 30). When
// the buffer is full, the oldest buffered message is silently dropped to make
// room for the newest. Drops are visible through the Metrics interface, never
// as an error to the caller.
//
// # Compression
//
// The server picks the first entry of its configured encoding list that the
// client also offers in Accept-Encoding, announces it in the X-Stream-Encoding
// response header, and from then on both sides exchange compressed binary
// frames. Without a common encoding the connection runs uncompressed text.
package ws
