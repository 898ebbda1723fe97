package cells

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// events relayed from the subject to every bridge client
var bridgeOutboundKinds = []EventKind{
	KindDocumentNew,
	KindDocumentOpen,
	KindDocumentUpdate,
	KindDocumentError,
	KindTrackCreated,
	KindTrackTemplateSaved,
	KindTemplatesLoaded,
}

// Envelope is the websocket frame of the view bridge.
type Envelope struct {
	Kind  string          `json:"kind"`
	Event json.RawMessage `json:"event,omitempty"`
}

func EncodeEvent(event Event) ([]byte, error) {
	payload, err := encodeJson(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Envelope{
		Kind:  event.Kind().String(),
		Event: payload,
	})
}

// DecodeViewEvent decodes an envelope that carries a view intent.
// Any other kind is rejected; external views cannot publish document events.
func DecodeViewEvent(b []byte) (Event, error) {
	var envelope Envelope
	if err := json.Unmarshal(b, &envelope); err != nil {
		return nil, parseError(err)
	}
	kind, err := ParseEventKind(envelope.Kind)
	if err != nil {
		return nil, parseError(err)
	}
	event, err := NewViewEvent(kind)
	if err != nil {
		return nil, parseError(err)
	}
	if 0 < len(envelope.Event) {
		if err := json.Unmarshal(envelope.Event, event); err != nil {
			return nil, parseError(err)
		}
	}
	return event, nil
}

// ViewBridge attaches external views to the subject over websockets.
//
// Inbound view events are queued and published by `Run`, which must be the
// only goroutine that notifies the subject while the bridge is running.
// A new client first receives a `DocumentOpen` with the current model of the
// attached document, taken on the `Run` goroutine.
// Outbound events are queued per client; a client that falls behind by more
// than `BridgeQueueSize` events is disconnected.
// File intents may only name files in the directory of the attached document.
// Once `Run` returns the bridge is closed and refuses new clients.
type ViewBridge struct {
	*Observation

	document *Document
	settings *Settings
	upgrader websocket.Upgrader
	inbound  chan *bridgeMessage

	stateLock sync.Mutex
	clients   map[*bridgeClient]bool
	closed    bool
}

// a message without an event is the hello of a new client
type bridgeMessage struct {
	client *bridgeClient
	event  Event
}

func NewViewBridge(document *Document, settings *Settings) *ViewBridge {
	self := &ViewBridge{
		Observation: NewObservation(document.Subject()),
		document:    document,
		settings:    settings,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		inbound: make(chan *bridgeMessage),
		clients: map[*bridgeClient]bool{},
	}
	for _, kind := range bridgeOutboundKinds {
		self.AddResponder(kind, self.forward)
	}
	return self
}

func (self *ViewBridge) queueSize() int {
	if self.settings.BridgeQueueSize <= 0 {
		return DefaultBridgeQueueSize
	}
	return self.settings.BridgeQueueSize
}

// Run publishes inbound view events until the context is done.
// It is called once; the bridge is closed when it returns.
func (self *ViewBridge) Run(ctx context.Context) error {
	defer self.closeClients()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message := <-self.inbound:
			self.dispatch(message)
		}
	}
}

func (self *ViewBridge) dispatch(message *bridgeMessage) {
	if message.event == nil {
		self.hello(message.client)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			// a remote view sent an invalid index. the model is checked before
			// it is mutated, so only the sender is dropped
			if indexErr, ok := r.(*IndexError); ok {
				glog.Errorf("[vb]drop client: %s %s\n", message.event.Kind(), indexErr)
				message.client.close()
				return
			}
			panic(r)
		}
	}()
	if err := self.allowFile(message.event); err != nil {
		glog.Infof("[vb]%s denied = %s\n", message.event.Kind(), err)
		message.client.writeError("Can't use file from view", err)
		return
	}
	glog.V(2).Infof("[vb]<- %s\n", message.event.Kind())
	self.Notify(message.event)
}

// allowFile confines file intents to the directory of the attached document.
// Runs on the `Run` goroutine.
func (self *ViewBridge) allowFile(event Event) error {
	var path string
	switch e := event.(type) {
	case *ViewFileOpen:
		path = e.Path
	case *ViewFileSave:
		path = e.Path
	case *ViewFileSaveAs:
		path = e.Path
	default:
		return nil
	}
	current := self.document.model.Path
	if current == nil {
		return fmt.Errorf("%w: %s: the document has no file", ErrFileDenied, path)
	}
	dir, err := filepath.Abs(filepath.Dir(*current))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFileDenied, err)
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFileDenied, err)
	}
	if filepath.Dir(target) != dir {
		return fmt.Errorf("%w: %s is not in %s", ErrFileDenied, path, dir)
	}
	return nil
}

func (self *ViewBridge) hello(client *bridgeClient) {
	b, err := EncodeEvent(&DocumentOpen{
		Model: self.document.Model(),
	})
	if err != nil {
		glog.Errorf("[vb]encode hello error = %s\n", err)
		return
	}
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	// the snapshot is the first frame; events before it are not sent
	client.ready = true
	select {
	case client.send <- b:
	default:
		client.close()
	}
}

func (self *ViewBridge) forward(event Event) {
	b, err := EncodeEvent(event)
	if err != nil {
		glog.Errorf("[vb]encode %s error = %s\n", event.Kind(), err)
		return
	}

	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	for client := range self.clients {
		if !client.ready {
			continue
		}
		select {
		case client.send <- b:
		default:
			glog.Infof("[vb]drop slow client\n")
			client.close()
		}
	}
}

func (self *ViewBridge) authorize(r *http.Request) error {
	if len(self.settings.BridgeSecret) == 0 {
		return nil
	}
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		return errors.New("missing token")
	}
	_, err := jwt.Parse(
		tokenStr,
		func(token *jwt.Token) (any, error) {
			return self.settings.BridgeSecret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	return err
}

func (self *ViewBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := self.authorize(r); err != nil {
		glog.V(1).Infof("[vb]unauthorized %s = %s\n", r.RemoteAddr, err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if self.isClosed() {
		http.Error(w, ErrBridgeClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := self.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		glog.V(1).Infof("[vb]upgrade %s error = %s\n", r.RemoteAddr, err)
		return
	}

	client := newBridgeClient(conn, self.queueSize())
	if !self.addClient(client) {
		// closed during the upgrade
		client.close()
		return
	}
	defer self.removeClient(client)
	glog.V(1).Infof("[vb]connect %s\n", r.RemoteAddr)

	go client.writeLoop()
	client.readLoop(self.inbound)
	glog.V(1).Infof("[vb]disconnect %s\n", r.RemoteAddr)
}

// ClientCount is the number of connected views.
func (self *ViewBridge) ClientCount() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return len(self.clients)
}

func (self *ViewBridge) isClosed() bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.closed
}

func (self *ViewBridge) addClient(client *bridgeClient) bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if self.closed {
		return false
	}
	self.clients[client] = true
	return true
}

func (self *ViewBridge) removeClient(client *bridgeClient) {
	self.stateLock.Lock()
	delete(self.clients, client)
	self.stateLock.Unlock()
	client.close()
}

func (self *ViewBridge) closeClients() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.closed = true
	for client := range self.clients {
		client.close()
	}
}

type bridgeClient struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	// set by the hello, under the bridge state lock
	ready bool
}

func newBridgeClient(conn *websocket.Conn, queueSize int) *bridgeClient {
	return &bridgeClient{
		conn: conn,
		send: make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
}

func (self *bridgeClient) close() {
	self.closeOnce.Do(func() {
		close(self.done)
		self.conn.Close()
	})
}

func (self *bridgeClient) readLoop(inbound chan<- *bridgeMessage) {
	select {
	case inbound <- &bridgeMessage{client: self}:
	case <-self.done:
		return
	}
	for {
		_, b, err := self.conn.ReadMessage()
		if err != nil {
			return
		}
		event, err := DecodeViewEvent(b)
		if err != nil {
			glog.Infof("[vb]bad frame = %s\n", err)
			self.writeError("Can't read view event", err)
			continue
		}
		select {
		case inbound <- &bridgeMessage{client: self, event: event}:
		case <-self.done:
			return
		}
	}
}

// rejected frames are answered directly to the sender, without a document model
func (self *bridgeClient) writeError(message string, err error) {
	b, encodeErr := EncodeEvent(&DocumentError{
		Message: fmt.Sprintf("%s: %s", message, err),
		Err:     err,
	})
	if encodeErr != nil {
		return
	}
	select {
	case self.send <- b:
	case <-self.done:
	default:
	}
}

func (self *bridgeClient) writeLoop() {
	for {
		select {
		case <-self.done:
			return
		case b := <-self.send:
			if err := self.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				self.close()
				return
			}
		}
	}
}
