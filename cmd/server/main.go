package main

import (
	"encoding/json"
	"flag"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kevinxiao27/reg-walker/cg"
	"github.com/kevinxiao27/reg-walker/eg"
	"github.com/kevinxiao27/reg-walker/ol"
	"github.com/kevinxiao27/reg-walker/util"
)

type Server struct {
	documents map[string]*ol.OpLog[rune]
	clients   map[string][]*websocket.Conn
	upgrader  websocket.Upgrader
	log       *zap.Logger
}

type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type DocumentRequest struct {
	Agent string `json:"agent"`
	Pos   int    `json:"pos"`
	Text  string `json:"text,omitempty"`
	Len   int    `json:"len,omitempty"`
}

type DocumentResponse struct {
	Content string `json:"content"`
	Version []VersionID `json:"version"`
}

type VersionID struct {
	Agent string `json:"agent"`
	Seq   int    `json:"seq"`
}

func NewServer(log *zap.Logger) *Server {
	return &Server{
		documents: make(map[string]*ol.OpLog[rune]),
		clients:   make(map[string][]*websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

func (s *Server) getDocument(id string) *ol.OpLog[rune] {
	if doc, exists := s.documents[id]; exists {
		return doc
	}
	oplog := ol.NewOpLog[rune]()
	s.documents[id] = oplog
	return oplog
}

func (s *Server) snapshot(oplog *ol.OpLog[rune]) (DocumentResponse, error) {
	content, err := eg.CheckoutSimple(oplog)
	if err != nil {
		return DocumentResponse{}, err
	}
	heads, err := ol.GetLatestVersion(oplog)
	if err != nil {
		return DocumentResponse{}, err
	}
	version := util.MapN(heads, func(id cg.ID) (VersionID, error) {
		return VersionID{Agent: id.Agent, Seq: id.Seq}, nil
	})
	return DocumentResponse{Content: string(content), Version: version}, nil
}

func (s *Server) applyRequest(docID string, req DocumentRequest, isInsert bool) (DocumentResponse, error) {
	oplog := s.getDocument(docID)
	agent := req.Agent
	if agent == "" {
		agent = uuid.NewString()
	}

	var err error
	if isInsert {
		err = ol.LocalInsert(oplog, agent, req.Pos, []rune(req.Text)...)
	} else {
		err = ol.LocalDelete(oplog, agent, req.Pos, req.Len)
	}
	if err != nil {
		return DocumentResponse{}, err
	}
	return s.snapshot(oplog)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	docID := r.URL.Query().Get("doc")
	s.log.Info("insert", zap.String("doc", docID), zap.String("agent", req.Agent), zap.Int("pos", req.Pos))

	resp, err := s.applyRequest(docID, req, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	docID := r.URL.Query().Get("doc")
	s.log.Info("delete", zap.String("doc", docID), zap.String("agent", req.Agent), zap.Int("pos", req.Pos), zap.Int("len", req.Len))

	resp, err := s.applyRequest(docID, req, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	docID := r.URL.Query().Get("doc")
	resp, err := s.snapshot(s.getDocument(docID))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) broadcastToDocument(docID string, msg WSMessage, skip *websocket.Conn) {
	clients := s.clients[docID]
	s.log.Info("broadcast", zap.String("type", msg.Type), zap.Int("clients", len(clients)))
	for _, conn := range clients {
		if conn == skip {
			continue
		}
		if err := conn.WriteJSON(msg); err != nil {
			s.log.Warn("broadcast write failed", zap.Error(err))
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	docID := r.URL.Query().Get("doc")
	s.clients[docID] = append(s.clients[docID], conn)
	s.log.Info("client connected", zap.String("doc", docID), zap.Int("total", len(s.clients[docID])))

	// Send current document state.
	if resp, err := s.snapshot(s.getDocument(docID)); err == nil {
		data, _ := json.Marshal(resp)
		conn.WriteJSON(WSMessage{Type: "init", Data: data})
	}

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}

		var req DocumentRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.log.Warn("bad message", zap.String("type", msg.Type), zap.Error(err))
			continue
		}

		var resp DocumentResponse
		switch msg.Type {
		case "insert":
			resp, err = s.applyRequest(docID, req, true)
		case "delete":
			resp, err = s.applyRequest(docID, req, false)
		default:
			continue
		}
		if err != nil {
			s.log.Warn("apply failed", zap.String("type", msg.Type), zap.Error(err))
			continue
		}

		data, _ := json.Marshal(resp)
		s.broadcastToDocument(docID, WSMessage{Type: "doc", Data: data}, nil)
	}

	// Remove client.
	for i, c := range s.clients[docID] {
		if c == conn {
			s.clients[docID] = append(s.clients[docID][:i], s.clients[docID][i+1:]...)
			break
		}
	}
	s.log.Info("client disconnected", zap.String("doc", docID), zap.Int("remaining", len(s.clients[docID])))
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	log := zap.Must(zap.NewProduction())
	defer log.Sync()

	server := NewServer(log)

	r := mux.NewRouter()
	r.HandleFunc("/ws", server.handleWebSocket)
	r.HandleFunc("/insert", server.handleInsert).Methods(http.MethodPost)
	r.HandleFunc("/delete", server.handleDelete).Methods(http.MethodPost)
	r.HandleFunc("/doc", server.handleGet).Methods(http.MethodGet)

	log.Info("api server starting", zap.String("addr", *addr))
	log.Fatal("server exited", zap.Error(http.ListenAndServe(*addr, r)))
}
