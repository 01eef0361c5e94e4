package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/YAtOff/lansync/internal/market"
	"github.com/YAtOff/lansync/internal/model"
	"github.com/YAtOff/lansync/internal/store"
)

// NodeSink receives a RemoteNode announced by a peer, handing it to the
// local receive worker's queue (spec.md section 6: "server enqueues it for
// the local receive worker").
type NodeSink interface {
	EnqueueRemoteNode(namespace string, node model.RemoteNode) error
}

// MarketStore is the subset of internal/store.Store the market endpoint
// exchanges against.
type MarketStore interface {
	ExchangeWithDB(namespace, nodeKey string, m *market.Market) (*market.Market, error)
}

// Server exposes the chunk/market/node endpoints every peer serves, routed
// with httprouter the way the donor's api package routes its gateway
// endpoints.
type Server struct {
	Store  *store.Store
	Market MarketStore
	Sink   NodeSink

	router *httprouter.Router
}

// NewServer builds a Server and wires its routes.
func NewServer(st *store.Store, mk MarketStore, sink NodeSink) *Server {
	s := &Server{Store: st, Market: mk, Sink: sink, router: httprouter.New()}
	s.router.GET("/chunk/:namespace/:hash", s.handleGetChunk)
	s.router.HEAD("/chunk/:namespace/:hash", s.handleHeadChunk)
	s.router.POST("/market/:namespace/:key", s.handleExchangeMarket)
	s.router.POST("/node/:namespace", s.handleAnnounceNode)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	namespace := ps.ByName("namespace")
	hash := ps.ByName("hash")

	data, err := s.Store.ReadChunkBytes(namespace, hash)
	if errors.Is(err, store.ErrChunkNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleHeadChunk(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	namespace := ps.ByName("namespace")
	hash := ps.ByName("hash")

	_, _, _, ok, err := s.Store.FindChunk(namespace, hash)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleExchangeMarket(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	namespace := ps.ByName("namespace")
	key := ps.ByName("key")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	theirs, err := market.FromRecord(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	merged, err := s.Market.ExchangeWithDB(namespace, key, theirs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(merged.AsRecord())
}

func (s *Server) handleAnnounceNode(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	namespace := ps.ByName("namespace")

	var node model.RemoteNode
	if err := json.NewDecoder(r.Body).Decode(&node); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	node.Namespace = namespace

	if err := s.Sink.EnqueueRemoteNode(namespace, node); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
