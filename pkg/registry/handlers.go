package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ryandielhenn/hera/internal/telemetry"
	"github.com/ryandielhenn/hera/pkg/gossip"
	"github.com/ryandielhenn/hera/pkg/state"
)

// maxPayloadBytes caps a single instance payload.
const maxPayloadBytes = 1 << 20

// Handler returns the HTTP API. Operator endpoints start with an underscore
// so they never shadow a service name.
func (r *Registry) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /_healthz", r.Healthz)
	mux.Handle("GET /_info", telemetry.Instrument("info", http.HandlerFunc(r.Info)))
	mux.Handle("GET /_metrics", telemetry.MetricsHandler())
	mux.Handle("GET "+gossip.DeltasPath, telemetry.Instrument("deltas", http.HandlerFunc(r.Deltas)))
	mux.Handle("GET /{service}", telemetry.Instrument("index", http.HandlerFunc(r.Index)))
	mux.Handle("PUT /{service}/{instance}", telemetry.Instrument("update", http.HandlerFunc(r.Update)))
	mux.Handle("DELETE /{service}/{instance}", telemetry.Instrument("remove", http.HandlerFunc(r.Remove)))
	// anything else, including a known path with the wrong method
	mux.HandleFunc("/", http.NotFound)
	return mux
}

// Healthz returns 200 OK to indicate the node is alive.
func (r *Registry) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Info writes a JSON summary of this node and what it knows about its peers.
func (r *Registry) Info(w http.ResponseWriter, _ *http.Request) {
	type peer struct {
		Addr          string `json:"addr"`
		Deltas        int    `json:"deltas"`
		LastTimestamp int64  `json:"last_timestamp"`
		gossip.PeerHealth
	}
	type resp struct {
		Name     string          `json:"name"`
		PID      int             `json:"pid"`
		Now      time.Time       `json:"now"`
		Deltas   int             `json:"deltas"`
		Services []string        `json:"services"`
		Peers    map[string]peer `json:"peers"`
	}

	health := r.cluster.Health().Snapshot()
	peers := make(map[string]peer)
	for _, n := range r.cluster.Nodes() {
		peers[n.Name] = peer{
			Addr:          n.Addr(),
			Deltas:        n.Replica.Len(),
			LastTimestamp: n.LastTimestamp(),
			PeerHealth:    health[n.Name],
		}
	}
	writeJSON(w, http.StatusOK, resp{
		Name:     r.name,
		PID:      os.Getpid(),
		Now:      time.Now(),
		Deltas:   r.local.Len(),
		Services: r.combined.Services(),
		Peers:    peers,
	}, false)
}

// Index lists the live instances of a service from the last rebuild.
func (r *Registry) Index(w http.ResponseWriter, req *http.Request) {
	result := make(map[string]json.RawMessage)
	for instance, payload := range r.combined.Service(req.PathValue("service")) {
		result[instance] = payload
	}
	writeJSON(w, http.StatusOK, result, req.URL.Query().Has("pretty"))
}

// Update stores the JSON body as the payload of an instance.
func (r *Registry) Update(w http.ResponseWriter, req *http.Request) {
	service, instance, ok := pathKey(w, req)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "body is not valid JSON", http.StatusBadRequest)
		return
	}
	var payload bytes.Buffer
	if err := json.Compact(&payload, body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if state.IsTombstone(payload.Bytes()) {
		http.Error(w, "payload is reserved", http.StatusBadRequest)
		return
	}

	d := r.local.Put(service, instance, payload.Bytes())
	r.log.Debug("update",
		zap.String("service", service),
		zap.String("instance", instance),
		zap.Int64("ts", d.Timestamp),
	)
	w.WriteHeader(http.StatusNoContent)
}

// Remove writes a tombstone for an instance.
func (r *Registry) Remove(w http.ResponseWriter, req *http.Request) {
	service, instance, ok := pathKey(w, req)
	if !ok {
		return
	}
	d := r.local.Remove(service, instance)
	r.log.Debug("remove",
		zap.String("service", service),
		zap.String("instance", instance),
		zap.Int64("ts", d.Timestamp),
	)
	w.WriteHeader(http.StatusNoContent)
}

// Deltas answers a gossip pull: query parameters are origin=since pairs.
func (r *Registry) Deltas(w http.ResponseWriter, req *http.Request) {
	since, err := gossip.DecodeCursors(req.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, gossip.Message(r.combined.Deltas(since)), false)
}

func pathKey(w http.ResponseWriter, req *http.Request) (service, instance string, ok bool) {
	service, instance = req.PathValue("service"), req.PathValue("instance")
	if strings.HasPrefix(service, "_") {
		http.Error(w, "service names starting with '_' are reserved", http.StatusBadRequest)
		return "", "", false
	}
	// JSON would silently rewrite invalid bytes and peers would file the
	// record under a different key.
	if !utf8.ValidString(service) || !utf8.ValidString(instance) {
		http.Error(w, "service and instance must be valid UTF-8", http.StatusBadRequest)
		return "", "", false
	}
	return service, instance, true
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
