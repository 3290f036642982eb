package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/gqlfederate/gateway/ast"
	"github.com/gqlfederate/gateway/executor"
	"github.com/gqlfederate/gateway/internal/telemetry"
	"github.com/gqlfederate/gateway/planner"
	"github.com/gqlfederate/gateway/transport"
)

// Middleware wraps an http.Handler, mirroring graphql/middleware.go's
// MiddlewareFunc chain shape adapted to net/http's own handler-wrapping
// idiom rather than thunder's ComputationInput/Output pipeline, since the
// gateway's request/response is already an http.Request/ResponseWriter
// pair and doesn't need a second computation envelope.
type Middleware func(http.Handler) http.Handler

func chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// CORS builds a Middleware that sets permissive CORS headers for the given
// allowed origins ("*" allowed as a wildcard entry).
func CORS(origins []string) Middleware {
	allowed := map[string]bool{}
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if wildcard {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin != "" && allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Server is the gateway's HTTP/WS entrypoint: POST /graphql for
// query/mutation, GET /graphql (with a WebSocket upgrade) for
// subscriptions, GET /healthz, GET /debug/plan (spec.md §6 External
// Interfaces). Grounded on graphql/http.go's httpHandler.ServeHTTP, adapted
// from thunder's reactive-rerunner-per-request execution to a single
// synchronous executor.Run call per spec.md §4.4's one-shot semantics.
type Server struct {
	holder  *SchemaHolder
	fetcher transport.Fetcher
	logger  telemetry.Logger
	metrics *telemetry.Metrics

	upgrader websocket.Upgrader
}

// NewServer builds a Server that resolves plans against the schema held by
// holder and executes them against fetcher.
func NewServer(holder *SchemaHolder, fetcher transport.Fetcher, logger telemetry.Logger, metrics *telemetry.Metrics) *Server {
	return &Server{
		holder:  holder,
		fetcher: fetcher,
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			Subprotocols:    []string{"graphql-transport-ws", "graphql-ws"},
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Handler builds the mux with CORS applied, ready to hand to an
// http.Server.
func (s *Server) Handler(corsOrigins []string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", s.handleGraphQL)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/debug/plan", s.handleDebugPlan)
	return chain(mux, CORS(corsOrigins))
}

type graphQLRequestBody struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.handleSubscriptionUpgrade(w, r)
		return
	}
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "request must be POST or a WebSocket upgrade")
		return
	}

	var body graphQLRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, parseErr := ast.Parse(body.Query)
	if parseErr != nil {
		writeJSON(w, &executor.Result{Errors: []*ast.Error{parseErr}})
		return
	}

	sch := s.holder.Load()
	res, planErrs := planner.Plan(sch, doc, body.OperationName, body.Variables)
	if len(planErrs) > 0 {
		writeJSON(w, &executor.Result{Errors: planErrs})
		return
	}

	if res.Subscribe != nil {
		writeErrorResponse(w, http.StatusBadRequest, "subscriptions require a WebSocket connection")
		return
	}

	if s.metrics != nil {
		s.metrics.PlanLayerCount.Observe(float64(flattenLayerDepth(res.Root)))
	}

	e := executor.New(sch, s.fetcher, s.logger, s.metrics)
	result := e.Run(r.Context(), res.Root, doc, body.OperationName, body.Variables)
	writeJSON(w, result)
}

// flattenLayerDepth counts how many Flatten steps run one after another in
// the plan tree (Sequence children add up, Parallel children take the
// maximum), a proxy for how many entity-loop layers the planner needed
// (spec.md §4.3's layered loop).
func flattenLayerDepth(n *planner.Node) int {
	if n == nil {
		return 0
	}
	if n.Kind == planner.Flatten {
		return 1
	}
	best, total := 0, 0
	for _, c := range n.Children {
		d := flattenLayerDepth(c)
		total += d
		if d > best {
			best = d
		}
	}
	if n.Kind == planner.Sequence {
		return total
	}
	return best
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleDebugPlan renders the plan tree for a query without executing it,
// for manual inspection (planner.Explain/ExplainSubscribe).
func (s *Server) handleDebugPlan(w http.ResponseWriter, r *http.Request) {
	var body graphQLRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, parseErr := ast.Parse(body.Query)
	if parseErr != nil {
		writeErrorResponse(w, http.StatusBadRequest, parseErr.Error())
		return
	}

	sch := s.holder.Load()
	res, planErrs := planner.Plan(sch, doc, body.OperationName, body.Variables)
	if len(planErrs) > 0 {
		writeErrorResponse(w, http.StatusBadRequest, planErrs[0].Error())
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	if res.Subscribe != nil {
		w.Write([]byte(planner.ExplainSubscribe(res.Subscribe)))
		return
	}
	w.Write([]byte(planner.Explain(res.Root)))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&executor.Result{Errors: []*ast.Error{ast.Errorf("%s", message)}})
}

// clientWsMessage mirrors the two client-facing subscription sub-protocols
// this server negotiates with browsers/clients (distinct from
// transport.wsConnection, which speaks the same protocols upstream to
// subgraphs).
type clientWsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (s *Server) handleSubscriptionUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	protocol := conn.Subprotocol()
	startType, stopType := "subscribe", "complete"
	if protocol == "graphql-ws" {
		startType, stopType = "start", "stop"
	}

	if err := conn.WriteJSON(clientWsMessage{Type: "connection_ack"}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	active := map[string]context.CancelFunc{}
	defer func() {
		for _, stop := range active {
			stop()
		}
	}()

	for {
		var msg clientWsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case startType:
			var body graphQLRequestBody
			json.Unmarshal(msg.Payload, &body)
			subCtx, subCancel := context.WithCancel(ctx)
			active[msg.ID] = subCancel
			go s.runClientSubscription(subCtx, conn, msg.ID, body, stopType)

		case stopType, "connection_terminate":
			if stop, ok := active[msg.ID]; ok {
				stop()
				delete(active, msg.ID)
			}
			if msg.Type == "connection_terminate" {
				return
			}
		}
	}
}

func (s *Server) runClientSubscription(ctx context.Context, conn *websocket.Conn, id string, body graphQLRequestBody, stopType string) {
	doc, parseErr := ast.Parse(body.Query)
	if parseErr != nil {
		conn.WriteJSON(clientWsMessage{Type: "error", ID: id, Payload: mustJSON(parseErr)})
		return
	}

	sch := s.holder.Load()
	res, planErrs := planner.Plan(sch, doc, body.OperationName, body.Variables)
	if len(planErrs) > 0 {
		conn.WriteJSON(clientWsMessage{Type: "error", ID: id, Payload: mustJSON(planErrs)})
		return
	}
	if res.Subscribe == nil {
		conn.WriteJSON(clientWsMessage{Type: "error", ID: id, Payload: mustJSON("operation is not a subscription")})
		return
	}

	e := executor.New(sch, s.fetcher, s.logger, s.metrics)
	events, err := e.Subscribe(ctx, res.Subscribe, doc, body.OperationName, body.Variables)
	if err != nil {
		conn.WriteJSON(clientWsMessage{Type: "error", ID: id, Payload: mustJSON(err.Error())})
		return
	}

	dataType := "next"
	if stopType == "stop" {
		dataType = "data"
	}

	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-events:
			if !ok {
				conn.WriteJSON(clientWsMessage{Type: "complete", ID: id})
				return
			}
			if err := conn.WriteJSON(clientWsMessage{Type: dataType, ID: id, Payload: mustJSON(result)}); err != nil {
				return
			}
		}
	}
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`null`)
	}
	return b
}
