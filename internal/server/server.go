package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tronfunder/internal/apperr"
	"tronfunder/internal/config"
	"tronfunder/internal/confirm"
	"tronfunder/internal/funding"
	"tronfunder/internal/hmacauth"
	"tronfunder/internal/metrics"
)

// Evaluator runs one funding evaluation.
type Evaluator interface {
	Evaluate(ctx context.Context, address string) (*funding.Result, error)
}

// ApprovalWatcher blocks until an approval confirms or its window closes.
type ApprovalWatcher interface {
	Await(ctx context.Context, a confirm.Approval) (confirm.Outcome, error)
}

// Pinger is a cheap liveness probe of a collaborator.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer drives.
type Deps struct {
	Engine  Evaluator
	Watcher ApprovalWatcher
	// Chain is probed by /ready when set.
	Chain   Pinger
	Metrics *metrics.Registry
	Logger  logrus.FieldLogger
}

type Server struct {
	engine     Evaluator
	watcher    ApprovalWatcher
	chain      Pinger
	metrics    *metrics.Registry
	log        logrus.FieldLogger
	verifier   *hmacauth.Verifier
	handler    http.Handler
	httpServer *http.Server
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "http")

	s := &Server{
		engine:  deps.Engine,
		watcher: deps.Watcher,
		chain:   deps.Chain,
		metrics: deps.Metrics,
		log:     log,
	}
	s.verifier = &hmacauth.Verifier{
		Secret:  cfg.Server.SigningSecret,
		MaxSkew: cfg.Server.SigningSkew,
		Log:     log,
		Reject: func(w http.ResponseWriter, _ *http.Request, status int, err error) {
			writeJSON(w, status, errorResponse{OK: false, Error: err.Error()})
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.Handle("POST /on-connect", s.verifier.Middleware(http.HandlerFunc(s.handleOnConnect)))
	mux.Handle("POST /on-approve", s.verifier.Middleware(http.HandlerFunc(s.handleOnApprove)))

	s.handler = s.requestIDMiddleware(mux)
	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	s.log.WithFields(logrus.Fields{
		"addr":            s.httpServer.Addr,
		"signed_requests": s.verifier.Enabled(),
	}).Info("API listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type onConnectRequest struct {
	Address string `json:"address"`
}

type onConnectResponse struct {
	OK                 bool        `json:"ok"`
	Balance            json.Number `json:"balance"`
	TopupTransactionID *string     `json:"topupTransactionId"`
}

type onApproveRequest struct {
	Owner         string          `json:"owner"`
	Spender       string          `json:"spender"`
	Amount        json.RawMessage `json:"amount"`
	TransactionID string          `json:"transactionId"`
	TxID          string          `json:"txid"`
}

type onApproveResponse struct {
	OK        bool `json:"ok"`
	Confirmed bool `json:"confirmed"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (s *Server) handleOnConnect(w http.ResponseWriter, r *http.Request) {
	log := s.requestLog(r)

	var payload onConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, log, apperr.Validation("invalid json payload"))
		return
	}

	// A dropped client connection does not abandon a top-up halfway.
	res, err := s.engine.Evaluate(context.WithoutCancel(r.Context()), payload.Address)
	if err != nil {
		s.metrics.IncEvaluation("failed")
		s.writeError(w, log.WithField("address", payload.Address), err)
		return
	}

	result := "skipped"
	if res.Receipt != nil {
		result = "topped_up"
	}
	s.metrics.IncEvaluation(result)
	log.WithFields(logrus.Fields{
		"address": res.Address,
		"balance": res.Balance.String(),
		"result":  result,
	}).Info("wallet evaluated")

	writeJSON(w, http.StatusOK, onConnectResponse{
		OK:                 true,
		Balance:            json.Number(res.Balance.String()),
		TopupTransactionID: res.TopupTransactionID(),
	})
}

func (s *Server) handleOnApprove(w http.ResponseWriter, r *http.Request) {
	log := s.requestLog(r)

	var payload onApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, log, apperr.Validation("invalid json payload"))
		return
	}
	amount, err := amountText(payload.Amount)
	if err != nil {
		s.writeError(w, log, err)
		return
	}
	txID := payload.TransactionID
	if txID == "" {
		txID = payload.TxID
	}

	// A dropped client connection does not end the watch.
	ctx := context.WithoutCancel(r.Context())
	out, err := s.watcher.Await(ctx, confirm.Approval{
		Owner:         payload.Owner,
		Spender:       payload.Spender,
		Amount:        amount,
		TransactionID: txID,
	})
	if err != nil {
		s.writeError(w, log, err)
		return
	}

	s.metrics.IncConfirmation(out.Status.String())
	s.metrics.ObservePolls(out.Polls)
	log.WithFields(logrus.Fields{
		"txid":    out.TransactionID,
		"outcome": out.Status.String(),
		"polls":   out.Polls,
		"elapsed": out.Elapsed.String(),
	}).Info("approval watch finished")

	writeJSON(w, http.StatusOK, onApproveResponse{OK: true, Confirmed: out.Confirmed()})
}

// amountText accepts the approved amount as a JSON string or number and
// returns its textual form. Absent and null both yield "".
func amountText(raw json.RawMessage) (string, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return "", nil
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", apperr.Validation("amount must be a string or number")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", apperr.Validation("amount must be a string or number")
	}
	return n.String(), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleReady reports whether the chain node answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	chainInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{Connected: true}

	if s.chain != nil {
		start := time.Now()
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.chain.Ping(ctx); err != nil {
			chainInfo.Connected = false
			chainInfo.Error = err.Error()
		} else {
			chainInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	}

	status := http.StatusOK
	if !chainInfo.Connected {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, struct {
		OK    bool `json:"ok"`
		Chain any  `json:"chain"`
	}{OK: chainInfo.Connected, Chain: chainInfo})
}

func (s *Server) writeError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	status := apperr.HTTPStatus(err)
	entry := log.WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Info("request rejected")
	}
	writeJSON(w, status, errorResponse{OK: false, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
