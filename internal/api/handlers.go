package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	xerrors "IntentX/internal/errors"
	"IntentX/internal/intent"
	"IntentX/internal/ledger"
	"IntentX/internal/vault"
)

const maxRecentLimit = 100

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req intent.SubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	parsed, err := s.intents.SubmitAndParse(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, parsed)
}

type executeRequest struct {
	IntentID string `json:"intentId"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	executed, err := s.intents.Execute(r.Context(), req.IntentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executed)
}

func (s *Server) handleGetIntent(w http.ResponseWriter, r *http.Request) {
	found, err := s.intents.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleIntentLogs(w http.ResponseWriter, r *http.Request) {
	view, err := s.intents.Logs(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleListIntents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, xerrors.New(xerrors.CodeUnavailable, "意图存储未初始化"))
		return
	}
	all, err := s.store.ListAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleIntentStats(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, xerrors.New(xerrors.CodeUnavailable, "意图存储未初始化"))
		return
	}
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type batchBody struct {
	Intents  json.RawMessage `json:"intents"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if s.batch == nil {
		writeError(w, xerrors.New(xerrors.CodeUnavailable, "批量处理器未初始化"))
		return
	}
	var body batchBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	var items []json.RawMessage
	trimmed := bytes.TrimSpace(body.Intents)
	if len(trimmed) == 0 || trimmed[0] != '[' || json.Unmarshal(trimmed, &items) != nil {
		writeError(w, xerrors.New(intent.CodeBatchInvalid, "Must provide array of intents"))
		return
	}
	result, err := s.batch.RunBatch(r.Context(), intent.BatchRequest{Intents: items, Metadata: body.Metadata})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGasless(w http.ResponseWriter, r *http.Request) {
	var req intent.GaslessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := s.intents.ExecuteGasless(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRecentTransactions(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, xerrors.New(xerrors.CodeUnavailable, "账本未初始化"))
		return
	}
	limit := ledger.DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxRecentLimit)
		}
	}
	writeJSON(w, http.StatusOK, s.ledger.Recent(limit))
}

func (s *Server) handleAllTransactions(w http.ResponseWriter, _ *http.Request) {
	if s.ledger == nil {
		writeError(w, xerrors.New(xerrors.CodeUnavailable, "账本未初始化"))
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.All())
}

func (s *Server) handleAnalyticsSummary(w http.ResponseWriter, _ *http.Request) {
	if s.ledger == nil {
		writeError(w, xerrors.New(xerrors.CodeUnavailable, "账本未初始化"))
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.Summary())
}

func (s *Server) handleListVaults(w http.ResponseWriter, r *http.Request) {
	if s.vaults == nil {
		writeError(w, xerrors.New(xerrors.CodeUnavailable, "金库服务未初始化"))
		return
	}
	writeJSON(w, http.StatusOK, s.vaults.List(r.Context()))
}

func (s *Server) handleGetVault(w http.ResponseWriter, r *http.Request) {
	if s.vaults == nil {
		writeError(w, xerrors.New(xerrors.CodeUnavailable, "金库服务未初始化"))
		return
	}
	v, err := s.vaults.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleVaultAction(w http.ResponseWriter, r *http.Request) {
	if s.vaults == nil {
		writeError(w, xerrors.New(xerrors.CodeUnavailable, "金库服务未初始化"))
		return
	}
	var req vault.ActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	updated, err := s.vaults.Act(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
