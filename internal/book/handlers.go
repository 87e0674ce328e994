package book

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sealedbook/risk-engine/internal/model"
	"github.com/sealedbook/risk-engine/internal/store"
	"github.com/sealedbook/risk-engine/internal/wire"
)

// --- Request/Response types ---

// SubmitRequest is the JSON body for POST /orderbooks. The four ciphertext
// fields are opaque handles obtained from the homomorphic engine; they are
// stored verbatim, never decrypted or range-checked here.
type SubmitRequest struct {
	Owner      string       `json:"owner"`
	BidOrders  model.Handle `json:"bid_orders"`
	AskOrders  model.Handle `json:"ask_orders"`
	OrderFlow  model.Handle `json:"order_flow"`
	Volatility model.Handle `json:"volatility"`
}

// RevealRequest is the JSON body for POST /orderbooks/{exchangeID}/reveal.
type RevealRequest struct {
	Principal string            `json:"principal"`
	Kind      model.RequestKind `json:"kind"`
}

// RevealResponse returns the oracle request identifier; resolution happens
// later via callback.
type RevealResponse struct {
	RequestID string `json:"request_id"`
}

// CallbackRequest is the JSON body for POST /oracle/callback. Cleartext and
// proof are base64 in the JSON encoding.
type CallbackRequest struct {
	RequestID string `json:"request_id"`
	Cleartext []byte `json:"cleartext"`
	Proof     []byte `json:"proof"`
}

// --- HTTP Handlers ---

// HandleSubmit handles POST /api/v1/orderbooks
func (s *Service) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Owner == "" {
		writeError(w, "owner is required", http.StatusBadRequest)
		return
	}
	if req.BidOrders == "" || req.AskOrders == "" || req.OrderFlow == "" || req.Volatility == "" {
		writeError(w, "all four ciphertext handles are required", http.StatusBadRequest)
		return
	}

	ob, err := s.Submit(r.Context(), req.Owner, req.BidOrders, req.AskOrders, req.OrderFlow, req.Volatility)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ob)
}

// HandleList handles GET /api/v1/orderbooks
func (s *Service) HandleList(w http.ResponseWriter, r *http.Request) {
	books, err := s.store.ListOrderBooks(r.Context())
	if err != nil {
		writeError(w, "failed to list order books", http.StatusInternalServerError)
		return
	}
	if books == nil {
		books = []model.OrderBook{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(books)
}

// HandleGetOrderBook handles GET /api/v1/orderbooks/{exchangeID}
func (s *Service) HandleGetOrderBook(w http.ResponseWriter, r *http.Request) {
	id, ok := exchangeIDParam(w, r)
	if !ok {
		return
	}

	ob, err := s.store.GetOrderBook(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ob)
}

// HandleGetAssessment handles GET /api/v1/orderbooks/{exchangeID}/assessment
func (s *Service) HandleGetAssessment(w http.ResponseWriter, r *http.Request) {
	id, ok := exchangeIDParam(w, r)
	if !ok {
		return
	}

	ra, err := s.store.GetRiskAssessment(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ra)
}

// HandleGetDecrypted handles GET /api/v1/orderbooks/{exchangeID}/decrypted
func (s *Service) HandleGetDecrypted(w http.ResponseWriter, r *http.Request) {
	id, ok := exchangeIDParam(w, r)
	if !ok {
		return
	}

	da, err := s.store.GetDecryptedAssessment(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(da)
}

// HandleRequestReveal handles POST /api/v1/orderbooks/{exchangeID}/reveal
func (s *Service) HandleRequestReveal(w http.ResponseWriter, r *http.Request) {
	id, ok := exchangeIDParam(w, r)
	if !ok {
		return
	}

	var req RevealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Principal == "" {
		writeError(w, "principal is required", http.StatusBadRequest)
		return
	}
	if req.Kind == "" {
		req.Kind = model.KindAssessment
	}
	if !req.Kind.Valid() {
		writeError(w, "kind must be assessment or order_book", http.StatusBadRequest)
		return
	}

	requestID, err := s.RequestReveal(r.Context(), req.Principal, id, req.Kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(RevealResponse{RequestID: requestID})
}

// HandleOracleCallback handles POST /api/v1/oracle/callback
func (s *Service) HandleOracleCallback(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.RequestID == "" {
		writeError(w, "request_id is required", http.StatusBadRequest)
		return
	}

	if err := s.HandleCallback(r.Context(), req.RequestID, req.Cleartext, req.Proof); err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// --- Helpers ---

func exchangeIDParam(w http.ResponseWriter, r *http.Request) (model.ExchangeID, bool) {
	raw := chi.URLParam(r, "exchangeID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		writeError(w, "invalid exchange id", http.StatusBadRequest)
		return 0, false
	}
	return model.ExchangeID(id), true
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		writeError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrAlreadyRevealed), errors.Is(err, ErrRevealPending):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrUnknownRequest), errors.Is(err, store.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidProof):
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, wire.ErrMalformedCleartext):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
