package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/AlexZinkM/escrow-custody/custody"
	"github.com/AlexZinkM/escrow-custody/internal/authority"
	"github.com/AlexZinkM/escrow-custody/internal/client"
	"github.com/AlexZinkM/escrow-custody/internal/common"
	"github.com/AlexZinkM/escrow-custody/internal/crypto"
	"github.com/AlexZinkM/escrow-custody/internal/model"
	"github.com/AlexZinkM/escrow-custody/internal/tokensvc"

	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// errInvalidRequest marks malformed request fields
var errInvalidRequest = errors.New("invalid request")

// TokenReader reads token metadata the requests do not carry
type TokenReader interface {
	TokenType(ctx context.Context, mint solana.PublicKey) (decimals uint8, program solana.PublicKey, err error)
	AccountDeposit(ctx context.Context, account solana.PublicKey) (uint64, error)
}

// EscrowHandler serves custody operations over HTTP
type EscrowHandler struct {
	executor *custody.Executor
	reader   TokenReader
	signer   solana.PublicKey
	validate *validator.Validate
	log      *zap.Logger
}

// NewEscrowHandler creates a handler that signs direct transfers as signer
// and checks derived authorities against program.
func NewEscrowHandler(svc tokensvc.Service, reader TokenReader, signer, program solana.PublicKey, log *zap.Logger) *EscrowHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &EscrowHandler{
		executor: custody.NewExecutor(svc, program, custody.WithLogger(log)),
		reader:   reader,
		signer:   signer,
		validate: validator.New(),
		log:      log,
	}
}

// Derive handles POST /escrow/derive
// @Summary      Derive an authority address
// @Description  Finds the program-derived address and bump for a seed path
// @Tags         escrow
// @Accept       json
// @Produce      json
// @Param        request  body      model.DeriveRequest  true  "Seed path"
// @Success      200      {object}  model.DeriveResponse
// @Router       /escrow/derive [post]
func (h *EscrowHandler) Derive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req model.DeriveRequest
	if !h.decode(w, r, &req) {
		return
	}

	program := h.executor.Program()
	if req.ProgramID != "" {
		p, err := solana.PublicKeyFromBase58(req.ProgramID)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid programId: %w", err))
			return
		}
		program = p
	}

	seeds, err := authority.ParseSeeds(req.Seeds)
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	addr, bump, err := authority.Find(seeds, program)
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}

	qr, err := crypto.QRCode(addr.String())
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.DeriveResponse{
		Address: addr.String(),
		Bump:    bump,
		Program: program.String(),
		QR:      qr,
	})
}

// Transfer handles POST /escrow/transfer
// @Summary      Transfer escrowed tokens
// @Description  Moves tokens between custodial accounts as the configured signer or a derived authority
// @Tags         escrow
// @Accept       json
// @Produce      json
// @Param        request  body      model.TransferRequest  true  "Transfer data"
// @Success      200      {object}  model.TransferResponse
// @Failure      403      {object}  model.ErrorResponse
// @Failure      409      {object}  model.ErrorResponse
// @Router       /escrow/transfer [post]
func (h *EscrowHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req model.TransferRequest
	if !h.decode(w, r, &req) {
		return
	}

	keys, err := parseKeys(req.Source, req.Destination, req.Mint)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	source, destination, mint := keys[0], keys[1], keys[2]

	authorityKey, auth, err := h.resolveAuthority(req.Seeds, req.Bump, req.Authority)
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}

	decimals, program, err := h.reader.TokenType(r.Context(), mint)
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	amount, err := common.ParseUnits(req.Amount, decimals)
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}

	ctx, receipt := client.WithReceipt(r.Context())
	err = h.executor.TransferTokens(ctx, custody.TransferRequest{
		Source:        source,
		Destination:   destination,
		Amount:        amount,
		Token:         custody.TokenType{Mint: mint, Decimals: decimals, Program: program},
		Authority:     authorityKey,
		Authorization: auth,
	})
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.TransferResponse{
		TxID:      lastSignature(receipt),
		Authority: authorityKey.String(),
		Mode:      modeOf(auth),
		Amount:    amount,
	})
}

// Close handles POST /escrow/close
// @Summary      Close a custodial account
// @Description  Closes an empty token account and returns its deposit to the destination
// @Tags         escrow
// @Accept       json
// @Produce      json
// @Param        request  body      model.CloseRequest  true  "Close data"
// @Success      200      {object}  model.CloseResponse
// @Failure      409      {object}  model.ErrorResponse
// @Failure      410      {object}  model.ErrorResponse
// @Router       /escrow/close [post]
func (h *EscrowHandler) Close(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req model.CloseRequest
	if !h.decode(w, r, &req) {
		return
	}

	keys, err := parseKeys(req.Account, req.Destination)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	account, destination := keys[0], keys[1]

	authorityKey, auth, err := h.resolveAuthority(req.Seeds, req.Bump, req.Authority)
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}

	// Read the deposit first: the account is gone afterwards
	deposit, err := h.reader.AccountDeposit(r.Context(), account)
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}

	ctx, receipt := client.WithReceipt(r.Context())
	err = h.executor.CloseTokenAccount(ctx, custody.CloseRequest{
		Account:       account,
		Destination:   destination,
		Authority:     authorityKey,
		Authorization: auth,
	})
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.CloseResponse{
		TxID:              lastSignature(receipt),
		Authority:         authorityKey.String(),
		Mode:              modeOf(auth),
		ReclaimedLamports: deposit,
	})
}

// resolveAuthority picks the configured signer when no seeds are given,
// otherwise a derived authority proven by the seeds. A missing bump is
// searched for. When the caller names the authority it is passed through
// and the seeds must derive it; otherwise the authority is whatever the
// seeds derive.
func (h *EscrowHandler) resolveAuthority(rawSeeds []string, bump *uint8, rawAuthority string) (solana.PublicKey, custody.Authorization, error) {
	var named solana.PublicKey
	if rawAuthority != "" {
		key, err := solana.PublicKeyFromBase58(rawAuthority)
		if err != nil {
			return solana.PublicKey{}, nil, fmt.Errorf("%w: authority %q: %v", errInvalidRequest, rawAuthority, err)
		}
		named = key
	}

	if len(rawSeeds) == 0 {
		if named.IsZero() {
			return h.signer, custody.DirectSigner{}, nil
		}
		return named, custody.DirectSigner{}, nil
	}

	seeds, err := authority.ParseSeeds(rawSeeds)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	if bump == nil {
		_, found, err := authority.Find(seeds, h.executor.Program())
		if err != nil {
			return solana.PublicKey{}, nil, err
		}
		bump = &found
	}
	full := seeds.WithBump(*bump)

	if !named.IsZero() {
		return named, custody.AuthorizationFromSeeds(full), nil
	}

	addr, err := authority.Derive(full, h.executor.Program())
	if err != nil {
		// An explicit bump that lands on the curve cannot be a derived authority
		return solana.PublicKey{}, nil, fmt.Errorf("%w: %v", tokensvc.ErrAuthorizationMismatch, err)
	}
	return addr, custody.AuthorizationFromSeeds(full), nil
}

func (h *EscrowHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

// fail logs err with the request id and writes it with a mapped status
func (h *EscrowHandler) fail(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	log := h.log.With(zap.String("request_id", RequestIDFrom(ctx)), zap.Int("status", status))
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
	} else {
		log.Info("request rejected", zap.Error(err))
	}
	writeError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tokensvc.ErrAuthorizationMismatch):
		return http.StatusForbidden
	case errors.Is(err, tokensvc.ErrInsufficientBalance), errors.Is(err, tokensvc.ErrNonZeroBalance):
		return http.StatusConflict
	case errors.Is(err, tokensvc.ErrAccountAlreadyClosed):
		return http.StatusGone
	case errors.Is(err, tokensvc.ErrPrecisionMismatch),
		errors.Is(err, tokensvc.ErrTokenTypeMismatch),
		errors.Is(err, common.ErrInvalidAmount),
		errors.Is(err, authority.ErrInvalidSeeds),
		errors.Is(err, errInvalidRequest):
		return http.StatusBadRequest
	}

	switch tokensvc.Code(err) {
	case tokensvc.CodeMissingSignature, tokensvc.CodeOwnerMismatch:
		return http.StatusForbidden
	case tokensvc.CodeProgramSignatureRequired:
		return http.StatusUnprocessableEntity
	case tokensvc.CodeInvalidAccount:
		return http.StatusNotFound
	case tokensvc.CodeRPC:
		return http.StatusBadGateway
	}
	if tokensvc.IsServiceError(err) {
		// Any other rejection by the token service
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func parseKeys(in ...string) ([]solana.PublicKey, error) {
	out := make([]solana.PublicKey, len(in))
	for i, s := range in {
		key, err := solana.PublicKeyFromBase58(s)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid Solana address %q: %v", errInvalidRequest, s, err)
		}
		out[i] = key
	}
	return out, nil
}

func modeOf(auth custody.Authorization) string {
	if _, ok := auth.(custody.DerivedAuthority); ok {
		return "derived"
	}
	return "signer"
}

func lastSignature(r *client.Receipt) string {
	if sig, ok := r.Last(); ok {
		return sig.String()
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, model.ErrorResponse{Error: err.Error(), Code: tokensvc.Code(err)})
}
