package tokensvc

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// TokenAccount is a custodial token account as the ledger stores it
type TokenAccount struct {
	Address  solana.PublicKey
	Owner    solana.PublicKey
	Mint     solana.PublicKey
	Amount   uint64
	Lamports uint64 // storage deposit returned on close
}

// Ledger is an in-memory token service with all-or-nothing transactions.
//
// A Tx holds the ledger lock from Begin until Commit or Rollback, so
// transactions touching the ledger are serialized. Read helpers such as
// Balance must not be called from the goroutine that holds an open Tx.
type Ledger struct {
	mu       sync.Mutex
	program  solana.PublicKey
	mints    map[solana.PublicKey]uint8
	accounts map[solana.PublicKey]TokenAccount
	lamports map[solana.PublicKey]uint64
}

// LedgerOption configures a Ledger
type LedgerOption func(*Ledger)

// WithTokenProgram sets the token program id the ledger answers for
func WithTokenProgram(id solana.PublicKey) LedgerOption {
	return func(l *Ledger) {
		l.program = id
	}
}

// NewLedger creates an empty ledger serving the SPL Token program by default
func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{
		program:  solana.TokenProgramID,
		mints:    make(map[solana.PublicKey]uint8),
		accounts: make(map[solana.PublicKey]TokenAccount),
		lamports: make(map[solana.PublicKey]uint64),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreateMint registers a token type with its decimal precision
func (l *Ledger) CreateMint(mint solana.PublicKey, decimals uint8) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mints[mint] = decimals
}

// CreateAccount opens a token account. The mint must exist and the address must be free.
func (l *Ledger) CreateAccount(acct TokenAccount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.mints[acct.Mint]; !ok {
		return newServiceError(CodeInvalidAccount, "mint %s does not exist", acct.Mint)
	}
	if _, ok := l.accounts[acct.Address]; ok {
		return newServiceError(CodeInvalidAccount, "account %s already exists", acct.Address)
	}
	l.accounts[acct.Address] = acct
	return nil
}

// Account returns a copy of the token account at addr
func (l *Ledger) Account(addr solana.PublicKey) (TokenAccount, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[addr]
	return acct, ok
}

// Balance returns the token amount held at addr, zero if the account does not exist
func (l *Ledger) Balance(addr solana.PublicKey) uint64 {
	acct, _ := l.Account(addr)
	return acct.Amount
}

// Exists reports whether a token account lives at addr
func (l *Ledger) Exists(addr solana.PublicKey) bool {
	_, ok := l.Account(addr)
	return ok
}

// Lamports returns the native balance credited to addr by closes
func (l *Ledger) Lamports(addr solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lamports[addr]
}

// Begin opens a transaction signed by signers. The caller must Commit or Rollback.
func (l *Ledger) Begin(signers ...solana.PublicKey) *Tx {
	l.mu.Lock()
	set := make(map[solana.PublicKey]struct{}, len(signers))
	for _, s := range signers {
		set[s] = struct{}{}
	}
	return &Tx{
		ledger:   l,
		signers:  set,
		staged:   make(map[solana.PublicKey]*TokenAccount),
		lamports: make(map[solana.PublicKey]uint64),
	}
}

// Execute runs fn inside a transaction and commits only if fn returns nil.
// A panic in fn rolls back and releases the ledger before propagating.
func (l *Ledger) Execute(signers []solana.PublicKey, fn func(Service) error) error {
	tx := l.Begin(signers...)
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Tx stages mutations until Commit. It implements Service.
type Tx struct {
	ledger   *Ledger
	signers  map[solana.PublicKey]struct{}
	staged   map[solana.PublicKey]*TokenAccount // nil value marks a closed account
	lamports map[solana.PublicKey]uint64        // credits to apply on commit
	done     bool
}

var _ Service = (*Tx)(nil)

// Commit applies every staged change and releases the ledger
func (tx *Tx) Commit() error {
	if tx.done {
		return newServiceError(CodeTransactionDone, "transaction already finished")
	}
	l := tx.ledger
	for addr, acct := range tx.staged {
		if acct == nil {
			delete(l.accounts, addr)
			continue
		}
		l.accounts[addr] = *acct
	}
	for addr, credit := range tx.lamports {
		l.lamports[addr] += credit
	}
	tx.finish()
	return nil
}

// Rollback discards staged changes and releases the ledger. Safe to call twice.
func (tx *Tx) Rollback() {
	if tx.done {
		return
	}
	tx.finish()
}

func (tx *Tx) finish() {
	tx.done = true
	tx.staged = nil
	tx.lamports = nil
	tx.ledger.mu.Unlock()
}

// Move implements Service. Checks run in the order the token program applies them.
func (tx *Tx) Move(_ context.Context, req MoveRequest, proof Proof) error {
	if err := tx.checkOpen(req.TokenProgram); err != nil {
		return err
	}

	src, ok := tx.load(req.Source)
	if !ok {
		return newServiceError(CodeInvalidAccount, "source account %s does not exist", req.Source)
	}
	dst, ok := tx.load(req.Destination)
	if !ok {
		return newServiceError(CodeInvalidAccount, "destination account %s does not exist", req.Destination)
	}

	if !src.Mint.Equals(req.Mint) || !dst.Mint.Equals(req.Mint) {
		return fmt.Errorf("%w: source %s, destination %s, requested %s",
			ErrTokenTypeMismatch, src.Mint, dst.Mint, req.Mint)
	}

	decimals, ok := tx.ledger.mints[req.Mint]
	if !ok {
		return newServiceError(CodeInvalidAccount, "mint %s does not exist", req.Mint)
	}
	if decimals != req.Decimals {
		return fmt.Errorf("%w: mint has %d decimals, request has %d", ErrPrecisionMismatch, decimals, req.Decimals)
	}

	if err := tx.authorize(src.Owner, req.Authority, proof); err != nil {
		return err
	}

	if src.Amount < req.Amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, src.Amount, req.Amount)
	}

	// Self-transfer is valid and changes nothing
	if src.Address.Equals(dst.Address) {
		return nil
	}

	if dst.Amount > math.MaxUint64-req.Amount {
		return newServiceError(CodeOverflow, "destination %s balance overflow", dst.Address)
	}

	src.Amount -= req.Amount
	dst.Amount += req.Amount
	tx.staged[src.Address] = src
	tx.staged[dst.Address] = dst
	return nil
}

// Close implements Service
func (tx *Tx) Close(_ context.Context, req CloseRequest, proof Proof) error {
	if err := tx.checkOpen(req.TokenProgram); err != nil {
		return err
	}

	acct, ok := tx.load(req.Account)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyClosed, req.Account)
	}

	if err := tx.authorize(acct.Owner, req.Authority, proof); err != nil {
		return err
	}

	if acct.Amount != 0 {
		return fmt.Errorf("%w: %d tokens remain in %s", ErrNonZeroBalance, acct.Amount, acct.Address)
	}
	if req.Destination.Equals(acct.Address) {
		return newServiceError(CodeInvalidAccount, "cannot reclaim deposit into the closing account")
	}

	tx.lamports[req.Destination] += acct.Lamports
	tx.staged[acct.Address] = nil
	return nil
}

func (tx *Tx) checkOpen(program solana.PublicKey) error {
	if tx.done {
		return newServiceError(CodeTransactionDone, "transaction already finished")
	}
	if !ProgramOrDefault(program).Equals(tx.ledger.program) {
		return newServiceError(CodeInvalidAccount, "ledger serves %s, request targets %s", tx.ledger.program, program)
	}
	return nil
}

// load returns a private copy of the account as seen by this transaction
func (tx *Tx) load(addr solana.PublicKey) (*TokenAccount, bool) {
	if acct, ok := tx.staged[addr]; ok {
		if acct == nil {
			return nil, false
		}
		cp := *acct
		return &cp, true
	}
	acct, ok := tx.ledger.accounts[addr]
	if !ok {
		return nil, false
	}
	return &acct, true
}

// authorize checks the proof for authority and that authority owns the account
func (tx *Tx) authorize(owner, authority solana.PublicKey, proof Proof) error {
	switch p := proof.(type) {
	case SignerProof:
		if _, ok := tx.signers[authority]; !ok {
			return newServiceError(CodeMissingSignature, "%s did not sign the transaction", authority)
		}
	case SeedProof:
		if err := p.VerifySeeds(authority); err != nil {
			return fmt.Errorf("%w: seeds do not derive %s", err, authority)
		}
	default:
		return newServiceError(CodeMissingSignature, "no proof supplied for %s", authority)
	}

	if !owner.Equals(authority) {
		return newServiceError(CodeOwnerMismatch, "account is owned by %s, not %s", owner, authority)
	}
	return nil
}

// Signed returns a Service that runs every call in its own committed
// transaction signed by signers.
func (l *Ledger) Signed(signers ...solana.PublicKey) Service {
	return signedLedger{ledger: l, signers: signers}
}

type signedLedger struct {
	ledger  *Ledger
	signers []solana.PublicKey
}

func (s signedLedger) Move(ctx context.Context, req MoveRequest, proof Proof) error {
	return s.ledger.Execute(s.signers, func(svc Service) error {
		return svc.Move(ctx, req, proof)
	})
}

func (s signedLedger) Close(ctx context.Context, req CloseRequest, proof Proof) error {
	return s.ledger.Execute(s.signers, func(svc Service) error {
		return svc.Close(ctx, req, proof)
	})
}
