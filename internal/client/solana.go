package client

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/AlexZinkM/escrow-custody/internal/tokensvc"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// RPCService is a token service backed by a live cluster.
// Signer proofs are signed with the configured key and sent.
// Seed proofs are checked locally, then refused: only the owning program
// can sign for a derived address on chain.
type RPCService struct {
	rpcClient *rpc.Client
	rpcURL    string
	signer    solana.PrivateKey
	log       *zap.Logger
}

var _ tokensvc.Service = (*RPCService)(nil)

// NewRPCService creates a service that pays fees and signs with signer
func NewRPCService(rpcURL string, signer solana.PrivateKey, log *zap.Logger) (*RPCService, error) {
	if len(signer) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RPCService{
		rpcClient: rpc.New(rpcURL),
		rpcURL:    rpcURL,
		signer:    signer,
		log:       log,
	}, nil
}

// Signer returns the public key that signs transactions
func (c *RPCService) Signer() solana.PublicKey {
	return c.signer.PublicKey()
}

// Move implements tokensvc.Service with a TransferChecked instruction
func (c *RPCService) Move(ctx context.Context, req tokensvc.MoveRequest, proof tokensvc.Proof) error {
	if err := c.checkProof(req.Authority, proof); err != nil {
		return err
	}
	ix, err := TransferCheckedInstruction(req)
	if err != nil {
		return err
	}
	return c.send(ctx, ix)
}

// Close implements tokensvc.Service with a CloseAccount instruction
func (c *RPCService) Close(ctx context.Context, req tokensvc.CloseRequest, proof tokensvc.Proof) error {
	if err := c.checkProof(req.Authority, proof); err != nil {
		return err
	}
	ix, err := CloseAccountInstruction(req)
	if err != nil {
		return err
	}
	return c.send(ctx, ix)
}

func (c *RPCService) checkProof(authority solana.PublicKey, proof tokensvc.Proof) error {
	switch p := proof.(type) {
	case tokensvc.SignerProof:
		if !c.signer.PublicKey().Equals(authority) {
			return &tokensvc.ServiceError{
				Code:    tokensvc.CodeMissingSignature,
				Message: fmt.Sprintf("configured signer %s is not %s", c.signer.PublicKey(), authority),
			}
		}
		return nil
	case tokensvc.SeedProof:
		if err := p.VerifySeeds(authority); err != nil {
			return fmt.Errorf("%w: seeds do not derive %s", err, authority)
		}
		return &tokensvc.ServiceError{
			Code:    tokensvc.CodeProgramSignatureRequired,
			Message: fmt.Sprintf("%s can only sign inside program %s", authority, p.Program),
		}
	default:
		return &tokensvc.ServiceError{Code: tokensvc.CodeMissingSignature, Message: "no proof supplied"}
	}
}

// send signs ix with the configured key and submits it
func (c *RPCService) send(ctx context.Context, ix solana.Instruction) error {
	// Get latest blockhash (GetRecentBlockhash is deprecated, use GetLatestBlockhash)
	recent, err := c.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return rpcError("failed to get recent blockhash", err)
	}

	payer := c.signer.PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		recent.Value.Blockhash,
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if payer.Equals(key) {
			return &c.signer
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := c.rpcClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false, // simulation surfaces token program errors before submission
		PreflightCommitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return mapRPCError(err)
	}

	c.log.Info("transaction submitted", zap.Stringer("signature", sig), zap.Stringer("program", ix.ProgramID()))
	recordSignature(ctx, sig)
	return nil
}

// TokenType reads the decimals and owning token program of mint
func (c *RPCService) TokenType(ctx context.Context, mint solana.PublicKey) (decimals uint8, program solana.PublicKey, err error) {
	info, err := c.rpcClient.GetAccountInfo(ctx, mint)
	if err != nil {
		if isNotFoundError(err) {
			return 0, solana.PublicKey{}, &tokensvc.ServiceError{
				Code: tokensvc.CodeInvalidAccount, Message: fmt.Sprintf("mint %s not found", mint), Err: err,
			}
		}
		return 0, solana.PublicKey{}, rpcError("failed to get mint account", err)
	}

	var m token.Mint
	if err := bin.NewBinDecoder(info.Value.Data.GetBinary()).Decode(&m); err != nil {
		return 0, solana.PublicKey{}, fmt.Errorf("failed to decode mint %s: %w", mint, err)
	}
	if !m.IsInitialized {
		return 0, solana.PublicKey{}, &tokensvc.ServiceError{
			Code: tokensvc.CodeInvalidAccount, Message: fmt.Sprintf("mint %s is not initialized", mint),
		}
	}
	return m.Decimals, info.Value.Owner, nil
}

// AccountDeposit returns the lamports held by a token account, which closing it reclaims
func (c *RPCService) AccountDeposit(ctx context.Context, account solana.PublicKey) (uint64, error) {
	info, err := c.rpcClient.GetAccountInfo(ctx, account)
	if err != nil {
		if isNotFoundError(err) {
			return 0, fmt.Errorf("%w: %s", tokensvc.ErrAccountAlreadyClosed, account)
		}
		return 0, rpcError("failed to get token account", err)
	}
	return info.Value.Lamports, nil
}

// TransferCheckedInstruction builds the token instruction for req
func TransferCheckedInstruction(req tokensvc.MoveRequest) (solana.Instruction, error) {
	ix, err := token.NewTransferCheckedInstruction(
		req.Amount,
		req.Decimals,
		req.Source,
		req.Mint,
		req.Destination,
		req.Authority,
		[]solana.PublicKey{},
	).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer instruction: %w", err)
	}
	return forProgram(ix, req.TokenProgram)
}

// CloseAccountInstruction builds the token instruction for req
func CloseAccountInstruction(req tokensvc.CloseRequest) (solana.Instruction, error) {
	ix, err := token.NewCloseAccountInstruction(
		req.Account,
		req.Destination,
		req.Authority,
		[]solana.PublicKey{},
	).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build close instruction: %w", err)
	}
	return forProgram(ix, req.TokenProgram)
}

// forProgram re-targets a token instruction. Token-2022 shares the layout
// of these two instructions with SPL Token.
func forProgram(ix *token.Instruction, program solana.PublicKey) (solana.Instruction, error) {
	data, err := ix.Data()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(tokensvc.ProgramOrDefault(program), ix.Accounts(), data), nil
}

var customErrorRe = regexp.MustCompile(`custom program error: 0x([0-9a-fA-F]+)`)

// Token program error codes that have a dedicated sentinel
var tokenErrors = map[uint64]error{
	1:  tokensvc.ErrInsufficientBalance,  // InsufficientFunds
	3:  tokensvc.ErrTokenTypeMismatch,    // MintMismatch
	9:  tokensvc.ErrAccountAlreadyClosed, // UninitializedState
	11: tokensvc.ErrNonZeroBalance,       // NonNativeHasBalance
	18: tokensvc.ErrPrecisionMismatch,    // MintDecimalsMismatch
}

// mapRPCError turns a preflight failure into the service error taxonomy
func mapRPCError(err error) error {
	if m := customErrorRe.FindStringSubmatch(err.Error()); m != nil {
		code, perr := strconv.ParseUint(m[1], 16, 64)
		if perr == nil {
			if sentinel, ok := tokenErrors[code]; ok {
				return fmt.Errorf("%w: %v", sentinel, err)
			}
			if code == 4 {
				return &tokensvc.ServiceError{Code: tokensvc.CodeOwnerMismatch, Message: "owner does not match", Err: err}
			}
			return &tokensvc.ServiceError{Code: fmt.Sprintf("TokenError(%d)", code), Err: err}
		}
	}
	return rpcError("failed to send transaction", err)
}

func rpcError(msg string, err error) error {
	return &tokensvc.ServiceError{Code: tokensvc.CodeRPC, Message: msg, Err: err}
}

// isNotFoundError checks if error indicates that the account doesn't exist
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, rpc.ErrNotFound) {
		return true
	}
	return strings.Contains(err.Error(), "could not find account")
}
