package client

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
)

type receiptKey struct{}

// Receipt collects the signatures of transactions sent under one context
type Receipt struct {
	mu   sync.Mutex
	sigs []solana.Signature
}

// WithReceipt returns a context that records submitted signatures into the returned Receipt
func WithReceipt(ctx context.Context) (context.Context, *Receipt) {
	r := &Receipt{}
	return context.WithValue(ctx, receiptKey{}, r), r
}

// Last returns the most recent signature, if any
func (r *Receipt) Last() (solana.Signature, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sigs) == 0 {
		return solana.Signature{}, false
	}
	return r.sigs[len(r.sigs)-1], true
}

func recordSignature(ctx context.Context, sig solana.Signature) {
	if r, ok := ctx.Value(receiptKey{}).(*Receipt); ok {
		r.mu.Lock()
		r.sigs = append(r.sigs, sig)
		r.mu.Unlock()
	}
}
