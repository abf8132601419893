package custody

import (
	"github.com/AlexZinkM/escrow-custody/internal/authority"
	"github.com/AlexZinkM/escrow-custody/internal/tokensvc"
)

// Authorization says how the authorizing account proves its consent.
// It is either DirectSigner or DerivedAuthority.
type Authorization interface {
	isAuthorization()
}

// DirectSigner is an authority that signed the enclosing transaction
type DirectSigner struct{}

// DerivedAuthority is a program-derived authority. Seeds must include the bump.
// The seeds are only used for the call they are passed to.
type DerivedAuthority struct {
	Seeds authority.SeedPath
}

func (DirectSigner) isAuthorization()     {}
func (DerivedAuthority) isAuthorization() {}

// AuthorizationFromSeeds returns DerivedAuthority when seeds are present
// and DirectSigner otherwise.
func AuthorizationFromSeeds(seeds [][]byte) Authorization {
	if len(seeds) == 0 {
		return DirectSigner{}
	}
	return DerivedAuthority{Seeds: authority.SeedPath(seeds)}
}

// proofFor turns an authorization into the proof handed to the token service.
// Seeds are copied so the proof cannot observe later changes by the caller.
func (e *Executor) proofFor(auth Authorization) (tokensvc.Proof, error) {
	switch a := auth.(type) {
	case DirectSigner:
		return tokensvc.SignerProof{}, nil
	case DerivedAuthority:
		return tokensvc.SeedProof{Program: e.program, Seeds: a.Seeds.Clone()}, nil
	default:
		return nil, ErrNoAuthorization
	}
}

func modeName(auth Authorization) string {
	switch auth.(type) {
	case DirectSigner:
		return "signer"
	case DerivedAuthority:
		return "derived"
	default:
		return "none"
	}
}
