package model

// DeriveRequest represents request for POST /escrow/derive
type DeriveRequest struct {
	ProgramID string   `json:"programId,omitempty"`
	Seeds     []string `json:"seeds" validate:"required,min=1,max=15"`
}

// DeriveResponse represents response for POST /escrow/derive
type DeriveResponse struct {
	Address string `json:"address"`
	Bump    uint8  `json:"bump"`
	Program string `json:"programId"`
	QR      string `json:"QR"`
}

// TransferRequest represents request for POST /escrow/transfer
type TransferRequest struct {
	Source      string   `json:"source" validate:"required"`
	Destination string   `json:"destination" validate:"required"`
	Mint        string   `json:"mint" validate:"required"`
	Amount      string   `json:"amount" validate:"required,numeric"` // UI units, e.g. "2.50"
	Seeds       []string `json:"seeds,omitempty" validate:"omitempty,max=15"`
	Bump        *uint8   `json:"bump,omitempty"`
	Authority   string   `json:"authority,omitempty"` // checked against seeds when both are set
}

// TransferResponse represents response for POST /escrow/transfer
type TransferResponse struct {
	TxID      string `json:"txId"`
	Authority string `json:"authority"`
	Mode      string `json:"mode"`        // "signer" or "derived"
	Amount    uint64 `json:"amountUnits"` // base units sent
}

// CloseRequest represents request for POST /escrow/close
type CloseRequest struct {
	Account     string   `json:"account" validate:"required"`
	Destination string   `json:"destination" validate:"required"`
	Seeds       []string `json:"seeds,omitempty" validate:"omitempty,max=15"`
	Bump        *uint8   `json:"bump,omitempty"`
	Authority   string   `json:"authority,omitempty"` // checked against seeds when both are set
}

// CloseResponse represents response for POST /escrow/close
type CloseResponse struct {
	TxID              string `json:"txId"`
	Authority         string `json:"authority"`
	Mode              string `json:"mode"`
	ReclaimedLamports uint64 `json:"reclaimedLamports"`
}
