package api

import (
	"net/http"

	"github.com/AlexZinkM/escrow-custody/internal/handler"

	httpSwagger "github.com/swaggo/http-swagger"
)

// SetupRouter sets up router with handlers
func SetupRouter(escrowHandler *handler.EscrowHandler) http.Handler {
	mux := http.NewServeMux()

	// Swagger UI
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	// Escrow endpoints
	mux.HandleFunc("/escrow/derive", escrowHandler.Derive)
	mux.HandleFunc("/escrow/transfer", escrowHandler.Transfer)
	mux.HandleFunc("/escrow/close", escrowHandler.Close)

	return handler.RequestID(mux)
}
