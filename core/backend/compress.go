// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/relabs-tech/tablegate/core/logger"
)

func (b *Backend) handleCompression() {

	compressionMiddleware := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlers.CompressHandler(h).ServeHTTP(w, r)
		})
	}
	b.router.Use(compressionMiddleware)
}

// handleRecovery turns a panic in a handler into a 500 response
func (b *Backend) handleRecovery() {
	recoveryMiddleware := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlers.RecoveryHandler(
				handlers.RecoveryLogger(logger.FromContext(r.Context())),
				handlers.PrintRecoveryStack(true),
			)(h).ServeHTTP(w, r)
		})
	}
	b.router.Use(recoveryMiddleware)
}
