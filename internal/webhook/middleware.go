package webhook

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/governify/zh2gh/internal/logging"
)

// TransactionHeader carries the correlation id of a request.
const TransactionHeader = "X-Transaction-Id"

// WithTransaction tags each request with a transaction id, taken from the
// X-Transaction-Id header or generated, and echoes it in the response. The
// request logger stored in the context carries the id on every line.
func WithTransaction(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(TransactionHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(TransactionHeader, id)

		reqLogger := logger.With("transaction_id", id)
		ctx := logging.WithLogger(r.Context(), reqLogger)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		reqLogger.Info("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
