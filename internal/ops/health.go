package ops

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	pkgerrors "github.com/angelmondragon/packclaim/pkg/errors"
	"github.com/angelmondragon/packclaim/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Check is a named dependency probe used by the readiness endpoint.
type Check struct {
	Name string
	Ping func(context.Context) error
}

func healthLive(env string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PackClaim-Env", env)
		writeSuccess(w, http.StatusOK, map[string]string{"status": "live"})
	}
}

// healthReady pings every dependency concurrently and reports the ones
// that failed.
func healthReady(env string, logg *logger.Logger, checks []Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PackClaim-Env", env)
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		results := make([]error, len(checks))
		var group errgroup.Group
		for i, check := range checks {
			group.Go(func() error {
				results[i] = check.Ping(ctx)
				return nil
			})
		}
		_ = group.Wait()

		failing := map[string]string{}
		for i, err := range results {
			if err != nil {
				failing[checks[i].Name] = err.Error()
			}
		}
		if len(failing) > 0 {
			err := pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(failing)
			writeError(r.Context(), logg, w, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
