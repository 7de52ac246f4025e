package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/marcus/prep/internal/models"
)

// handleChanges serves the change log after ?after=N. With ?wait=D the
// request is held until a change arrives or D (capped by LongPollMax) passes.
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var after int64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "after must be a non-negative integer")
			return
		}
		after = n
	}

	limit := s.config.ChangesPage
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, s.config.ChangesPage)
	}

	var wait time.Duration
	if v := q.Get("wait"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "wait must be a duration such as 25s")
			return
		}
		wait = min(d, s.config.LongPollMax)
	}

	ctx := r.Context()
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	// Fallback for writes that bypass this process.
	poll := time.NewTicker(time.Second)
	defer poll.Stop()

	for {
		changed := s.store.Changed()
		evs, err := s.store.ChangesSince(ctx, after, limit)
		if err != nil {
			writeBackendError(w, r, err)
			return
		}
		if len(evs) > 0 || wait == 0 {
			writeChanges(w, evs, after)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			writeChanges(w, nil, after)
			return
		case <-changed:
		case <-poll.C:
		}
	}
}

func writeChanges(w http.ResponseWriter, evs []models.ChangeEvent, after int64) {
	last := after
	if n := len(evs); n > 0 {
		last = evs[n-1].Seq
	}
	if evs == nil {
		evs = []models.ChangeEvent{}
	}
	writeJSON(w, http.StatusOK, ChangesResponse{Changes: evs, LastSeq: last})
}
