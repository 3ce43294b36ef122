// Package guard handles organizations known to generate abusive traffic
// volume. Instead of processing their uploads, the ingestion endpoint sends
// back a deliberately large, slow body while reporting success so the
// client does not retry. This is an intentional deterrent policy, tying up
// the abuser's bandwidth rather than our pipeline.
package guard

import (
	"net/http"
	"strconv"
)

type Guard struct {
	flagged       map[string]struct{}
	deterrentSize int64
}

// New builds the guard from the configured token list. The set is fixed at
// startup and read-only afterwards, so it is safe across requests.
func New(tokens []string, deterrentSize int64) *Guard {
	g := &Guard{
		flagged:       make(map[string]struct{}, len(tokens)),
		deterrentSize: deterrentSize,
	}
	for _, t := range tokens {
		g.flagged[t] = struct{}{}
	}
	return g
}

func (g *Guard) IsFlagged(org string) bool {
	_, ok := g.flagged[org]
	return ok
}

// WriteDeterrent streams a fixed-size synthetic zero body with a success
// status. The bytes are generated, not read from disk, so an abuser cannot
// amplify our I/O.
func (g *Guard) WriteDeterrent(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(g.deterrentSize, 10))
	w.WriteHeader(http.StatusOK)

	buf := make([]byte, 64*1024)
	var written int64
	for written < g.deterrentSize {
		n := int64(len(buf))
		if rest := g.deterrentSize - written; rest < n {
			n = rest
		}
		// The client hanging up is the expected way out of this loop.
		if _, err := w.Write(buf[:n]); err != nil {
			return
		}
		written += n
	}
}
