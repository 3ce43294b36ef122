package handlers

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"geoconsole/internal/auth"
	"geoconsole/internal/guard"
	"geoconsole/internal/locations"
	"geoconsole/internal/registry"
	"geoconsole/internal/services/payload"
)

// PostLocations is the ingestion pipeline: abuse guard, device binding,
// payload decode, batch normalization, stamped persist. The same handler
// serves POST /locations and POST /locations/{company_token}; the path
// token is ignored because identity always comes from the verified bearer.
func PostLocations(reg *registry.Registry, store *locations.Store, codec *payload.Codec, g *guard.Guard, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.FromContext(r.Context())
		lg.Infow("locations:post", "org", claims.Org, "device_id", claims.DeviceID)

		if g.IsFlagged(claims.Org) {
			g.WriteDeterrent(w)
			return
		}

		// The token may outlive the device row; re-resolve before writing.
		dev, err := reg.Get(claims.DeviceID, claims.Org)
		if err != nil {
			failRequest(w, lg, "POST /locations", err)
			return
		}
		if dev == nil {
			// Deleted from the dashboard while the client kept posting.
			lg.Errorw("device not found, was it deleted from dashboard?", "device_id", claims.DeviceID)
			respondStatus(w, http.StatusGone, map[string]interface{}{
				"error":                  "DEVICE_ID_NOT_FOUND",
				"background_geolocation": []string{"stop"},
			})
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			failRequest(w, lg, "POST /locations", err)
			return
		}
		if payload.IsEncryptedRequest(r) {
			if body, err = codec.Decrypt(body); err != nil {
				failRequest(w, lg, "POST /locations", err)
				return
			}
		}
		batch, err := payload.Normalize(body)
		if err != nil {
			failRequest(w, lg, "POST /locations", err)
			return
		}

		if err := store.CreateBatch(batch, dev); err != nil {
			failRequest(w, lg, "POST /locations", err)
			return
		}
		respondJSON(w, map[string]bool{"success": true})
	}
}

// GetLocations lists the tenant's records chronologically within an
// optional inclusive date range.
func GetLocations(reg *registry.Registry, store *locations.Store, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.FromContext(r.Context())
		lg.Infow("locations:get", "org", claims.Org, "device_id", claims.DeviceID)

		rng, err := parseDateRange(r.URL.Query())
		if err != nil {
			failRequest(w, lg, "GET /locations", err)
			return
		}
		companyID, err := resolveCompanyID(reg, claims)
		if err != nil {
			failRequest(w, lg, "GET /locations", err)
			return
		}
		locs, err := store.ByCompany(companyID, rng)
		if err != nil {
			failRequest(w, lg, "GET /locations", err)
			return
		}
		respondJSON(w, locs)
	}
}

// LatestLocation returns the caller's most recent fix, or null.
func LatestLocation(reg *registry.Registry, store *locations.Store, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.FromContext(r.Context())
		lg.Infow("locations:latest", "org", claims.Org, "device_id", claims.DeviceID)

		companyID, err := resolveCompanyID(reg, claims)
		if err != nil {
			failRequest(w, lg, "GET /locations/latest", err)
			return
		}
		latest, err := store.Latest(companyID, claims.DeviceID)
		if err != nil {
			failRequest(w, lg, "GET /locations/latest", err)
			return
		}
		respondJSON(w, latest)
	}
}

// DeleteLocations drops the caller's records within an optional range.
// Zero matches is still success.
func DeleteLocations(reg *registry.Registry, store *locations.Store, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.FromContext(r.Context())
		lg.Infow("locations:delete", "org", claims.Org, "device_id", claims.DeviceID)

		rng, err := parseDateRange(r.URL.Query())
		if err != nil {
			failRequest(w, lg, "DELETE /locations", err)
			return
		}
		companyID, err := resolveCompanyID(reg, claims)
		if err != nil {
			failRequest(w, lg, "DELETE /locations", err)
			return
		}
		if err := store.DeleteScoped(companyID, claims.DeviceID, rng); err != nil {
			failRequest(w, lg, "DELETE /locations", err)
			return
		}
		respondJSON(w, map[string]bool{"success": true})
	}
}

// GetStats reports the cross-tenant aggregate.
func GetStats(store *locations.Store, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.Stats()
		if err != nil {
			failRequest(w, lg, "GET /stats", err)
			return
		}
		respondJSON(w, stats)
	}
}

// resolveCompanyID always prefers the registry's current binding over the
// token claim; the claim is only a fallback when the device row is gone.
func resolveCompanyID(reg *registry.Registry, claims auth.DeviceClaims) (uint, error) {
	dev, err := reg.Get(claims.DeviceID, claims.Org)
	if err != nil {
		return 0, err
	}
	if dev != nil {
		return dev.CompanyID, nil
	}
	return claims.CompanyID, nil
}

func parseDateRange(q url.Values) (registry.DateRange, error) {
	var rng registry.DateRange
	if s := q.Get("start_date"); s != "" {
		t, err := parseDate(s, false)
		if err != nil {
			return registry.DateRange{}, err
		}
		rng.Start = &t
	}
	if s := q.Get("end_date"); s != "" {
		t, err := parseDate(s, true)
		if err != nil {
			return registry.DateRange{}, err
		}
		rng.End = &t
	}
	return rng, nil
}

// parseDate accepts RFC3339 or a bare date. A bare end date means the end
// of that day, keeping the range inclusive.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
