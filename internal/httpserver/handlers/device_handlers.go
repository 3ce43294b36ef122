package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"geoconsole/internal/apperr"
	"geoconsole/internal/auth"
	"geoconsole/internal/registry"
)

type registerReq struct {
	Org          string `json:"org"`
	CompanyToken string `json:"company_token"` // older clients send this instead of org
	registry.DeviceInfo
}

type tokenResp struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Expires      int64  `json:"expires"`
}

// Register binds a device to its organization and hands out the bearer
// credential. No auth: this is the one route a fresh device can reach.
func Register(reg *registry.Registry, tokens *auth.TokenService, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondStatus(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
			return
		}
		org := req.Org
		if org == "" {
			org = req.CompanyToken
		}

		lg.Infow("register",
			"org", org, "uuid", req.UUID, "model", req.Model,
			"manufacturer", req.Manufacturer, "version", req.Version, "framework", req.Framework)

		if org == "" {
			respondStatus(w, http.StatusInternalServerError, map[string]string{"message": "Organization identifier empty"})
			return
		}
		if req.UUID == "" || req.Model == "" || req.Manufacturer == "" || req.Version == "" {
			respondStatus(w, http.StatusInternalServerError, map[string]string{"message": "Device info is missing"})
			return
		}

		dev, err := reg.FindOrCreate(org, req.DeviceInfo)
		if err != nil {
			failRequest(w, lg, "POST /register", err)
			return
		}

		accessToken, err := tokens.Sign(auth.DeviceClaims{
			CompanyID: dev.CompanyID,
			DeviceID:  dev.ID,
			Model:     dev.Model,
			Org:       org,
			UUID:      dev.DeviceID,
		})
		if err != nil {
			failRequest(w, lg, "POST /register", err)
			return
		}
		respondJSON(w, tokenResp{
			AccessToken:  accessToken,
			RefreshToken: auth.RefreshFingerprint(accessToken),
			Expires:      -1,
		})
	}
}

// RefreshToken re-signs the verified claims. The old token stays valid;
// clients call this to rotate their correlation handle.
func RefreshToken(tokens *auth.TokenService, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.FromContext(r.Context())
		lg.Infow("auth:refresh", "org", claims.Org, "device_id", claims.DeviceID)

		accessToken, err := tokens.Sign(claims)
		if err != nil {
			failRequest(w, lg, "/refresh_token", err)
			return
		}
		respondJSON(w, tokenResp{
			AccessToken:  accessToken,
			RefreshToken: auth.RefreshFingerprint(accessToken),
			Expires:      -1,
		})
	}
}

// CompanyTokens lists the tenants visible to the caller.
func CompanyTokens(reg *registry.Registry, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.FromContext(r.Context())
		companies, err := reg.Companies(claims.Org)
		if err != nil {
			failRequest(w, lg, "GET /company_tokens", err)
			return
		}
		respondJSON(w, companies)
	}
}

// ListDevices enumerates the caller's tenant. The company binding comes
// from the registry, not the token: a device's company can change after
// issuance.
func ListDevices(reg *registry.Registry, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.FromContext(r.Context())
		companyID := claims.CompanyID
		if dev, err := reg.Get(claims.DeviceID, claims.Org); err != nil {
			failRequest(w, lg, "GET /devices", err)
			return
		} else if dev != nil {
			companyID = dev.CompanyID
		}
		devices, err := reg.List(companyID, claims.Org)
		if err != nil {
			failRequest(w, lg, "GET /devices", err)
			return
		}
		respondJSON(w, devices)
	}
}

// DeleteDevice removes a device and its locations, optionally bounded by a
// date range. Deleting a device that is already gone still succeeds.
func DeleteDevice(reg *registry.Registry, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.FromContext(r.Context())

		id := claims.DeviceID
		if raw := chi.URLParam(r, "id"); raw != "" {
			n, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				failRequest(w, lg, "DELETE /devices", apperr.New(apperr.BadInput, "invalid device id"))
				return
			}
			id = uint(n)
		}

		rng, err := parseDateRange(r.URL.Query())
		if err != nil {
			failRequest(w, lg, "DELETE /devices", err)
			return
		}

		companyID := claims.CompanyID
		if dev, err := reg.Get(claims.DeviceID, claims.Org); err != nil {
			failRequest(w, lg, "DELETE /devices", err)
			return
		} else if dev != nil {
			companyID = dev.CompanyID
		}

		lg.Infow("devices:delete", "device_id", id, "company_id", companyID)
		if err := reg.Delete(id, companyID, rng); err != nil {
			failRequest(w, lg, "DELETE /devices", err)
			return
		}
		respondJSON(w, map[string]bool{"success": true})
	}
}
