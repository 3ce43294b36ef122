// Package locations is the validated write and read path for geolocation
// fixes. Records arrive as arbitrary JSON objects; the store stamps each
// one with the server-resolved tenant identity before anything is written.
package locations

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"geoconsole/internal/apperr"
	"geoconsole/internal/models"
	"geoconsole/internal/registry"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateBatch persists a batch as one logical write. Client-supplied
// company_id/device_id/company_token are overwritten with the device's
// resolved values. The device row is re-checked inside the transaction so
// a delete racing the upload surfaces as RegistrationRequired instead of
// orphaned rows.
func (s *Store) CreateBatch(batch []map[string]interface{}, dev *models.Device) error {
	if len(batch) == 0 {
		return nil
	}

	rows := make([]models.Location, 0, len(batch))
	for _, rec := range batch {
		rec["company_id"] = dev.CompanyID
		rec["device_id"] = dev.ID
		rec["company_token"] = dev.CompanyToken

		data, err := json.Marshal(rec)
		if err != nil {
			return apperr.Wrap(apperr.BadInput, "location record not serializable", err)
		}
		lat, lon := coordinates(rec)
		rows = append(rows, models.Location{
			CompanyID:    dev.CompanyID,
			DeviceID:     dev.ID,
			CompanyToken: dev.CompanyToken,
			Latitude:     lat,
			Longitude:    lon,
			RecordedAt:   recordedAt(rec),
			Data:         models.JSONB(data),
		})
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Device{}).Where("id = ?", dev.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return apperr.New(apperr.RegistrationRequired, "device is not registered")
		}
		return tx.Create(&rows).Error
	})
}

// ByCompany returns a company's records in chronological order, optionally
// bounded by an inclusive date range.
func (s *Store) ByCompany(companyID uint, rng registry.DateRange) ([]models.Location, error) {
	locs := []models.Location{}
	q := s.db.Where("company_id = ?", companyID).Order("recorded_at asc")
	if rng.Start != nil {
		q = q.Where("recorded_at >= ?", *rng.Start)
	}
	if rng.End != nil {
		q = q.Where("recorded_at <= ?", *rng.End)
	}
	if err := q.Find(&locs).Error; err != nil {
		return nil, err
	}
	return locs, nil
}

// Latest returns the most recent fix for a device, or (nil, nil) when the
// device has not reported yet.
func (s *Store) Latest(companyID, deviceID uint) (*models.Location, error) {
	var loc models.Location
	err := s.db.Where("company_id = ? AND device_id = ?", companyID, deviceID).
		Order("recorded_at desc").First(&loc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// DeleteScoped removes a device's records within the range. Zero matches
// is still success.
func (s *Store) DeleteScoped(companyID, deviceID uint, rng registry.DateRange) error {
	q := s.db.Where("company_id = ? AND device_id = ?", companyID, deviceID)
	if rng.Start != nil {
		q = q.Where("recorded_at >= ?", *rng.Start)
	}
	if rng.End != nil {
		q = q.Where("recorded_at <= ?", *rng.End)
	}
	return q.Delete(&models.Location{}).Error
}

// Stats is the tenant-independent aggregate behind GET /stats.
type Stats struct {
	DevicesCount   int64 `json:"devices_count"`
	LocationsCount int64 `json:"locations_count"`
	CompaniesCount int64 `json:"companies_count"`
}

func (s *Store) Stats() (Stats, error) {
	var st Stats
	if err := s.db.Model(&models.Device{}).Count(&st.DevicesCount).Error; err != nil {
		return Stats{}, err
	}
	if err := s.db.Model(&models.Location{}).Count(&st.LocationsCount).Error; err != nil {
		return Stats{}, err
	}
	if err := s.db.Model(&models.Company{}).Count(&st.CompaniesCount).Error; err != nil {
		return Stats{}, err
	}
	return st, nil
}

// coordinates pulls latitude/longitude out of a record. The background
// geolocation client nests them under "coords"; some integrations send
// them flat.
func coordinates(rec map[string]interface{}) (lat, lon float64) {
	src := rec
	if coords, ok := rec["coords"].(map[string]interface{}); ok {
		src = coords
	}
	lat, _ = src["latitude"].(float64)
	lon, _ = src["longitude"].(float64)
	return lat, lon
}

// recordedAt parses the client timestamp, accepting RFC3339 strings or
// epoch milliseconds. Records without a usable timestamp get receipt time.
func recordedAt(rec map[string]interface{}) time.Time {
	switch v := rec["timestamp"].(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	case float64:
		return time.UnixMilli(int64(v)).UTC()
	}
	return time.Now().UTC()
}
