// Package registry owns device identity: find-or-create on registration,
// tenant-scoped lookups and deletion. Every operation is keyed by the
// company token so one tenant can never see another's devices.
package registry

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"geoconsole/internal/apperr"
	"geoconsole/internal/models"
)

// DeviceInfo is what a client reports on registration. UUID, Model,
// Manufacturer and Version are required; Framework is optional.
type DeviceInfo struct {
	UUID         string `json:"uuid"`
	Model        string `json:"model"`
	Manufacturer string `json:"manufacturer"`
	Framework    string `json:"framework"`
	Version      string `json:"version"`
}

// DateRange bounds cascading deletes and location queries. Nil ends are
// unbounded; both bounds are inclusive.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

type Registry struct {
	db         *gorm.DB
	adminToken string
}

func New(db *gorm.DB, adminToken string) *Registry {
	return &Registry{db: db, adminToken: adminToken}
}

// checkTenant runs before any row is created or touched. The admin token
// is reserved for dashboard access and can never own devices.
func (r *Registry) checkTenant(org string) error {
	if org == "" || org == r.adminToken {
		return apperr.New(apperr.AccessDenied, "company access denied")
	}
	return nil
}

// FindOrCreate resolves a device by (uuid, org), creating the company and
// device rows on first contact. Re-registration refreshes the mutable
// metadata and keeps id/companyId stable. A concurrent create for the same
// device loses the uniqueness race and re-reads the winner's row.
func (r *Registry) FindOrCreate(org string, info DeviceInfo) (models.Device, error) {
	if err := r.checkTenant(org); err != nil {
		return models.Device{}, err
	}
	if info.UUID == "" || info.Model == "" || info.Manufacturer == "" || info.Version == "" {
		return models.Device{}, apperr.New(apperr.BadInput, "device info is missing")
	}

	var company models.Company
	err := r.db.Where(models.Company{CompanyToken: org}).
		FirstOrCreate(&company).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = r.db.First(&company, "company_token = ?", org).Error
	}
	if err != nil {
		return models.Device{}, err
	}

	var dev models.Device
	err = r.db.First(&dev, "device_id = ? AND company_id = ?", info.UUID, company.ID).Error
	switch {
	case err == nil:
		dev.Model = info.Model
		dev.Manufacturer = info.Manufacturer
		dev.Framework = info.Framework
		dev.Version = info.Version
		if err := r.db.Save(&dev).Error; err != nil {
			return models.Device{}, err
		}
		return dev, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		dev = models.Device{
			CompanyID:    company.ID,
			CompanyToken: org,
			DeviceID:     info.UUID,
			Model:        info.Model,
			Manufacturer: info.Manufacturer,
			Framework:    info.Framework,
			Version:      info.Version,
		}
		err = r.db.Create(&dev).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the registration race; the row exists now.
			err = r.db.First(&dev, "device_id = ? AND company_id = ?", info.UUID, company.ID).Error
		}
		if err != nil {
			return models.Device{}, err
		}
		return dev, nil
	default:
		return models.Device{}, err
	}
}

// Get is a tenant-scoped read. A missing device is (nil, nil), not an
// error: tokens can outlive the device they were issued for.
func (r *Registry) Get(id uint, org string) (*models.Device, error) {
	var dev models.Device
	err := r.db.First(&dev, "id = ? AND company_token = ?", id, org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

// List enumerates devices for one company. The admin token sees every
// tenant's devices.
func (r *Registry) List(companyID uint, org string) ([]models.Device, error) {
	devices := []models.Device{}
	q := r.db.Order("updated_at desc")
	if org != r.adminToken {
		q = q.Where("company_id = ?", companyID)
	}
	if err := q.Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

// Delete removes a device and its locations. With a range only matching
// locations go; without one everything the device recorded goes. Deleting
// an already-deleted device succeeds.
func (r *Registry) Delete(id uint, companyID uint, rng DateRange) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		q := tx.Where("company_id = ? AND device_id = ?", companyID, id)
		if rng.Start != nil {
			q = q.Where("recorded_at >= ?", *rng.Start)
		}
		if rng.End != nil {
			q = q.Where("recorded_at <= ?", *rng.End)
		}
		if err := q.Delete(&models.Location{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND company_id = ?", id, companyID).
			Delete(&models.Device{}).Error
	})
}

// Companies lists the tenants visible to the caller: everything for the
// admin token, the caller's own row otherwise.
func (r *Registry) Companies(org string) ([]models.Company, error) {
	companies := []models.Company{}
	q := r.db.Order("company_token")
	if org != r.adminToken {
		q = q.Where("company_token = ?", org)
	}
	if err := q.Find(&companies).Error; err != nil {
		return nil, err
	}
	return companies, nil
}
