package registry

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"geoconsole/internal/apperr"
	"geoconsole/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Company{}, &models.Device{}, &models.Location{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testInfo(uuid string) DeviceInfo {
	return DeviceInfo{
		UUID:         uuid,
		Model:        "Pixel",
		Manufacturer: "Google",
		Framework:    "flutter",
		Version:      "14",
	}
}

func TestFindOrCreateIsIdempotent(t *testing.T) {
	reg := New(newTestDB(t), "admin")

	first, err := reg.FindOrCreate("acme", testInfo("d1"))
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	second, err := reg.FindOrCreate("acme", testInfo("d1"))
	if err != nil {
		t.Fatalf("FindOrCreate replay: %v", err)
	}

	if first.ID != second.ID || first.CompanyID != second.CompanyID {
		t.Errorf("identity changed on re-registration: %+v vs %+v", first, second)
	}

	devices, err := reg.List(first.CompanyID, "acme")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(devices) != 1 {
		t.Errorf("re-registration created a duplicate: %d rows", len(devices))
	}
}

func TestFindOrCreateRefreshesMetadata(t *testing.T) {
	reg := New(newTestDB(t), "admin")

	first, err := reg.FindOrCreate("acme", testInfo("d1"))
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	updated := testInfo("d1")
	updated.Model = "Pixel 9"
	updated.Version = "15"
	second, err := reg.FindOrCreate("acme", updated)
	if err != nil {
		t.Fatalf("FindOrCreate update: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("id changed on metadata refresh")
	}
	if second.Model != "Pixel 9" || second.Version != "15" {
		t.Errorf("metadata not refreshed: %+v", second)
	}
}

func TestFindOrCreateScopesByOrg(t *testing.T) {
	reg := New(newTestDB(t), "admin")

	a, err := reg.FindOrCreate("acme", testInfo("d1"))
	if err != nil {
		t.Fatalf("FindOrCreate acme: %v", err)
	}
	b, err := reg.FindOrCreate("globex", testInfo("d1"))
	if err != nil {
		t.Fatalf("FindOrCreate globex: %v", err)
	}

	if a.ID == b.ID || a.CompanyID == b.CompanyID {
		t.Errorf("same uuid under two orgs shared identity: %+v vs %+v", a, b)
	}
}

func TestFindOrCreateRejectsReservedTenant(t *testing.T) {
	db := newTestDB(t)
	reg := New(db, "admin")

	for _, org := range []string{"", "admin"} {
		_, err := reg.FindOrCreate(org, testInfo("d1"))
		if apperr.KindOf(err) != apperr.AccessDenied {
			t.Errorf("org %q: kind = %v, want AccessDenied", org, apperr.KindOf(err))
		}
	}

	// The tenant check runs before any write.
	var companies, devices int64
	db.Model(&models.Company{}).Count(&companies)
	db.Model(&models.Device{}).Count(&devices)
	if companies != 0 || devices != 0 {
		t.Errorf("denied registration left rows behind: %d companies, %d devices", companies, devices)
	}
}

func TestFindOrCreateRejectsMissingFields(t *testing.T) {
	reg := New(newTestDB(t), "admin")

	for _, mutate := range []func(*DeviceInfo){
		func(i *DeviceInfo) { i.UUID = "" },
		func(i *DeviceInfo) { i.Model = "" },
		func(i *DeviceInfo) { i.Manufacturer = "" },
		func(i *DeviceInfo) { i.Version = "" },
	} {
		info := testInfo("d1")
		mutate(&info)
		_, err := reg.FindOrCreate("acme", info)
		if apperr.KindOf(err) != apperr.BadInput {
			t.Errorf("missing field: kind = %v, want BadInput", apperr.KindOf(err))
		}
	}
}

func TestGetIsTenantScoped(t *testing.T) {
	reg := New(newTestDB(t), "admin")
	dev, err := reg.FindOrCreate("acme", testInfo("d1"))
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	got, err := reg.Get(dev.ID, "acme")
	if err != nil || got == nil {
		t.Fatalf("Get own tenant: %v, %v", got, err)
	}

	stolen, err := reg.Get(dev.ID, "globex")
	if err != nil {
		t.Fatalf("Get foreign tenant: %v", err)
	}
	if stolen != nil {
		t.Error("device visible across tenant boundary")
	}

	missing, err := reg.Get(9999, "acme")
	if err != nil {
		t.Fatalf("Get absent: %v", err)
	}
	if missing != nil {
		t.Error("absent device returned a row")
	}
}

func TestDeleteCascadesAndIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	reg := New(db, "admin")
	dev, err := reg.FindOrCreate("acme", testInfo("d1"))
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	base := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		loc := models.Location{
			CompanyID:    dev.CompanyID,
			DeviceID:     dev.ID,
			CompanyToken: "acme",
			RecordedAt:   base.Add(time.Duration(i) * time.Hour),
		}
		if err := db.Create(&loc).Error; err != nil {
			t.Fatalf("seed location: %v", err)
		}
	}

	if err := reg.Delete(dev.ID, dev.CompanyID, DateRange{}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var locs, devs int64
	db.Model(&models.Location{}).Where("device_id = ?", dev.ID).Count(&locs)
	db.Model(&models.Device{}).Where("id = ?", dev.ID).Count(&devs)
	if locs != 0 || devs != 0 {
		t.Errorf("delete left %d locations, %d devices", locs, devs)
	}

	// Replay must succeed, not error.
	if err := reg.Delete(dev.ID, dev.CompanyID, DateRange{}); err != nil {
		t.Errorf("Delete replay: %v", err)
	}
}

func TestDeleteHonorsDateRange(t *testing.T) {
	db := newTestDB(t)
	reg := New(db, "admin")
	dev, err := reg.FindOrCreate("acme", testInfo("d1"))
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	base := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		loc := models.Location{
			CompanyID:    dev.CompanyID,
			DeviceID:     dev.ID,
			CompanyToken: "acme",
			RecordedAt:   base.AddDate(0, 0, i),
		}
		if err := db.Create(&loc).Error; err != nil {
			t.Fatalf("seed location: %v", err)
		}
	}

	start := base.AddDate(0, 0, 1)
	end := base.AddDate(0, 0, 2)
	if err := reg.Delete(dev.ID, dev.CompanyID, DateRange{Start: &start, End: &end}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var remaining int64
	db.Model(&models.Location{}).Where("device_id = ?", dev.ID).Count(&remaining)
	if remaining != 2 {
		t.Errorf("ranged delete kept %d locations, want 2", remaining)
	}
}

func TestCompaniesVisibility(t *testing.T) {
	reg := New(newTestDB(t), "admin")
	if _, err := reg.FindOrCreate("acme", testInfo("d1")); err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if _, err := reg.FindOrCreate("globex", testInfo("d2")); err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	own, err := reg.Companies("acme")
	if err != nil {
		t.Fatalf("Companies: %v", err)
	}
	if len(own) != 1 || own[0].CompanyToken != "acme" {
		t.Errorf("tenant sees %+v, want only its own row", own)
	}

	all, err := reg.Companies("admin")
	if err != nil {
		t.Fatalf("Companies admin: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("admin sees %d companies, want 2", len(all))
	}
}
