package services

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/mailpilot/agent/internal/database/models"
	"github.com/mailpilot/agent/internal/mailbox"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	// Create a temporary database file
	tmpFile, err := os.CreateTemp("", "test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpFile.Close()

	// Open database
	db, err := gorm.Open(sqlite.Open(tmpFile.Name()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to open database: %v", err)
	}

	// Run migrations
	err = db.AutoMigrate(
		&models.Account{},
		&models.ActionLog{},
	)
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to migrate: %v", err)
	}

	cleanup := func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		os.Remove(tmpFile.Name())
	}

	return db, cleanup
}

// stubGateway accepts or rejects every login without touching the network
type stubGateway struct {
	loginErr error
}

func (s *stubGateway) FetchUnseen(account *models.Account, password string, limit int) ([]mailbox.Message, error) {
	return nil, nil
}

func (s *stubGateway) SendReply(account *models.Account, password, to, origSubject, body string) bool {
	return true
}

func (s *stubGateway) CheckLogin(account *models.Account, password string) error {
	return s.loginErr
}

var testKey = []byte("test-encryption-key-32-bytes!!!!")

func newTestAccountService(db *gorm.DB, gateway mailbox.Gateway) *AccountService {
	return NewAccountService(db, testKey, gateway, ServerDefaults{
		IMAPHost: "imap.test.com",
		IMAPPort: 993,
		SMTPHost: "smtp.test.com",
		SMTPPort: 587,
	})
}

func TestRegisterRejectsMissingFields(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := newTestAccountService(db, &stubGateway{})

	tests := []RegisterInput{
		{Email: "", Password: "pw", APIKey: "key"},
		{Email: "a@b.com", Password: "", APIKey: "key"},
		{Email: "a@b.com", Password: "pw", APIKey: ""},
	}
	for _, input := range tests {
		if _, err := service.Register(input); !errors.Is(err, ErrInvalidAccountData) {
			t.Errorf("Register(%+v) error = %v, want ErrInvalidAccountData", input, err)
		}
	}
}

func TestRegisterRejectsBadCredentials(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := newTestAccountService(db, &stubGateway{loginErr: errors.New("authentication failed")})

	_, err := service.Register(RegisterInput{Email: "a@b.com", Password: "wrong", APIKey: "key"})
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("error = %v, want ErrLoginFailed", err)
	}

	// Nothing was persisted
	if _, err := service.GetByEmail("a@b.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("account persisted despite failed login, err = %v", err)
	}
}

func TestRegisterEncryptsAndRoundTrips(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := newTestAccountService(db, &stubGateway{})

	account, err := service.Register(RegisterInput{
		Email:    "a@b.com",
		Password: "app-password",
		APIKey:   "sk-or-v1-secret",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Credentials are never stored in plaintext
	if account.PasswordEncrypted == "app-password" || account.APIKeyEncrypted == "sk-or-v1-secret" {
		t.Fatal("credentials stored in plaintext")
	}

	password, err := service.DecryptedPassword(account)
	if err != nil || password != "app-password" {
		t.Errorf("DecryptedPassword = %q, %v", password, err)
	}
	apiKey, err := service.DecryptedAPIKey(account)
	if err != nil || apiKey != "sk-or-v1-secret" {
		t.Errorf("DecryptedAPIKey = %q, %v", apiKey, err)
	}

	// Defaults applied
	if account.IntervalMinutes != 30 {
		t.Errorf("default interval = %d, want 30", account.IntervalMinutes)
	}
	if !account.Active {
		t.Error("new account should be active")
	}
	if account.LastRunAt != nil {
		t.Error("new account should have no last run")
	}
	if account.IMAPHost != "imap.test.com" || account.SMTPHost != "smtp.test.com" {
		t.Errorf("server defaults not applied: %s / %s", account.IMAPHost, account.SMTPHost)
	}
}

func TestRegisterExistingAccountKeepsRunHistory(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := newTestAccountService(db, &stubGateway{})

	first, err := service.Register(RegisterInput{Email: "a@b.com", Password: "pw1", APIKey: "key1"})
	if err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	ranAt := time.Now().Add(-10 * time.Minute).UTC().Truncate(time.Second)
	if err := service.UpdateLastRun(first.ID, ranAt); err != nil {
		t.Fatalf("UpdateLastRun failed: %v", err)
	}

	second, err := service.Register(RegisterInput{Email: "a@b.com", Password: "pw2", APIKey: "key2", IntervalMinutes: 15})
	if err != nil {
		t.Fatalf("second Register failed: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("re-registration created a new row: %d vs %d", second.ID, first.ID)
	}
	if second.LastRunAt == nil {
		t.Fatal("re-registration reset the run history")
	}
	if second.IntervalMinutes != 15 {
		t.Errorf("interval not refreshed, got %d", second.IntervalMinutes)
	}

	// New credentials round-trip
	password, err := service.DecryptedPassword(second)
	if err != nil || password != "pw2" {
		t.Errorf("DecryptedPassword = %q, %v", password, err)
	}
}

func TestSetIntervalAndSetActive(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := newTestAccountService(db, &stubGateway{})

	if _, err := service.Register(RegisterInput{Email: "a@b.com", Password: "pw", APIKey: "key"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := service.SetInterval("a@b.com", 5); err != nil {
		t.Fatalf("SetInterval failed: %v", err)
	}
	if err := service.SetActive("a@b.com", false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	account, err := service.GetByEmail("a@b.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if account.IntervalMinutes != 5 {
		t.Errorf("interval = %d, want 5", account.IntervalMinutes)
	}
	if account.Active {
		t.Error("account should be inactive")
	}

	// Validation and missing accounts
	if err := service.SetInterval("a@b.com", 0); !errors.Is(err, ErrInvalidAccountData) {
		t.Errorf("SetInterval(0) error = %v, want ErrInvalidAccountData", err)
	}
	if err := service.SetInterval("ghost@b.com", 5); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("SetInterval(ghost) error = %v, want ErrAccountNotFound", err)
	}
	if err := service.SetActive("ghost@b.com", true); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("SetActive(ghost) error = %v, want ErrAccountNotFound", err)
	}
}

func TestListActiveFiltersDisabled(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := newTestAccountService(db, &stubGateway{})

	for _, email := range []string{"a@b.com", "c@d.com", "e@f.com"} {
		if _, err := service.Register(RegisterInput{Email: email, Password: "pw", APIKey: "key"}); err != nil {
			t.Fatalf("Register(%s) failed: %v", email, err)
		}
	}
	if err := service.SetActive("c@d.com", false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	active, err := service.ListActive()
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("got %d active accounts, want 2", len(active))
	}
	for _, account := range active {
		if account.Email == "c@d.com" {
			t.Error("disabled account returned by ListActive")
		}
	}

	all, err := service.ListAll()
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d accounts, want 3", len(all))
	}
}

func TestGetStatusStrings(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := newTestAccountService(db, &stubGateway{})

	account, err := service.Register(RegisterInput{Email: "a@b.com", Password: "pw", APIKey: "key", IntervalMinutes: 30})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	now := time.Now()

	// Never run: pending
	status, err := service.GetStatus("a@b.com", now)
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if status.NextRun != "Pending..." {
		t.Errorf("NextRun = %q, want Pending...", status.NextRun)
	}

	// Ran 10 minutes ago with a 30 minute interval: about 20 minutes left
	if err := service.UpdateLastRun(account.ID, now.Add(-10*time.Minute)); err != nil {
		t.Fatalf("UpdateLastRun failed: %v", err)
	}
	status, err = service.GetStatus("a@b.com", now)
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if status.NextRun != "in 20 mins" && status.NextRun != "in 19 mins" {
		t.Errorf("NextRun = %q, want about 20 mins", status.NextRun)
	}

	// Overdue: due now
	if err := service.UpdateLastRun(account.ID, now.Add(-45*time.Minute)); err != nil {
		t.Fatalf("UpdateLastRun failed: %v", err)
	}
	status, err = service.GetStatus("a@b.com", now)
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if status.NextRun != "Now/Soon" {
		t.Errorf("NextRun = %q, want Now/Soon", status.NextRun)
	}

	if _, err := service.GetStatus("ghost@b.com", now); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("GetStatus(ghost) error = %v, want ErrAccountNotFound", err)
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := newTestAccountService(db, &stubGateway{})
	account, err := service.Register(RegisterInput{Email: "a@b.com", Password: "pw", APIKey: "key"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	other := NewAccountService(db, []byte("another-encryption-key-32-bytes!"), &stubGateway{}, ServerDefaults{})
	if _, err := other.DecryptedPassword(account); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("decrypt with wrong key error = %v, want ErrDecryptionFailed", err)
	}
}
