package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mailpilot/agent/internal/database/models"
	"github.com/mailpilot/agent/internal/mailbox"
	"gorm.io/gorm"
)

var (
	// ErrAccountNotFound indicates the account was not found
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidAccountData indicates missing or invalid registration data
	ErrInvalidAccountData = errors.New("invalid account data")
	// ErrLoginFailed indicates the mailbox rejected the credentials
	ErrLoginFailed = errors.New("mailbox login failed")
	// ErrEncryptionFailed indicates credential encryption failed
	ErrEncryptionFailed = errors.New("credential encryption failed")
	// ErrDecryptionFailed indicates credential decryption failed
	ErrDecryptionFailed = errors.New("credential decryption failed")
)

// ServerDefaults are the mail servers assigned to newly registered accounts
type ServerDefaults struct {
	IMAPHost string
	IMAPPort int
	SMTPHost string
	SMTPPort int
}

// AccountService handles account registration, settings and due-ness
type AccountService struct {
	db            *gorm.DB
	encryptionKey []byte // 32 bytes for AES-256
	gateway       mailbox.Gateway
	defaults      ServerDefaults
}

// NewAccountService creates a new AccountService instance
func NewAccountService(db *gorm.DB, encryptionKey []byte, gateway mailbox.Gateway, defaults ServerDefaults) *AccountService {
	key := make([]byte, 32)
	copy(key, encryptionKey)
	return &AccountService{
		db:            db,
		encryptionKey: key,
		gateway:       gateway,
		defaults:      defaults,
	}
}

// encrypt encrypts a credential using AES-256-GCM
func (s *AccountService) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", ErrEncryptionFailed
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrEncryptionFailed
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", ErrEncryptionFailed
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a credential using AES-256-GCM
func (s *AccountService) decrypt(encrypted string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", ErrDecryptionFailed
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// RegisterInput represents the input for registering an account
type RegisterInput struct {
	Email           string
	Password        string // mailbox app password
	APIKey          string // LLM API key
	IntervalMinutes int
}

// Register registers a new account or refreshes the credentials of an
// existing one. Missing credentials are rejected outright; the mailbox
// password is verified with a live IMAP login before anything is persisted.
// LastRunAt of an existing account is preserved so re-login does not reset
// the schedule.
func (s *AccountService) Register(input RegisterInput) (*models.Account, error) {
	if input.Email == "" || input.Password == "" || input.APIKey == "" {
		return nil, fmt.Errorf("%w: email, password and API key are required", ErrInvalidAccountData)
	}
	if input.IntervalMinutes <= 0 {
		input.IntervalMinutes = 30
	}

	account := &models.Account{
		Email:           input.Email,
		Active:          true,
		IntervalMinutes: input.IntervalMinutes,
		IMAPHost:        s.defaults.IMAPHost,
		IMAPPort:        s.defaults.IMAPPort,
		SMTPHost:        s.defaults.SMTPHost,
		SMTPPort:        s.defaults.SMTPPort,
		UseSSL:          true,
	}

	// Reject bad credentials before persisting anything
	if err := s.gateway.CheckLogin(account, input.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	passwordEnc, err := s.encrypt(input.Password)
	if err != nil {
		return nil, err
	}
	apiKeyEnc, err := s.encrypt(input.APIKey)
	if err != nil {
		return nil, err
	}
	account.PasswordEncrypted = passwordEnc
	account.APIKeyEncrypted = apiKeyEnc

	var existing models.Account
	err = s.db.Where("email = ?", input.Email).First(&existing).Error
	switch {
	case err == nil:
		// Refresh credentials and settings, keep the run history
		existing.PasswordEncrypted = passwordEnc
		existing.APIKeyEncrypted = apiKeyEnc
		existing.IntervalMinutes = input.IntervalMinutes
		existing.Active = true
		if err := s.db.Save(&existing).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.db.Create(account).Error; err != nil {
			return nil, err
		}
		return account, nil
	default:
		return nil, err
	}
}

// GetByEmail retrieves an account by its email address
func (s *AccountService) GetByEmail(email string) (*models.Account, error) {
	var account models.Account
	if err := s.db.Where("email = ?", email).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetByID retrieves an account by ID
func (s *AccountService) GetByID(id uint) (*models.Account, error) {
	var account models.Account
	if err := s.db.First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// ListActive returns all accounts with the active flag set
func (s *AccountService) ListActive() ([]models.Account, error) {
	var accounts []models.Account
	if err := s.db.Where("active = ?", true).Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListAll returns every registered account
func (s *AccountService) ListAll() ([]models.Account, error) {
	var accounts []models.Account
	if err := s.db.Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// SetInterval updates the polling interval for an account
func (s *AccountService) SetInterval(email string, minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidAccountData)
	}
	return s.updateColumn(email, "interval_minutes", minutes)
}

// SetActive toggles the active flag for an account
func (s *AccountService) SetActive(email string, active bool) error {
	return s.updateColumn(email, "active", active)
}

// updateColumn writes a single column so concurrent writers of other columns
// are never clobbered.
func (s *AccountService) updateColumn(email, column string, value interface{}) error {
	result := s.db.Model(&models.Account{}).Where("email = ?", email).Update(column, value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// UpdateLastRun persists the completion timestamp of a cycle. Only the
// last_run_at column is written; a settings change racing with the scheduler
// keeps its value.
func (s *AccountService) UpdateLastRun(accountID uint, completedAt time.Time) error {
	return s.db.Model(&models.Account{}).Where("id = ?", accountID).
		Update("last_run_at", completedAt).Error
}

// Status describes the scheduling state of an account
type Status struct {
	Active          bool       `json:"active"`
	IntervalMinutes int        `json:"interval"`
	LastRun         *time.Time `json:"last_run"`
	NextRun         string     `json:"next_run"` // "Pending...", "Now/Soon" or "in N mins"
}

// GetStatus computes the user-facing schedule status for an account
func (s *AccountService) GetStatus(email string, now time.Time) (*Status, error) {
	account, err := s.GetByEmail(email)
	if err != nil {
		return nil, err
	}

	status := &Status{
		Active:          account.Active,
		IntervalMinutes: account.IntervalMinutes,
		LastRun:         account.LastRunAt,
		NextRun:         "Pending...",
	}

	if account.LastRunAt != nil {
		next := account.NextRunAt()
		minutesLeft := int(next.Sub(now).Minutes())
		if minutesLeft <= 0 {
			status.NextRun = "Now/Soon"
		} else {
			status.NextRun = fmt.Sprintf("in %d mins", minutesLeft)
		}
	}

	return status, nil
}

// DecryptedPassword returns the account's mailbox password in plaintext
func (s *AccountService) DecryptedPassword(account *models.Account) (string, error) {
	return s.decrypt(account.PasswordEncrypted)
}

// DecryptedAPIKey returns the account's LLM API key in plaintext
func (s *AccountService) DecryptedAPIKey(account *models.Account) (string, error) {
	return s.decrypt(account.APIKeyEncrypted)
}
