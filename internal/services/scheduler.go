package services

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/mailpilot/agent/internal/agent"
	"github.com/mailpilot/agent/internal/database/models"
)

// ErrCycleInProgress indicates a cycle for the account is already running
var ErrCycleInProgress = errors.New("cycle already in progress for this account")

// Scheduler owns the process-wide tick loop. Once per tick it computes
// due-ness for every active account and runs due cycles, each on its own
// goroutine so a slow mailbox cannot block the others or the tick itself.
type Scheduler struct {
	accountService *AccountService
	logService     *LogService
	runner         *agent.Runner
	interval       time.Duration
	stopChan       chan struct{}
	running        bool
	mu             sync.Mutex
	ticking        sync.Mutex // 防止 tick 周期重叠
	accountLocks   sync.Map   // 每个账户独立锁，防止同一账户并发执行
}

// NewScheduler creates a new Scheduler
func NewScheduler(accountService *AccountService, logService *LogService, runner *agent.Runner, interval time.Duration) *Scheduler {
	return &Scheduler{
		accountService: accountService,
		logService:     logService,
		runner:         runner,
		interval:       interval,
		stopChan:       make(chan struct{}),
	}
}

// Start begins the tick loop
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	log.Printf("[Scheduler] Starting with tick interval: %v", s.interval)

	go func() {
		// 启动后等待 10 秒再执行第一次检查，让服务完全就绪
		select {
		case <-time.After(10 * time.Second):
			s.tick()
		case <-s.stopChan:
			return
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.tick()
			case <-s.stopChan:
				log.Println("[Scheduler] Stopping")
				return
			}
		}
	}()
}

// Stop stops the tick loop
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	close(s.stopChan)
	s.running = false
}

// tryLockAccount marks an account as in progress. Returns false if a cycle
// for the account is already running.
func (s *Scheduler) tryLockAccount(accountID uint) bool {
	_, loaded := s.accountLocks.LoadOrStore(accountID, true)
	return !loaded
}

// unlockAccount releases the in-progress marker
func (s *Scheduler) unlockAccount(accountID uint) {
	s.accountLocks.Delete(accountID)
}

// tick evaluates due-ness for every active account and runs the due ones
func (s *Scheduler) tick() {
	// 如果上一轮 tick 还没结束，跳过本轮
	if !s.ticking.TryLock() {
		log.Println("[Scheduler] Previous tick still running, skipping")
		return
	}
	defer s.ticking.Unlock()

	accounts, err := s.accountService.ListActive()
	if err != nil {
		log.Printf("[Scheduler] Failed to load accounts: %v", err)
		return
	}
	if len(accounts) == 0 {
		return
	}

	now := time.Now()
	var wg sync.WaitGroup
	for _, account := range accounts {
		if !account.IsDue(now) {
			continue
		}
		if !s.tryLockAccount(account.ID) {
			log.Printf("[Scheduler] Account %s still busy from a previous tick, skipping", account.Email)
			continue
		}

		wg.Add(1)
		go func(acc models.Account) {
			defer wg.Done()
			defer s.unlockAccount(acc.ID)
			s.runAccount(&acc)
		}(account)
	}
	wg.Wait()
}

// TriggerAccount runs a cycle for one account immediately, outside the tick
// schedule. Used right after first registration and for manual runs. The
// in-progress guard still applies.
func (s *Scheduler) TriggerAccount(accountID uint) error {
	account, err := s.accountService.GetByID(accountID)
	if err != nil {
		return err
	}

	if !s.tryLockAccount(account.ID) {
		return ErrCycleInProgress
	}
	defer s.unlockAccount(account.ID)

	s.runAccount(account)
	return nil
}

// runAccount decrypts credentials, runs one cycle and persists the outcome
func (s *Scheduler) runAccount(account *models.Account) {
	password, err := s.accountService.DecryptedPassword(account)
	if err != nil {
		log.Printf("[Scheduler] Account %s: cannot decrypt password: %v", account.Email, err)
		return
	}
	apiKey, err := s.accountService.DecryptedAPIKey(account)
	if err != nil {
		log.Printf("[Scheduler] Account %s: cannot decrypt API key: %v", account.Email, err)
		return
	}

	log.Printf("[Scheduler] Running cycle for %s", account.Email)
	entries, completedAt, err := s.runner.RunCycle(account, password, apiKey)
	if err != nil {
		// One error entry for the whole failed cycle; last_run stays put so
		// the account is retried on a later tick
		if logErr := s.logService.LogCycleError(account.ID, err); logErr != nil {
			log.Printf("[Scheduler] Failed to record cycle error for %s: %v", account.Email, logErr)
		}
		return
	}

	if err := s.logService.SaveCycleEntries(account.ID, entries); err != nil {
		log.Printf("[Scheduler] Failed to save action log for %s: %v", account.Email, err)
	}

	if err := s.accountService.UpdateLastRun(account.ID, completedAt); err != nil {
		log.Printf("[Scheduler] Failed to update last run for %s: %v", account.Email, err)
	}
}
