package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ClasslyHQ/Classly/app/repository"
	"github.com/ClasslyHQ/Classly/internal/pkg/cache"
	"github.com/ClasslyHQ/Classly/internal/pkg/payments"
)

const (
	defaultInterval = 1 * time.Hour
	sweepLockKey    = "sweep:credit-expiry"
	batchSize       = 100
)

// Sweeper periodically forfeits expired credits across all balances. Only
// one instance sweeps at a time; the redis lock elects it.
type Sweeper struct {
	svc      *payments.Service
	balances repository.CreditBalanceRepository
	locker   *cache.RedisLocker
	interval time.Duration

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// New creates a sweeper with the given interval (<= 0 uses the default).
func New(svc *payments.Service, balances repository.CreditBalanceRepository, locker *cache.RedisLocker, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Sweeper{
		svc:      svc,
		balances: balances,
		locker:   locker,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	log.Infof("[Sweeper] Starting credit expiry sweeper (interval %s)", s.interval)
	s.wg.Add(1)
	go s.loop()
}

// Stop stops the sweep loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	s.wg.Wait()
	log.Infof("[Sweeper] Stopped")
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Sweeper) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	acquired, release, err := s.locker.TryLock(ctx, sweepLockKey)
	if err != nil {
		log.Errorf("[Sweeper] Lock error: %v", err)
		return
	}
	if !acquired {
		log.Debugf("[Sweeper] Another instance is sweeping, skipping")
		return
	}
	defer release()

	ids, err := s.balances.ListWithExpiringPackages(time.Now(), batchSize)
	if err != nil {
		log.Errorf("[Sweeper] Failed to list balances with expired credits: %v", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	swept, forfeited := 0, 0
	for _, id := range ids {
		n, err := s.svc.CleanupExpiredForBalance(ctx, id)
		if err != nil {
			log.Errorf("[Sweeper] Cleanup failed for balance %d: %v", id, err)
			continue
		}
		swept++
		forfeited += n
	}
	log.Infof("[Sweeper] Swept %d balances, forfeited %d credits", swept, forfeited)
}
