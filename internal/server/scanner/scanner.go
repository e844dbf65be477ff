// Package scanner drives the periodic refresh of sensor states: every
// tick it rebuilds the codes of all known vaults and publishes them to
// the registry.
package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/keepotp/internal/kdbx"
	"github.com/dmitrijs2005/keepotp/internal/logging"
	"github.com/dmitrijs2005/keepotp/internal/server/models"
	"github.com/dmitrijs2005/keepotp/internal/server/sensors"
	"github.com/dmitrijs2005/keepotp/internal/server/services"
)

// test seam for watch-mode scans
var openDatabase = kdbx.Open

// VaultProvider is the slice of the vault service the scanner needs.
type VaultProvider interface {
	ListAll(ctx context.Context) ([]*models.Vault, error)
	Descriptors(vault *models.Vault) ([]services.StoredDescriptor, error)
}

// WatchConfig describes a database file watched in place: instead of a
// one-time import, the file is re-opened and re-extracted every tick so
// edits show up on the next refresh.
type WatchConfig struct {
	ID       string
	UserID   string
	Path     string
	Password string
	KeyFile  string
}

// Scanner owns the refresh loop. A per-vault in-flight flag keeps scans
// of the same vault from overlapping, and a generation counter lets a
// reconfiguration discard the result of a scan it superseded.
type Scanner struct {
	vaults   VaultProvider
	registry *sensors.Registry
	interval time.Duration
	logger   logging.Logger
	now      func() time.Time

	mu      sync.Mutex
	running map[string]bool
	gen     map[string]uint64

	watchMu sync.Mutex
	watches []WatchConfig
}

func New(vaults VaultProvider, registry *sensors.Registry, interval time.Duration, logger logging.Logger) *Scanner {
	return &Scanner{
		vaults:   vaults,
		registry: registry,
		interval: interval,
		logger:   logger.With("module", "scanner"),
		now:      time.Now,
		running:  make(map[string]bool),
		gen:      make(map[string]uint64),
	}
}

// AddWatch registers a watch-mode database. It takes effect on the next
// tick.
func (s *Scanner) AddWatch(w WatchConfig) {
	s.watchMu.Lock()
	s.watches = append(s.watches, w)
	s.watchMu.Unlock()
}

// Invalidate bumps the vault's generation so that an in-flight scan
// started before the call cannot publish a stale descriptor set.
func (s *Scanner) Invalidate(vaultID string) {
	s.mu.Lock()
	s.gen[vaultID]++
	s.mu.Unlock()
}

// Run ticks until the context is cancelled. The first scan happens
// immediately so sensors exist before the first interval elapses.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

// Scan performs one full refresh pass over every imported vault and
// every watched database. Errors are per-vault: one broken vault never
// stops the others.
func (s *Scanner) Scan(ctx context.Context) {
	vaults, err := s.vaults.ListAll(ctx)
	if err != nil {
		s.logger.Error(ctx, "listing vaults failed", "error", err)
	}

	var wg sync.WaitGroup
	for _, v := range vaults {
		v := v
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.scanOne(ctx, v.ID, v.UserID, func() ([]services.StoredDescriptor, error) {
				return s.vaults.Descriptors(v)
			})
		}()
	}

	s.watchMu.Lock()
	watches := make([]WatchConfig, len(s.watches))
	copy(watches, s.watches)
	s.watchMu.Unlock()

	for _, w := range watches {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.scanOne(ctx, w.ID, w.UserID, func() ([]services.StoredDescriptor, error) {
				entries, err := openDatabase(w.Path, w.Password, w.KeyFile)
				if err != nil {
					return nil, err
				}
				descs, _ := services.BuildDescriptors(entries)
				return descs, nil
			})
		}()
	}

	wg.Wait()
}

func (s *Scanner) scanOne(ctx context.Context, vaultID, userID string, load func() ([]services.StoredDescriptor, error)) {
	s.mu.Lock()
	if s.running[vaultID] {
		s.mu.Unlock()
		return
	}
	s.running[vaultID] = true
	startGen := s.gen[vaultID]
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, vaultID)
		s.mu.Unlock()
	}()

	descs, err := load()
	if err != nil {
		switch {
		case errors.Is(err, kdbx.ErrDatabaseNotFound):
			s.logger.Error(ctx, "database file missing", "vault_id", vaultID)
		case errors.Is(err, kdbx.ErrInvalidCredentials):
			s.logger.Error(ctx, "database credentials rejected", "vault_id", vaultID)
		case errors.Is(err, kdbx.ErrCorruptDatabase):
			s.logger.Error(ctx, "database file corrupt", "vault_id", vaultID)
		default:
			s.logger.Error(ctx, "vault scan failed", "vault_id", vaultID, "error", err)
		}
		return
	}

	now := s.now()
	states := make([]sensors.State, 0, len(descs))
	for i := range descs {
		d := descs[i].Descriptor()
		code, err := d.Code(now)
		if err != nil {
			s.logger.Warn(ctx, "code generation failed", "vault_id", vaultID, "key", descs[i].Key)
			continue
		}
		states = append(states, sensors.State{
			Key:           descs[i].Key,
			Code:          code,
			EntryName:     descs[i].EntryName,
			Issuer:        descs[i].Issuer,
			Account:       descs[i].Account,
			URL:           descs[i].URL,
			TimeRemaining: d.Remaining(now),
			Period:        descs[i].Period,
		})
	}

	s.mu.Lock()
	superseded := s.gen[vaultID] != startGen
	s.mu.Unlock()
	if superseded {
		return
	}

	diff := s.registry.Publish(userID, vaultID, states)
	if diff.Created > 0 || diff.Removed > 0 {
		s.logger.Info(ctx, "sensor set changed",
			"vault_id", vaultID, "created", diff.Created, "removed", diff.Removed)
	}
}
