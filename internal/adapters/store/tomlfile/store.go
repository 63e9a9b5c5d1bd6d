// Package tomlfile implements the account datastore against a local
// TOML file, for offline and development runs where no Supabase
// project is wired up.
package tomlfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/probelab/visprobe/internal/domain"
	"github.com/probelab/visprobe/internal/ports"
)

const (
	configName      = "config"
	configType      = "toml"
	storePathKey    = "store.path"
	storeFileMode   = 0o600
	storeDirMode    = 0o700
	storeConfigDir  = ".visprobe"
	storeFile       = "store.toml"
	tempFilePattern = ".store-*.toml.tmp"
)

type Store struct {
	path  string
	clock ports.Clock
	mu    *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.AccountStore = (*Store)(nil)

func NewStore(cfg *viper.Viper, clock ports.Clock) (*Store, error) {
	if cfg == nil {
		cfg = viper.New()
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	defaultPath := filepath.Join(homeDir, storeConfigDir, storeFile)

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(filepath.Join(homeDir, storeConfigDir))
	cfg.SetDefault(storePathKey, defaultPath)

	if err := cfg.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	path := cfg.GetString(storePathKey)
	if path == "" {
		return nil, errors.New("store path is empty")
	}
	path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve store path: %w", err)
	}
	path = filepath.Clean(path)

	return &Store{path: path, clock: clock, mu: lockForPath(path)}, nil
}

func (s *Store) QueryLeasable(ctx context.Context, failuresLessThan, limit int) ([]domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.readSchema()
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(file.Accounts))
	for _, entry := range file.Accounts {
		account := fromAccountSchema(entry)
		if account.Failures >= failuresLessThan {
			continue
		}
		accounts = append(accounts, account)
	}

	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.After(accounts[j].CreatedAt)
	})

	if limit > 0 && len(accounts) > limit {
		accounts = accounts[:limit]
	}

	return accounts, nil
}

func (s *Store) AdjustCounters(ctx context.Context, email string, delta ports.CounterDelta) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.readSchema()
	if err != nil {
		return err
	}

	for i := range file.Accounts {
		if file.Accounts[i].Email != email {
			continue
		}

		file.Accounts[i].Failures = clampNonNegative(file.Accounts[i].Failures + delta.Failures)
		file.Accounts[i].Usages = clampNonNegative(file.Accounts[i].Usages + delta.Usages)

		return s.writeSchema(file)
	}

	return fmt.Errorf("adjust counters for %s: %w", email, domain.ErrAccountNotFound)
}

func (s *Store) InsertResult(ctx context.Context, record domain.Record) (domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return domain.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.readSchema()
	if err != nil {
		return domain.Record{}, err
	}

	inserted := record
	inserted.ID = fmt.Sprintf("result-%d", len(file.Results)+1)
	if inserted.CreatedAt.IsZero() {
		inserted.CreatedAt = s.clock.Now()
	}

	file.Results = append(file.Results, toResultSchema(inserted))

	if err := s.writeSchema(file); err != nil {
		return domain.Record{}, err
	}

	return inserted, nil
}

// SeedAccounts replaces the stored account set. Used by fixtures and
// local setup, not by the orchestration core.
func (s *Store) SeedAccounts(accounts []domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.readSchema()
	if err != nil {
		return err
	}

	file.Accounts = make([]accountSchema, 0, len(accounts))
	for _, account := range accounts {
		file.Accounts = append(file.Accounts, toAccountSchema(account))
	}

	return s.writeSchema(file)
}

func (s *Store) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{}, nil
		}
		return fileSchema{}, fmt.Errorf("read store file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode store file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func (s *Store) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(s.path), storeDirMode); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(s.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp store file: %w", err)
	}

	if err := tempFile.Chmod(storeFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp store file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tempName, s.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}

	cleanup = false

	if err := os.Chmod(s.path, storeFileMode); err != nil {
		return fmt.Errorf("chmod store file: %w", err)
	}

	return nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func toAccountSchema(account domain.Account) accountSchema {
	return accountSchema{
		Email:     account.Email,
		Password:  account.Password,
		Failures:  account.Failures,
		Usages:    account.Usages,
		CreatedAt: formatTime(account.CreatedAt),
	}
}

func fromAccountSchema(account accountSchema) domain.Account {
	return domain.Account{
		Email:     account.Email,
		Password:  account.Password,
		Failures:  account.Failures,
		Usages:    account.Usages,
		CreatedAt: parseTime(account.CreatedAt),
	}
}

func toResultSchema(record domain.Record) resultSchema {
	return resultSchema{
		ID:                record.ID,
		Customer:          record.Customer,
		AccountEmail:      record.AccountEmail,
		Query:             record.Query,
		CitedSources:      record.CitedSources,
		Candidates:        record.Candidates,
		BestCandidate:     record.BestCandidate,
		CustomerMentioned: record.CustomerMentioned,
		CustomerTopRanked: record.CustomerTopRanked,
		CreatedAt:         formatTime(record.CreatedAt),
	}
}

func clampNonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.Format(time.RFC3339)
}
