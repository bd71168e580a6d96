package lending

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"orbitlen/storage"
)

// State persists banks and accounts. Implementations return clones; callers
// own what they get back and nothing is shared with the store.
type State interface {
	GetBank(assetID string) (*Bank, error)
	PutBank(bank *Bank) error
	ListBanks() ([]*Bank, error)
	GetAccount(owner string) (*Account, error)
	PutAccount(account *Account) error
}

const (
	bankKeyPrefix    = "lending/bank/"
	accountKeyPrefix = "lending/account/"
)

// kvState stores records as JSON in a key-value database, memory-backed in
// tests and LevelDB-backed in the node.
type kvState struct {
	mu sync.RWMutex
	db storage.Database
}

// NewKVState wraps a database as engine state.
func NewKVState(db storage.Database) State {
	return &kvState{db: db}
}

func (s *kvState) GetBank(assetID string) (*Bank, error) {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return nil, fmt.Errorf("%w: empty bank id", ErrNotFound)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, err := s.db.Get([]byte(bankKeyPrefix + assetID))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: bank %s", ErrNotFound, assetID)
		}
		return nil, err
	}
	var bank Bank
	if err := json.Unmarshal(raw, &bank); err != nil {
		return nil, fmt.Errorf("decode bank %s: %w", assetID, err)
	}
	return &bank, nil
}

func (s *kvState) PutBank(bank *Bank) error {
	if bank == nil || strings.TrimSpace(bank.AssetID) == "" {
		return ErrInvalidConfig
	}
	raw, err := json.Marshal(bank)
	if err != nil {
		return fmt.Errorf("encode bank %s: %w", bank.AssetID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put([]byte(bankKeyPrefix+bank.AssetID), raw)
}

func (s *kvState) ListBanks() ([]*Bank, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var banks []*Bank
	err := s.db.Iterate([]byte(bankKeyPrefix), func(_, value []byte) error {
		var bank Bank
		if err := json.Unmarshal(value, &bank); err != nil {
			return fmt.Errorf("decode bank: %w", err)
		}
		banks = append(banks, &bank)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return banks, nil
}

func (s *kvState) GetAccount(owner string) (*Account, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("%w: empty account owner", ErrNotFound)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, err := s.db.Get([]byte(accountKeyPrefix + owner))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: account %s", ErrNotFound, owner)
		}
		return nil, err
	}
	var account Account
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", owner, err)
	}
	return &account, nil
}

func (s *kvState) PutAccount(account *Account) error {
	if account == nil || strings.TrimSpace(account.Owner) == "" {
		return ErrInvalidConfig
	}
	raw, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("encode account %s: %w", account.Owner, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put([]byte(accountKeyPrefix+account.Owner), raw)
}
