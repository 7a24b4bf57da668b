package ledger

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/transactionhub/ledger-api/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Database wraps account persistence. Mutations of a single account are a
// read-modify-write-append sequence, so they are serialized behind a
// per-account mutex held for the whole operation in addition to running
// inside one DB transaction. Reads bypass the mutex.
type Database struct {
	db *gorm.DB

	mu           sync.Mutex
	accountLocks map[string]*sync.Mutex
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{
		db:           db,
		accountLocks: make(map[string]*sync.Mutex),
	}
}

func (d *Database) accountLock(accountID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, exists := d.accountLocks[accountID]
	if !exists {
		l = &sync.Mutex{}
		d.accountLocks[accountID] = l
	}
	return l
}

// WithAccount runs fn against the user's account as one atomic unit: the
// account mutex is acquired before the pre-state is read and released
// after the final ledger append commits. fn returning an error rolls the
// whole operation back.
func (d *Database) WithAccount(userID, accountID string, fn func(tx *gorm.DB, account *types.LedgerAccount) error) error {
	l := d.accountLock(accountID)
	l.Lock()
	defer l.Unlock()

	return d.db.Transaction(func(tx *gorm.DB) error {
		account, err := getAccountForUser(tx, userID, accountID)
		if err != nil {
			return err
		}
		return fn(tx, account)
	})
}

func getAccountForUser(tx *gorm.DB, userID, accountID string) (*types.LedgerAccount, error) {
	var account types.LedgerAccount
	err := tx.
		Joins("JOIN clients ON clients.client_id = ledger_accounts.client_id").
		Where("ledger_accounts.account_id = ? AND clients.user_id = ?", accountID, userID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetAccount is the unlocked read path. A concurrent payment may commit
// between this read and a later one; display queries accept that window.
func (d *Database) GetAccount(userID, accountID string) (*types.LedgerAccount, error) {
	return getAccountForUser(d.db, userID, accountID)
}

func (d *Database) ListAccounts(userID string) ([]types.LedgerAccount, error) {
	var accounts []types.LedgerAccount
	err := d.db.
		Joins("JOIN clients ON clients.client_id = ledger_accounts.client_id").
		Where("clients.user_id = ?", userID).
		Order("ledger_accounts.created_at ASC").
		Find(&accounts).Error
	return accounts, err
}

// ListLockedAccounts returns every account with an open settlement cycle,
// across all users. Used by the cycle sweeper.
func (d *Database) ListLockedAccounts() ([]types.LedgerAccount, error) {
	var accounts []types.LedgerAccount
	err := d.db.Where("initial_final_share > 0").Find(&accounts).Error
	return accounts, err
}

func nextSequenceNo(tx *gorm.DB, accountID string) (int64, error) {
	var max int64
	err := tx.Model(&types.Transaction{}).
		Where("account_id = ?", accountID).
		Select("COALESCE(MAX(sequence_no), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// appendTransaction writes one audit row for the account. fundingBefore
// and balanceBefore are the caller's pre-mutation snapshot; the after
// values are read from the account as it stands now.
func appendTransaction(tx *gorm.DB, account *types.LedgerAccount, txnType string, amount, fundingBefore, balanceBefore int64, notes string) (*types.Transaction, error) {
	seq, err := nextSequenceNo(tx, account.AccountID)
	if err != nil {
		return nil, err
	}

	txn := &types.Transaction{
		TransactionID:         "TXN_" + uuid.New().String(),
		AccountID:             account.AccountID,
		Date:                  time.Now(),
		Type:                  txnType,
		Amount:                amount,
		FundingBefore:         fundingBefore,
		FundingAfter:          account.Funding,
		ExchangeBalanceBefore: balanceBefore,
		ExchangeBalanceAfter:  account.ExchangeBalance,
		SequenceNo:            seq,
		Notes:                 notes,
	}
	if err := tx.Create(txn).Error; err != nil {
		return nil, err
	}
	return txn, nil
}

func createSettlement(tx *gorm.DB, accountID string, paidAmount int64, notes string) (*types.Settlement, error) {
	settlement := &types.Settlement{
		SettlementID: "STL_" + uuid.New().String(),
		AccountID:    accountID,
		PaidAmount:   paidAmount,
		PaidAt:       time.Now(),
		Notes:        notes,
	}
	if err := tx.Create(settlement).Error; err != nil {
		return nil, err
	}
	return settlement, nil
}

// ListTransactions returns the account's ledger newest first, optionally
// bounded to [from, to].
func (d *Database) ListTransactions(userID, accountID string, from, to *time.Time) ([]types.Transaction, error) {
	if _, err := getAccountForUser(d.db, userID, accountID); err != nil {
		return nil, err
	}

	query := d.db.Where("account_id = ?", accountID)
	if from != nil {
		query = query.Where("date >= ?", *from)
	}
	if to != nil {
		query = query.Where("date <= ?", *to)
	}

	var transactions []types.Transaction
	err := query.Order("date DESC").Order("sequence_no DESC").Find(&transactions).Error
	return transactions, err
}

func (d *Database) getTransactionForUser(tx *gorm.DB, userID, transactionID string) (*types.Transaction, error) {
	var txn types.Transaction
	err := tx.
		Joins("JOIN ledger_accounts ON ledger_accounts.account_id = transactions.account_id").
		Joins("JOIN clients ON clients.client_id = ledger_accounts.client_id").
		Where("transactions.transaction_id = ? AND clients.user_id = ?", transactionID, userID).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &txn, nil
}

// EditTransaction is the narrow administrative override: amount and notes
// only, snapshots and sequencing stay untouched.
func (d *Database) EditTransaction(userID, transactionID string, amount *int64, notes *string) (*types.Transaction, error) {
	txn, err := d.getTransactionForUser(d.db, userID, transactionID)
	if err != nil {
		return nil, err
	}

	if amount != nil {
		txn.Amount = *amount
	}
	if notes != nil {
		txn.Notes = *notes
	}
	if err := d.db.Save(txn).Error; err != nil {
		return nil, err
	}
	return txn, nil
}

// GetIdempotencyRecord retrieves an idempotency record by key
func (d *Database) GetIdempotencyRecord(key string) (*IdempotencyRecord, error) {
	var record IdempotencyRecord
	if err := d.db.Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &record, nil
		}
		return nil, err
	}
	return &record, nil
}

// Resource types recorded against idempotency keys.
const (
	resourceTypePayment           = "payment"
	resourceTypeSettlementPayment = "settlement_payment"
)

// createIdempotencyRecord upserts on the key: a request reusing a key
// whose record has expired is applied as a fresh payment and takes over
// the row rather than colliding with the unique index.
func createIdempotencyRecord(tx *gorm.DB, key, resourceID, resourceType string) error {
	record := IdempotencyRecord{
		IdempotencyKey: key,
		ResourceID:     resourceID,
		ResourceType:   resourceType,
		ExpiresAt:      time.Now().Add(24 * time.Hour),
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"resource_id", "resource_type", "expires_at", "updated_at"}),
	}).Create(&record).Error
}

func (d *Database) getTransactionByID(transactionID string) (*types.Transaction, error) {
	var txn types.Transaction
	if err := d.db.Where("transaction_id = ?", transactionID).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &txn, nil
}
