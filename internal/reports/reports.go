package reports

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/transactionhub/ledger-api/internal/ledger"
	"github.com/transactionhub/ledger-api/internal/types"
	"gorm.io/gorm"
)

// All report amounts are whole currency units in the broker's home
// currency.
const currency = "INR"

// Service produces read-only aggregates over the user's accounts and
// ledgers. Reports never take the account lock; a figure may trail an
// in-flight payment by one refresh.
type Service struct {
	db *Database
}

// NewService creates a new reports service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// Overview aggregates the user's whole book.
type Overview struct {
	TotalFunding int64  `json:"total_funding"`
	TotalBalance int64  `json:"total_balance"`
	TotalPnl     int64  `json:"total_pnl"`
	TotalMyShare int64  `json:"total_my_share"`
	MyOwnShare   int64  `json:"my_own_share"`
	FriendShare  int64  `json:"friend_share"`
	Currency     string `json:"currency"`
}

// DashboardSummary is the landing-page aggregate.
type DashboardSummary struct {
	TotalClients   int64 `json:"total_clients"`
	TotalExchanges int64 `json:"total_exchanges"`
	TotalAccounts  int64 `json:"total_accounts"`
	Overview
}

// GetDashboardSummary aggregates counts and book totals for the user
func (s *Service) GetDashboardSummary(userID string) (*DashboardSummary, error) {
	accounts, err := s.db.listAccounts(userID, accountFilter{})
	if err != nil {
		return nil, err
	}

	clientCount, err := s.db.countClients(userID)
	if err != nil {
		return nil, err
	}
	exchangeCount, err := s.db.countExchanges()
	if err != nil {
		return nil, err
	}

	overview, err := s.buildOverview(accounts)
	if err != nil {
		return nil, err
	}

	return &DashboardSummary{
		TotalClients:   clientCount,
		TotalExchanges: exchangeCount,
		TotalAccounts:  int64(len(accounts)),
		Overview:       *overview,
	}, nil
}

// PendingPayment is one account with a non-zero PnL and the direction the
// money owes.
type PendingPayment struct {
	AccountID    string `json:"account_id"`
	ClientName   string `json:"client_name"`
	ExchangeName string `json:"exchange_name"`
	Pnl          int64  `json:"pnl"`
	MyShare      int64  `json:"my_share"`
	Type         string `json:"type"` // RECEIVE or PAY
}

// PendingPaymentsReport lists every account that owes or is owed.
type PendingPaymentsReport struct {
	PendingPayments []PendingPayment `json:"pending_payments"`
	TotalToReceive  int64            `json:"total_to_receive"`
	TotalToPay      int64            `json:"total_to_pay"`
	Currency        string           `json:"currency"`
}

// GetPendingPayments classifies every non-flat account: a client in loss
// owes the broker (RECEIVE), a client in profit is owed (PAY)
func (s *Service) GetPendingPayments(userID string) (*PendingPaymentsReport, error) {
	accounts, err := s.db.listAccounts(userID, accountFilter{})
	if err != nil {
		return nil, err
	}

	report := &PendingPaymentsReport{
		PendingPayments: []PendingPayment{},
		Currency:        currency,
	}
	for i := range accounts {
		account := &accounts[i]
		pnl := ledger.ClientPnl(account)
		if pnl == 0 {
			continue
		}

		share := ledger.MyShare(account)
		item := PendingPayment{
			AccountID:    account.AccountID,
			ClientName:   s.db.getClientName(account.ClientID),
			ExchangeName: s.db.getExchangeName(account.ExchangeID),
			Pnl:          pnl,
			MyShare:      share,
			Type:         "PAY",
		}
		if pnl < 0 {
			item.Type = "RECEIVE"
			report.TotalToReceive += share
		} else {
			report.TotalToPay += share
		}
		report.PendingPayments = append(report.PendingPayments, item)
	}
	return report, nil
}

// DailyPerformance is one day's trading result derived from TRADE rows.
type DailyPerformance struct {
	Date     string `json:"date"`
	Pnl      int64  `json:"pnl"`
	TxnCount int    `json:"tx_count"`
}

// SummaryReport is the period overview with the share split and recent
// daily performance.
type SummaryReport struct {
	Overview         Overview           `json:"overview"`
	DailyPerformance []DailyPerformance `json:"daily_performance"`
	Period           string             `json:"period"`
	StartDate        string             `json:"start_date"`
}

// GetSummary builds the period report: DAILY, WEEKLY or MONTHLY
func (s *Service) GetSummary(userID, period string) (*SummaryReport, error) {
	accounts, err := s.db.listAccounts(userID, accountFilter{})
	if err != nil {
		return nil, err
	}

	overview, err := s.buildOverview(accounts)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	startDate := now
	switch period {
	case "WEEKLY":
		startDate = now.AddDate(0, 0, -7)
	case "MONTHLY":
		startDate = now.AddDate(0, 0, -30)
	default:
		period = "DAILY"
	}

	daily, err := s.buildDailyPerformance(userID, now)
	if err != nil {
		return nil, err
	}

	return &SummaryReport{
		Overview:         *overview,
		DailyPerformance: daily,
		Period:           period,
		StartDate:        startDate.Format("2006-01-02"),
	}, nil
}

// CustomReport is a date-bounded overview plus the matching transactions.
type CustomReport struct {
	Overview          Overview            `json:"overview"`
	Transactions      []types.Transaction `json:"transactions"`
	FromDate          string              `json:"from_date"`
	ToDate            string              `json:"to_date"`
	TotalTransactions int                 `json:"total_transactions"`
}

// GetCustomReport builds a report over an explicit date range, optionally
// narrowed to one client and/or exchange. Transactions are capped at 50
// rows, newest first.
func (s *Service) GetCustomReport(userID string, from, to time.Time, clientID, exchangeID string) (*CustomReport, error) {
	filter := accountFilter{clientID: clientID, exchangeID: exchangeID}

	accounts, err := s.db.listAccounts(userID, filter)
	if err != nil {
		return nil, err
	}
	overview, err := s.buildOverview(accounts)
	if err != nil {
		return nil, err
	}

	transactions, err := s.db.listTransactionsInRange(userID, from, to, filter)
	if err != nil {
		return nil, err
	}

	total := len(transactions)
	if len(transactions) > 50 {
		transactions = transactions[:50]
	}

	return &CustomReport{
		Overview:          *overview,
		Transactions:      transactions,
		FromDate:          from.Format("2006-01-02"),
		ToDate:            to.Format("2006-01-02"),
		TotalTransactions: total,
	}, nil
}

// buildOverview totals the book and splits the broker's share into
// my-own vs friend portions using each account's report config. Accounts
// without a usable config attribute their whole share to my-own.
func (s *Service) buildOverview(accounts []types.LedgerAccount) (*Overview, error) {
	overview := &Overview{Currency: currency}

	for i := range accounts {
		account := &accounts[i]
		overview.TotalFunding += account.Funding
		overview.TotalBalance += account.ExchangeBalance
		overview.TotalPnl += ledger.ClientPnl(account)

		share := ledger.MyShare(account)
		overview.TotalMyShare += share
		if share == 0 {
			continue
		}

		config, err := s.db.getReportConfig(account.AccountID)
		if err != nil {
			return nil, err
		}
		if config == nil {
			overview.MyOwnShare += share
			continue
		}

		totalPct := config.MyOwnPercentage.Add(config.FriendPercentage)
		if totalPct.IsZero() {
			overview.MyOwnShare += share
			continue
		}

		shareDec := decimal.NewFromInt(share)
		myOwn := shareDec.Mul(config.MyOwnPercentage).Div(totalPct).IntPart()
		friend := shareDec.Mul(config.FriendPercentage).Div(totalPct).IntPart()
		overview.MyOwnShare += myOwn
		overview.FriendShare += friend
	}

	return overview, nil
}

// buildDailyPerformance derives the last seven days of trading PnL from
// TRADE rows' balance snapshots. Payment rows move money, not PnL, and
// are not counted.
func (s *Service) buildDailyPerformance(userID string, now time.Time) ([]DailyPerformance, error) {
	daily := []DailyPerformance{}

	for i := 0; i < 7; i++ {
		day := now.AddDate(0, 0, -i)
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
		dayEnd := dayStart.Add(24*time.Hour - time.Nanosecond)

		transactions, err := s.db.listTransactionsInRange(userID, dayStart, dayEnd, accountFilter{})
		if err != nil {
			return nil, err
		}
		if len(transactions) == 0 {
			continue
		}

		var pnl int64
		for _, txn := range transactions {
			if txn.Type == types.TxnTrade {
				pnl += txn.ExchangeBalanceAfter - txn.ExchangeBalanceBefore
			}
		}

		daily = append(daily, DailyPerformance{
			Date:     dayStart.Format("2006-01-02"),
			Pnl:      pnl,
			TxnCount: len(transactions),
		})
	}

	log.Debug().
		Int("days_with_activity", len(daily)).
		Str("service", "reports").
		Msg("built daily performance")
	return daily, nil
}
