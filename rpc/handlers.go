package rpc

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"orbitlen/native/lending"
)

type createAccountRequest struct {
	Owner string `json:"owner"`
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req createAccountRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	account, err := s.engine.InitializeAccount(r.Context(), req.Owner)
	s.metrics.Observe("initialize_account", err, time.Since(started))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("account created", "owner", account.Owner)
	writeJSON(w, http.StatusCreated, account)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.engine.GetAccount(chi.URLParam(r, "owner"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) getAccountHealth(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequirement(r.URL.Query().Get("tier"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.engine.AccountHealth(chi.URLParam(r, "owner"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func parseRequirement(tier string) (lending.RequirementType, error) {
	switch tier {
	case "", "maintenance":
		return lending.Maintenance, nil
	case "initial":
		return lending.Initial, nil
	case "equity":
		return lending.Equity, nil
	default:
		return 0, fmt.Errorf("%w: unknown tier %q", lending.ErrInvalidConfig, tier)
	}
}

type createBankRequest struct {
	Authority string             `json:"authority"`
	AssetID   string             `json:"assetId"`
	Config    lending.BankConfig `json:"config"`
}

func (s *Server) createBank(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req createBankRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	bank, err := s.engine.AddBank(r.Context(), req.Authority, req.AssetID, req.Config)
	s.metrics.Observe("add_bank", err, time.Since(started))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("bank created", "asset", bank.AssetID)
	writeJSON(w, http.StatusCreated, bank)
}

func (s *Server) listBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := s.engine.ListBanks()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, bank := range banks {
		utilization, _ := bank.Utilization().Float64()
		vault, _ := bank.VaultBalance.Float64()
		s.metrics.SetBankGauges(bank.AssetID, utilization, vault)
	}
	writeJSON(w, http.StatusOK, banks)
}

func (s *Server) getBank(w http.ResponseWriter, r *http.Request) {
	bank, err := s.engine.GetBank(chi.URLParam(r, "assetID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bank)
}

type updateRatesRequest struct {
	Authority string                     `json:"authority"`
	Rates     lending.InterestRateConfig `json:"rates"`
}

func (s *Server) updateRates(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req updateRatesRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	bank, err := s.engine.UpdateRateConfig(r.Context(), req.Authority, chi.URLParam(r, "assetID"), req.Rates)
	s.metrics.Observe("update_rates", err, time.Since(started))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("bank rates updated", "asset", bank.AssetID)
	writeJSON(w, http.StatusOK, bank)
}

type fundsRequest struct {
	Owner  string `json:"owner"`
	BankID string `json:"bankId"`
	Amount string `json:"amount"`
}

func (f fundsRequest) amount() (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(f.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", lending.ErrInvalidAmount, f.Amount)
	}
	return amount, nil
}

func (s *Server) funds(w http.ResponseWriter, r *http.Request, operation string,
	op func(owner, bankID string, amount decimal.Decimal) error) {
	started := time.Now()
	var req fundsRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := req.amount()
	if err == nil {
		err = op(req.Owner, req.BankID, amount)
	}
	s.metrics.Observe(operation, err, time.Since(started))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info(operation, "owner", req.Owner, "bank", req.BankID, "amount", req.Amount)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	s.funds(w, r, "deposit", func(owner, bankID string, amount decimal.Decimal) error {
		return s.engine.Deposit(r.Context(), owner, bankID, amount)
	})
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	s.funds(w, r, "withdraw", func(owner, bankID string, amount decimal.Decimal) error {
		return s.engine.Withdraw(r.Context(), owner, bankID, amount)
	})
}

func (s *Server) borrow(w http.ResponseWriter, r *http.Request) {
	s.funds(w, r, "borrow", func(owner, bankID string, amount decimal.Decimal) error {
		return s.engine.Borrow(r.Context(), owner, bankID, amount)
	})
}

func (s *Server) repay(w http.ResponseWriter, r *http.Request) {
	s.funds(w, r, "repay", func(owner, bankID string, amount decimal.Decimal) error {
		return s.engine.Repay(r.Context(), owner, bankID, amount)
	})
}

type liquidateRequest struct {
	Liquidator  string `json:"liquidator"`
	Liquidatee  string `json:"liquidatee"`
	AssetBankID string `json:"assetBankId"`
	LiabBankID  string `json:"liabBankId"`
	RepayAmount string `json:"repayAmount"`
}

func (s *Server) liquidate(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req liquidateRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	repay, err := decimal.NewFromString(req.RepayAmount)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %q", lending.ErrInvalidAmount, req.RepayAmount))
		return
	}
	err = s.engine.Liquidate(r.Context(), req.Liquidator, req.Liquidatee, req.AssetBankID, req.LiabBankID, repay)
	s.metrics.Observe("liquidate", err, time.Since(started))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.ObserveLiquidation()
	s.log.Info("liquidation executed",
		"liquidator", req.Liquidator,
		"liquidatee", req.Liquidatee,
		"assetBank", req.AssetBankID,
		"liabBank", req.LiabBankID,
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) externalDeposit(w http.ResponseWriter, r *http.Request) {
	s.funds(w, r, "external_deposit", func(owner, bankID string, amount decimal.Decimal) error {
		return s.engine.ExternalDeposit(r.Context(), owner, bankID, amount)
	})
}
