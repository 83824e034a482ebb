package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"exchange/internal/middleware"
	"exchange/internal/models"
	"exchange/internal/utils"
)

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := s.svc.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "User created successfully",
		"user":    user,
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.svc.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	txn, err := s.svc.CreateTransaction(r.Context(), middleware.IdentityFrom(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":     "Transaction created successfully",
		"transaction": txn,
	})
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromPath(r)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	txns, err := s.svc.ListTransactions(r.Context(), middleware.IdentityFrom(r.Context()), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txns)
}

func (s *Server) updateTransactionStatus(w http.ResponseWriter, r *http.Request) {
	transactionID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid transaction ID")
		return
	}

	var req models.UpdateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	txn, err := s.svc.UpdateTransactionStatus(r.Context(), middleware.IdentityFrom(r.Context()), transactionID, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "Transaction status updated successfully",
		"transaction": txn,
	})
}

func (s *Server) getUserBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromPath(r)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	balances, err := s.svc.GetBalances(r.Context(), middleware.IdentityFrom(r.Context()), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

func (s *Server) getValuation(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromPath(r)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	currency := r.URL.Query().Get("currency")
	v, err := s.svc.Valuation(r.Context(), middleware.IdentityFrom(r.Context()), userID, currency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) addCredit(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromPath(r)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var req models.AddCreditRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	balances, err := s.svc.CreditBalance(r.Context(), middleware.IdentityFrom(r.Context()), userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	page, limit, err := utils.ParsePagination(r)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid page or limit")
		return
	}

	result, err := s.svc.ListUsers(r.Context(), middleware.IdentityFrom(r.Context()), page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := s.svc.Dashboard(r.Context(), middleware.IdentityFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (s *Server) updateDashboard(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromPath(r)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var req models.UpdateDashboardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	dash, err := s.svc.UpdateDashboard(r.Context(), middleware.IdentityFrom(r.Context()), userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (s *Server) getReferralCode(w http.ResponseWriter, r *http.Request) {
	code, err := s.svc.ReferralCode(r.Context(), middleware.IdentityFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

func (s *Server) applyReferralCode(w http.ResponseWriter, r *http.Request) {
	var req models.ApplyReferralRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	referral, err := s.svc.ApplyReferralCode(r.Context(), middleware.IdentityFrom(r.Context()), req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Referral code applied successfully",
		"referral": referral,
	})
}

func (s *Server) getReferralStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.ReferralStats(r.Context(), middleware.IdentityFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) listPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := s.svc.ListPaymentMethods(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, methods)
}

func (s *Server) createPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePaymentMethodRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pm, err := s.svc.CreatePaymentMethod(r.Context(), middleware.IdentityFrom(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pm)
}

func (s *Server) listBankAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.svc.ListBankAccounts(r.Context(), middleware.IdentityFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) createBankAccount(w http.ResponseWriter, r *http.Request) {
	var req models.CreateBankAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ba, err := s.svc.CreateBankAccount(r.Context(), middleware.IdentityFrom(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ba)
}
