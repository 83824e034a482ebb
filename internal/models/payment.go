package models

import "time"

type PaymentMethod struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Details   string    `json:"details"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

type CreatePaymentMethodRequest struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Details string `json:"details"`
}

type BankAccount struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"userId"`
	BankName      string    `json:"bankName"`
	AccountNumber string    `json:"accountNumber"`
	AccountName   string    `json:"accountName"`
	CreatedAt     time.Time `json:"createdAt"`
}

type CreateBankAccountRequest struct {
	BankName      string `json:"bankName"`
	AccountNumber string `json:"accountNumber"`
	AccountName   string `json:"accountName"`
}
