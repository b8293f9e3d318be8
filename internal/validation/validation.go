// Package validation содержит функции валидации входных данных.
package validation

import (
	"regexp"
	"strings"

	"github.com/vndr/vndr-music/internal/model"
)

var validTransactionTypes = map[model.TransactionType]bool{
	model.TransactionDeposit:    true,
	model.TransactionWithdrawal: true,
	model.TransactionServiceFee: true,
	model.TransactionPurchase:   true,
	model.TransactionSale:       true,
	model.TransactionReward:     true,
}

// IsValidTransactionType проверяет, что тип леджер-транзакции известен системе.
func IsValidTransactionType(t model.TransactionType) bool {
	return validTransactionTypes[t]
}

var collectionPathRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// IsValidCollectionPath проверяет имя коллекции: строчные буквы, цифры и подчёркивания.
func IsValidCollectionPath(path string) bool {
	return path != "" && len(path) <= 64 && collectionPathRe.MatchString(path)
}

// IsValidEmail выполняет грубую проверку адреса электронной почты.
func IsValidEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.ContainsAny(email, " \t\n")
}
