// Package model содержит доменные сущности сервиса VNDR Music.
package model

import "time"

// Identity описывает идентичность вызывающего, полученную из bearer-токена.
// Пустой UID означает анонимного вызывающего (доступ только к публичным коллекциям).
type Identity struct {
	UID     string
	IsAdmin bool
}

// IsAnonymous сообщает, что запрос выполняется без учётных данных.
func (i Identity) IsAnonymous() bool {
	return i.UID == ""
}

// User представляет зарегистрированного пользователя платформы.
// Поля VSDBalance и DailyClaimedOn изменяются только через леджер-транзакции.
type User struct {
	ID             string
	Email          string
	Role           string
	Username       string
	VSDBalance     int64
	DailyClaimedOn *time.Time
	CreatedAt      time.Time
}

// Track описывает загруженный трек, принадлежащий артисту.
type Track struct {
	ID          string
	Title       string
	ArtistID    string
	ArtistName  string
	Genre       string
	CoverArtURL string
	TrackURL    string
	Price       int64
	Plays       int64
	UploadDate  time.Time
}

// LicenseRequest описывает запрос на лицензирование трека.
// Документ виден и артисту, и запросившему (двойное владение).
type LicenseRequest struct {
	ID                 string
	TrackTitle         string
	ArtistID           string
	ArtistName         string
	RequestorID        string
	RequestorName      string
	RequestorEmail     string
	UsageType          string
	ProjectDescription string
	Status             string
	RequestDate        time.Time
}

// TransactionType описывает тип леджер-транзакции.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionServiceFee TransactionType = "service_fee"
	TransactionPurchase   TransactionType = "purchase"
	TransactionSale       TransactionType = "sale"
	TransactionReward     TransactionType = "reward"
)

// LedgerTransaction описывает атомарное изменение баланса с аудит-записью.
// Запись неизменяема после создания; BalanceAfter = BalanceBefore + Amount.
type LedgerTransaction struct {
	ID              string
	UserID          string
	Amount          int64
	Type            TransactionType
	Details         string
	BalanceBefore   int64
	BalanceAfter    int64
	TransactionDate time.Time
}

// DailyRewardAmount — размер ежедневного начисления VSD.
const DailyRewardAmount int64 = 5

// NowPlayingTrack описывает трек, полученный из внешнего now-playing фида.
type NowPlayingTrack struct {
	TrackID    string
	ArtistName string
	Title      string
}
