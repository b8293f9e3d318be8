// Package service реализует бизнес-логику сервиса VNDR Music.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vndr/vndr-music/internal/access"
	"github.com/vndr/vndr-music/internal/ai"
	"github.com/vndr/vndr-music/internal/cache"
	"github.com/vndr/vndr-music/internal/model"
	"github.com/vndr/vndr-music/internal/nowplaying"
	"github.com/vndr/vndr-music/internal/repository"
	"github.com/vndr/vndr-music/internal/validation"
)

const (
	pollCursorName = "nowplaying"
	pollInterval   = 30 * time.Second
)

// ErrBackendUnavailable возвращается при инфраструктурном сбое хранилища.
var (
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrInvalidTransaction возвращается при некорректных параметрах леджер-транзакции.
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, id, email, username, role string) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
	ApplyTransaction(ctx context.Context, userID string, amount int64, txType model.TransactionType, details string) (*model.LedgerTransaction, error)
	ClaimDaily(ctx context.Context, userID string, today time.Time) (*model.LedgerTransaction, error)
	GetTransactionsByUser(ctx context.Context, userID string) ([]model.LedgerTransaction, error)
	CreateTrack(ctx context.Context, t *model.Track) (string, error)
	GetTrackByID(ctx context.Context, id string) (*model.Track, error)
	FindTrackByArtistAndTitle(ctx context.Context, artistName, title string) (*model.Track, error)
	IncrementTrackPlays(ctx context.Context, trackID string) error
	CreateLicenseRequest(ctx context.Context, lr *model.LicenseRequest) (string, error)
	GetPollCursor(ctx context.Context, name string) (string, error)
	AdvancePollCursor(ctx context.Context, name, oldID, newID string) (bool, error)
	QueryCollection(ctx context.Context, collection string, filterSets []access.FilterSet) ([]map[string]any, error)
}

// Service содержит бизнес-логику сервиса VNDR Music.
type Service struct {
	repo       Repository
	guard      *access.Guard
	balances   *cache.BalanceCache
	aiClient   *ai.Client
	feedClient *nowplaying.Client
	logger     *zap.Logger
}

// NewService создаёт новый сервис с указанными зависимостями.
// feedClient и aiClient могут быть nil: соответствующие функции отключаются.
func NewService(repo Repository, guard *access.Guard, balances *cache.BalanceCache, aiClient *ai.Client, feedClient *nowplaying.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if guard == nil {
		guard = access.NewGuard()
	}
	if balances == nil {
		balances = cache.NewBalanceCache("")
	}

	return &Service{
		repo:       repo,
		guard:      guard,
		balances:   balances,
		aiClient:   aiClient,
		feedClient: feedClient,
		logger:     logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.balances != nil {
		_ = s.balances.Close()
	}
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// FetchCollection возвращает документы коллекции, отфильтрованные по правилам владения.
// Инфраструктурный сбой хранилища возвращается как ErrBackendUnavailable,
// а не как пустой результат.
func (s *Service) FetchCollection(ctx context.Context, collection string, identity model.Identity, filters map[string]string) ([]map[string]any, error) {
	filterSets, err := s.guard.Resolve(collection, identity, filters)
	if err != nil {
		return nil, err
	}

	docs, err := s.repo.QueryCollection(ctx, collection, filterSets)
	if err != nil {
		if errors.Is(err, repository.ErrUnknownCollection) || errors.Is(err, repository.ErrInvalidFilter) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrBackendUnavailable, err)
	}

	if docs == nil {
		docs = []map[string]any{}
	}

	return docs, nil
}

// GetBalance возвращает баланс VSD пользователя, используя кэш при наличии.
func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	if balance, ok, err := s.balances.GetBalance(ctx, userID); err == nil && ok {
		return balance, nil
	} else if err != nil {
		s.logger.Warn("balance cache read failed", zap.Error(err))
	}

	balance, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return 0, err
	}

	if err := s.balances.SetBalance(ctx, userID, balance); err != nil {
		s.logger.Warn("balance cache write failed", zap.Error(err))
	}

	return balance, nil
}

// ApplyTransaction применяет леджер-транзакцию и инвалидирует кэш баланса.
func (s *Service) ApplyTransaction(ctx context.Context, userID string, amount int64, txType model.TransactionType, details string) (*model.LedgerTransaction, error) {
	if !validation.IsValidTransactionType(txType) {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidTransaction, txType)
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: zero amount", ErrInvalidTransaction)
	}

	rec, err := s.repo.ApplyTransaction(ctx, userID, amount, txType, details)
	if err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, userID)
	return rec, nil
}

// ClaimDailyTokens начисляет ежедневную награду за текущую календарную дату UTC.
func (s *Service) ClaimDailyTokens(ctx context.Context, userID string) (*model.LedgerTransaction, error) {
	rec, err := s.repo.ClaimDaily(ctx, userID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, userID)
	return rec, nil
}

func (s *Service) invalidateBalance(ctx context.Context, userID string) {
	if err := s.balances.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("balance cache invalidation failed", zap.String("userID", userID), zap.Error(err))
	}
}

// GetTransactionsByUser возвращает историю леджер-транзакций пользователя.
func (s *Service) GetTransactionsByUser(ctx context.Context, userID string) ([]model.LedgerTransaction, error) {
	return s.repo.GetTransactionsByUser(ctx, userID)
}

// CreateTrack создаёт трек, принадлежащий вызывающему артисту.
func (s *Service) CreateTrack(ctx context.Context, identity model.Identity, t *model.Track) (string, error) {
	t.ArtistID = identity.UID
	if t.ArtistName == "" {
		u, err := s.repo.GetUserByID(ctx, identity.UID)
		if err != nil {
			return "", err
		}
		t.ArtistName = u.Username
	}
	return s.repo.CreateTrack(ctx, t)
}

// CreateLicenseRequest создаёт запрос на лицензирование от имени вызывающего.
func (s *Service) CreateLicenseRequest(ctx context.Context, identity model.Identity, lr *model.LicenseRequest) (string, error) {
	lr.RequestorID = identity.UID
	if lr.Status == "" {
		lr.Status = "pending"
	}
	return s.repo.CreateLicenseRequest(ctx, lr)
}

// SettleBridge зачисляет артисту трека выручку с внешнего леджера
// одной sale-транзакцией.
func (s *Service) SettleBridge(ctx context.Context, trackID string, amount int64) (*model.LedgerTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidTransaction)
	}

	track, err := s.repo.GetTrackByID(ctx, trackID)
	if err != nil {
		return nil, err
	}

	details := fmt.Sprintf("bridge settlement for track %q", track.Title)
	rec, err := s.repo.ApplyTransaction(ctx, track.ArtistID, amount, model.TransactionSale, details)
	if err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, track.ArtistID)
	return rec, nil
}

// GenerateCoverArt генерирует обложку трека через генеративную модель.
func (s *Service) GenerateCoverArt(ctx context.Context, title, genre, description string) (*ai.CoverArtResult, error) {
	return s.aiClient.GenerateCoverArt(ctx, title, genre, description)
}

// RecommendPrice запрашивает рекомендацию цены трека.
func (s *Service) RecommendPrice(ctx context.Context, title, genre string, plays int64) (*ai.PriceResult, error) {
	return s.aiClient.RecommendPrice(ctx, title, genre, plays)
}

// LegalAnswer отвечает на юридический вопрос о лицензировании.
func (s *Service) LegalAnswer(ctx context.Context, question string) (string, error) {
	return s.aiClient.LegalAnswer(ctx, question)
}

// PartnerReply отвечает на сообщение партнёрского чата.
func (s *Service) PartnerReply(ctx context.Context, message string) (string, error) {
	return s.aiClient.PartnerReply(ctx, message)
}

// StartNowPlayingUpdates запускает фоновый опрос внешнего now-playing фида.
// Тики обрабатываются последовательно внутри цикла: медленный цикл
// задерживает следующий тик вместо наложения запросов.
func (s *Service) StartNowPlayingUpdates(ctx context.Context) {
	if s.feedClient == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processNowPlayingTick(ctx)
			}
		}
	}()
}

// processNowPlayingTick выполняет один цикл fetch-and-diff по фиду.
// Курсор хранится в БД и сдвигается compare-and-swap-ом: инкремент
// прослушиваний выполняет только тот экземпляр, который выиграл своп.
func (s *Service) processNowPlayingTick(ctx context.Context) {
	current, err := s.feedClient.FetchCurrent(ctx)
	if err != nil {
		s.logger.Warn("now-playing fetch failed", zap.Error(err))
		return
	}

	last, err := s.repo.GetPollCursor(ctx, pollCursorName)
	if err != nil {
		s.logger.Warn("poll cursor read failed", zap.Error(err))
		return
	}

	// Тот же трек всё ещё играет.
	if current.TrackID == last {
		return
	}

	swapped, err := s.repo.AdvancePollCursor(ctx, pollCursorName, last, current.TrackID)
	if err != nil {
		s.logger.Warn("poll cursor advance failed", zap.Error(err))
		return
	}
	if !swapped {
		return
	}

	track, err := s.repo.FindTrackByArtistAndTitle(ctx, current.ArtistName, current.Title)
	if err != nil {
		if errors.Is(err, repository.ErrTrackNotFound) {
			s.logger.Info("now-playing track not in catalog",
				zap.String("artist", current.ArtistName),
				zap.String("title", current.Title),
			)
			return
		}
		s.logger.Warn("now-playing track lookup failed", zap.Error(err))
		return
	}

	if err := s.repo.IncrementTrackPlays(ctx, track.ID); err != nil {
		s.logger.Warn("play count increment failed", zap.String("trackID", track.ID), zap.Error(err))
		return
	}

	s.logger.Info("play counted",
		zap.String("trackID", track.ID),
		zap.String("title", track.Title),
	)
}
