// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/vndr/vndr-music/internal/access"
	"github.com/vndr/vndr-music/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserNotFound возвращается, если пользователь не найден.
var (
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists возвращается при попытке создать пользователя с существующим email.
	ErrUserExists = errors.New("user already exists")
	// ErrInsufficientBalance возвращается, если транзакция увела бы баланс в минус.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrAlreadyClaimedToday возвращается при повторной попытке получить ежедневную награду.
	ErrAlreadyClaimedToday = errors.New("daily reward already claimed today")
	// ErrTrackNotFound возвращается, если трек не найден.
	ErrTrackNotFound = errors.New("track not found")
	// ErrUnknownCollection возвращается при запросе коллекции, не сопоставленной с таблицей.
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrInvalidFilter возвращается при фильтре по полю, недоступному для данной коллекции.
	ErrInvalidFilter = errors.New("invalid filter field")
)

// collectionSpec описывает сопоставление имени коллекции с таблицей
// и набором полей, по которым разрешена фильтрация.
type collectionSpec struct {
	table   string
	columns map[string]bool
}

var collections = map[string]collectionSpec{
	"works": {
		table:   "tracks",
		columns: map[string]bool{"id": true, "artist_id": true, "artist_name": true, "genre": true, "title": true},
	},
	"vsd_transactions": {
		table:   "vsd_transactions",
		columns: map[string]bool{"id": true, "user_id": true, "type": true},
	},
	"license_requests": {
		table:   "license_requests",
		columns: map[string]bool{"id": true, "artist_id": true, "requestor_id": true, "status": true, "usage_type": true},
	},
	"genres": {
		table:   "genres",
		columns: map[string]bool{"id": true, "name": true},
	},
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет fn при конфликте сериализации или дедлоке.
// Конкурентные транзакции по одному пользователю сериализуются блокировкой строки,
// но при уровне изоляции serializable возможен откат, который нужно повторить.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewConstant(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
		}

		return err
	})
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя с нулевым балансом.
func (r *PostgresRepository) CreateUser(ctx context.Context, id, email, username, role string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, username, role) VALUES ($1, $2, $3, $4)`,
		id, email, username, role,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, username, role, vsd_balance, daily_claimed_on, created_at
		 FROM users WHERE id = $1`,
		id,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.Role, &u.VSDBalance, &u.DailyClaimedOn, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// GetBalance возвращает текущий баланс VSD пользователя.
func (r *PostgresRepository) GetBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx,
		`SELECT vsd_balance FROM users WHERE id = $1`,
		userID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// ApplyTransaction атомарно применяет дельту баланса и добавляет аудит-запись.
// Блокирует строку пользователя, чтобы конкурентные транзакции не теряли обновления.
// Транзакция, уводящая баланс в минус, отклоняется целиком без частичной записи.
func (r *PostgresRepository) ApplyTransaction(ctx context.Context, userID string, amount int64, txType model.TransactionType, details string) (*model.LedgerTransaction, error) {
	var result *model.LedgerTransaction

	err := r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var before int64
		err = tx.QueryRow(ctx,
			`SELECT vsd_balance FROM users WHERE id = $1 FOR UPDATE`,
			userID,
		).Scan(&before)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("lock user for update: %w", err)
		}

		rec, err := buildLedgerRecord(userID, amount, txType, details, before)
		if err != nil {
			return err
		}

		if err := applyDelta(ctx, tx, rec); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		result = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// nextBalance вычисляет баланс после применения дельты.
// Дельта, уводящая баланс в минус, отклоняется.
func nextBalance(before, amount int64) (int64, error) {
	after := before + amount
	if after < 0 {
		return 0, ErrInsufficientBalance
	}
	return after, nil
}

// alreadyClaimed сообщает, была ли ежедневная награда уже получена
// в указанную календарную дату UTC.
func alreadyClaimed(claimedOn *time.Time, day time.Time) bool {
	return claimedOn != nil && claimedOn.UTC().Truncate(24*time.Hour).Equal(day)
}

// buildLedgerRecord формирует аудит-запись для дельты баланса.
// Инвариант BalanceAfter = BalanceBefore + Amount выполняется по построению.
func buildLedgerRecord(userID string, amount int64, txType model.TransactionType, details string, before int64) (*model.LedgerTransaction, error) {
	after, err := nextBalance(before, amount)
	if err != nil {
		return nil, err
	}

	return &model.LedgerTransaction{
		ID:            uuid.NewString(),
		UserID:        userID,
		Amount:        amount,
		Type:          txType,
		Details:       details,
		BalanceBefore: before,
		BalanceAfter:  after,
	}, nil
}

// applyDelta записывает новый баланс и аудит-строку внутри открытой транзакции.
func applyDelta(ctx context.Context, tx pgx.Tx, rec *model.LedgerTransaction) error {
	_, err := tx.Exec(ctx,
		`UPDATE users SET vsd_balance = $2 WHERE id = $1`,
		rec.UserID, rec.BalanceAfter,
	)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO vsd_transactions (id, user_id, amount, type, details, balance_before, balance_after)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING transaction_date`,
		rec.ID, rec.UserID, rec.Amount, string(rec.Type), rec.Details, rec.BalanceBefore, rec.BalanceAfter,
	).Scan(&rec.TransactionDate)
	if err != nil {
		return fmt.Errorf("insert ledger transaction: %w", err)
	}

	return nil
}

// ClaimDaily начисляет ежедневную награду, если она ещё не получена в указанную дату.
// Проверка даты, отметка о получении и начисление выполняются в одной транзакции.
func (r *PostgresRepository) ClaimDaily(ctx context.Context, userID string, today time.Time) (*model.LedgerTransaction, error) {
	day := today.UTC().Truncate(24 * time.Hour)

	var result *model.LedgerTransaction

	err := r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var before int64
		var claimedOn *time.Time
		err = tx.QueryRow(ctx,
			`SELECT vsd_balance, daily_claimed_on FROM users WHERE id = $1 FOR UPDATE`,
			userID,
		).Scan(&before, &claimedOn)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("lock user for update: %w", err)
		}

		if alreadyClaimed(claimedOn, day) {
			return ErrAlreadyClaimedToday
		}

		_, err = tx.Exec(ctx,
			`UPDATE users SET daily_claimed_on = $2 WHERE id = $1`,
			userID, day,
		)
		if err != nil {
			return fmt.Errorf("mark daily claim: %w", err)
		}

		rec, err := buildLedgerRecord(userID, model.DailyRewardAmount, model.TransactionReward, "daily VSD reward", before)
		if err != nil {
			return err
		}

		if err := applyDelta(ctx, tx, rec); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		result = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetTransactionsByUser возвращает историю леджер-транзакций пользователя.
func (r *PostgresRepository) GetTransactionsByUser(ctx context.Context, userID string) ([]model.LedgerTransaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, amount, type, details, balance_before, balance_after, transaction_date
		 FROM vsd_transactions
		 WHERE user_id = $1
		 ORDER BY transaction_date DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.LedgerTransaction
	for rows.Next() {
		var t model.LedgerTransaction
		var txType string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &txType, &t.Details, &t.BalanceBefore, &t.BalanceAfter, &t.TransactionDate); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = model.TransactionType(txType)
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateTrack сохраняет новый трек и возвращает его идентификатор.
func (r *PostgresRepository) CreateTrack(ctx context.Context, t *model.Track) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tracks (id, title, artist_id, artist_name, genre, cover_art_url, track_url, price)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, t.Title, t.ArtistID, t.ArtistName, t.Genre, t.CoverArtURL, t.TrackURL, t.Price,
	)
	if err != nil {
		return "", fmt.Errorf("insert track: %w", err)
	}
	return id, nil
}

// GetTrackByID возвращает трек по идентификатору.
func (r *PostgresRepository) GetTrackByID(ctx context.Context, id string) (*model.Track, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, title, artist_id, artist_name, genre, cover_art_url, track_url, price, plays, upload_date
		 FROM tracks WHERE id = $1`,
		id,
	)

	var t model.Track
	err := row.Scan(&t.ID, &t.Title, &t.ArtistID, &t.ArtistName, &t.Genre, &t.CoverArtURL, &t.TrackURL, &t.Price, &t.Plays, &t.UploadDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTrackNotFound
		}
		return nil, fmt.Errorf("get track: %w", err)
	}

	return &t, nil
}

// FindTrackByArtistAndTitle ищет трек по точному имени артиста
// и названию без учёта регистра.
func (r *PostgresRepository) FindTrackByArtistAndTitle(ctx context.Context, artistName, title string) (*model.Track, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, title, artist_id, artist_name, genre, cover_art_url, track_url, price, plays, upload_date
		 FROM tracks
		 WHERE artist_name = $1 AND lower(title) = lower($2)
		 LIMIT 1`,
		artistName, title,
	)

	var t model.Track
	err := row.Scan(&t.ID, &t.Title, &t.ArtistID, &t.ArtistName, &t.Genre, &t.CoverArtURL, &t.TrackURL, &t.Price, &t.Plays, &t.UploadDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTrackNotFound
		}
		return nil, fmt.Errorf("find track: %w", err)
	}

	return &t, nil
}

// IncrementTrackPlays увеличивает счётчик прослушиваний трека на единицу.
func (r *PostgresRepository) IncrementTrackPlays(ctx context.Context, trackID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tracks SET plays = plays + 1 WHERE id = $1`,
		trackID,
	)
	if err != nil {
		return fmt.Errorf("increment plays: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTrackNotFound
	}
	return nil
}

// CreateLicenseRequest сохраняет запрос на лицензирование и возвращает его идентификатор.
func (r *PostgresRepository) CreateLicenseRequest(ctx context.Context, lr *model.LicenseRequest) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO license_requests
		 (id, track_title, artist_id, artist_name, requestor_id, requestor_name, requestor_email, usage_type, project_description, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, lr.TrackTitle, lr.ArtistID, lr.ArtistName, lr.RequestorID, lr.RequestorName, lr.RequestorEmail,
		lr.UsageType, lr.ProjectDescription, lr.Status,
	)
	if err != nil {
		return "", fmt.Errorf("insert license request: %w", err)
	}
	return id, nil
}

// GetPollCursor возвращает последний зафиксированный трек указанного курсора.
// Отсутствующий курсор трактуется как пустой.
func (r *PostgresRepository) GetPollCursor(ctx context.Context, name string) (string, error) {
	var lastTrackID string
	err := r.pool.QueryRow(ctx,
		`SELECT last_track_id FROM poll_cursor WHERE name = $1`,
		name,
	).Scan(&lastTrackID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get poll cursor: %w", err)
	}
	return lastTrackID, nil
}

// AdvancePollCursor переводит курсор с oldID на newID по схеме compare-and-swap.
// Возвращает false, если курсор уже сдвинут другим экземпляром адаптера.
func (r *PostgresRepository) AdvancePollCursor(ctx context.Context, name, oldID, newID string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO poll_cursor (name, last_track_id, updated_at)
		 VALUES ($1, $3, now())
		 ON CONFLICT (name) DO UPDATE
		 SET last_track_id = EXCLUDED.last_track_id, updated_at = now()
		 WHERE poll_cursor.last_track_id = $2`,
		name, oldID, newID,
	)
	if err != nil {
		return false, fmt.Errorf("advance poll cursor: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// QueryCollection выполняет подзапросы коллекции по финальным наборам фильтров
// и объединяет результаты с дедупликацией по идентификатору документа.
func (r *PostgresRepository) QueryCollection(ctx context.Context, collection string, filterSets []access.FilterSet) ([]map[string]any, error) {
	spec, ok := collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	seen := make(map[string]bool)
	var docs []map[string]any

	for _, fs := range filterSets {
		rows, err := r.queryFiltered(ctx, spec, fs)
		if err != nil {
			return nil, err
		}

		for _, doc := range rows {
			id, _ := doc["id"].(string)
			if id != "" && seen[id] {
				continue
			}
			seen[id] = true
			docs = append(docs, doc)
		}
	}

	return docs, nil
}

func (r *PostgresRepository) queryFiltered(ctx context.Context, spec collectionSpec, filters access.FilterSet) ([]map[string]any, error) {
	var sb strings.Builder
	sb.WriteString("SELECT to_jsonb(t.*) FROM ")
	sb.WriteString(spec.table)
	sb.WriteString(" AS t")

	var args []any
	first := true
	for field, value := range filters {
		if !spec.columns[field] {
			return nil, fmt.Errorf("%w: %s", ErrInvalidFilter, field)
		}
		if first {
			sb.WriteString(" WHERE ")
			first = false
		} else {
			sb.WriteString(" AND ")
		}
		args = append(args, value)
		fmt.Fprintf(&sb, "t.%s = $%d", field, len(args))
	}

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	defer rows.Close()

	var res []map[string]any
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		res = append(res, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
