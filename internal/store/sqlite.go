package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ashureev/offerforge/internal/domain"
	"github.com/ashureev/offerforge/internal/shared"
	_ "modernc.org/sqlite"
)

// notPopulated matches a system whose offer may still be written by background
// generation. It mirrors domain.AssembledOffer.IsPopulated.
const notPopulated = `(offer IS NULL OR TRIM(COALESCE(json_extract(offer, '$.transformation_from'), '')) = '')`

const systemColumns = `id, user_id, status, chosen_recommendation, offer,
	conversation_history, messages, delivery_model, pricing_direction,
	location_city, skip_guarantee, created_at, updated_at`

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite creates a new SQLite-backed repository and applies migrations.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// modernc applies _pragma on every new pool connection.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	var user domain.User
	var lastSeen, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username, user.LastSeenAt.Unix(),
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	return classify("upsert user", err)
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), s.now().Unix(), userID)
	if err != nil {
		return classify("update last_seen", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}
	return nil
}

// GetProfile retrieves a user's profile.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `
		SELECT user_id, time_availability, revenue_goal, blockers, context, updated_at
		FROM profiles WHERE user_id = ?`

	var p domain.Profile
	var blockersJSON string
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.TimeAvailability, &p.RevenueGoal, &blockersJSON, &p.Context, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile row: %w", err)
	}
	if err := json.Unmarshal([]byte(blockersJSON), &p.Blockers); err != nil {
		return nil, fmt.Errorf("decode blockers: %w", err)
	}
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

// UpsertProfile creates or replaces a user's profile.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, profile *domain.Profile) error {
	blockers := profile.Blockers
	if blockers == nil {
		blockers = []domain.Blocker{}
	}
	blockersJSON, err := json.Marshal(blockers)
	if err != nil {
		return fmt.Errorf("encode blockers: %w", err)
	}

	query := `
	INSERT INTO profiles (user_id, time_availability, revenue_goal, blockers, context, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		time_availability = excluded.time_availability,
		revenue_goal = excluded.revenue_goal,
		blockers = excluded.blockers,
		context = excluded.context,
		updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		profile.UserID, string(profile.TimeAvailability), string(profile.RevenueGoal),
		string(blockersJSON), profile.Context, s.now().Unix(),
	)
	return classify("upsert profile", err)
}

// CreateSystem inserts a new system.
func (s *SQLiteStore) CreateSystem(ctx context.Context, system *domain.System) error {
	history, err := marshalList(system.ConversationHistory)
	if err != nil {
		return fmt.Errorf("encode conversation history: %w", err)
	}
	messages, err := marshalList(system.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	rec, err := marshalNullable(system.ChosenRecommendation)
	if err != nil {
		return fmt.Errorf("encode chosen recommendation: %w", err)
	}
	offer, err := marshalNullable(system.Offer)
	if err != nil {
		return fmt.Errorf("encode offer: %w", err)
	}

	status := system.Status
	if status == "" {
		status = domain.StatusInProgress
	}

	query := `INSERT INTO systems (` + systemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		system.ID, system.UserID, string(status), rec, offer, history, messages,
		string(system.DeliveryModel), string(system.PricingDirection), system.LocationCity,
		boolToInt(system.SkipGuarantee), system.CreatedAt.Unix(), system.UpdatedAt.Unix(),
	)
	return classify("create system", err)
}

// GetSystem retrieves a system owned by userID.
func (s *SQLiteStore) GetSystem(ctx context.Context, systemID, userID string) (*domain.System, error) {
	query := `SELECT ` + systemColumns + ` FROM systems WHERE id = ? AND user_id = ?`
	system, err := scanSystem(s.db.QueryRowContext(ctx, query, systemID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return system, nil
}

// ListSystems returns the user's systems, newest first.
func (s *SQLiteStore) ListSystems(ctx context.Context, userID string) ([]*domain.System, error) {
	query := `SELECT ` + systemColumns + ` FROM systems WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	return s.querySystems(ctx, "list systems", query, userID)
}

// ListSystemsAwaitingOffer returns systems the backfill sweeper should regenerate.
func (s *SQLiteStore) ListSystemsAwaitingOffer(ctx context.Context, idleSince time.Time, limit int) ([]*domain.System, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + systemColumns + ` FROM systems
		WHERE status = ? AND chosen_recommendation IS NOT NULL AND ` + notPopulated + `
		AND updated_at < ?
		ORDER BY updated_at ASC LIMIT ?`
	return s.querySystems(ctx, "list systems awaiting offer", query,
		string(domain.StatusInProgress), idleSince.Unix(), limit)
}

func (s *SQLiteStore) querySystems(ctx context.Context, op, query string, args ...any) ([]*domain.System, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close system rows", "op", op, "error", closeErr)
		}
	}()

	var systems []*domain.System
	for rows.Next() {
		system, err := scanSystem(rows)
		if err != nil {
			return nil, err
		}
		systems = append(systems, system)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", op, err)
	}
	return systems, nil
}

// SetChosenRecommendation stores the recommendation only if none is set yet.
func (s *SQLiteStore) SetChosenRecommendation(ctx context.Context, systemID, userID string, rec *domain.ChosenRecommendation) (bool, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("encode chosen recommendation: %w", err)
	}
	return s.conditionalUpdate(ctx, "set chosen recommendation", systemID, userID,
		`UPDATE systems SET chosen_recommendation = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND chosen_recommendation IS NULL`,
		string(payload))
}

// SaveOfferIfAbsent stores the offer only while no populated offer exists.
func (s *SQLiteStore) SaveOfferIfAbsent(ctx context.Context, systemID, userID string, offer *domain.AssembledOffer) (bool, error) {
	payload, err := json.Marshal(offer)
	if err != nil {
		return false, fmt.Errorf("encode offer: %w", err)
	}
	return s.conditionalUpdate(ctx, "save offer", systemID, userID,
		`UPDATE systems SET offer = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND `+notPopulated,
		string(payload))
}

// conditionalUpdate runs an update whose WHERE clause carries a guard beyond
// ownership. Zero affected rows means either the guard failed or the system is
// missing; the two are told apart with an ownership probe.
func (s *SQLiteStore) conditionalUpdate(ctx context.Context, op, systemID, userID, query, payload string) (bool, error) {
	var committed bool
	err := shared.RetryOnConflict(ctx, op, 0, 0, func(ctx context.Context) error {
		result, err := s.db.ExecContext(ctx, query, payload, s.now().Unix(), systemID, userID)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		committed = rows > 0
		return nil
	})
	if err != nil {
		return false, classify(op, err)
	}
	if committed {
		return true, nil
	}
	if err := s.ensureOwned(ctx, systemID, userID); err != nil {
		return false, err
	}
	return false, nil
}

// UpdateOffer replaces the offer with a user-edited one.
func (s *SQLiteStore) UpdateOffer(ctx context.Context, systemID, userID string, offer *domain.AssembledOffer) error {
	payload, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("encode offer: %w", err)
	}
	return s.ownedUpdate(ctx, "update offer",
		`UPDATE systems SET offer = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		systemID, userID, string(payload))
}

// SetAnswer stores one offer answer on the system.
func (s *SQLiteStore) SetAnswer(ctx context.Context, systemID, userID string, field domain.AnswerField, value string) error {
	var column string
	var arg any = value
	switch field {
	case domain.AnswerDeliveryModel:
		column = "delivery_model"
	case domain.AnswerPricingDirection:
		column = "pricing_direction"
	case domain.AnswerLocationCity:
		column = "location_city"
	case domain.AnswerSkipGuarantee:
		column = "skip_guarantee"
		skip, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: skip_guarantee=%q", ErrInvalidField, value)
		}
		arg = boolToInt(skip)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidField, field)
	}
	return s.ownedUpdate(ctx, "set "+column,
		`UPDATE systems SET `+column+` = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		systemID, userID, arg)
}

// UpdateStatus sets the system status.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, systemID, userID string, status domain.SystemStatus) error {
	return s.ownedUpdate(ctx, "update status",
		`UPDATE systems SET status = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		systemID, userID, string(status))
}

// ReplaceMessages stores the full display history wholesale.
func (s *SQLiteStore) ReplaceMessages(ctx context.Context, systemID, userID string, messages []domain.DisplayMessage) error {
	payload, err := marshalList(messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	return s.ownedUpdate(ctx, "replace messages",
		`UPDATE systems SET messages = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		systemID, userID, payload)
}

// ResetConversationHistory clears the compact history.
func (s *SQLiteStore) ResetConversationHistory(ctx context.Context, systemID, userID string) error {
	return s.ownedUpdate(ctx, "reset conversation history",
		`UPDATE systems SET conversation_history = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		systemID, userID, "[]")
}

// AppendConversationHistory appends compact entries inside one transaction.
func (s *SQLiteStore) AppendConversationHistory(ctx context.Context, systemID, userID string, entries []domain.ConversationMessage) error {
	if len(entries) == 0 {
		return nil
	}
	err := shared.RetryOnConflict(ctx, "append conversation history", 0, 0, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var raw string
		err = tx.QueryRowContext(ctx,
			`SELECT conversation_history FROM systems WHERE id = ? AND user_id = ?`,
			systemID, userID).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var history []domain.ConversationMessage
		if err := json.Unmarshal([]byte(raw), &history); err != nil {
			return fmt.Errorf("decode conversation history: %w", err)
		}
		history = append(history, entries...)
		payload, err := json.Marshal(history)
		if err != nil {
			return fmt.Errorf("encode conversation history: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE systems SET conversation_history = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
			string(payload), s.now().Unix(), systemID, userID); err != nil {
			return err
		}
		return tx.Commit()
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return classify("append conversation history", err)
}

// ownedUpdate runs an update scoped by system and user id and reports
// ErrNotFound when nothing matched.
func (s *SQLiteStore) ownedUpdate(ctx context.Context, op, query, systemID, userID string, value any) error {
	var rows int64
	err := shared.RetryOnConflict(ctx, op, 0, 0, func(ctx context.Context) error {
		result, err := s.db.ExecContext(ctx, query, value, s.now().Unix(), systemID, userID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return classify(op, err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ensureOwned(ctx context.Context, systemID, userID string) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM systems WHERE id = ? AND user_id = ?`, systemID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return classify("check ownership", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSystem(row rowScanner) (*domain.System, error) {
	var system domain.System
	var rec, offer sql.NullString
	var history, messages string
	var skip int
	var createdAt, updatedAt int64

	err := row.Scan(
		&system.ID, &system.UserID, &system.Status, &rec, &offer,
		&history, &messages, &system.DeliveryModel, &system.PricingDirection,
		&system.LocationCity, &skip, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan system row: %w", err)
	}

	if rec.Valid {
		system.ChosenRecommendation = &domain.ChosenRecommendation{}
		if err := json.Unmarshal([]byte(rec.String), system.ChosenRecommendation); err != nil {
			return nil, fmt.Errorf("decode chosen recommendation: %w", err)
		}
	}
	if offer.Valid {
		system.Offer = &domain.AssembledOffer{}
		if err := json.Unmarshal([]byte(offer.String), system.Offer); err != nil {
			return nil, fmt.Errorf("decode offer: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(history), &system.ConversationHistory); err != nil {
		return nil, fmt.Errorf("decode conversation history: %w", err)
	}
	if err := json.Unmarshal([]byte(messages), &system.Messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	system.SkipGuarantee = skip != 0
	system.CreatedAt = time.Unix(createdAt, 0)
	system.UpdatedAt = time.Unix(updatedAt, 0)
	return &system, nil
}

func marshalList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	return string(b), err
}

// marshalNullable encodes v as JSON or returns nil for a nil pointer so the
// column stays NULL.
func marshalNullable[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
