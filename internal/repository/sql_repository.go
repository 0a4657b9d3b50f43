package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"reverse-auction/internal/auctionerrors"
	model "reverse-auction/internal/models"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour spoken by SQLRepo
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const defaultMaxRetries = 5

// errVersionConflict means another writer committed first; the update is retried on a fresh read
var errVersionConflict = errors.New("auction version changed")

// SQLRepo implements AuctionDB on database/sql. Every UpdateAuction runs in one
// transaction guarded by a conditional write on the auction's version column.
type SQLRepo struct {
	db         *sql.DB
	dialect    Dialect
	maxRetries int
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// NewSQLRepo wraps an open database handle
func NewSQLRepo(db *sql.DB, dialect Dialect) *SQLRepo {
	return &SQLRepo{db: db, dialect: dialect, maxRetries: defaultMaxRetries}
}

// OpenSQLite opens a SQLite database through modernc.org/sqlite
func OpenSQLite(dsn string) (*SQLRepo, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one connection serialises writers, which is what SQLite does anyway
	db.SetMaxOpenConns(1)

	if err := ping(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewSQLRepo(db, DialectSQLite), nil
}

// OpenPostgres opens a PostgreSQL database through lib/pq
func OpenPostgres(connStr string) (*SQLRepo, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := ping(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewSQLRepo(db, DialectPostgres), nil
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// InitSchema creates the auction tables if they do not exist
func (r *SQLRepo) InitSchema(ctx context.Context) error {
	priceType, boolType := "TEXT", "INTEGER"
	if r.dialect == DialectPostgres {
		priceType, boolType = "NUMERIC(14, 2)", "BOOLEAN"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS auctions (
			id VARCHAR(64) PRIMARY KEY,
			source_language VARCHAR(32) NOT NULL,
			target_language VARCHAR(32) NOT NULL,
			word_count INTEGER NOT NULL,
			description TEXT NOT NULL,
			starting_price %[1]s NOT NULL,
			current_price %[1]s NOT NULL,
			current_round INTEGER NOT NULL DEFAULT 0,
			status VARCHAR(32) NOT NULL,
			winner_id VARCHAR(64),
			final_price %[1]s,
			num_participants INTEGER NOT NULL,
			round_started_at BIGINT,
			confirmation_deadline BIGINT,
			failure_reason VARCHAR(64) NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			started_at BIGINT,
			completed_at BIGINT,
			version BIGINT NOT NULL DEFAULT 0
		)`, priceType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS participants (
			id VARCHAR(64) PRIMARY KEY,
			auction_id VARCHAR(64) NOT NULL REFERENCES auctions(id) ON DELETE CASCADE,
			translator_id VARCHAR(64) NOT NULL,
			position_no INTEGER NOT NULL,
			confirmed_at BIGINT,
			eliminated_at BIGINT,
			eliminated_round INTEGER,
			is_winner %s NOT NULL DEFAULT FALSE,
			UNIQUE (auction_id, position_no)
		)`, boolType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS bids (
			id VARCHAR(64) PRIMARY KEY,
			auction_id VARCHAR(64) NOT NULL REFERENCES auctions(id) ON DELETE CASCADE,
			participant_id VARCHAR(64) NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
			round_no INTEGER NOT NULL,
			offered_price %s NOT NULL,
			decision VARCHAR(16) NOT NULL,
			decided_at BIGINT NOT NULL,
			UNIQUE (participant_id, round_no)
		)`, priceType),
		`CREATE INDEX IF NOT EXISTS idx_auctions_status ON auctions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_participants_auction_id ON participants(auction_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bids_auction_round ON bids(auction_id, round_no)`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (r *SQLRepo) Close() error {
	return r.db.Close()
}

const auctionColumns = `id, source_language, target_language, word_count, description, starting_price,
	current_price, current_round, status, winner_id, final_price, num_participants, round_started_at,
	confirmation_deadline, failure_reason, created_at, started_at, completed_at, version`

const participantColumns = `id, auction_id, translator_id, position_no, confirmed_at, eliminated_at,
	eliminated_round, is_winner`

const bidColumns = `id, auction_id, participant_id, round_no, offered_price, decision, decided_at`

// CreateAuction inserts the auction, its participants and any bids in one transaction
func (r *SQLRepo) CreateAuction(ctx context.Context, snap model.Snapshot) (err error) {
	a := snap.Auction
	if a.AuctionID == "" {
		return fmt.Errorf("create auction: empty auction id: %w", auctionerrors.ErrValidation)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create auction %s: begin: %w", a.AuctionID, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, r.rebind(`INSERT INTO auctions (`+auctionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.AuctionID, a.SourceLanguage, a.TargetLanguage, a.WordCount, a.Description, a.StartingPrice,
		a.CurrentPrice, a.CurrentRound, string(a.Status), toNullString(a.WinnerID), toNullDecimal(a.FinalPrice),
		a.NumParticipants, toNullMillis(a.RoundStartedAt), toNullMillis(a.ConfirmationDeadline), a.FailureReason,
		toMillis(a.CreatedAt), toNullMillis(a.StartedAt), toNullMillis(a.CompletedAt), a.Version,
	)
	if err != nil {
		return fmt.Errorf("create auction %s: insert auction: %w", a.AuctionID, err)
	}

	for _, p := range snap.Participants {
		_, err = tx.ExecContext(ctx, r.rebind(`INSERT INTO participants (`+participantColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			p.ParticipantID, a.AuctionID, p.TranslatorID, p.Position, toNullMillis(p.ConfirmedAt),
			toNullMillis(p.EliminatedAt), toNullInt(p.EliminatedRound), p.IsWinner,
		)
		if err != nil {
			return fmt.Errorf("create auction %s: insert participant %s: %w", a.AuctionID, p.ParticipantID, err)
		}
	}

	for _, b := range snap.Bids {
		if err = r.insertBid(ctx, tx, b); err != nil {
			return fmt.Errorf("create auction %s: %w", a.AuctionID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("create auction %s: commit: %w", a.AuctionID, err)
	}
	return nil
}

// GetSnapshot returns the auction with its participants and bids
func (r *SQLRepo) GetSnapshot(ctx context.Context, auctionID string) (model.Snapshot, error) {
	return r.loadSnapshot(ctx, r.db, auctionID)
}

// GetParticipant returns a participant by id
func (r *SQLRepo) GetParticipant(ctx context.Context, participantID string) (model.Participant, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`SELECT `+participantColumns+` FROM participants WHERE id = ?`), participantID)
	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Participant{}, fmt.Errorf("get participant %s: %w", participantID, auctionerrors.ErrParticipantNotFound)
	}
	if err != nil {
		return model.Participant{}, fmt.Errorf("get participant %s: %w", participantID, err)
	}
	return p, nil
}

// ListAuctions returns auctions ordered by creation time; an empty status lists all
func (r *SQLRepo) ListAuctions(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	defer rows.Close()

	auctions := []model.Auction{}
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("list auctions: scan: %w", err)
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	return auctions, nil
}

// UpdateAuction applies fn inside a transaction and retries when another writer
// moved the auction's version in between
func (r *SQLRepo) UpdateAuction(ctx context.Context, auctionID string, fn UpdateFunc) (model.Snapshot, error) {
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		snap, err := r.tryUpdate(ctx, auctionID, fn)
		if errors.Is(err, errVersionConflict) {
			continue
		}
		return snap, err
	}
	return model.Snapshot{}, fmt.Errorf("update auction %s: %w", auctionID, auctionerrors.ErrConcurrentUpdate)
}

func (r *SQLRepo) tryUpdate(ctx context.Context, auctionID string, fn UpdateFunc) (_ model.Snapshot, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("update auction %s: begin: %w", auctionID, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	before, err := r.loadSnapshot(ctx, tx, auctionID)
	if err != nil {
		return model.Snapshot{}, err
	}
	working := before.Clone()
	if err = fn(&working); err != nil {
		return model.Snapshot{}, err
	}

	a := working.Auction
	res, err := tx.ExecContext(ctx, r.rebind(`UPDATE auctions
		SET current_price = ?, current_round = ?, status = ?, winner_id = ?, final_price = ?,
		    round_started_at = ?, confirmation_deadline = ?, failure_reason = ?, started_at = ?,
		    completed_at = ?, version = version + 1
		WHERE id = ? AND version = ?`),
		a.CurrentPrice, a.CurrentRound, string(a.Status), toNullString(a.WinnerID), toNullDecimal(a.FinalPrice),
		toNullMillis(a.RoundStartedAt), toNullMillis(a.ConfirmationDeadline), a.FailureReason,
		toNullMillis(a.StartedAt), toNullMillis(a.CompletedAt), auctionID, before.Auction.Version,
	)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("update auction %s: %w", auctionID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("update auction %s: rows affected: %w", auctionID, err)
	}
	if affected == 0 {
		err = errVersionConflict
		return model.Snapshot{}, err
	}

	for _, p := range working.Participants {
		_, err = tx.ExecContext(ctx, r.rebind(`UPDATE participants
			SET confirmed_at = ?, eliminated_at = ?, eliminated_round = ?, is_winner = ?
			WHERE id = ? AND auction_id = ?`),
			toNullMillis(p.ConfirmedAt), toNullMillis(p.EliminatedAt), toNullInt(p.EliminatedRound), p.IsWinner,
			p.ParticipantID, auctionID,
		)
		if err != nil {
			return model.Snapshot{}, fmt.Errorf("update auction %s: participant %s: %w", auctionID, p.ParticipantID, err)
		}
	}

	known := make(map[string]bool, len(before.Bids))
	for _, b := range before.Bids {
		known[b.BidID] = true
	}
	for _, b := range working.Bids {
		if known[b.BidID] {
			continue
		}
		if err = r.insertBid(ctx, tx, b); err != nil {
			return model.Snapshot{}, fmt.Errorf("update auction %s: %w", auctionID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return model.Snapshot{}, fmt.Errorf("update auction %s: commit: %w", auctionID, err)
	}
	working.Auction.Version++
	return working, nil
}

func (r *SQLRepo) insertBid(ctx context.Context, tx *sql.Tx, b model.Bid) error {
	_, err := tx.ExecContext(ctx, r.rebind(`INSERT INTO bids (`+bidColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		b.BidID, b.AuctionID, b.ParticipantID, b.Round, b.OfferedPrice, string(b.Decision), toMillis(b.DecidedAt),
	)
	if err != nil {
		return fmt.Errorf("insert bid %s: %w", b.BidID, err)
	}
	return nil
}

func (r *SQLRepo) loadSnapshot(ctx context.Context, q querier, auctionID string) (model.Snapshot, error) {
	row := q.QueryRowContext(ctx, r.rebind(`SELECT `+auctionColumns+` FROM auctions WHERE id = ?`), auctionID)
	a, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Snapshot{}, fmt.Errorf("get auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("get auction %s: %w", auctionID, err)
	}
	snap := model.Snapshot{Auction: a}

	rows, err := q.QueryContext(ctx, r.rebind(`SELECT `+participantColumns+` FROM participants
		WHERE auction_id = ? ORDER BY position_no`), auctionID)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("get participants of %s: %w", auctionID, err)
	}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			rows.Close()
			return model.Snapshot{}, fmt.Errorf("get participants of %s: scan: %w", auctionID, err)
		}
		snap.Participants = append(snap.Participants, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return model.Snapshot{}, fmt.Errorf("get participants of %s: %w", auctionID, err)
	}

	rows, err = q.QueryContext(ctx, r.rebind(`SELECT `+bidColumns+` FROM bids
		WHERE auction_id = ? ORDER BY round_no, decided_at, id`), auctionID)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("get bids of %s: %w", auctionID, err)
	}
	defer rows.Close()
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return model.Snapshot{}, fmt.Errorf("get bids of %s: scan: %w", auctionID, err)
		}
		snap.Bids = append(snap.Bids, b)
	}
	if err := rows.Err(); err != nil {
		return model.Snapshot{}, fmt.Errorf("get bids of %s: %w", auctionID, err)
	}
	return snap, nil
}

// rebind turns ? placeholders into $n for postgres
func (r *SQLRepo) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func scanAuction(row rowScanner) (model.Auction, error) {
	var (
		a                                          model.Auction
		status                                     string
		winner                                     sql.NullString
		final                                      decimal.NullDecimal
		roundStarted, deadline, started, completed sql.NullInt64
		created                                    int64
	)
	err := row.Scan(&a.AuctionID, &a.SourceLanguage, &a.TargetLanguage, &a.WordCount, &a.Description,
		&a.StartingPrice, &a.CurrentPrice, &a.CurrentRound, &status, &winner, &final, &a.NumParticipants,
		&roundStarted, &deadline, &a.FailureReason, &created, &started, &completed, &a.Version)
	if err != nil {
		return model.Auction{}, err
	}

	a.Status = model.AuctionStatus(status)
	if winner.Valid {
		a.WinnerID = &winner.String
	}
	if final.Valid {
		a.FinalPrice = &final.Decimal
	}
	a.RoundStartedAt = fromNullMillis(roundStarted)
	a.ConfirmationDeadline = fromNullMillis(deadline)
	a.CreatedAt = fromMillis(created)
	a.StartedAt = fromNullMillis(started)
	a.CompletedAt = fromNullMillis(completed)
	return a, nil
}

func scanParticipant(row rowScanner) (model.Participant, error) {
	var (
		p                     model.Participant
		confirmed, eliminated sql.NullInt64
		eliminatedRound       sql.NullInt64
	)
	err := row.Scan(&p.ParticipantID, &p.AuctionID, &p.TranslatorID, &p.Position, &confirmed, &eliminated,
		&eliminatedRound, &p.IsWinner)
	if err != nil {
		return model.Participant{}, err
	}
	p.ConfirmedAt = fromNullMillis(confirmed)
	p.EliminatedAt = fromNullMillis(eliminated)
	if eliminatedRound.Valid {
		round := int(eliminatedRound.Int64)
		p.EliminatedRound = &round
	}
	return p, nil
}

func scanBid(row rowScanner) (model.Bid, error) {
	var (
		b        model.Bid
		decision string
		decided  int64
	)
	if err := row.Scan(&b.BidID, &b.AuctionID, &b.ParticipantID, &b.Round, &b.OfferedPrice, &decision, &decided); err != nil {
		return model.Bid{}, err
	}
	b.Decision = model.Decision(decision)
	b.DecidedAt = fromMillis(decided)
	return b, nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toNullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

func toNullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func toNullDecimal(value *decimal.Decimal) decimal.NullDecimal {
	if value == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *value, Valid: true}
}

func toNullInt(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*value), Valid: true}
}
