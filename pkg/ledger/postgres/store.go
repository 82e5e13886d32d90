package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/ledger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
)

// Store implements ledger.Store using PostgreSQL.
type Store struct {
	pool *Pool
}

// Compile-time interface check.
var _ ledger.Store = (*Store)(nil)

// NewStore creates a new Store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

const swapColumns = `
	id, owner, direction, input_amount, min_output_amount, intermediate_amount,
	output_amount, target_address, target_domain, deadline, state,
	attestation_ref, failure_reason, created_at, updated_at
`

// Insert adds a new swap. The ID comes from the swaps sequence, so it is
// monotonic and never reused.
func (s *Store) Insert(ctx context.Context, swap *models.Swap) error {
	if swap == nil || swap.InputAmount == nil {
		return ledger.ErrInvalidInput
	}

	query := `
		INSERT INTO swaps (
			owner, direction, input_amount, min_output_amount, target_address,
			target_domain, deadline, state, failure_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		swap.Owner.Bytes(),
		string(swap.Direction),
		bigToNumeric(swap.InputAmount),
		bigToNumeric(swap.MinOutputAmount),
		swap.TargetAddress,
		int64(swap.TargetDomain),
		swap.Deadline,
		string(swap.State),
		swap.FailureReason,
		swap.CreatedAt,
		swap.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert swap: %w", err)
	}

	swap.ID = uint64(id)
	return nil
}

// GetByID retrieves a swap by its ID. Returns ErrNotFound if not exists.
func (s *Store) GetByID(ctx context.Context, id uint64) (*models.Swap, error) {
	query := `SELECT ` + swapColumns + ` FROM swaps WHERE id = $1`

	swap, err := scanSwap(s.pool.QueryRow(ctx, query, int64(id)))
	if err != nil {
		if isNotFoundError(err) {
			return nil, ledger.ErrNotFound
		}
		return nil, fmt.Errorf("get swap by id: %w", err)
	}
	return swap, nil
}

// GetByOwner retrieves all swaps created by owner, ordered by ID ASC.
func (s *Store) GetByOwner(ctx context.Context, owner common.Address) ([]*models.Swap, error) {
	query := `SELECT ` + swapColumns + ` FROM swaps WHERE owner = $1 ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, query, owner.Bytes())
	if err != nil {
		return nil, fmt.Errorf("get swaps by owner: %w", err)
	}
	defer rows.Close()

	return scanSwaps(rows)
}

// GetByAttestationRef retrieves the swap bound to a transfer handle.
func (s *Store) GetByAttestationRef(ctx context.Context, ref common.Hash) (*models.Swap, error) {
	query := `SELECT ` + swapColumns + ` FROM swaps WHERE attestation_ref = $1`

	swap, err := scanSwap(s.pool.QueryRow(ctx, query, ref.Bytes()))
	if err != nil {
		if isNotFoundError(err) {
			return nil, ledger.ErrNotFound
		}
		return nil, fmt.Errorf("get swap by attestation ref: %w", err)
	}
	return swap, nil
}

// ListByState retrieves all swaps in any of the given states, ordered by ID ASC.
func (s *Store) ListByState(ctx context.Context, states ...models.SwapState) ([]*models.Swap, error) {
	names := make([]string, len(states))
	for i, st := range states {
		names[i] = string(st)
	}

	query := `SELECT ` + swapColumns + ` FROM swaps WHERE state = ANY($1) ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, query, names)
	if err != nil {
		return nil, fmt.Errorf("list swaps by state: %w", err)
	}
	defer rows.Close()

	return scanSwaps(rows)
}

// ListExpired retrieves active swaps whose deadline passed before now, ordered by ID ASC.
func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]*models.Swap, error) {
	names := make([]string, len(models.ActiveStates))
	for i, st := range models.ActiveStates {
		names[i] = string(st)
	}

	query := `SELECT ` + swapColumns + ` FROM swaps WHERE state = ANY($1) AND deadline < $2 ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, query, names, now)
	if err != nil {
		return nil, fmt.Errorf("list expired swaps: %w", err)
	}
	defer rows.Close()

	return scanSwaps(rows)
}

// CountByState returns the number of swaps currently in each state.
func (s *Store) CountByState(ctx context.Context) (map[models.SwapState]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT state, COUNT(*) FROM swaps GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("count swaps by state: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.SwapState]int)
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan state count: %w", err)
		}
		counts[models.SwapState(state)] = int(n)
	}
	return counts, rows.Err()
}

// UpdateState applies the transition and mutation in one statement, guarded
// by the stored state still matching the expected pre-state.
func (s *Store) UpdateState(ctx context.Context, id uint64, from, to models.SwapState, mut *ledger.Mutation, updatedAt time.Time) (bool, error) {
	var (
		intermediate = pgtype.Numeric{}
		output       = pgtype.Numeric{}
		ref          []byte
		reason       string
	)
	if mut != nil {
		if mut.IntermediateAmount != nil {
			intermediate = bigToNumeric(mut.IntermediateAmount)
		}
		if mut.OutputAmount != nil {
			output = bigToNumeric(mut.OutputAmount)
		}
		if mut.AttestationRef != nil {
			ref = mut.AttestationRef.Bytes()
		}
		reason = mut.FailureReason
	}

	query := `
		UPDATE swaps SET
			state = $3,
			updated_at = $4,
			intermediate_amount = COALESCE($5, intermediate_amount),
			output_amount = COALESCE($6, output_amount),
			attestation_ref = COALESCE($7, attestation_ref),
			failure_reason = CASE WHEN $8 <> '' THEN $8 ELSE failure_reason END
		WHERE id = $1 AND state = $2
	`

	tag, err := s.pool.Exec(ctx, query,
		int64(id),
		string(from),
		string(to),
		updatedAt,
		intermediate,
		output,
		ref,
		reason,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return false, ledger.ErrDuplicateRef
		}
		return false, fmt.Errorf("update swap state: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// scanSwaps scans multiple rows into a slice of Swap.
func scanSwaps(rows pgx.Rows) ([]*models.Swap, error) {
	var swaps []*models.Swap
	for rows.Next() {
		swap, err := scanSwap(rows)
		if err != nil {
			return nil, fmt.Errorf("scan swap: %w", err)
		}
		swaps = append(swaps, swap)
	}
	return swaps, rows.Err()
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSwap(row rowScanner) (*models.Swap, error) {
	var (
		swap         models.Swap
		id           int64
		owner        []byte
		direction    string
		input        pgtype.Numeric
		minOutput    pgtype.Numeric
		intermediate pgtype.Numeric
		output       pgtype.Numeric
		domain       int64
		state        string
		ref          []byte
	)

	err := row.Scan(
		&id,
		&owner,
		&direction,
		&input,
		&minOutput,
		&intermediate,
		&output,
		&swap.TargetAddress,
		&domain,
		&swap.Deadline,
		&state,
		&ref,
		&swap.FailureReason,
		&swap.CreatedAt,
		&swap.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	swap.ID = uint64(id)
	swap.Owner = common.BytesToAddress(owner)
	swap.Direction = models.Direction(direction)
	swap.InputAmount = numericToBig(input)
	swap.MinOutputAmount = numericToBig(minOutput)
	swap.IntermediateAmount = numericToBig(intermediate)
	swap.OutputAmount = numericToBig(output)
	swap.TargetDomain = uint32(domain)
	swap.State = models.SwapState(state)
	if len(ref) > 0 {
		swap.AttestationRef = common.BytesToHash(ref)
	}
	return &swap, nil
}

func bigToNumeric(v *big.Int) pgtype.Numeric {
	if v == nil {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{Int: new(big.Int).Set(v), Valid: true}
}

func numericToBig(n pgtype.Numeric) *big.Int {
	if !n.Valid || n.Int == nil {
		return nil
	}
	v := new(big.Int).Set(n.Int)
	// Amounts are written with exponent zero; a positive exponent can still
	// come back from the database after manual edits.
	for i := int32(0); i < n.Exp; i++ {
		v.Mul(v, big.NewInt(10))
	}
	return v
}
