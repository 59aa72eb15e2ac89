package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"helpdesk/internal/model"
)

// ErrDuplicate is returned when an insert violates a unique constraint.
var ErrDuplicate = errors.New("duplicate row")

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetAccountByUsername(ctx context.Context, username string) (model.Account, error) {
	var account model.Account
	row := s.pool.QueryRow(ctx, `
		SELECT id, username, name, email, phone, role, password_hash, created_at
		FROM accounts
		WHERE username = $1
	`, username)
	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Name,
		&account.Email,
		&account.Phone,
		&account.Role,
		&account.PasswordHash,
		&account.CreatedAt,
	)
	return account, err
}

func (s *Store) GetAccountByID(ctx context.Context, accountID string) (model.Account, error) {
	var account model.Account
	row := s.pool.QueryRow(ctx, `
		SELECT id, username, name, email, phone, role, password_hash, created_at
		FROM accounts
		WHERE id = $1
	`, accountID)
	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Name,
		&account.Email,
		&account.Phone,
		&account.Role,
		&account.PasswordHash,
		&account.CreatedAt,
	)
	return account, err
}

// CreateAccountWithProfile inserts the account row and its role profile row
// in one transaction so a failed profile insert never leaves an orphaned
// account behind.
func (s *Store) CreateAccountWithProfile(ctx context.Context, account model.Account) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (id, username, name, email, phone, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, account.ID, account.Username, account.Name, account.Email, account.Phone, account.Role, account.PasswordHash, account.CreatedAt)
	if err != nil {
		return mapDuplicate(err)
	}

	switch account.Role {
	case "admin":
		_, err = tx.Exec(ctx, `
			INSERT INTO admin_profiles (account_id, designation, research_area)
			VALUES ($1, $2, $3)
		`, account.ID, "New Administrator", nil)
	case "student":
		_, err = tx.Exec(ctx, `
			INSERT INTO student_profiles (account_id, department, year)
			VALUES ($1, $2, $3)
		`, account.ID, "General", 1)
	}
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) DeleteAccount(ctx context.Context, username string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE username = $1`, username)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListAccounts(ctx context.Context, limit, offset int, role string) ([]model.Account, error) {
	query := `
		SELECT id, username, name, email, phone, role, password_hash, created_at
		FROM accounts
	`
	args := []interface{}{}
	if role != "" {
		query += ` WHERE role = $1`
		args = append(args, role)
	}
	query += ` ORDER BY created_at DESC`
	args = append(args, limit, offset)
	if role != "" {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []model.Account{}
	for rows.Next() {
		var account model.Account
		if err := rows.Scan(
			&account.ID,
			&account.Username,
			&account.Name,
			&account.Email,
			&account.Phone,
			&account.Role,
			&account.PasswordHash,
			&account.CreatedAt,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (s *Store) GetStudentProfile(ctx context.Context, accountID string) (model.StudentProfile, error) {
	var profile model.StudentProfile
	row := s.pool.QueryRow(ctx, `
		SELECT account_id, department, year
		FROM student_profiles
		WHERE account_id = $1
	`, accountID)
	err := row.Scan(&profile.AccountID, &profile.Department, &profile.Year)
	return profile, err
}

func (s *Store) GetAdminProfile(ctx context.Context, accountID string) (model.AdminProfile, error) {
	var profile model.AdminProfile
	row := s.pool.QueryRow(ctx, `
		SELECT account_id, designation, research_area
		FROM admin_profiles
		WHERE account_id = $1
	`, accountID)
	err := row.Scan(&profile.AccountID, &profile.Designation, &profile.ResearchArea)
	return profile, err
}

func (s *Store) ListServers(ctx context.Context) ([]model.Server, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, location, status, cpu_cores, memory_gb, storage_gb, created_at
		FROM servers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	servers := []model.Server{}
	for rows.Next() {
		var server model.Server
		if err := rows.Scan(
			&server.ID,
			&server.Name,
			&server.Location,
			&server.Status,
			&server.CPUCores,
			&server.MemoryGB,
			&server.StorageGB,
			&server.CreatedAt,
		); err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	return servers, rows.Err()
}

func (s *Store) CreateServer(ctx context.Context, server model.Server) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO servers (id, name, location, status, cpu_cores, memory_gb, storage_gb, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, server.ID, server.Name, server.Location, server.Status, server.CPUCores, server.MemoryGB, server.StorageGB, server.CreatedAt)
	return mapDuplicate(err)
}

type ServerUpdate struct {
	Name     *string
	Location *string
	Status   *string
}

func (s *Store) UpdateServer(ctx context.Context, serverID string, update ServerUpdate) (model.Server, error) {
	var server model.Server
	row := s.pool.QueryRow(ctx, `
		UPDATE servers
		SET name = COALESCE($2, name),
		    location = COALESCE($3, location),
		    status = COALESCE($4, status)
		WHERE id = $1
		RETURNING id, name, location, status, cpu_cores, memory_gb, storage_gb, created_at
	`, serverID, update.Name, update.Location, update.Status)
	err := row.Scan(
		&server.ID,
		&server.Name,
		&server.Location,
		&server.Status,
		&server.CPUCores,
		&server.MemoryGB,
		&server.StorageGB,
		&server.CreatedAt,
	)
	return server, err
}

func (s *Store) ListRequests(ctx context.Context, limit, offset int, status string) ([]model.Request, error) {
	query := `
		SELECT r.id, r.account_id, a.username, r.type, r.description, r.priority, r.status, r.created_at, r.updated_at
		FROM requests r
		JOIN accounts a ON r.account_id = a.id
	`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE r.status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY r.created_at DESC`
	args = append(args, limit, offset)
	if status != "" {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []model.Request{}
	for rows.Next() {
		var request model.Request
		if err := rows.Scan(
			&request.ID,
			&request.AccountID,
			&request.Username,
			&request.Type,
			&request.Description,
			&request.Priority,
			&request.Status,
			&request.CreatedAt,
			&request.UpdatedAt,
		); err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, rows.Err()
}

func (s *Store) CreateRequest(ctx context.Context, request model.Request) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO requests (id, account_id, type, description, priority, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, request.ID, request.AccountID, request.Type, request.Description, request.Priority, request.Status, request.CreatedAt, request.UpdatedAt)
	return err
}

func (s *Store) UpdateRequestStatus(ctx context.Context, requestID, status string, updatedAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE requests
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, requestID, status, updatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListIssues scopes to one account when accountID is non-empty; an empty
// accountID lists everything.
func (s *Store) ListIssues(ctx context.Context, accountID string) ([]model.Issue, error) {
	query := `
		SELECT i.id, i.account_id, a.username, i.server_id, s.name, i.title, i.description, i.priority, i.status, i.created_at
		FROM issues i
		JOIN accounts a ON i.account_id = a.id
		LEFT JOIN servers s ON i.server_id = s.id
	`
	args := []interface{}{}
	if accountID != "" {
		query += ` WHERE i.account_id = $1`
		args = append(args, accountID)
	}
	query += ` ORDER BY i.priority DESC, i.created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	issues := []model.Issue{}
	for rows.Next() {
		var issue model.Issue
		if err := rows.Scan(
			&issue.ID,
			&issue.AccountID,
			&issue.Username,
			&issue.ServerID,
			&issue.ServerName,
			&issue.Title,
			&issue.Description,
			&issue.Priority,
			&issue.Status,
			&issue.CreatedAt,
		); err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func (s *Store) CreateIssue(ctx context.Context, issue model.Issue) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO issues (id, account_id, server_id, title, description, priority, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, issue.ID, issue.AccountID, issue.ServerID, issue.Title, issue.Description, issue.Priority, issue.Status, issue.CreatedAt)
	return err
}

func (s *Store) UpdateIssueStatus(ctx context.Context, issueID, status string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE issues SET status = $2 WHERE id = $1`, issueID, status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListAllocations(ctx context.Context, accountID string) ([]model.Allocation, error) {
	query := `
		SELECT al.id, al.account_id, a.username, al.server_id, s.name, al.resource_type, al.starts_at, al.ends_at, al.status
		FROM allocations al
		JOIN accounts a ON al.account_id = a.id
		JOIN servers s ON al.server_id = s.id
	`
	args := []interface{}{}
	if accountID != "" {
		query += ` WHERE al.account_id = $1`
		args = append(args, accountID)
	}
	query += ` ORDER BY al.starts_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	allocations := []model.Allocation{}
	for rows.Next() {
		var allocation model.Allocation
		if err := rows.Scan(
			&allocation.ID,
			&allocation.AccountID,
			&allocation.Username,
			&allocation.ServerID,
			&allocation.ServerName,
			&allocation.ResourceType,
			&allocation.StartsAt,
			&allocation.EndsAt,
			&allocation.Status,
		); err != nil {
			return nil, err
		}
		allocations = append(allocations, allocation)
	}
	return allocations, rows.Err()
}

func (s *Store) CreateAllocation(ctx context.Context, allocation model.Allocation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO allocations (id, account_id, server_id, resource_type, starts_at, ends_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, allocation.ID, allocation.AccountID, allocation.ServerID, allocation.ResourceType, allocation.StartsAt, allocation.EndsAt, allocation.Status)
	return err
}

func (s *Store) ExpireAllocations(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE allocations
		SET status = 'expired'
		WHERE status = 'active' AND ends_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func mapDuplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
