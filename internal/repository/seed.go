package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"helpdesk/internal/crypto"
	"helpdesk/internal/model"
)

// SeedDemoData inserts a demo admin, a demo student and a couple of servers
// and requests so a fresh install serves a working dashboard. Accounts that
// already exist are left alone.
func (s *Store) SeedDemoData(ctx context.Context) error {
	now := time.Now().UTC()

	if _, err := s.seedAccount(ctx, "admin001", "Admin User", "admin@campus.edu", "admin", "admin123", now); err != nil {
		return err
	}
	student, err := s.seedAccount(ctx, "student001", "Student User", "student@campus.edu", "student", "student123", now)
	if err != nil {
		return err
	}

	servers, err := s.ListServers(ctx)
	if err != nil {
		return err
	}
	if len(servers) == 0 {
		servers = []model.Server{
			{ID: uuid.NewString(), Name: "compute-01", Location: "Data Center A", Status: "online", CPUCores: 32, MemoryGB: 128, StorageGB: 2048, CreatedAt: now},
			{ID: uuid.NewString(), Name: "storage-01", Location: "Data Center B", Status: "online", CPUCores: 16, MemoryGB: 64, StorageGB: 8192, CreatedAt: now},
		}
		for _, server := range servers {
			if err := s.CreateServer(ctx, server); err != nil && !errors.Is(err, ErrDuplicate) {
				return err
			}
		}
	}

	requests, err := s.ListRequests(ctx, 1, 0, "")
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		err := s.CreateRequest(ctx, model.Request{
			ID:          uuid.NewString(),
			AccountID:   student.ID,
			Type:        "gpu_access",
			Description: "Access to GPU nodes for coursework",
			Priority:    "medium",
			Status:      "pending",
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) seedAccount(ctx context.Context, username, name, email, role, password string, now time.Time) (model.Account, error) {
	account, err := s.GetAccountByUsername(ctx, username)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Account{}, err
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return model.Account{}, err
	}
	account = model.Account{
		ID:           uuid.NewString(),
		Username:     username,
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    now,
	}
	if err := s.CreateAccountWithProfile(ctx, account); err != nil {
		return model.Account{}, err
	}
	return account, nil
}
