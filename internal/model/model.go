package model

import "time"

type Account struct {
	ID           string
	Username     string
	Name         string
	Email        string
	Phone        *string
	Role         string
	PasswordHash string
	CreatedAt    time.Time
}

type AdminProfile struct {
	AccountID    string
	Designation  string
	ResearchArea *string
}

type StudentProfile struct {
	AccountID  string
	Department string
	Year       int
}

type Server struct {
	ID        string
	Name      string
	Location  string
	Status    string
	CPUCores  int
	MemoryGB  int
	StorageGB int
	CreatedAt time.Time
}

type Request struct {
	ID          string
	AccountID   string
	Username    string
	Type        string
	Description string
	Priority    string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Issue struct {
	ID          string
	AccountID   string
	Username    string
	ServerID    *string
	ServerName  *string
	Title       string
	Description string
	Priority    string
	Status      string
	CreatedAt   time.Time
}

type Allocation struct {
	ID           string
	AccountID    string
	Username     string
	ServerID     string
	ServerName   string
	ResourceType string
	StartsAt     time.Time
	EndsAt       time.Time
	Status       string
}
