package services

import (
	"context"
	"slices"
	"strings"

	"kazo/internal/storage"
)

// DefaultCategories are available in every chat and cannot be removed.
var DefaultCategories = []string{
	"groceries",
	"dining",
	"transport",
	"utilities",
	"entertainment",
	"healthcare",
	"shopping",
	"subscriptions",
	"housing",
	"education",
	"travel",
	"personal",
	"gifts",
	"other",
}

type CategoryService struct {
	storage *storage.SQLiteRepository
}

func NewCategoryService(storage *storage.SQLiteRepository) *CategoryService {
	return &CategoryService{storage: storage}
}

func IsDefaultCategory(name string) bool {
	return slices.Contains(DefaultCategories, strings.ToLower(strings.TrimSpace(name)))
}

// All returns the defaults followed by the chat's custom categories.
func (s *CategoryService) All(ctx context.Context, chatID int64) ([]string, error) {
	custom, err := s.storage.CustomCategories(ctx, chatID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(DefaultCategories)+len(custom))
	out = append(out, DefaultCategories...)
	return append(out, custom...), nil
}

func (s *CategoryService) Custom(ctx context.Context, chatID int64) ([]string, error) {
	return s.storage.CustomCategories(ctx, chatID)
}

// Joined is the comma separated list used in prompts.
func (s *CategoryService) Joined(ctx context.Context, chatID int64) (string, error) {
	all, err := s.All(ctx, chatID)
	if err != nil {
		return "", err
	}
	return strings.Join(all, ", "), nil
}

// Known reports whether name is a default or custom category.
func (s *CategoryService) Known(ctx context.Context, chatID int64, name string) (bool, error) {
	all, err := s.All(ctx, chatID)
	if err != nil {
		return false, err
	}
	return slices.Contains(all, strings.ToLower(strings.TrimSpace(name))), nil
}

// Add creates a custom category. It returns false for defaults and
// duplicates.
func (s *CategoryService) Add(ctx context.Context, chatID int64, name string) (bool, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" || IsDefaultCategory(n) {
		return false, nil
	}
	return s.storage.AddCategory(ctx, chatID, n)
}

// Remove deletes a custom category. Defaults are never removed.
func (s *CategoryService) Remove(ctx context.Context, chatID int64, name string) (bool, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" || IsDefaultCategory(n) {
		return false, nil
	}
	return s.storage.RemoveCategory(ctx, chatID, n)
}
