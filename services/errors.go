package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	errs "github.com/techagentng/spotchat/errors"
	"github.com/techagentng/spotchat/realtime"
	"gorm.io/gorm"
)

const (
	maxGroupNameLength = 100
	maxMessageLength   = 4000
)

// EventPublisher fans change notifications out to the realtime bridge.
type EventPublisher interface {
	NotifyInbox(ctx context.Context, event realtime.Event, userIDs ...uuid.UUID)
	NotifyThread(ctx context.Context, event realtime.Event)
}

// storeError maps a repository failure onto the api taxonomy. A missing row becomes
// NotFound, anything else is a storage failure.
func storeError(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.NotFound(what + " not found")
	}
	return errs.Storage("could not load "+what, err)
}

func writeError(err error, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.NotFound(action + ": record not found")
	}
	return errs.Storage("could not "+action, err)
}

func groupName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return "", errs.Invalid("group name is required")
	}
	if n > maxGroupNameLength {
		return "", errs.Invalid("group name must be at most 100 characters")
	}
	return name, nil
}

func distinctIDs(ids []uuid.UUID, exclude ...uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids)+len(exclude))
	for _, id := range exclude {
		seen[id] = true
	}
	seen[uuid.Nil] = true
	var out []uuid.UUID
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
