package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStorageUnavailable marks failures of the local durable store. These
	// always bubble to the caller; artifacts are never dropped silently.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrOffline marks a user-initiated sync attempted without connectivity.
	ErrOffline = errors.New("offline")
	// ErrDeliveryFailed marks a transient failure of one of the delivery
	// legs. The orchestrator recovers these via the backoff ladder.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrDeliveryFailedPermanently marks an item that exhausted its retries.
	ErrDeliveryFailedPermanently = errors.New("delivery failed permanently")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrDeliveryFailed
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTerminal reports whether an error is beyond automatic recovery.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrDeliveryFailedPermanently)
}

// IsStorage reports whether an error originated in the durable store.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
