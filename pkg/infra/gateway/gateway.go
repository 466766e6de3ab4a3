// Package gateway provides payment gateway strategies. Each type
// implements domain.Gateway; selection happens through the usecase
// registry, never by branching on gateway names.
package gateway

import (
	"strings"

	"github.com/google/uuid"
)

func newRef(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}
