package main

import (
	"strings"

	"github.com/gofrs/uuid"
)

var _ UIDHandler = (*IDsHandler)(nil)

// Prefixes of the locally generated identifiers, as in "r:<uuid>".
const (
	RequestIDPrefix      string = "r"
	SubscriptionIDPrefix string = "s"
	InstanceIDPrefix     string = "i"
	MutationIDPrefix     string = "m"

	idSeparator = ":"
)

// UIDHandler generates and checks prefixed identifiers.
type UIDHandler interface {
	Generate(prefix string) string
	IsValid(id, prefix string) bool
}

// IDsHandler issues random (version 4) uuids.
type IDsHandler struct{}

func NewIDsHandler() *IDsHandler {
	return &IDsHandler{}
}

// Generate returns a new identifier carrying prefix.
func (*IDsHandler) Generate(prefix string) string {
	return prefix + idSeparator + uuid.Must(uuid.NewV4()).String()
}

// IsValid reports whether id is prefix followed by a non-nil uuid. Request
// ids sent by callers must pass it to be reused in logs and responses.
func (*IDsHandler) IsValid(id, prefix string) bool {
	raw, found := strings.CutPrefix(id, prefix+idSeparator)
	if !found {
		return false
	}
	u, err := uuid.FromString(raw)
	return err == nil && u != uuid.Nil
}
