package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type SessionID string

type RequestID string

func NewSessionID() SessionID {
	return SessionID("sess_" + timestamp() + "_" + randomSeed())
}

func NewRequestID() RequestID {
	return RequestID("req_" + timestamp() + "_" + randomSeed())
}

func timestamp() string {
	return time.Now().UTC().Format("20060102T150405.000000000")
}

func randomSeed() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
