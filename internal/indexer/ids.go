package indexer

import "github.com/google/uuid"

func newEntryUUID() string { return uuid.NewString() }
