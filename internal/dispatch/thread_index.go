package dispatch

// ThreadEntry holds the identifiers a sent record leaves behind for its
// replies.
type ThreadEntry struct {
	// RFCMessageID is the Message-ID the provider stored for the message.
	RFCMessageID string

	// ProviderID is the provider-native identifier of the sent message.
	ProviderID string
}

// ThreadIndex maps local email IDs to the identifiers of successfully
// sent messages. One index belongs to one batch; it is written by the
// orchestrator after a send and its header re-fetch have both succeeded.
type ThreadIndex struct {
	entries map[string]ThreadEntry
}

// NewThreadIndex returns an empty index.
func NewThreadIndex() *ThreadIndex {
	return &ThreadIndex{entries: make(map[string]ThreadEntry)}
}

// Record stores the identifiers for localID, replacing any earlier entry.
func (t *ThreadIndex) Record(localID, rfcMessageID, providerID string) {
	t.entries[localID] = ThreadEntry{RFCMessageID: rfcMessageID, ProviderID: providerID}
}

// RFCMessageID returns the stored Message-ID for localID.
func (t *ThreadIndex) RFCMessageID(localID string) (string, bool) {
	e, ok := t.entries[localID]
	if !ok || e.RFCMessageID == "" {
		return "", false
	}
	return e.RFCMessageID, true
}

// ProviderID returns the stored provider-native ID for localID.
func (t *ThreadIndex) ProviderID(localID string) (string, bool) {
	e, ok := t.entries[localID]
	if !ok || e.ProviderID == "" {
		return "", false
	}
	return e.ProviderID, true
}

// Len returns the number of recorded messages.
func (t *ThreadIndex) Len() int {
	return len(t.entries)
}
