// Package vision defines the VisionClient capability: two calls a vendor
// OCR service exposes, wrapped so that the OCR stage never talks HTTP
// directly. The vendor's own wire protocol is an external collaborator's
// contract, not this package's concern — its job is the narrow Go
// interface plus a thin HTTP implementation of it, following a
// mock-vs-real split for the repository layer (MemoryRepository vs
// SQLiteRepository).
package vision

import "context"

// PlayersPayload is the structured result of ExtractPlayers.
type PlayersPayload struct {
	Players          []string
	Stacks           []int // parallel to Players; 0 = not visible
	DealerPlayer     string
	SmallBlindPlayer string
	BigBlindPlayer   string
}

// Client is the capability the OCR stage requires. Implementations must be
// idempotent, bound wall-clock time internally (a tens-of-seconds
// per-call timeout), and never substitute placeholder output when
// unauthenticated.
type Client interface {
	ExtractHandID(ctx context.Context, imageRef string) (string, error)
	ExtractPlayers(ctx context.Context, imageRef string) (PlayersPayload, error)
}
